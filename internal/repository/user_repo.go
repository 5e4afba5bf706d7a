package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"crowdfundin/internal/model"
	"crowdfundin/internal/repository/query"
	"crowdfundin/pkg/rbac"
)

type UserRepository struct {
	db *pgxpool.Pool
}

func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, name, email, password_hash, role, is_verified, verified_by, verified_at,
        rejection_reason, created_at, updated_at`

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	err := row.Scan(
		&u.ID,
		&u.Name,
		&u.Email,
		&u.PasswordHash,
		&u.Role,
		&u.IsVerified,
		&u.VerifiedBy,
		&u.VerifiedAt,
		&u.RejectionReason,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

// Create inserts a new user. 邮箱重复时返回 model.ErrEmailTaken
func (r *UserRepository) Create(ctx context.Context, u *model.User) error {
	query := `
        INSERT INTO users (name, email, password_hash, role)
        VALUES ($1, $2, $3, $4)
        RETURNING id, created_at, updated_at
    `
	err := r.db.QueryRow(ctx, query, u.Name, u.Email, u.PasswordHash, u.Role).
		Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	if isUniqueViolation(err) {
		return model.ErrEmailTaken
	}
	return err
}

// FindByEmail returns user by email.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
}

// FindByID returns user by id.
func (r *UserRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// UserFilter 管理后台用户列表筛选
type UserFilter struct {
	Search string
	Role   rbac.Role
	// OnlyUnverified 只返回未认证的捐款人和活动发起人
	OnlyUnverified bool
	Sort           query.Sort
	Page           query.Page
}

var UserSortColumns = map[string]string{
	"createdAt": "created_at",
	"name":      "name",
	"email":     "email",
	"role":      "role",
}

func (r *UserRepository) List(ctx context.Context, f UserFilter) ([]*model.User, int, error) {
	b := query.New().
		Search(f.Search, "name", "email").
		WhereIf(f.Role != "", "role = ?", f.Role).
		WhereIf(f.OnlyUnverified, "role IN ('donor', 'campaign_owner') AND NOT is_verified").
		OrderBy(f.Sort).
		Paginate(f.Page)

	var total int
	countSQL, countArgs := b.BuildCount("users")
	if err := r.db.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	sql, args := b.Build(`SELECT ` + userColumns + ` FROM users`)
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, u)
	}
	return users, total, rows.Err()
}

// UserUpdate 可选字段，nil 表示不修改
type UserUpdate struct {
	Role            *rbac.Role
	IsVerified      *bool
	RejectionReason *string
}

// Update 修改角色或认证状态；认证通过时记录认证人并清空拒绝原因
func (r *UserRepository) Update(ctx context.Context, id uuid.UUID, upd UserUpdate, actor uuid.UUID) (*model.User, error) {
	now := time.Now()
	query := `
        UPDATE users SET
            role             = COALESCE($2, role),
            is_verified      = COALESCE($3, is_verified),
            verified_by      = CASE WHEN $3::boolean IS TRUE THEN $4 ELSE verified_by END,
            verified_at      = CASE WHEN $3::boolean IS TRUE THEN $5 ELSE verified_at END,
            rejection_reason = CASE
                                   WHEN $3::boolean IS TRUE THEN ''
                                   WHEN $3::boolean IS FALSE AND $6::text IS NOT NULL THEN $6
                                   ELSE rejection_reason
                               END,
            updated_at       = NOW()
        WHERE id = $1
        RETURNING ` + userColumns
	return scanUser(r.db.QueryRow(ctx, query, id, upd.Role, upd.IsVerified, actor, now, upd.RejectionReason))
}

// SetVerification 认证审核：通过或拒绝都会记录审核人和时间
func (r *UserRepository) SetVerification(ctx context.Context, id uuid.UUID, verified bool, reason string, actor uuid.UUID) (*model.User, error) {
	query := `
        UPDATE users SET
            is_verified      = $2,
            verified_by      = $3,
            verified_at      = NOW(),
            rejection_reason = CASE WHEN $2 THEN '' WHEN $4 <> '' THEN $4 ELSE rejection_reason END,
            updated_at       = NOW()
        WHERE id = $1
        RETURNING ` + userColumns
	return scanUser(r.db.QueryRow(ctx, query, id, verified, actor, reason))
}
