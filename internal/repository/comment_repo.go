package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"crowdfundin/internal/model"
	"crowdfundin/internal/repository/query"
)

type CommentRepository struct {
	db *pgxpool.Pool
}

func NewCommentRepository(db *pgxpool.Pool) *CommentRepository {
	return &CommentRepository{db: db}
}

const commentSelect = `
        SELECT cm.id, cm.campaign_id, c.title, cm.author_id, u.name, cm.content, cm.parent_comment_id,
               cm.is_edited, cm.edited_at, cm.is_deleted, cm.deleted_at, cm.is_reported,
               cm.is_moderated, cm.moderated_by, cm.moderated_at, cm.created_at, cm.updated_at,
               (SELECT COUNT(*) FROM comment_likes l WHERE l.comment_id = cm.id),
               (SELECT COUNT(*) FROM comment_reports rp WHERE rp.comment_id = cm.id)
        FROM comments cm
        JOIN users u ON u.id = cm.author_id
        JOIN campaigns c ON c.id = cm.campaign_id`

func scanComment(row pgx.Row) (*model.Comment, error) {
	var cm model.Comment
	author := &model.UserSummary{}
	campaign := &model.CampaignRef{}
	err := row.Scan(
		&cm.ID,
		&cm.CampaignID,
		&campaign.Title,
		&cm.AuthorID,
		&author.Name,
		&cm.Content,
		&cm.ParentCommentID,
		&cm.IsEdited,
		&cm.EditedAt,
		&cm.IsDeleted,
		&cm.DeletedAt,
		&cm.IsReported,
		&cm.IsModerated,
		&cm.ModeratedBy,
		&cm.ModeratedAt,
		&cm.CreatedAt,
		&cm.UpdatedAt,
		&cm.LikeCount,
		&cm.ReportCount,
	)
	if err != nil {
		return nil, notFound(err)
	}
	author.ID = cm.AuthorID
	campaign.ID = cm.CampaignID
	cm.Author = author
	cm.Campaign = campaign
	return &cm, nil
}

func collectComments(rows pgx.Rows) ([]*model.Comment, error) {
	defer rows.Close()
	var out []*model.Comment
	for rows.Next() {
		cm, err := scanComment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cm)
	}
	return out, rows.Err()
}

func (r *CommentRepository) Create(ctx context.Context, cm *model.Comment) error {
	query := `
        INSERT INTO comments (campaign_id, author_id, content, parent_comment_id)
        VALUES ($1, $2, $3, $4)
        RETURNING id, created_at, updated_at
    `
	err := r.db.QueryRow(ctx, query, cm.CampaignID, cm.AuthorID, cm.Content, cm.ParentCommentID).
		Scan(&cm.ID, &cm.CreatedAt, &cm.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}
	return nil
}

// FindByID 包含已删除的评论，由调用方判断
func (r *CommentRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Comment, error) {
	return scanComment(r.db.QueryRow(ctx, commentSelect+` WHERE cm.id = $1`, id))
}

var CommentSortColumns = map[string]string{
	"createdAt": "cm.created_at",
	"updatedAt": "cm.updated_at",
}

// ListTopLevel 活动下未删除的顶层评论
func (r *CommentRepository) ListTopLevel(ctx context.Context, campaignID uuid.UUID, sort query.Sort, page query.Page) ([]*model.Comment, int, error) {
	b := query.New().
		Where("cm.campaign_id = ?", campaignID).
		Where("cm.parent_comment_id IS NULL").
		Where("NOT cm.is_deleted")

	var total int
	countSQL, countArgs := b.BuildCount("comments cm")
	if err := r.db.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count comments: %w", err)
	}

	sql, args := b.OrderBy(sort).Paginate(page).Build(commentSelect)
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list comments: %w", err)
	}
	comments, err := collectComments(rows)
	return comments, total, err
}

// ListReplies 直接回复由 parent_comment_id 实时查询，已删除的回复不返回
func (r *CommentRepository) ListReplies(ctx context.Context, parentIDs []uuid.UUID) ([]*model.Comment, error) {
	if len(parentIDs) == 0 {
		return nil, nil
	}
	rows, err := r.db.Query(ctx,
		commentSelect+` WHERE cm.parent_comment_id = ANY($1) AND NOT cm.is_deleted ORDER BY cm.created_at ASC`,
		parentIDs)
	if err != nil {
		return nil, fmt.Errorf("list replies: %w", err)
	}
	return collectComments(rows)
}

// ListByAuthor 用户未删除的评论
func (r *CommentRepository) ListByAuthor(ctx context.Context, authorID uuid.UUID, page query.Page) ([]*model.Comment, int, error) {
	b := query.New().
		Where("cm.author_id = ?", authorID).
		Where("NOT cm.is_deleted")

	var total int
	countSQL, countArgs := b.BuildCount("comments cm")
	if err := r.db.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count user comments: %w", err)
	}

	sql, args := b.OrderBy(query.Sort{Column: "cm.created_at", Desc: true}).Paginate(page).Build(commentSelect)
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list user comments: %w", err)
	}
	comments, err := collectComments(rows)
	return comments, total, err
}

// ListReported 被举报且未处理的评论
func (r *CommentRepository) ListReported(ctx context.Context, page query.Page) ([]*model.Comment, int, error) {
	b := query.New().
		Where("cm.is_reported").
		Where("NOT cm.is_moderated").
		Where("NOT cm.is_deleted")

	var total int
	countSQL, countArgs := b.BuildCount("comments cm")
	if err := r.db.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count reported comments: %w", err)
	}

	sql, args := b.OrderBy(query.Sort{Column: "cm.updated_at", Desc: true}).Paginate(page).Build(commentSelect)
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list reported comments: %w", err)
	}
	comments, err := collectComments(rows)
	return comments, total, err
}

// UpdateContent 编辑内容并标记 is_edited
func (r *CommentRepository) UpdateContent(ctx context.Context, id uuid.UUID, content string) error {
	tag, err := r.db.Exec(ctx, `
        UPDATE comments SET content = $2, is_edited = TRUE, edited_at = NOW(), updated_at = NOW()
        WHERE id = $1 AND NOT is_deleted
    `, id, content)
	if err != nil {
		return fmt.Errorf("update comment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

// SoftDelete 软删除；回复列表是实时查询，无需维护父评论
func (r *CommentRepository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `
        UPDATE comments SET is_deleted = TRUE, deleted_at = NOW(), updated_at = NOW()
        WHERE id = $1 AND NOT is_deleted
    `, id)
	if err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

// ToggleLike 单条语句完成点赞/取消点赞，返回新的状态和点赞数
func (r *CommentRepository) ToggleLike(ctx context.Context, commentID, userID uuid.UUID) (*model.LikeState, error) {
	query := `
        WITH del AS (
            DELETE FROM comment_likes WHERE comment_id = $1 AND user_id = $2
            RETURNING 1
        ), ins AS (
            INSERT INTO comment_likes (comment_id, user_id)
            SELECT $1, $2 WHERE NOT EXISTS (SELECT 1 FROM del)
            ON CONFLICT DO NOTHING
            RETURNING 1
        )
        SELECT EXISTS (SELECT 1 FROM ins),
               (SELECT COUNT(*) FROM comment_likes WHERE comment_id = $1)
                 + (SELECT COUNT(*) FROM ins) - (SELECT COUNT(*) FROM del)
    `
	var st model.LikeState
	if err := r.db.QueryRow(ctx, query, commentID, userID).Scan(&st.IsLiked, &st.LikeCount); err != nil {
		return nil, fmt.Errorf("toggle like: %w", err)
	}
	return &st, nil
}

// AddReport 每个用户对同一评论只能举报一次，重复时返回 model.ErrAlreadyReported。
// 新举报会让已处理过的评论重新进入待审核列表
func (r *CommentRepository) AddReport(ctx context.Context, rep *model.CommentReport) error {
	query := `
        WITH ins AS (
            INSERT INTO comment_reports (comment_id, user_id, reason)
            VALUES ($1, $2, $3)
            ON CONFLICT (comment_id, user_id) DO NOTHING
            RETURNING comment_id
        )
        UPDATE comments SET is_reported = TRUE, is_moderated = FALSE, updated_at = NOW()
        WHERE id IN (SELECT comment_id FROM ins)
    `
	tag, err := r.db.Exec(ctx, query, rep.CommentID, rep.UserID, rep.Reason)
	if err != nil {
		return fmt.Errorf("report comment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrAlreadyReported
	}
	return nil
}

// Moderate hide 会软删除评论，dismiss 只清除举报标记；两者都记录处理人
func (r *CommentRepository) Moderate(ctx context.Context, id uuid.UUID, action model.ModerationAction, actor uuid.UUID) error {
	query := `
        UPDATE comments SET
            is_deleted   = CASE WHEN $2 = 'hide' THEN TRUE ELSE is_deleted END,
            deleted_at   = CASE WHEN $2 = 'hide' THEN NOW() ELSE deleted_at END,
            is_reported  = CASE WHEN $2 = 'dismiss' THEN FALSE ELSE is_reported END,
            is_moderated = TRUE,
            moderated_by = $3,
            moderated_at = NOW(),
            updated_at   = NOW()
        WHERE id = $1
    `
	tag, err := r.db.Exec(ctx, query, id, string(action), actor)
	if err != nil {
		return fmt.Errorf("moderate comment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}
