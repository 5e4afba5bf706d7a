package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"crowdfundin/internal/model"
	"crowdfundin/pkg/rbac"
	"crowdfundin/pkg/util"
)

type UserStore interface {
	Create(ctx context.Context, u *model.User) error
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	FindByID(ctx context.Context, id uuid.UUID) (*model.User, error)
}

type Service struct {
	users     UserStore
	jwtSecret string
	tokenTTL  time.Duration
}

func NewService(users UserStore, jwtSecret string, tokenTTL time.Duration) *Service {
	return &Service{
		users:     users,
		jwtSecret: jwtSecret,
		tokenTTL:  tokenTTL,
	}
}

type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Role     rbac.Role
}

// Session 登录或注册成功后返回
type Session struct {
	Token string      `json:"token"`
	User  *model.User `json:"user"`
}

// Register creates a donor or campaign owner. Admins are never self-registered.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	role := in.Role
	if role == "" {
		role = rbac.RoleDonor
	}
	if role != rbac.RoleDonor && role != rbac.RoleCampaignOwner {
		return nil, model.NewValidationError("role", "Role must be donor or campaign_owner")
	}

	hash, err := util.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	u := &model.User{
		Name:         strings.TrimSpace(in.Name),
		Email:        normalizeEmail(in.Email),
		PasswordHash: hash,
		Role:         role,
	}
	// 邮箱唯一性由数据库约束保证，重复时返回 model.ErrEmailTaken
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	return s.session(u)
}

// Login checks user credentials and returns JWT.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	u, err := s.users.FindByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, model.ErrNotFound) {
		return nil, model.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if !util.CheckPassword(password, u.PasswordHash) {
		return nil, model.ErrInvalidCredentials
	}
	return s.session(u)
}

func (s *Service) Me(ctx context.Context, userID uuid.UUID) (*model.User, error) {
	return s.users.FindByID(ctx, userID)
}

func (s *Service) session(u *model.User) (*Session, error) {
	token, err := util.GenerateJWT(u.ID, s.jwtSecret, s.tokenTTL)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, User: u}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
