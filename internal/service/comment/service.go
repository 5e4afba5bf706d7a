// Package comment implements campaign discussion threads: top-level comments
// with one level of replies, likes, reports and admin moderation.
package comment

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"crowdfundin/internal/model"
	"crowdfundin/internal/repository/query"
	"crowdfundin/pkg/logger"
	"crowdfundin/pkg/rbac"
)

const maxContentLength = 1000

type Store interface {
	Create(ctx context.Context, cm *model.Comment) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Comment, error)
	ListTopLevel(ctx context.Context, campaignID uuid.UUID, sort query.Sort, page query.Page) ([]*model.Comment, int, error)
	ListReplies(ctx context.Context, parentIDs []uuid.UUID) ([]*model.Comment, error)
	ListByAuthor(ctx context.Context, authorID uuid.UUID, page query.Page) ([]*model.Comment, int, error)
	ListReported(ctx context.Context, page query.Page) ([]*model.Comment, int, error)
	UpdateContent(ctx context.Context, id uuid.UUID, content string) error
	SoftDelete(ctx context.Context, id uuid.UUID) error
	ToggleLike(ctx context.Context, commentID, userID uuid.UUID) (*model.LikeState, error)
	AddReport(ctx context.Context, rep *model.CommentReport) error
	Moderate(ctx context.Context, id uuid.UUID, action model.ModerationAction, actor uuid.UUID) error
}

type CampaignFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*model.Campaign, error)
}

type Service struct {
	comments  Store
	campaigns CampaignFinder
	logger    *zap.Logger
}

func NewService(comments Store, campaigns CampaignFinder, logger *zap.Logger) *Service {
	return &Service{comments: comments, campaigns: campaigns, logger: logger}
}

func validateContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", model.NewValidationError("content", "Comment content is required")
	}
	if utf8.RuneCountInString(content) > maxContentLength {
		return "", model.NewValidationError("content", "Comment cannot exceed 1000 characters")
	}
	return content, nil
}

// findLive 已软删除的评论视为不存在
func (s *Service) findLive(ctx context.Context, id uuid.UUID) (*model.Comment, error) {
	cm, err := s.comments.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if cm.IsDeleted {
		return nil, model.ErrNotFound
	}
	return cm, nil
}

type CreateInput struct {
	CampaignID uuid.UUID
	Content    string
	ParentID   *uuid.UUID
}

// Create 发表评论或回复。回复的父评论必须存在、未删除且属于同一活动；
// 对回复的回复挂到其顶层评论下，保持两级展示
func (s *Service) Create(ctx context.Context, authorID uuid.UUID, in CreateInput) (*model.Comment, error) {
	content, err := validateContent(in.Content)
	if err != nil {
		return nil, err
	}
	if _, err := s.campaigns.FindByID(ctx, in.CampaignID); err != nil {
		return nil, err
	}

	parentID := in.ParentID
	if parentID != nil {
		parent, err := s.findLive(ctx, *parentID)
		if err != nil {
			return nil, err
		}
		if parent.CampaignID != in.CampaignID {
			return nil, model.ErrParentMismatch
		}
		if parent.ParentCommentID != nil {
			parentID = parent.ParentCommentID
		}
	}

	cm := &model.Comment{
		CampaignID:      in.CampaignID,
		AuthorID:        authorID,
		Content:         content,
		ParentCommentID: parentID,
	}
	if err := s.comments.Create(ctx, cm); err != nil {
		return nil, err
	}
	return s.comments.FindByID(ctx, cm.ID)
}

// Page 评论列表结果
type Page struct {
	Comments   []*model.CommentThread `json:"comments"`
	Pagination query.Pagination       `json:"pagination"`
}

// ListForCampaign 顶层评论分页，回复按时间正序附在各自的顶层评论下
func (s *Service) ListForCampaign(ctx context.Context, campaignID uuid.UUID, sort query.Sort, page query.Page) (*Page, error) {
	top, total, err := s.comments.ListTopLevel(ctx, campaignID, sort, page)
	if err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, len(top))
	for i, cm := range top {
		ids[i] = cm.ID
	}
	replies, err := s.comments.ListReplies(ctx, ids)
	if err != nil {
		return nil, err
	}
	byParent := make(map[uuid.UUID][]model.Comment, len(top))
	for _, r := range replies {
		if r.ParentCommentID != nil {
			byParent[*r.ParentCommentID] = append(byParent[*r.ParentCommentID], *r)
		}
	}

	threads := make([]*model.CommentThread, len(top))
	for i, cm := range top {
		rs := byParent[cm.ID]
		if rs == nil {
			rs = []model.Comment{}
		}
		threads[i] = &model.CommentThread{Comment: *cm, Replies: rs}
	}
	return &Page{Comments: threads, Pagination: query.NewPagination(page, total)}, nil
}

// UserPage 用户评论列表
type UserPage struct {
	Comments   []*model.Comment `json:"comments"`
	Pagination query.Pagination `json:"pagination"`
}

func (s *Service) ListByUser(ctx context.Context, userID uuid.UUID, page query.Page) (*UserPage, error) {
	comments, total, err := s.comments.ListByAuthor(ctx, userID, page)
	if err != nil {
		return nil, err
	}
	if comments == nil {
		comments = []*model.Comment{}
	}
	return &UserPage{Comments: comments, Pagination: query.NewPagination(page, total)}, nil
}

// Update 只有作者可以编辑
func (s *Service) Update(ctx context.Context, actor model.Actor, id uuid.UUID, content string) (*model.Comment, error) {
	content, err := validateContent(content)
	if err != nil {
		return nil, err
	}
	cm, err := s.findLive(ctx, id)
	if err != nil {
		return nil, err
	}
	if cm.AuthorID != actor.ID {
		return nil, model.ErrForbidden
	}
	if err := s.comments.UpdateContent(ctx, id, content); err != nil {
		return nil, err
	}
	return s.comments.FindByID(ctx, id)
}

// Delete 作者或有审核权限的用户可以删除（软删除）
func (s *Service) Delete(ctx context.Context, actor model.Actor, id uuid.UUID) error {
	cm, err := s.findLive(ctx, id)
	if err != nil {
		return err
	}
	if cm.AuthorID != actor.ID && !rbac.Can(actor.Role, rbac.PermissionModerateComments) {
		return model.ErrForbidden
	}
	if err := s.comments.SoftDelete(ctx, id); err != nil {
		return err
	}
	logger.WithTrace(ctx, s.logger).Info("Comment deleted",
		zap.String("comment_id", id.String()),
		zap.String("actor_id", actor.ID.String()),
	)
	return nil
}

// ToggleLike 点赞/取消点赞
func (s *Service) ToggleLike(ctx context.Context, userID, id uuid.UUID) (*model.LikeState, error) {
	if _, err := s.findLive(ctx, id); err != nil {
		return nil, err
	}
	return s.comments.ToggleLike(ctx, id, userID)
}

// Report 同一用户对同一评论只能举报一次；举报不会隐藏评论
func (s *Service) Report(ctx context.Context, userID, id uuid.UUID, reason model.ReportReason) error {
	if !reason.Valid() {
		return model.NewValidationError("reason", "Valid report reason is required")
	}
	if _, err := s.findLive(ctx, id); err != nil {
		return err
	}
	return s.comments.AddReport(ctx, &model.CommentReport{CommentID: id, UserID: userID, Reason: reason})
}

func (s *Service) ListReported(ctx context.Context, page query.Page) (*UserPage, error) {
	comments, total, err := s.comments.ListReported(ctx, page)
	if err != nil {
		return nil, err
	}
	if comments == nil {
		comments = []*model.Comment{}
	}
	return &UserPage{Comments: comments, Pagination: query.NewPagination(page, total)}, nil
}

// Moderate hide 软删除评论，dismiss 清除举报标记
func (s *Service) Moderate(ctx context.Context, actor model.Actor, id uuid.UUID, action model.ModerationAction) (*model.Comment, error) {
	if err := rbac.CheckPermission(actor.Role, rbac.PermissionModerateComments); err != nil {
		return nil, err
	}
	if action != model.ModerationHide && action != model.ModerationDismiss {
		return nil, model.NewValidationError("action", "Action must be hide or dismiss")
	}
	if err := s.comments.Moderate(ctx, id, action, actor.ID); err != nil {
		return nil, err
	}
	logger.WithTrace(ctx, s.logger).Info("Comment moderated",
		zap.String("comment_id", id.String()),
		zap.String("action", string(action)),
		zap.String("moderator_id", actor.ID.String()),
	)
	return s.comments.FindByID(ctx, id)
}
