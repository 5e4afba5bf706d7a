package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"crowdfundin/internal/model"
	"crowdfundin/internal/repository"
	"crowdfundin/internal/repository/query"
	"crowdfundin/internal/service/comment"
)

type CommentService interface {
	Create(ctx context.Context, authorID uuid.UUID, in comment.CreateInput) (*model.Comment, error)
	ListForCampaign(ctx context.Context, campaignID uuid.UUID, sort query.Sort, page query.Page) (*comment.Page, error)
	ListByUser(ctx context.Context, userID uuid.UUID, page query.Page) (*comment.UserPage, error)
	Update(ctx context.Context, actor model.Actor, id uuid.UUID, content string) (*model.Comment, error)
	Delete(ctx context.Context, actor model.Actor, id uuid.UUID) error
	ToggleLike(ctx context.Context, userID, id uuid.UUID) (*model.LikeState, error)
	Report(ctx context.Context, userID, id uuid.UUID, reason model.ReportReason) error
	ListReported(ctx context.Context, page query.Page) (*comment.UserPage, error)
	Moderate(ctx context.Context, actor model.Actor, id uuid.UUID, action model.ModerationAction) (*model.Comment, error)
}

type CommentHandler struct {
	comments CommentService
	logger   *zap.Logger
}

func NewCommentHandler(comments CommentService, logger *zap.Logger) *CommentHandler {
	return &CommentHandler{comments: comments, logger: logger}
}

// ListForCampaign handles GET /api/comments/campaign/:id?sort=&order=&page=&limit=
func (h *CommentHandler) ListForCampaign(c *gin.Context) {
	id, ok := uuidParam(c, "id", "Campaign")
	if !ok {
		return
	}
	sort := query.ParseSort(c.Query("sort"), c.Query("order"), repository.CommentSortColumns, "createdAt")
	page, err := h.comments.ListForCampaign(c.Request.Context(), id, sort, pageFrom(c, 10))
	if err != nil {
		respondError(c, h.logger, err, "Campaign")
		return
	}
	c.JSON(http.StatusOK, page)
}

// ListByUser handles GET /api/comments/user/:userId
func (h *CommentHandler) ListByUser(c *gin.Context) {
	id, ok := uuidParam(c, "userId", "User")
	if !ok {
		return
	}
	page, err := h.comments.ListByUser(c.Request.Context(), id, pageFrom(c, 10))
	if err != nil {
		respondError(c, h.logger, err, "User")
		return
	}
	c.JSON(http.StatusOK, page)
}

// Create handles POST /api/comments
func (h *CommentHandler) Create(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}

	var req struct {
		CampaignID    string `json:"campaignId" binding:"required,uuid"`
		Content       string `json:"content" binding:"required,max=1000"`
		ParentComment string `json:"parentComment" binding:"omitempty,uuid"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	parentID, err := optionalUUID(req.ParentComment, "parentComment")
	if err != nil {
		respondError(c, h.logger, err, "Comment")
		return
	}

	created, err := h.comments.Create(c.Request.Context(), actor.ID, comment.CreateInput{
		CampaignID: uuid.MustParse(req.CampaignID),
		Content:    req.Content,
		ParentID:   parentID,
	})
	if err != nil {
		subject := "Campaign"
		if parentID != nil {
			subject = "Campaign or parent comment"
		}
		respondError(c, h.logger, err, subject)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Comment added successfully", "comment": created})
}

// Update handles PUT /api/comments/:id
func (h *CommentHandler) Update(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id", "Comment")
	if !ok {
		return
	}

	var req struct {
		Content string `json:"content" binding:"required,max=1000"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	updated, err := h.comments.Update(c.Request.Context(), actor, id, req.Content)
	if err != nil {
		respondError(c, h.logger, err, "Comment")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Comment updated successfully", "comment": updated})
}

// Delete handles DELETE /api/comments/:id
func (h *CommentHandler) Delete(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id", "Comment")
	if !ok {
		return
	}
	if err := h.comments.Delete(c.Request.Context(), actor, id); err != nil {
		respondError(c, h.logger, err, "Comment")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Comment deleted successfully"})
}

// Like handles POST /api/comments/:id/like
func (h *CommentHandler) Like(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id", "Comment")
	if !ok {
		return
	}
	state, err := h.comments.ToggleLike(c.Request.Context(), actor.ID, id)
	if err != nil {
		respondError(c, h.logger, err, "Comment")
		return
	}

	message := "Comment unliked"
	if state.IsLiked {
		message = "Comment liked"
	}
	c.JSON(http.StatusOK, gin.H{
		"message":   message,
		"isLiked":   state.IsLiked,
		"likeCount": state.LikeCount,
	})
}

// Report handles POST /api/comments/:id/report
func (h *CommentHandler) Report(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id", "Comment")
	if !ok {
		return
	}

	var req struct {
		Reason string `json:"reason" binding:"required,oneof=spam inappropriate offensive harassment other"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	if err := h.comments.Report(c.Request.Context(), actor.ID, id, model.ReportReason(req.Reason)); err != nil {
		respondError(c, h.logger, err, "Comment")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Comment reported successfully"})
}

// ListReported handles GET /api/admin/comments/reported
func (h *CommentHandler) ListReported(c *gin.Context) {
	page, err := h.comments.ListReported(c.Request.Context(), pageFrom(c, 20))
	if err != nil {
		respondError(c, h.logger, err, "Comment")
		return
	}
	c.JSON(http.StatusOK, page)
}

// Moderate handles PUT /api/admin/comments/:id/moderate
func (h *CommentHandler) Moderate(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id", "Comment")
	if !ok {
		return
	}

	var req struct {
		Action string `json:"action" binding:"required,oneof=hide dismiss"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	moderated, err := h.comments.Moderate(c.Request.Context(), actor, id, model.ModerationAction(req.Action))
	if err != nil {
		respondError(c, h.logger, err, "Comment")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Comment moderated successfully", "comment": moderated})
}
