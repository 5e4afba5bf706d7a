package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"crowdfundin/internal/model"
	"crowdfundin/internal/repository/query"
	"crowdfundin/internal/service/complaint"
)

type ComplaintService interface {
	Create(ctx context.Context, userID uuid.UUID, in complaint.CreateInput) (*model.Complaint, error)
	ListMine(ctx context.Context, userID uuid.UUID, status string, page query.Page) (*complaint.Page, error)
}

type ComplaintHandler struct {
	complaints ComplaintService
	logger     *zap.Logger
}

func NewComplaintHandler(complaints ComplaintService, logger *zap.Logger) *ComplaintHandler {
	return &ComplaintHandler{complaints: complaints, logger: logger}
}

// Create handles POST /api/complaints
func (h *ComplaintHandler) Create(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}

	var req struct {
		Campaign    string `json:"campaign" binding:"required,uuid"`
		Subject     string `json:"subject" binding:"required,max=200"`
		Description string `json:"description" binding:"required,min=10,max=1000"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	created, err := h.complaints.Create(c.Request.Context(), actor.ID, complaint.CreateInput{
		CampaignID:  uuid.MustParse(req.Campaign),
		Subject:     req.Subject,
		Description: req.Description,
	})
	if err != nil {
		respondError(c, h.logger, err, "Campaign")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Complaint submitted successfully", "complaint": created})
}

// ListMine handles GET /api/complaints/my-complaints?status=
func (h *ComplaintHandler) ListMine(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	page, err := h.complaints.ListMine(c.Request.Context(), actor.ID, c.Query("status"), pageFrom(c, 10))
	if err != nil {
		respondError(c, h.logger, err, "Complaint")
		return
	}
	c.JSON(http.StatusOK, page)
}
