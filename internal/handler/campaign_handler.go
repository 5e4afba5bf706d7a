package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"crowdfundin/internal/model"
	"crowdfundin/internal/repository"
	"crowdfundin/internal/repository/query"
	"crowdfundin/internal/service/campaign"
)

type CampaignService interface {
	Create(ctx context.Context, ownerID uuid.UUID, in campaign.CreateInput) (*model.Campaign, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Campaign, error)
	List(ctx context.Context, f repository.CampaignFilter) (*campaign.Page, error)
}

type CampaignHandler struct {
	campaigns CampaignService
	logger    *zap.Logger
}

func NewCampaignHandler(campaigns CampaignService, logger *zap.Logger) *CampaignHandler {
	return &CampaignHandler{campaigns: campaigns, logger: logger}
}

// Create handles POST /api/campaigns
func (h *CampaignHandler) Create(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}

	var req struct {
		Title       string          `json:"title" binding:"required,max=100"`
		Description string          `json:"description" binding:"required,max=2000"`
		Category    string          `json:"category" binding:"required,max=50"`
		GoalAmount  decimal.Decimal `json:"goalAmount"`
		Deadline    time.Time       `json:"deadline"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	created, err := h.campaigns.Create(c.Request.Context(), actor.ID, campaign.CreateInput{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		GoalAmount:  req.GoalAmount,
		Deadline:    req.Deadline,
	})
	if err != nil {
		respondError(c, h.logger, err, "Campaign")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Campaign created successfully", "campaign": created})
}

// List handles GET /api/campaigns?search=&status=&category=&sortBy=&order=&page=&limit=
func (h *CampaignHandler) List(c *gin.Context) {
	page, err := h.campaigns.List(c.Request.Context(), repository.CampaignFilter{
		Search:   c.Query("search"),
		Status:   model.CampaignStatus(c.Query("status")),
		Category: c.Query("category"),
		Sort:     query.ParseSort(c.Query("sortBy"), c.Query("order"), repository.CampaignSortColumns, "createdAt"),
		Page:     pageFrom(c, 12),
	})
	if err != nil {
		respondError(c, h.logger, err, "Campaign")
		return
	}
	c.JSON(http.StatusOK, page)
}

// Get handles GET /api/campaigns/:id
func (h *CampaignHandler) Get(c *gin.Context) {
	id, ok := uuidParam(c, "id", "Campaign")
	if !ok {
		return
	}
	found, err := h.campaigns.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err, "Campaign")
		return
	}
	c.JSON(http.StatusOK, gin.H{"campaign": found})
}
