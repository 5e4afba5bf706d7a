package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"crowdfundin/internal/model"
	"crowdfundin/internal/repository"
	"crowdfundin/internal/repository/query"
	"crowdfundin/internal/service/donation"
)

type DonationService interface {
	CreateOrder(ctx context.Context, userID uuid.UUID, in donation.CreateOrderInput) (*donation.OrderResult, error)
	VerifyPayment(ctx context.Context, userID uuid.UUID, in donation.VerifyPaymentInput) (*model.Donation, error)
	ListForCampaign(ctx context.Context, campaignID uuid.UUID, p query.Page) (*donation.Page, error)
	ListMine(ctx context.Context, userID uuid.UUID, p query.Page) (*donation.Page, error)
	History(ctx context.Context, f repository.DonationFilter) (*donation.Page, error)
	Stats(ctx context.Context) (*repository.DonationStats, error)
}

type DonationHandler struct {
	donations DonationService
	logger    *zap.Logger
}

func NewDonationHandler(donations DonationService, logger *zap.Logger) *DonationHandler {
	return &DonationHandler{donations: donations, logger: logger}
}

// CreateOrder handles POST /api/donations/create-order
func (h *DonationHandler) CreateOrder(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}

	var req struct {
		CampaignID  string          `json:"campaignId" binding:"required,uuid"`
		Amount      decimal.Decimal `json:"amount"`
		IsAnonymous bool            `json:"isAnonymous"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	order, err := h.donations.CreateOrder(c.Request.Context(), actor.ID, donation.CreateOrderInput{
		CampaignID:  uuid.MustParse(req.CampaignID),
		Amount:      req.Amount,
		IsAnonymous: req.IsAnonymous,
	})
	if err != nil {
		respondError(c, h.logger, err, "Campaign")
		return
	}
	c.JSON(http.StatusOK, order)
}

// VerifyPayment handles POST /api/donations/verify-payment
func (h *DonationHandler) VerifyPayment(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}

	var req struct {
		OrderID     string          `json:"razorpay_order_id" binding:"required"`
		PaymentID   string          `json:"razorpay_payment_id" binding:"required"`
		Signature   string          `json:"razorpay_signature" binding:"required"`
		CampaignID  string          `json:"campaignId" binding:"required,uuid"`
		Amount      decimal.Decimal `json:"amount"`
		Message     string          `json:"message" binding:"max=500"`
		IsAnonymous bool            `json:"isAnonymous"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	d, err := h.donations.VerifyPayment(c.Request.Context(), actor.ID, donation.VerifyPaymentInput{
		OrderID:     req.OrderID,
		PaymentID:   req.PaymentID,
		Signature:   req.Signature,
		CampaignID:  uuid.MustParse(req.CampaignID),
		Amount:      req.Amount,
		Message:     req.Message,
		IsAnonymous: req.IsAnonymous,
	})
	if err != nil {
		respondError(c, h.logger, err, "Campaign")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Donation successful!", "donation": d})
}

// ListForCampaign handles GET /api/donations/campaign/:id
func (h *DonationHandler) ListForCampaign(c *gin.Context) {
	id, ok := uuidParam(c, "id", "Campaign")
	if !ok {
		return
	}
	page, err := h.donations.ListForCampaign(c.Request.Context(), id, pageFrom(c, 10))
	if err != nil {
		respondError(c, h.logger, err, "Campaign")
		return
	}
	c.JSON(http.StatusOK, page)
}

// ListMine handles GET /api/donations/my-donations
func (h *DonationHandler) ListMine(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	page, err := h.donations.ListMine(c.Request.Context(), actor.ID, pageFrom(c, 10))
	if err != nil {
		respondError(c, h.logger, err, "Donation")
		return
	}
	c.JSON(http.StatusOK, page)
}

// Stats handles GET /api/donations/stats
func (h *DonationHandler) Stats(c *gin.Context) {
	stats, err := h.donations.Stats(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err, "Donation")
		return
	}
	c.JSON(http.StatusOK, stats)
}
