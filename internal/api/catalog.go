package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/safar/hardware-store/internal/models"
	"github.com/safar/hardware-store/internal/store"
	"github.com/shopspring/decimal"
)

func (h *Handler) ListProducts(c *gin.Context) {
	page, pageSize := pageParams(c)

	result, err := store.ListProducts(c.Request.Context(), h.db, page, pageSize)
	if err != nil {
		h.fail(c, err)
		return
	}
	respondOK(c, http.StatusOK, result)
}

func (h *Handler) GetProduct(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		h.fail(c, err)
		return
	}

	product, err := store.GetProduct(c.Request.Context(), h.db, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	respondOK(c, http.StatusOK, product)
}

type createProductRequest struct {
	SKU         string          `json:"sku" binding:"required,max=64"`
	Name        string          `json:"name" binding:"required,max=255"`
	Description string          `json:"description"`
	Unit        string          `json:"unit" binding:"max=32"`
	ImageURL    string          `json:"image_url" binding:"omitempty,url"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock" binding:"gte=0"`
}

func (h *Handler) CreateProduct(c *gin.Context) {
	var req createProductRequest
	if err := bind(c, &req); err != nil {
		h.fail(c, err)
		return
	}
	if !req.Price.IsPositive() {
		h.fail(c, invalid("price", "price must be greater than 0", "gt"))
		return
	}

	product, err := store.CreateProduct(c.Request.Context(), h.db, store.NewProduct{
		SKU:         strings.TrimSpace(req.SKU),
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		Unit:        req.Unit,
		ImageURL:    req.ImageURL,
		Price:       req.Price,
		Stock:       req.Stock,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	respondOK(c, http.StatusCreated, product)
}

func (h *Handler) ListDiscounts(c *gin.Context) {
	discounts, err := store.ListValidDiscounts(c.Request.Context(), h.db, time.Now())
	if err != nil {
		h.fail(c, err)
		return
	}
	respondOK(c, http.StatusOK, discounts)
}

type createDiscountRequest struct {
	Name       string                   `json:"name" binding:"required,max=255"`
	Type       models.DiscountType      `json:"type" binding:"required,oneof=MEMBER PICKUP LIMITED_TIME"`
	ValueType  models.DiscountValueType `json:"value_type" binding:"required,oneof=PERCENTAGE FIXED"`
	Value      decimal.Decimal          `json:"value"`
	MinAmount  *decimal.Decimal         `json:"min_amount"`
	StartAt    *time.Time               `json:"start_at"`
	EndAt      *time.Time               `json:"end_at"`
	Code       *string                  `json:"code" binding:"omitempty,max=64"`
	MemberOnly bool                     `json:"member_only"`
	PickupOnly bool                     `json:"pickup_only"`
	Exclusive  bool                     `json:"exclusive"`
}

func (r createDiscountRequest) validate() error {
	switch {
	case !r.Value.IsPositive():
		return invalid("value", "value must be greater than 0", "gt")
	case r.ValueType == models.ValuePercentage && r.Value.GreaterThan(decimal.NewFromInt(100)):
		return invalid("value", "percentage must be at most 100", "lte")
	case r.MinAmount != nil && r.MinAmount.IsNegative():
		return invalid("min_amount", "min_amount must not be negative", "gte")
	case r.StartAt != nil && r.EndAt != nil && r.EndAt.Before(*r.StartAt):
		return invalid("end_at", "end_at must not be before start_at", "gtefield")
	}
	return nil
}

func (h *Handler) CreateDiscount(c *gin.Context) {
	var req createDiscountRequest
	if err := bind(c, &req); err != nil {
		h.fail(c, err)
		return
	}
	if err := req.validate(); err != nil {
		h.fail(c, err)
		return
	}

	nd := store.NewDiscount{
		Name:       strings.TrimSpace(req.Name),
		Type:       req.Type,
		ValueType:  req.ValueType,
		Value:      req.Value,
		MinAmount:  req.MinAmount,
		EndAt:      req.EndAt,
		Code:       req.Code,
		MemberOnly: req.MemberOnly,
		PickupOnly: req.PickupOnly,
		Exclusive:  req.Exclusive,
	}
	if req.StartAt != nil {
		nd.StartAt = *req.StartAt
	}

	discount, err := store.CreateDiscount(c.Request.Context(), h.db, nd)
	if err != nil {
		h.fail(c, err)
		return
	}
	respondOK(c, http.StatusCreated, discount)
}

func (h *Handler) Track(c *gin.Context) {
	events, err := h.tracker.Track(c.Request.Context(), c.Param("number"))
	if err != nil {
		h.fail(c, err)
		return
	}
	respondOK(c, http.StatusOK, events)
}
