package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/safar/hardware-store/internal/database"
	"github.com/safar/hardware-store/internal/events"
	"github.com/safar/hardware-store/internal/models"
	"github.com/safar/hardware-store/internal/store"
	"go.uber.org/zap"
)

func (h *Handler) ListUsers(c *gin.Context) {
	page, pageSize := pageParams(c)

	result, err := store.ListUsers(c.Request.Context(), h.db, page, pageSize)
	if err != nil {
		h.fail(c, err)
		return
	}
	respondOK(c, http.StatusOK, result)
}

type createUserRequest struct {
	Email string      `json:"email" binding:"required,email,max=255"`
	Name  string      `json:"name" binding:"required,max=255"`
	Role  models.Role `json:"role" binding:"omitempty,oneof=user admin"`
}

func (h *Handler) CreateUser(c *gin.Context) {
	var req createUserRequest
	if err := bind(c, &req); err != nil {
		h.fail(c, err)
		return
	}

	user, err := store.CreateUser(c.Request.Context(), h.db, strings.ToLower(strings.TrimSpace(req.Email)), req.Name, req.Role)
	if err != nil {
		h.fail(c, err)
		return
	}
	respondOK(c, http.StatusCreated, user)
}

func (h *Handler) ListOrders(c *gin.Context) {
	page, pageSize := pageParams(c)
	status := models.OrderStatus(c.Query("status"))

	result, err := store.ListOrdersByStatus(c.Request.Context(), h.db, status, page, pageSize)
	if err != nil {
		h.fail(c, err)
		return
	}
	respondOK(c, http.StatusOK, result)
}

func (h *Handler) emit(c *gin.Context, e events.Event) {
	events.Emit(c.Request.Context(), h.publisher, h.logger, e)
}

// ConfirmPayment marks a bank transfer as received. A Stripe order whose
// webhook never arrived is finalized the same way the webhook would.
func (h *Handler) ConfirmPayment(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		h.fail(c, err)
		return
	}
	ctx := c.Request.Context()

	order, err := store.GetOrder(ctx, h.db, id)
	if err != nil {
		h.fail(c, err)
		return
	}

	switch {
	case order.Status == models.OrderStatusCancelled:
		err = database.ErrInvalidTransition
	case order.PaymentMethod == models.PaymentStripe:
		var finalized bool
		order, finalized, err = store.FinalizeOrder(ctx, h.db, id)
		if err == nil && !finalized {
			err = database.ErrInvalidTransition
		}
	default:
		order, err = store.ConfirmPayment(ctx, h.db, id)
	}
	if err != nil {
		h.fail(c, err)
		return
	}

	h.logger.Info("payment confirmed", zap.Int64("order_id", order.ID), zap.Int64("admin_id", userID(c)))
	h.emit(c, events.Event{
		Type:        events.OrderPaid,
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		Status:      string(order.Status),
		Amount:      order.TotalAmount,
	})
	respondOK(c, http.StatusOK, order)
}

type shipRequest struct {
	TrackingNumber string `json:"tracking_number" binding:"max=64"`
}

func (h *Handler) ShipOrder(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		h.fail(c, err)
		return
	}

	var req shipRequest
	if err := bind(c, &req); err != nil {
		h.fail(c, err)
		return
	}
	tracking := strings.TrimSpace(req.TrackingNumber)

	current, err := store.GetOrder(c.Request.Context(), h.db, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	if current.ShippingMethod == models.ShippingDelivery && tracking == "" {
		h.fail(c, invalid("tracking_number", "tracking_number is required for delivery orders", "required"))
		return
	}

	order, err := store.MarkShipped(c.Request.Context(), h.db, id, tracking)
	if err != nil {
		h.fail(c, err)
		return
	}
	respondOK(c, http.StatusOK, order)
}

func (h *Handler) CompleteOrder(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		h.fail(c, err)
		return
	}

	order, err := store.CompleteOrder(c.Request.Context(), h.db, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	respondOK(c, http.StatusOK, order)
}

func (h *Handler) CancelOrder(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		h.fail(c, err)
		return
	}

	order, err := store.CancelOrder(c.Request.Context(), h.db, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	respondOK(c, http.StatusOK, order)
}

func (h *Handler) SettleOrder(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		h.fail(c, err)
		return
	}

	entry, err := store.SettleOrder(c.Request.Context(), h.db, id)
	if err != nil {
		h.fail(c, err)
		return
	}

	h.emit(c, events.Event{
		Type:        events.OrderSettled,
		OrderID:     entry.OrderID,
		OrderNumber: entry.OrderNumber,
		Amount:      entry.TotalAmount,
	})
	respondOK(c, http.StatusCreated, entry)
}

func (h *Handler) ListReturns(c *gin.Context) {
	status := models.ReturnStatus(c.DefaultQuery("status", string(models.ReturnPending)))
	if status == "ALL" {
		status = ""
	}

	returns, err := store.ListReturnRequests(c.Request.Context(), h.db, status)
	if err != nil {
		h.fail(c, err)
		return
	}
	respondOK(c, http.StatusOK, returns)
}

func (h *Handler) GetReturn(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		h.fail(c, err)
		return
	}

	rr, err := store.GetReturnRequest(c.Request.Context(), h.db, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	respondOK(c, http.StatusOK, rr)
}

type resolveReturnRequest struct {
	Decision  models.ReturnStatus `json:"decision" binding:"required,oneof=APPROVED REJECTED REFUNDED"`
	AdminNote string              `json:"admin_note" binding:"max=2000"`
}

func (h *Handler) ResolveReturn(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		h.fail(c, err)
		return
	}

	var req resolveReturnRequest
	if err := bind(c, &req); err != nil {
		h.fail(c, err)
		return
	}

	rr, err := store.ResolveReturnRequest(c.Request.Context(), h.db, id, req.Decision, strings.TrimSpace(req.AdminNote))
	if err != nil {
		h.fail(c, err)
		return
	}

	h.emit(c, events.Event{
		Type:    events.ReturnResolved,
		OrderID: rr.OrderID,
		UserID:  rr.UserID,
		Status:  string(rr.Status),
	})
	respondOK(c, http.StatusOK, rr)
}

func (h *Handler) ListMembershipRequests(c *gin.Context) {
	status := models.RequestStatus(c.DefaultQuery("status", string(models.RequestPending)))
	if status == "ALL" {
		status = ""
	}

	requests, err := store.ListMembershipRequests(c.Request.Context(), h.db, status)
	if err != nil {
		h.fail(c, err)
		return
	}
	respondOK(c, http.StatusOK, requests)
}

type processMembershipRequest struct {
	Decision models.RequestStatus `json:"decision" binding:"required,oneof=APPROVED REJECTED"`
}

func (h *Handler) ProcessMembershipRequest(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		h.fail(c, err)
		return
	}

	var req processMembershipRequest
	if err := bind(c, &req); err != nil {
		h.fail(c, err)
		return
	}

	approve := req.Decision == models.RequestApproved
	processed, err := store.ProcessMembershipRequest(c.Request.Context(), h.db, id, approve, h.membershipValidity)
	if err != nil {
		h.fail(c, err)
		return
	}
	respondOK(c, http.StatusOK, processed)
}
