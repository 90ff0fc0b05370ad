package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/safar/hardware-store/internal/store"
)

func (h *Handler) GetCart(c *gin.Context) {
	cart, err := store.GetCart(c.Request.Context(), h.db, userID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	respondOK(c, http.StatusOK, cart)
}

type addCartItemRequest struct {
	ProductID int64  `json:"product_id" binding:"required,gt=0"`
	Variant   string `json:"variant" binding:"max=64"`
	Quantity  int    `json:"quantity" binding:"required,gt=0,lte=999"`
}

func (h *Handler) AddCartItem(c *gin.Context) {
	var req addCartItemRequest
	if err := bind(c, &req); err != nil {
		h.fail(c, err)
		return
	}

	cart, err := store.AddCartItem(c.Request.Context(), h.db, userID(c), req.ProductID, req.Variant, req.Quantity)
	if err != nil {
		h.fail(c, err)
		return
	}
	respondOK(c, http.StatusOK, cart)
}

type updateCartItemRequest struct {
	Variant  string `json:"variant" binding:"max=64"`
	Quantity int    `json:"quantity" binding:"gte=0,lte=999"`
}

// UpdateCartItem sets a line's quantity; zero removes the line.
func (h *Handler) UpdateCartItem(c *gin.Context) {
	productID, err := pathID(c, "productID")
	if err != nil {
		h.fail(c, err)
		return
	}

	var req updateCartItemRequest
	if err := bind(c, &req); err != nil {
		h.fail(c, err)
		return
	}

	cart, err := store.UpdateCartItem(c.Request.Context(), h.db, userID(c), productID, req.Variant, req.Quantity)
	if err != nil {
		h.fail(c, err)
		return
	}
	respondOK(c, http.StatusOK, cart)
}

func (h *Handler) RemoveCartItem(c *gin.Context) {
	productID, err := pathID(c, "productID")
	if err != nil {
		h.fail(c, err)
		return
	}

	cart, err := store.RemoveCartItem(c.Request.Context(), h.db, userID(c), productID, c.Query("variant"))
	if err != nil {
		h.fail(c, err)
		return
	}
	respondOK(c, http.StatusOK, cart)
}
