package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/safar/hardware-store/internal/database"
	"github.com/safar/hardware-store/internal/lifecycle"
	"github.com/safar/hardware-store/internal/models"
	"github.com/safar/hardware-store/internal/store"
)

type membershipRequest struct {
	Level models.MembershipLevel `json:"level" binding:"required,oneof=SILVER GOLD PLATINUM"`
	Note  string                 `json:"note" binding:"max=1000"`
}

func (h *Handler) RequestMembership(c *gin.Context) {
	var req membershipRequest
	if err := bind(c, &req); err != nil {
		h.fail(c, err)
		return
	}

	r, err := store.RequestMembership(c.Request.Context(), h.db, userID(c), req.Level, strings.TrimSpace(req.Note))
	if err != nil {
		h.fail(c, err)
		return
	}
	respondOK(c, http.StatusCreated, r)
}

type membershipView struct {
	// Level is the tier pricing uses right now.
	Level      models.MembershipLevel `json:"level"`
	Held       models.MembershipLevel `json:"held_level"`
	Membership *models.UserMembership `json:"membership,omitempty"`
}

func (h *Handler) GetMembership(c *gin.Context) {
	ctx := c.Request.Context()

	user, err := store.GetUser(ctx, h.db, userID(c))
	if err != nil {
		h.fail(c, err)
		return
	}

	m, err := store.GetMembership(ctx, h.db, user.ID)
	if err != nil && !errors.Is(err, database.ErrMembershipNotFound) {
		h.fail(c, err)
		return
	}

	respondOK(c, http.StatusOK, membershipView{
		Level:      lifecycle.EffectiveLevel(user.MembershipLevel, m, time.Now()),
		Held:       user.MembershipLevel,
		Membership: m,
	})
}
