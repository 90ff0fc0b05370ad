// Package lifecycle holds the order state machine and the membership tier
// rules. It is pure: the store consults it while holding row locks.
package lifecycle

import (
	"fmt"
	"time"

	"github.com/safar/hardware-store/internal/database"
	"github.com/safar/hardware-store/internal/models"
)

var transitions = map[models.OrderStatus][]models.OrderStatus{
	models.OrderStatusPendingPayment: {
		models.OrderStatusPaid,
		models.OrderStatusCancelled,
	},
	models.OrderStatusPaid: {
		models.OrderStatusShipped,
		models.OrderStatusReturnRequested,
		models.OrderStatusCancelled,
	},
	models.OrderStatusShipped: {
		models.OrderStatusCompleted,
		models.OrderStatusReturnRequested,
	},
	models.OrderStatusReturnRequested: {
		models.OrderStatusReturnApproved,
		models.OrderStatusReturnRejected,
		models.OrderStatusReturnRefunded,
	},
	models.OrderStatusReturnApproved: {
		models.OrderStatusReturnRefunded,
	},
}

func CanTransition(from, to models.OrderStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition returns ErrInvalidTransition, wrapped with both states, when
// from cannot move to to.
func Transition(from, to models.OrderStatus) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", database.ErrInvalidTransition, from, to)
	}
	return nil
}

func IsTerminal(s models.OrderStatus) bool {
	return len(transitions[s]) == 0
}

// CanRequestReturn is true only for paid and shipped orders.
func CanRequestReturn(s models.OrderStatus) bool {
	return s == models.OrderStatusPaid || s == models.OrderStatusShipped
}

// OrderStatusForReturn is the order status mirrored from a return decision.
func OrderStatusForReturn(s models.ReturnStatus) (models.OrderStatus, error) {
	switch s {
	case models.ReturnPending:
		return models.OrderStatusReturnRequested, nil
	case models.ReturnApproved:
		return models.OrderStatusReturnApproved, nil
	case models.ReturnRejected:
		return models.OrderStatusReturnRejected, nil
	case models.ReturnRefunded:
		return models.OrderStatusReturnRefunded, nil
	}
	return "", fmt.Errorf("unknown return status %q", s)
}

// CanResolveReturn lists the return decisions reachable from current.
// PENDING may go to any decision; APPROVED may still be refunded.
func CanResolveReturn(current, next models.ReturnStatus) bool {
	switch current {
	case models.ReturnPending:
		return next == models.ReturnApproved || next == models.ReturnRejected || next == models.ReturnRefunded
	case models.ReturnApproved:
		return next == models.ReturnRefunded
	}
	return false
}

// PaymentStatusFor tracks payment alongside order status.
func PaymentStatusFor(s models.OrderStatus, current models.PaymentStatus) models.PaymentStatus {
	switch s {
	case models.OrderStatusPaid:
		return models.PaymentPaid
	case models.OrderStatusReturnRefunded:
		return models.PaymentRefunded
	}
	return current
}

// EffectiveLevel is the tier used for pricing. A paid tier without a
// membership window, or with one that has lapsed, counts as FREE.
func EffectiveLevel(level models.MembershipLevel, m *models.UserMembership, now time.Time) models.MembershipLevel {
	if level == "" || level == models.LevelFree {
		return models.LevelFree
	}
	if m == nil {
		return models.LevelFree
	}
	if now.Before(m.StartAt) || now.After(m.EndAt) {
		return models.LevelFree
	}
	return level
}

// MembershipWindow computes the validity window granted on approval. An
// unexpired membership is extended from its current end, not from now.
func MembershipWindow(existing *models.UserMembership, now time.Time, validity time.Duration) (time.Time, time.Time) {
	if existing != nil && existing.EndAt.After(now) {
		return existing.StartAt, existing.EndAt.Add(validity)
	}
	return now, now.Add(validity)
}
