package database

import (
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"nil", nil, ErrorClassPermanent},
		{"unique violation", &pq.Error{Code: "23505"}, ErrorClassConflict},
		{"serialization failure", &pq.Error{Code: "40001"}, ErrorClassLock},
		{"deadlock", fmt.Errorf("update stock: %w", &pq.Error{Code: "40P01"}), ErrorClassLock},
		{"lock not available", &pq.Error{Code: "55P03"}, ErrorClassLock},
		{"syntax error", &pq.Error{Code: "42601"}, ErrorClassPermanent},
		{"plain error", errors.New("boom"), ErrorClassPermanent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyError(tt.err))
		})
	}
}

func TestIsUniqueViolation(t *testing.T) {
	err := fmt.Errorf("settle order: %w", &pq.Error{Code: "23505", Constraint: "account_entries_order_id_key"})

	assert.True(t, IsUniqueViolation(err, "account_entries_order_id_key"))
	assert.True(t, IsUniqueViolation(err, ""))
	assert.False(t, IsUniqueViolation(err, "return_requests_order_id_key"))
	assert.False(t, IsUniqueViolation(&pq.Error{Code: "23503"}, ""))
	assert.False(t, IsUniqueViolation(errors.New("boom"), ""))
}

func TestSentinelGroups(t *testing.T) {
	assert.True(t, IsConflict(fmt.Errorf("%w: paid -> paid", ErrInvalidTransition)))
	assert.True(t, IsConflict(ErrLockTimeout))
	assert.False(t, IsConflict(ErrOrderNotFound))

	assert.True(t, IsNotFound(fmt.Errorf("%w: 7", ErrDiscountNotFound)))
	assert.True(t, IsNotFound(ErrMembershipNotFound))
	assert.False(t, IsNotFound(ErrCartEmpty))
}
