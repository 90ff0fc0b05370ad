package database

import (
	"errors"

	"github.com/lib/pq"
)

type ErrorClass int

const (
	ErrorClassPermanent ErrorClass = iota
	ErrorClassConflict
	ErrorClassLock
)

// ClassifyError sorts driver errors into the buckets the store reacts to.
// Nothing is retried: WithTransaction reports lock errors as ErrLockTimeout.
func ClassifyError(err error) ErrorClass {
	if err == nil {
		return ErrorClassPermanent
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505":
			return ErrorClassConflict
		case "40001", "40P01", "55P03":
			return ErrorClassLock
		}
	}

	return ErrorClassPermanent
}

// IsUniqueViolation reports whether err is a unique-constraint violation on
// the named constraint. An empty constraint matches any unique violation.
func IsUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != "23505" {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrProductNotFound    = errors.New("product not found")
	ErrOrderNotFound      = errors.New("order not found")
	ErrCartNotFound       = errors.New("cart not found")
	ErrCartItemNotFound   = errors.New("cart item not found")
	ErrDiscountNotFound   = errors.New("discount not found")
	ErrReturnNotFound     = errors.New("return request not found")
	ErrRequestNotFound    = errors.New("membership request not found")
	ErrMembershipNotFound = errors.New("membership not found")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrLockTimeout        = errors.New("lock timeout")

	// State conflicts. Their messages are shown to the caller as-is.
	ErrCartEmpty            = errors.New("cart is empty")
	ErrInvalidTransition    = errors.New("order status does not allow this action")
	ErrReturnNotAllowed     = errors.New("only paid or shipped orders can be returned")
	ErrReturnExists         = errors.New("a return request already exists for this order")
	ErrReturnResolved       = errors.New("return request has already been resolved")
	ErrAlreadySettled       = errors.New("order has already been settled")
	ErrNotPaid              = errors.New("order has not been paid")
	ErrPendingRequestExists = errors.New("a membership request is already pending")
	ErrRequestProcessed     = errors.New("membership request has already been processed")
	ErrDuplicateSKU         = errors.New("a product with this SKU already exists")
	ErrDuplicateEmail       = errors.New("a user with this email already exists")
	ErrDuplicateCode        = errors.New("a discount with this code already exists")
)

// IsConflict reports whether err is one of the state-conflict sentinels.
func IsConflict(err error) bool {
	for _, target := range []error{
		ErrCartEmpty, ErrInvalidTransition, ErrReturnNotAllowed, ErrReturnExists,
		ErrReturnResolved, ErrAlreadySettled, ErrNotPaid, ErrPendingRequestExists,
		ErrRequestProcessed, ErrDuplicateSKU, ErrDuplicateEmail, ErrDuplicateCode, ErrInsufficientStock,
		ErrLockTimeout,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsNotFound reports whether err is one of the not-found sentinels.
func IsNotFound(err error) bool {
	for _, target := range []error{
		ErrUserNotFound, ErrProductNotFound, ErrOrderNotFound, ErrCartNotFound,
		ErrCartItemNotFound, ErrDiscountNotFound, ErrReturnNotFound, ErrRequestNotFound,
		ErrMembershipNotFound,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
