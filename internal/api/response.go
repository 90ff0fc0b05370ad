package api

import (
	"errors"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/safar/hardware-store/internal/auth"
	"github.com/safar/hardware-store/internal/checkout"
	"github.com/safar/hardware-store/internal/courier"
	"github.com/safar/hardware-store/internal/database"
	"github.com/safar/hardware-store/internal/payment"
	"github.com/safar/hardware-store/internal/store"
	"go.uber.org/zap"
)

const genericFailure = "something went wrong, please try again"

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type APIResponse struct {
	Success bool         `json:"success"`
	Data    interface{}  `json:"data,omitempty"`
	Message string       `json:"message,omitempty"`
	Errors  []FieldError `json:"errors,omitempty"`
}

// validationError carries field errors found outside the binding validator.
type validationError struct {
	fields []FieldError
}

func (e *validationError) Error() string {
	return "validation failed"
}

func invalid(field, message, code string) error {
	return &validationError{fields: []FieldError{{Field: field, Message: message, Code: code}}}
}

var errForbidden = errors.New("forbidden")

var registerTagNames sync.Once

// useJSONFieldNames makes validator report json names instead of Go field names.
func useJSONFieldNames() {
	registerTagNames.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name == "" {
				name = fld.Name
			}
			return name
		})
	})
}

func respondOK(c *gin.Context, status int, data interface{}) {
	c.JSON(status, APIResponse{Success: true, Data: data})
}

func respondMessage(c *gin.Context, status int, message string, fields []FieldError) {
	c.AbortWithStatusJSON(status, APIResponse{Success: false, Message: message, Errors: fields})
}

func fieldErrors(ve validator.ValidationErrors) []FieldError {
	out := make([]FieldError, 0, len(ve))
	for _, fe := range ve {
		out = append(out, FieldError{
			Field:   fe.Field(),
			Message: fieldMessage(fe),
			Code:    fe.Tag(),
		})
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "required_if":
		return fe.Field() + " is required for this shipping method"
	case "email":
		return fe.Field() + " must be a valid email address"
	case "oneof":
		return fe.Field() + " must be one of: " + fe.Param()
	case "min", "gte":
		return fe.Field() + " must be at least " + fe.Param()
	case "max", "lte":
		return fe.Field() + " must be at most " + fe.Param()
	case "gt":
		return fe.Field() + " must be greater than " + fe.Param()
	}
	return fe.Field() + " is invalid"
}

// statusFor maps an error onto the status and caller-facing message.
// Unexpected errors get a generic message; the caller logs them.
func statusFor(err error) (int, string, []FieldError) {
	var ve validator.ValidationErrors
	var vErr *validationError

	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, "validation failed", fieldErrors(ve)
	case errors.As(err, &vErr):
		return http.StatusBadRequest, "validation failed", vErr.fields
	case errors.Is(err, store.ErrInvalidCursor):
		return http.StatusBadRequest, "validation failed", []FieldError{{Field: "cursor", Message: store.ErrInvalidCursor.Error(), Code: "cursor"}}
	case errors.Is(err, auth.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized", nil
	case errors.Is(err, errForbidden):
		return http.StatusForbidden, "unauthorized", nil
	case errors.Is(err, payment.ErrInvalidSignature), errors.Is(err, payment.ErrBadMetadata),
		errors.Is(err, checkout.ErrPaymentMismatch):
		return http.StatusBadRequest, "invalid payment notification", nil
	case errors.Is(err, courier.ErrNotRegistered):
		return http.StatusNotFound, courier.ErrNotRegistered.Error(), nil
	case errors.Is(err, courier.ErrUpstream):
		return http.StatusBadGateway, courier.ErrUpstream.Error(), nil
	case database.IsNotFound(err):
		return http.StatusNotFound, err.Error(), nil
	case database.IsConflict(err):
		return http.StatusConflict, err.Error(), nil
	}
	return http.StatusInternalServerError, genericFailure, nil
}

func (h *Handler) fail(c *gin.Context, err error) {
	status, message, fields := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("trace_id", traceID(c)),
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int64("user_id", userID(c)),
			zap.Error(err),
		)
	}
	respondMessage(c, status, message, fields)
}

// bind decodes the JSON body and runs struct validation.
func bind(c *gin.Context, dst interface{}) error {
	if err := c.ShouldBindJSON(dst); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			return ve
		}
		return invalid("body", "request body is not valid JSON", "json")
	}
	return nil
}
