package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// MembershipLevel is the tier a user holds; anything but FREE unlocks member-only discounts.
type MembershipLevel string

const (
	LevelFree     MembershipLevel = "FREE"
	LevelSilver   MembershipLevel = "SILVER"
	LevelGold     MembershipLevel = "GOLD"
	LevelPlatinum MembershipLevel = "PLATINUM"
)

func (l MembershipLevel) Valid() bool {
	switch l {
	case LevelFree, LevelSilver, LevelGold, LevelPlatinum:
		return true
	}
	return false
}

type User struct {
	ID              int64           `json:"id"`
	Email           string          `json:"email"`
	Name            string          `json:"name"`
	Role            Role            `json:"role"`
	MembershipLevel MembershipLevel `json:"membership_level"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	Version         int             `json:"version"`
}

type Product struct {
	ID            int64           `json:"id"`
	SKU           string          `json:"sku"`
	Name          string          `json:"name"`
	Description   string          `json:"description,omitempty"`
	Unit          string          `json:"unit,omitempty"`
	ImageURL      string          `json:"image_url,omitempty"`
	Price         decimal.Decimal `json:"price"`
	StockQuantity int             `json:"stock_quantity"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	Version       int             `json:"version"`
}

type Cart struct {
	ID        int64      `json:"id"`
	UserID    int64      `json:"user_id"`
	Items     []CartItem `json:"items"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// CartItem is joined with its product so pricing never needs a second lookup.
type CartItem struct {
	ID        int64           `json:"id"`
	CartID    int64           `json:"cart_id"`
	ProductID int64           `json:"product_id"`
	Variant   string          `json:"variant,omitempty"`
	Quantity  int             `json:"quantity"`
	Title     string          `json:"title"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	ImageURL  string          `json:"image_url,omitempty"`
}

type DiscountType string

const (
	DiscountMember      DiscountType = "MEMBER"
	DiscountPickup      DiscountType = "PICKUP"
	DiscountLimitedTime DiscountType = "LIMITED_TIME"
)

type DiscountValueType string

const (
	ValuePercentage DiscountValueType = "PERCENTAGE"
	ValueFixed      DiscountValueType = "FIXED"
)

type Discount struct {
	ID         int64             `json:"id"`
	Name       string            `json:"name"`
	Type       DiscountType      `json:"type"`
	ValueType  DiscountValueType `json:"value_type"`
	Value      decimal.Decimal   `json:"value"`
	MinAmount  *decimal.Decimal  `json:"min_amount,omitempty"`
	StartAt    time.Time         `json:"start_at"`
	EndAt      *time.Time        `json:"end_at,omitempty"`
	Code       *string           `json:"code,omitempty"`
	MemberOnly bool              `json:"member_only"`
	PickupOnly bool              `json:"pickup_only"`
	Exclusive  bool              `json:"exclusive"`
	Active     bool              `json:"active"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

type ShippingMethod string

const (
	ShippingDelivery ShippingMethod = "delivery"
	ShippingPickup   ShippingMethod = "pickup"
)

type PaymentMethod string

const (
	PaymentStripe       PaymentMethod = "stripe"
	PaymentBankTransfer PaymentMethod = "bank_transfer"
)

type OrderStatus string

const (
	OrderStatusPendingPayment  OrderStatus = "pending_payment"
	OrderStatusPaid            OrderStatus = "paid"
	OrderStatusShipped         OrderStatus = "shipped"
	OrderStatusCompleted       OrderStatus = "completed"
	OrderStatusReturnRequested OrderStatus = "return_requested"
	OrderStatusReturnApproved  OrderStatus = "return_approved"
	OrderStatusReturnRejected  OrderStatus = "return_rejected"
	OrderStatusReturnRefunded  OrderStatus = "return_refunded"
	OrderStatusCancelled       OrderStatus = "cancelled"
)

type PaymentStatus string

const (
	PaymentUnpaid   PaymentStatus = "unpaid"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
)

type ShippingInfo struct {
	RecipientName string `json:"recipient_name"`
	Phone         string `json:"phone"`
	Address       string `json:"address,omitempty"`
}

type Order struct {
	ID              int64           `json:"id"`
	UserID          int64           `json:"user_id"`
	OrderNumber     string          `json:"order_number"`
	Status          OrderStatus     `json:"status"`
	PaymentStatus   PaymentStatus   `json:"payment_status"`
	PaymentMethod   PaymentMethod   `json:"payment_method"`
	ShippingMethod  ShippingMethod  `json:"shipping_method"`
	Shipping        ShippingInfo    `json:"shipping"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	ShippingFee     decimal.Decimal `json:"shipping_fee"`
	DiscountAmount  decimal.Decimal `json:"discount_amount"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	Notes           string          `json:"notes,omitempty"`
	TrackingNumber  string          `json:"tracking_number,omitempty"`
	StripeSessionID string          `json:"stripe_session_id,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	Version         int             `json:"version"`
	Items           []OrderItem     `json:"items,omitempty"`
}

// OrderItem is a snapshot taken at order time; it does not follow later product edits.
// A backordered line was paid for but took no stock.
type OrderItem struct {
	ID          int64           `json:"id"`
	OrderID     int64           `json:"order_id"`
	ProductID   int64           `json:"product_id"`
	Title       string          `json:"title"`
	Variant     string          `json:"variant,omitempty"`
	ImageURL    string          `json:"image_url,omitempty"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	Backordered bool            `json:"backordered,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

type UserMembership struct {
	ID        int64           `json:"id"`
	UserID    int64           `json:"user_id"`
	Level     MembershipLevel `json:"level"`
	StartAt   time.Time       `json:"start_at"`
	EndAt     time.Time       `json:"end_at"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type RequestStatus string

const (
	RequestPending  RequestStatus = "PENDING"
	RequestApproved RequestStatus = "APPROVED"
	RequestRejected RequestStatus = "REJECTED"
)

type MembershipRequest struct {
	ID             int64           `json:"id"`
	UserID         int64           `json:"user_id"`
	RequestedLevel MembershipLevel `json:"requested_level"`
	Status         RequestStatus   `json:"status"`
	Note           string          `json:"note,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	ProcessedAt    *time.Time      `json:"processed_at,omitempty"`
}

type ReturnStatus string

const (
	ReturnPending  ReturnStatus = "PENDING"
	ReturnApproved ReturnStatus = "APPROVED"
	ReturnRejected ReturnStatus = "REJECTED"
	ReturnRefunded ReturnStatus = "REFUNDED"
)

type ReturnRequest struct {
	ID         int64        `json:"id"`
	OrderID    int64        `json:"order_id"`
	UserID     int64        `json:"user_id"`
	Reason     string       `json:"reason"`
	Status     ReturnStatus `json:"status"`
	AdminNote  string       `json:"admin_note,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
	ResolvedAt *time.Time   `json:"resolved_at,omitempty"`
}

// AccountEntry marks an order's revenue as reconciled. There is at most one per order.
type AccountEntry struct {
	ID             int64           `json:"id"`
	OrderID        int64           `json:"order_id"`
	OrderNumber    string          `json:"order_number"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	ShippingAmount decimal.Decimal `json:"shipping_amount"`
	ProductAmount  decimal.Decimal `json:"product_amount"`
	SettledAt      time.Time       `json:"settled_at"`
}

type TrackingEvent struct {
	OpTime time.Time `json:"opTime"`
	OpDesc string    `json:"opDesc"`
	OpName string    `json:"opName"`
}
