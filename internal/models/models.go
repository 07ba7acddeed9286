package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusRefunded   OrderStatus = "refunded"
)

type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusAuthorized PaymentStatus = "authorized"
	PaymentStatusCaptured   PaymentStatus = "captured"
	PaymentStatusFailed     PaymentStatus = "failed"
	PaymentStatusRefunded   PaymentStatus = "refunded"
	PaymentStatusCancelled  PaymentStatus = "cancelled"
)

type PaymentMethod string

const (
	PaymentMethodStripe       PaymentMethod = "stripe"
	PaymentMethodPayPal       PaymentMethod = "paypal"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
	PaymentMethodCash         PaymentMethod = "cash"
	PaymentMethodCard         PaymentMethod = "card"
)

type RefundStatus string

const (
	RefundStatusPending   RefundStatus = "pending"
	RefundStatusCompleted RefundStatus = "completed"
	RefundStatusFailed    RefundStatus = "failed"
)

// SupportedCurrencies is the currency allow-list for payments.
var SupportedCurrencies = map[string]bool{
	"MXN": true,
	"USD": true,
	"EUR": true,
}

type Product struct {
	ID          uint            `gorm:"primaryKey"                  json:"id"`
	Name        string          `gorm:"not null"                    json:"name"`
	SKU         string          `gorm:"uniqueIndex;not null"        json:"sku"`
	Description string          `json:"description"`
	Price       decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"price"`
	Active      bool            `gorm:"not null;default:true"       json:"active"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Stock holds one row per product. The quantity column is only ever
// mutated through guarded UPDATEs in the inventory ledger.
type Stock struct {
	ProductID uint      `gorm:"primaryKey"                   json:"product_id"`
	Quantity  int       `gorm:"not null;check:quantity >= 0" json:"quantity"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Cart belongs to either a registered user or a guest session, never both.
// Carts survive checkout; only their items are cleared.
type Cart struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID       *uint      `gorm:"index"                json:"user_id,omitempty"`
	SessionToken *string    `gorm:"index"                json:"session_token,omitempty"`
	Items        []CartItem `gorm:"foreignKey:CartID"    json:"items"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

type CartItem struct {
	ID        uint      `gorm:"primaryKey"                                       json:"id"`
	CartID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_cart_product" json:"cart_id"`
	ProductID uint      `gorm:"not null;uniqueIndex:idx_cart_product"           json:"product_id"`
	Quantity  int       `gorm:"not null;check:quantity > 0"                     json:"quantity"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Address struct {
	Name       string `json:"name"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

type Order struct {
	ID              uuid.UUID       `gorm:"type:uuid;primaryKey"              json:"id"`
	UserID          *uint           `gorm:"index"                             json:"user_id,omitempty"`
	Status          OrderStatus     `gorm:"not null;index"                    json:"status"`
	PaymentStatus   PaymentStatus   `gorm:"not null"                          json:"payment_status"`
	Subtotal        decimal.Decimal `gorm:"type:decimal(12,2);not null"       json:"subtotal"`
	TaxAmount       decimal.Decimal `gorm:"type:decimal(12,2);not null"       json:"tax_amount"`
	ShippingCost    decimal.Decimal `gorm:"type:decimal(12,2);not null"       json:"shipping_cost"`
	DiscountAmount  decimal.Decimal `gorm:"type:decimal(12,2);not null"       json:"discount_amount"`
	TotalAmount     decimal.Decimal `gorm:"type:decimal(12,2);not null"       json:"total_amount"`
	Currency        string          `gorm:"size:3;not null"                   json:"currency"`
	ShippingAddress Address         `gorm:"embedded;embeddedPrefix:shipping_" json:"shipping_address"`
	BillingAddress  Address         `gorm:"embedded;embeddedPrefix:billing_"  json:"billing_address"`
	TrackingNumber  string          `json:"tracking_number"`
	Items           []OrderItem     `gorm:"foreignKey:OrderID"                json:"items"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
	CancelledAt     *time.Time      `json:"cancelled_at,omitempty"`
}

// OrderItem is an immutable snapshot of the product at confirm time.
type OrderItem struct {
	ID             uint            `gorm:"primaryKey"                  json:"id"`
	OrderID        uuid.UUID       `gorm:"type:uuid;not null;index"    json:"order_id"`
	ProductID      uint            `gorm:"not null"                    json:"product_id"`
	Name           string          `gorm:"not null"                    json:"name"`
	SKU            string          `gorm:"not null"                    json:"sku"`
	UnitPrice      decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"unit_price"`
	Quantity       int             `gorm:"not null;check:quantity > 0" json:"quantity"`
	LineTotal      decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"line_total"`
	DiscountAmount decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"discount_amount"`
	CreatedAt      time.Time       `json:"created_at"`
}

type Payment struct {
	ID              uuid.UUID       `gorm:"type:uuid;primaryKey"        json:"id"`
	OrderID         uuid.UUID       `gorm:"type:uuid;not null;index"    json:"order_id"`
	Amount          decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
	Currency        string          `gorm:"size:3;not null"             json:"currency"`
	Method          PaymentMethod   `gorm:"not null"                    json:"method"`
	Status          PaymentStatus   `gorm:"not null;index"              json:"status"`
	RefundedAmount  decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"refunded_amount"`
	ExternalRef     *string         `gorm:"uniqueIndex"                 json:"external_ref,omitempty"`
	CaptureRef      *string         `gorm:"uniqueIndex"                 json:"capture_ref,omitempty"`
	GatewayResponse []byte          `json:"-"`
	FailureReason   string          `json:"failure_reason,omitempty"`
	CapturedAt      *time.Time      `json:"captured_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

type Refund struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey"        json:"id"`
	PaymentID   uuid.UUID       `gorm:"type:uuid;not null;index"    json:"payment_id"`
	OrderID     uuid.UUID       `gorm:"type:uuid;not null;index"    json:"order_id"`
	Amount      decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
	Reason      string          `json:"reason"`
	Status      RefundStatus    `gorm:"not null"                    json:"status"`
	ExternalRef *string         `gorm:"uniqueIndex"                 json:"external_ref,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// WebhookEvent records every gateway callback we have seen. The primary key
// on the gateway event id is what makes webhook replays a no-op.
type WebhookEvent struct {
	EventID     string    `gorm:"primaryKey"     json:"event_id"`
	Gateway     string    `gorm:"not null;index" json:"gateway"`
	EventType   string    `gorm:"not null"       json:"event_type"`
	Payload     []byte    `json:"-"`
	Note        string    `json:"note,omitempty"`
	ProcessedAt time.Time `json:"processed_at"`
}
