package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusRefunded  OrderStatus = "refunded"
)

// CanTransitionTo reports whether next is reachable from s in one step.
// Transitions only move forward: pending -> paid | cancelled, paid -> refunded.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	switch s {
	case OrderStatusPending:
		return next == OrderStatusPaid || next == OrderStatusCancelled
	case OrderStatusPaid:
		return next == OrderStatusRefunded
	default:
		return false
	}
}

type Order struct {
	ID                    uint            `gorm:"primaryKey" json:"id"`
	UserID                uint            `gorm:"not null;index" json:"user"`
	User                  *User           `gorm:"constraint:OnDelete:CASCADE;" json:"-"`
	Status                OrderStatus     `gorm:"type:varchar(20);not null;index" json:"status"`
	TotalAmount           decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"total_amount"`
	StripeSessionID       *string         `gorm:"type:varchar(255);uniqueIndex" json:"-"`
	StripePaymentIntentID *string         `gorm:"type:varchar(255);uniqueIndex" json:"-"`
	Items                 []OrderItem     `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE;" json:"items"`
	CreatedAt             time.Time       `gorm:"index" json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

func (Order) TableName() string {
	return "orders"
}

// OrderItem snapshots the product price at order time. A product referenced
// by an order item cannot be deleted.
type OrderItem struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	OrderID   uint            `gorm:"not null;uniqueIndex:idx_order_items_order_product" json:"-"`
	ProductID uint            `gorm:"not null;uniqueIndex:idx_order_items_order_product;index" json:"-"`
	Product   *Product        `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;" json:"product,omitempty"`
	Quantity  int             `gorm:"not null;check:chk_order_items_quantity,quantity > 0" json:"quantity"`
	Price     decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"price"`
}

func (OrderItem) TableName() string {
	return "order_items"
}

// Subtotal is Price x Quantity.
func (i OrderItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// All lists every model for AutoMigrate, parents first.
func All() []interface{} {
	return []interface{}{&User{}, &Category{}, &Product{}, &Order{}, &OrderItem{}}
}
