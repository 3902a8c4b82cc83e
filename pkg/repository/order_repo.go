package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/example/storefront/pkg/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type OrderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// StockChange records one product's stock before and after fulfillment.
type StockChange struct {
	ProductID uint
	Name      string
	Old       int
	New       int
}

// Create stores o and its Items in one transaction.
func (r *OrderRepository) Create(ctx context.Context, o *models.Order) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(o).Error; err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}
		if len(o.Items) == 0 {
			return nil
		}
		for i := range o.Items {
			o.Items[i].OrderID = o.ID
		}
		// items go in explicitly: association saves would swallow a
		// duplicate (order, product) pair with ON CONFLICT DO NOTHING
		if err := tx.Omit(clause.Associations).Create(&o.Items).Error; err != nil {
			return fmt.Errorf("failed to create order items: %w", translate(err, "order item"))
		}
		return nil
	})
}

func (r *OrderRepository) SetSessionID(ctx context.Context, orderID uint, sessionID string) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", orderID).
		Update("stripe_session_id", sessionID).Error
}

func (r *OrderRepository) withItems(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Preload("Items", func(db *gorm.DB) *gorm.DB {
		return db.Order("order_items.id ASC")
	}).Preload("Items.Product")
}

func (r *OrderRepository) GetByID(ctx context.Context, id uint) (*models.Order, error) {
	var o models.Order
	if err := r.withItems(ctx).Preload("User").First(&o, id).Error; err != nil {
		return nil, translate(err, "order")
	}
	return &o, nil
}

func (r *OrderRepository) GetForUser(ctx context.Context, id, userID uint) (*models.Order, error) {
	var o models.Order
	if err := r.withItems(ctx).Where("id = ? AND user_id = ?", id, userID).First(&o).Error; err != nil {
		return nil, translate(err, "order")
	}
	return &o, nil
}

func (r *OrderRepository) GetBySessionForUser(ctx context.Context, sessionID string, userID uint) (*models.Order, error) {
	var o models.Order
	if err := r.withItems(ctx).
		Where("stripe_session_id = ? AND user_id = ?", sessionID, userID).
		First(&o).Error; err != nil {
		return nil, translate(err, "order")
	}
	return &o, nil
}

// GetByIDAndSession returns the order only when sessionID matches the stored
// checkout session id.
func (r *OrderRepository) GetByIDAndSession(ctx context.Context, id uint, sessionID string) (*models.Order, error) {
	var o models.Order
	if err := r.withItems(ctx).
		Where("id = ? AND stripe_session_id = ?", id, sessionID).
		First(&o).Error; err != nil {
		return nil, translate(err, "order")
	}
	return &o, nil
}

func (r *OrderRepository) ListForUser(ctx context.Context, userID uint) ([]*models.Order, error) {
	var list []*models.Order
	if err := r.withItems(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").Order("id DESC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

// MarkPaid moves a pending order to paid and decrements stock for each item,
// floored at zero, in one transaction. The status change is a conditional
// update so that only one caller observes paid=true for a given order; every
// other caller gets false and no stock is touched.
func (r *OrderRepository) MarkPaid(ctx context.Context, orderID uint, paymentIntentID *string) (bool, []StockChange, error) {
	var changes []StockChange
	paid := false

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Order{}).
			Where("id = ? AND status = ?", orderID, models.OrderStatusPending).
			Updates(map[string]interface{}{
				"status":                   models.OrderStatusPaid,
				"stripe_payment_intent_id": paymentIntentID,
				"updated_at":               time.Now(),
			})
		if res.Error != nil {
			return fmt.Errorf("failed to mark order paid: %w", translate(res.Error, "payment intent"))
		}
		if res.RowsAffected == 0 {
			return nil
		}
		paid = true

		var items []models.OrderItem
		if err := tx.Where("order_id = ?", orderID).Order("id ASC").Find(&items).Error; err != nil {
			return fmt.Errorf("failed to load order items: %w", err)
		}

		for _, item := range items {
			var p models.Product
			if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&p, item.ProductID).Error; err != nil {
				return fmt.Errorf("failed to lock product %d: %w", item.ProductID, err)
			}
			old := p.Stock
			next := old - item.Quantity
			if next < 0 {
				next = 0
			}
			if err := tx.Model(&p).Update("stock", next).Error; err != nil {
				return fmt.Errorf("failed to decrement stock for product %d: %w", p.ID, err)
			}
			changes = append(changes, StockChange{ProductID: p.ID, Name: p.Name, Old: old, New: next})
		}
		return nil
	})
	if err != nil {
		return false, nil, err
	}
	return paid, changes, nil
}

// CancelStalePending cancels orders still pending that were created before
// cutoff and returns how many rows changed.
func (r *OrderRepository) CancelStalePending(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("status = ? AND created_at < ?", models.OrderStatusPending, cutoff).
		Updates(map[string]interface{}{
			"status":     models.OrderStatusCancelled,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to cancel stale orders: %w", res.Error)
	}
	return res.RowsAffected, nil
}
