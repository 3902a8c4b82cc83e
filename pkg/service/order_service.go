package service

import (
	"context"

	"github.com/example/storefront/pkg/apperr"
	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/repository"
)

// OrderService exposes a user's own orders.
type OrderService struct {
	orders *repository.OrderRepository
}

func NewOrderService(orders *repository.OrderRepository) *OrderService {
	return &OrderService{orders: orders}
}

func (s *OrderService) List(ctx context.Context, userID uint) ([]*models.Order, error) {
	return s.orders.ListForUser(ctx, userID)
}

// Get returns the order only if userID owns it; otherwise NotFound.
func (s *OrderService) Get(ctx context.Context, userID, orderID uint) (*models.Order, error) {
	return s.orders.GetForUser(ctx, orderID, userID)
}

// ByCheckoutSession looks an order up by id and its stored checkout session
// id, without authentication. Both must match.
func (s *OrderService) ByCheckoutSession(ctx context.Context, orderID uint, sessionID string) (*models.Order, error) {
	if orderID == 0 || sessionID == "" {
		return nil, apperr.Validation("order_id and session_id are required")
	}
	return s.orders.GetByIDAndSession(ctx, orderID, sessionID)
}
