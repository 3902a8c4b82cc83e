package gateway

import (
	"time"

	"github.com/example/storefront/pkg/models"
	"github.com/shopspring/decimal"
)

type registerRequest struct {
	Email     string `json:"email" binding:"required"`
	Password  string `json:"password" binding:"required"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type refreshRequest struct {
	Refresh string `json:"refresh" binding:"required"`
}

type logoutRequest struct {
	Refresh string `json:"refresh"`
}

type checkoutItemRequest struct {
	ID       uint             `json:"id" binding:"required"`
	Quantity *int             `json:"quantity"`
	Price    *decimal.Decimal `json:"price"`
	Name     string           `json:"name"`
}

type checkoutRequest struct {
	Items []checkoutItemRequest `json:"items"`
}

type confirmRequest struct {
	SessionID string `json:"session_id"`
}

type userResponse struct {
	ID        uint   `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

func newUserResponse(u *models.User) *userResponse {
	return &userResponse{ID: u.ID, Email: u.Email, FirstName: u.FirstName, LastName: u.LastName}
}

type sessionResponse struct {
	User    *userResponse `json:"user"`
	Access  string        `json:"access"`
	Refresh string        `json:"refresh"`
}

type categoryResponse struct {
	ID          uint   `json:"id"`
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Description string `json:"description"`
}

func newCategoryResponse(c *models.Category) *categoryResponse {
	return &categoryResponse{ID: c.ID, Name: c.Name, Slug: c.Slug, Description: c.Description}
}

type productResponse struct {
	ID          uint              `json:"id"`
	Category    *categoryResponse `json:"category,omitempty"`
	Name        string            `json:"name"`
	Slug        string            `json:"slug"`
	Description string            `json:"description"`
	Price       string            `json:"price"`
	Stock       int               `json:"stock"`
	IsActive    bool              `json:"is_active"`
	ImageURL    string            `json:"image_url"`
}

func newProductResponse(p *models.Product) *productResponse {
	out := &productResponse{
		ID:          p.ID,
		Name:        p.Name,
		Slug:        p.Slug,
		Description: p.Description,
		Price:       p.Price.StringFixed(2),
		Stock:       p.Stock,
		IsActive:    p.IsActive,
		ImageURL:    p.ImageURL,
	}
	if p.Category != nil {
		out.Category = newCategoryResponse(p.Category)
	}
	return out
}

type orderItemResponse struct {
	ID          uint             `json:"id"`
	Product     *productResponse `json:"product,omitempty"`
	ProductName string           `json:"product_name"`
	Quantity    int              `json:"quantity"`
	Price       string           `json:"price"`
}

type orderResponse struct {
	ID          uint                 `json:"id"`
	User        uint                 `json:"user"`
	Status      models.OrderStatus   `json:"status"`
	TotalAmount string               `json:"total_amount"`
	Items       []*orderItemResponse `json:"items"`
	CreatedAt   time.Time            `json:"created_at"`
	UpdatedAt   time.Time            `json:"updated_at"`
}

func newOrderResponse(o *models.Order) *orderResponse {
	out := &orderResponse{
		ID:          o.ID,
		User:        o.UserID,
		Status:      o.Status,
		TotalAmount: o.TotalAmount.StringFixed(2),
		Items:       make([]*orderItemResponse, 0, len(o.Items)),
		CreatedAt:   o.CreatedAt,
		UpdatedAt:   o.UpdatedAt,
	}
	for i := range o.Items {
		item := &o.Items[i]
		r := &orderItemResponse{
			ID:       item.ID,
			Quantity: item.Quantity,
			Price:    item.Price.StringFixed(2),
		}
		if item.Product != nil {
			r.Product = newProductResponse(item.Product)
			r.ProductName = item.Product.Name
		}
		out.Items = append(out.Items, r)
	}
	return out
}
