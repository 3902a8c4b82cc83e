package gateway

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/example/storefront/pkg/apperr"
	"github.com/example/storefront/pkg/auth"
	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/service"
	"github.com/gin-gonic/gin"
)

const (
	ctxUser   = "storefront.user"
	ctxClaims = "storefront.claims"

	signatureHeader = "Stripe-Signature"
)

// requireUser rejects requests without a valid bearer access token.
func (g *Gateway) requireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			g.fail(c, apperr.AuthenticationFailed("authentication credentials were not provided"))
			return
		}

		claims, user, err := g.services.Accounts.Authenticate(c.Request.Context(), strings.TrimSpace(token))
		if err != nil {
			g.fail(c, err)
			return
		}
		c.Set(ctxClaims, claims)
		c.Set(ctxUser, user)
		c.Next()
	}
}

func currentUser(c *gin.Context) *models.User {
	return c.MustGet(ctxUser).(*models.User)
}

func currentClaims(c *gin.Context) *auth.Claims {
	return c.MustGet(ctxClaims).(*auth.Claims)
}

func (g *Gateway) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		g.badRequest(c, err)
		return
	}

	user, pair, err := g.services.Accounts.Register(c.Request.Context(), service.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, &sessionResponse{User: newUserResponse(user), Access: pair.Access, Refresh: pair.Refresh})
}

func (g *Gateway) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		g.badRequest(c, err)
		return
	}

	user, pair, err := g.services.Accounts.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, &sessionResponse{User: newUserResponse(user), Access: pair.Access, Refresh: pair.Refresh})
}

func (g *Gateway) refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		g.badRequest(c, err)
		return
	}

	access, err := g.services.Accounts.Refresh(c.Request.Context(), req.Refresh)
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"access": access})
}

func (g *Gateway) logout(c *gin.Context) {
	var req logoutRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			g.badRequest(c, err)
			return
		}
	}

	if err := g.services.Accounts.Logout(c.Request.Context(), currentClaims(c), req.Refresh); err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

func (g *Gateway) profile(c *gin.Context) {
	c.JSON(http.StatusOK, newUserResponse(currentUser(c)))
}

func (g *Gateway) listCategories(c *gin.Context) {
	cats, err := g.services.Catalog.ListCategories(c.Request.Context())
	if err != nil {
		g.fail(c, err)
		return
	}
	out := make([]*categoryResponse, 0, len(cats))
	for _, cat := range cats {
		out = append(out, newCategoryResponse(cat))
	}
	c.JSON(http.StatusOK, out)
}

func (g *Gateway) listProducts(c *gin.Context) {
	products, err := g.services.Catalog.ListProducts(c.Request.Context(), c.Query("category"))
	if err != nil {
		g.fail(c, err)
		return
	}
	out := make([]*productResponse, 0, len(products))
	for _, p := range products {
		out = append(out, newProductResponse(p))
	}
	c.JSON(http.StatusOK, out)
}

func (g *Gateway) getProduct(c *gin.Context) {
	p, err := g.services.Catalog.GetProduct(c.Request.Context(), c.Param("slug"))
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newProductResponse(p))
}

func (g *Gateway) listOrders(c *gin.Context) {
	orders, err := g.services.Orders.List(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		g.fail(c, err)
		return
	}
	out := make([]*orderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, newOrderResponse(o))
	}
	c.JSON(http.StatusOK, out)
}

func (g *Gateway) getOrder(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		g.fail(c, apperr.NotFound("order not found"))
		return
	}

	o, err := g.services.Orders.Get(c.Request.Context(), currentUser(c).ID, uint(id))
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newOrderResponse(o))
}

func (g *Gateway) orderByCheckoutSession(c *gin.Context) {
	id, err := strconv.ParseUint(c.Query("order_id"), 10, 64)
	if err != nil {
		g.fail(c, apperr.Validation("order_id and session_id are required"))
		return
	}

	o, err := g.services.Orders.ByCheckoutSession(c.Request.Context(), uint(id), c.Query("session_id"))
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newOrderResponse(o))
}

func (g *Gateway) createCheckoutSession(c *gin.Context) {
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		g.badRequest(c, err)
		return
	}

	items := make([]service.CheckoutItem, 0, len(req.Items))
	for _, it := range req.Items {
		qty := 1
		if it.Quantity != nil {
			qty = *it.Quantity
		}
		items = append(items, service.CheckoutItem{ProductID: it.ID, Quantity: qty, Price: it.Price})
	}

	res, err := g.services.Checkout.CreateCheckoutSession(c.Request.Context(), currentUser(c), items, service.RedirectURLs{
		Success: c.Query("success_url"),
		Cancel:  c.Query("cancel_url"),
	})
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": res.URL, "order_id": res.OrderID, "session_id": res.SessionID})
}

func (g *Gateway) confirmCheckoutSession(c *gin.Context) {
	var req confirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		g.badRequest(c, err)
		return
	}

	res, err := g.services.Checkout.ConfirmCheckoutSession(c.Request.Context(), currentUser(c), req.SessionID)
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (g *Gateway) webhook(c *gin.Context) {
	payload, err := c.GetRawData()
	if err != nil {
		g.badRequest(c, err)
		return
	}

	if err := g.services.Checkout.HandleWebhook(c.Request.Context(), payload, c.GetHeader(signatureHeader)); err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}
