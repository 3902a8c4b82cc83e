package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/example/storefront/pkg/apperr"
	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/repository/repotest"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func createOrder(t *testing.T, db *gorm.DB, user *models.User, lines map[*models.Product]int) *models.Order {
	t.Helper()
	o := &models.Order{UserID: user.ID, Status: models.OrderStatusPending, TotalAmount: decimal.Zero}
	for p, qty := range lines {
		o.Items = append(o.Items, models.OrderItem{ProductID: p.ID, Quantity: qty, Price: p.Price})
		o.TotalAmount = o.TotalAmount.Add(p.Price.Mul(decimal.NewFromInt(int64(qty))))
	}
	require.NoError(t, NewOrderRepository(db).Create(context.Background(), o))
	return o
}

func stockOf(t *testing.T, db *gorm.DB, id uint) int {
	t.Helper()
	var p models.Product
	require.NoError(t, db.First(&p, id).Error)
	return p.Stock
}

func TestMarkPaidDecrementsOnce(t *testing.T) {
	db := repotest.NewDB(t)
	repo := NewOrderRepository(db)
	ctx := context.Background()

	cat := repotest.SeedCategory(t, db, "dattes")
	p := repotest.SeedProduct(t, db, cat, "medjool", "5.00", 10)
	u := repotest.SeedUser(t, db, "a@example.com")
	o := createOrder(t, db, u, map[*models.Product]int{p: 2})

	pi := "pi_1"
	paid, changes, err := repo.MarkPaid(ctx, o.ID, &pi)
	require.NoError(t, err)
	assert.True(t, paid)
	require.Len(t, changes, 1)
	assert.Equal(t, StockChange{ProductID: p.ID, Name: "medjool", Old: 10, New: 8}, changes[0])

	paid, changes, err = repo.MarkPaid(ctx, o.ID, &pi)
	require.NoError(t, err)
	assert.False(t, paid)
	assert.Empty(t, changes)
	assert.Equal(t, 8, stockOf(t, db, p.ID))

	got, err := repo.GetByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPaid, got.Status)
	require.NotNil(t, got.StripePaymentIntentID)
	assert.Equal(t, "pi_1", *got.StripePaymentIntentID)
}

func TestMarkPaidFloorsStockAtZero(t *testing.T) {
	db := repotest.NewDB(t)
	cat := repotest.SeedCategory(t, db, "chocolat")
	p := repotest.SeedProduct(t, db, cat, "truffes", "12.00", 5)
	u := repotest.SeedUser(t, db, "b@example.com")
	o := createOrder(t, db, u, map[*models.Product]int{p: 4})

	// stock moved under the order before payment confirmation
	require.NoError(t, db.Model(p).Update("stock", 1).Error)

	paid, changes, err := NewOrderRepository(db).MarkPaid(context.Background(), o.ID, nil)
	require.NoError(t, err)
	assert.True(t, paid)
	assert.Equal(t, 0, changes[0].New)
	assert.Equal(t, 0, stockOf(t, db, p.ID))
}

func TestMarkPaidConcurrentCallersFulfillOnce(t *testing.T) {
	db := repotest.NewDB(t)
	repo := NewOrderRepository(db)
	cat := repotest.SeedCategory(t, db, "jus")
	p := repotest.SeedProduct(t, db, cat, "tamarin", "3.50", 20)
	u := repotest.SeedUser(t, db, "c@example.com")
	o := createOrder(t, db, u, map[*models.Product]int{p: 3})

	const callers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			paid, _, err := repo.MarkPaid(context.Background(), o.ID, nil)
			assert.NoError(t, err)
			if paid {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, 17, stockOf(t, db, p.ID))
}

func TestMarkPaidSkipsCancelledOrder(t *testing.T) {
	db := repotest.NewDB(t)
	repo := NewOrderRepository(db)
	cat := repotest.SeedCategory(t, db, "desserts")
	p := repotest.SeedProduct(t, db, cat, "qatayef", "9.00", 4)
	u := repotest.SeedUser(t, db, "d@example.com")
	o := createOrder(t, db, u, map[*models.Product]int{p: 1})
	require.NoError(t, db.Model(o).Update("status", models.OrderStatusCancelled).Error)

	paid, _, err := repo.MarkPaid(context.Background(), o.ID, nil)
	require.NoError(t, err)
	assert.False(t, paid)
	assert.Equal(t, 4, stockOf(t, db, p.ID))
}

func TestGetByIDAndSessionRequiresMatch(t *testing.T) {
	db := repotest.NewDB(t)
	repo := NewOrderRepository(db)
	ctx := context.Background()
	cat := repotest.SeedCategory(t, db, "feuilletes")
	p := repotest.SeedProduct(t, db, cat, "baklawa", "18.90", 40)
	u := repotest.SeedUser(t, db, "e@example.com")
	o := createOrder(t, db, u, map[*models.Product]int{p: 1})
	require.NoError(t, repo.SetSessionID(ctx, o.ID, "cs_test_123"))

	got, err := repo.GetByIDAndSession(ctx, o.ID, "cs_test_123")
	require.NoError(t, err)
	assert.Equal(t, o.ID, got.ID)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "baklawa", got.Items[0].Product.Name)

	_, err = repo.GetByIDAndSession(ctx, o.ID, "cs_test_other")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	_, err = repo.GetByIDAndSession(ctx, o.ID+100, "cs_test_123")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestDuplicateOrderItemRejected(t *testing.T) {
	db := repotest.NewDB(t)
	cat := repotest.SeedCategory(t, db, "noix")
	p := repotest.SeedProduct(t, db, cat, "amandes", "7.00", 10)
	u := repotest.SeedUser(t, db, "f@example.com")

	o := &models.Order{
		UserID: u.ID, Status: models.OrderStatusPending, TotalAmount: decimal.NewFromInt(14),
		Items: []models.OrderItem{
			{ProductID: p.ID, Quantity: 1, Price: p.Price},
			{ProductID: p.ID, Quantity: 1, Price: p.Price},
		},
	}
	err := NewOrderRepository(db).Create(context.Background(), o)
	require.Error(t, err)

	var count int64
	require.NoError(t, db.Model(&models.Order{}).Count(&count).Error)
	assert.Zero(t, count, "order row must roll back with its items")
}

func TestProductWithOrderHistoryCannotBeDeleted(t *testing.T) {
	db := repotest.NewDB(t)
	cat := repotest.SeedCategory(t, db, "coffrets")
	p := repotest.SeedProduct(t, db, cat, "prestige", "30.00", 3)
	u := repotest.SeedUser(t, db, "g@example.com")
	createOrder(t, db, u, map[*models.Product]int{p: 1})

	assert.Error(t, db.Delete(&models.Product{}, p.ID).Error)
}

func TestListForUserNewestFirst(t *testing.T) {
	db := repotest.NewDB(t)
	repo := NewOrderRepository(db)
	cat := repotest.SeedCategory(t, db, "mix")
	p := repotest.SeedProduct(t, db, cat, "mix", "2.00", 50)
	u := repotest.SeedUser(t, db, "h@example.com")
	other := repotest.SeedUser(t, db, "i@example.com")

	first := createOrder(t, db, u, map[*models.Product]int{p: 1})
	second := createOrder(t, db, u, map[*models.Product]int{p: 2})
	createOrder(t, db, other, map[*models.Product]int{p: 3})

	list, err := repo.ListForUser(context.Background(), u.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)

	_, err = repo.GetForUser(context.Background(), first.ID, other.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestCancelStalePending(t *testing.T) {
	db := repotest.NewDB(t)
	repo := NewOrderRepository(db)
	cat := repotest.SeedCategory(t, db, "stale")
	p := repotest.SeedProduct(t, db, cat, "stale", "1.00", 5)
	u := repotest.SeedUser(t, db, "j@example.com")

	old := createOrder(t, db, u, map[*models.Product]int{p: 1})
	require.NoError(t, db.Model(old).Update("created_at", time.Now().Add(-48*time.Hour)).Error)
	paidOld := createOrder(t, db, u, map[*models.Product]int{p: 1})
	require.NoError(t, db.Model(paidOld).Updates(map[string]interface{}{
		"created_at": time.Now().Add(-48 * time.Hour),
		"status":     models.OrderStatusPaid,
	}).Error)
	fresh := createOrder(t, db, u, map[*models.Product]int{p: 1})

	n, err := repo.CancelStalePending(context.Background(), time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	for id, want := range map[uint]models.OrderStatus{
		old.ID:     models.OrderStatusCancelled,
		paidOld.ID: models.OrderStatusPaid,
		fresh.ID:   models.OrderStatusPending,
	} {
		got, err := repo.GetByID(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, want, got.Status)
	}
}
