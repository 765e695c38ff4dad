package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flicky/smart-inventory/internal/model"
)

func resetTables(t *testing.T) {
	t.Helper()
	requireDB(t)
	cleanupTable(t, "order_items", "orders", "products", "categories", "users")
}

func seedProduct(t *testing.T, name, price string, stock int) (*model.Category, *model.Product) {
	t.Helper()
	ctx := context.Background()
	category := &model.Category{Name: "Category " + name}
	require.NoError(t, NewCategoryRepository(testPool).Create(ctx, category))

	product := &model.Product{
		Name: name, Price: decimal.RequireFromString(price), CategoryID: category.ID,
		QuantityInStock: stock, LowStockThreshold: 1,
	}
	require.NoError(t, NewProductRepository(testPool).Create(ctx, product))
	return category, product
}

func TestUserRepo_CreateAndGetByEmail(t *testing.T) {
	resetTables(t)
	repo := NewUserRepository(testPool)
	ctx := context.Background()

	user := &model.User{
		Email: "test@example.com", Password: "hashed", FullName: "John Doe",
		SecurityQuestion: "q", SecurityAnswer: "a", Role: model.RoleUser,
	}
	require.NoError(t, repo.Create(ctx, user))
	assert.NotEqual(t, uuid.Nil, user.ID)

	found, err := repo.GetByEmail(ctx, "test@example.com")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, user.ID, found.ID)

	require.NoError(t, repo.SetRole(ctx, user.ID, model.RoleAdmin))
	require.NoError(t, repo.ConfirmEmail(ctx, user.ID))
	found, err = repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, found.Role)
	assert.True(t, found.EmailConfirmed)

	missing, err := repo.GetByEmail(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.Nil(t, missing)
	assert.Error(t, repo.SetRole(ctx, uuid.New(), model.RoleUser))
}

func TestProductRepo_CRUD(t *testing.T) {
	resetTables(t)
	repo := NewProductRepository(testPool)
	ctx := context.Background()

	_, product := seedProduct(t, "Test", "29.99", 100)

	found, err := repo.GetByID(ctx, product.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "Test", found.Name)
	assert.Equal(t, "Category Test", found.CategoryName)

	version := found.UpdatedAt
	found.Name = "Updated"
	require.NoError(t, repo.Update(ctx, found, version))

	found.Name = "Stale"
	assert.ErrorIs(t, repo.Update(ctx, found, version), ErrStaleWrite)

	current, _ := repo.GetByID(ctx, product.ID)
	assert.Equal(t, "Updated", current.Name)

	deleted, err := repo.Delete(ctx, product.ID)
	require.NoError(t, err)
	assert.True(t, deleted)
	found, _ = repo.GetByID(ctx, product.ID)
	assert.Nil(t, found)

	deleted, err = repo.Delete(ctx, product.ID)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestProductRepo_ListFilterAndSort(t *testing.T) {
	resetTables(t)
	repo := NewProductRepository(testPool)
	ctx := context.Background()

	electronics, _ := seedProduct(t, "Laptop", "1200.00", 3)
	_, _ = seedProduct(t, "Blue Shirt", "20.00", 40)
	mouse := &model.Product{Name: "Mouse", Price: decimal.NewFromInt(25), CategoryID: electronics.ID, QuantityInStock: 1, LowStockThreshold: 5}
	require.NoError(t, repo.Create(ctx, mouse))

	all, err := repo.List(ctx, ProductFilter{Sort: SortPriceDesc})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "Laptop", all[0].Name)
	assert.Equal(t, "Blue Shirt", all[2].Name)

	hits, err := repo.List(ctx, ProductFilter{Search: "SHIRT"})
	require.NoError(t, err)
	require.Len(t, hits, 1)

	inCategory, err := repo.List(ctx, ProductFilter{CategoryID: uuid.NullUUID{UUID: electronics.ID, Valid: true}, Sort: SortQuantity})
	require.NoError(t, err)
	require.Len(t, inCategory, 2)
	assert.Equal(t, "Mouse", inCategory[0].Name)
}

func TestCategoryRepo_DeleteRestrictedByProducts(t *testing.T) {
	resetTables(t)
	repo := NewCategoryRepository(testPool)
	ctx := context.Background()

	category, _ := seedProduct(t, "Phone", "300", 1)
	n, err := repo.CountProducts(ctx, category.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = repo.Delete(ctx, category.ID)
	assert.ErrorIs(t, err, ErrCategoryInUse)
}

func TestOrderRepo_PlaceWithinTx(t *testing.T) {
	resetTables(t)
	repo := NewOrderRepository(testPool)
	products := NewProductRepository(testPool)
	ctx := context.Background()

	_, p := seedProduct(t, "Widget", "10.00", 5)

	order := &model.Order{
		GuestName: "Jane", GuestEmail: "jane@example.com",
		CreatedDate: time.Now().UTC(), CreatedBy: model.CreatedByGuest,
	}
	err := repo.WithinTx(ctx, func(tx OrderTx) error {
		locked, err := tx.LockProducts(ctx, []uuid.UUID{p.ID, uuid.New()})
		if err != nil {
			return err
		}
		require.Len(t, locked, 1)
		if err := tx.DecrementStock(ctx, p.ID, 2); err != nil {
			return err
		}
		order.TotalPrice = decimal.NewFromInt(20)
		order.Items = []model.OrderItem{{
			ProductID: uuid.NullUUID{UUID: p.ID, Valid: true}, Quantity: 2, Price: locked[p.ID].Price,
		}}
		return tx.InsertOrder(ctx, order)
	})
	require.NoError(t, err)

	stored, err := products.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.QuantityInStock)

	got, err := repo.GetByID(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "Widget", got.Items[0].ProductName)
	assert.True(t, decimal.NewFromInt(20).Equal(got.TotalPrice))
}

func TestOrderRepo_RollbackOnError(t *testing.T) {
	resetTables(t)
	repo := NewOrderRepository(testPool)
	ctx := context.Background()

	_, p := seedProduct(t, "Widget", "10.00", 5)
	boom := errors.New("boom")

	err := repo.WithinTx(ctx, func(tx OrderTx) error {
		if err := tx.DecrementStock(ctx, p.ID, 4); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	stored, _ := NewProductRepository(testPool).GetByID(ctx, p.ID)
	assert.Equal(t, 5, stored.QuantityInStock)

	err = repo.WithinTx(ctx, func(tx OrderTx) error { return tx.DecrementStock(ctx, p.ID, 6) })
	assert.Error(t, err)
}

func TestOrderRepo_UpdateDeleteAndProductRemoval(t *testing.T) {
	resetTables(t)
	repo := NewOrderRepository(testPool)
	ctx := context.Background()

	_, p := seedProduct(t, "Widget", "10.00", 5)
	creator := uuid.NewString()
	order := &model.Order{
		GuestName: "Jane", GuestEmail: "jane@example.com", TotalPrice: decimal.NewFromInt(10),
		CreatedDate: time.Now().UTC(), CreatedBy: creator,
		Items: []model.OrderItem{{ProductID: uuid.NullUUID{UUID: p.ID, Valid: true}, Quantity: 1, Price: p.Price}},
	}
	require.NoError(t, repo.WithinTx(ctx, func(tx OrderTx) error { return tx.InsertOrder(ctx, order) }))

	order.GuestName = "Janet"
	order.Items[0].Quantity = 3
	require.NoError(t, repo.UpdateDetails(ctx, order))

	mine, err := repo.ListByCreator(ctx, creator)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "Janet", mine[0].GuestName)
	assert.Equal(t, 3, mine[0].Items[0].Quantity)
	assert.True(t, decimal.NewFromInt(10).Equal(mine[0].TotalPrice))

	_, err = NewProductRepository(testPool).Delete(ctx, p.ID)
	require.NoError(t, err)
	got, err := repo.GetByID(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	assert.False(t, got.Items[0].ProductID.Valid)

	deleted, err := repo.Delete(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, deleted)
	deleted, err = repo.Delete(ctx, order.ID)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestTokenStore(t *testing.T) {
	if testRedis == nil {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	store := NewTokenStore(testRedis)
	ctx := context.Background()
	userID := uuid.New()

	ticket, err := store.IssueTicket(ctx, TicketPasswordReset, userID, time.Minute)
	require.NoError(t, err)

	_, err = store.RedeemTicket(ctx, TicketEmailConfirmation, ticket)
	assert.ErrorIs(t, err, ErrTicketNotFound)

	got, err := store.RedeemTicket(ctx, TicketPasswordReset, ticket)
	require.NoError(t, err)
	assert.Equal(t, userID, got)

	_, err = store.RedeemTicket(ctx, TicketPasswordReset, ticket)
	assert.ErrorIs(t, err, ErrTicketNotFound)

	jti := uuid.NewString()
	require.NoError(t, store.Revoke(ctx, jti, time.Minute))
	revoked, err := store.IsRevoked(ctx, jti)
	require.NoError(t, err)
	assert.True(t, revoked)

	role, err := store.PinnedRole(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, role)
	require.NoError(t, store.PinRole(ctx, userID, model.RoleUser, time.Minute))
	role, err = store.PinnedRole(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, model.RoleUser, role)
}
