package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flicky/smart-inventory/internal/dto"
)

func TestCategoryService_CreateAndList(t *testing.T) {
	categories := newMockCategoryRepo(nil)
	svc := NewCategoryService(categories)

	_, err := svc.Create(context.Background(), dto.CategoryRequest{Name: "Food"})
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), dto.CategoryRequest{Name: " Clothing ", Description: "Apparel"})
	require.NoError(t, err)

	list, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Clothing", list[0].Name)
	assert.Equal(t, "Apparel", list[0].Description)

	_, err = svc.Create(context.Background(), dto.CategoryRequest{Name: ""})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCategoryService_Update_NotFound(t *testing.T) {
	svc := NewCategoryService(newMockCategoryRepo(nil))
	_, err := svc.Update(context.Background(), uuid.New(), dto.CategoryRequest{Name: "Toys"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCategoryService_Delete(t *testing.T) {
	products := newMockProductRepo()
	categories := newMockCategoryRepo(products)
	used := categories.add("Electronics")
	empty := categories.add("Garden")
	products.add("Phone", "300", 1, 1, used.ID)
	svc := NewCategoryService(categories)

	err := svc.Delete(context.Background(), used.ID)
	assert.ErrorIs(t, err, ErrConflict)
	assert.Contains(t, categories.categories, used.ID)

	require.NoError(t, svc.Delete(context.Background(), empty.ID))
	assert.NotContains(t, categories.categories, empty.ID)

	assert.ErrorIs(t, svc.Delete(context.Background(), empty.ID), ErrNotFound)
}

func TestCategoryService_Delete_ProductAddedConcurrently(t *testing.T) {
	products := newMockProductRepo()
	categories := newMockCategoryRepo(products)
	c := categories.add("Garden")
	categories.onDelete = func() { products.add("Rake", "15", 2, 1, c.ID) }
	svc := NewCategoryService(categories)

	err := svc.Delete(context.Background(), c.ID)
	assert.ErrorIs(t, err, ErrConflict)
	assert.Contains(t, categories.categories, c.ID)
}
