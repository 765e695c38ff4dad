package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/flicky/smart-inventory/internal/dto"
	"github.com/flicky/smart-inventory/internal/model"
	"github.com/flicky/smart-inventory/internal/repository"
)

const maxNameLength = 100

type CategoryService struct {
	categoryRepo repository.CategoryRepository
}

func NewCategoryService(categoryRepo repository.CategoryRepository) *CategoryService {
	return &CategoryService{categoryRepo: categoryRepo}
}

func (s *CategoryService) Create(ctx context.Context, req dto.CategoryRequest) (*dto.CategoryResponse, error) {
	name, err := validateName("category", req.Name)
	if err != nil {
		return nil, err
	}
	category := &model.Category{Name: name, Description: req.Description}
	if err := s.categoryRepo.Create(ctx, category); err != nil {
		return nil, fmt.Errorf("create category: %w", err)
	}
	resp := dto.FromCategory(category)
	return &resp, nil
}

func (s *CategoryService) GetByID(ctx context.Context, id uuid.UUID) (*dto.CategoryResponse, error) {
	category, err := s.categoryRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get category: %w", err)
	}
	if category == nil {
		return nil, notFound("category", id)
	}
	resp := dto.FromCategory(category)
	return &resp, nil
}

func (s *CategoryService) List(ctx context.Context) ([]dto.CategoryResponse, error) {
	categories, err := s.categoryRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	resp := make([]dto.CategoryResponse, 0, len(categories))
	for i := range categories {
		resp = append(resp, dto.FromCategory(&categories[i]))
	}
	return resp, nil
}

func (s *CategoryService) Update(ctx context.Context, id uuid.UUID, req dto.CategoryRequest) (*dto.CategoryResponse, error) {
	name, err := validateName("category", req.Name)
	if err != nil {
		return nil, err
	}
	category := &model.Category{ID: id, Name: name, Description: req.Description}
	if err := s.categoryRepo.Update(ctx, category); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("category", id)
		}
		return nil, fmt.Errorf("update category: %w", err)
	}
	resp := dto.FromCategory(category)
	return &resp, nil
}

// Delete refuses to remove a category that still owns products.
func (s *CategoryService) Delete(ctx context.Context, id uuid.UUID) error {
	n, err := s.categoryRepo.CountProducts(ctx, id)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	if n > 0 {
		return &ConflictError{Entity: "category", ID: id.String(), Reason: fmt.Sprintf("still has %d products", n)}
	}
	deleted, err := s.categoryRepo.Delete(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrCategoryInUse) {
			return &ConflictError{Entity: "category", ID: id.String(), Reason: "still has products"}
		}
		return fmt.Errorf("delete category: %w", err)
	}
	if !deleted {
		return notFound("category", id)
	}
	return nil
}

func validateName(entity, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", NewValidationError(entity + " name is required")
	}
	if len([]rune(name)) > maxNameLength {
		return "", NewValidationError(fmt.Sprintf("%s name cannot exceed %d characters", entity, maxNameLength))
	}
	return name, nil
}
