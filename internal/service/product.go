package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/flicky/smart-inventory/internal/dto"
	"github.com/flicky/smart-inventory/internal/model"
	"github.com/flicky/smart-inventory/internal/repository"
)

const (
	defaultStock             = 0
	defaultLowStockThreshold = 1
)

type ProductService struct {
	productRepo  repository.ProductRepository
	categoryRepo repository.CategoryRepository
	cache        productCache
}

func NewProductService(productRepo repository.ProductRepository, categoryRepo repository.CategoryRepository, redisClient *redis.Client) *ProductService {
	return &ProductService{productRepo: productRepo, categoryRepo: categoryRepo, cache: productCache{rdb: redisClient}}
}

func (s *ProductService) Create(ctx context.Context, req dto.CreateProductRequest) (*dto.ProductResponse, error) {
	n, err := s.categoryRepo.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count categories: %w", err)
	}
	if n == 0 {
		return nil, NewValidationError("no categories")
	}

	product := &model.Product{
		QuantityInStock:   defaultStock,
		LowStockThreshold: defaultLowStockThreshold,
	}
	if product.Name, err = validateName("product", req.Name); err != nil {
		return nil, err
	}
	if product.Price, err = validatePrice(req.Price); err != nil {
		return nil, err
	}
	if req.QuantityInStock != nil {
		product.QuantityInStock = *req.QuantityInStock
	}
	if req.LowStockThreshold != nil {
		product.LowStockThreshold = *req.LowStockThreshold
	}
	if err := validateStock(product); err != nil {
		return nil, err
	}

	category, err := s.categoryRepo.GetByID(ctx, req.CategoryID)
	if err != nil {
		return nil, fmt.Errorf("get category: %w", err)
	}
	if category == nil {
		return nil, NewValidationError("unknown category")
	}
	product.CategoryID = category.ID
	product.CategoryName = category.Name

	if err := s.productRepo.Create(ctx, product); err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}
	resp := dto.FromProduct(product)
	return &resp, nil
}

func (s *ProductService) GetByID(ctx context.Context, id uuid.UUID) (*dto.ProductResponse, error) {
	if cached, ok := s.cache.get(ctx, id); ok {
		resp := dto.FromProduct(cached)
		return &resp, nil
	}

	product, err := s.productRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	if product == nil {
		return nil, notFound("product", id)
	}

	s.cache.set(ctx, product)
	resp := dto.FromProduct(product)
	return &resp, nil
}

// List returns the filtered, sorted catalog together with its low-stock subset.
func (s *ProductService) List(ctx context.Context, req dto.ListProductsRequest) (*dto.ProductListResponse, error) {
	filter := repository.ProductFilter{Search: req.Search, Sort: req.Sort}
	if !repository.ValidSort(filter.Sort) {
		filter.Sort = repository.SortName
	}
	if req.CategoryID != "" {
		id, err := uuid.Parse(req.CategoryID)
		if err != nil {
			return nil, NewValidationError("invalid category filter")
		}
		filter.CategoryID = uuid.NullUUID{UUID: id, Valid: true}
	}

	products, err := s.productRepo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	categories, err := s.categoryRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}

	resp := &dto.ProductListResponse{
		Products:   make([]dto.ProductResponse, 0, len(products)),
		LowStock:   []dto.ProductResponse{},
		Categories: make([]dto.CategoryResponse, 0, len(categories)),
		Search:     req.Search,
		Sort:       filter.Sort,
		Total:      len(products),
	}
	if filter.CategoryID.Valid {
		resp.CategoryID = &filter.CategoryID.UUID
	}
	for i := range products {
		item := dto.FromProduct(&products[i])
		resp.Products = append(resp.Products, item)
		if products[i].IsLowStock() {
			resp.LowStock = append(resp.LowStock, item)
		}
	}
	for i := range categories {
		resp.Categories = append(resp.Categories, dto.FromCategory(&categories[i]))
	}
	return resp, nil
}

func (s *ProductService) Update(ctx context.Context, id uuid.UUID, req dto.UpdateProductRequest) (*dto.ProductResponse, error) {
	product, err := s.productRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	if product == nil {
		return nil, notFound("product", id)
	}
	version := product.UpdatedAt

	if req.Name != nil {
		if product.Name, err = validateName("product", *req.Name); err != nil {
			return nil, err
		}
	}
	if req.Price != nil {
		if product.Price, err = validatePrice(*req.Price); err != nil {
			return nil, err
		}
	}
	if req.QuantityInStock != nil {
		product.QuantityInStock = *req.QuantityInStock
	}
	if req.LowStockThreshold != nil {
		product.LowStockThreshold = *req.LowStockThreshold
	}
	if err := validateStock(product); err != nil {
		return nil, err
	}
	if req.CategoryID != nil && *req.CategoryID != product.CategoryID {
		category, err := s.categoryRepo.GetByID(ctx, *req.CategoryID)
		if err != nil {
			return nil, fmt.Errorf("get category: %w", err)
		}
		if category == nil {
			return nil, NewValidationError("unknown category")
		}
		product.CategoryID = category.ID
		product.CategoryName = category.Name
	}

	if err := s.productRepo.Update(ctx, product, version); err != nil {
		if !errors.Is(err, repository.ErrStaleWrite) {
			return nil, fmt.Errorf("update product: %w", err)
		}
		exists, xerr := s.productRepo.Exists(ctx, id)
		if xerr != nil {
			return nil, fmt.Errorf("update product: %w", xerr)
		}
		if !exists {
			return nil, &ConflictError{Entity: "product", ID: id.String(), Reason: "deleted by another writer"}
		}
		return nil, fmt.Errorf("update product %s: %w", id, err)
	}

	s.cache.invalidate(ctx, id)
	resp := dto.FromProduct(product)
	return &resp, nil
}

// Delete is a no-op for unknown products. Order items keep a null product reference.
func (s *ProductService) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.productRepo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	s.cache.invalidate(ctx, id)
	return nil
}

func validatePrice(price decimal.Decimal) (decimal.Decimal, error) {
	rounded := price.Round(2)
	if !rounded.IsPositive() {
		return decimal.Zero, NewValidationError("price must be greater than 0")
	}
	return rounded, nil
}

func validateStock(p *model.Product) error {
	if p.QuantityInStock < 0 {
		return NewValidationError("stock quantity cannot be negative")
	}
	if p.LowStockThreshold < 1 {
		return NewValidationError("low stock threshold must be at least 1")
	}
	return nil
}
