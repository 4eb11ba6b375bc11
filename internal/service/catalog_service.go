package service

import (
	"context"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"serenity-catalog/internal/domain"
	"serenity-catalog/internal/logger"
	"serenity-catalog/internal/messaging"
	"serenity-catalog/internal/repository"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	DefaultPage     = 1
	DefaultPageSize = 10
)

// AssetStore persists uploaded images
type AssetStore interface {
	Store(ctx context.Context, content io.Reader, originalName string) (domain.AssetReference, error)
	Remove(ctx context.Context, ref domain.AssetReference) error
}

// CatalogCounters are incremented after each successful write
type CatalogCounters struct {
	Created      prometheus.Counter
	Updated      prometheus.Counter
	Deleted      prometheus.Counter
	AssetsStored prometheus.Counter
}

// SearchQuery selects one page of the catalog. Page and PageSize below 1 fall back to the defaults.
type SearchQuery struct {
	Term     string
	Page     int
	PageSize int
}

// Normalize applies the default page and page size. Pages whose offset would
// overflow an int are clamped to the last representable page.
func (q SearchQuery) Normalize() SearchQuery {
	q.Term = strings.TrimSpace(q.Term)
	if q.Page < 1 {
		q.Page = DefaultPage
	}
	if q.PageSize < 1 {
		q.PageSize = DefaultPageSize
	}
	if q.Page-1 > math.MaxInt/q.PageSize {
		q.Page = math.MaxInt/q.PageSize + 1
	}
	return q
}

// Skip is the number of matching products before the requested page
func (q SearchQuery) Skip() int {
	return (q.Page - 1) * q.PageSize
}

// SearchResult is one page of products plus the total number of matches
type SearchResult struct {
	Products   []*domain.Product `json:"products"`
	TotalCount int               `json:"totalCount"`
}

// CreateProductInput holds the fields accepted when adding a product
type CreateProductInput struct {
	Name        string       `json:"name" validate:"required,max=255"`
	Type        string       `json:"type" validate:"required,max=100"`
	Brand       string       `json:"brand" validate:"required,max=100"`
	Price       *float64     `json:"price" validate:"required,gte=0"`
	Stock       int          `json:"stock" validate:"gte=0"`
	ExpiredDate *domain.Date `json:"expiredDate"`
	ImageURL    string       `json:"imageUrl" validate:"max=500"`
}

func (in *CreateProductInput) normalize() {
	in.Name = strings.TrimSpace(in.Name)
	in.Type = strings.TrimSpace(in.Type)
	in.Brand = strings.TrimSpace(in.Brand)
	in.ImageURL = strings.TrimSpace(in.ImageURL)
}

// UpdateProductInput holds the fields an update replaces
type UpdateProductInput struct {
	Name  string   `json:"name" validate:"required,max=255"`
	Type  string   `json:"type" validate:"required,max=100"`
	Brand string   `json:"brand" validate:"required,max=100"`
	Price *float64 `json:"price" validate:"required,gte=0"`
}

func (in *UpdateProductInput) normalize() {
	in.Name = strings.TrimSpace(in.Name)
	in.Type = strings.TrimSpace(in.Type)
	in.Brand = strings.TrimSpace(in.Brand)
}

// ImageUpload is an image file received from the client
type ImageUpload struct {
	Content  io.Reader
	Filename string
}

// CatalogService defines the interface for catalog business logic
type CatalogService interface {
	Search(ctx context.Context, query SearchQuery) (*SearchResult, error)
	CreateProduct(ctx context.Context, session domain.Session, input CreateProductInput, image *ImageUpload) (*domain.Product, error)
	UpdateProduct(ctx context.Context, session domain.Session, id uuid.UUID, input UpdateProductInput) (*domain.Product, error)
	DeleteProduct(ctx context.Context, session domain.Session, id uuid.UUID) error
	UploadImage(ctx context.Context, session domain.Session, upload ImageUpload) (domain.AssetReference, error)
}

type catalogService struct {
	products  repository.ProductRepository
	assets    AssetStore
	publisher messaging.EventPublisher
	counters  CatalogCounters
	logger    *zap.Logger
}

// NewCatalogService creates a new instance of CatalogService
func NewCatalogService(
	products repository.ProductRepository,
	assets AssetStore,
	publisher messaging.EventPublisher,
	counters CatalogCounters,
	logger *zap.Logger,
) CatalogService {
	return &catalogService{
		products:  products,
		assets:    assets,
		publisher: publisher,
		counters:  counters,
		logger:    logger,
	}
}

// Search returns the requested page of products matching the term
func (s *catalogService) Search(ctx context.Context, query SearchQuery) (*SearchResult, error) {
	query = query.Normalize()

	products, total, err := s.products.List(ctx, repository.ProductFilter{Search: query.Term}, query.Skip(), query.PageSize)
	if err != nil {
		return nil, err
	}

	return &SearchResult{Products: products, TotalCount: total}, nil
}

// CreateProduct validates input, stores the optional image, then persists the product.
// When the image cannot be stored nothing is persisted; when the product cannot be
// persisted the image stored for it is removed again.
func (s *catalogService) CreateProduct(ctx context.Context, session domain.Session, input CreateProductInput, image *ImageUpload) (*domain.Product, error) {
	if err := requireSession(session); err != nil {
		return nil, err
	}

	input.normalize()
	if err := validateInput(&input); err != nil {
		return nil, err
	}

	log := logger.ForSession(s.logger, session)

	product := &domain.Product{
		Name:        input.Name,
		Type:        input.Type,
		Brand:       input.Brand,
		Price:       *input.Price,
		Stock:       input.Stock,
		ExpiredDate: input.ExpiredDate,
		ImageURL:    input.ImageURL,
	}

	var stored *domain.AssetReference
	if image != nil {
		ref, err := s.assets.Store(ctx, image.Content, image.Filename)
		if err != nil {
			log.Warn("Product not created, image could not be stored", zap.Error(err))
			return nil, err
		}
		s.counters.AssetsStored.Inc()
		product.ImageURL = ref.URL
		stored = &ref
	}

	if !domain.IsKnownProductType(product.Type) {
		log.Debug("Product type outside the known list", zap.String("type", product.Type))
	}

	if err := s.products.Create(ctx, product); err != nil {
		if stored != nil {
			if rmErr := s.assets.Remove(context.WithoutCancel(ctx), *stored); rmErr != nil {
				log.Error("Failed to remove image of unsaved product",
					zap.String("filename", stored.Filename),
					zap.Error(rmErr),
				)
			}
		}
		return nil, err
	}

	s.counters.Created.Inc()
	s.publish(ctx, log, session, messaging.EventCreated, product.ID, product.Name)

	log.Info("Product created",
		zap.String("product_id", product.ID.String()),
		zap.String("name", product.Name),
	)

	return product, nil
}

// UpdateProduct replaces name, type, brand and price of an existing product
func (s *catalogService) UpdateProduct(ctx context.Context, session domain.Session, id uuid.UUID, input UpdateProductInput) (*domain.Product, error) {
	if err := requireSession(session); err != nil {
		return nil, err
	}

	input.normalize()
	if err := validateInput(&input); err != nil {
		return nil, err
	}

	product, err := s.products.Update(ctx, id, repository.ProductUpdate{
		Name:  input.Name,
		Type:  input.Type,
		Brand: input.Brand,
		Price: *input.Price,
	})
	if err != nil {
		return nil, err
	}

	log := logger.ForSession(s.logger, session)
	s.counters.Updated.Inc()
	s.publish(ctx, log, session, messaging.EventUpdated, product.ID, product.Name)

	log.Info("Product updated", zap.String("product_id", product.ID.String()))

	return product, nil
}

// DeleteProduct removes a product permanently. Its image file is left in place.
func (s *catalogService) DeleteProduct(ctx context.Context, session domain.Session, id uuid.UUID) error {
	if err := requireSession(session); err != nil {
		return err
	}

	if err := s.products.Delete(ctx, id); err != nil {
		return err
	}

	log := logger.ForSession(s.logger, session)
	s.counters.Deleted.Inc()
	s.publish(ctx, log, session, messaging.EventDeleted, id, "")

	log.Info("Product deleted", zap.String("product_id", id.String()))

	return nil
}

// UploadImage stores a standalone image and returns its reference
func (s *catalogService) UploadImage(ctx context.Context, session domain.Session, upload ImageUpload) (domain.AssetReference, error) {
	if err := requireSession(session); err != nil {
		return domain.AssetReference{}, err
	}

	ref, err := s.assets.Store(ctx, upload.Content, upload.Filename)
	if err != nil {
		return domain.AssetReference{}, err
	}

	s.counters.AssetsStored.Inc()
	logger.ForSession(s.logger, session).Info("Image uploaded",
		zap.String("filename", ref.Filename),
		zap.String("url", ref.URL),
	)

	return ref, nil
}

// publish is best effort: a failed publish is logged and never fails the write
func (s *catalogService) publish(ctx context.Context, log *zap.Logger, session domain.Session, eventType string, id uuid.UUID, name string) {
	if err := s.publisher.Publish(ctx, messaging.ProductEvent{
		EventType: eventType,
		ProductID: id,
		Name:      name,
		ActorID:   session.UserID,
		Timestamp: time.Now().UTC(),
	}); err != nil {
		log.Error("Failed to publish product event",
			zap.String("event_type", eventType),
			zap.String("product_id", id.String()),
			zap.Error(err),
		)
	}
}

func requireSession(session domain.Session) error {
	if session.UserID == "" {
		return fmt.Errorf("catalog writes require a session: %w", domain.ErrUnauthorized)
	}
	return nil
}
