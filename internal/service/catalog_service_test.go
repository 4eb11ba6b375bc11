package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"serenity-catalog/internal/domain"
	"serenity-catalog/internal/messaging"
	"serenity-catalog/internal/repository"

	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// In-memory product repository preserving insertion order
type mockProductRepository struct {
	mu       sync.Mutex
	products  []*domain.Product
	listErr   error
	createErr error

	lastSkip   int
	lastTake   int
	lastFilter repository.ProductFilter
}

func newMockProductRepository() *mockProductRepository {
	return &mockProductRepository{}
}

func (m *mockProductRepository) List(_ context.Context, filter repository.ProductFilter, skip, take int) ([]*domain.Product, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastSkip, m.lastTake, m.lastFilter = skip, take, filter
	if m.listErr != nil {
		return nil, 0, m.listErr
	}

	term := strings.ToLower(filter.Search)
	var matched []*domain.Product
	for _, p := range m.products {
		if term == "" ||
			strings.Contains(strings.ToLower(p.Name), term) ||
			strings.Contains(strings.ToLower(p.Type), term) ||
			strings.Contains(strings.ToLower(p.Brand), term) {
			matched = append(matched, p)
		}
	}

	page := []*domain.Product{}
	for i := skip; i < len(matched) && i < skip+take; i++ {
		page = append(page, matched[i])
	}
	return page, len(matched), nil
}

func (m *mockProductRepository) Create(_ context.Context, product *domain.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.createErr != nil {
		return m.createErr
	}

	product.ID = uuid.New()
	product.CreatedAt = time.Now()
	product.UpdatedAt = product.CreatedAt
	m.products = append(m.products, product)
	return nil
}

func (m *mockProductRepository) FindByID(_ context.Context, id uuid.UUID) (*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range m.products {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, repository.ErrProductNotFound
}

func (m *mockProductRepository) Update(_ context.Context, id uuid.UUID, fields repository.ProductUpdate) (*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range m.products {
		if p.ID == id {
			p.Name, p.Type, p.Brand, p.Price = fields.Name, fields.Type, fields.Brand, fields.Price
			p.UpdatedAt = time.Now()
			return p, nil
		}
	}
	return nil, repository.ErrProductNotFound
}

func (m *mockProductRepository) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, p := range m.products {
		if p.ID == id {
			m.products = append(m.products[:i], m.products[i+1:]...)
			return nil
		}
	}
	return repository.ErrProductNotFound
}

func (m *mockProductRepository) Count(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.products), nil
}

type mockAssetStore struct {
	err       error
	removeErr error
	calls     int
	names     []string
	removed   []string
}

func (m *mockAssetStore) Remove(_ context.Context, ref domain.AssetReference) error {
	m.removed = append(m.removed, ref.Path)
	return m.removeErr
}

func (m *mockAssetStore) Store(_ context.Context, content io.Reader, originalName string) (domain.AssetReference, error) {
	m.calls++
	m.names = append(m.names, originalName)
	if m.err != nil {
		return domain.AssetReference{}, m.err
	}
	if _, err := io.ReadAll(content); err != nil {
		return domain.AssetReference{}, err
	}
	filename := "stored_" + originalName
	return domain.AssetReference{Filename: filename, Path: filename, URL: "/uploads/" + filename}, nil
}

type mockPublisher struct {
	mu     sync.Mutex
	events []messaging.ProductEvent
	err    error
}

func (m *mockPublisher) Publish(_ context.Context, event messaging.ProductEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return m.err
}

func newTestCounters() CatalogCounters {
	counter := func(name string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: "t"})
	}
	return CatalogCounters{
		Created:      counter("t_created"),
		Updated:      counter("t_updated"),
		Deleted:      counter("t_deleted"),
		AssetsStored: counter("t_assets"),
	}
}

type catalogFixture struct {
	service   CatalogService
	repo      *mockProductRepository
	assets    *mockAssetStore
	publisher *mockPublisher
	counters  CatalogCounters
}

func newCatalogFixture() *catalogFixture {
	f := &catalogFixture{
		repo:      newMockProductRepository(),
		assets:    &mockAssetStore{},
		publisher: &mockPublisher{},
		counters:  newTestCounters(),
	}
	f.service = NewCatalogService(f.repo, f.assets, f.publisher, f.counters, zap.NewNop())
	return f
}

var staffSession = domain.Session{UserID: uuid.NewString(), Username: "kasir", Role: domain.RoleStaff}

func price(v float64) *float64 { return &v }

func validInput() CreateProductInput {
	return CreateProductInput{Name: "Serum A", Type: "Serum", Brand: "X", Price: price(50000), Stock: 10}
}

// Search pages never exceed pageSize, start at (page-1)*pageSize, and report the full match count
func TestProperty_SearchPagination(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("page length is bounded and offset follows the page number", prop.ForAll(
		func(stored, page, pageSize int) bool {
			f := newCatalogFixture()
			for i := 0; i < stored; i++ {
				f.repo.products = append(f.repo.products, &domain.Product{ID: uuid.New(), Name: fmt.Sprintf("Toner %d", i)})
			}

			result, err := f.service.Search(context.Background(), SearchQuery{Page: page, PageSize: pageSize})
			if err != nil {
				t.Logf("FAIL: search failed: %v", err)
				return false
			}

			expectedPage, expectedSize := page, pageSize
			if expectedPage < 1 {
				expectedPage = DefaultPage
			}
			if expectedSize < 1 {
				expectedSize = DefaultPageSize
			}

			if f.repo.lastSkip != (expectedPage-1)*expectedSize || f.repo.lastTake != expectedSize {
				t.Logf("FAIL: skip/take %d/%d for page %d size %d", f.repo.lastSkip, f.repo.lastTake, page, pageSize)
				return false
			}
			if len(result.Products) > expectedSize {
				t.Logf("FAIL: page has %d products, size %d", len(result.Products), expectedSize)
				return false
			}
			if result.TotalCount != stored {
				t.Logf("FAIL: total %d, expected %d", result.TotalCount, stored)
				return false
			}
			if len(result.Products) > 0 && result.Products[0] != f.repo.products[f.repo.lastSkip] {
				t.Logf("FAIL: page does not start at offset %d", f.repo.lastSkip)
				return false
			}
			return true
		},
		gen.IntRange(0, 40),
		gen.IntRange(-3, 6),
		gen.IntRange(-2, 15),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestSearchClampsOverflowingPage(t *testing.T) {
	for _, pageSize := range []int{1, 10, 77} {
		f := newCatalogFixture()
		f.repo.products = []*domain.Product{{ID: uuid.New(), Name: "Toner"}}

		result, err := f.service.Search(context.Background(), SearchQuery{Page: math.MaxInt, PageSize: pageSize})
		require.NoError(t, err)

		assert.GreaterOrEqual(t, f.repo.lastSkip, 0, "page size %d", pageSize)
		assert.Equal(t, pageSize, f.repo.lastTake)
		assert.Empty(t, result.Products)
		assert.Equal(t, 1, result.TotalCount)
	}
}

func TestSearchMatchesNameTypeOrBrand(t *testing.T) {
	f := newCatalogFixture()
	f.repo.products = []*domain.Product{
		{ID: uuid.New(), Name: "Lip Balm Cherry", Type: "Lip Balm", Brand: "Wardah"},
		{ID: uuid.New(), Name: "Matte Red", Type: "Lipstick", Brand: "Emina"},
		{ID: uuid.New(), Name: "Day Cream", Type: "Moisturizer", Brand: "Pixy"},
	}

	result, err := f.service.Search(context.Background(), SearchQuery{Term: "  lip ", Page: 1, PageSize: 10})
	require.NoError(t, err)

	assert.Equal(t, 2, result.TotalCount)
	assert.Equal(t, "lip", f.repo.lastFilter.Search)
}

func TestSearchPropagatesUpstreamFailure(t *testing.T) {
	f := newCatalogFixture()
	f.repo.listErr = fmt.Errorf("failed to list products: %w", domain.ErrUpstreamFailure)

	_, err := f.service.Search(context.Background(), SearchQuery{})
	assert.ErrorIs(t, err, domain.ErrUpstreamFailure)
}

func TestCreateProductEndToEndValues(t *testing.T) {
	f := newCatalogFixture()

	product, err := f.service.CreateProduct(context.Background(), staffSession, validInput(), nil)
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, product.ID)
	assert.Equal(t, 50000.0, product.Price)
	assert.Equal(t, 10, product.Stock)
	assert.Equal(t, 0, f.assets.calls)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.counters.Created))

	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, messaging.EventCreated, f.publisher.events[0].EventType)
	assert.Equal(t, product.ID, f.publisher.events[0].ProductID)
	assert.Equal(t, staffSession.UserID, f.publisher.events[0].ActorID)
}

func TestCreateProductStoresImageFirst(t *testing.T) {
	f := newCatalogFixture()
	input := validInput()
	input.ImageURL = "/uploads/ignored.png"

	product, err := f.service.CreateProduct(context.Background(), staffSession, input, &ImageUpload{
		Content:  strings.NewReader("png-bytes"),
		Filename: "serum.png",
	})
	require.NoError(t, err)

	assert.Equal(t, 1, f.assets.calls)
	assert.Equal(t, "/uploads/stored_serum.png", product.ImageURL, "stored URL replaces the supplied one")
	assert.Equal(t, 1.0, testutil.ToFloat64(f.counters.AssetsStored))
}

func TestCreateProductRemovesImageWhenInsertFails(t *testing.T) {
	f := newCatalogFixture()
	f.repo.createErr = fmt.Errorf("failed to create product: %w", domain.ErrUpstreamFailure)

	_, err := f.service.CreateProduct(context.Background(), staffSession, validInput(), &ImageUpload{
		Content:  strings.NewReader("png-bytes"),
		Filename: "serum.png",
	})

	assert.ErrorIs(t, err, domain.ErrUpstreamFailure)
	assert.Equal(t, []string{"stored_serum.png"}, f.assets.removed)
	assert.Empty(t, f.publisher.events)
	assert.Equal(t, 0.0, testutil.ToFloat64(f.counters.Created))
}

func TestCreateProductKeepsInsertErrorWhenRemoveFails(t *testing.T) {
	f := newCatalogFixture()
	f.repo.createErr = fmt.Errorf("failed to create product: %w", domain.ErrUpstreamFailure)
	f.assets.removeErr = fmt.Errorf("bucket gone: %w", domain.ErrIOFailure)

	_, err := f.service.CreateProduct(context.Background(), staffSession, validInput(), &ImageUpload{
		Content:  strings.NewReader("png-bytes"),
		Filename: "serum.png",
	})

	assert.ErrorIs(t, err, domain.ErrUpstreamFailure)
	assert.NotErrorIs(t, err, domain.ErrIOFailure)
}

func TestCreateProductWithoutImageRemovesNothing(t *testing.T) {
	f := newCatalogFixture()
	f.repo.createErr = fmt.Errorf("failed to create product: %w", domain.ErrUpstreamFailure)

	_, err := f.service.CreateProduct(context.Background(), staffSession, validInput(), nil)

	assert.ErrorIs(t, err, domain.ErrUpstreamFailure)
	assert.Empty(t, f.assets.removed)
}

// A failing asset store never leaves a product behind
func TestProperty_AssetFailureLeavesRepositoryUnchanged(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("repository count is unchanged when the image cannot be stored", prop.ForAll(
		func(existing int, name string, failure error) bool {
			f := newCatalogFixture()
			for i := 0; i < existing; i++ {
				f.repo.products = append(f.repo.products, &domain.Product{ID: uuid.New()})
			}
			f.assets.err = failure

			input := validInput()
			input.Name = name

			product, err := f.service.CreateProduct(context.Background(), staffSession, input, &ImageUpload{
				Content:  strings.NewReader("data"),
				Filename: "photo.jpg",
			})
			if err == nil || product != nil {
				t.Logf("FAIL: create succeeded despite asset failure")
				return false
			}
			if !errors.Is(err, failure) {
				t.Logf("FAIL: asset error not surfaced: %v", err)
				return false
			}

			count, _ := f.repo.Count(context.Background())
			return count == existing &&
				len(f.publisher.events) == 0 &&
				testutil.ToFloat64(f.counters.Created) == 0
		},
		gen.IntRange(0, 20),
		gen.RegexMatch(`[A-Z][a-z]{2,20}`),
		gen.OneConstOf(
			fmt.Errorf("disk full: %w", domain.ErrIOFailure),
			fmt.Errorf("no content: %w", domain.ErrInvalidInput),
		),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestCreateProductValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*CreateProductInput)
		field  string
	}{
		{"missing name", func(in *CreateProductInput) { in.Name = "" }, "name"},
		{"blank name", func(in *CreateProductInput) { in.Name = "   " }, "name"},
		{"missing type", func(in *CreateProductInput) { in.Type = "" }, "type"},
		{"missing brand", func(in *CreateProductInput) { in.Brand = "" }, "brand"},
		{"missing price", func(in *CreateProductInput) { in.Price = nil }, "price"},
		{"negative price", func(in *CreateProductInput) { in.Price = price(-1) }, "price"},
		{"negative stock", func(in *CreateProductInput) { in.Stock = -3 }, "stock"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newCatalogFixture()
			input := validInput()
			tt.mutate(&input)

			_, err := f.service.CreateProduct(context.Background(), staffSession, input, &ImageUpload{
				Content:  strings.NewReader("data"),
				Filename: "a.png",
			})
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)

			var validationErr *domain.ValidationError
			require.True(t, errors.As(err, &validationErr))
			assert.Contains(t, validationErr.Fields, tt.field)

			assert.Equal(t, 0, f.assets.calls, "invalid input never reaches the asset store")
			assert.Empty(t, f.repo.products)
		})
	}
}

func TestCreateProductAcceptsZeroPriceAndUnknownType(t *testing.T) {
	f := newCatalogFixture()
	input := validInput()
	input.Price = price(0)
	input.Type = "Perfume"

	product, err := f.service.CreateProduct(context.Background(), staffSession, input, nil)
	require.NoError(t, err)
	assert.Equal(t, 0.0, product.Price)
	assert.Equal(t, "Perfume", product.Type)
}

func TestUpdateProductPropagatesNotFoundUnchanged(t *testing.T) {
	f := newCatalogFixture()

	_, err := f.service.UpdateProduct(context.Background(), staffSession, uuid.New(), UpdateProductInput{
		Name: "x", Type: "Toner", Brand: "y", Price: price(1),
	})
	assert.Equal(t, repository.ErrProductNotFound, err)
	assert.Equal(t, 0.0, testutil.ToFloat64(f.counters.Updated))
}

func TestUpdateProductKeepsIdentifier(t *testing.T) {
	f := newCatalogFixture()
	created, err := f.service.CreateProduct(context.Background(), staffSession, validInput(), nil)
	require.NoError(t, err)
	id := created.ID

	updated, err := f.service.UpdateProduct(context.Background(), staffSession, id, UpdateProductInput{
		Name: " Serum B ", Type: "Serum", Brand: "Y", Price: price(65000),
	})
	require.NoError(t, err)

	assert.Equal(t, id, updated.ID)
	assert.Equal(t, "Serum B", updated.Name)
	assert.Equal(t, 65000.0, updated.Price)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.counters.Updated))
	assert.Equal(t, messaging.EventUpdated, f.publisher.events[len(f.publisher.events)-1].EventType)
}

func TestDeleteProductTwiceReturnsNotFound(t *testing.T) {
	f := newCatalogFixture()
	created, err := f.service.CreateProduct(context.Background(), staffSession, validInput(), nil)
	require.NoError(t, err)

	require.NoError(t, f.service.DeleteProduct(context.Background(), staffSession, created.ID))

	err = f.service.DeleteProduct(context.Background(), staffSession, created.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.counters.Deleted))
}

func TestPublishFailureDoesNotFailWrites(t *testing.T) {
	f := newCatalogFixture()
	f.publisher.err = errors.New("broker unavailable")

	product, err := f.service.CreateProduct(context.Background(), staffSession, validInput(), nil)
	require.NoError(t, err)
	require.NoError(t, f.service.DeleteProduct(context.Background(), staffSession, product.ID))
}

func TestWritesRequireSession(t *testing.T) {
	f := newCatalogFixture()
	anonymous := domain.Session{}

	_, err := f.service.CreateProduct(context.Background(), anonymous, validInput(), nil)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = f.service.UpdateProduct(context.Background(), anonymous, uuid.New(), UpdateProductInput{})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	assert.ErrorIs(t, f.service.DeleteProduct(context.Background(), anonymous, uuid.New()), domain.ErrUnauthorized)

	_, err = f.service.UploadImage(context.Background(), anonymous, ImageUpload{Content: strings.NewReader("x")})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	assert.Empty(t, f.repo.products)
	assert.Equal(t, 0, f.assets.calls)
}

func TestUploadImage(t *testing.T) {
	f := newCatalogFixture()

	ref, err := f.service.UploadImage(context.Background(), staffSession, ImageUpload{
		Content:  strings.NewReader("bytes"),
		Filename: "toner.webp",
	})
	require.NoError(t, err)
	assert.Equal(t, "/uploads/stored_toner.webp", ref.URL)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.counters.AssetsStored))

	f.assets.err = fmt.Errorf("write failed: %w", domain.ErrIOFailure)
	_, err = f.service.UploadImage(context.Background(), staffSession, ImageUpload{Content: strings.NewReader("x")})
	assert.ErrorIs(t, err, domain.ErrIOFailure)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.counters.AssetsStored))
}
