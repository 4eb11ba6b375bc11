package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"serenity-catalog/internal/domain"
	"serenity-catalog/internal/messaging"
	"serenity-catalog/internal/middleware"
	"serenity-catalog/internal/repository"
	"serenity-catalog/internal/service"
	"serenity-catalog/internal/storage"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testSecret   = "transport-test-secret"
	testMaxBytes = 1 << 20
)

type memoryProductRepository struct {
	mu       sync.Mutex
	products []*domain.Product
}

func (m *memoryProductRepository) List(_ context.Context, filter repository.ProductFilter, skip, take int) ([]*domain.Product, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

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

	var page []*domain.Product
	for i := skip; i < len(matched) && i < skip+take; i++ {
		page = append(page, matched[i])
	}
	return page, len(matched), nil
}

func (m *memoryProductRepository) Create(_ context.Context, product *domain.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	product.ID = uuid.New()
	product.CreatedAt = time.Now()
	product.UpdatedAt = product.CreatedAt
	m.products = append(m.products, product)
	return nil
}

func (m *memoryProductRepository) FindByID(_ context.Context, id uuid.UUID) (*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range m.products {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, repository.ErrProductNotFound
}

func (m *memoryProductRepository) Update(_ context.Context, id uuid.UUID, fields repository.ProductUpdate) (*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range m.products {
		if p.ID == id {
			p.Name, p.Type, p.Brand, p.Price = fields.Name, fields.Type, fields.Brand, fields.Price
			return p, nil
		}
	}
	return nil, repository.ErrProductNotFound
}

func (m *memoryProductRepository) Delete(_ context.Context, id uuid.UUID) error {
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

func (m *memoryProductRepository) Count(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.products), nil
}

type memoryUserRepository struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

func (m *memoryUserRepository) Create(_ context.Context, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.users[user.Username]; exists {
		return repository.ErrUserAlreadyExists
	}
	m.users[user.Username] = user
	return nil
}

func (m *memoryUserRepository) FindByUsername(_ context.Context, username string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, exists := m.users[username]
	if !exists {
		return nil, repository.ErrUserNotFound
	}
	return user, nil
}

func (m *memoryUserRepository) FindByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, user := range m.users {
		if user.ID == id {
			return user, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

// brokenDisk fails every write
type brokenDisk struct {
	storage.Disk
}

func (brokenDisk) Create(context.Context, string, io.Reader) (int64, error) {
	return 0, io.ErrShortWrite
}

type apiFixture struct {
	router   http.Handler
	products *memoryProductRepository
	disk     *storage.LocalDisk
	sessions service.SessionService
	bearer   string
}

func newAPIFixture(t *testing.T) *apiFixture {
	return newAPIFixtureWithDisk(t, nil)
}

// newAPIFixtureWithDisk wires the handlers the way the server does. A nil disk means a temp LocalDisk.
func newAPIFixtureWithDisk(t *testing.T, disk storage.Disk) *apiFixture {
	t.Helper()
	logger := zap.NewNop()

	local, err := storage.NewLocalDisk(t.TempDir(), "/uploads")
	require.NoError(t, err)
	if disk == nil {
		disk = local
	}

	f := &apiFixture{
		products: &memoryProductRepository{},
		disk:     local,
	}

	users := &memoryUserRepository{users: map[string]*domain.User{}}
	f.sessions = service.NewSessionService(users, testSecret, time.Hour, logger)
	_, err = f.sessions.EnsureAdmin(context.Background(), "admin", "rahasia123")
	require.NoError(t, err)

	counter := func(name string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: "t"})
	}
	catalog := service.NewCatalogService(
		f.products,
		storage.NewAssetStore(disk, logger),
		messaging.NopPublisher{},
		service.CatalogCounters{
			Created:      counter("created"),
			Updated:      counter("updated"),
			Deleted:      counter("deleted"),
			AssetsStored: counter("assets"),
		},
		logger,
	)

	r := chi.NewRouter()
	r.MethodNotAllowed(middleware.MethodNotAllowed)
	r.NotFound(middleware.NotFound)

	auth := middleware.AuthMiddleware(testSecret, logger)
	writers := middleware.RequireRole([]string{domain.RoleAdmin, domain.RoleStaff}, logger)

	NewSessionHandler(f.sessions, logger).RegisterRoutes(r)
	NewProductHandler(catalog, testMaxBytes, logger).RegisterRoutes(r, auth, writers)
	NewUploadHandler(catalog, testMaxBytes, logger).RegisterRoutes(r, auth, writers)

	f.bearer, _, err = f.sessions.Login(context.Background(), "admin", "rahasia123")
	require.NoError(t, err)

	f.router = r
	return f
}

func (f *apiFixture) do(t *testing.T, method, target string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Authorization", "Bearer "+f.bearer)

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *apiFixture) doJSON(t *testing.T, method, target string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}
	return f.do(t, method, target, body, "application/json")
}

// multipartBody builds a form with fields and, when fileName is set, an "image" part
func multipartBody(t *testing.T, fields map[string]string, fileName string, content []byte) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if fileName != "" {
		part, err := mw.CreateFormFile("image", fileName)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	return &buf, mw.FormDataContentType()
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}
