package transport

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"serenity-catalog/internal/domain"
	"serenity-catalog/internal/middleware"
	"serenity-catalog/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// UpdateProductRequest is the body of PUT /products
type UpdateProductRequest struct {
	ProductID string   `json:"productId"`
	Name      string   `json:"name"`
	Type      string   `json:"type"`
	Brand     string   `json:"brand"`
	Price     *float64 `json:"price"`
}

// ProductResponse wraps a written product with a confirmation message
type ProductResponse struct {
	Message string          `json:"message"`
	Product *domain.Product `json:"product,omitempty"`
}

// ProductHandler handles HTTP requests for the product catalog
type ProductHandler struct {
	catalog  service.CatalogService
	maxBytes int64
	logger   *zap.Logger
}

// NewProductHandler creates a new ProductHandler
func NewProductHandler(catalog service.CatalogService, maxBytes int64, logger *zap.Logger) *ProductHandler {
	return &ProductHandler{
		catalog:  catalog,
		maxBytes: maxBytes,
		logger:   logger,
	}
}

// RegisterRoutes registers the product routes. Reads need only authMiddleware;
// writes additionally pass through writeMiddleware.
func (h *ProductHandler) RegisterRoutes(r chi.Router, authMiddleware func(http.Handler) http.Handler, writeMiddleware ...func(http.Handler) http.Handler) {
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware)
		r.Get("/products", h.List)

		r.Group(func(r chi.Router) {
			r.Use(writeMiddleware...)
			r.Post("/products", h.Create)
			r.Put("/products", h.Update)
			r.Delete("/products", h.Delete)
		})
	})
}

// List handles GET /products?searchTerm&page&pageSize
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	// unparsable values fall back to the defaults
	page, _ := strconv.Atoi(q.Get("page"))
	pageSize, _ := strconv.Atoi(q.Get("pageSize"))

	result, err := h.catalog.Search(r.Context(), service.SearchQuery{
		Term:     q.Get("searchTerm"),
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		middleware.RespondWithDomainError(w, h.logger, err, "failed to fetch products")
		return
	}

	if result.Products == nil {
		result.Products = []*domain.Product{}
	}

	middleware.RespondWithJSON(w, http.StatusOK, result)
}

// Create handles POST /products with a JSON body or a multipart form carrying an optional image
func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	session, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		middleware.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var (
		input service.CreateProductInput
		image *service.ImageUpload
		err   error
	)

	if isMultipart(r) {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
		input, image, err = h.readProductForm(r)
		if r.MultipartForm != nil {
			defer r.MultipartForm.RemoveAll()
		}
		if image != nil {
			if closer, ok := image.Content.(io.Closer); ok {
				defer closer.Close()
			}
		}
	} else {
		err = middleware.DecodeJSON(r, &input)
	}
	if err != nil {
		h.logger.Debug("Invalid product payload", zap.Error(err))
		if isTooLarge(err) {
			middleware.RespondWithError(w, http.StatusRequestEntityTooLarge, errTooLarge)
			return
		}
		middleware.RespondWithDomainError(w, h.logger, err, "failed to create product")
		return
	}

	product, err := h.catalog.CreateProduct(r.Context(), session, input, image)
	if err != nil {
		middleware.RespondWithDomainError(w, h.logger, err, "failed to create product")
		return
	}

	middleware.RespondWithJSON(w, http.StatusCreated, ProductResponse{
		Message: "Product created successfully",
		Product: product,
	})
}

// Update handles PUT /products
func (h *ProductHandler) Update(w http.ResponseWriter, r *http.Request) {
	session, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		middleware.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req UpdateProductRequest
	if err := middleware.DecodeJSON(r, &req); err != nil {
		middleware.RespondWithDomainError(w, h.logger, err, "failed to update product")
		return
	}

	id, err := parseProductID(req.ProductID)
	if err != nil {
		middleware.RespondWithDomainError(w, h.logger, err, "failed to update product")
		return
	}

	product, err := h.catalog.UpdateProduct(r.Context(), session, id, service.UpdateProductInput{
		Name:  req.Name,
		Type:  req.Type,
		Brand: req.Brand,
		Price: req.Price,
	})
	if err != nil {
		middleware.RespondWithDomainError(w, h.logger, err, "failed to update product")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, ProductResponse{
		Message: "Product updated successfully",
		Product: product,
	})
}

// Delete handles DELETE /products?productId=
func (h *ProductHandler) Delete(w http.ResponseWriter, r *http.Request) {
	session, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		middleware.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, err := parseProductID(r.URL.Query().Get("productId"))
	if err != nil {
		middleware.RespondWithDomainError(w, h.logger, err, "failed to delete product")
		return
	}

	if err := h.catalog.DeleteProduct(r.Context(), session, id); err != nil {
		middleware.RespondWithDomainError(w, h.logger, err, "failed to delete product")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, ProductResponse{Message: "Product deleted successfully"})
}

// parseProductID rejects a missing id as not found and a malformed one as invalid input
func parseProductID(raw string) (uuid.UUID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return uuid.Nil, fmt.Errorf("productId is required: %w", domain.ErrNotFound)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("productId %q is malformed: %w", raw, domain.ErrInvalidInput)
	}
	return id, nil
}

func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data")
}

// readProductForm reads the product fields and the optional image file from a multipart form
func (h *ProductHandler) readProductForm(r *http.Request) (service.CreateProductInput, *service.ImageUpload, error) {
	var input service.CreateProductInput

	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		return input, nil, fmt.Errorf("failed to parse form: %w: %w", domain.ErrInvalidInput, err)
	}

	input.Name = r.FormValue("name")
	input.Type = r.FormValue("type")
	input.Brand = r.FormValue("brand")
	input.ImageURL = r.FormValue("imageUrl")

	if raw := strings.TrimSpace(r.FormValue("price")); raw != "" {
		price, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return input, nil, &domain.ValidationError{Fields: map[string]string{"price": "Must be a number"}}
		}
		input.Price = &price
	}

	if raw := strings.TrimSpace(r.FormValue("stock")); raw != "" {
		stock, err := strconv.Atoi(raw)
		if err != nil {
			return input, nil, &domain.ValidationError{Fields: map[string]string{"stock": "Must be a whole number"}}
		}
		input.Stock = stock
	}

	if raw := strings.TrimSpace(r.FormValue("expiredDate")); raw != "" {
		date, err := domain.ParseDate(raw)
		if err != nil {
			return input, nil, err
		}
		input.ExpiredDate = &date
	}

	file, header, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return input, nil, nil
	}
	if err != nil {
		return input, nil, fmt.Errorf("failed to read image: %w: %w", domain.ErrInvalidInput, err)
	}

	return input, &service.ImageUpload{Content: file, Filename: header.Filename}, nil
}
