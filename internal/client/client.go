// Package client is a typed HTTP client for the catalog API, plus a stateful
// View that pages through search results the way the admin screen does.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"serenity-catalog/internal/domain"
	"serenity-catalog/internal/service"

	"github.com/google/uuid"
)

const defaultTimeout = 30 * time.Second

// APIError is a non-2xx reply. Error returns the server's error string verbatim.
type APIError struct {
	Status  int
	Message string
	Reason  string
}

func (e *APIError) Error() string {
	if e.Reason != "" {
		return e.Reason
	}
	return http.StatusText(e.Status)
}

// Unwrap maps the status back to a domain error kind
func (e *APIError) Unwrap() error {
	switch {
	case e.Status == http.StatusBadRequest || e.Status == http.StatusMethodNotAllowed:
		return domain.ErrInvalidInput
	case e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden:
		return domain.ErrUnauthorized
	case e.Status == http.StatusNotFound:
		return domain.ErrNotFound
	default:
		return domain.ErrUpstreamFailure
	}
}

// ProductForm is the create form as the client fills it in
type ProductForm struct {
	Name        string       `json:"name"`
	Type        string       `json:"type"`
	Brand       string       `json:"brand"`
	Price       float64      `json:"price"`
	Stock       int          `json:"stock"`
	ExpiredDate *domain.Date `json:"expiredDate,omitempty"`
	ImageURL    string       `json:"imageUrl,omitempty"`
}

// ProductUpdate is the body of an update
type ProductUpdate struct {
	ProductID uuid.UUID `json:"productId"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	Brand     string    `json:"brand"`
	Price     float64   `json:"price"`
}

// Image is a file to upload
type Image struct {
	Filename string
	Content  io.Reader
}

// Client talks to one catalog API. It never retries.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New creates a Client for baseURL. A nil httpClient uses a client with a 30s timeout.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// SetToken sets the bearer token sent with every request
func (c *Client) SetToken(token string) {
	c.token = token
}

// Token returns the current bearer token
func (c *Client) Token() string {
	return c.token
}

type loginResponse struct {
	Token string `json:"token"`
	User  struct {
		ID       string `json:"id"`
		Username string `json:"username"`
		Role     string `json:"role"`
	} `json:"user"`
}

// Login signs in and keeps the returned token for later calls
func (c *Client) Login(ctx context.Context, username, password string) (domain.Session, error) {
	var resp loginResponse
	err := c.doJSON(ctx, http.MethodPost, "/auth/login", map[string]string{
		"username": username,
		"password": password,
	}, &resp)
	if err != nil {
		return domain.Session{}, err
	}

	c.token = resp.Token
	return domain.Session{UserID: resp.User.ID, Username: resp.User.Username, Role: resp.User.Role}, nil
}

// Search fetches one page of products
func (c *Client) Search(ctx context.Context, term string, page, pageSize int) (*service.SearchResult, error) {
	q := url.Values{}
	q.Set("searchTerm", term)
	q.Set("page", strconv.Itoa(page))
	q.Set("pageSize", strconv.Itoa(pageSize))

	var result service.SearchResult
	if err := c.doJSON(ctx, http.MethodGet, "/products?"+q.Encode(), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

type productEnvelope struct {
	Message string          `json:"message"`
	Product *domain.Product `json:"product"`
}

// CreateProduct adds a product
func (c *Client) CreateProduct(ctx context.Context, form ProductForm) (*domain.Product, error) {
	var resp productEnvelope
	if err := c.doJSON(ctx, http.MethodPost, "/products", form, &resp); err != nil {
		return nil, err
	}
	return resp.Product, nil
}

// UpdateProduct replaces name, type, brand and price of a product
func (c *Client) UpdateProduct(ctx context.Context, update ProductUpdate) (*domain.Product, error) {
	var resp productEnvelope
	if err := c.doJSON(ctx, http.MethodPut, "/products", update, &resp); err != nil {
		return nil, err
	}
	return resp.Product, nil
}

// DeleteProduct removes a product
func (c *Client) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	q := url.Values{}
	q.Set("productId", id.String())
	return c.doJSON(ctx, http.MethodDelete, "/products?"+q.Encode(), nil, nil)
}

// UploadImage posts image as the multipart field "image" and returns its URL
func (c *Client) UploadImage(ctx context.Context, image Image) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	part, err := mw.CreateFormFile("image", image.Filename)
	if err != nil {
		return "", fmt.Errorf("build upload form: %w", err)
	}
	if _, err := io.Copy(part, image.Content); err != nil {
		return "", fmt.Errorf("read image %s: %w", image.Filename, err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("build upload form: %w", err)
	}

	var resp struct {
		ImageURL string `json:"imageUrl"`
	}
	if err := c.do(ctx, http.MethodPost, "/upload", &buf, mw.FormDataContentType(), &resp); err != nil {
		return "", err
	}
	return resp.ImageURL, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload, out interface{}) error {
	var body io.Reader
	contentType := ""
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
		contentType = "application/json"
	}
	return c.do(ctx, method, path, body, contentType, out)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w: %w", method, path, domain.ErrUpstreamFailure, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w: %w", domain.ErrUpstreamFailure, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		var errBody struct {
			Message string `json:"message"`
			Error   string `json:"error"`
		}
		if json.Unmarshal(raw, &errBody) == nil {
			apiErr.Message = errBody.Message
			apiErr.Reason = errBody.Error
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w: %w", domain.ErrUpstreamFailure, err)
	}
	return nil
}
