package client

import (
	"context"
	"sync"

	"serenity-catalog/internal/domain"
	"serenity-catalog/internal/service"
)

// View holds the admin catalog screen state: the search term, the current page,
// the last page of results and the last error reported by the server.
type View struct {
	client *Client

	mu       sync.Mutex
	term     string
	page     int
	pageSize int
	result   *service.SearchResult
	lastErr  error
}

// NewView creates a View on page 1 with the default page size
func NewView(client *Client) *View {
	return &View{
		client:   client,
		page:     service.DefaultPage,
		pageSize: service.DefaultPageSize,
	}
}

// Login signs the underlying client in
func (v *View) Login(ctx context.Context, username, password string) (domain.Session, error) {
	session, err := v.client.Login(ctx, username, password)
	v.record(err)
	return session, err
}

// Refresh re-issues the current search
func (v *View) Refresh(ctx context.Context) error {
	v.mu.Lock()
	term, page, pageSize := v.term, v.page, v.pageSize
	v.mu.Unlock()

	result, err := v.client.Search(ctx, term, page, pageSize)

	v.mu.Lock()
	defer v.mu.Unlock()
	v.lastErr = err
	if err == nil {
		if result.Products == nil {
			result.Products = []*domain.Product{}
		}
		v.result = result
	}
	return err
}

// SetSearchTerm changes the term and searches again. The page is kept.
func (v *View) SetSearchTerm(ctx context.Context, term string) error {
	v.mu.Lock()
	v.term = term
	v.mu.Unlock()
	return v.Refresh(ctx)
}

// SetPage moves to page and searches again. Pages below 1 become 1.
func (v *View) SetPage(ctx context.Context, page int) error {
	if page < 1 {
		page = 1
	}
	v.mu.Lock()
	v.page = page
	v.mu.Unlock()
	return v.Refresh(ctx)
}

// NextPage advances one page when there is one
func (v *View) NextPage(ctx context.Context) error {
	if !v.HasNext() {
		return nil
	}
	return v.SetPage(ctx, v.Page()+1)
}

// PrevPage goes back one page when there is one
func (v *View) PrevPage(ctx context.Context) error {
	if !v.HasPrev() {
		return nil
	}
	return v.SetPage(ctx, v.Page()-1)
}

// Submit uploads image first when given, then creates the product with the
// returned URL and refreshes the listing. Failures are recorded and returned
// as the server reported them; nothing is retried.
func (v *View) Submit(ctx context.Context, form ProductForm, image *Image) (*domain.Product, error) {
	if image != nil {
		imageURL, err := v.client.UploadImage(ctx, *image)
		if err != nil {
			v.record(err)
			return nil, err
		}
		form.ImageURL = imageURL
	}

	product, err := v.client.CreateProduct(ctx, form)
	if err != nil {
		v.record(err)
		return nil, err
	}

	if err := v.Refresh(ctx); err != nil {
		return product, err
	}
	return product, nil
}

func (v *View) record(err error) {
	v.mu.Lock()
	v.lastErr = err
	v.mu.Unlock()
}

// Term returns the current search term
func (v *View) Term() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.term
}

// Page returns the current page number
func (v *View) Page() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.page
}

// PageSize returns the number of products per page
func (v *View) PageSize() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.pageSize
}

// Result returns the last page of results, nil before the first search
func (v *View) Result() *service.SearchResult {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.result
}

// Err returns the error of the last operation, nil when it succeeded
func (v *View) Err() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lastErr
}

// Empty reports whether the last search matched no products
func (v *View) Empty() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.result == nil || len(v.result.Products) == 0
}

// PageCount is ceil(totalCount / pageSize)
func (v *View) PageCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.pageCount()
}

func (v *View) pageCount() int {
	if v.result == nil {
		return 0
	}
	return (v.result.TotalCount + v.pageSize - 1) / v.pageSize
}

// HasPrev is false on page 1
func (v *View) HasPrev() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.page > 1
}

// HasNext is false on or after the last page
func (v *View) HasNext() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.page < v.pageCount()
}
