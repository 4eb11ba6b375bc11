package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"serenity-catalog/internal/domain"

	"github.com/google/uuid"
)

var (
	ErrProductNotFound = fmt.Errorf("product %w", domain.ErrNotFound)
)

// ProductFilter narrows a listing. A blank Search matches every product.
type ProductFilter struct {
	Search string
}

// ProductUpdate holds the fields an update replaces
type ProductUpdate struct {
	Name  string
	Type  string
	Brand string
	Price float64
}

// ProductRepository defines the interface for product data access
type ProductRepository interface {
	List(ctx context.Context, filter ProductFilter, skip, take int) ([]*domain.Product, int, error)
	Create(ctx context.Context, product *domain.Product) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Product, error)
	Update(ctx context.Context, id uuid.UUID, fields ProductUpdate) (*domain.Product, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Count(ctx context.Context) (int, error)
}

type productRepository struct {
	db *sql.DB
}

// NewProductRepository creates a new instance of ProductRepository
func NewProductRepository(db *sql.DB) ProductRepository {
	return &productRepository{db: db}
}

const productColumns = `id, name, type, brand, price, stock, expired_date, image_url, created_at, updated_at`

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*domain.Product, error) {
	product := &domain.Product{}
	var expired sql.NullTime

	err := row.Scan(
		&product.ID,
		&product.Name,
		&product.Type,
		&product.Brand,
		&product.Price,
		&product.Stock,
		&expired,
		&product.ImageURL,
		&product.CreatedAt,
		&product.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if expired.Valid {
		d := domain.NewDate(expired.Time)
		product.ExpiredDate = &d
	}
	return product, nil
}

func upstream(action string, err error) error {
	return fmt.Errorf("failed to %s: %w: %w", action, domain.ErrUpstreamFailure, err)
}

// searchPattern escapes LIKE metacharacters so the term matches literally
func searchPattern(term string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + replacer.Replace(term) + "%"
}

// List returns one page of products matching filter plus the total match count.
// The search term is a case-insensitive substring of name, type or brand.
func (r *productRepository) List(ctx context.Context, filter ProductFilter, skip, take int) ([]*domain.Product, int, error) {
	whereClause := ""
	args := []any{}

	if term := strings.TrimSpace(filter.Search); term != "" {
		whereClause = `WHERE name ILIKE $1 OR type ILIKE $1 OR brand ILIKE $1`
		args = append(args, searchPattern(term))
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM products %s", whereClause)
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, upstream("count products", err)
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM products
		%s
		ORDER BY created_at DESC, id
		LIMIT $%d OFFSET $%d
	`, productColumns, whereClause, len(args)+1, len(args)+2)

	args = append(args, take, skip)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, upstream("list products", err)
	}
	defer rows.Close()

	products := []*domain.Product{}
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, 0, upstream("scan product", err)
		}
		products = append(products, product)
	}

	if err = rows.Err(); err != nil {
		return nil, 0, upstream("iterate products", err)
	}

	return products, total, nil
}

// Create inserts a new product, assigning its identifier and timestamps
func (r *productRepository) Create(ctx context.Context, product *domain.Product) error {
	if product.ID == uuid.Nil {
		product.ID = uuid.New()
	}
	now := time.Now().UTC()
	product.CreatedAt = now
	product.UpdatedAt = now

	var expired any
	if product.ExpiredDate != nil {
		expired = product.ExpiredDate.Time
	}

	query := `
		INSERT INTO products (id, name, type, brand, price, stock, expired_date, image_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.ExecContext(
		ctx,
		query,
		product.ID,
		product.Name,
		product.Type,
		product.Brand,
		product.Price,
		product.Stock,
		expired,
		product.ImageURL,
		product.CreatedAt,
		product.UpdatedAt,
	)
	if err != nil {
		return upstream("create product", err)
	}

	return nil
}

// FindByID retrieves a product by ID
func (r *productRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	query := fmt.Sprintf(`SELECT %s FROM products WHERE id = $1`, productColumns)

	product, err := scanProduct(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, upstream("find product by ID", err)
	}

	return product, nil
}

// Update replaces name, type, brand and price in a single statement
func (r *productRepository) Update(ctx context.Context, id uuid.UUID, fields ProductUpdate) (*domain.Product, error) {
	query := fmt.Sprintf(`
		UPDATE products
		SET name = $2, type = $3, brand = $4, price = $5, updated_at = $6
		WHERE id = $1
		RETURNING %s
	`, productColumns)

	row := r.db.QueryRowContext(
		ctx,
		query,
		id,
		fields.Name,
		fields.Type,
		fields.Brand,
		fields.Price,
		time.Now().UTC(),
	)

	product, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, upstream("update product", err)
	}

	return product, nil
}

// Delete removes a product permanently
func (r *productRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return upstream("delete product", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return upstream("get rows affected", err)
	}

	if rowsAffected == 0 {
		return ErrProductNotFound
	}

	return nil
}

// Count returns the number of stored products
func (r *productRepository) Count(ctx context.Context) (int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`).Scan(&total); err != nil {
		return 0, upstream("count products", err)
	}
	return total, nil
}
