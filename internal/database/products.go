package database

import (
	"context"
	"fmt"

	"github.com/TemirB/shop/internal/domain"

	"github.com/jackc/pgx/v5"
)

const productColumns = `p.id, p.name, p.description, p.price, p.discount, p.archived, p.preview, p.created_at`

var productOrdering = map[string]string{
	"id":         "p.id",
	"name":       "p.name",
	"price":      "p.price",
	"discount":   "p.discount",
	"created_at": "p.created_at",
}

// ListProducts applies the filter's search, archived flag and ordering.
// A zero page limit returns every matching row.
func (r *Repo) ListProducts(ctx context.Context, f domain.ProductFilter) ([]domain.Product, error) {
	var (
		conds []string
		args  []any
	)
	if f.Archived != nil {
		args = append(args, *f.Archived)
		conds = append(conds, fmt.Sprintf("p.archived = $%d", len(args)))
	}
	if f.Search != "" {
		args = append(args, containsPattern(f.Search))
		conds = append(conds, fmt.Sprintf("(p.name ILIKE $%d OR p.description ILIKE $%d)", len(args), len(args)))
	}
	page, args := limitOffset(f.Page, args)

	rows, err := r.db.Query(ctx, fmt.Sprintf(`SELECT %s FROM %s p%s %s%s`,
		productColumns, r.qt("products"), where(conds),
		orderBy(f.Ordering, productOrdering, "p.id", "p.id"), page,
	), args...)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	return scanProducts(rows)
}

// LatestProducts returns the n most recently created products.
func (r *Repo) LatestProducts(ctx context.Context, n int) ([]domain.Product, error) {
	rows, err := r.db.Query(ctx, fmt.Sprintf(`
		SELECT %s FROM %s p
		ORDER BY p.created_at DESC, p.id DESC
		LIMIT $1
	`, productColumns, r.qt("products")), n)
	if err != nil {
		return nil, fmt.Errorf("query latest products: %w", err)
	}
	return scanProducts(rows)
}

// GetProduct returns the product with its images whether archived or not.
func (r *Repo) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	var p domain.Product
	err := scanProduct(r.db.QueryRow(ctx, fmt.Sprintf(`
		SELECT %s FROM %s p WHERE p.id = $1
	`, productColumns, r.qt("products")), id), &p)
	if err != nil {
		return nil, translate(err)
	}

	rows, err := r.db.Query(ctx, fmt.Sprintf(`
		SELECT id, product_id, image FROM %s WHERE product_id = $1 ORDER BY id
	`, r.qt("product_images")), id)
	if err != nil {
		return nil, fmt.Errorf("query product images: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var img domain.ProductImage
		if err := rows.Scan(&img.ID, &img.ProductID, &img.Image); err != nil {
			return nil, err
		}
		p.Images = append(p.Images, img)
	}
	return &p, rows.Err()
}

func (r *Repo) CreateProduct(ctx context.Context, p *domain.Product) error {
	err := r.db.QueryRow(ctx, fmt.Sprintf(`
		INSERT INTO %s (name, description, price, discount, archived, preview)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`, r.qt("products")), p.Name, p.Description, p.Price, p.Discount, p.Archived, p.Preview).Scan(&p.ID, &p.CreatedAt)
	return translate(err)
}

func (r *Repo) UpdateProduct(ctx context.Context, p *domain.Product) error {
	err := r.db.QueryRow(ctx, fmt.Sprintf(`
		UPDATE %s SET name = $2, description = $3, price = $4, discount = $5, archived = $6, preview = $7
		WHERE id = $1
		RETURNING created_at
	`, r.qt("products")), p.ID, p.Name, p.Description, p.Price, p.Discount, p.Archived, p.Preview).Scan(&p.CreatedAt)
	return translate(err)
}

// ArchiveProduct is the soft delete: the row stays for orders and exports.
func (r *Repo) ArchiveProduct(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, fmt.Sprintf(`UPDATE %s SET archived = TRUE WHERE id = $1`, r.qt("products")), id)
	if err != nil {
		return fmt.Errorf("archive product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// BulkCreateProducts inserts all products in a single transaction: either
// every row is stored or none is.
func (r *Repo) BulkCreateProducts(ctx context.Context, products []domain.Product) error {
	if len(products) == 0 {
		return nil
	}
	return r.inTx(ctx, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, p := range products {
			batch.Queue(fmt.Sprintf(`
				INSERT INTO %s (name, description, price, discount, archived, preview)
				VALUES ($1, $2, $3, $4, $5, $6)
				RETURNING id, created_at
			`, r.qt("products")), p.Name, p.Description, p.Price, p.Discount, p.Archived, p.Preview)
		}
		br := tx.SendBatch(ctx, batch)
		for i := range products {
			if err := br.QueryRow().Scan(&products[i].ID, &products[i].CreatedAt); err != nil {
				_ = br.Close()
				return translate(err)
			}
		}
		return br.Close()
	})
}

// AddProductImages stores image paths for an existing product.
func (r *Repo) AddProductImages(ctx context.Context, productID int64, paths []string) ([]domain.ProductImage, error) {
	images := make([]domain.ProductImage, 0, len(paths))
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1)`, r.qt("products")), productID).Scan(&exists); err != nil {
			return fmt.Errorf("check product: %w", err)
		}
		if !exists {
			return domain.ErrNotFound
		}
		for _, path := range paths {
			img := domain.ProductImage{ProductID: productID, Image: path}
			if err := tx.QueryRow(ctx, fmt.Sprintf(`
				INSERT INTO %s (product_id, image) VALUES ($1, $2) RETURNING id
			`, r.qt("product_images")), productID, path).Scan(&img.ID); err != nil {
				return translate(err)
			}
			images = append(images, img)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return images, nil
}

func scanProduct(row pgx.Row, p *domain.Product) error {
	return row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Discount, &p.Archived, &p.Preview, &p.CreatedAt)
}

func scanProducts(rows pgx.Rows) ([]domain.Product, error) {
	defer rows.Close()

	products := []domain.Product{}
	for rows.Next() {
		var p domain.Product
		if err := scanProduct(rows, &p); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}
