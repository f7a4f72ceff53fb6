package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/TemirB/shop/internal/domain"

	"github.com/jackc/pgx/v5"
)

const orderColumns = `o.id, o.delivery_address, o.promocode, o.user_id, o.receipt, o.created_at`

var orderOrdering = map[string]string{
	"id":               "o.id",
	"created_at":       "o.created_at",
	"delivery_address": "o.delivery_address",
	"promocode":        "o.promocode",
	"user":             "o.user_id",
}

// OrdersForUser returns the user's orders by ascending id with the user and
// the products (in association order) attached.
func (r *Repo) OrdersForUser(ctx context.Context, userID int64) ([]domain.Order, error) {
	user, err := r.getUser(ctx, r.db, "u.id = $1", userID)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, fmt.Sprintf(`
		SELECT %s FROM %s o
		WHERE o.user_id = $1
		ORDER BY o.id
	`, orderColumns, r.qt("orders")), userID)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	orders, err := scanOrders(rows)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].User = user
	}
	if err := r.attachProducts(ctx, r.db, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *Repo) GetOrder(ctx context.Context, id int64) (*domain.Order, error) {
	var o domain.Order
	err := scanOrder(r.db.QueryRow(ctx, fmt.Sprintf(`
		SELECT %s FROM %s o WHERE o.id = $1
	`, orderColumns, r.qt("orders")), id), &o)
	if err != nil {
		return nil, translate(err)
	}
	orders := []domain.Order{o}
	if err := r.attachUsers(ctx, orders); err != nil {
		return nil, err
	}
	if err := r.attachProducts(ctx, r.db, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

func (r *Repo) ListOrders(ctx context.Context, f domain.OrderFilter) ([]domain.Order, error) {
	var (
		conds []string
		args  []any
	)
	if f.UserID != 0 {
		args = append(args, f.UserID)
		conds = append(conds, fmt.Sprintf("o.user_id = $%d", len(args)))
	}
	if f.DeliveryAddress != "" {
		args = append(args, containsPattern(f.DeliveryAddress))
		conds = append(conds, fmt.Sprintf("o.delivery_address ILIKE $%d", len(args)))
	}
	if f.Promocode != "" {
		args = append(args, f.Promocode)
		conds = append(conds, fmt.Sprintf("o.promocode = $%d", len(args)))
	}
	page, args := limitOffset(f.Page, args)

	rows, err := r.db.Query(ctx, fmt.Sprintf(`SELECT %s FROM %s o%s %s%s`,
		orderColumns, r.qt("orders"), where(conds),
		orderBy(f.Ordering, orderOrdering, "o.id", "o.id"), page,
	), args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	orders, err := scanOrders(rows)
	if err != nil {
		return nil, err
	}
	if err := r.attachUsers(ctx, orders); err != nil {
		return nil, err
	}
	if err := r.attachProducts(ctx, r.db, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// CreateOrder inserts the order and links productIDs in the given order.
func (r *Repo) CreateOrder(ctx context.Context, o *domain.Order, productIDs []int64) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		if err := r.userExists(ctx, tx, o.UserID); err != nil {
			return err
		}
		if err := r.insertOrder(ctx, tx, o); err != nil {
			return err
		}
		return r.linkProducts(ctx, tx, o.ID, productIDs)
	})
}

// CreateOrderForUsername is the CSV import path: the user is resolved by
// username inside the row's own transaction.
func (r *Repo) CreateOrderForUsername(ctx context.Context, username string, o *domain.Order, productIDs []int64) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, fmt.Sprintf(`SELECT id FROM %s WHERE username = $1`, r.qt("users")), username).Scan(&o.UserID)
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.NewValidationError("user", fmt.Sprintf("user %q does not exist", username))
		}
		if err != nil {
			return fmt.Errorf("lookup user: %w", err)
		}
		if err := r.insertOrder(ctx, tx, o); err != nil {
			return err
		}
		return r.linkProducts(ctx, tx, o.ID, productIDs)
	})
}

// UpdateOrder rewrites the order fields and, when productIDs is non-nil, its
// product set. It returns the owner before the update so both the old and
// the new owner's exports can be invalidated.
func (r *Repo) UpdateOrder(ctx context.Context, o *domain.Order, productIDs []int64) (int64, error) {
	var prevUserID int64
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, fmt.Sprintf(`SELECT user_id FROM %s WHERE id = $1 FOR UPDATE`, r.qt("orders")), o.ID).Scan(&prevUserID)
		if err != nil {
			return translate(err)
		}
		if err := r.userExists(ctx, tx, o.UserID); err != nil {
			return err
		}
		err = tx.QueryRow(ctx, fmt.Sprintf(`
			UPDATE %s SET delivery_address = $2, promocode = $3, user_id = $4
			WHERE id = $1
			RETURNING receipt, created_at
		`, r.qt("orders")), o.ID, o.DeliveryAddress, o.Promocode, o.UserID).Scan(&o.Receipt, &o.CreatedAt)
		if err != nil {
			return translate(err)
		}
		if productIDs == nil {
			return nil
		}
		if _, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE order_id = $1`, r.qt("order_products")), o.ID); err != nil {
			return fmt.Errorf("unlink products: %w", err)
		}
		return r.linkProducts(ctx, tx, o.ID, productIDs)
	})
	return prevUserID, err
}

// DeleteOrder removes the order and returns its owner.
func (r *Repo) DeleteOrder(ctx context.Context, id int64) (int64, error) {
	var userID int64
	err := r.db.QueryRow(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1 RETURNING user_id`, r.qt("orders")), id).Scan(&userID)
	if err != nil {
		return 0, translate(err)
	}
	return userID, nil
}

// RecentCustomerIDs lists users ordered by their latest order, newest first.
func (r *Repo) RecentCustomerIDs(ctx context.Context, limit int) ([]int64, error) {
	rows, err := r.db.Query(ctx, fmt.Sprintf(`
		SELECT user_id FROM %s
		GROUP BY user_id
		ORDER BY max(created_at) DESC
		LIMIT $1
	`, r.qt("orders")), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *Repo) insertOrder(ctx context.Context, q querier, o *domain.Order) error {
	err := q.QueryRow(ctx, fmt.Sprintf(`
		INSERT INTO %s (delivery_address, promocode, user_id, receipt)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, r.qt("orders")), o.DeliveryAddress, o.Promocode, o.UserID, o.Receipt).Scan(&o.ID, &o.CreatedAt)
	if err != nil {
		return translate(err)
	}
	return nil
}

func (r *Repo) linkProducts(ctx context.Context, tx pgx.Tx, orderID int64, productIDs []int64) error {
	if len(productIDs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, pid := range productIDs {
		batch.Queue(fmt.Sprintf(`
			INSERT INTO %s (order_id, product_id)
			SELECT $1, id FROM %s WHERE id = $2
		`, r.qt("order_products"), r.qt("products")), orderID, pid)
	}
	br := tx.SendBatch(ctx, batch)
	for _, pid := range productIDs {
		tag, err := br.Exec()
		if err != nil {
			_ = br.Close()
			return translate(err)
		}
		if tag.RowsAffected() == 0 {
			_ = br.Close()
			return domain.NewValidationError("products", fmt.Sprintf("invalid pk %d - object does not exist", pid))
		}
	}
	return br.Close()
}

func (r *Repo) userExists(ctx context.Context, q querier, userID int64) error {
	var exists bool
	err := q.QueryRow(ctx, fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1)`, r.qt("users")), userID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check user: %w", err)
	}
	if !exists {
		return domain.NewValidationError("user", fmt.Sprintf("invalid pk %d - object does not exist", userID))
	}
	return nil
}

// attachProducts loads every order's products with one query; the join
// table id preserves association order.
func (r *Repo) attachProducts(ctx context.Context, q querier, orders []domain.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(orders))
	idx := make(map[int64]int, len(orders))
	for i := range orders {
		ids = append(ids, orders[i].ID)
		idx[orders[i].ID] = i
	}

	rows, err := q.Query(ctx, fmt.Sprintf(`
		SELECT op.order_id, %s
		FROM %s op
		JOIN %s p ON p.id = op.product_id
		WHERE op.order_id = ANY($1)
		ORDER BY op.order_id, op.id
	`, productColumns, r.qt("order_products"), r.qt("products")), ids)
	if err != nil {
		return fmt.Errorf("query order products: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			orderID int64
			p       domain.Product
		)
		if err := rows.Scan(&orderID, &p.ID, &p.Name, &p.Description, &p.Price, &p.Discount,
			&p.Archived, &p.Preview, &p.CreatedAt); err != nil {
			return err
		}
		i := idx[orderID]
		orders[i].Products = append(orders[i].Products, p)
	}
	return rows.Err()
}

func (r *Repo) attachUsers(ctx context.Context, orders []domain.Order) error {
	if len(orders) == 0 {
		return nil
	}
	seen := make(map[int64]struct{}, len(orders))
	ids := make([]int64, 0, len(orders))
	for _, o := range orders {
		if _, ok := seen[o.UserID]; !ok {
			seen[o.UserID] = struct{}{}
			ids = append(ids, o.UserID)
		}
	}
	users, err := r.usersByIDs(ctx, ids)
	if err != nil {
		return err
	}
	for i := range orders {
		orders[i].User = users[orders[i].UserID]
	}
	return nil
}

func scanOrder(row pgx.Row, o *domain.Order) error {
	return row.Scan(&o.ID, &o.DeliveryAddress, &o.Promocode, &o.UserID, &o.Receipt, &o.CreatedAt)
}

func scanOrders(rows pgx.Rows) ([]domain.Order, error) {
	defer rows.Close()

	orders := []domain.Order{}
	for rows.Next() {
		var o domain.Order
		if err := scanOrder(rows, &o); err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}
