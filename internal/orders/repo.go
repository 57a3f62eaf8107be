package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrInvalidTransition = errors.New("invalid status transition")
)

type Repo struct{ DB *pgxpool.Pool }

// NewOrderNumber is human-readable and unique enough for support tickets.
func NewOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("ORD-%s-%s", now.UTC().Format("20060102"), suffix)
}

// Create prices every line item from the products table (client prices are
// never trusted), snapshots those prices into order_items, and persists the
// order as PENDING, all in one transaction.
func (r *Repo) Create(ctx context.Context, customerID string, items []NewItem) (*Order, error) {
	if len(items) == 0 {
		return nil, errors.New("order needs at least one item")
	}

	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]any, 0, len(items))
	params := ""
	for i, it := range items {
		if i > 0 {
			params += ","
		}
		params += fmt.Sprintf("$%d", i+1)
		ids = append(ids, it.ProductID)
	}
	rows, err := tx.Query(ctx, `SELECT id, price_cents FROM products WHERE id IN (`+params+`)`, ids...)
	if err != nil {
		return nil, err
	}
	prices := map[string]int{}
	for rows.Next() {
		var id string
		var price int
		if err := rows.Scan(&id, &price); err != nil {
			return nil, err
		}
		prices[id] = price
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	total := 0
	for _, it := range items {
		price, ok := prices[it.ProductID]
		if !ok {
			return nil, errors.Errorf("product not found: %s", it.ProductID)
		}
		if it.Qty <= 0 {
			return nil, errors.Errorf("invalid qty for product %s", it.ProductID)
		}
		total += price * it.Qty
	}

	now := time.Now().UTC()
	ord := &Order{
		ID:          uuid.NewString(),
		OrderNumber: NewOrderNumber(now),
		CustomerID:  customerID,
		Status:      StatusPending,
		TotalCents:  total,
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO orders (id, order_number, customer_id, status, total_cents)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`,
		ord.ID, ord.OrderNumber, ord.CustomerID, ord.Status, ord.TotalCents,
	).Scan(&ord.CreatedAt, &ord.UpdatedAt)
	if err != nil {
		return nil, err
	}

	for _, it := range items {
		item := OrderItem{
			ID:         uuid.NewString(),
			OrderID:    ord.ID,
			ProductID:  it.ProductID,
			Qty:        it.Qty,
			PriceCents: prices[it.ProductID],
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_items (id, order_id, product_id, qty, price_cents)
			VALUES ($1, $2, $3, $4, $5)`,
			item.ID, item.OrderID, item.ProductID, item.Qty, item.PriceCents); err != nil {
			return nil, err
		}
		ord.Items = append(ord.Items, item)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return ord, nil
}

func (r *Repo) Get(ctx context.Context, id string) (*Order, error) {
	var ord Order
	err := r.DB.QueryRow(ctx, `
		SELECT id, order_number, customer_id, status, total_cents, stock_deducted, created_at, updated_at
		FROM orders WHERE id=$1`, id).
		Scan(&ord.ID, &ord.OrderNumber, &ord.CustomerID, &ord.Status, &ord.TotalCents,
			&ord.StockDeducted, &ord.CreatedAt, &ord.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	items, err := r.itemsFor(ctx, r.DB, id)
	if err != nil {
		return nil, err
	}
	ord.Items = items
	return &ord, nil
}

func (r *Repo) GetStatus(ctx context.Context, id string) (Status, error) {
	var s string
	err := r.DB.QueryRow(ctx, `SELECT status FROM orders WHERE id=$1`, id).Scan(&s)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrOrderNotFound
	}
	if err != nil {
		return "", err
	}
	return Status(s), nil
}

// UpdateStatus moves an order along the lifecycle, rejecting transitions
// the state machine does not allow. Returns the full order (with items) so
// callers can hand it straight to a hook.
func (r *Repo) UpdateStatus(ctx context.Context, id string, next Status) (*Order, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var ord Order
	err = tx.QueryRow(ctx, `
		SELECT id, order_number, customer_id, status, total_cents, stock_deducted, created_at, updated_at
		FROM orders WHERE id=$1 FOR UPDATE`, id).
		Scan(&ord.ID, &ord.OrderNumber, &ord.CustomerID, &ord.Status, &ord.TotalCents,
			&ord.StockDeducted, &ord.CreatedAt, &ord.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}

	if !CanTransition(ord.Status, next) {
		return nil, errors.Wrapf(ErrInvalidTransition, "%s -> %s", ord.Status, next)
	}

	err = tx.QueryRow(ctx, `UPDATE orders SET status=$2, updated_at=now() WHERE id=$1 RETURNING updated_at`,
		id, next).Scan(&ord.UpdatedAt)
	if err != nil {
		return nil, err
	}
	ord.Status = next

	items, err := r.itemsFor(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	ord.Items = items

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &ord, nil
}

func (r *Repo) MarkStockDeducted(ctx context.Context, orderID string) error {
	ct, err := r.DB.Exec(ctx, `UPDATE orders SET stock_deducted = TRUE, updated_at = now() WHERE id=$1`, orderID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (r *Repo) itemsFor(ctx context.Context, q querier, orderID string) ([]OrderItem, error) {
	rows, err := q.Query(ctx, `
		SELECT id, order_id, product_id, qty, price_cents
		FROM order_items WHERE order_id=$1 ORDER BY product_id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OrderItem
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Qty, &it.PriceCents); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}
