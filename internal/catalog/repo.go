package catalog

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

type Repo struct{ DB *pgxpool.Pool }

const productCols = `id, name, price_cents, quantity, in_stock, created_at, updated_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Name, &p.PriceCents, &p.Quantity, &p.InStock, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (r *Repo) Create(ctx context.Context, name string, priceCents, quantity int) (Product, error) {
	if quantity < 0 {
		quantity = 0
	}
	id := uuid.NewString()
	row := r.DB.QueryRow(ctx, `
		INSERT INTO products (id, name, price_cents, quantity, in_stock)
		VALUES ($1, $2, $3, $4, $4 > 0)
		RETURNING `+productCols, id, name, priceCents, quantity)
	return scanProduct(row)
}

func (r *Repo) Get(ctx context.Context, id string) (Product, error) {
	p, err := scanProduct(r.DB.QueryRow(ctx, `SELECT `+productCols+` FROM products WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrProductNotFound
	}
	return p, err
}

func (r *Repo) List(ctx context.Context) ([]Product, error) {
	return r.queryProducts(ctx, `SELECT `+productCols+` FROM products ORDER BY name`)
}

func (r *Repo) GetQuantity(ctx context.Context, id string) (int, error) {
	var q int
	err := r.DB.QueryRow(ctx, `SELECT quantity FROM products WHERE id=$1`, id).Scan(&q)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrProductNotFound
	}
	return q, err
}

// AdjustQuantity applies quantity = max(quantity + delta, 0) and keeps
// in_stock consistent in the same statement.
func (r *Repo) AdjustQuantity(ctx context.Context, id string, delta int) (int, error) {
	var newQty int
	err := r.DB.QueryRow(ctx, `
		UPDATE products
		SET quantity = GREATEST(quantity + $2, 0),
		    in_stock = GREATEST(quantity + $2, 0) > 0,
		    updated_at = now()
		WHERE id = $1
		RETURNING quantity`, id, delta).Scan(&newQty)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrProductNotFound
	}
	return newQty, err
}

// DeductForOrder takes every line item or none of them. Rows are locked in
// product-id order, all items are validated first, and only then decremented;
// any shortfall (with oversell prevention on) rolls the whole transaction
// back and reports every short item. With prevention off, quantities clamp
// at zero instead of rejecting.
func (r *Repo) DeductForOrder(ctx context.Context, items []Deduction, preventOversell bool) ([]StockChange, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	sorted := make([]Deduction, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ProductID < sorted[j].ProductID })

	type locked struct {
		name  string
		stock int
	}
	current := make(map[string]locked, len(sorted))
	var shorts []ShortItem

	for _, it := range sorted {
		var l locked
		err := tx.QueryRow(ctx, `SELECT name, quantity FROM products WHERE id=$1 FOR UPDATE`, it.ProductID).
			Scan(&l.name, &l.stock)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errors.Wrapf(ErrProductNotFound, "product %s", it.ProductID)
		}
		if err != nil {
			return nil, err
		}
		current[it.ProductID] = l
		if preventOversell && l.stock < it.Qty {
			shorts = append(shorts, ShortItem{
				ProductID: it.ProductID, Name: l.name, Available: l.stock, Requested: it.Qty,
			})
		}
	}

	if len(shorts) > 0 {
		return nil, &InsufficientStockError{Items: shorts} // rollback via defer
	}

	changes := make([]StockChange, 0, len(sorted))
	for _, it := range sorted {
		l := current[it.ProductID]
		newQty := l.stock - it.Qty
		if newQty < 0 {
			newQty = 0
		}
		if _, err := tx.Exec(ctx, `
			UPDATE products SET quantity=$2, in_stock=$3, updated_at=now() WHERE id=$1`,
			it.ProductID, newQty, newQty > 0); err != nil {
			return nil, err
		}
		changes = append(changes, StockChange{ProductID: it.ProductID, Name: l.name, NewQuantity: newQty})
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return changes, nil
}

// RestoreForOrder adds cancelled quantities back. in_stock is set to true
// unconditionally; last write wins under concurrent cancellations.
func (r *Repo) RestoreForOrder(ctx context.Context, items []Deduction) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, it := range items {
		if _, err := tx.Exec(ctx, `
			UPDATE products SET quantity = quantity + $2, in_stock = TRUE, updated_at = now()
			WHERE id = $1`, it.ProductID, it.Qty); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *Repo) ListLowStock(ctx context.Context, threshold int) ([]Product, error) {
	return r.queryProducts(ctx, `
		SELECT `+productCols+` FROM products
		WHERE quantity > 0 AND quantity <= $1 ORDER BY quantity`, threshold)
}

func (r *Repo) ListOutOfStock(ctx context.Context) ([]Product, error) {
	return r.queryProducts(ctx, `SELECT `+productCols+` FROM products WHERE quantity <= 0 ORDER BY name`)
}

func (r *Repo) queryProducts(ctx context.Context, sql string, args ...any) ([]Product, error) {
	rows, err := r.DB.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.PriceCents, &p.Quantity, &p.InStock, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
