package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"profitdash/internal/core"
	"profitdash/internal/products"
)

var _ products.Store = (*Repository)(nil)

// Repository stores product snapshots, users and sessions in one database.
type Repository struct {
	db      *sqlx.DB
	dialect Dialect
}

// NewRepository opens the database and brings its schema up to date.
func NewRepository(ctx context.Context, dialect Dialect, dsn string) (*Repository, error) {
	db, err := Open(ctx, dialect, dsn)
	if err != nil {
		return nil, err
	}
	return &Repository{db: db, dialect: dialect}, nil
}

// NewRepositoryWithDB wraps an already migrated connection.
func NewRepositoryWithDB(db *sqlx.DB, dialect Dialect) *Repository {
	return &Repository{db: db, dialect: dialect}
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping is used by the readiness probe.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *Repository) Dialect() Dialect {
	return r.dialect
}

// readOpts keeps both reads of a snapshot on the same committed state.
// SQLite transactions are already serializable.
func (r *Repository) readOpts() *sql.TxOptions {
	if r.dialect == Postgres {
		return &sql.TxOptions{Isolation: sql.LevelRepeatableRead}
	}
	return nil
}

const (
	deleteProductsQuery = `DELETE FROM products WHERE user_id = ?`

	upsertUploadQuery = `INSERT INTO uploads (user_id, upload_id, file_name, uploaded_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (user_id) DO UPDATE SET
    upload_id = excluded.upload_id,
    file_name = excluded.file_name,
    uploaded_at = excluded.uploaded_at`

	insertProductQuery = `INSERT INTO products
    (user_id, id, position, name, sales, profit, total_expense, credit, marketplace_fee, profit_percentage)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	selectUploadQuery = `SELECT upload_id, file_name, uploaded_at FROM uploads WHERE user_id = ?`

	selectProductsQuery = `SELECT id, name, sales, profit, total_expense, credit, marketplace_fee, profit_percentage
FROM products WHERE user_id = ? ORDER BY position`

	selectProductQuery = `SELECT id, name, sales, profit, total_expense, credit, marketplace_fee, profit_percentage
FROM products WHERE user_id = ? AND id = ?`

	deleteUploadQuery = `DELETE FROM uploads WHERE user_id = ?`
)

// Replace swaps the user's product list inside one transaction.
func (r *Repository) Replace(ctx context.Context, snap core.Snapshot) (err error) {
	if err := snap.Validate(); err != nil {
		return err
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, tx.Rebind(deleteProductsQuery), snap.UserID); err != nil {
		return fmt.Errorf("delete previous products: %w", err)
	}
	if _, err = tx.ExecContext(ctx, tx.Rebind(upsertUploadQuery),
		snap.UserID, snap.UploadID, snap.FileName, millis(snap.UploadedAt)); err != nil {
		return fmt.Errorf("record upload: %w", err)
	}

	if len(snap.Products) > 0 {
		var stmt *sqlx.Stmt
		stmt, err = tx.PreparexContext(ctx, tx.Rebind(insertProductQuery))
		if err != nil {
			return fmt.Errorf("prepare product insert: %w", err)
		}
		defer stmt.Close()

		for i, p := range snap.Products {
			if _, err = stmt.ExecContext(ctx, snap.UserID, p.ID, i, p.Name, p.Sales, p.Profit,
				p.TotalExpense, p.Credit, p.MarketplaceFee, p.ProfitPercentage); err != nil {
				return fmt.Errorf("insert product %s: %w", p.ID, err)
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit replace: %w", err)
	}
	return nil
}

type uploadRow struct {
	UploadID   string `db:"upload_id"`
	FileName   string `db:"file_name"`
	UploadedAt int64  `db:"uploaded_at"`
}

// Snapshot returns the user's current list, or an empty snapshot.
func (r *Repository) Snapshot(ctx context.Context, userID string) (core.Snapshot, error) {
	snap := core.Snapshot{UserID: userID}

	tx, err := r.db.BeginTxx(ctx, r.readOpts())
	if err != nil {
		return snap, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var up uploadRow
	err = tx.GetContext(ctx, &up, tx.Rebind(selectUploadQuery), userID)
	if errors.Is(err, sql.ErrNoRows) {
		return snap, nil
	}
	if err != nil {
		return snap, fmt.Errorf("get upload: %w", err)
	}

	var list []core.Product
	if err := tx.SelectContext(ctx, &list, tx.Rebind(selectProductsQuery), userID); err != nil {
		return snap, fmt.Errorf("list products: %w", err)
	}

	snap.UploadID = up.UploadID
	snap.FileName = up.FileName
	snap.UploadedAt = fromMillis(up.UploadedAt)
	snap.Products = list
	return snap, nil
}

func (r *Repository) Get(ctx context.Context, userID, productID string) (core.Product, error) {
	var p core.Product
	err := r.db.GetContext(ctx, &p, r.db.Rebind(selectProductQuery), userID, productID)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Product{}, products.ErrNotFound
	}
	if err != nil {
		return core.Product{}, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

// Clear removes the user's products and upload record.
func (r *Repository) Clear(ctx context.Context, userID string) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, tx.Rebind(deleteProductsQuery), userID); err != nil {
		return fmt.Errorf("delete products: %w", err)
	}
	if _, err = tx.ExecContext(ctx, tx.Rebind(deleteUploadQuery), userID); err != nil {
		return fmt.Errorf("delete upload: %w", err)
	}
	return tx.Commit()
}

// CurrentUploadID returns the id of the user's latest upload, or "".
func (r *Repository) CurrentUploadID(ctx context.Context, userID string) (string, error) {
	var id string
	err := r.db.GetContext(ctx, &id, r.db.Rebind(`SELECT upload_id FROM uploads WHERE user_id = ?`), userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get upload id: %w", err)
	}
	return id, nil
}
