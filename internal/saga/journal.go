package saga

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var (
	ErrNoPending        = errors.New("no pending checkout")
	ErrCheckoutUnknown  = errors.New("checkout not found")
	ErrAlreadyCompleted = errors.New("checkout already completed")
)

type Status string

const (
	// StatusOrderCreated means the order exists remotely and some cart lines may still need deleting.
	StatusOrderCreated Status = "ORDER_CREATED"
	StatusCompleted    Status = "COMPLETED"
)

type Line struct {
	ItemID    int64
	ProductID int64
	Quantity  int
}

type Checkout struct {
	ID        string
	UserID    string
	CartID    int64
	Region    domain.Region
	OrderID   domain.ID
	Status    Status
	Lines     []Line
	// Remaining holds the lines whose remote delete has not been recorded yet.
	Remaining []Line
}

type OutboxEvent struct {
	ID          int64
	AggregateID string
	EventType   string
	Payload     []byte
}

// Journal records checkout progress in a local SQLite database.
type Journal struct {
	db *sql.DB
}

func Open(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	db.SetMaxOpenConns(1)

	j := &Journal{db: db}
	if err := j.RunMigrations(); err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) RunMigrations() error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("could not open migrations: %w", err)
	}

	driver, err := sqlite.WithInstance(j.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}

	return nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

// Pending returns the user's checkout whose order was created but not yet completed.
func (j *Journal) Pending(ctx context.Context, userID string) (*Checkout, error) {
	c := &Checkout{}
	var orderID string
	err := j.db.QueryRowContext(ctx, `
		SELECT id, user_id, cart_id, region, order_id, status
		FROM checkouts
		WHERE user_id = ? AND status = ?
		ORDER BY created_at DESC
		LIMIT 1`,
		userID, StatusOrderCreated,
	).Scan(&c.ID, &c.UserID, &c.CartID, &c.Region, &orderID, &c.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoPending
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query pending checkout: %w", err)
	}
	c.OrderID = domain.ID(orderID)

	if err := j.loadLines(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (j *Journal) loadLines(ctx context.Context, c *Checkout) error {
	rows, err := j.db.QueryContext(ctx, `
		SELECT item_id, product_id, quantity, deleted_at IS NOT NULL
		FROM checkout_lines
		WHERE checkout_id = ?
		ORDER BY item_id`,
		c.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to query checkout lines: %w", err)
	}
	defer rows.Close()

	c.Lines, c.Remaining = nil, nil
	for rows.Next() {
		var (
			l       Line
			deleted bool
		)
		if err := rows.Scan(&l.ItemID, &l.ProductID, &l.Quantity, &deleted); err != nil {
			return fmt.Errorf("failed to scan checkout line: %w", err)
		}
		c.Lines = append(c.Lines, l)
		if !deleted {
			c.Remaining = append(c.Remaining, l)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("row iteration error: %w", err)
	}
	return nil
}

// StuckCheckouts lists checkouts whose every line was deleted but whose
// completion was never recorded, and which made no progress for idleFor.
func (j *Journal) StuckCheckouts(ctx context.Context, idleFor time.Duration) ([]*Checkout, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT c.id, c.user_id, c.cart_id, c.region, c.order_id, c.status
		FROM checkouts c
		WHERE c.status = ?
		AND c.updated_at <= datetime('now', ?)
		AND NOT EXISTS (
			SELECT 1 FROM checkout_lines l
			WHERE l.checkout_id = c.id AND l.deleted_at IS NULL
		)`,
		StatusOrderCreated, fmt.Sprintf("-%d seconds", int64(idleFor/time.Second)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query stuck checkouts: %w", err)
	}

	var checkouts []*Checkout
	for rows.Next() {
		c := &Checkout{}
		var orderID string
		if err := rows.Scan(&c.ID, &c.UserID, &c.CartID, &c.Region, &orderID, &c.Status); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan checkout: %w", err)
		}
		c.OrderID = domain.ID(orderID)
		checkouts = append(checkouts, c)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	// single connection: lines are read after the checkout cursor is closed
	for _, c := range checkouts {
		if err := j.loadLines(ctx, c); err != nil {
			return nil, err
		}
	}
	return checkouts, nil
}

// RecordOrder stores a freshly created order together with every line that must be deleted.
func (j *Journal) RecordOrder(ctx context.Context, c *Checkout) error {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO checkouts (id, user_id, cart_id, region, order_id, status)
		VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.UserID, c.CartID, int(c.Region), string(c.OrderID), StatusOrderCreated,
	)
	if err != nil {
		return fmt.Errorf("failed to insert checkout: %w", err)
	}

	for _, l := range c.Remaining {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO checkout_lines (checkout_id, item_id, product_id, quantity)
			VALUES (?, ?, ?, ?)`,
			c.ID, l.ItemID, l.ProductID, l.Quantity,
		)
		if err != nil {
			return fmt.Errorf("failed to insert checkout line: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit checkout: %w", err)
	}
	c.Status = StatusOrderCreated
	c.Lines = append([]Line(nil), c.Remaining...)
	return nil
}

// MarkDeleted records a deleted line and touches the checkout, which holds
// off stuck-checkout recovery while the saga is still making progress.
func (j *Journal) MarkDeleted(ctx context.Context, checkoutID string, itemID int64) error {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE checkout_lines
		SET deleted_at = CURRENT_TIMESTAMP
		WHERE checkout_id = ? AND item_id = ? AND deleted_at IS NULL`,
		checkoutID, itemID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark line deleted: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("line %d of checkout %s: %w", itemID, checkoutID, ErrCheckoutUnknown)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE checkouts SET updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		checkoutID,
	)
	if err != nil {
		return fmt.Errorf("failed to touch checkout: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit line delete: %w", err)
	}
	return nil
}

// Complete closes the checkout and enqueues its completion event in one
// transaction. A checkout completed earlier yields ErrAlreadyCompleted.
func (j *Journal) Complete(ctx context.Context, checkoutID, eventType string, payload []byte) error {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE checkouts
		SET status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = ?`,
		StatusCompleted, checkoutID, StatusOrderCreated,
	)
	if err != nil {
		return fmt.Errorf("failed to complete checkout: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var status Status
		err := tx.QueryRowContext(ctx, `SELECT status FROM checkouts WHERE id = ?`, checkoutID).Scan(&status)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("checkout %s: %w", checkoutID, ErrCheckoutUnknown)
		case err != nil:
			return fmt.Errorf("failed to read checkout status: %w", err)
		case status == StatusCompleted:
			return fmt.Errorf("checkout %s: %w", checkoutID, ErrAlreadyCompleted)
		}
		return fmt.Errorf("checkout %s in status %s: %w", checkoutID, status, ErrCheckoutUnknown)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO outbox_events (aggregate_id, event_type, payload)
		VALUES (?, ?, ?)`,
		checkoutID, eventType, payload,
	)
	if err != nil {
		return fmt.Errorf("failed to insert outbox event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit completion: %w", err)
	}
	return nil
}

func (j *Journal) UnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, aggregate_id, event_type, payload
		FROM outbox_events
		WHERE processed_at IS NULL
		ORDER BY id
		LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query outbox events: %w", err)
	}
	defer rows.Close()

	var events []*OutboxEvent
	for rows.Next() {
		e := &OutboxEvent{}
		if err := rows.Scan(&e.ID, &e.AggregateID, &e.EventType, &e.Payload); err != nil {
			return nil, fmt.Errorf("failed to scan outbox event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return events, nil
}

func (j *Journal) MarkEventProcessed(ctx context.Context, id int64) error {
	_, err := j.db.ExecContext(ctx, `
		UPDATE outbox_events
		SET processed_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark event processed: %w", err)
	}
	return nil
}
