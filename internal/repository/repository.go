package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fjod/coffee-store/internal/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
)

var (
	ErrCartNotFound         = errors.New("cart not found")
	ErrVarietyNotFound      = errors.New("variety not found")
	ErrOrderNotFound        = errors.New("order not found")
	ErrInvoiceNotFound      = errors.New("invoice not found")
	ErrDuplicateTransaction = errors.New("invoice for this transaction already exists")
	ErrInsufficientStock    = errors.New("insufficient stock")
	// ErrStatusConflict means a conditional status update found the row in a different state.
	ErrStatusConflict = errors.New("status changed concurrently")
)

// StockError names the variety whose conditional stock reservation failed.
type StockError struct {
	VarietyID int64
	Requested int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("insufficient stock for variety %d (requested %d)", e.VarietyID, e.Requested)
}

func (e *StockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	SSLMode           string
	MigrationsDirPath string
}

func (c *Credentials) dsn() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host,
		c.Port,
		c.User,
		c.Password,
		c.DBName,
		sslMode)
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Repository is the Postgres-backed store. A Repository handed to an InTx
// callback runs every statement inside that transaction.
type Repository struct {
	db *sql.DB
	q  querier
}

// CartRepository owns carts and their lines.
type CartRepository interface {
	GetCart(ctx context.Context, userID int64) (*domain.Cart, error)
	CreateCart(ctx context.Context, userID int64) (*domain.Cart, error)
	AddItem(ctx context.Context, cartID, varietyID int64, quantity int) error
	RemoveItem(ctx context.Context, cartID, varietyID int64) error
}

// VarietyRepository is the read-only catalog lookup.
type VarietyRepository interface {
	GetVariety(ctx context.Context, id int64) (*domain.Variety, error)
}

// OrderRepository persists and queries orders and invoices.
type OrderRepository interface {
	CreateOrderWithInvoice(ctx context.Context, order *domain.Order, invoice *domain.Invoice) error
	GetOrder(ctx context.Context, id int64) (*domain.Order, error)
	ListOrders(ctx context.Context, filter domain.OrderFilter, page int) ([]*domain.Order, error)
	CountOrders(ctx context.Context, filter domain.OrderFilter) (int, error)
	FindInvoiceByTransactionID(ctx context.Context, transactionID string) (*domain.Invoice, error)
	FindInvoiceByOrderID(ctx context.Context, orderID int64) (*domain.Invoice, error)
	GetInvoice(ctx context.Context, id int64) (*domain.Invoice, error)
	ListInvoices(ctx context.Context, filter domain.InvoiceFilter, page int) ([]*domain.Invoice, error)
	CountInvoices(ctx context.Context, filter domain.InvoiceFilter) (int, error)
	RecentPaidInvoices(ctx context.Context, limit int) ([]*domain.Invoice, error)
	ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]*domain.Invoice, error)
}

// PaymentTx is the set of writes a payment transition performs atomically.
type PaymentTx interface {
	UpdateInvoiceStatus(ctx context.Context, transactionID string, from, to domain.Status) (*domain.Invoice, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, from, to domain.Status) error
	GetOrder(ctx context.Context, id int64) (*domain.Order, error)
	RemovePurchasedItems(ctx context.Context, userID int64, items []domain.OrderItem) (int64, error)
	ReleaseStock(ctx context.Context, items []domain.OrderItem) error
	AddOutboxEvent(ctx context.Context, event *domain.OutboxEvent) error
}

// PaymentRepository runs payment transitions.
type PaymentRepository interface {
	FindInvoiceByTransactionID(ctx context.Context, transactionID string) (*domain.Invoice, error)
	InTx(ctx context.Context, fn func(tx PaymentTx) error) error
}

// OutboxRepository feeds the outbox poller.
type OutboxRepository interface {
	GetUnprocessedEvents(ctx context.Context, limit int) ([]*domain.OutboxEvent, error)
	MarkEventAsProcessed(ctx context.Context, id int) error
}

func NewRepository(cred *Credentials) (*Repository, error) {
	// open database
	db, err := sql.Open("postgres", cred.dsn())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// check db
	if e2 := db.Ping(); e2 != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", e2)
	}

	db.SetMaxOpenConns(100)
	db.SetMaxIdleConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)
	slog.Info("connected to postgres", "host", cred.Host, "db", cred.DBName)
	return &Repository{db: db, q: db}, nil
}

func (r *Repository) RunMigrations(cred *Credentials) error {
	driver, err := postgres.WithInstance(r.db, &postgres.Config{
		MigrationsTable: "store_schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", cred.MigrationsDirPath),
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if e2 := m.Up(); e2 != nil && !errors.Is(e2, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", e2)
	}

	return nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *Repository) Close() error {
	return r.db.Close()
}

// InTx runs fn in a single transaction. The PaymentTx passed to fn must not
// escape the callback.
func (r *Repository) InTx(ctx context.Context, fn func(tx PaymentTx) error) error {
	return r.withTx(ctx, func(q querier) error {
		return fn(&Repository{db: r.db, q: q})
	})
}

func (r *Repository) withTx(ctx context.Context, fn func(q querier) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
