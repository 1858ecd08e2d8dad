package registry

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sync"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // Pure Go SQLite driver, registers as "sqlite".
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Registry persists connected accounts in SQLite. All mutating operations
// are serialized by a mutex: account mutations are interactive-rate, and a
// single writer keeps the active-pointer and token-list invariants simple
// to enforce.
type Registry struct {
	db               *sql.DB
	logger           *slog.Logger
	allowMultiActive bool

	mu sync.Mutex

	getStmt        *sql.Stmt
	listStmt       *sql.Stmt
	activeStmt     *sql.Stmt
	tokensStmt     *sql.Stmt
	tokenCountStmt *sql.Stmt
}

// Open creates a Registry backed by the SQLite database at dbPath, applying
// migrations and preparing repeated queries. Use ":memory:" for tests.
// allowMultiActive is the plan-tier flag permitting several simultaneously
// active accounts.
func Open(dbPath string, allowMultiActive bool, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("opening account registry", slog.String("path", dbPath))

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("registry: open sqlite: %w", err)
	}

	// Single connection: mutations are mutex-serialized anyway, and this
	// keeps ":memory:" databases coherent across the pool.
	db.SetMaxOpenConns(1)

	ctx := context.Background()

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("registry: set pragma: %w", err)
		}
	}

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	r := &Registry{db: db, logger: logger, allowMultiActive: allowMultiActive}

	if err := r.prepareStatements(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("registry: prepare statements: %w", err)
	}

	return r, nil
}

// runMigrations applies all pending schema migrations using the goose v3
// Provider API (no global state, context-aware).
func runMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	subFS, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("registry: creating migration sub-filesystem: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, subFS)
	if err != nil {
		return fmt.Errorf("registry: creating migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("registry: running migrations: %w", err)
	}

	for _, res := range results {
		logger.Info("applied migration",
			slog.String("source", res.Source.Path),
			slog.Int64("duration_ms", res.Duration.Milliseconds()),
		)
	}

	return nil
}

const accountColumns = `id, email, display_name, is_active, folder_id, plan_limit,
	session_id, team_name, mode, snapshot_plan, snapshot_mode, snapshot_display_name`

func (r *Registry) prepareStatements(ctx context.Context) error {
	var err error

	if r.getStmt, err = r.db.PrepareContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = ?`); err != nil {
		return err
	}

	if r.listStmt, err = r.db.PrepareContext(ctx,
		`SELECT `+accountColumns+` FROM accounts ORDER BY position`); err != nil {
		return err
	}

	if r.activeStmt, err = r.db.PrepareContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE is_active = 1 ORDER BY position LIMIT 1`); err != nil {
		return err
	}

	if r.tokensStmt, err = r.db.PrepareContext(ctx,
		`SELECT token FROM invite_tokens WHERE account_id = ? ORDER BY created_at, token`); err != nil {
		return err
	}

	if r.tokenCountStmt, err = r.db.PrepareContext(ctx,
		`SELECT COUNT(*) FROM invite_tokens WHERE account_id = ?`); err != nil {
		return err
	}

	return nil
}

// Close releases prepared statements and the database handle.
func (r *Registry) Close() error {
	for _, stmt := range []*sql.Stmt{r.getStmt, r.listStmt, r.activeStmt, r.tokensStmt, r.tokenCountStmt} {
		if stmt != nil {
			stmt.Close()
		}
	}

	return r.db.Close()
}

// scanAccount reads one account row. The caller fills InviteTokens.
func scanAccount(row interface{ Scan(...any) error }) (*Account, error) {
	var (
		a        Account
		active   int
		snapPlan sql.NullInt64
		snapMode sql.NullString
		snapName sql.NullString
	)

	err := row.Scan(&a.ID, &a.Email, &a.DisplayName, &active, &a.FolderID, &a.PlanLimit,
		&a.SessionID, &a.TeamName, (*string)(&a.Mode), &snapPlan, &snapMode, &snapName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("registry: scanning account: %w", err)
	}

	a.IsActive = active != 0

	if snapMode.Valid {
		a.Snapshot = &ModeSnapshot{
			Plan:        int(snapPlan.Int64),
			Mode:        Mode(snapMode.String),
			DisplayName: snapName.String,
		}
	}

	return &a, nil
}

// loadTokens fills the account's invite token list.
func (r *Registry) loadTokens(ctx context.Context, a *Account) error {
	rows, err := r.tokensStmt.QueryContext(ctx, a.ID)
	if err != nil {
		return fmt.Errorf("registry: listing tokens: %w", err)
	}
	defer rows.Close()

	a.InviteTokens = nil

	for rows.Next() {
		var tok string
		if err := rows.Scan(&tok); err != nil {
			return fmt.Errorf("registry: scanning token: %w", err)
		}

		a.InviteTokens = append(a.InviteTokens, tok)
	}

	return rows.Err()
}

// Get returns the account with the given id, or ErrNotFound.
func (r *Registry) Get(ctx context.Context, id string) (*Account, error) {
	a, err := scanAccount(r.getStmt.QueryRowContext(ctx, id))
	if err != nil {
		return nil, err
	}

	if err := r.loadTokens(ctx, a); err != nil {
		return nil, err
	}

	return a, nil
}

// List returns all accounts in connection order.
func (r *Registry) List(ctx context.Context) ([]*Account, error) {
	rows, err := r.listStmt.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("registry: listing accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*Account

	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}

		accounts = append(accounts, a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, a := range accounts {
		if err := r.loadTokens(ctx, a); err != nil {
			return nil, err
		}
	}

	return accounts, nil
}

// Active returns the current active account, or ErrNoActiveAccount.
func (r *Registry) Active(ctx context.Context) (*Account, error) {
	a, err := scanAccount(r.activeStmt.QueryRowContext(ctx))
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNoActiveAccount
	}

	if err != nil {
		return nil, err
	}

	if err := r.loadTokens(ctx, a); err != nil {
		return nil, err
	}

	return a, nil
}
