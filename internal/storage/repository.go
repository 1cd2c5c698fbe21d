// Package storage is the local SQLite activity log: every successful bill
// mutation is recorded here and later mirrored to the spreadsheet.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"walletwise/internal/core"
	applog "walletwise/internal/log"
)

// timeLayout is fixed-width so text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// MaxSyncAttempts bounds how often the worker retries a failing row.
const MaxSyncAttempts = 5

var ErrActivityNotFound = errors.New("activity not found")

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	logger  *applog.Logger
	now     func() time.Time
}

func NewSQLiteRepository(dbPath string, logger *applog.Logger) (*SQLiteRepository, error) {
	if logger == nil {
		logger = applog.Default(applog.ComponentStorage)
	}
	logger = logger.WithComponent(applog.ComponentStorage)

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite has a single writer
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	version, err := RunMigrations(dbPath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("Activity log ready", "path", dbPath, "schema_version", version)

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
		logger:  logger,
		now:     time.Now,
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Record stores a new activity and returns it with its ID and timestamp set.
func (r *SQLiteRepository) Record(ctx context.Context, a core.Activity) (core.Activity, error) {
	if a.Ref == uuid.Nil {
		a.Ref = uuid.New()
	}
	params := createActivityParams{
		Ref:             a.Ref.String(),
		UserID:          a.UserID,
		UserName:        a.UserName,
		Action:          string(a.Action),
		BillID:          a.BillID,
		BillDescription: a.BillDescription,
		CreatedAt:       r.now().UTC().Format(timeLayout),
	}
	if a.Amount.Valid {
		params.Amount = sql.NullString{String: a.Amount.Decimal.String(), Valid: true}
	}
	if !a.DueDate.IsZero() {
		params.DueDate = sql.NullString{String: a.DueDate.String(), Valid: true}
	}

	row, err := r.queries.CreateActivity(ctx, params)
	if err != nil {
		return core.Activity{}, fmt.Errorf("create activity: %w", err)
	}
	out, err := row.toActivity()
	if err != nil {
		return core.Activity{}, err
	}
	r.logger.DebugContext(ctx, "Activity recorded",
		applog.FieldActivityID, out.ID,
		applog.FieldBillID, out.BillID,
		applog.FieldOperation, string(out.Action))
	return out, nil
}

func (r *SQLiteRepository) Get(ctx context.Context, id int64) (core.Activity, error) {
	row, err := r.queries.GetActivity(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Activity{}, ErrActivityNotFound
	}
	if err != nil {
		return core.Activity{}, fmt.Errorf("get activity %d: %w", id, err)
	}
	return row.toActivity()
}

// Recent returns the newest activities first.
func (r *SQLiteRepository) Recent(ctx context.Context, limit int) ([]core.Activity, error) {
	rows, err := r.queries.ListRecentActivities(ctx, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("list recent activities: %w", err)
	}
	return toActivities(rows)
}

// PendingSync returns activities not yet mirrored, oldest first.
func (r *SQLiteRepository) PendingSync(ctx context.Context, limit int) ([]core.Activity, error) {
	rows, err := r.queries.ListPendingSync(ctx, MaxSyncAttempts, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("list pending activities: %w", err)
	}
	return toActivities(rows)
}

func (r *SQLiteRepository) MarkSynced(ctx context.Context, id int64) error {
	n, err := r.queries.MarkSynced(ctx, r.now().UTC().Format(timeLayout), id)
	if err != nil {
		return fmt.Errorf("mark activity synced: %w", err)
	}
	if n == 0 {
		return ErrActivityNotFound
	}
	return nil
}

func (r *SQLiteRepository) MarkSyncError(ctx context.Context, id int64) error {
	n, err := r.queries.MarkSyncError(ctx, id)
	if err != nil {
		return fmt.Errorf("mark activity sync error: %w", err)
	}
	if n == 0 {
		return ErrActivityNotFound
	}
	return nil
}

func toActivities(rows []activityRow) ([]core.Activity, error) {
	out := make([]core.Activity, 0, len(rows))
	for _, row := range rows {
		a, err := row.toActivity()
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func (row activityRow) toActivity() (core.Activity, error) {
	ref, err := uuid.Parse(row.Ref)
	if err != nil {
		return core.Activity{}, fmt.Errorf("activity %d: bad ref: %w", row.ID, err)
	}
	created, err := time.Parse(timeLayout, row.CreatedAt)
	if err != nil {
		return core.Activity{}, fmt.Errorf("activity %d: bad created_at: %w", row.ID, err)
	}
	a := core.Activity{
		ID:              row.ID,
		Ref:             ref,
		UserID:          row.UserID,
		UserName:        row.UserName,
		Action:          core.Action(row.Action),
		BillID:          row.BillID,
		BillDescription: row.BillDescription,
		CreatedAt:       created,
		SyncStatus:      core.SyncStatus(row.SyncStatus),
	}
	if row.Amount.Valid {
		if d, err := decimal.NewFromString(row.Amount.String); err == nil {
			a.Amount = decimal.NewNullDecimal(d)
		}
	}
	if row.DueDate.Valid {
		if d, err := core.ParseDate(row.DueDate.String); err == nil {
			a.DueDate = d
		}
	}
	return a, nil
}
