package storage

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// activityRow mirrors one row of the activities table.
type activityRow struct {
	ID              int64
	Ref             string
	UserID          int64
	UserName        string
	Action          string
	BillID          int64
	BillDescription string
	Amount          sql.NullString
	DueDate         sql.NullString
	CreatedAt       string
	SyncStatus      string
}

const activityColumns = `id, ref, user_id, user_name, action, bill_id, bill_description, amount, due_date, created_at, sync_status`

type createActivityParams struct {
	Ref             string
	UserID          int64
	UserName        string
	Action          string
	BillID          int64
	BillDescription string
	Amount          sql.NullString
	DueDate         sql.NullString
	CreatedAt       string
}

const createActivity = `
INSERT INTO activities (ref, user_id, user_name, action, bill_id, bill_description, amount, due_date, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
RETURNING ` + activityColumns

func (q *Queries) CreateActivity(ctx context.Context, arg createActivityParams) (activityRow, error) {
	row := q.db.QueryRowContext(ctx, createActivity,
		arg.Ref, arg.UserID, arg.UserName, arg.Action, arg.BillID,
		arg.BillDescription, arg.Amount, arg.DueDate, arg.CreatedAt)
	return scanActivity(row)
}

const getActivity = `SELECT ` + activityColumns + ` FROM activities WHERE id = ?`

func (q *Queries) GetActivity(ctx context.Context, id int64) (activityRow, error) {
	return scanActivity(q.db.QueryRowContext(ctx, getActivity, id))
}

const listRecentActivities = `SELECT ` + activityColumns + ` FROM activities ORDER BY created_at DESC, id DESC LIMIT ?`

func (q *Queries) ListRecentActivities(ctx context.Context, limit int64) ([]activityRow, error) {
	return q.list(ctx, listRecentActivities, limit)
}

const listPendingSync = `
SELECT ` + activityColumns + ` FROM activities
WHERE sync_status IN ('pending', 'error') AND sync_attempts < ?
ORDER BY created_at, id
LIMIT ?`

func (q *Queries) ListPendingSync(ctx context.Context, maxAttempts, limit int64) ([]activityRow, error) {
	return q.list(ctx, listPendingSync, maxAttempts, limit)
}

const markSynced = `UPDATE activities SET sync_status = 'synced', synced_at = ?, sync_attempts = sync_attempts + 1 WHERE id = ?`

func (q *Queries) MarkSynced(ctx context.Context, syncedAt string, id int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, markSynced, syncedAt, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const markSyncError = `UPDATE activities SET sync_status = 'error', sync_attempts = sync_attempts + 1 WHERE id = ?`

func (q *Queries) MarkSyncError(ctx context.Context, id int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, markSyncError, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (q *Queries) list(ctx context.Context, query string, args ...any) ([]activityRow, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []activityRow
	for rows.Next() {
		r, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	return items, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanActivity(s scanner) (activityRow, error) {
	var r activityRow
	err := s.Scan(&r.ID, &r.Ref, &r.UserID, &r.UserName, &r.Action, &r.BillID,
		&r.BillDescription, &r.Amount, &r.DueDate, &r.CreatedAt, &r.SyncStatus)
	return r, err
}
