package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/warp/care-ledger/generic"
	"github.com/warp/care-ledger/jobs"
)

var _ jobs.Store = (*Store)(nil)

// SaveJob upserts the job's progress. Errors are kept as a JSON array.
func (s *Store) SaveJob(ctx context.Context, j jobs.Job) error {
	if j.Errors == nil {
		j.Errors = []string{}
	}
	errs, err := json.Marshal(j.Errors)
	if err != nil {
		return fmt.Errorf("failed to encode job errors: %w", err)
	}

	query := `
		INSERT INTO generation_jobs (
			id, period_start, period_end, status, total, processed, failed,
			errors, started_at, completed_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			total = excluded.total,
			processed = excluded.processed,
			failed = excluded.failed,
			errors = excluded.errors,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at
	`
	_, err = s.exec(ctx, query,
		j.ID, day(j.PeriodStart), day(j.PeriodEnd), string(j.Status),
		j.Total, j.Processed, j.Failed, string(errs),
		nullStamp(j.StartedAt), nullStamp(j.CompletedAt), stamp(j.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	return nil
}

func (s *Store) GetJob(ctx context.Context, id string) (*jobs.Job, error) {
	var j jobs.Job
	var start, end, errs, createdAt string
	var startedAt, completedAt sql.NullString
	err := s.queryRow(ctx, `
		SELECT id, period_start, period_end, status, total, processed, failed,
			errors, started_at, completed_at, created_at
		FROM generation_jobs WHERE id = ?`, id,
	).Scan(&j.ID, &start, &end, &j.Status, &j.Total, &j.Processed, &j.Failed,
		&errs, &startedAt, &completedAt, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, generic.NotFound("job", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	if err := json.Unmarshal([]byte(errs), &j.Errors); err != nil {
		return nil, fmt.Errorf("failed to decode job errors: %w", err)
	}
	if len(j.Errors) == 0 {
		j.Errors = nil
	}
	if j.PeriodStart, err = generic.ParseDay(start); err != nil {
		return nil, err
	}
	if j.PeriodEnd, err = generic.ParseDay(end); err != nil {
		return nil, err
	}
	if j.StartedAt, err = parseNullStamp(startedAt); err != nil {
		return nil, err
	}
	if j.CompletedAt, err = parseNullStamp(completedAt); err != nil {
		return nil, err
	}
	if j.CreatedAt, err = parseStamp(createdAt); err != nil {
		return nil, err
	}
	return &j, nil
}
