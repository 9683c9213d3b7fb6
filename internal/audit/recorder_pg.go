package audit

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/dicom-tools/internal/anonymizer"
	"github.com/ehr/dicom-tools/internal/platform/db"
)

// PGRecorder writes events to the anonymization_audit table.
type PGRecorder struct {
	pool *pgxpool.Pool
}

func NewPGRecorder(pool *pgxpool.Pool) *PGRecorder {
	return &PGRecorder{pool: pool}
}

func (r *PGRecorder) conn(ctx context.Context) db.Querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *PGRecorder) Record(ctx context.Context, e Event) error {
	var plan []byte
	if e.Plan != nil {
		var err error
		if plan, err = json.Marshal(e.Plan); err != nil {
			return fmt.Errorf("audit: encode plan: %w", err)
		}
	}

	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO anonymization_audit (id, action, source, output, plan, outcome, error, actor, recorded_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		e.ID, e.Action, e.Source, e.Output, plan, e.Outcome, e.Error, e.Actor, e.RecordedAt)
	if err != nil {
		return fmt.Errorf("audit: insert event: %w", err)
	}
	return nil
}

// Recent returns the latest events, newest first.
func (r *PGRecorder) Recent(ctx context.Context, limit int) ([]Event, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, action, source, output, plan, outcome, error, actor, recorded_at
		FROM anonymization_audit ORDER BY recorded_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("audit: query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e    Event
			plan []byte
		)
		if err := rows.Scan(&e.ID, &e.Action, &e.Source, &e.Output, &plan, &e.Outcome, &e.Error, &e.Actor, &e.RecordedAt); err != nil {
			return nil, fmt.Errorf("audit: scan event: %w", err)
		}
		if len(plan) > 0 {
			e.Plan = new(anonymizer.Plan)
			if err := json.Unmarshal(plan, e.Plan); err != nil {
				return nil, fmt.Errorf("audit: decode plan of %s: %w", e.ID, err)
			}
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
