package presetstore

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/dicom-tools/internal/platform/db"
	"github.com/ehr/dicom-tools/internal/preset"
)

type presetRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &presetRepoPG{pool: pool}
}

func (r *presetRepoPG) conn(ctx context.Context) db.Querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const presetCols = `name, version, description, body, created_at, updated_at`

func (r *presetRepoPG) scanRow(row pgx.Row) (*Preset, error) {
	var p Preset
	err := row.Scan(&p.Name, &p.Version, &p.Description, &p.Body, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, preset.ErrPresetNotFound
	}
	return &p, err
}

func (r *presetRepoPG) Save(ctx context.Context, p *Preset) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO anonymization_preset (name, version, description, body)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name) DO UPDATE SET
			version = EXCLUDED.version,
			description = EXCLUDED.description,
			body = EXCLUDED.body,
			updated_at = NOW()
		RETURNING created_at, updated_at`,
		p.Name, p.Version, p.Description, p.Body).Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (r *presetRepoPG) Get(ctx context.Context, name string) (*Preset, error) {
	return r.scanRow(r.conn(ctx).QueryRow(ctx, `SELECT `+presetCols+` FROM anonymization_preset WHERE name = $1`, name))
}

func (r *presetRepoPG) Delete(ctx context.Context, name string) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM anonymization_preset WHERE name = $1`, name)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return preset.ErrPresetNotFound
	}
	return nil
}

func (r *presetRepoPG) List(ctx context.Context, limit, offset int) ([]*Preset, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM anonymization_preset`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+presetCols+` FROM anonymization_preset ORDER BY name LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Preset
	for rows.Next() {
		p, err := r.scanRow(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}
