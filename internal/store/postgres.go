package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres stores drafts in the drafts table.
type Postgres struct {
	db DBTX
}

func NewPostgres(db DBTX) *Postgres {
	return &Postgres{db: db}
}

const draftColumns = `id, owner_id, state, order_id, restored, details, items, paid, version, created_at, updated_at`

func (p *Postgres) GetDraft(ctx context.Context, id uuid.UUID) (Draft, error) {
	row := p.db.QueryRow(ctx, `SELECT `+draftColumns+` FROM drafts WHERE id = $1`, id)
	d, err := scanDraft(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Draft{}, ErrNotFound
	}
	if err != nil {
		return Draft{}, fmt.Errorf("get draft %s: %w", id, err)
	}
	return d, nil
}

func (p *Postgres) ListDrafts(ctx context.Context, owner uuid.UUID) ([]Draft, error) {
	rows, err := p.db.Query(ctx,
		`SELECT `+draftColumns+` FROM drafts WHERE owner_id = $1 ORDER BY updated_at DESC`, owner)
	if err != nil {
		return nil, fmt.Errorf("list drafts: %w", err)
	}
	defer rows.Close()

	var out []Draft
	for rows.Next() {
		d, err := scanDraft(rows)
		if err != nil {
			return nil, fmt.Errorf("scan draft: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list drafts: %w", err)
	}
	return out, nil
}

func (p *Postgres) SaveDraft(ctx context.Context, d Draft) (Draft, error) {
	details, err := json.Marshal(d.Details)
	if err != nil {
		return Draft{}, fmt.Errorf("encode details: %w", err)
	}
	items, err := json.Marshal(d.Items)
	if err != nil {
		return Draft{}, fmt.Errorf("encode items: %w", err)
	}

	if d.Version == 0 {
		err = p.db.QueryRow(ctx,
			`INSERT INTO drafts (id, owner_id, state, order_id, restored, details, items, paid, version)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 1)
			 RETURNING version, created_at, updated_at`,
			d.ID, d.OwnerID, d.State, d.OrderID, d.Restored, details, items, decimalToNumeric(d.Paid),
		).Scan(&d.Version, &d.CreatedAt, &d.UpdatedAt)
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Draft{}, ErrVersionConflict
		}
		if err != nil {
			return Draft{}, fmt.Errorf("insert draft: %w", err)
		}
		return d, nil
	}

	err = p.db.QueryRow(ctx,
		`UPDATE drafts
		 SET state = $2, order_id = $3, restored = $4, details = $5, items = $6, paid = $7,
		     version = version + 1, updated_at = now()
		 WHERE id = $1 AND version = $8
		 RETURNING version, created_at, updated_at`,
		d.ID, d.State, d.OrderID, d.Restored, details, items, decimalToNumeric(d.Paid), d.Version,
	).Scan(&d.Version, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		if _, getErr := p.GetDraft(ctx, d.ID); errors.Is(getErr, ErrNotFound) {
			return Draft{}, ErrNotFound
		}
		return Draft{}, ErrVersionConflict
	}
	if err != nil {
		return Draft{}, fmt.Errorf("update draft: %w", err)
	}
	return d, nil
}

func (p *Postgres) DeleteDraft(ctx context.Context, id uuid.UUID) error {
	tag, err := p.db.Exec(ctx, `DELETE FROM drafts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete draft: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanDraft(row pgx.Row) (Draft, error) {
	var (
		d       Draft
		details []byte
		items   []byte
		paid    pgtype.Numeric
	)
	err := row.Scan(&d.ID, &d.OwnerID, &d.State, &d.OrderID, &d.Restored,
		&details, &items, &paid, &d.Version, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return Draft{}, err
	}
	if err := json.Unmarshal(details, &d.Details); err != nil {
		return Draft{}, fmt.Errorf("decode details: %w", err)
	}
	if err := json.Unmarshal(items, &d.Items); err != nil {
		return Draft{}, fmt.Errorf("decode items: %w", err)
	}
	d.Paid = numericToDecimal(paid)
	return d, nil
}

func numericToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid {
		return decimal.Zero
	}
	val, err := n.Value()
	if err != nil || val == nil {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(val.(string))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func decimalToNumeric(d decimal.Decimal) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(d.StringFixed(2))
	return n
}
