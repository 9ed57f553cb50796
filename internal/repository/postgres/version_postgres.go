package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"offerapi/internal/model"
	"offerapi/internal/repository"
)

const versionColumns = `id, offer_id, version, title, content, status,
		change_type, description, created_at, created_by, is_published`

// VersionPostgres is a PostgreSQL implementation of
// repository.VersionRepository. Version rows are immutable once written;
// the only field that ever changes afterwards is the publication flag.
type VersionPostgres struct {
	db *sql.DB
}

// NewVersionPostgres creates a new VersionPostgres repository.
func NewVersionPostgres(db *sql.DB) *VersionPostgres {
	return &VersionPostgres{db: db}
}

var _ repository.VersionRepository = (*VersionPostgres)(nil)

// isUniqueViolation reports a 23505 unique_violation from the driver.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func scanVersion(row rowScanner) (*model.Version, error) {
	var (
		v          model.Version
		rawContent []byte
	)
	if err := row.Scan(
		&v.ID,
		&v.OfferID,
		&v.Version,
		&v.Title,
		&rawContent,
		&v.Status,
		&v.ChangeType,
		&v.Description,
		&v.CreatedAt,
		&v.CreatedBy,
		&v.IsPublished,
	); err != nil {
		return nil, err
	}
	if len(rawContent) > 0 {
		if err := json.Unmarshal(rawContent, &v.Content); err != nil {
			return nil, fmt.Errorf("decode version content: %w", err)
		}
	}
	if v.Content == nil {
		v.Content = map[string]any{}
	}
	return &v, nil
}

// virtualVersion synthesizes version 1 from the offer row itself. The result
// is a read-time fallback for offers that were never explicitly versioned;
// it is never persisted.
func virtualVersion(o *model.Offer) *model.Version {
	return &model.Version{
		ID:          fmt.Sprintf("virtual_%s_1", o.ID),
		OfferID:     o.ID,
		Version:     1,
		Title:       o.Title,
		Content:     o.Content,
		Status:      o.Status,
		ChangeType:  model.ChangeManual,
		Description: "Initial version",
		CreatedAt:   o.CreatedAt,
		CreatedBy:   o.LastModifiedBy,
		IsPublished: o.IsPublished,
	}
}

func (r *VersionPostgres) findOffer(ctx context.Context, offerID string) (*model.Offer, error) {
	q := `SELECT ` + offerColumns + ` FROM offers WHERE id = $1`
	offer, err := scanOffer(r.db.QueryRowContext(ctx, q, offerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return offer, nil
}

// Append inserts an immutable version record.
func (r *VersionPostgres) Append(ctx context.Context, v *model.Version) (*model.Version, error) {
	content, err := json.Marshal(v.Content)
	if err != nil {
		return nil, fmt.Errorf("encode version content: %w", err)
	}

	const q = `
		INSERT INTO offer_versions (id, offer_id, version, title, content, status,
			change_type, description, created_at, created_by, is_published)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	if _, err := r.db.ExecContext(ctx, q,
		v.ID, v.OfferID, v.Version, v.Title, content, v.Status,
		v.ChangeType, v.Description, v.CreatedAt, v.CreatedBy, v.IsPublished,
	); err != nil {
		if isUniqueViolation(err) {
			return nil, repository.ErrDuplicateVersion
		}
		return nil, err
	}
	return v, nil
}

// Get returns one version by number, falling back to the virtual version 1
// when no row exists.
func (r *VersionPostgres) Get(ctx context.Context, offerID string, version int) (*model.Version, error) {
	q := `SELECT ` + versionColumns + ` FROM offer_versions WHERE offer_id = $1 AND version = $2`
	v, err := scanVersion(r.db.QueryRowContext(ctx, q, offerID, version))
	if err == nil {
		return v, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	if version != 1 {
		return nil, repository.ErrVersionNotFound
	}
	offer, err := r.findOffer(ctx, offerID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, repository.ErrVersionNotFound
		}
		return nil, err
	}
	return virtualVersion(offer), nil
}

// List returns every version of the offer, newest first. An offer without
// version rows answers with its virtual version 1.
func (r *VersionPostgres) List(ctx context.Context, offerID string) ([]model.Version, error) {
	q := `SELECT ` + versionColumns + ` FROM offer_versions WHERE offer_id = $1 ORDER BY created_at DESC, version DESC`
	rows, err := r.db.QueryContext(ctx, q, offerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	versions := make([]model.Version, 0)
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(versions) == 0 {
		offer, err := r.findOffer(ctx, offerID)
		if err != nil {
			return nil, err
		}
		versions = append(versions, *virtualVersion(offer))
	}
	return versions, nil
}

// SetPublished flips the publication flag on one version. Publishing clears
// every other flag of the same offer first, inside one transaction, so at
// most one version is ever published.
func (r *VersionPostgres) SetPublished(ctx context.Context, offerID string, version int, published bool) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	if published {
		const qClear = `UPDATE offer_versions SET is_published = false WHERE offer_id = $1 AND is_published`
		if _, err := tx.ExecContext(ctx, qClear, offerID); err != nil {
			return false, err
		}
	}

	const qSet = `UPDATE offer_versions SET is_published = $1 WHERE offer_id = $2 AND version = $3`
	res, err := tx.ExecContext(ctx, qSet, published, offerID, version)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected == 0 {
		return false, nil
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// DeleteAll cascades version deletion for one offer; idempotent.
func (r *VersionPostgres) DeleteAll(ctx context.Context, offerID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM offer_versions WHERE offer_id = $1`, offerID)
	return err
}
