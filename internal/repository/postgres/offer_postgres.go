package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"offerapi/internal/etag"
	"offerapi/internal/model"
	"offerapi/internal/repository"
)

// offerColumns is the canonical column list shared by every offer query.
const offerColumns = `id, owner_id, title, content, status, current_version, total_versions,
		etag, created_at, updated_at, last_modified_by,
		is_published, published_version, published_at, public_url`

// OfferPostgres is a PostgreSQL implementation of repository.OfferRepository.
// Every mutation that spans the offers and offer_versions tables runs inside
// a single transaction: the fingerprint check and the subsequent writes are
// one atomically-committed unit, which is what makes concurrent lost updates
// detectable instead of silent.
type OfferPostgres struct {
	db *sql.DB
}

// NewOfferPostgres creates a new OfferPostgres repository.
func NewOfferPostgres(db *sql.DB) *OfferPostgres {
	return &OfferPostgres{db: db}
}

var _ repository.OfferRepository = (*OfferPostgres)(nil)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOffer(row rowScanner) (*model.Offer, error) {
	var (
		o          model.Offer
		rawContent []byte
		pubVersion sql.NullInt64
		pubAt      sql.NullTime
		pubURL     sql.NullString
	)
	if err := row.Scan(
		&o.ID,
		&o.OwnerID,
		&o.Title,
		&rawContent,
		&o.Status,
		&o.CurrentVersion,
		&o.TotalVersions,
		&o.ETag,
		&o.CreatedAt,
		&o.UpdatedAt,
		&o.LastModifiedBy,
		&o.IsPublished,
		&pubVersion,
		&pubAt,
		&pubURL,
	); err != nil {
		return nil, err
	}
	if len(rawContent) > 0 {
		if err := json.Unmarshal(rawContent, &o.Content); err != nil {
			return nil, fmt.Errorf("decode offer content: %w", err)
		}
	}
	if o.Content == nil {
		o.Content = map[string]any{}
	}
	if pubVersion.Valid {
		v := int(pubVersion.Int64)
		o.PublishedVersion = &v
	}
	if pubAt.Valid {
		at := pubAt.Time
		o.PublishedAt = &at
	}
	if pubURL.Valid {
		u := pubURL.String
		o.PublicURL = &u
	}
	return &o, nil
}

// Create inserts the offer row and its initial version in one transaction.
func (r *OfferPostgres) Create(ctx context.Context, offer *model.Offer, initial *model.Version) (*model.Offer, error) {
	content, err := json.Marshal(offer.Content)
	if err != nil {
		return nil, fmt.Errorf("encode offer content: %w", err)
	}
	versionContent, err := json.Marshal(initial.Content)
	if err != nil {
		return nil, fmt.Errorf("encode version content: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	const qOffer = `
		INSERT INTO offers (id, owner_id, title, content, status, current_version, total_versions,
			etag, created_at, updated_at, last_modified_by, is_published)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	if _, err := tx.ExecContext(ctx, qOffer,
		offer.ID,
		offer.OwnerID,
		offer.Title,
		content,
		offer.Status,
		offer.CurrentVersion,
		offer.TotalVersions,
		offer.ETag,
		offer.CreatedAt,
		offer.UpdatedAt,
		offer.LastModifiedBy,
		offer.IsPublished,
	); err != nil {
		return nil, err
	}

	const qVersion = `
		INSERT INTO offer_versions (id, offer_id, version, title, content, status,
			change_type, description, created_at, created_by, is_published)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	if _, err := tx.ExecContext(ctx, qVersion,
		initial.ID,
		initial.OfferID,
		initial.Version,
		initial.Title,
		versionContent,
		initial.Status,
		initial.ChangeType,
		initial.Description,
		initial.CreatedAt,
		initial.CreatedBy,
		initial.IsPublished,
	); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return offer, nil
}

// FindByID fetches a single offer by its ID, any owner.
func (r *OfferPostgres) FindByID(ctx context.Context, id string) (*model.Offer, error) {
	q := `SELECT ` + offerColumns + ` FROM offers WHERE id = $1`
	offer, err := scanOffer(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return offer, nil
}

// orderColumn maps the API-level orderBy token to a real column. Values are
// whitelisted here because ORDER BY cannot be parameterized.
func orderColumn(orderBy string) string {
	switch orderBy {
	case "createdAt":
		return "created_at"
	case "title":
		return "title"
	default:
		return "updated_at"
	}
}

// ListByOwner returns the owner's offers using LIMIT/OFFSET pagination and a
// total count computed over the same filter.
func (r *OfferPostgres) ListByOwner(ctx context.Context, ownerID string, q repository.ListQuery) (*repository.PageResult[model.Offer], error) {
	where := "WHERE owner_id = $1"
	args := []any{ownerID}
	if q.Status != "" {
		where += " AND status = $2"
		args = append(args, q.Status)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM offers "+where, args...).Scan(&total); err != nil {
		return nil, err
	}

	direction := "DESC"
	if q.Order == "asc" {
		direction = "ASC"
	}
	query := fmt.Sprintf("SELECT %s FROM offers %s ORDER BY %s %s, id %s LIMIT $%d OFFSET $%d",
		offerColumns, where, orderColumn(q.OrderBy), direction, direction, len(args)+1, len(args)+2)
	args = append(args, q.Limit, q.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.Offer, 0)
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &repository.PageResult[model.Offer]{Items: items, Total: total}, nil
}

// Update executes the optimistic-concurrency protocol. The current row is
// locked with FOR UPDATE so the fingerprint read and the state write commit
// as one unit; a concurrent writer blocks on the lock and then fails its own
// fingerprint check against the freshly committed value.
func (r *OfferPostgres) Update(ctx context.Context, p repository.UpdateParams) (*model.Offer, error) {
	content, err := json.Marshal(p.Content)
	if err != nil {
		return nil, fmt.Errorf("encode offer content: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	qCurrent := `SELECT ` + offerColumns + ` FROM offers WHERE id = $1 AND owner_id = $2 FOR UPDATE`
	current, err := scanOffer(tx.QueryRowContext(ctx, qCurrent, p.ID, p.OwnerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Absent and foreign-owned rows are indistinguishable on purpose.
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	if p.ExpectedETag != "" && !etag.Compare(current.ETag, p.ExpectedETag) {
		return nil, repository.ErrETagMismatch
	}

	newVersion := current.CurrentVersion
	newTotal := current.TotalVersions
	switch {
	case p.CreateVersion || p.Backup != nil:
		// A switch can leave the pointer behind stored rows, so a new
		// version must allocate past whatever already exists to keep
		// (offer_id, version) unique.
		const qMax = `SELECT COALESCE(MAX(version), 0) FROM offer_versions WHERE offer_id = $1`
		var maxStored int
		if err := tx.QueryRowContext(ctx, qMax, p.ID).Scan(&maxStored); err != nil {
			return nil, err
		}
		newVersion = current.CurrentVersion + 1
		if maxStored >= newVersion {
			newVersion = maxStored + 1
		}
		newTotal = current.TotalVersions + 1
	case p.SetCurrentVersion > 0:
		newVersion = p.SetCurrentVersion
	}

	now := time.Now().UTC()
	newTag := etag.ForOffer(p.Title, p.Content, string(p.Status))

	const qUpdate = `
		UPDATE offers
		SET title = $1, content = $2, status = $3, current_version = $4, total_versions = $5,
			etag = $6, updated_at = $7, last_modified_by = $8
		WHERE id = $9
	`
	if _, err := tx.ExecContext(ctx, qUpdate,
		p.Title, content, p.Status, newVersion, newTotal, newTag, now, p.ModifiedBy, p.ID,
	); err != nil {
		return nil, err
	}

	const qInsertVersion = `
		INSERT INTO offer_versions (id, offer_id, version, title, content, status,
			change_type, description, created_at, created_by, is_published)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, false)
	`
	switch {
	case p.Backup != nil:
		// The pre-mutation snapshot becomes an auto-typed safety version.
		backupContent, err := json.Marshal(current.Content)
		if err != nil {
			return nil, fmt.Errorf("encode backup content: %w", err)
		}
		if _, err := tx.ExecContext(ctx, qInsertVersion,
			uuid.NewString(), p.ID, newVersion, current.Title, backupContent, current.Status,
			model.ChangeAuto, p.Backup.Description, now, p.Backup.CreatedBy,
		); err != nil {
			if isUniqueViolation(err) {
				return nil, repository.ErrDuplicateVersion
			}
			return nil, err
		}
	case p.CreateVersion:
		if _, err := tx.ExecContext(ctx, qInsertVersion,
			uuid.NewString(), p.ID, newVersion, p.Title, content, p.Status,
			model.ChangeManual, p.Description, now, p.ModifiedBy,
		); err != nil {
			if isUniqueViolation(err) {
				return nil, repository.ErrDuplicateVersion
			}
			return nil, err
		}
	case p.SetCurrentVersion == 0:
		// In-place edit: the version row at the unchanged pointer tracks the
		// new snapshot. Zero rows affected means version 1 is still virtual
		// and keeps deriving from the offer row, which stays consistent.
		const qOverwrite = `
			UPDATE offer_versions SET title = $1, content = $2, status = $3
			WHERE offer_id = $4 AND version = $5
		`
		if _, err := tx.ExecContext(ctx, qOverwrite,
			p.Title, content, p.Status, p.ID, current.CurrentVersion,
		); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	updated := *current
	updated.Title = p.Title
	updated.Content = p.Content
	updated.Status = p.Status
	updated.CurrentVersion = newVersion
	updated.TotalVersions = newTotal
	updated.ETag = newTag
	updated.UpdatedAt = now
	updated.LastModifiedBy = p.ModifiedBy
	return &updated, nil
}

// Delete removes the offer and all its versions when the owner matches.
// A non-matching id/owner pair reports false, not an error.
func (r *OfferPostgres) Delete(ctx context.Context, id, ownerID string) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM offers WHERE id = $1 AND owner_id = $2`, id, ownerID)
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

	if _, err := tx.ExecContext(ctx, `DELETE FROM offer_versions WHERE offer_id = $1`, id); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// MarkPublished records the published version and its public URL.
func (r *OfferPostgres) MarkPublished(ctx context.Context, id string, version int, publicURL string, at time.Time) error {
	const q = `
		UPDATE offers
		SET is_published = true, published_version = $1, published_at = $2, public_url = $3, updated_at = $2
		WHERE id = $4
	`
	var url any
	if publicURL != "" {
		url = publicURL
	}
	_, err := r.db.ExecContext(ctx, q, version, at, url, id)
	return err
}

// ClearPublished resets publication bookkeeping after an unpublish.
func (r *OfferPostgres) ClearPublished(ctx context.Context, id string) error {
	const q = `
		UPDATE offers
		SET is_published = false, published_version = NULL, published_at = NULL, public_url = NULL,
			updated_at = $1
		WHERE id = $2
	`
	_, err := r.db.ExecContext(ctx, q, time.Now().UTC(), id)
	return err
}
