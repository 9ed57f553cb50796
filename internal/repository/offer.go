package repository

import (
	"context"
	"time"

	"offerapi/internal/model"
)

// BackupSpec requests a pre-mutation safety snapshot inside an Update: the
// offer's state as read at the start of the transaction is appended as an
// auto-typed version before the new state is written.
type BackupSpec struct {
	Description string
	CreatedBy   string
}

// UpdateParams drives the optimistic-concurrency update protocol. Exactly
// one of CreateVersion, Backup and SetCurrentVersion may be set:
//
//   - CreateVersion: the new snapshot is appended as a version at
//     currentVersion+1 and the pointer advances to it.
//   - Backup: the previous snapshot is appended at currentVersion+1 (the
//     pointer advances to the backup) and the offer then takes the new
//     snapshot. Used by restore.
//   - SetCurrentVersion > 0: the pointer is repointed directly without
//     touching version rows. Used by switch.
//   - none of the above: the version row at the unchanged pointer is
//     overwritten in place with the new snapshot, so history reflects
//     in-place edits too. A still-virtual row is left alone.
type UpdateParams struct {
	ID      string
	OwnerID string

	Title   string
	Content map[string]any
	Status  model.Status

	// ExpectedETag, when non-empty, must match the stored fingerprint or
	// the whole transaction fails with ErrETagMismatch.
	ExpectedETag string

	CreateVersion     bool
	Backup            *BackupSpec
	SetCurrentVersion int

	Description string
	ModifiedBy  string
}

// OfferRepository defines persistence for the mutable offer record.
// The fingerprint check and all writes of a single call happen inside one
// transactional boundary; partial application is never observable.
type OfferRepository interface {
	// Create persists the offer and its initial version as one atomic unit.
	Create(ctx context.Context, offer *model.Offer, initial *model.Version) (*model.Offer, error)

	// FindByID returns the offer regardless of owner; callers enforce
	// ownership. Returns ErrNotFound when absent.
	FindByID(ctx context.Context, id string) (*model.Offer, error)

	// ListByOwner returns the owner's offers page plus the total count.
	ListByOwner(ctx context.Context, ownerID string, q ListQuery) (*PageResult[model.Offer], error)

	// Update executes the optimistic-concurrency protocol, see UpdateParams.
	// Returns ErrNotFound when the offer is absent or owned by someone else
	// and ErrETagMismatch when the expected fingerprint is stale.
	Update(ctx context.Context, p UpdateParams) (*model.Offer, error)

	// Delete removes the offer and cascades to its versions. Returns false
	// (not an error) when no row matched id+owner.
	Delete(ctx context.Context, id, ownerID string) (bool, error)

	// MarkPublished records which version is publicly visible and where.
	MarkPublished(ctx context.Context, id string, version int, publicURL string, at time.Time) error

	// ClearPublished resets the publication bookkeeping fields.
	ClearPublished(ctx context.Context, id string) error
}

// VersionRepository defines the append-only version ledger. An offer that
// was created but never explicitly versioned still answers for version 1:
// Get and List synthesize a read-time "virtual" version from the offer row
// instead of failing. Virtual versions are never persisted.
type VersionRepository interface {
	// Append inserts an immutable version record. Returns
	// ErrDuplicateVersion when (offerID, version) already exists.
	Append(ctx context.Context, v *model.Version) (*model.Version, error)

	// Get returns one version, synthesizing a virtual version 1 from the
	// offer when no row exists. Returns ErrVersionNotFound otherwise.
	Get(ctx context.Context, offerID string, version int) (*model.Version, error)

	// List returns all versions newest-first, with the same virtual
	// fallback when the offer has no version rows.
	List(ctx context.Context, offerID string) ([]model.Version, error)

	// SetPublished flips the publication flag. Publishing first clears the
	// flag on every other version of the offer, atomically. Returns false
	// when the target version row does not exist.
	SetPublished(ctx context.Context, offerID string, version int, published bool) (bool, error)

	// DeleteAll removes every version of the offer; no-op when none exist.
	DeleteAll(ctx context.Context, offerID string) error
}
