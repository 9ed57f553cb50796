package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"offerapi/internal/apperr"
	"offerapi/internal/etag"
	"offerapi/internal/model"
	"offerapi/internal/repository"
	"offerapi/internal/storage"
)

const (
	maxTitleLength = 200

	defaultLimit = 50
	maxLimit     = 100

	publishedURLTTL = 7 * 24 * time.Hour
)

// OfferInput is the payload for creating an offer. Content omitted by the
// caller arrives as a nil map and is stored as an empty object.
type OfferInput struct {
	Title   string         `json:"title"`
	Content map[string]any `json:"content"`
	Status  model.Status   `json:"status"`
}

// Validate checks the input shape before any store access.
func (in OfferInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Title, validation.Required.Error("title is required"), validation.Length(1, maxTitleLength)),
		validation.Field(&in.Status, validation.In(model.StatusDraft, model.StatusPublished, model.StatusArchived)),
	)
}

// UpdateInput is the payload for a full-replacement update.
type UpdateInput struct {
	Title         string         `json:"title"`
	Content       map[string]any `json:"content"`
	Status        model.Status   `json:"status"`
	CreateVersion bool           `json:"createVersion"`
}

func (in UpdateInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Title, validation.Required.Error("title is required"), validation.Length(1, maxTitleLength)),
		validation.Field(&in.Status, validation.In(model.StatusDraft, model.StatusPublished, model.StatusArchived)),
	)
}

// ListOptions selects and pages an owner's offers. Zero values take the
// documented defaults; limit and offset are clamped, not rejected.
type ListOptions struct {
	Status  string
	Limit   int
	Offset  int
	OrderBy string
	Order   string
}

// OfferSummary is the short listing shape, one entry per offer.
type OfferSummary struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Status      model.Status `json:"status"`
	Version     int          `json:"version"`
	IsPublished bool         `json:"isPublished"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// ListResult is the service-level DTO for paginated offers.
type ListResult struct {
	Offers []OfferSummary `json:"offers"`
	Total  int            `json:"total"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

// VersionInfo summarizes an offer's position in its history.
type VersionInfo struct {
	Current        int       `json:"current"`
	Total          int       `json:"total"`
	IsLatest       bool      `json:"isLatest"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
	LastModifiedBy string    `json:"lastModifiedBy"`
}

// EnrichedOffer is an offer plus its version metadata, the full response
// shape for single-offer reads and mutations.
type EnrichedOffer struct {
	*model.Offer
	Version     int         `json:"version"`
	VersionInfo VersionInfo `json:"versionInfo"`
}

// VersionEntry is one row of an offer's version listing.
type VersionEntry struct {
	Version     int              `json:"version"`
	ChangeType  model.ChangeType `json:"changeType"`
	Description string           `json:"description"`
	CreatedAt   time.Time        `json:"createdAt"`
	CreatedBy   string           `json:"createdBy"`
	IsCurrent   bool             `json:"isCurrent"`
	IsPublished bool             `json:"isPublished"`
}

// VersionSummary reports a freshly created checkpoint.
type VersionSummary struct {
	Version     int              `json:"version"`
	Description string           `json:"description"`
	ChangeType  model.ChangeType `json:"changeType"`
	CreatedAt   time.Time        `json:"createdAt"`
}

// RestoreResult reports the outcome of a restore.
type RestoreResult struct {
	RestoredToVersion int       `json:"restoredToVersion"`
	BackupVersion     *int      `json:"backupVersion"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// OfferService defines the user-facing operations over versioned offers.
// Every operation checks ownership first; an offer owned by someone else is
// reported exactly like a missing one.
type OfferService interface {
	Create(ctx context.Context, userID string, in OfferInput) (*EnrichedOffer, error)
	List(ctx context.Context, userID string, opts ListOptions) (*ListResult, error)
	Get(ctx context.Context, id, userID string) (*EnrichedOffer, error)
	// Update replaces title/content/status under the optimistic-concurrency
	// contract: a non-empty ifMatch fingerprint must match the stored one.
	Update(ctx context.Context, id, userID string, in UpdateInput, ifMatch string) (*EnrichedOffer, error)
	Delete(ctx context.Context, id, userID string) error

	// CreateVersion checkpoints the offer's current state as a brand-new
	// version and advances the pointer to it; content is not modified.
	CreateVersion(ctx context.Context, id, userID, description string) (*VersionSummary, error)
	GetVersions(ctx context.Context, id, userID string) ([]VersionEntry, error)
	GetVersion(ctx context.Context, id string, versionNumber int, userID string) (*model.Version, error)
	// RestoreVersion overwrites the offer's content from a historical
	// snapshot, optionally forking an automatic backup first.
	RestoreVersion(ctx context.Context, id string, versionNumber int, userID string, createBackup bool) (*RestoreResult, error)
	// SwitchToVersion repoints the current-version pointer at the target
	// and takes its content; unlike restore it never forks.
	SwitchToVersion(ctx context.Context, id string, versionNumber int, userID string) (*EnrichedOffer, error)

	PublishVersion(ctx context.Context, id string, versionNumber int, userID string) (*EnrichedOffer, error)
	UnpublishVersion(ctx context.Context, id string, versionNumber int, userID string) (*EnrichedOffer, error)
}

type offerService struct {
	offers   repository.OfferRepository
	versions repository.VersionRepository
	store    storage.Storage // optional; nil disables public snapshot export
}

// NewOfferService constructs an OfferService. store may be nil, in which
// case publishing skips the public snapshot export and records no URL.
func NewOfferService(offers repository.OfferRepository, versions repository.VersionRepository, store storage.Storage) OfferService {
	return &offerService{offers: offers, versions: versions, store: store}
}

// mapRepoError translates backend sentinels into the service taxonomy.
// Anything unrecognized is an internal failure and is never retried.
func mapRepoError(err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apperr.NotFound("offer not found")
	case errors.Is(err, repository.ErrVersionNotFound):
		return apperr.NotFound("version not found")
	case errors.Is(err, repository.ErrETagMismatch):
		return apperr.Conflict("offer was modified by another user")
	case errors.Is(err, repository.ErrDuplicateVersion):
		return apperr.Conflict("version number already exists")
	default:
		return apperr.Internal(err)
	}
}

// loadOwned fetches the offer and enforces single-owner access. Ownership
// failure is indistinguishable from absence.
func (s *offerService) loadOwned(ctx context.Context, id, userID string) (*model.Offer, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperr.Validation("offer id is required")
	}
	if userID == "" {
		return nil, apperr.Validation("user id is required")
	}
	offer, err := s.offers.FindByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return nil, mapRepoError(err)
	}
	if offer.OwnerID != userID {
		return nil, apperr.NotFound("offer not found")
	}
	return offer, nil
}

// enrich overlays the current version's snapshot onto the offer and attaches
// version metadata. The overlay keeps reads coherent when the pointer sits
// on a historical version.
func (s *offerService) enrich(ctx context.Context, offer *model.Offer) (*EnrichedOffer, error) {
	current, err := s.versions.Get(ctx, offer.ID, offer.CurrentVersion)
	if err == nil {
		offer.Title = current.Title
		offer.Content = current.Content
		offer.Status = current.Status
	} else if !errors.Is(err, repository.ErrVersionNotFound) {
		return nil, mapRepoError(err)
	}

	return &EnrichedOffer{
		Offer:   offer,
		Version: offer.CurrentVersion,
		VersionInfo: VersionInfo{
			Current:        offer.CurrentVersion,
			Total:          offer.TotalVersions,
			IsLatest:       true,
			CreatedAt:      offer.CreatedAt,
			UpdatedAt:      offer.UpdatedAt,
			LastModifiedBy: offer.LastModifiedBy,
		},
	}, nil
}

func (s *offerService) Create(ctx context.Context, userID string, in OfferInput) (*EnrichedOffer, error) {
	if userID == "" {
		return nil, apperr.Validation("user id is required")
	}

	in.Title = strings.TrimSpace(in.Title)
	if err := in.Validate(); err != nil {
		return nil, apperr.Validation(err.Error())
	}
	if in.Content == nil {
		in.Content = map[string]any{}
	}
	if in.Status == "" {
		in.Status = model.StatusDraft
	}

	now := time.Now().UTC()
	offer := &model.Offer{
		ID:             uuid.NewString(),
		OwnerID:        userID,
		Title:          in.Title,
		Content:        in.Content,
		Status:         in.Status,
		CurrentVersion: 1,
		TotalVersions:  1,
		ETag:           etag.ForOffer(in.Title, in.Content, string(in.Status)),
		CreatedAt:      now,
		UpdatedAt:      now,
		LastModifiedBy: userID,
	}
	initial := &model.Version{
		ID:          uuid.NewString(),
		OfferID:     offer.ID,
		Version:     1,
		Title:       in.Title,
		Content:     in.Content,
		Status:      in.Status,
		ChangeType:  model.ChangeManual,
		Description: "Initial version",
		CreatedAt:   now,
		CreatedBy:   userID,
	}

	created, err := s.offers.Create(ctx, offer, initial)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return s.enrich(ctx, created)
}

func (s *offerService) List(ctx context.Context, userID string, opts ListOptions) (*ListResult, error) {
	if userID == "" {
		return nil, apperr.Validation("user id is required")
	}

	if opts.Status != "" && !model.Status(opts.Status).Valid() {
		return nil, apperr.Validation(fmt.Sprintf("invalid status %q", opts.Status))
	}
	switch opts.OrderBy {
	case "":
		opts.OrderBy = "updatedAt"
	case "createdAt", "updatedAt", "title":
	default:
		return nil, apperr.Validation(fmt.Sprintf("invalid orderBy %q", opts.OrderBy))
	}
	switch opts.Order {
	case "":
		opts.Order = "desc"
	case "asc", "desc":
	default:
		return nil, apperr.Validation(fmt.Sprintf("invalid order %q", opts.Order))
	}

	if opts.Limit <= 0 {
		opts.Limit = defaultLimit
	}
	if opts.Limit > maxLimit {
		opts.Limit = maxLimit
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}

	page, err := s.offers.ListByOwner(ctx, userID, repository.ListQuery{
		Status:  opts.Status,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
		OrderBy: opts.OrderBy,
		Order:   opts.Order,
	})
	if err != nil {
		return nil, mapRepoError(err)
	}

	summaries := make([]OfferSummary, 0, len(page.Items))
	for _, o := range page.Items {
		summaries = append(summaries, OfferSummary{
			ID:          o.ID,
			Title:       o.Title,
			Status:      o.Status,
			Version:     o.CurrentVersion,
			IsPublished: o.IsPublished,
			CreatedAt:   o.CreatedAt,
			UpdatedAt:   o.UpdatedAt,
		})
	}
	return &ListResult{Offers: summaries, Total: page.Total, Limit: opts.Limit, Offset: opts.Offset}, nil
}

func (s *offerService) Get(ctx context.Context, id, userID string) (*EnrichedOffer, error) {
	offer, err := s.loadOwned(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	return s.enrich(ctx, offer)
}

func (s *offerService) Update(ctx context.Context, id, userID string, in UpdateInput, ifMatch string) (*EnrichedOffer, error) {
	if _, err := s.loadOwned(ctx, id, userID); err != nil {
		return nil, err
	}

	in.Title = strings.TrimSpace(in.Title)
	if err := in.Validate(); err != nil {
		return nil, apperr.Validation(err.Error())
	}
	if in.Content == nil {
		in.Content = map[string]any{}
	}
	if in.Status == "" {
		in.Status = model.StatusDraft
	}

	updated, err := s.offers.Update(ctx, repository.UpdateParams{
		ID:            strings.TrimSpace(id),
		OwnerID:       userID,
		Title:         in.Title,
		Content:       in.Content,
		Status:        in.Status,
		ExpectedETag:  ifMatch,
		CreateVersion: in.CreateVersion,
		ModifiedBy:    userID,
	})
	if err != nil {
		return nil, mapRepoError(err)
	}
	return s.enrich(ctx, updated)
}

func (s *offerService) Delete(ctx context.Context, id, userID string) error {
	if strings.TrimSpace(id) == "" {
		return apperr.Validation("offer id is required")
	}
	if userID == "" {
		return apperr.Validation("user id is required")
	}

	deleted, err := s.offers.Delete(ctx, strings.TrimSpace(id), userID)
	if err != nil {
		return mapRepoError(err)
	}
	if !deleted {
		return apperr.NotFound("offer not found")
	}
	return nil
}

// CreateVersion checkpoints existing state: the snapshot written at the new
// version number is the offer's current one, unchanged.
func (s *offerService) CreateVersion(ctx context.Context, id, userID, description string) (*VersionSummary, error) {
	offer, err := s.loadOwned(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	updated, err := s.offers.Update(ctx, repository.UpdateParams{
		ID:            offer.ID,
		OwnerID:       userID,
		Title:         offer.Title,
		Content:       offer.Content,
		Status:        offer.Status,
		CreateVersion: true,
		Description:   description,
		ModifiedBy:    userID,
	})
	if err != nil {
		return nil, mapRepoError(err)
	}

	return &VersionSummary{
		Version:     updated.CurrentVersion,
		Description: description,
		ChangeType:  model.ChangeManual,
		CreatedAt:   updated.UpdatedAt,
	}, nil
}

func (s *offerService) GetVersions(ctx context.Context, id, userID string) ([]VersionEntry, error) {
	offer, err := s.loadOwned(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	versions, err := s.versions.List(ctx, offer.ID)
	if err != nil {
		return nil, mapRepoError(err)
	}

	entries := make([]VersionEntry, 0, len(versions))
	for _, v := range versions {
		entries = append(entries, VersionEntry{
			Version:     v.Version,
			ChangeType:  v.ChangeType,
			Description: v.Description,
			CreatedAt:   v.CreatedAt,
			CreatedBy:   v.CreatedBy,
			IsCurrent:   v.Version == offer.CurrentVersion,
			IsPublished: v.IsPublished,
		})
	}
	return entries, nil
}

func (s *offerService) GetVersion(ctx context.Context, id string, versionNumber int, userID string) (*model.Version, error) {
	if versionNumber < 1 {
		return nil, apperr.Validation("version number must be a positive integer")
	}
	offer, err := s.loadOwned(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	version, err := s.versions.Get(ctx, offer.ID, versionNumber)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return version, nil
}

func (s *offerService) RestoreVersion(ctx context.Context, id string, versionNumber int, userID string, createBackup bool) (*RestoreResult, error) {
	if versionNumber < 1 {
		return nil, apperr.Validation("version number must be a positive integer")
	}
	offer, err := s.loadOwned(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	target, err := s.versions.Get(ctx, offer.ID, versionNumber)
	if err != nil {
		return nil, mapRepoError(err)
	}

	params := repository.UpdateParams{
		ID:         offer.ID,
		OwnerID:    userID,
		Title:      target.Title,
		Content:    target.Content,
		Status:     target.Status,
		ModifiedBy: userID,
	}
	if createBackup {
		params.Backup = &repository.BackupSpec{
			Description: fmt.Sprintf("Automatic backup before restoring version %d", versionNumber),
			CreatedBy:   userID,
		}
	} else {
		// Keep the pointer where it is and leave the historical row at the
		// pointer untouched; only the offer's current state changes.
		params.SetCurrentVersion = offer.CurrentVersion
	}

	updated, err := s.offers.Update(ctx, params)
	if err != nil {
		return nil, mapRepoError(err)
	}

	result := &RestoreResult{RestoredToVersion: versionNumber, UpdatedAt: updated.UpdatedAt}
	if createBackup {
		backup := updated.CurrentVersion
		result.BackupVersion = &backup
	}
	return result, nil
}

func (s *offerService) SwitchToVersion(ctx context.Context, id string, versionNumber int, userID string) (*EnrichedOffer, error) {
	if versionNumber < 1 {
		return nil, apperr.Validation("version number must be a positive integer")
	}
	offer, err := s.loadOwned(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	target, err := s.versions.Get(ctx, offer.ID, versionNumber)
	if err != nil {
		return nil, mapRepoError(err)
	}

	updated, err := s.offers.Update(ctx, repository.UpdateParams{
		ID:                offer.ID,
		OwnerID:           userID,
		Title:             target.Title,
		Content:           target.Content,
		Status:            target.Status,
		SetCurrentVersion: versionNumber,
		ModifiedBy:        userID,
	})
	if err != nil {
		return nil, mapRepoError(err)
	}
	return s.enrich(ctx, updated)
}

// publishedKey is the object-store location of a published snapshot.
func publishedKey(offerID string, version int) string {
	return fmt.Sprintf("offers/%s/v%d.json", offerID, version)
}

func (s *offerService) PublishVersion(ctx context.Context, id string, versionNumber int, userID string) (*EnrichedOffer, error) {
	if versionNumber < 1 {
		return nil, apperr.Validation("version number must be a positive integer")
	}
	offer, err := s.loadOwned(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	version, err := s.versions.Get(ctx, offer.ID, versionNumber)
	if err != nil {
		return nil, mapRepoError(err)
	}

	ok, err := s.versions.SetPublished(ctx, offer.ID, versionNumber, true)
	if err != nil {
		return nil, mapRepoError(err)
	}
	if !ok {
		// The target is still a virtual version 1; materialize it so the
		// publication flag has a row to live on.
		if !strings.HasPrefix(version.ID, "virtual_") {
			return nil, apperr.NotFound("version not found")
		}
		version.ID = uuid.NewString()
		if _, err := s.versions.Append(ctx, version); err != nil {
			return nil, mapRepoError(err)
		}
		if _, err := s.versions.SetPublished(ctx, offer.ID, versionNumber, true); err != nil {
			return nil, mapRepoError(err)
		}
	}

	now := time.Now().UTC()
	publicURL := ""
	if s.store != nil {
		snapshot, err := json.Marshal(map[string]any{
			"id":          offer.ID,
			"version":     version.Version,
			"title":       version.Title,
			"content":     version.Content,
			"status":      version.Status,
			"publishedAt": now,
		})
		if err != nil {
			return nil, apperr.Internal(fmt.Errorf("encode published snapshot: %w", err))
		}
		key := publishedKey(offer.ID, versionNumber)
		if _, err := s.store.Put(ctx, key, strings.NewReader(string(snapshot)), storage.PutObjectOptions{
			Size:        int64(len(snapshot)),
			ContentType: "application/json",
		}); err != nil {
			return nil, apperr.Internal(fmt.Errorf("export published snapshot: %w", err))
		}
		url, err := s.store.PresignGet(ctx, key, publishedURLTTL)
		if err != nil {
			return nil, apperr.Internal(fmt.Errorf("presign published snapshot: %w", err))
		}
		publicURL = url
	}

	if err := s.offers.MarkPublished(ctx, offer.ID, versionNumber, publicURL, now); err != nil {
		return nil, mapRepoError(err)
	}

	refreshed, err := s.offers.FindByID(ctx, offer.ID)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return s.enrich(ctx, refreshed)
}

func (s *offerService) UnpublishVersion(ctx context.Context, id string, versionNumber int, userID string) (*EnrichedOffer, error) {
	if versionNumber < 1 {
		return nil, apperr.Validation("version number must be a positive integer")
	}
	offer, err := s.loadOwned(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	ok, err := s.versions.SetPublished(ctx, offer.ID, versionNumber, false)
	if err != nil {
		return nil, mapRepoError(err)
	}
	if !ok {
		return nil, apperr.NotFound("version not found")
	}

	if s.store != nil {
		if err := s.store.Delete(ctx, publishedKey(offer.ID, versionNumber)); err != nil {
			return nil, apperr.Internal(fmt.Errorf("remove published snapshot: %w", err))
		}
	}

	if err := s.offers.ClearPublished(ctx, offer.ID); err != nil {
		return nil, mapRepoError(err)
	}

	refreshed, err := s.offers.FindByID(ctx, offer.ID)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return s.enrich(ctx, refreshed)
}
