// Package file implements the offer and version repositories on top of a
// single JSON document on disk. It exists for deployments without a
// database and mirrors every contract of the postgres backend, including
// the virtual-version fallback and the no-partial-write guarantee: each
// mutation rewrites the whole store to a temp file and atomically renames
// it over the previous one, so a crash mid-write never leaves a torn store.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"offerapi/internal/etag"
	"offerapi/internal/model"
	"offerapi/internal/repository"
)

// storeData is the on-disk shape, one JSON document holding everything.
type storeData struct {
	Offers      []*model.Offer   `json:"offers"`
	Versions    []*model.Version `json:"versions"`
	LastUpdated time.Time        `json:"lastUpdated"`
}

// Store is a file-backed implementation of both repository.OfferRepository
// and repository.VersionRepository. A single mutex serializes all access;
// operations for one call commit as a unit because the mutex is held from
// the first read to the atomic rename.
type Store struct {
	path string

	mu   sync.Mutex
	data storeData
}

var (
	_ repository.OfferRepository   = (*Store)(nil)
	_ repository.VersionRepository = (*Store)(nil)
)

// Open loads the store from path, creating the parent directory as needed.
// A missing or unreadable file starts an empty store; it is materialized on
// the first write.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("file store: path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("file store: create data dir: %w", err)
	}

	s := &Store{path: path}
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("file store: read %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, &s.data); err != nil {
		return nil, fmt.Errorf("file store: parse %s: %w", path, err)
	}
	return s, nil
}

// persist writes the whole store copy-on-write: temp file in the same
// directory, then atomic rename. Caller must hold the mutex.
func (s *Store) persist() error {
	s.data.LastUpdated = time.Now().UTC()

	raw, err := json.MarshalIndent(&s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("file store: encode: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".offers-*.json")
	if err != nil {
		return fmt.Errorf("file store: create temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("file store: write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("file store: close temp: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("file store: rename: %w", err)
	}
	return nil
}

func cloneContent(content map[string]any) map[string]any {
	if content == nil {
		return map[string]any{}
	}
	raw, err := json.Marshal(content)
	if err != nil {
		return map[string]any{}
	}
	out := map[string]any{}
	_ = json.Unmarshal(raw, &out)
	return out
}

func cloneOffer(o *model.Offer) *model.Offer {
	out := *o
	out.Content = cloneContent(o.Content)
	if o.PublishedVersion != nil {
		v := *o.PublishedVersion
		out.PublishedVersion = &v
	}
	if o.PublishedAt != nil {
		at := *o.PublishedAt
		out.PublishedAt = &at
	}
	if o.PublicURL != nil {
		u := *o.PublicURL
		out.PublicURL = &u
	}
	return &out
}

func cloneVersion(v *model.Version) *model.Version {
	out := *v
	out.Content = cloneContent(v.Content)
	return &out
}

func (s *Store) findOffer(id string) *model.Offer {
	for _, o := range s.data.Offers {
		if o.ID == id {
			return o
		}
	}
	return nil
}

func (s *Store) findVersion(offerID string, version int) *model.Version {
	for _, v := range s.data.Versions {
		if v.OfferID == offerID && v.Version == version {
			return v
		}
	}
	return nil
}

func (s *Store) maxVersionLocked(offerID string) int {
	max := 0
	for _, v := range s.data.Versions {
		if v.OfferID == offerID && v.Version > max {
			max = v.Version
		}
	}
	return max
}

// Create stores the offer and its initial version as one unit.
func (s *Store) Create(ctx context.Context, offer *model.Offer, initial *model.Version) (*model.Offer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.findOffer(offer.ID) != nil {
		return nil, fmt.Errorf("file store: offer %s already exists", offer.ID)
	}

	s.data.Offers = append(s.data.Offers, cloneOffer(offer))
	s.data.Versions = append(s.data.Versions, cloneVersion(initial))
	if err := s.persist(); err != nil {
		// Roll the in-memory state back so memory and disk stay in step.
		s.data.Offers = s.data.Offers[:len(s.data.Offers)-1]
		s.data.Versions = s.data.Versions[:len(s.data.Versions)-1]
		return nil, err
	}
	return cloneOffer(offer), nil
}

// FindByID returns the offer regardless of owner.
func (s *Store) FindByID(ctx context.Context, id string) (*model.Offer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o := s.findOffer(id)
	if o == nil {
		return nil, repository.ErrNotFound
	}
	return cloneOffer(o), nil
}

func offerLess(a, b *model.Offer, orderBy string) bool {
	switch orderBy {
	case "createdAt":
		return a.CreatedAt.Before(b.CreatedAt)
	case "title":
		return strings.ToLower(a.Title) < strings.ToLower(b.Title)
	default:
		return a.UpdatedAt.Before(b.UpdatedAt)
	}
}

// ListByOwner filters, sorts and paginates in memory.
func (s *Store) ListByOwner(ctx context.Context, ownerID string, q repository.ListQuery) (*repository.PageResult[model.Offer], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	filtered := make([]*model.Offer, 0)
	for _, o := range s.data.Offers {
		if o.OwnerID != ownerID {
			continue
		}
		if q.Status != "" && string(o.Status) != q.Status {
			continue
		}
		filtered = append(filtered, o)
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		if q.Order == "asc" {
			return offerLess(filtered[i], filtered[j], q.OrderBy)
		}
		return offerLess(filtered[j], filtered[i], q.OrderBy)
	})

	total := len(filtered)
	start := q.Offset
	if start > total {
		start = total
	}
	end := start + q.Limit
	if end > total {
		end = total
	}

	items := make([]model.Offer, 0, end-start)
	for _, o := range filtered[start:end] {
		items = append(items, *cloneOffer(o))
	}
	return &repository.PageResult[model.Offer]{Items: items, Total: total}, nil
}

// Update executes the optimistic-concurrency protocol under the store mutex,
// which doubles as the transaction boundary for this backend.
func (s *Store) Update(ctx context.Context, p repository.UpdateParams) (*model.Offer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.findOffer(p.ID)
	if current == nil || current.OwnerID != p.OwnerID {
		return nil, repository.ErrNotFound
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
		// (offerID, version) unique.
		newVersion = current.CurrentVersion + 1
		if max := s.maxVersionLocked(p.ID); max >= newVersion {
			newVersion = max + 1
		}
		newTotal = current.TotalVersions + 1
	case p.SetCurrentVersion > 0:
		newVersion = p.SetCurrentVersion
	}

	now := time.Now().UTC()
	prev := cloneOffer(current)
	var prevRow *model.Version
	appended := false

	switch {
	case p.Backup != nil:
		s.data.Versions = append(s.data.Versions, &model.Version{
			ID:          uuid.NewString(),
			OfferID:     p.ID,
			Version:     newVersion,
			Title:       prev.Title,
			Content:     cloneContent(prev.Content),
			Status:      prev.Status,
			ChangeType:  model.ChangeAuto,
			Description: p.Backup.Description,
			CreatedAt:   now,
			CreatedBy:   p.Backup.CreatedBy,
		})
		appended = true
	case p.CreateVersion:
		s.data.Versions = append(s.data.Versions, &model.Version{
			ID:          uuid.NewString(),
			OfferID:     p.ID,
			Version:     newVersion,
			Title:       p.Title,
			Content:     cloneContent(p.Content),
			Status:      p.Status,
			ChangeType:  model.ChangeManual,
			Description: p.Description,
			CreatedAt:   now,
			CreatedBy:   p.ModifiedBy,
		})
		appended = true
	case p.SetCurrentVersion == 0:
		// In-place edit of the version row at the unchanged pointer, when
		// it was ever materialized.
		if row := s.findVersion(p.ID, current.CurrentVersion); row != nil {
			prevRow = cloneVersion(row)
			row.Title = p.Title
			row.Content = cloneContent(p.Content)
			row.Status = p.Status
		}
	}

	current.Title = p.Title
	current.Content = cloneContent(p.Content)
	current.Status = p.Status
	current.CurrentVersion = newVersion
	current.TotalVersions = newTotal
	current.ETag = etag.ForOffer(p.Title, p.Content, string(p.Status))
	current.UpdatedAt = now
	current.LastModifiedBy = p.ModifiedBy

	if err := s.persist(); err != nil {
		// Roll the in-memory state back so memory and disk stay in step.
		*current = *prev
		if appended {
			s.data.Versions = s.data.Versions[:len(s.data.Versions)-1]
		}
		if prevRow != nil {
			if row := s.findVersion(p.ID, prevRow.Version); row != nil {
				*row = *prevRow
			}
		}
		return nil, err
	}
	return cloneOffer(current), nil
}

// Delete removes the offer and all its versions when the owner matches.
func (s *Store) Delete(ctx context.Context, id, ownerID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i, o := range s.data.Offers {
		if o.ID == id && o.OwnerID == ownerID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false, nil
	}

	// Splicing reuses the backing arrays, so rollback needs real copies.
	prevOffers := append([]*model.Offer(nil), s.data.Offers...)
	prevVersions := append([]*model.Version(nil), s.data.Versions...)

	s.data.Offers = append(s.data.Offers[:idx], s.data.Offers[idx+1:]...)
	s.deleteVersionsLocked(id)
	if err := s.persist(); err != nil {
		s.data.Offers = prevOffers
		s.data.Versions = prevVersions
		return false, err
	}
	return true, nil
}

// MarkPublished records the published version and its public URL.
func (s *Store) MarkPublished(ctx context.Context, id string, version int, publicURL string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o := s.findOffer(id)
	if o == nil {
		return repository.ErrNotFound
	}
	prev := cloneOffer(o)
	o.IsPublished = true
	v := version
	o.PublishedVersion = &v
	pubAt := at
	o.PublishedAt = &pubAt
	if publicURL != "" {
		u := publicURL
		o.PublicURL = &u
	} else {
		o.PublicURL = nil
	}
	o.UpdatedAt = at
	if err := s.persist(); err != nil {
		*o = *prev
		return err
	}
	return nil
}

// ClearPublished resets publication bookkeeping.
func (s *Store) ClearPublished(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o := s.findOffer(id)
	if o == nil {
		return repository.ErrNotFound
	}
	prev := cloneOffer(o)
	o.IsPublished = false
	o.PublishedVersion = nil
	o.PublishedAt = nil
	o.PublicURL = nil
	o.UpdatedAt = time.Now().UTC()
	if err := s.persist(); err != nil {
		*o = *prev
		return err
	}
	return nil
}

// Append inserts an immutable version record.
func (s *Store) Append(ctx context.Context, v *model.Version) (*model.Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.findVersion(v.OfferID, v.Version) != nil {
		return nil, repository.ErrDuplicateVersion
	}

	s.data.Versions = append(s.data.Versions, cloneVersion(v))
	if err := s.persist(); err != nil {
		s.data.Versions = s.data.Versions[:len(s.data.Versions)-1]
		return nil, err
	}
	return cloneVersion(v), nil
}

func virtualVersion(o *model.Offer) *model.Version {
	return &model.Version{
		ID:          fmt.Sprintf("virtual_%s_1", o.ID),
		OfferID:     o.ID,
		Version:     1,
		Title:       o.Title,
		Content:     cloneContent(o.Content),
		Status:      o.Status,
		ChangeType:  model.ChangeManual,
		Description: "Initial version",
		CreatedAt:   o.CreatedAt,
		CreatedBy:   o.LastModifiedBy,
		IsPublished: o.IsPublished,
	}
}

// Get returns one version, with the virtual version 1 fallback.
func (s *Store) Get(ctx context.Context, offerID string, version int) (*model.Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v := s.findVersion(offerID, version); v != nil {
		return cloneVersion(v), nil
	}
	if version == 1 {
		if o := s.findOffer(offerID); o != nil {
			return virtualVersion(o), nil
		}
	}
	return nil, repository.ErrVersionNotFound
}

// List returns all versions newest first, with the virtual fallback.
func (s *Store) List(ctx context.Context, offerID string) ([]model.Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	versions := make([]model.Version, 0)
	for _, v := range s.data.Versions {
		if v.OfferID == offerID {
			versions = append(versions, *cloneVersion(v))
		}
	}
	if len(versions) == 0 {
		o := s.findOffer(offerID)
		if o == nil {
			return nil, repository.ErrNotFound
		}
		return []model.Version{*virtualVersion(o)}, nil
	}

	sort.SliceStable(versions, func(i, j int) bool {
		if versions[i].CreatedAt.Equal(versions[j].CreatedAt) {
			return versions[i].Version > versions[j].Version
		}
		return versions[i].CreatedAt.After(versions[j].CreatedAt)
	})
	return versions, nil
}

// SetPublished flips the publication flag, clearing every other version of
// the offer first when publishing.
func (s *Store) SetPublished(ctx context.Context, offerID string, version int, published bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	target := s.findVersion(offerID, version)
	if target == nil {
		return false, nil
	}

	prevTarget := target.IsPublished
	var cleared []*model.Version
	if published {
		for _, v := range s.data.Versions {
			if v.OfferID == offerID && v.IsPublished {
				v.IsPublished = false
				cleared = append(cleared, v)
			}
		}
	}
	target.IsPublished = published

	if err := s.persist(); err != nil {
		for _, v := range cleared {
			v.IsPublished = true
		}
		target.IsPublished = prevTarget
		return false, err
	}
	return true, nil
}

// DeleteAll removes every version of the offer; idempotent.
func (s *Store) DeleteAll(ctx context.Context, offerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prevVersions := append([]*model.Version(nil), s.data.Versions...)
	if s.deleteVersionsLocked(offerID) == 0 {
		return nil
	}
	if err := s.persist(); err != nil {
		s.data.Versions = prevVersions
		return err
	}
	return nil
}

func (s *Store) deleteVersionsLocked(offerID string) int {
	kept := s.data.Versions[:0]
	removed := 0
	for _, v := range s.data.Versions {
		if v.OfferID == offerID {
			removed++
			continue
		}
		kept = append(kept, v)
	}
	s.data.Versions = kept
	return removed
}
