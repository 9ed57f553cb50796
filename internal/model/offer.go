package model

import "time"

// Status is the publication lifecycle state of an offer.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
	StatusArchived  Status = "archived"
)

// Statuses lists every valid offer status, in lifecycle order.
var Statuses = []Status{StatusDraft, StatusPublished, StatusArchived}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

// ChangeType records how a version came to exist.
type ChangeType string

const (
	// ChangeManual marks versions created explicitly by a user action.
	ChangeManual ChangeType = "manual"
	// ChangeAuto marks system-generated versions, e.g. pre-restore backups.
	ChangeAuto ChangeType = "auto"
)

// Offer is the mutable top-level resource: current content plus a pointer
// into its version history. This is a pure domain model with no
// database-specific dependencies or tags.
type Offer struct {
	ID             string         `json:"id"`
	OwnerID        string         `json:"ownerId"`
	Title          string         `json:"title"`
	Content        map[string]any `json:"content"`
	Status         Status         `json:"status"`
	CurrentVersion int            `json:"currentVersion"`
	TotalVersions  int            `json:"totalVersions"`
	ETag           string         `json:"eTag"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
	LastModifiedBy string         `json:"lastModifiedBy"`

	// Publication bookkeeping. At most one version of the offer is
	// published at a time; these fields mirror that version.
	IsPublished      bool       `json:"isPublished"`
	PublishedVersion *int       `json:"publishedVersion"`
	PublishedAt      *time.Time `json:"publishedAt"`
	PublicURL        *string    `json:"publicUrl"`
}

// Version is an immutable historical snapshot of an offer.
type Version struct {
	ID          string         `json:"id"`
	OfferID     string         `json:"offerId"`
	Version     int            `json:"version"`
	Title       string         `json:"title"`
	Content     map[string]any `json:"content"`
	Status      Status         `json:"status"`
	ChangeType  ChangeType     `json:"changeType"`
	Description string         `json:"description"`
	CreatedAt   time.Time      `json:"createdAt"`
	CreatedBy   string         `json:"createdBy"`
	IsPublished bool           `json:"isPublished"`
}
