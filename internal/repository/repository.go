package repository

// Package repository contains data access layer abstractions for offers and
// their version history. Implementations live in subpackages (postgres, file)
// and must honor the same atomicity and virtual-version contracts regardless
// of backend.

import "errors"

// Sentinel errors shared by every backend. The service layer translates
// these into its own taxonomy; backends never invent ad-hoc error strings.
var (
	// ErrNotFound is returned when an offer row is absent or not owned by
	// the requesting user. Both causes are deliberately indistinguishable.
	ErrNotFound = errors.New("offer not found")
	// ErrVersionNotFound is returned when a version row is absent and the
	// virtual-version fallback does not apply.
	ErrVersionNotFound = errors.New("version not found")
	// ErrETagMismatch is returned when an optimistic update was submitted
	// with a stale fingerprint.
	ErrETagMismatch = errors.New("etag mismatch")
	// ErrDuplicateVersion is returned when appending a version number that
	// already exists for the offer.
	ErrDuplicateVersion = errors.New("duplicate version number")
)

// ListQuery holds filtering, ordering and pagination parameters for owner
// listings. OrderBy and Order are expected to be pre-validated by the
// service ("createdAt"/"updatedAt"/"title", "asc"/"desc").
type ListQuery struct {
	Status  string
	Limit   int
	Offset  int
	OrderBy string
	Order   string
}

// PageResult is a generic pagination result wrapper.
type PageResult[T any] struct {
	Items []T
	Total int
}
