// Package etag generates and compares content-derived entity tags.
//
// A tag is a pure function of an offer's semantic snapshot (title, content,
// status): the snapshot is reduced to canonical JSON (map keys sorted at
// every nesting level, array order preserved), hashed, truncated to 8 hex
// characters and wrapped in double quotes per RFC 7232. Identical snapshots
// always produce identical tags regardless of the key order they arrived in.
package etag

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

const hashLen = 8

var hashPattern = regexp.MustCompile(`^[a-f0-9]{8}$`)

// Generate returns the tag for an arbitrary content value.
// The value is round-tripped through JSON so that struct and map inputs
// collapse to one canonical form; encoding/json emits map keys in sorted
// order at every depth, which is what makes the result deterministic.
func Generate(content any) (string, error) {
	if content == nil {
		return "", fmt.Errorf("etag: content is required")
	}

	raw, err := json.Marshal(content)
	if err != nil {
		return "", fmt.Errorf("etag: marshal content: %w", err)
	}

	// Normalize: decode and re-encode so field order and numeric types
	// no longer depend on the caller's representation.
	var normalized any
	if err := json.Unmarshal(raw, &normalized); err != nil {
		return "", fmt.Errorf("etag: normalize content: %w", err)
	}
	canonical, err := json.Marshal(normalized)
	if err != nil {
		return "", fmt.Errorf("etag: canonicalize content: %w", err)
	}

	sum := md5.Sum(canonical)
	return `"` + hex.EncodeToString(sum[:])[:hashLen] + `"`, nil
}

// ForOffer returns the tag for an offer snapshot. Only title, content and
// status participate; nil content hashes as an empty object and an empty
// status as draft, matching how the fields default at creation time.
func ForOffer(title string, content map[string]any, status string) string {
	if content == nil {
		content = map[string]any{}
	}
	if status == "" {
		status = "draft"
	}

	tag, err := Generate(map[string]any{
		"title":   title,
		"content": content,
		"status":  status,
	})
	if err != nil {
		// The snapshot is built from JSON-decoded values, so marshaling
		// cannot fail here; an empty tag would never compare equal.
		return ""
	}
	return tag
}

// Normalize trims the tag and ensures it carries surrounding quotes.
// Empty input normalizes to the empty string.
func Normalize(tag string) string {
	trimmed := strings.TrimSpace(tag)
	if trimmed == "" {
		return ""
	}
	if strings.HasPrefix(trimmed, `"`) && strings.HasSuffix(trimmed, `"`) && len(trimmed) >= 2 {
		return trimmed
	}
	return `"` + trimmed + `"`
}

// Compare reports whether two tags identify the same snapshot.
// Either side being empty is a non-match, never an equality.
func Compare(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return Normalize(a) == Normalize(b)
}

// ExtractHash returns the bare hex digest without quotes.
func ExtractHash(tag string) string {
	normalized := Normalize(tag)
	if normalized == "" {
		return ""
	}
	return strings.Trim(normalized, `"`)
}

// IsValid reports whether the tag carries a well-formed 8-char hex digest.
// Digests are emitted lowercase and compared byte-for-byte, so uppercase
// hex is rejected rather than accepted as a tag that could never match.
func IsValid(tag string) bool {
	hash := ExtractHash(tag)
	if hash == "" {
		return false
	}
	return hashPattern.MatchString(hash)
}
