// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package httpstream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewValidators_ETagFormat(t *testing.T) {
	mtime := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	v := NewValidators(1024, mtime)
	assert.Equal(t, `"1024-1767268800"`, v.ETag)
}

func TestIsNotModified_IfNoneMatchTakesPrecedence(t *testing.T) {
	v := NewValidators(1024, time.Now().Add(-time.Hour))
	// Future If-Modified-Since would normally never match, but an
	// If-None-Match that matches must still win.
	assert.True(t, v.IsNotModified(v.ETag, time.Now().Add(time.Hour)))
}

func TestIsNotModified_IfNoneMatchNonMatchingIgnoresDate(t *testing.T) {
	mtime := time.Now().Add(-time.Hour)
	v := NewValidators(1024, mtime)
	// Even though If-Modified-Since (now, after mtime) would say "not modified",
	// a present-but-wrong If-None-Match takes precedence and must fail.
	assert.False(t, v.IsNotModified(`"wrong-etag"`, time.Now()))
}

func TestIsNotModified_MalformedIfNoneMatchTreatedAsNonMatching(t *testing.T) {
	v := NewValidators(1024, time.Now())
	assert.False(t, v.IsNotModified("not even an etag", time.Time{}))
}

func TestIsNotModified_WildcardMatches(t *testing.T) {
	v := NewValidators(1024, time.Now())
	assert.True(t, v.IsNotModified("*", time.Time{}))
}

func TestIsNotModified_WeakComparisonStripsPrefix(t *testing.T) {
	mtime := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	v := NewValidators(10, mtime)
	assert.True(t, v.IsNotModified("W/"+v.ETag, time.Time{}))
}

func TestIsNotModified_ListValuesCommaSplit(t *testing.T) {
	v := NewValidators(10, time.Now())
	header := `"other-1", ` + v.ETag + `, "other-2"`
	assert.True(t, v.IsNotModified(header, time.Time{}))
}

func TestIsNotModified_IfModifiedSinceOlderThanMtime(t *testing.T) {
	mtime := time.Now().Truncate(time.Second)
	v := NewValidators(10, mtime)
	assert.False(t, v.IsNotModified("", mtime.Add(-time.Hour)))
}

func TestIsNotModified_IfModifiedSinceAtOrAfterMtime(t *testing.T) {
	mtime := time.Now().Add(-time.Hour).Truncate(time.Second)
	v := NewValidators(10, mtime)
	assert.True(t, v.IsNotModified("", mtime))
}

func TestIsNotModified_FutureIfModifiedSinceRejected(t *testing.T) {
	mtime := time.Now().Add(-time.Hour)
	v := NewValidators(10, mtime)
	assert.False(t, v.IsNotModified("", time.Now().Add(24*time.Hour)))
}
