// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package httpstream

import (
	"testing"

	"github.com/resonance-audio/resonance/internal/apierr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRange_PassthroughMiddle(t *testing.T) {
	r, err := ParseRange("bytes=5-14", 20)
	require.NoError(t, err)
	assert.Equal(t, ByteRange{Start: 5, End: 14}, r)
	assert.Equal(t, int64(10), r.Length())
}

func TestParseRange_OpenEnded(t *testing.T) {
	r, err := ParseRange("bytes=15-", 20)
	require.NoError(t, err)
	assert.Equal(t, ByteRange{Start: 15, End: 19}, r)
}

func TestParseRange_Suffix(t *testing.T) {
	r, err := ParseRange("bytes=-5", 20)
	require.NoError(t, err)
	assert.Equal(t, ByteRange{Start: 15, End: 19}, r)
}

func TestParseRange_SuffixLargerThanFile(t *testing.T) {
	r, err := ParseRange("bytes=-100", 20)
	require.NoError(t, err)
	assert.Equal(t, ByteRange{Start: 0, End: 19}, r)
}

func TestParseRange_EndClampedToFileSize(t *testing.T) {
	r, err := ParseRange("bytes=0-1000", 20)
	require.NoError(t, err)
	assert.Equal(t, ByteRange{Start: 0, End: 19}, r)
}

func TestParseRange_WrongUnit(t *testing.T) {
	_, err := ParseRange("items=0-10", 20)
	require.Error(t, err)
	apiErr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.KindInvalidRange, apiErr.Kind)
}

func TestParseRange_MultipleRanges(t *testing.T) {
	_, err := ParseRange("bytes=0-10,20-30", 40)
	require.Error(t, err)
	apiErr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.KindInvalidRange, apiErr.Kind)
}

func TestParseRange_EmptyRange(t *testing.T) {
	_, err := ParseRange("bytes=-", 20)
	require.Error(t, err)
	apiErr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.KindInvalidRange, apiErr.Kind)
}

func TestParseRange_MalformedNumber(t *testing.T) {
	_, err := ParseRange("bytes=abc-10", 20)
	require.Error(t, err)
	apiErr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.KindInvalidRange, apiErr.Kind)
}

func TestParseRange_StartExceedsEnd(t *testing.T) {
	_, err := ParseRange("bytes=10-5", 20)
	require.Error(t, err)
	apiErr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.KindInvalidRange, apiErr.Kind)
}

func TestParseRange_StartBeyondFile(t *testing.T) {
	_, err := ParseRange("bytes=25-30", 20)
	require.Error(t, err)
	apiErr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.KindRangeNotSatisfiable, apiErr.Kind)
	assert.Equal(t, int64(20), apiErr.FileSize)
}

func TestParseRange_StartEqualsFileSize(t *testing.T) {
	_, err := ParseRange("bytes=20-25", 20)
	require.Error(t, err)
	apiErr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.KindRangeNotSatisfiable, apiErr.Kind)
}
