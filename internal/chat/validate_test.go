// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package chat

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateMessage_TrimsWhitespace(t *testing.T) {
	got, err := ValidateMessage("  hello world  ")
	require.NoError(t, err)
	assert.Equal(t, "hello world", got)
}

func TestValidateMessage_RejectsEmpty(t *testing.T) {
	_, err := ValidateMessage("   ")
	assert.Error(t, err)
}

func TestValidateMessage_RejectsOverLong(t *testing.T) {
	_, err := ValidateMessage(strings.Repeat("a", maxMessageLength+1))
	assert.Error(t, err)
}

func TestValidateMessage_AcceptsExactLimit(t *testing.T) {
	msg := strings.Repeat("a", maxMessageLength)
	got, err := ValidateMessage(msg)
	require.NoError(t, err)
	assert.Len(t, got, maxMessageLength)
}

func TestAutoTitle_TakesFirstFiveWords(t *testing.T) {
	title := AutoTitle("play something upbeat for my morning run today")
	assert.Equal(t, "play something upbeat for my", title)
}

func TestAutoTitle_ShortMessageUnchanged(t *testing.T) {
	title := AutoTitle("skip this track")
	assert.Equal(t, "skip this track", title)
}
