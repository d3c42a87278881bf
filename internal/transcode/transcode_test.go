// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package transcode

import (
	"context"
	"testing"

	"github.com/resonance-audio/resonance/internal/apierr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptions_Validate_UnsupportedFormat(t *testing.T) {
	err := Options{TargetFormat: "wma"}.Validate()
	require.Error(t, err)
	apiErr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.KindValidation, apiErr.Kind)
}

func TestOptions_Validate_UnsupportedBitrate(t *testing.T) {
	err := Options{TargetFormat: FormatMP3, BitrateKbps: 100}.Validate()
	require.Error(t, err)
	apiErr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.KindValidation, apiErr.Kind)
}

func TestOptions_Validate_DefaultBitrateAccepted(t *testing.T) {
	err := Options{TargetFormat: FormatMP3}.Validate()
	assert.NoError(t, err)
}

func TestOptions_EffectiveBitrate_UsesFormatDefault(t *testing.T) {
	opts := Options{TargetFormat: FormatOpus}
	assert.Equal(t, 128, opts.effectiveBitrate())
}

func TestOptions_EffectiveBitrate_HonorsExplicitValue(t *testing.T) {
	opts := Options{TargetFormat: FormatMP3, BitrateKbps: 320}
	assert.Equal(t, 320, opts.effectiveBitrate())
}

func TestContentType_KnownFormats(t *testing.T) {
	assert.Equal(t, "audio/mpeg", ContentType(FormatMP3))
	assert.Equal(t, "audio/aac", ContentType(FormatAAC))
	assert.Equal(t, "audio/opus", ContentType(FormatOpus))
	assert.Equal(t, "audio/flac", ContentType(FormatFLAC))
}

func TestGateway_Open_FfmpegNotFound(t *testing.T) {
	gw := NewGateway("/nonexistent/ffmpeg-binary-that-does-not-exist", 4)
	_, err := gw.Open(context.Background(), "/tmp/does-not-matter.flac", Options{TargetFormat: FormatMP3})
	require.Error(t, err)
	apiErr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.KindConfiguration, apiErr.Kind)
}

func TestGateway_Open_PermitPoolExhausted(t *testing.T) {
	gw := NewGateway("ffmpeg", 1)
	require.True(t, gw.sem.TryAcquire(1)) // simulate the one permit already in use
	defer gw.sem.Release(1)

	_, err := gw.Open(context.Background(), "/tmp/does-not-matter.flac", Options{TargetFormat: FormatMP3})
	require.Error(t, err)
	apiErr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.KindServiceBusy, apiErr.Kind)
}

func TestGateway_Open_InvalidOptionsRejectedBeforePermitCheck(t *testing.T) {
	gw := NewGateway("ffmpeg", 1)
	require.True(t, gw.sem.TryAcquire(1))
	defer gw.sem.Release(1)

	_, err := gw.Open(context.Background(), "/tmp/does-not-matter.flac", Options{TargetFormat: "bogus"})
	require.Error(t, err)
	apiErr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.KindValidation, apiErr.Kind)
}
