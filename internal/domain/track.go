// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package domain holds the core data model shared by every component:
// tracks, embeddings, queues, chat conversations, sessions and playback
// state. Types here have no storage or transport dependency — persistence
// lives in internal/store, wire encoding lives at the API boundary.
package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// AudioFormat is the on-disk encoding of a track's file.
type AudioFormat string

const (
	FormatFLAC  AudioFormat = "flac"
	FormatMP3   AudioFormat = "mp3"
	FormatAAC   AudioFormat = "aac"
	FormatOpus  AudioFormat = "opus"
	FormatOgg   AudioFormat = "ogg"
	FormatWAV   AudioFormat = "wav"
	FormatALAC  AudioFormat = "alac"
	FormatOther AudioFormat = "other"
)

// IsLossless reports whether a format is lossless ⇔ format ∈ {flac, wav, alac}.
func (f AudioFormat) IsLossless() bool {
	switch f {
	case FormatFLAC, FormatWAV, FormatALAC:
		return true
	default:
		return false
	}
}

// ContentType returns the HTTP Content-Type for passthrough streaming.
func (f AudioFormat) ContentType() string {
	switch f {
	case FormatFLAC:
		return "audio/flac"
	case FormatMP3:
		return "audio/mpeg"
	case FormatAAC:
		return "audio/aac"
	case FormatOpus:
		return "audio/opus"
	case FormatOgg:
		return "audio/ogg"
	case FormatWAV:
		return "audio/wav"
	case FormatALAC:
		return "audio/mp4"
	default:
		return "application/octet-stream"
	}
}

// FileDescriptor locates and describes the bytes backing a Track.
type FileDescriptor struct {
	// Path is relative to the library root; never an absolute filesystem path.
	Path        string
	SizeBytes   int64
	Format      AudioFormat
	ContentHash string // optional; empty if not computed
}

// AudioProperties describes the decoded signal.
type AudioProperties struct {
	DurationMS int64
	BitRateKbps int
	SampleRate  int
	Channels    int
	BitDepth    int
}

// AudioFeatures are derived DSP/ML signals. All fields are optional; a nil
// pointer means "not computed", not "zero".
type AudioFeatures struct {
	BPM              *float64 `json:"bpm,omitempty"`
	Key              *string  `json:"key,omitempty"`
	Mode             *string  `json:"mode,omitempty"`
	Loudness         *float64 `json:"loudness,omitempty"`
	Energy           *float64 `json:"energy,omitempty"`
	Danceability     *float64 `json:"danceability,omitempty"`
	Valence          *float64 `json:"valence,omitempty"`
	Acousticness     *float64 `json:"acousticness,omitempty"`
	Instrumentalness *float64 `json:"instrumentalness,omitempty"`
	Speechiness      *float64 `json:"speechiness,omitempty"`
}

// HasAny reports whether at least one feature is present.
func (f *AudioFeatures) HasAny() bool {
	if f == nil {
		return false
	}
	return f.BPM != nil || f.Key != nil || f.Mode != nil || f.Loudness != nil ||
		f.Energy != nil || f.Danceability != nil || f.Valence != nil ||
		f.Acousticness != nil || f.Instrumentalness != nil || f.Speechiness != nil
}

// Track is the central entity of the library.
type Track struct {
	ID         uuid.UUID
	Title      string
	ArtistID   uuid.UUID
	ArtistName string
	AlbumID    *uuid.UUID
	AlbumTitle string

	File  FileDescriptor
	Audio AudioProperties

	Genres  map[string]struct{}
	AIMood  map[string]struct{}
	AITags  map[string]struct{}

	Features AudioFeatures

	Explicit bool

	PlayCount     int64
	SkipCount     int64
	CreatedAt     time.Time
	LastPlayedAt  *time.Time
}

// ErrInvalidTrack is wrapped by specific invariant violations.
var ErrInvalidTrack = errors.New("invalid track")

// Validate enforces the stored data-model invariants duration_ms > 0 and
// file_size > 0. is_hires is not checked here: it is derived on demand by
// IsHiRes (lossless ∧ sample_rate > 44100 ∧ bit_depth > 16).
func (t *Track) Validate() error {
	if t.Audio.DurationMS <= 0 {
		return errors.New("duration_ms must be > 0: " + ErrInvalidTrack.Error())
	}
	if t.File.SizeBytes <= 0 {
		return errors.New("file_size must be > 0: " + ErrInvalidTrack.Error())
	}
	return nil
}

// IsHiRes reports the is_hires derived invariant.
func (t *Track) IsHiRes() bool {
	return t.File.Format.IsLossless() && t.Audio.SampleRate > 44100 && t.Audio.BitDepth > 16
}

// TrackEmbedding is a fixed-dimension semantic embedding, one-to-one with a Track.
const EmbeddingDimension = 768

type TrackEmbedding struct {
	TrackID uuid.UUID
	Vector  [EmbeddingDimension]float32
}
