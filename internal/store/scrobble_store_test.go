// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package store

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/resonance-audio/resonance/internal/scrobble"
)

// fakeDoer records submitted requests and always answers 200 OK, so tests
// can assert ReportProgress reached the network boundary without a real
// ListenBrainz dependency.
type fakeDoer struct {
	calls chan *http.Request
}

func (f *fakeDoer) Do(req *http.Request) (*http.Response, error) {
	f.calls <- req
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       http.NoBody,
	}, nil
}

func insertScrobbleTestTrack(t *testing.T, s *Store, id string, durationMS int64) {
	t.Helper()
	_, err := s.DB.ExecContext(context.Background(), `INSERT OR IGNORE INTO artists (id, name) VALUES (?, ?)`, "artist-scrobble", "Scrobble Artist")
	require.NoError(t, err)
	_, err = s.DB.ExecContext(context.Background(), `
		INSERT INTO tracks (id, title, artist_id, artist_name, file_path, file_size, format, duration_ms, genres, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, "Scrobble Song", "artist-scrobble", "Scrobble Artist", id+".flac", 1024, "flac", durationMS, "[]", time.Now().Format(time.RFC3339))
	require.NoError(t, err)
}

func insertScrobbleSettings(t *testing.T, s *Store, userID, tokenEncrypted string, enabled, privateSession bool) {
	t.Helper()
	_, err := s.DB.ExecContext(context.Background(), `
		INSERT INTO user_scrobble_settings (user_id, enabled, token_encrypted, private_session) VALUES (?, ?, ?, ?)`,
		userID, enabled, tokenEncrypted, privateSession)
	require.NoError(t, err)
}

func TestScrobbleTracker_ReportProgress_SubmitsOnceEligible(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	userID := uuid.New().String()
	trackID := uuid.New().String()

	insertScrobbleTestTrack(t, s, trackID, 200_000) // 200s track, threshold = 100s
	insertScrobbleSettings(t, s, userID, "legacy-plaintext-token", true, false)

	doer := &fakeDoer{calls: make(chan *http.Request, 4)}
	tracker := NewScrobbleTracker(s, &scrobble.Client{HTTP: doer, UserAgent: "test"}, "")

	tracker.ReportProgress(ctx, userID, trackID, 150_000, true)

	select {
	case req := <-doer.calls:
		require.Equal(t, "/1/submit-listens", req.URL.Path)
	case <-time.After(2 * time.Second):
		t.Fatal("expected a submit-listens request, got none")
	}

	// A second update for the same track must not submit again.
	tracker.ReportProgress(ctx, userID, trackID, 160_000, true)
	select {
	case req := <-doer.calls:
		t.Fatalf("unexpected duplicate submission: %v", req.URL)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestScrobbleTracker_ReportProgress_BelowThresholdSkipsSubmit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	userID := uuid.New().String()
	trackID := uuid.New().String()

	insertScrobbleTestTrack(t, s, trackID, 200_000)
	insertScrobbleSettings(t, s, userID, "legacy-plaintext-token", true, false)

	doer := &fakeDoer{calls: make(chan *http.Request, 4)}
	tracker := NewScrobbleTracker(s, &scrobble.Client{HTTP: doer, UserAgent: "test"}, "")

	tracker.ReportProgress(ctx, userID, trackID, 10_000, true) // 10s << 100s threshold

	select {
	case req := <-doer.calls:
		t.Fatalf("unexpected submission below threshold: %v", req.URL)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestScrobbleTracker_ReportProgress_NoSettingsRowSkipsSubmit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	userID := uuid.New().String()
	trackID := uuid.New().String()

	insertScrobbleTestTrack(t, s, trackID, 200_000)
	// No user_scrobble_settings row inserted at all.

	doer := &fakeDoer{calls: make(chan *http.Request, 4)}
	tracker := NewScrobbleTracker(s, &scrobble.Client{HTTP: doer, UserAgent: "test"}, "")

	tracker.ReportProgress(ctx, userID, trackID, 150_000, true)

	select {
	case req := <-doer.calls:
		t.Fatalf("unexpected submission with no settings row: %v", req.URL)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestScrobbleTracker_ReportProgress_NotPlayingIsNoop(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	userID := uuid.New().String()
	trackID := uuid.New().String()

	insertScrobbleTestTrack(t, s, trackID, 200_000)
	insertScrobbleSettings(t, s, userID, "legacy-plaintext-token", true, false)

	doer := &fakeDoer{calls: make(chan *http.Request, 4)}
	tracker := NewScrobbleTracker(s, &scrobble.Client{HTTP: doer, UserAgent: "test"}, "")

	tracker.ReportProgress(ctx, userID, trackID, 150_000, false)

	select {
	case req := <-doer.calls:
		t.Fatalf("unexpected submission while not playing: %v", req.URL)
	case <-time.After(200 * time.Millisecond):
	}
}
