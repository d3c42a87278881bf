// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package store

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/resonance-audio/resonance/internal/log"
	"github.com/resonance-audio/resonance/internal/scrobble"
)

// ScrobbleTracker implements realtime.ScrobbleReporter: it evaluates every
// playback-position update against internal/scrobble's eligibility rule
// (C13) and submits at most one ListenBrainz scrobble per track play.
type ScrobbleTracker struct {
	Store  *Store
	Client *scrobble.Client
	Key    string

	mu        sync.Mutex
	submitted map[string]string // userID -> last scrobbled trackID
}

// NewScrobbleTracker builds a tracker over the given store and ListenBrainz
// client. Key is the base64 AES-256 key used to decrypt stored tokens.
func NewScrobbleTracker(s *Store, client *scrobble.Client, key string) *ScrobbleTracker {
	return &ScrobbleTracker{
		Store:     s,
		Client:    client,
		Key:       key,
		submitted: make(map[string]string),
	}
}

// ReportProgress is called on every UpdatePlaybackState message the active
// device sends. It is a no-op until the play crosses scrobble.Eligible's
// 50%/4-minute threshold, and submits at most once per (user, track) play.
func (t *ScrobbleTracker) ReportProgress(ctx context.Context, userID, trackID string, positionMS int64, isPlaying bool) {
	if !isPlaying || trackID == "" {
		return
	}

	t.mu.Lock()
	alreadyDone := t.submitted[userID] == trackID
	t.mu.Unlock()
	if alreadyDone {
		return
	}

	tid, err := uuid.Parse(trackID)
	if err != nil {
		return
	}
	track, err := t.Store.GetTrack(ctx, tid)
	if err != nil || track == nil {
		return
	}

	var (
		enabled, privateSession bool
		tokenEncrypted          string
	)
	err = t.Store.DB.QueryRowContext(ctx,
		`SELECT enabled, token_encrypted, private_session FROM user_scrobble_settings WHERE user_id = ?`,
		userID).Scan(&enabled, &tokenEncrypted, &privateSession)
	if err == sql.ErrNoRows || !enabled || tokenEncrypted == "" {
		return
	}
	if err != nil {
		log.WithComponent("store.scrobble").Warn().Err(err).Str("event", "scrobble.settings_lookup_failed").Msg("scrobble settings lookup failed")
		return
	}

	scrobbleTrack := scrobble.Track{
		Title:        track.Title,
		Artist:       track.ArtistName,
		Album:        track.AlbumTitle,
		DurationSecs: int(track.Audio.DurationMS / 1000),
	}
	prefs := scrobble.UserPreferences{ListenBrainzScrobble: enabled, PrivateSession: privateSession}
	if !scrobble.Eligible(scrobbleTrack, int(positionMS/1000), prefs) {
		return
	}

	token, err := scrobble.DecryptToken(t.Key, tokenEncrypted)
	if err != nil {
		log.WithComponent("store.scrobble").Warn().Err(err).Str("event", "scrobble.token_decrypt_failed").Msg("stored listenbrainz token could not be decrypted")
		return
	}

	t.mu.Lock()
	t.submitted[userID] = trackID
	t.mu.Unlock()

	logger := log.WithComponent("store.scrobble")
	go func() {
		if _, err := t.Client.Submit(context.Background(), token, scrobbleTrack, time.Now()); err != nil {
			logger.Warn().Err(err).Str("event", "scrobble.submit_failed").Str("track_id", trackID).Msg("listenbrainz submission failed")
		}
	}()
}
