// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package config loads the small set of knobs the core components need
// from the process environment. CLI parsing, config file loading and
// migrations are out of scope per spec.md — this is the minimal ambient
// layer the core consumes, grounded on xg2g/internal/config/env.go's
// typed-env-var style.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/resonance-audio/resonance/internal/log"
)

func parseString(key, defaultValue string) string {
	logger := log.WithComponent("config")
	if value, ok := os.LookupEnv(key); ok && value != "" {
		logger.Debug().Str("key", key).Str("source", "environment").Msg("using environment variable")
		return value
	}
	return defaultValue
}

func parseInt(key string, defaultValue int) int {
	logger := log.WithComponent("config")
	if value, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return n
		}
		logger.Warn().Str("key", key).Str("value", value).Msg("invalid integer, using default")
	}
	return defaultValue
}

func parseBool(key string, defaultValue bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return defaultValue
}

func parseDuration(key string, defaultValue time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
			return d
		}
	}
	return defaultValue
}

// Config is the full set of runtime knobs for the core. Every field has a
// default; AuthSigningKey defaults to empty, and cmd/resonanced refuses to
// start until RESONANCE_AUTH_SIGNING_KEY is set.
type Config struct {
	LibraryRoot string

	TranscodePermits int
	FFmpegPath       string

	ChatTimeout        time.Duration
	ChatRateInterval   time.Duration
	ChatRateWindow     time.Duration
	ChatRateMaxPerWin  int
	ChatToolIterations int
	ChatHistoryWindow  int

	QueueMaxSize int

	SimilarityMaxLimit int

	RedisEnabled bool
	RedisAddr    string

	// AuthSigningKey verifies bearer tokens at the /stream and /ws
	// boundary (internal/httpapi/middleware.RequireAuth). It must match
	// the key the upstream identity provider signs tokens with.
	AuthSigningKey string

	ScrobbleEnabled bool
	ScrobbleKeyB64  string // base64-encoded AES-256 key for token encryption

	DatabasePath         string
	PresenceSnapshotPath string
	AnthropicAPIKey      string
	AnthropicModel       string
	ListenAddr           string
}

// Load reads Config from the process environment, applying spec-mandated
// defaults (resource caps from §5).
func Load() Config {
	return Config{
		LibraryRoot: parseString("RESONANCE_LIBRARY_ROOT", "/var/lib/resonance/library"),

		TranscodePermits: parseInt("RESONANCE_TRANSCODE_PERMITS", 4),
		FFmpegPath:       parseString("RESONANCE_FFMPEG_PATH", "ffmpeg"),

		ChatTimeout:        parseDuration("RESONANCE_CHAT_TIMEOUT", 30*time.Second),
		ChatRateInterval:   parseDuration("RESONANCE_CHAT_RATE_INTERVAL", 2*time.Second),
		ChatRateWindow:     parseDuration("RESONANCE_CHAT_RATE_WINDOW", 60*time.Second),
		ChatRateMaxPerWin:  parseInt("RESONANCE_CHAT_RATE_MAX", 20),
		ChatToolIterations: parseInt("RESONANCE_CHAT_TOOL_ITERATIONS", 5),
		ChatHistoryWindow:  parseInt("RESONANCE_CHAT_HISTORY_WINDOW", 20),

		QueueMaxSize: parseInt("RESONANCE_QUEUE_MAX_SIZE", 10_000),

		SimilarityMaxLimit: parseInt("RESONANCE_SIMILARITY_MAX_LIMIT", 100),

		// RedisEnabled gates the distributed chat rate limiter; off by
		// default so a single-replica deployment needs no Redis at all.
		RedisEnabled: parseBool("RESONANCE_REDIS_ENABLED", false),
		RedisAddr:    parseString("RESONANCE_REDIS_ADDR", "127.0.0.1:6379"),

		AuthSigningKey: parseString("RESONANCE_AUTH_SIGNING_KEY", ""),

		ScrobbleEnabled: parseBool("RESONANCE_SCROBBLE_ENABLED", false),
		ScrobbleKeyB64:  parseString("RESONANCE_SCROBBLE_KEY", ""),

		DatabasePath:         parseString("RESONANCE_DATABASE_PATH", "/var/lib/resonance/resonance.db"),
		PresenceSnapshotPath: parseString("RESONANCE_PRESENCE_SNAPSHOT_PATH", "/var/lib/resonance/presence"),
		AnthropicAPIKey:      parseString("RESONANCE_ANTHROPIC_API_KEY", ""),
		AnthropicModel:  parseString("RESONANCE_ANTHROPIC_MODEL", ""),
		ListenAddr:      parseString("RESONANCE_LISTEN_ADDR", ":8080"),
	}
}
