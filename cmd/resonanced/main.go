// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Command resonanced is the Resonance music library server: it wires the
// streaming, realtime session and chat cores together over one HTTP
// listener. Grounded on xg2g's cmd/daemon/main.go startup sequence
// (signal-aware context, logger bootstrap, fail-fast pre-flight checks,
// then a blocking serve loop with graceful shutdown).
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/resonance-audio/resonance/internal/apierr"
	"github.com/resonance-audio/resonance/internal/chat"
	"github.com/resonance-audio/resonance/internal/config"
	"github.com/resonance-audio/resonance/internal/domain"
	"github.com/resonance-audio/resonance/internal/health"
	"github.com/resonance-audio/resonance/internal/httpapi"
	httpmw "github.com/resonance-audio/resonance/internal/httpapi/middleware"
	"github.com/resonance-audio/resonance/internal/httpapi/openapi"
	reslog "github.com/resonance-audio/resonance/internal/log"
	"github.com/resonance-audio/resonance/internal/queue"
	"github.com/resonance-audio/resonance/internal/realtime"
	"github.com/resonance-audio/resonance/internal/sandbox"
	"github.com/resonance-audio/resonance/internal/scrobble"
	"github.com/resonance-audio/resonance/internal/store"
	"github.com/resonance-audio/resonance/internal/transcode"
)

var (
	version = "0.1.0"
	commit  = "none"
)

const (
	shutdownTimeout            = 15 * time.Second
	presenceCheckpointInterval = 30 * time.Second
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("resonanced %s (commit: %s)\n", version, commit)
		os.Exit(0)
	}

	reslog.Configure(reslog.Config{Level: "info", Service: "resonanced", Version: version})
	logger := reslog.WithComponent("main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	if cfg.AuthSigningKey == "" {
		logger.Fatal().Str("event", "config.invalid").Msg("RESONANCE_AUTH_SIGNING_KEY must be set: the streaming and realtime endpoints require authenticated identity")
	}
	if snapshot, err := cfg.Snapshot(); err != nil {
		logger.Warn().Err(err).Msg("failed to render config audit snapshot")
	} else {
		logger.Info().Str("event", "config_snapshot").Str("settings", snapshot).Msg("effective configuration")
	}

	db, err := store.Open(cfg.DatabasePath, store.DefaultConfig())
	if err != nil {
		logger.Fatal().Err(err).Str("event", "store.open_failed").Msg("failed to open database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Warn().Err(err).Msg("error closing database")
		}
	}()

	queueMgr := queue.NewManager(db)
	toolExecutor := store.NewToolExecutor(db, queueMgr)

	var backend chat.Backend
	if cfg.AnthropicAPIKey != "" {
		backend = chat.NewAnthropicBackend(cfg.AnthropicAPIKey, chat.ModelFromName(cfg.AnthropicModel))
	} else {
		logger.Warn().Msg("RESONANCE_ANTHROPIC_API_KEY not set, chat will be unavailable")
	}

	chatService := chat.NewService(db, backend, toolExecutor, db, buildSystemPrompt)
	if cfg.RedisEnabled {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		chatService.RateLimiter = chat.NewRedisRateLimiter(redisClient)
		logger.Info().Str("event", "startup").Str("redis_addr", cfg.RedisAddr).Msg("chat rate limiting backed by redis")
	}

	hm := health.NewManager(version)
	hm.RegisterChecker(&health.DBChecker{DB: db.DB})
	hm.RegisterChecker(&health.FuncChecker{
		CheckerName: "llm",
		DegradeOnly: true,
		Ping: func(ctx context.Context) error {
			if cfg.AnthropicAPIKey == "" {
				return fmt.Errorf("anthropic api key not configured")
			}
			return nil
		},
	})

	registry := realtime.NewRegistry()
	orchestrator := realtime.NewOrchestrator(registry, chatService)
	if cfg.ScrobbleEnabled {
		orchestrator.Scrobble = store.NewScrobbleTracker(db, scrobble.NewClient(), cfg.ScrobbleKeyB64)
		logger.Info().Str("event", "startup").Msg("listenbrainz scrobble reporting enabled")
	}
	orchestrator.StartStaleSweep(ctx)

	presenceStore, err := realtime.OpenPresenceSnapshotStore(cfg.PresenceSnapshotPath)
	if err != nil {
		logger.Warn().Err(err).Msg("presence snapshot store unavailable, checkpoints disabled")
	} else {
		defer func() {
			if err := presenceStore.Close(); err != nil {
				logger.Warn().Err(err).Msg("error closing presence snapshot store")
			}
		}()
		presenceStore.StartCheckpointing(ctx, registry, presenceCheckpointInterval)
	}

	pathCache := sandbox.NewCachingResolver(cfg.LibraryRoot)
	libraryWatcher := sandbox.NewLibraryWatcher(cfg.LibraryRoot, pathCache)
	go libraryWatcher.Run(ctx)
	defer func() {
		if err := libraryWatcher.Close(); err != nil {
			logger.Warn().Err(err).Msg("error closing library watcher")
		}
	}()

	streamHandler := &httpapi.StreamHandler{
		Tracks:      db,
		LibraryRoot: cfg.LibraryRoot,
		Sandbox:     sandbox.NewPool(int64(cfg.TranscodePermits)).WithCache(pathCache),
		Transcode:   transcode.NewGateway(cfg.FFmpegPath, int64(cfg.TranscodePermits)),
	}

	router := chi.NewRouter()
	router.Use(reslog.Middleware())
	router.Use(middleware.Recoverer)
	router.Use(httpmw.SecurityHeaders(""))

	router.Get("/healthz", hm.ServeLive)
	router.Get("/readyz", hm.ServeReady)
	router.Handle("/metrics", promhttp.Handler())

	router.Route("/stream", func(r chi.Router) {
		r.Use(httpmw.StreamRateLimit())
		r.Use(httpmw.RequireAuth(cfg.AuthSigningKey))
		r.Use(openapi.ValidateRequest)
		r.Get("/{track_id}", streamHandler.ServeHTTP)
		r.Head("/{track_id}", streamHandler.ServeHTTP)
	})

	router.With(httpmw.RequireAuth(cfg.AuthSigningKey)).Get("/ws", func(w http.ResponseWriter, r *http.Request) {
		authenticatedUserID, _ := httpmw.UserIDFromContext(r.Context())

		userID := r.URL.Query().Get("user_id")
		if _, err := uuid.Parse(userID); err != nil {
			http.Error(w, "missing or invalid user_id", http.StatusBadRequest)
			return
		}
		// The user_id query parameter only selects which device-presence
		// bucket to join; the caller's true identity comes from the bearer
		// token, so a mismatch is impersonation, not a bad request.
		if userID != authenticatedUserID {
			apierr.RespondJSON(w, r, apierr.Of(apierr.KindForbidden, "user_id does not match authenticated identity"))
			return
		}
		deviceID := r.URL.Query().Get("device_id")
		if deviceID == "" {
			deviceID = uuid.NewString()
		}
		if err := orchestrator.Serve(r.Context(), w, r, userID, deviceID, domain.DeviceWeb); err != nil {
			logger.Warn().Err(err).Msg("realtime: session ended with error")
		}
	})

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // streaming responses run long
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info().Str("event", "startup").Str("addr", cfg.ListenAddr).Str("version", version).Msg("starting resonanced")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Str("event", "listen_failed").Msg("http server failed")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received, draining connections")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("server exiting")
}

// buildSystemPrompt renders the chat system prompt from library context,
// per spec §4.12's context-injection requirement.
func buildSystemPrompt(snapshot domain.ContextSnapshot) string {
	prompt := "You are Resonance, a music library assistant. You can search the library, " +
		"control playback, manage the queue and build playlists using the tools provided. " +
		"Keep responses concise and music-focused."

	prompt += fmt.Sprintf("\n\nLibrary: %d tracks, %d artists, %d albums.",
		snapshot.TrackCount, snapshot.ArtistCount, snapshot.AlbumCount)
	if snapshot.CurrentTrackTitle != nil {
		prompt += fmt.Sprintf(" Currently playing: %q.", *snapshot.CurrentTrackTitle)
	}
	return prompt
}
