// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package httpapi composes the Path Sandbox (C1), Range Parser & Cache
// Validator (C2), and Transcode Gateway (C3) into the streaming endpoint
// (spec §4.4, C4). Grounded on xg2g/internal/proxy/handlers.go's
// request-routing style, reworked from HLS/segment proxying to
// byte-range file serving.
package httpapi

import (
	"context"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/oapi-codegen/runtime"

	"github.com/resonance-audio/resonance/internal/apierr"
	"github.com/resonance-audio/resonance/internal/domain"
	"github.com/resonance-audio/resonance/internal/httpstream"
	"github.com/resonance-audio/resonance/internal/metrics"
	"github.com/resonance-audio/resonance/internal/sandbox"
	"github.com/resonance-audio/resonance/internal/transcode"
)

// TrackLookup resolves a track id to its domain record.
type TrackLookup interface {
	GetTrack(ctx context.Context, id uuid.UUID) (*domain.Track, error)
}

// StreamHandler serves GET/HEAD /stream/{track_id}.
type StreamHandler struct {
	Tracks      TrackLookup
	LibraryRoot string
	Sandbox     *sandbox.Pool
	Transcode   *transcode.Gateway
}

func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	idStr := chi.URLParam(r, "track_id")
	trackID, err := uuid.Parse(idStr)
	if err != nil {
		apierr.RespondJSON(w, r, apierr.Of(apierr.KindValidation, "invalid track id"))
		return
	}

	track, err := h.Tracks.GetTrack(ctx, trackID)
	if err != nil {
		apierr.RespondJSON(w, r, err)
		return
	}
	if track == nil {
		apierr.RespondJSON(w, r, apierr.Of(apierr.KindNotFound, "track not found"))
		return
	}

	resolvedPath, err := h.Sandbox.Resolve(ctx, h.LibraryRoot, track.File.Path)
	if err != nil {
		apierr.RespondJSON(w, r, err)
		return
	}

	query := r.URL.Query()
	format := query.Get("format")
	bitrateParam := query.Get("bitrate")

	// Bind bitrate through oapi-codegen's generated-code-style query
	// binder (form style, non-exploded) rather than strconv.Atoi directly,
	// so the contract's parameter style stays authoritative even though
	// this handler is hand-written rather than codegen-emitted.
	var boundBitrate *int
	if bitrateParam != "" {
		if err := runtime.BindQueryParameter("form", false, false, "bitrate", query, &boundBitrate); err != nil || boundBitrate == nil {
			apierr.RespondJSON(w, r, apierr.Of(apierr.KindValidation, "invalid bitrate"))
			return
		}
	}

	if format == "" && bitrateParam != "" {
		apierr.RespondJSON(w, r, apierr.Of(apierr.KindValidation, "bitrate requires format"))
		return
	}

	if format != "" && format != "source" {
		if r.Header.Get("Range") != "" {
			apierr.RespondJSON(w, r, apierr.Of(apierr.KindInvalidRange, "range requests are not supported for transcoding"))
			return
		}
		h.serveTranscoded(w, r, resolvedPath, format, boundBitrate)
		return
	}

	h.servePassthrough(w, r, resolvedPath, track.File.Format)
}

func (h *StreamHandler) serveTranscoded(w http.ResponseWriter, r *http.Request, path, format string, bitrate *int) {
	opts := transcode.Options{TargetFormat: transcode.Format(format)}
	if bitrate != nil {
		opts.BitrateKbps = *bitrate
	}

	stream, err := h.Transcode.Open(r.Context(), path, opts)
	if err != nil {
		metrics.RecordStreamRequest("error")
		apierr.RespondJSON(w, r, err)
		return
	}
	defer stream.Close()

	w.Header().Set("Content-Type", transcode.ContentType(opts.TargetFormat))
	w.Header().Set("Accept-Ranges", "none")
	w.Header().Set("Cache-Control", "private, no-store")
	w.WriteHeader(http.StatusOK)

	metrics.RecordStreamRequest("full")
	if r.Method == http.MethodHead {
		return
	}
	n, _ := io.Copy(w, stream)
	metrics.RecordStreamServed(format, n)
}

func (h *StreamHandler) servePassthrough(w http.ResponseWriter, r *http.Request, path string, format domain.AudioFormat) {
	f, err := os.Open(path)
	if err != nil {
		apierr.RespondJSON(w, r, apierr.Wrap(apierr.KindAudioFileNotFound, "audio file not found", err))
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		apierr.RespondJSON(w, r, apierr.Wrap(apierr.KindAudioFileNotFound, "audio file not found", err))
		return
	}

	validators := httpstream.NewValidators(info.Size(), info.ModTime())
	var ifModifiedSince time.Time
	if v := r.Header.Get("If-Modified-Since"); v != "" {
		if parsed, err := http.ParseTime(v); err == nil {
			ifModifiedSince = parsed
		}
	}

	if validators.IsNotModified(r.Header.Get("If-None-Match"), ifModifiedSince) {
		setValidatorHeaders(w, validators)
		w.Header().Set("Cache-Control", "private, max-age=31536000, immutable")
		w.WriteHeader(http.StatusNotModified)
		return
	}

	contentType := format.ContentType()

	if rangeHeader := r.Header.Get("Range"); rangeHeader != "" {
		byteRange, err := httpstream.ParseRange(rangeHeader, info.Size())
		if err != nil {
			if apiErr, ok := apierr.As(err); ok && apiErr.Kind == apierr.KindRangeNotSatisfiable {
				w.Header().Set("Content-Range", "bytes */"+strconv.FormatInt(info.Size(), 10))
				metrics.RecordStreamRequest("not_satisfiable")
			} else {
				metrics.RecordStreamRequest("error")
			}
			apierr.RespondJSON(w, r, err)
			return
		}

		setValidatorHeaders(w, validators)
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Accept-Ranges", "bytes")
		w.Header().Set("Content-Range", "bytes "+strconv.FormatInt(byteRange.Start, 10)+"-"+strconv.FormatInt(byteRange.End, 10)+"/"+strconv.FormatInt(info.Size(), 10))
		w.Header().Set("Content-Length", strconv.FormatInt(byteRange.Length(), 10))
		w.WriteHeader(http.StatusPartialContent)

		metrics.RecordStreamRequest("partial")
		if r.Method == http.MethodHead {
			return
		}
		if _, err := f.Seek(byteRange.Start, io.SeekStart); err != nil {
			return
		}
		n, _ := io.CopyN(w, f, byteRange.Length())
		metrics.RecordStreamServed(string(format), n)
		return
	}

	setValidatorHeaders(w, validators)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	w.WriteHeader(http.StatusOK)

	metrics.RecordStreamRequest("full")
	if r.Method == http.MethodHead {
		return
	}
	n, _ := io.Copy(w, f)
	metrics.RecordStreamServed(string(format), n)
}

func setValidatorHeaders(w http.ResponseWriter, v httpstream.Validators) {
	w.Header().Set("ETag", v.ETag)
	w.Header().Set("Last-Modified", v.LastModified.UTC().Format(http.TimeFormat))
}
