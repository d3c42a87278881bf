// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package transcode runs ffmpeg as a subprocess to produce a lazy byte
// stream in a target audio format, bounded by a permit pool so the host
// never runs more concurrent decodes than it can sustain. Grounded on
// xg2g/internal/proxy/transcoder.go's ffmpeg-subprocess pipeline pattern,
// narrowed from HLS video transcoding to single-file audio transcoding
// (spec §4.3, C3).
package transcode

import (
	"context"
	"io"
	"os/exec"
	"strconv"

	"github.com/resonance-audio/resonance/internal/apierr"
	"github.com/resonance-audio/resonance/internal/log"
	"golang.org/x/sync/semaphore"
)

// Format is a supported transcode target.
type Format string

const (
	FormatMP3  Format = "mp3"
	FormatAAC  Format = "aac"
	FormatOpus Format = "opus"
	FormatFLAC Format = "flac"
)

func (f Format) valid() bool {
	switch f {
	case FormatMP3, FormatAAC, FormatOpus, FormatFLAC:
		return true
	default:
		return false
	}
}

// defaultBitrateKbps is used when the caller doesn't specify one.
var defaultBitrateKbps = map[Format]int{
	FormatMP3:  192,
	FormatAAC:  192,
	FormatOpus: 128,
	FormatFLAC: 0, // lossless, bitrate is not meaningful
}

var allowedBitratesKbps = map[int]bool{64: true, 96: true, 128: true, 192: true, 256: true, 320: true}

// Options describes a requested transcode.
type Options struct {
	TargetFormat Format
	BitrateKbps  int // 0 means "use the format default"
}

// Validate checks Options against the allowed format/bitrate sets.
func (o Options) Validate() error {
	if !o.TargetFormat.valid() {
		return apierr.Of(apierr.KindValidation, "unsupported target format")
	}
	if o.BitrateKbps != 0 && !allowedBitratesKbps[o.BitrateKbps] {
		return apierr.Of(apierr.KindValidation, "unsupported bitrate")
	}
	return nil
}

func (o Options) effectiveBitrate() int {
	if o.BitrateKbps != 0 {
		return o.BitrateKbps
	}
	return defaultBitrateKbps[o.TargetFormat]
}

// ffmpegArgs maps a Format to its encoder/container flags.
func ffmpegArgs(sourcePath string, o Options) []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-i", sourcePath, "-vn"}
	switch o.TargetFormat {
	case FormatMP3:
		args = append(args, "-c:a", "libmp3lame", "-b:a", strconv.Itoa(o.effectiveBitrate())+"k", "-f", "mp3")
	case FormatAAC:
		args = append(args, "-c:a", "aac", "-b:a", strconv.Itoa(o.effectiveBitrate())+"k", "-f", "adts")
	case FormatOpus:
		args = append(args, "-c:a", "libopus", "-b:a", strconv.Itoa(o.effectiveBitrate())+"k", "-f", "opus")
	case FormatFLAC:
		args = append(args, "-c:a", "flac", "-f", "flac")
	}
	return append(args, "pipe:1")
}

// Gateway runs bounded ffmpeg transcodes.
type Gateway struct {
	ffmpegPath string
	sem        *semaphore.Weighted
}

// NewGateway creates a Gateway with the given concurrency ceiling (the
// permit pool of spec §4.3).
func NewGateway(ffmpegPath string, maxConcurrent int64) *Gateway {
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	return &Gateway{ffmpegPath: ffmpegPath, sem: semaphore.NewWeighted(maxConcurrent)}
}

// Stream is a lazy transcoded byte stream. Callers must call Close (via
// io.ReadCloser) to release the ffmpeg process and its permit even if the
// read is abandoned early.
type Stream struct {
	io.ReadCloser
	cmd     *exec.Cmd
	release func()
}

// Close terminates the ffmpeg process if still running, waits for it to
// exit, and releases the concurrency permit.
func (s *Stream) Close() error {
	closeErr := s.ReadCloser.Close()
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	waitErr := s.cmd.Wait()
	s.release()
	if closeErr != nil {
		return closeErr
	}
	if waitErr != nil {
		if _, ok := waitErr.(*exec.ExitError); ok {
			// Killed deliberately on close; not a caller-visible error.
			return nil
		}
		return waitErr
	}
	return nil
}

// Open starts an ffmpeg transcode of sourcePath per opts and returns a
// lazily-read stream of the output bytes. Fails with ServiceBusy when the
// permit pool is exhausted (checked without waiting) and Configuration
// when the ffmpeg binary cannot be found on the host.
func (g *Gateway) Open(ctx context.Context, sourcePath string, opts Options) (*Stream, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	resolvedPath, err := exec.LookPath(g.ffmpegPath)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindConfiguration, "ffmpeg binary not found", err)
	}

	if !g.sem.TryAcquire(1) {
		return nil, apierr.Of(apierr.KindServiceBusy, "transcode concurrency limit reached")
	}
	release := func() { g.sem.Release(1) }

	logger := log.WithComponent("transcode")
	cmd := exec.CommandContext(ctx, resolvedPath, ffmpegArgs(sourcePath, opts)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		release()
		return nil, apierr.Wrap(apierr.KindConfiguration, "failed to open ffmpeg stdout", err)
	}

	if err := cmd.Start(); err != nil {
		release()
		return nil, apierr.Wrap(apierr.KindConfiguration, "failed to start ffmpeg", err)
	}

	logger.Debug().
		Str("format", string(opts.TargetFormat)).
		Int("bitrate_kbps", opts.effectiveBitrate()).
		Msg("transcode started")

	return &Stream{ReadCloser: stdout, cmd: cmd, release: release}, nil
}

// ContentType returns the HTTP Content-Type for a transcode target format.
func ContentType(f Format) string {
	switch f {
	case FormatMP3:
		return "audio/mpeg"
	case FormatAAC:
		return "audio/aac"
	case FormatOpus:
		return "audio/opus"
	case FormatFLAC:
		return "audio/flac"
	default:
		return "application/octet-stream"
	}
}
