// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package sandbox resolves caller-supplied file references against a
// library root and guarantees the result lies under that root, rejecting
// traversal without leaking existence information. Grounded on
// xg2g/internal/fsutil/confinement.go, generalized from recording-path
// confinement to library-track confinement (spec §4.1, C1).
package sandbox

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/resonance-audio/resonance/internal/apierr"
)

// Resolve canonicalizes relRef against root and guarantees the result lies
// under root. Rules, in order, per spec §4.1:
//  1. relative refs with a parent-traversal component fail Forbidden (not NotFound).
//  2. relative refs join onto root; absolute refs are taken as given.
//  3. both sides are canonicalized (symlinks resolved); an uncanonicalizable
//     target fails AudioFileNotFound.
//  4. the canonical target must have the canonical root as a prefix, else Forbidden.
func Resolve(root, ref string) (string, error) {
	if strings.Contains(ref, "\x00") {
		return "", apierr.Of(apierr.KindForbidden, "invalid path reference")
	}

	var candidate string
	if filepath.IsAbs(ref) {
		candidate = filepath.Clean(ref)
	} else {
		for _, part := range strings.Split(filepath.ToSlash(ref), "/") {
			if part == ".." {
				return "", apierr.Of(apierr.KindForbidden, "path traversal rejected")
			}
		}
		candidate = filepath.Join(root, filepath.Clean(ref))
	}

	realRoot, err := canonicalize(root)
	if err != nil {
		return "", apierr.Wrap(apierr.KindConfiguration, "library root unresolvable", err)
	}

	realTarget, err := canonicalizeTarget(candidate)
	if err != nil {
		return "", apierr.Wrap(apierr.KindAudioFileNotFound, "audio file not found", err)
	}

	rel, err := filepath.Rel(realRoot, realTarget)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", apierr.Of(apierr.KindForbidden, "path escapes library root")
	}

	return realTarget, nil
}

func canonicalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", err
	}
	return real, nil
}

// canonicalizeTarget resolves symlinks for a path that must already exist
// (an audio file being streamed always exists by the time it's sandboxed).
func canonicalizeTarget(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	if _, err := os.Lstat(abs); err != nil {
		return "", err
	}
	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", err
	}
	return real, nil
}
