// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package httpstream implements the RFC 7233 range parser and RFC 7232
// conditional-request validator used by the streaming endpoint (spec §4.2,
// C2). Grounded on xg2g's api layer error-surface conventions; the parser
// itself has no direct teacher analogue (the teacher proxies whole HLS
// segments) so it is written from the RFC text in the teacher's idiom.
package httpstream

import (
	"strconv"
	"strings"

	"github.com/resonance-audio/resonance/internal/apierr"
)

// ByteRange is an inclusive, already-clamped byte range over a file of
// known size.
type ByteRange struct {
	Start int64
	End   int64
}

// Length returns the number of bytes covered by the range.
func (r ByteRange) Length() int64 {
	return r.End - r.Start + 1
}

// ParseRange parses a single-range `Range` header value (`bytes=START-END`,
// `bytes=START-`, `bytes=-SUFFIX`) against a known file size.
//
// Fails with InvalidRange on: unit != bytes, multiple comma-separated
// ranges, malformed numbers, the empty range `bytes=-`, or start > end
// after clamping. Fails with RangeNotSatisfiable{FileSize} when start >=
// fileSize. The end is always clamped to fileSize-1.
func ParseRange(header string, fileSize int64) (ByteRange, error) {
	const prefix = "bytes="
	if !strings.HasPrefix(header, prefix) {
		return ByteRange{}, apierr.Of(apierr.KindInvalidRange, "range unit must be bytes")
	}
	spec := header[len(prefix):]

	if strings.Contains(spec, ",") {
		return ByteRange{}, apierr.Of(apierr.KindInvalidRange, "multiple ranges are not supported")
	}

	dash := strings.IndexByte(spec, '-')
	if dash < 0 {
		return ByteRange{}, apierr.Of(apierr.KindInvalidRange, "malformed range")
	}
	startStr, endStr := spec[:dash], spec[dash+1:]

	var start, end int64
	switch {
	case startStr == "" && endStr == "":
		return ByteRange{}, apierr.Of(apierr.KindInvalidRange, "empty range")

	case startStr == "":
		// bytes=-SUFFIX: last SUFFIX bytes of the file.
		suffix, err := parseNonNegative(endStr)
		if err != nil {
			return ByteRange{}, apierr.Of(apierr.KindInvalidRange, "malformed suffix length")
		}
		if suffix > fileSize {
			suffix = fileSize
		}
		start = fileSize - suffix
		end = fileSize - 1

	case endStr == "":
		// bytes=START-: from START to end of file.
		s, err := parseNonNegative(startStr)
		if err != nil {
			return ByteRange{}, apierr.Of(apierr.KindInvalidRange, "malformed range start")
		}
		start = s
		end = fileSize - 1

	default:
		s, err1 := parseNonNegative(startStr)
		e, err2 := parseNonNegative(endStr)
		if err1 != nil || err2 != nil {
			return ByteRange{}, apierr.Of(apierr.KindInvalidRange, "malformed range bounds")
		}
		start, end = s, e
	}

	if start >= fileSize {
		return ByteRange{}, &apierr.Error{
			Kind:     apierr.KindRangeNotSatisfiable,
			Message:  "range start beyond end of file",
			FileSize: fileSize,
		}
	}
	if end > fileSize-1 {
		end = fileSize - 1
	}
	if start > end {
		return ByteRange{}, apierr.Of(apierr.KindInvalidRange, "range start exceeds end")
	}

	return ByteRange{Start: start, End: end}, nil
}

func parseNonNegative(s string) (int64, error) {
	if s == "" {
		return 0, apierr.Of(apierr.KindInvalidRange, "empty numeric field")
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, apierr.Of(apierr.KindInvalidRange, "invalid numeric field")
	}
	return n, nil
}
