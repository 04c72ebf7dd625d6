package clip

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/google/uuid"
)

const (
	audioCodec   = "aac"
	audioBitrate = "192k"

	maxCallIDRunes = 128
)

// SliceArgs seeks the remote recording to the window start and writes the
// window's audio, re-encoded, to audioPath. The transcoder fetches the URL
// itself.
func SliceArgs(req Request, audioPath string) []string {
	return []string{
		"-y",
		"-ss", formatSeconds(req.StartSeconds),
		"-i", req.RecordingURL,
		"-t", formatSeconds(req.Duration()),
		"-vn",
		"-c:a", audioCodec, "-b:a", audioBitrate,
		audioPath,
	}
}

// ComposeArgs loops the still image as the video stream, muxes it with the
// sliced audio and stops at the shorter input.
func ComposeArgs(imagePath, audioPath, outputPath string) []string {
	return []string{
		"-y",
		"-loop", "1", "-i", imagePath,
		"-i", audioPath,
		"-c:v", "libx264", "-tune", "stillimage", "-pix_fmt", "yuv420p",
		"-c:a", audioCodec, "-b:a", audioBitrate,
		"-shortest",
		outputPath,
	}
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', -1, 64)
}

// StorageKey builds {callId}_{exchangeIndex}_{8 hex}.mp4. The random suffix
// keeps repeated requests for the same exchange from overwriting each other.
func StorageKey(callID string, exchangeIndex int) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s_%d_%s.mp4", sanitizeKeyPart(callID), exchangeIndex, suffix)
}

// sanitizeKeyPart keeps letters, digits and -_. so a caller-supplied id can
// never introduce path separators or URL syntax into an object key.
func sanitizeKeyPart(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsControl(r) {
			continue
		}
		if isAllowedKeyRune(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}

	cleaned := strings.Trim(b.String(), ".")
	runes := []rune(cleaned)
	if len(runes) > maxCallIDRunes {
		cleaned = string(runes[:maxCallIDRunes])
	}
	if cleaned == "" {
		return "call"
	}
	return cleaned
}

func isAllowedKeyRune(r rune) bool {
	if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
		return true
	}
	switch r {
	case '-', '_', '.':
		return true
	default:
		return false
	}
}
