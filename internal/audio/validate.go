package audio

import (
	"fmt"
	"log/slog"

	"github.com/kalambet/vono/internal/apperr"
)

// Limits bounds what Validate accepts. Zero duration bounds disable the
// duration check entirely.
type Limits struct {
	MaxSizeBytes       int64
	AllowedMIMETypes   []string
	MinDurationSeconds float64
	MaxDurationSeconds float64
}

// DefaultLimits mirrors what hosted transcription endpoints accept:
// 25 MiB and the common compressed and PCM container types.
func DefaultLimits() Limits {
	return Limits{
		MaxSizeBytes: 25 * 1024 * 1024,
		AllowedMIMETypes: []string{
			"audio/wav",
			"audio/x-wav",
			"audio/webm",
			"audio/ogg",
			"audio/mpeg",
			"audio/mp4",
			"audio/flac",
		},
	}
}

// Details describes an accepted payload.
type Details struct {
	SizeBytes       int64   `json:"size_bytes"`
	MIMEType        string  `json:"mime_type"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
}

// Validate checks the payload against the limits, cheapest check first,
// and stops at the first violation. All violations are terminal: the
// same bytes will never pass on a retry.
func Validate(p *Payload, limits Limits) (Details, error) {
	if p == nil || len(p.Bytes) == 0 {
		return Details{}, apperr.New(apperr.KindValidation, "audio payload is empty")
	}

	if !mimeAllowed(p.MIMEType, limits.AllowedMIMETypes) {
		return Details{}, apperr.New(apperr.KindValidation,
			fmt.Sprintf("unsupported audio type %q", p.MIMEType)).
			WithDetail("mime_type", p.MIMEType)
	}

	size := int64(len(p.Bytes))
	if limits.MaxSizeBytes > 0 && size > limits.MaxSizeBytes {
		return Details{}, apperr.New(apperr.KindValidation,
			fmt.Sprintf("audio is %d bytes, above the %d byte limit", size, limits.MaxSizeBytes)).
			WithDetail("size_bytes", size).
			WithDetail("max_bytes", limits.MaxSizeBytes)
	}

	duration := p.DurationSeconds
	if limits.MinDurationSeconds > 0 || limits.MaxDurationSeconds > 0 {
		if duration == 0 && isWAV(p.MIMEType) {
			if d, err := ProbeWAVDuration(p.Bytes); err == nil {
				duration = d
			}
		}
		switch {
		case duration == 0:
			// Duration bounds are configured but the payload format
			// does not let us measure; let the provider be the judge.
			slog.Debug("audio duration unknown, skipping bounds check", "mime_type", p.MIMEType)
		case limits.MinDurationSeconds > 0 && duration < limits.MinDurationSeconds:
			return Details{}, apperr.New(apperr.KindValidation,
				fmt.Sprintf("audio is %.2fs long, below the %.2fs minimum", duration, limits.MinDurationSeconds)).
				WithDetail("duration_seconds", duration).
				WithDetail("min_duration_seconds", limits.MinDurationSeconds)
		case limits.MaxDurationSeconds > 0 && duration > limits.MaxDurationSeconds:
			return Details{}, apperr.New(apperr.KindValidation,
				fmt.Sprintf("audio is %.2fs long, above the %.2fs maximum", duration, limits.MaxDurationSeconds)).
				WithDetail("duration_seconds", duration).
				WithDetail("max_duration_seconds", limits.MaxDurationSeconds)
		}
	}

	return Details{
		SizeBytes:       size,
		MIMEType:        p.MIMEType,
		DurationSeconds: duration,
	}, nil
}

func mimeAllowed(mimeType string, allowed []string) bool {
	for _, m := range allowed {
		if m == mimeType {
			return true
		}
	}
	return false
}

func isWAV(mimeType string) bool {
	return mimeType == "audio/wav" || mimeType == "audio/x-wav"
}
