// Package audio carries recorded payloads and validates them before any
// provider call is attempted.
package audio

import (
	"encoding/base64"
	"strings"
)

// Payload is one recording handed to the pipeline. DurationSeconds is
// zero when the caller could not measure it.
type Payload struct {
	Bytes           []byte
	MIMEType        string
	DurationSeconds float64
}

// DataURI renders the payload as a data: URI for embedding in items.
func DataURI(p *Payload) string {
	return "data:" + p.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(p.Bytes)
}

// extensions maps supported MIME types to upload filename extensions.
var extensions = map[string]string{
	"audio/wav":   "wav",
	"audio/x-wav": "wav",
	"audio/webm":  "webm",
	"audio/ogg":   "ogg",
	"audio/mpeg":  "mp3",
	"audio/mp4":   "m4a",
	"audio/flac":  "flac",
}

// FilenameForMIME returns a synthetic filename for multipart uploads,
// since transcription endpoints sniff the format from the extension.
func FilenameForMIME(mimeType string) string {
	if ext, ok := extensions[mimeType]; ok {
		return "audio." + ext
	}
	return "audio.bin"
}

// MIMEForExtension maps a file extension (with or without the leading
// dot) to its MIME type, or "" when the format is not supported.
func MIMEForExtension(ext string) string {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "wav":
		return "audio/wav"
	case "webm":
		return "audio/webm"
	case "ogg", "oga":
		return "audio/ogg"
	case "mp3":
		return "audio/mpeg"
	case "m4a", "mp4":
		return "audio/mp4"
	case "flac":
		return "audio/flac"
	default:
		return ""
	}
}
