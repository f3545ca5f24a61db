package audio

import (
	"encoding/binary"
	"errors"
)

// wavHeaderSize is the canonical RIFF/WAVE header length.
const wavHeaderSize = 44

// ProbeWAVDuration reads the duration of a canonical WAV payload from
// its header without decoding samples. Only the plain 44-byte
// RIFF/WAVE/fmt/data layout is understood; anything else is an error
// and the caller should treat the duration as unknown.
func ProbeWAVDuration(b []byte) (float64, error) {
	if len(b) < wavHeaderSize {
		return 0, errors.New("wav: payload shorter than header")
	}
	if string(b[0:4]) != "RIFF" || string(b[8:12]) != "WAVE" {
		return 0, errors.New("wav: missing RIFF/WAVE markers")
	}
	if string(b[12:16]) != "fmt " || string(b[36:40]) != "data" {
		return 0, errors.New("wav: non-canonical chunk layout")
	}

	byteRate := binary.LittleEndian.Uint32(b[28:32])
	dataSize := binary.LittleEndian.Uint32(b[40:44])
	if byteRate == 0 {
		return 0, errors.New("wav: zero byte rate")
	}
	if dataSize == 0 || int64(dataSize) > int64(len(b)-wavHeaderSize) {
		return 0, errors.New("wav: impossible data chunk size")
	}

	return float64(dataSize) / float64(byteRate), nil
}
