// Package recovery persists recordings whose processing failed, so the
// audio itself is never lost. The queue is one encrypted JSON document
// on disk; plaintext queues written by older versions are read once and
// immediately re-encrypted.
package recovery

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ErrNotFound is returned when no recording matches the given ID.
var ErrNotFound = errors.New("not found")

// ErrorType buckets a failure for display.
type ErrorType string

const (
	ErrorTranscription ErrorType = "transcription"
	ErrorProcessing    ErrorType = "processing"
	ErrorNetwork       ErrorType = "network"
	ErrorUnknown       ErrorType = "unknown"
)

// Recording is one failed processing attempt, carrying everything a
// replay needs. AudioData is the base64-encoded original payload; a
// non-empty Transcript means transcription succeeded before the failure
// and can be skipped on replay.
type Recording struct {
	ID           string     `json:"id"`
	CreatedAt    time.Time  `json:"created_at"`
	FailedAt     time.Time  `json:"failed_at"`
	AudioData    string     `json:"audio_data"`
	MIMEType     string     `json:"mime_type"`
	Transcript   string     `json:"transcript,omitempty"`
	Language     string     `json:"language,omitempty"`
	ErrorMessage string     `json:"error_message"`
	ErrorType    ErrorType  `json:"error_type"`
	RetryCount   int        `json:"retry_count"`
	LastRetryAt  *time.Time `json:"last_retry_at,omitempty"`
}

// Cipher seals and opens the queue document.
type Cipher interface {
	Encrypt([]byte) (string, error)
	Decrypt(string) ([]byte, error)
}

// Store is the durable failed-recording queue. The queue is a single
// document, so every mutation is a read-modify-write under the store
// lock.
type Store struct {
	path   string
	cipher Cipher

	mu sync.Mutex
}

// NewStore creates a store writing to path. Parent directories are
// created on first write.
func NewStore(path string, cipher Cipher) *Store {
	return &Store{path: path, cipher: cipher}
}

// List returns every queued recording, newest first.
func (s *Store) List() ([]Recording, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Save inserts the recording or, when the ID already exists, replaces
// it in place. New recordings go to the front of the queue.
func (s *Store) Save(rec Recording) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	recs, err := s.load()
	if err != nil {
		return err
	}
	for i := range recs {
		if recs[i].ID == rec.ID {
			recs[i] = rec
			return s.write(recs)
		}
	}
	return s.write(append([]Recording{rec}, recs...))
}

// Delete removes the recording, reporting whether it was present.
func (s *Store) Delete(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	recs, err := s.load()
	if err != nil {
		return false, err
	}
	for i := range recs {
		if recs[i].ID == id {
			return true, s.write(append(recs[:i], recs[i+1:]...))
		}
	}
	return false, nil
}

// Count returns the queue length.
func (s *Store) Count() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	recs, err := s.load()
	if err != nil {
		return 0, err
	}
	return len(recs), nil
}

// GetByID returns the recording with the given ID, or ErrNotFound.
func (s *Store) GetByID(id string) (Recording, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	recs, err := s.load()
	if err != nil {
		return Recording{}, err
	}
	for _, rec := range recs {
		if rec.ID == id {
			return rec, nil
		}
	}
	return Recording{}, ErrNotFound
}

func (s *Store) load() ([]Recording, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading failed-recording queue: %w", err)
	}

	plain, err := s.cipher.Decrypt(string(data))
	if err != nil {
		// Queues written before encryption shipped are plain JSON.
		// Read them once and re-encrypt on the spot; the migration
		// is one-way.
		var recs []Recording
		if jsonErr := json.Unmarshal(data, &recs); jsonErr != nil {
			return nil, fmt.Errorf("failed-recording queue is neither decryptable nor plain JSON: %w", err)
		}
		slog.Info("re-encrypting plaintext failed-recording queue", "count", len(recs))
		if err := s.write(recs); err != nil {
			return nil, err
		}
		return recs, nil
	}

	var recs []Recording
	if err := json.Unmarshal(plain, &recs); err != nil {
		return nil, fmt.Errorf("decoding failed-recording queue: %w", err)
	}
	return recs, nil
}

func (s *Store) write(recs []Recording) error {
	plain, err := json.Marshal(recs)
	if err != nil {
		return fmt.Errorf("encoding failed-recording queue: %w", err)
	}
	blob, err := s.cipher.Encrypt(plain)
	if err != nil {
		return fmt.Errorf("encrypting failed-recording queue: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("creating queue dir: %w", err)
	}
	return os.WriteFile(s.path, []byte(blob), 0o600)
}
