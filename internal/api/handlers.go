package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/vono/internal/apperr"
	"github.com/kalambet/vono/internal/audio"
	"github.com/kalambet/vono/internal/item"
	"github.com/kalambet/vono/internal/recovery"
	"github.com/kalambet/vono/internal/sanitize"
	"github.com/kalambet/vono/internal/storage"
)

// retrySweepWorkers bounds concurrent replays during a queue sweep.
const retrySweepWorkers = 2

// Runner drives recordings through the processing pipeline.
type Runner interface {
	Run(ctx context.Context, p *audio.Payload) (item.VoiceItem, error)
	Replay(ctx context.Context, rec recovery.Recording) (item.VoiceItem, error)
}

// RecordingRequest is the POST /recordings body. Audio is the raw bytes
// base64-encoded; DurationSeconds is optional and used only when the
// duration cannot be probed from the audio itself.
type RecordingRequest struct {
	Audio           string  `json:"audio"`
	MIMEType        string  `json:"mime_type"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
}

// FailedSummary is a queue entry without its audio payload.
type FailedSummary struct {
	ID            string             `json:"id"`
	CreatedAt     time.Time          `json:"created_at"`
	FailedAt      time.Time          `json:"failed_at"`
	MIMEType      string             `json:"mime_type"`
	ErrorMessage  string             `json:"error_message"`
	ErrorType     recovery.ErrorType `json:"error_type"`
	RetryCount    int                `json:"retry_count"`
	LastRetryAt   *time.Time         `json:"last_retry_at,omitempty"`
	HasTranscript bool               `json:"has_transcript"`
}

// RetrySummary reports the outcome of a queue sweep.
type RetrySummary struct {
	Succeeded    int   `json:"succeeded"`
	Failed       int   `json:"failed"`
	Skipped      int   `json:"skipped"`
	RetryAfterMS int64 `json:"retry_after_ms,omitempty"`
}

type AppDeps struct {
	Store         *storage.Store
	Failures      *recovery.Store
	Pipeline      Runner
	Token         string
	MaxAudioBytes int64
}

func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/recordings", handleCreateRecording(deps))

		r.Get("/items", handleListItems(deps))
		r.Get("/items/{id}", handleGetItem(deps))
		r.Delete("/items/{id}", handleDeleteItem(deps))

		r.Get("/failed", handleListFailed(deps))
		r.Get("/failed/count", handleCountFailed(deps))
		r.Get("/failed/{id}", handleGetFailed(deps))
		r.Delete("/failed/{id}", handleDeleteFailed(deps))
		r.Post("/failed/retry", handleRetryAllFailed(deps))
		r.Post("/failed/{id}/retry", handleRetryFailed(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handleCreateRecording(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Base64 inflates the audio by a third; leave headroom for the
		// JSON envelope around it.
		maxBody := deps.MaxAudioBytes*4/3 + 64*1024
		r.Body = http.MaxBytesReader(w, r.Body, maxBody)
		defer r.Body.Close()

		var req RecordingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "validation", "invalid request body: %v", err)
			return
		}
		if req.Audio == "" {
			httpError(w, http.StatusBadRequest, "validation", "audio is required")
			return
		}
		if req.MIMEType == "" {
			httpError(w, http.StatusBadRequest, "validation", "mime_type is required")
			return
		}

		raw, err := base64.StdEncoding.DecodeString(req.Audio)
		if err != nil {
			httpError(w, http.StatusBadRequest, "validation", "audio is not valid base64")
			return
		}

		payload := &audio.Payload{
			Bytes:           raw,
			MIMEType:        req.MIMEType,
			DurationSeconds: req.DurationSeconds,
		}
		v, err := deps.Pipeline.Run(r.Context(), payload)
		if err != nil {
			writeAppError(w, err)
			return
		}

		if err := deps.Store.SaveItem(v); err != nil {
			httpError(w, http.StatusInternalServerError, "internal", "failed to save item: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(v)
	}
}

func handleListItems(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)
		offset := parseIntParam(r, "offset", 0, 0)

		var (
			items []item.VoiceItem
			err   error
		)
		if q := r.URL.Query().Get("q"); q != "" {
			items, err = deps.Store.SearchItems(q, limit)
		} else {
			items, err = deps.Store.ListItems(limit, offset)
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "internal", "failed to list items: %v", err)
			return
		}

		if items == nil {
			items = []item.VoiceItem{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(items)
	}
}

func handleGetItem(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		v, err := deps.Store.GetItem(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "item not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "internal", "failed to get item: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(v)
	}
}

func handleDeleteItem(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		deleted, err := deps.Store.DeleteItem(id)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "internal", "failed to delete item: %v", err)
			return
		}
		if !deleted {
			httpError(w, http.StatusNotFound, "not_found", "item not found")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "deleted"})
	}
}

func handleListFailed(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		recs, err := deps.Failures.List()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "internal", "failed to read queue: %v", err)
			return
		}

		summaries := make([]FailedSummary, len(recs))
		for i, rec := range recs {
			summaries[i] = summarizeFailed(rec)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(summaries)
	}
}

func handleCountFailed(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := deps.Failures.Count()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "internal", "failed to read queue: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]int{"count": n})
	}
}

func handleGetFailed(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		rec, err := deps.Failures.GetByID(id)
		if errors.Is(err, recovery.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "failed recording not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "internal", "failed to read queue: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(rec)
	}
}

func handleDeleteFailed(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		deleted, err := deps.Failures.Delete(id)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "internal", "failed to delete from queue: %v", err)
			return
		}
		if !deleted {
			httpError(w, http.StatusNotFound, "not_found", "failed recording not found")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "deleted"})
	}
}

func handleRetryFailed(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		rec, err := deps.Failures.GetByID(id)
		if errors.Is(err, recovery.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "failed recording not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "internal", "failed to read queue: %v", err)
			return
		}

		v, err := deps.Pipeline.Replay(r.Context(), rec)
		if err != nil {
			// The pipeline already updated the queue entry.
			writeAppError(w, err)
			return
		}

		if err := deps.Store.SaveItem(v); err != nil {
			httpError(w, http.StatusInternalServerError, "internal", "failed to save item: %v", err)
			return
		}
		if _, err := deps.Failures.Delete(id); err != nil {
			slog.Error("removing replayed recording from queue", "id", id, "error", err)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(v)
	}
}

func handleRetryAllFailed(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		recs, err := deps.Failures.List()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "internal", "failed to read queue: %v", err)
			return
		}

		var (
			mu          sync.Mutex
			summary     RetrySummary
			rateLimited bool
		)

		var g errgroup.Group
		g.SetLimit(retrySweepWorkers)
		for _, rec := range recs {
			g.Go(func() error {
				mu.Lock()
				stop := rateLimited
				if stop {
					summary.Skipped++
				}
				mu.Unlock()
				if stop {
					return nil
				}

				v, err := deps.Pipeline.Replay(r.Context(), rec)
				if err != nil {
					mu.Lock()
					defer mu.Unlock()
					if apperr.KindOf(err) == apperr.KindRateLimited {
						// Once the gate refuses, the rest of the queue
						// can only be refused too.
						rateLimited = true
						summary.Skipped++
						if ms := apperr.RetryAfterOf(err).Milliseconds(); ms > summary.RetryAfterMS {
							summary.RetryAfterMS = ms
						}
					} else {
						summary.Failed++
					}
					return nil
				}

				if err := deps.Store.SaveItem(v); err != nil {
					slog.Error("saving replayed item", "id", v.ID, "error", err)
					mu.Lock()
					summary.Failed++
					mu.Unlock()
					return nil
				}
				if _, err := deps.Failures.Delete(rec.ID); err != nil {
					slog.Error("removing replayed recording from queue", "id", rec.ID, "error", err)
				}
				mu.Lock()
				summary.Succeeded++
				mu.Unlock()
				return nil
			})
		}
		// Outcomes are recorded in summary; the closures never error.
		_ = g.Wait()

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(summary)
	}
}

func summarizeFailed(rec recovery.Recording) FailedSummary {
	return FailedSummary{
		ID:            rec.ID,
		CreatedAt:     rec.CreatedAt,
		FailedAt:      rec.FailedAt,
		MIMEType:      rec.MIMEType,
		ErrorMessage:  rec.ErrorMessage,
		ErrorType:     rec.ErrorType,
		RetryCount:    rec.RetryCount,
		LastRetryAt:   rec.LastRetryAt,
		HasTranscript: rec.Transcript != "",
	}
}

type errorBody struct {
	Code         string         `json:"code"`
	Message      string         `json:"message"`
	Details      map[string]any `json:"details,omitempty"`
	RetryAfterMS int64          `json:"retry_after_ms,omitempty"`
}

// writeAppError maps a classified error onto an HTTP status and a
// sanitized JSON body. Rate-limited errors also get a Retry-After header.
func writeAppError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)

	status := http.StatusInternalServerError
	switch kind {
	case apperr.KindValidation:
		status = http.StatusBadRequest
	case apperr.KindCredentialMissing, apperr.KindCredentialInvalid:
		status = http.StatusUnauthorized
	case apperr.KindRateLimited:
		status = http.StatusTooManyRequests
	case apperr.KindTransient, apperr.KindSchema:
		status = http.StatusBadGateway
	}

	body := errorBody{
		Code:    kind.String(),
		Message: sanitize.Error(err),
	}

	var ae *apperr.Error
	if errors.As(err, &ae) {
		body.Details = ae.Details
		if ae.RetryAfter > 0 {
			body.RetryAfterMS = ae.RetryAfter.Milliseconds()
			secs := (ae.RetryAfter + time.Second - 1) / time.Second
			w.Header().Set("Retry-After", strconv.FormatInt(int64(secs), 10))
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]errorBody{"error": body})
}

func httpError(w http.ResponseWriter, status int, code string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]errorBody{
		"error": {Code: code, Message: fmt.Sprintf(format, args...)},
	})
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
