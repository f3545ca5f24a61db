package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kalambet/vono/internal/apperr"
	"github.com/kalambet/vono/internal/audio"
	"github.com/kalambet/vono/internal/crypto"
	"github.com/kalambet/vono/internal/item"
	"github.com/kalambet/vono/internal/recovery"
	"github.com/kalambet/vono/internal/storage"
)

const testToken = "test-token-12345"

// mockRunner is a test double for the pipeline.
type mockRunner struct {
	runFn    func(ctx context.Context, p *audio.Payload) (item.VoiceItem, error)
	replayFn func(ctx context.Context, rec recovery.Recording) (item.VoiceItem, error)
}

func (m *mockRunner) Run(ctx context.Context, p *audio.Payload) (item.VoiceItem, error) {
	if m.runFn == nil {
		return item.VoiceItem{}, nil
	}
	return m.runFn(ctx, p)
}

func (m *mockRunner) Replay(ctx context.Context, rec recovery.Recording) (item.VoiceItem, error) {
	if m.replayFn == nil {
		return item.VoiceItem{}, nil
	}
	return m.replayFn(ctx, rec)
}

func setupAppHandler(t *testing.T, runner Runner) (http.Handler, *storage.Store, *recovery.Store) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	cipher, err := crypto.NewCipher(bytes.Repeat([]byte{7}, 32))
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}
	failures := recovery.NewStore(filepath.Join(t.TempDir(), "failed.json"), cipher)

	handler := NewAppHandler(AppDeps{
		Store:         store,
		Failures:      failures,
		Pipeline:      runner,
		Token:         testToken,
		MaxAudioBytes: 25 * 1024 * 1024,
	})
	return handler, store, failures
}

func authReq(method, url, body, token string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, url, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func processedItem(id string) item.VoiceItem {
	return item.VoiceItem{
		ID:                 id,
		CreatedAt:          time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		OriginalTranscript: "remember to buy milk",
		Language:           "english",
		Title:              "Buy milk",
		Tags:               []string{"errands", "shopping"},
		Summary:            "A reminder to buy milk.",
		KeyFacts:           []string{"milk needed"},
		Intent:             item.IntentTodo,
		Data: item.ItemData{
			Todos: []item.TodoEntry{{Task: "buy milk"}},
		},
	}
}

func queuedRecording(id string) recovery.Recording {
	return recovery.Recording{
		ID:           id,
		CreatedAt:    time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC),
		FailedAt:     time.Date(2026, 3, 1, 11, 0, 5, 0, time.UTC),
		AudioData:    base64.StdEncoding.EncodeToString([]byte("fake audio")),
		MIMEType:     "audio/wav",
		ErrorMessage: "transient: provider unreachable",
		ErrorType:    recovery.ErrorNetwork,
		RetryCount:   1,
	}
}

func decodeErrorBody(t *testing.T, rr *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var resp struct {
		Error errorBody `json:"error"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding error body: %v", err)
	}
	return resp.Error
}

func recordingBody(audioBytes []byte, mimeType string) string {
	return fmt.Sprintf(`{"audio":%q,"mime_type":%q}`,
		base64.StdEncoding.EncodeToString(audioBytes), mimeType)
}

func TestHealth_NoAuth(t *testing.T) {
	h, _, _ := setupAppHandler(t, &mockRunner{})

	rr := httptest.NewRecorder()
	req := authReq(http.MethodGet, "/health", "", "")
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	if !strings.Contains(rr.Body.String(), `"ok"`) {
		t.Errorf("body = %q, want status ok", rr.Body.String())
	}
}

func TestCreateRecording_Success(t *testing.T) {
	runner := &mockRunner{
		runFn: func(_ context.Context, p *audio.Payload) (item.VoiceItem, error) {
			if p.MIMEType != "audio/wav" {
				t.Errorf("payload MIMEType = %q, want audio/wav", p.MIMEType)
			}
			if string(p.Bytes) != "fake audio" {
				t.Errorf("payload bytes = %q, want %q", p.Bytes, "fake audio")
			}
			return processedItem("item-new"), nil
		},
	}
	h, store, _ := setupAppHandler(t, runner)

	rr := httptest.NewRecorder()
	req := authReq(http.MethodPost, "/recordings", recordingBody([]byte("fake audio"), "audio/wav"), testToken)
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body = %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	var got item.VoiceItem
	if err := json.NewDecoder(rr.Body).Decode(&got); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if got.ID != "item-new" {
		t.Errorf("ID = %q, want %q", got.ID, "item-new")
	}
	if got.Title != "Buy milk" {
		t.Errorf("Title = %q, want %q", got.Title, "Buy milk")
	}

	if _, err := store.GetItem("item-new"); err != nil {
		t.Errorf("item was not persisted: %v", err)
	}
}

func TestCreateRecording_NoAuth(t *testing.T) {
	h, _, _ := setupAppHandler(t, &mockRunner{})

	rr := httptest.NewRecorder()
	req := authReq(http.MethodPost, "/recordings", recordingBody([]byte("x"), "audio/wav"), "")
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestCreateRecording_BadRequests(t *testing.T) {
	h, _, _ := setupAppHandler(t, &mockRunner{})

	cases := []struct {
		name string
		body string
	}{
		{"not json", "{{{"},
		{"missing audio", `{"mime_type":"audio/wav"}`},
		{"missing mime type", fmt.Sprintf(`{"audio":%q}`, base64.StdEncoding.EncodeToString([]byte("x")))},
		{"invalid base64", `{"audio":"not base64!!!","mime_type":"audio/wav"}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			req := authReq(http.MethodPost, "/recordings", tc.body, testToken)
			h.ServeHTTP(rr, req)

			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want %d; body = %s", rr.Code, http.StatusBadRequest, rr.Body.String())
			}
			if got := decodeErrorBody(t, rr); got.Code != "validation" {
				t.Errorf("code = %q, want %q", got.Code, "validation")
			}
		})
	}
}

func TestCreateRecording_ErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"validation", apperr.New(apperr.KindValidation, "unsupported audio format"), http.StatusBadRequest, "validation"},
		{"credential missing", apperr.New(apperr.KindCredentialMissing, "no API key configured"), http.StatusUnauthorized, "credential_missing"},
		{"credential invalid", apperr.New(apperr.KindCredentialInvalid, "API key rejected"), http.StatusUnauthorized, "credential_invalid"},
		{"transient", apperr.New(apperr.KindTransient, "provider unreachable"), http.StatusBadGateway, "transient"},
		{"schema", apperr.New(apperr.KindSchema, "model output is not valid JSON"), http.StatusBadGateway, "schema_validation"},
		{"unknown", fmt.Errorf("boom"), http.StatusInternalServerError, "unknown"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			runner := &mockRunner{
				runFn: func(_ context.Context, _ *audio.Payload) (item.VoiceItem, error) {
					return item.VoiceItem{}, tc.err
				},
			}
			h, _, _ := setupAppHandler(t, runner)

			rr := httptest.NewRecorder()
			req := authReq(http.MethodPost, "/recordings", recordingBody([]byte("x"), "audio/wav"), testToken)
			h.ServeHTTP(rr, req)

			if rr.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d; body = %s", rr.Code, tc.wantStatus, rr.Body.String())
			}
			if got := decodeErrorBody(t, rr); got.Code != tc.wantCode {
				t.Errorf("code = %q, want %q", got.Code, tc.wantCode)
			}
		})
	}
}

func TestCreateRecording_RateLimited(t *testing.T) {
	rateErr := apperr.New(apperr.KindRateLimited, "transcription rate limit reached, next slot in 7s")
	rateErr.Endpoint = "transcription"
	rateErr.RetryAfter = 7 * time.Second

	runner := &mockRunner{
		runFn: func(_ context.Context, _ *audio.Payload) (item.VoiceItem, error) {
			return item.VoiceItem{}, rateErr
		},
	}
	h, _, _ := setupAppHandler(t, runner)

	rr := httptest.NewRecorder()
	req := authReq(http.MethodPost, "/recordings", recordingBody([]byte("x"), "audio/wav"), testToken)
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusTooManyRequests)
	}
	if got := rr.Header().Get("Retry-After"); got != "7" {
		t.Errorf("Retry-After = %q, want %q", got, "7")
	}

	got := decodeErrorBody(t, rr)
	if got.Code != "rate_limited" {
		t.Errorf("code = %q, want %q", got.Code, "rate_limited")
	}
	if got.RetryAfterMS != 7000 {
		t.Errorf("retry_after_ms = %d, want 7000", got.RetryAfterMS)
	}
}

func TestCreateRecording_FailureExposesQueueID(t *testing.T) {
	failErr := apperr.New(apperr.KindTransient, "provider unreachable").
		WithDetail("failed_recording_id", "rec-42")

	runner := &mockRunner{
		runFn: func(_ context.Context, _ *audio.Payload) (item.VoiceItem, error) {
			return item.VoiceItem{}, failErr
		},
	}
	h, _, _ := setupAppHandler(t, runner)

	rr := httptest.NewRecorder()
	req := authReq(http.MethodPost, "/recordings", recordingBody([]byte("x"), "audio/wav"), testToken)
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadGateway)
	}

	got := decodeErrorBody(t, rr)
	if got.Details["failed_recording_id"] != "rec-42" {
		t.Errorf("details = %v, want failed_recording_id rec-42", got.Details)
	}
}

func TestListItems_Empty(t *testing.T) {
	h, _, _ := setupAppHandler(t, &mockRunner{})

	rr := httptest.NewRecorder()
	req := authReq(http.MethodGet, "/items", "", testToken)
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	if body := strings.TrimSpace(rr.Body.String()); body != "[]" {
		t.Errorf("body = %q, want %q", body, "[]")
	}
}

func TestListItems_LimitAndSearch(t *testing.T) {
	h, store, _ := setupAppHandler(t, &mockRunner{})

	for i := 0; i < 3; i++ {
		v := processedItem(fmt.Sprintf("item-%d", i))
		v.CreatedAt = v.CreatedAt.Add(time.Duration(i) * time.Hour)
		if i == 2 {
			v.Title = "Quarterly budget"
		}
		if err := store.SaveItem(v); err != nil {
			t.Fatalf("SaveItem %d: %v", i, err)
		}
	}

	rr := httptest.NewRecorder()
	req := authReq(http.MethodGet, "/items?limit=2", "", testToken)
	h.ServeHTTP(rr, req)

	var items []item.VoiceItem
	json.NewDecoder(rr.Body).Decode(&items)
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}
	if items[0].ID != "item-2" {
		t.Errorf("first item = %q, want item-2 (newest)", items[0].ID)
	}

	rr = httptest.NewRecorder()
	req = authReq(http.MethodGet, "/items?q=budget", "", testToken)
	h.ServeHTTP(rr, req)

	items = nil
	json.NewDecoder(rr.Body).Decode(&items)
	if len(items) != 1 || items[0].ID != "item-2" {
		t.Fatalf("search returned %v, want [item-2]", items)
	}
}

func TestGetItem(t *testing.T) {
	h, store, _ := setupAppHandler(t, &mockRunner{})

	if err := store.SaveItem(processedItem("item-get")); err != nil {
		t.Fatalf("SaveItem: %v", err)
	}

	rr := httptest.NewRecorder()
	req := authReq(http.MethodGet, "/items/item-get", "", testToken)
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body = %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	var got item.VoiceItem
	json.NewDecoder(rr.Body).Decode(&got)
	if got.ID != "item-get" {
		t.Errorf("ID = %q, want %q", got.ID, "item-get")
	}
	if got.OriginalTranscript != "remember to buy milk" {
		t.Errorf("OriginalTranscript = %q", got.OriginalTranscript)
	}
}

func TestGetItem_NotFound(t *testing.T) {
	h, _, _ := setupAppHandler(t, &mockRunner{})

	rr := httptest.NewRecorder()
	req := authReq(http.MethodGet, "/items/nonexistent", "", testToken)
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusNotFound)
	}
	if got := decodeErrorBody(t, rr); got.Code != "not_found" {
		t.Errorf("code = %q, want %q", got.Code, "not_found")
	}
}

func TestDeleteItem(t *testing.T) {
	h, store, _ := setupAppHandler(t, &mockRunner{})

	if err := store.SaveItem(processedItem("item-del")); err != nil {
		t.Fatalf("SaveItem: %v", err)
	}

	rr := httptest.NewRecorder()
	req := authReq(http.MethodDelete, "/items/item-del", "", testToken)
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}

	rr = httptest.NewRecorder()
	req = authReq(http.MethodDelete, "/items/item-del", "", testToken)
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("second delete status = %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestListFailed_OmitsAudio(t *testing.T) {
	h, _, failures := setupAppHandler(t, &mockRunner{})

	rec := queuedRecording("rec-1")
	rec.Transcript = "partial transcript"
	if err := failures.Save(rec); err != nil {
		t.Fatalf("Save: %v", err)
	}

	rr := httptest.NewRecorder()
	req := authReq(http.MethodGet, "/failed", "", testToken)
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}

	raw := rr.Body.String()
	if strings.Contains(raw, "audio_data") {
		t.Error("listing contains audio_data")
	}

	var got []FailedSummary
	if err := json.Unmarshal([]byte(raw), &got); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d entries, want 1", len(got))
	}
	if got[0].ID != "rec-1" {
		t.Errorf("ID = %q, want rec-1", got[0].ID)
	}
	if !got[0].HasTranscript {
		t.Error("HasTranscript = false, want true")
	}
	if got[0].ErrorType != recovery.ErrorNetwork {
		t.Errorf("ErrorType = %q, want %q", got[0].ErrorType, recovery.ErrorNetwork)
	}
}

func TestCountFailed(t *testing.T) {
	h, _, failures := setupAppHandler(t, &mockRunner{})

	for i := 0; i < 2; i++ {
		if err := failures.Save(queuedRecording(fmt.Sprintf("rec-%d", i))); err != nil {
			t.Fatalf("Save %d: %v", i, err)
		}
	}

	rr := httptest.NewRecorder()
	req := authReq(http.MethodGet, "/failed/count", "", testToken)
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}

	var resp map[string]int
	json.NewDecoder(rr.Body).Decode(&resp)
	if resp["count"] != 2 {
		t.Errorf("count = %d, want 2", resp["count"])
	}
}

func TestGetFailed_IncludesAudio(t *testing.T) {
	h, _, failures := setupAppHandler(t, &mockRunner{})

	if err := failures.Save(queuedRecording("rec-full")); err != nil {
		t.Fatalf("Save: %v", err)
	}

	rr := httptest.NewRecorder()
	req := authReq(http.MethodGet, "/failed/rec-full", "", testToken)
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}

	var got recovery.Recording
	json.NewDecoder(rr.Body).Decode(&got)
	if got.AudioData == "" {
		t.Error("AudioData is empty, want full payload")
	}
}

func TestDeleteFailed_NotFound(t *testing.T) {
	h, _, _ := setupAppHandler(t, &mockRunner{})

	rr := httptest.NewRecorder()
	req := authReq(http.MethodDelete, "/failed/nonexistent", "", testToken)
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestRetryFailed_Success(t *testing.T) {
	runner := &mockRunner{
		replayFn: func(_ context.Context, rec recovery.Recording) (item.VoiceItem, error) {
			return processedItem("item-from-" + rec.ID), nil
		},
	}
	h, store, failures := setupAppHandler(t, runner)

	if err := failures.Save(queuedRecording("rec-ok")); err != nil {
		t.Fatalf("Save: %v", err)
	}

	rr := httptest.NewRecorder()
	req := authReq(http.MethodPost, "/failed/rec-ok/retry", "", testToken)
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body = %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	if _, err := store.GetItem("item-from-rec-ok"); err != nil {
		t.Errorf("item was not persisted: %v", err)
	}

	n, err := failures.Count()
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 0 {
		t.Errorf("queue length = %d, want 0", n)
	}
}

func TestRetryFailed_NotFound(t *testing.T) {
	h, _, _ := setupAppHandler(t, &mockRunner{})

	rr := httptest.NewRecorder()
	req := authReq(http.MethodPost, "/failed/nonexistent/retry", "", testToken)
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestRetryFailed_FailureKeepsEntry(t *testing.T) {
	runner := &mockRunner{
		replayFn: func(_ context.Context, _ recovery.Recording) (item.VoiceItem, error) {
			return item.VoiceItem{}, apperr.New(apperr.KindTransient, "provider unreachable")
		},
	}
	h, _, failures := setupAppHandler(t, runner)

	if err := failures.Save(queuedRecording("rec-stuck")); err != nil {
		t.Fatalf("Save: %v", err)
	}

	rr := httptest.NewRecorder()
	req := authReq(http.MethodPost, "/failed/rec-stuck/retry", "", testToken)
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadGateway)
	}

	n, err := failures.Count()
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Errorf("queue length = %d, want 1", n)
	}
}

func TestRetryAllFailed_AllSucceed(t *testing.T) {
	runner := &mockRunner{
		replayFn: func(_ context.Context, rec recovery.Recording) (item.VoiceItem, error) {
			return processedItem("item-from-" + rec.ID), nil
		},
	}
	h, store, failures := setupAppHandler(t, runner)

	for i := 0; i < 3; i++ {
		if err := failures.Save(queuedRecording(fmt.Sprintf("rec-%d", i))); err != nil {
			t.Fatalf("Save %d: %v", i, err)
		}
	}

	rr := httptest.NewRecorder()
	req := authReq(http.MethodPost, "/failed/retry", "", testToken)
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body = %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	var got RetrySummary
	json.NewDecoder(rr.Body).Decode(&got)
	if got.Succeeded != 3 || got.Failed != 0 || got.Skipped != 0 {
		t.Errorf("summary = %+v, want 3/0/0", got)
	}

	n, _ := failures.Count()
	if n != 0 {
		t.Errorf("queue length = %d, want 0", n)
	}
	total, _ := store.CountItems()
	if total != 3 {
		t.Errorf("items saved = %d, want 3", total)
	}
}

func TestRetryAllFailed_RateLimitStopsSweep(t *testing.T) {
	rateErr := apperr.New(apperr.KindRateLimited, "transcription rate limit reached, next slot in 30s")
	rateErr.RetryAfter = 30 * time.Second

	runner := &mockRunner{
		replayFn: func(_ context.Context, _ recovery.Recording) (item.VoiceItem, error) {
			return item.VoiceItem{}, rateErr
		},
	}
	h, _, failures := setupAppHandler(t, runner)

	for i := 0; i < 3; i++ {
		if err := failures.Save(queuedRecording(fmt.Sprintf("rec-%d", i))); err != nil {
			t.Fatalf("Save %d: %v", i, err)
		}
	}

	rr := httptest.NewRecorder()
	req := authReq(http.MethodPost, "/failed/retry", "", testToken)
	h.ServeHTTP(rr, req)

	var got RetrySummary
	json.NewDecoder(rr.Body).Decode(&got)
	if got.Succeeded != 0 || got.Failed != 0 {
		t.Errorf("summary = %+v, want no successes or failures", got)
	}
	if got.Skipped != 3 {
		t.Errorf("skipped = %d, want 3", got.Skipped)
	}
	if got.RetryAfterMS != 30000 {
		t.Errorf("retry_after_ms = %d, want 30000", got.RetryAfterMS)
	}

	n, _ := failures.Count()
	if n != 3 {
		t.Errorf("queue length = %d, want 3 (nothing removed)", n)
	}
}

func TestRetryAllFailed_MixedOutcomes(t *testing.T) {
	runner := &mockRunner{
		replayFn: func(_ context.Context, rec recovery.Recording) (item.VoiceItem, error) {
			if rec.ID == "rec-bad" {
				return item.VoiceItem{}, apperr.New(apperr.KindTransient, "provider unreachable")
			}
			return processedItem("item-from-" + rec.ID), nil
		},
	}
	h, _, failures := setupAppHandler(t, runner)

	for _, id := range []string{"rec-a", "rec-bad", "rec-b"} {
		if err := failures.Save(queuedRecording(id)); err != nil {
			t.Fatalf("Save %s: %v", id, err)
		}
	}

	rr := httptest.NewRecorder()
	req := authReq(http.MethodPost, "/failed/retry", "", testToken)
	h.ServeHTTP(rr, req)

	var got RetrySummary
	json.NewDecoder(rr.Body).Decode(&got)
	if got.Succeeded != 2 {
		t.Errorf("succeeded = %d, want 2", got.Succeeded)
	}
	if got.Failed != 1 {
		t.Errorf("failed = %d, want 1", got.Failed)
	}

	n, _ := failures.Count()
	if n != 1 {
		t.Errorf("queue length = %d, want 1", n)
	}
	if _, err := failures.GetByID("rec-bad"); err != nil {
		t.Errorf("rec-bad should remain queued: %v", err)
	}
}
