// Package pipeline drives a recording through validation, transcription
// and extraction, and guarantees that failed audio lands in the
// recovery queue instead of vanishing.
package pipeline

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/vono/internal/apperr"
	"github.com/kalambet/vono/internal/audio"
	"github.com/kalambet/vono/internal/item"
	"github.com/kalambet/vono/internal/recovery"
	"github.com/kalambet/vono/internal/sanitize"
	"github.com/kalambet/vono/internal/transcribe"
)

// State is the observable phase of the most recent run.
type State string

const (
	StateIdle                  State = "idle"
	StateValidating            State = "validating"
	StateRateGateTranscription State = "rate_gate_transcription"
	StateTranscribing          State = "transcribing"
	StateRateGateExtraction    State = "rate_gate_extraction"
	StateExtracting            State = "extracting"
	StateSucceeded             State = "succeeded"
	StateFailed                State = "failed"
)

// TranscriptionStage admits and runs the transcription phase.
type TranscriptionStage interface {
	Admit() error
	Run(ctx context.Context, p *audio.Payload) (transcribe.Result, error)
}

// ExtractionStage admits and runs the extraction phase.
type ExtractionStage interface {
	Admit() error
	Run(ctx context.Context, transcript, language string) (item.VoiceItem, error)
}

// FailureStore persists recordings that could not be processed.
type FailureStore interface {
	Save(rec recovery.Recording) error
}

// Clock supplies failure timestamps.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Orchestrator owns the run state machine. It assumes at most one run
// in flight; State exists for observability and is safe for concurrent
// readers.
type Orchestrator struct {
	limits      audio.Limits
	transcriber TranscriptionStage
	extractor   ExtractionStage
	failures    FailureStore
	clock       Clock

	mu    sync.Mutex
	state State
}

func New(limits audio.Limits, t TranscriptionStage, e ExtractionStage, failures FailureStore) *Orchestrator {
	return NewWithClock(limits, t, e, failures, realClock{})
}

// NewWithClock creates an Orchestrator with an injectable time source.
func NewWithClock(limits audio.Limits, t TranscriptionStage, e ExtractionStage, failures FailureStore, clock Clock) *Orchestrator {
	return &Orchestrator{
		limits:      limits,
		transcriber: t,
		extractor:   e,
		failures:    failures,
		clock:       clock,
		state:       StateIdle,
	}
}

// State returns the phase of the most recent run.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

// Run processes one new recording end to end.
func (o *Orchestrator) Run(ctx context.Context, p *audio.Payload) (item.VoiceItem, error) {
	return o.run(ctx, p, nil, "", "")
}

// Replay reprocesses a queued failed recording. When a transcript was
// saved with the recording, transcription is skipped entirely. On
// another failure the queue entry is updated in place, accumulating its
// retry count; a success leaves deletion of the entry to the caller.
func (o *Orchestrator) Replay(ctx context.Context, rec recovery.Recording) (item.VoiceItem, error) {
	raw, err := base64.StdEncoding.DecodeString(rec.AudioData)
	if err != nil {
		wrapped := apperr.Wrap(apperr.KindValidation, err, "stored audio is not valid base64")
		return item.VoiceItem{}, o.fail(&rec, nil, StateValidating, rec.Transcript, rec.Language, wrapped)
	}
	p := &audio.Payload{Bytes: raw, MIMEType: rec.MIMEType}
	return o.run(ctx, p, &rec, rec.Transcript, rec.Language)
}

// run is the state machine shared by Run and Replay. A non-empty
// transcript means transcription already happened; the walk starts at
// the extraction gate.
func (o *Orchestrator) run(ctx context.Context, p *audio.Payload, existing *recovery.Recording, transcript, language string) (item.VoiceItem, error) {
	if transcript == "" {
		o.setState(StateValidating)
		if _, err := audio.Validate(p, o.limits); err != nil {
			return item.VoiceItem{}, o.fail(existing, p, StateValidating, "", "", err)
		}

		o.setState(StateRateGateTranscription)
		if err := o.transcriber.Admit(); err != nil {
			// Gate refusals are ephemeral: nothing was spent and
			// nothing was lost, the caller just tries again later.
			o.setState(StateFailed)
			return item.VoiceItem{}, err
		}

		o.setState(StateTranscribing)
		res, err := o.transcriber.Run(ctx, p)
		if err != nil {
			return item.VoiceItem{}, o.fail(existing, p, StateTranscribing, "", "", err)
		}
		transcript, language = res.Text, res.Language
	}

	o.setState(StateRateGateExtraction)
	if err := o.extractor.Admit(); err != nil {
		o.setState(StateFailed)
		return item.VoiceItem{}, err
	}

	o.setState(StateExtracting)
	v, err := o.extractor.Run(ctx, transcript, language)
	if err != nil {
		return item.VoiceItem{}, o.fail(existing, p, StateExtracting, transcript, language, err)
	}

	o.setState(StateSucceeded)
	if p != nil {
		v.AudioData = audio.DataURI(p)
	}
	return v, nil
}

// fail records the failure in the recovery queue, updating the existing
// entry on a replay, and annotates the error with the queue ID so
// callers can point the user at it.
func (o *Orchestrator) fail(existing *recovery.Recording, p *audio.Payload, state State, transcript, language string, err error) error {
	o.setState(StateFailed)

	now := o.clock.Now().UTC()
	attempts := apperr.AttemptsOf(err)
	if attempts < 1 {
		attempts = 1
	}

	var rec recovery.Recording
	if existing != nil {
		rec = *existing
		rec.FailedAt = now
		rec.RetryCount += attempts
		rec.LastRetryAt = &now
	} else {
		if p == nil {
			return err
		}
		rec = recovery.Recording{
			ID:         uuid.New().String(),
			CreatedAt:  now,
			FailedAt:   now,
			AudioData:  base64.StdEncoding.EncodeToString(p.Bytes),
			MIMEType:   p.MIMEType,
			RetryCount: attempts,
		}
	}
	if transcript != "" {
		rec.Transcript = transcript
		rec.Language = language
	}
	rec.ErrorMessage = sanitize.Error(err)
	rec.ErrorType = classify(state, err)

	if saveErr := o.failures.Save(rec); saveErr != nil {
		slog.Error("persisting failed recording", "id", rec.ID, "error", saveErr)
		return err
	}

	var ae *apperr.Error
	if errors.As(err, &ae) {
		ae.WithDetail("failed_recording_id", rec.ID)
	}
	return err
}

// classify buckets a failure by its kind first, then by the phase it
// happened in.
func classify(state State, err error) recovery.ErrorType {
	if apperr.KindOf(err) == apperr.KindTransient {
		return recovery.ErrorNetwork
	}
	switch state {
	case StateTranscribing:
		return recovery.ErrorTranscription
	case StateExtracting:
		return recovery.ErrorProcessing
	default:
		return recovery.ErrorUnknown
	}
}
