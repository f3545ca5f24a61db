// Package transcribe is the first pipeline stage: audio in, text out.
package transcribe

import (
	"context"
	"time"

	"github.com/kalambet/vono/internal/apperr"
	"github.com/kalambet/vono/internal/audio"
	"github.com/kalambet/vono/internal/openai"
	"github.com/kalambet/vono/internal/ratelimit"
	"github.com/kalambet/vono/internal/retry"
)

// Transcriber covers the provider call this stage needs.
type Transcriber interface {
	Transcribe(ctx context.Context, apiKey, model string, p *audio.Payload, filename string) (openai.TranscriptionResult, error)
}

// KeyResolver yields the API key for a run.
type KeyResolver interface {
	Resolve() (string, error)
}

// Result is the stage output.
type Result struct {
	Text     string
	Language string
}

// Stage binds the transcription call to its rate limiter, retry policy
// and credential chain.
type Stage struct {
	client  Transcriber
	creds   KeyResolver
	limiter *ratelimit.Limiter
	retrier *retry.Runner
	model   string
}

func NewStage(client Transcriber, creds KeyResolver, limiter *ratelimit.Limiter, retrier *retry.Runner, model string) *Stage {
	return &Stage{
		client:  client,
		creds:   creds,
		limiter: limiter,
		retrier: retrier,
		model:   model,
	}
}

// Admit consumes one rate-limit token or reports how long until one
// frees up. A refusal never reaches the provider.
func (s *Stage) Admit() error {
	if s.limiter.Acquire(1) {
		return nil
	}
	wait := s.limiter.Wait(1)
	e := apperr.Newf(apperr.KindRateLimited,
		"transcription rate limit reached, next slot in %s", wait.Round(time.Millisecond))
	e.Endpoint = s.limiter.Endpoint()
	e.RetryAfter = wait
	return e
}

// Run resolves the API key and transcribes the payload under the retry
// policy.
func (s *Stage) Run(ctx context.Context, p *audio.Payload) (Result, error) {
	key, err := s.creds.Resolve()
	if err != nil {
		return Result{}, err
	}

	filename := audio.FilenameForMIME(p.MIMEType)
	var res openai.TranscriptionResult
	_, err = s.retrier.Run(ctx, func(ctx context.Context) error {
		var callErr error
		res, callErr = s.client.Transcribe(ctx, key, s.model, p, filename)
		return callErr
	})
	if err != nil {
		return Result{}, err
	}
	return Result{Text: res.Text, Language: res.Language}, nil
}
