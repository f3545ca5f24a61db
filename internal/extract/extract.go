// Package extract is the second pipeline stage: transcript in,
// structured item out.
package extract

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/vono/internal/apperr"
	"github.com/kalambet/vono/internal/item"
	"github.com/kalambet/vono/internal/openai"
	"github.com/kalambet/vono/internal/ratelimit"
	"github.com/kalambet/vono/internal/retry"
)

// Chatter covers the provider call this stage needs.
type Chatter interface {
	ChatJSON(ctx context.Context, apiKey, model string, messages []openai.Message, schemaName string, schema *openai.Schema) (string, error)
}

// KeyResolver yields the API key for a run.
type KeyResolver interface {
	Resolve() (string, error)
}

// Stage binds the extraction call to its rate limiter, retry policy and
// credential chain.
type Stage struct {
	client  Chatter
	creds   KeyResolver
	limiter *ratelimit.Limiter
	retrier *retry.Runner
	model   string
}

func NewStage(client Chatter, creds KeyResolver, limiter *ratelimit.Limiter, retrier *retry.Runner, model string) *Stage {
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
		"extraction rate limit reached, next slot in %s", wait.Round(time.Millisecond))
	e.Endpoint = s.limiter.Endpoint()
	e.RetryAfter = wait
	return e
}

// extraction is the wire shape the model fills in.
type extraction struct {
	Title    string        `json:"title"`
	Summary  string        `json:"summary"`
	Tags     []string      `json:"tags"`
	KeyFacts []string      `json:"key_facts"`
	Intent   item.Intent   `json:"intent"`
	Data     item.ItemData `json:"data"`
}

// Run turns a transcript into a validated item. Malformed or
// rule-breaking model output is a schema error, terminal for this run.
func (s *Stage) Run(ctx context.Context, transcript, language string) (item.VoiceItem, error) {
	key, err := s.creds.Resolve()
	if err != nil {
		return item.VoiceItem{}, err
	}

	messages := BuildPrompt(transcript, language)
	var raw string
	_, err = s.retrier.Run(ctx, func(ctx context.Context) error {
		var callErr error
		raw, callErr = s.client.ChatJSON(ctx, key, s.model, messages, schemaName, itemSchema())
		return callErr
	})
	if err != nil {
		return item.VoiceItem{}, err
	}

	var ext extraction
	if err := json.Unmarshal([]byte(stripCodeFences(raw)), &ext); err != nil {
		return item.VoiceItem{}, apperr.Wrap(apperr.KindSchema, err, "model output is not valid JSON")
	}

	v := item.VoiceItem{
		ID:                 uuid.New().String(),
		CreatedAt:          time.Now().UTC(),
		OriginalTranscript: transcript,
		Language:           language,
		Title:              ext.Title,
		Tags:               ext.Tags,
		Summary:            ext.Summary,
		KeyFacts:           ext.KeyFacts,
		Intent:             ext.Intent,
		Data:               ext.Data,
	}
	if err := v.Validate(); err != nil {
		return item.VoiceItem{}, err
	}
	return v, nil
}

// stripCodeFences removes a markdown code fence wrapper, which some
// models add despite instructions.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
