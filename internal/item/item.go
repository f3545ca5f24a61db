// Package item defines the structured note produced from a recording.
package item

import (
	"fmt"
	"strings"
	"time"

	"github.com/kalambet/vono/internal/apperr"
)

// Intent classifies what the speaker wanted from a recording.
type Intent string

const (
	IntentTodo     Intent = "TODO"
	IntentResearch Intent = "RESEARCH"
	IntentDraft    Intent = "DRAFT"
	IntentNote     Intent = "NOTE"
)

// Valid reports whether the intent is one of the four known values.
func (i Intent) Valid() bool {
	switch i {
	case IntentTodo, IntentResearch, IntentDraft, IntentNote:
		return true
	}
	return false
}

// TodoEntry is one actionable task from a TODO recording.
type TodoEntry struct {
	Task string `json:"task"`
	Done bool   `json:"done"`
	Due  string `json:"due,omitempty"`
}

// ItemData carries the intent-specific branch of an item. Exactly one
// branch may be populated and it must match the item's intent; NOTE
// items carry none.
type ItemData struct {
	Todos          []TodoEntry `json:"todos,omitempty"`
	ResearchAnswer *string     `json:"research_answer,omitempty"`
	DraftContent   *string     `json:"draft_content,omitempty"`
}

// Branches lists the populated branch names.
func (d ItemData) Branches() []string {
	var out []string
	if len(d.Todos) > 0 {
		out = append(out, "todos")
	}
	if d.ResearchAnswer != nil {
		out = append(out, "research_answer")
	}
	if d.DraftContent != nil {
		out = append(out, "draft_content")
	}
	return out
}

func branchFor(intent Intent) string {
	switch intent {
	case IntentTodo:
		return "todos"
	case IntentResearch:
		return "research_answer"
	case IntentDraft:
		return "draft_content"
	default:
		return ""
	}
}

// ValidateFor enforces the exclusivity rule against the given intent.
func (d ItemData) ValidateFor(intent Intent) error {
	branches := d.Branches()
	want := branchFor(intent)
	if want == "" {
		if len(branches) > 0 {
			return apperr.New(apperr.KindSchema,
				fmt.Sprintf("intent %s must carry no data, got %s", intent, strings.Join(branches, ", ")))
		}
		return nil
	}
	if len(branches) != 1 || branches[0] != want {
		got := "none"
		if len(branches) > 0 {
			got = strings.Join(branches, ", ")
		}
		return apperr.New(apperr.KindSchema,
			fmt.Sprintf("intent %s requires exactly the %s branch, got %s", intent, want, got))
	}
	for _, td := range d.Todos {
		if strings.TrimSpace(td.Task) == "" {
			return apperr.New(apperr.KindSchema, "todo entry with empty task")
		}
	}
	return nil
}

// VoiceItem is a fully processed recording.
type VoiceItem struct {
	ID                 string    `json:"id"`
	CreatedAt          time.Time `json:"created_at"`
	OriginalTranscript string    `json:"original_transcript"`
	AudioData          string    `json:"audio_data,omitempty"`
	Language           string    `json:"language"`
	Title              string    `json:"title"`
	Tags               []string  `json:"tags"`
	Summary            string    `json:"summary"`
	KeyFacts           []string  `json:"key_facts"`
	Intent             Intent    `json:"intent"`
	Data               ItemData  `json:"data"`
}

// Validate enforces the structural rules extraction output must meet:
// a known intent, 2 to 5 tags, and a data branch matching the intent.
func (v *VoiceItem) Validate() error {
	if !v.Intent.Valid() {
		return apperr.New(apperr.KindSchema, fmt.Sprintf("unknown intent %q", v.Intent))
	}
	if n := len(v.Tags); n < 2 || n > 5 {
		return apperr.New(apperr.KindSchema, fmt.Sprintf("item has %d tags, want 2 to 5", n))
	}
	return v.Data.ValidateFor(v.Intent)
}
