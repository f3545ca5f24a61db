package item

import (
	"testing"

	"github.com/kalambet/vono/internal/apperr"
)

func strptr(s string) *string { return &s }

func validItem() VoiceItem {
	return VoiceItem{
		ID:                 "8b5a7c9e-0000-0000-0000-000000000000",
		OriginalTranscript: "buy milk and call the vet",
		Language:           "en",
		Title:              "Errands",
		Tags:               []string{"errands", "home"},
		Summary:            "Two quick errands.",
		KeyFacts:           []string{"vet appointment needed"},
		Intent:             IntentTodo,
		Data: ItemData{
			Todos: []TodoEntry{{Task: "buy milk"}, {Task: "call the vet"}},
		},
	}
}

func TestIntentValid(t *testing.T) {
	for _, in := range []Intent{IntentTodo, IntentResearch, IntentDraft, IntentNote} {
		if !in.Valid() {
			t.Errorf("%s.Valid() = false, want true", in)
		}
	}
	for _, in := range []Intent{"", "todo", "REMINDER"} {
		if in.Valid() {
			t.Errorf("%q.Valid() = true, want false", in)
		}
	}
}

func TestValidateAcceptsWellFormedItem(t *testing.T) {
	v := validItem()
	if err := v.Validate(); err != nil {
		t.Errorf("Validate returned error: %v", err)
	}
}

func TestValidateTagCount(t *testing.T) {
	v := validItem()
	v.Tags = []string{"only"}
	if err := v.Validate(); err == nil {
		t.Error("Validate accepted a single tag")
	}

	v.Tags = []string{"a", "b", "c", "d", "e", "f"}
	if err := v.Validate(); err == nil {
		t.Error("Validate accepted six tags")
	}
}

func TestValidateUnknownIntent(t *testing.T) {
	v := validItem()
	v.Intent = "SHOPPING"
	err := v.Validate()
	if err == nil {
		t.Fatal("Validate accepted an unknown intent")
	}
	if kind := apperr.KindOf(err); kind != apperr.KindSchema {
		t.Errorf("KindOf = %v, want KindSchema", kind)
	}
}

func TestValidateForExclusivity(t *testing.T) {
	cases := []struct {
		name   string
		intent Intent
		data   ItemData
		ok     bool
	}{
		{"todo with todos", IntentTodo, ItemData{Todos: []TodoEntry{{Task: "x"}}}, true},
		{"todo without todos", IntentTodo, ItemData{}, false},
		{"todo with research answer", IntentTodo, ItemData{Todos: []TodoEntry{{Task: "x"}}, ResearchAnswer: strptr("a")}, false},
		{"research with answer", IntentResearch, ItemData{ResearchAnswer: strptr("the answer")}, true},
		{"research with draft", IntentResearch, ItemData{DraftContent: strptr("text")}, false},
		{"draft with content", IntentDraft, ItemData{DraftContent: strptr("dear team")}, true},
		{"note empty", IntentNote, ItemData{}, true},
		{"note with todos", IntentNote, ItemData{Todos: []TodoEntry{{Task: "x"}}}, false},
		{"todo with blank task", IntentTodo, ItemData{Todos: []TodoEntry{{Task: "  "}}}, false},
	}
	for _, tc := range cases {
		err := tc.data.ValidateFor(tc.intent)
		if tc.ok && err != nil {
			t.Errorf("%s: ValidateFor returned error: %v", tc.name, err)
		}
		if !tc.ok && err == nil {
			t.Errorf("%s: ValidateFor returned nil, want error", tc.name)
		}
	}
}

func TestBranches(t *testing.T) {
	d := ItemData{Todos: []TodoEntry{{Task: "x"}}, DraftContent: strptr("y")}
	got := d.Branches()
	if len(got) != 2 || got[0] != "todos" || got[1] != "draft_content" {
		t.Errorf("Branches = %v, want [todos draft_content]", got)
	}
	if n := len(ItemData{}.Branches()); n != 0 {
		t.Errorf("empty Branches length = %d, want 0", n)
	}
}
