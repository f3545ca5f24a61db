package extract

import "github.com/kalambet/vono/internal/openai"

// schemaName identifies the structured output format to the provider.
const schemaName = "voice_item"

func boolPtr(b bool) *bool { return &b }

func nullable(t string) any { return []string{t, "null"} }

// itemSchema describes the item the extraction model must produce.
// Inactive data branches are nullable rather than absent: strict mode
// wants every property listed in required.
func itemSchema() *openai.Schema {
	todoEntry := &openai.Schema{
		Type: "object",
		Properties: map[string]*openai.Schema{
			"task": {Type: "string", Description: "the action to take"},
			"done": {Type: "boolean"},
			"due":  {Type: nullable("string"), Description: "due date as spoken, null when none"},
		},
		Required:             []string{"task", "done", "due"},
		AdditionalProperties: boolPtr(false),
	}

	data := &openai.Schema{
		Type: "object",
		Properties: map[string]*openai.Schema{
			"todos":           {Type: nullable("array"), Items: todoEntry},
			"research_answer": {Type: nullable("string")},
			"draft_content":   {Type: nullable("string")},
		},
		Required:             []string{"todos", "research_answer", "draft_content"},
		AdditionalProperties: boolPtr(false),
	}

	return &openai.Schema{
		Type: "object",
		Properties: map[string]*openai.Schema{
			"title":     {Type: "string", Description: "short descriptive title in the transcript language"},
			"summary":   {Type: "string"},
			"tags":      {Type: "array", Items: &openai.Schema{Type: "string"}},
			"key_facts": {Type: "array", Items: &openai.Schema{Type: "string"}},
			"intent":    {Type: "string", Enum: []string{"TODO", "RESEARCH", "DRAFT", "NOTE"}},
			"data":      data,
		},
		Required:             []string{"title", "summary", "tags", "key_facts", "intent", "data"},
		AdditionalProperties: boolPtr(false),
	}
}
