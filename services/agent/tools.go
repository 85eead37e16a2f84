package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/upb/textbook-rag/internal/rag"
	"github.com/upb/textbook-rag/services/providers"
)

// Tool names exposed to the model.
const (
	SearchToolName = "search_book_content"
	FormatToolName = "format_context_for_answer"
)

// Tool is a function the model may call during a run.
type Tool interface {
	Definition() providers.ToolDefinition
	Call(ctx context.Context, args json.RawMessage) (string, error)
}

// Toolset is an ordered, name-indexed collection of tools.
type Toolset struct {
	order []string
	tools map[string]Tool
}

// NewToolset registers tools in the given order. Names must be unique.
func NewToolset(tools ...Tool) (*Toolset, error) {
	ts := &Toolset{
		order: make([]string, 0, len(tools)),
		tools: make(map[string]Tool, len(tools)),
	}
	for _, tool := range tools {
		name := tool.Definition().Name
		if name == "" {
			return nil, fmt.Errorf("tool has no name")
		}
		if _, exists := ts.tools[name]; exists {
			return nil, fmt.Errorf("tool %s registered twice", name)
		}
		ts.order = append(ts.order, name)
		ts.tools[name] = tool
	}
	return ts, nil
}

// Definitions returns the tool schemas in registration order.
func (ts *Toolset) Definitions() []providers.ToolDefinition {
	defs := make([]providers.ToolDefinition, 0, len(ts.order))
	for _, name := range ts.order {
		defs = append(defs, ts.tools[name].Definition())
	}
	return defs
}

// Lookup finds a tool by name.
func (ts *Toolset) Lookup(name string) (Tool, bool) {
	tool, ok := ts.tools[name]
	return tool, ok
}

// Len returns the number of registered tools.
func (ts *Toolset) Len() int {
	return len(ts.order)
}

// ContentSearcher is satisfied by *rag.Retriever.
type ContentSearcher interface {
	Search(ctx context.Context, query string, topK int) []rag.ContentRecord
}

// SearchTool exposes textbook retrieval to the model.
type SearchTool struct {
	searcher ContentSearcher
}

// NewSearchTool creates the search_book_content tool.
func NewSearchTool(searcher ContentSearcher) *SearchTool {
	return &SearchTool{searcher: searcher}
}

type searchArgs struct {
	Query string `json:"query"`
	TopK  *int   `json:"top_k,omitempty"`
}

// Definition implements Tool.
func (t *SearchTool) Definition() providers.ToolDefinition {
	return providers.ToolDefinition{
		Name:        SearchToolName,
		Description: "Search the Physical AI textbook for relevant content based on a query.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"query": {"type": "string", "description": "Natural-language search query."},
				"top_k": {"type": "integer", "description": "Maximum number of passages to return.", "default": 5}
			},
			"required": ["query"]
		}`),
	}
}

// Call runs a retrieval and returns the matching records as a JSON array.
func (t *SearchTool) Call(ctx context.Context, args json.RawMessage) (string, error) {
	var in searchArgs
	if err := decodeArgs(args, &in); err != nil {
		return "", err
	}

	topK := rag.DefaultTopK
	if in.TopK != nil {
		topK = *in.TopK
	}

	records := t.searcher.Search(ctx, in.Query, topK)
	if records == nil {
		records = []rag.ContentRecord{}
	}

	out, err := json.Marshal(records)
	if err != nil {
		return "", fmt.Errorf("encode results: %w", err)
	}
	return string(out), nil
}

// FormatTool renders retrieved records as a citation block.
type FormatTool struct{}

// NewFormatTool creates the format_context_for_answer tool.
func NewFormatTool() *FormatTool {
	return &FormatTool{}
}

type formatArgs struct {
	Results []rag.ContentRecord `json:"results"`
}

// Definition implements Tool.
func (t *FormatTool) Definition() providers.ToolDefinition {
	return providers.ToolDefinition{
		Name:        FormatToolName,
		Description: "Format the retrieved book content into a readable string with citations.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"results": {
					"type": "array",
					"description": "Records returned by search_book_content.",
					"items": {
						"type": "object",
						"properties": {
							"text": {"type": "string"},
							"title": {"type": "string"},
							"heading": {"type": "string"},
							"slug": {"type": "string"},
							"score": {"type": "number"}
						}
					}
				}
			},
			"required": ["results"]
		}`),
	}
}

// Call implements Tool.
func (t *FormatTool) Call(_ context.Context, args json.RawMessage) (string, error) {
	var in formatArgs
	if err := decodeArgs(args, &in); err != nil {
		return "", err
	}
	return rag.Format(in.Results), nil
}

func decodeArgs(args json.RawMessage, v any) error {
	if len(args) == 0 {
		return nil
	}
	if err := json.Unmarshal(args, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}
