package toolconv

import (
	"encoding/json"
	"sort"
	"strings"

	"google.golang.org/genai"

	"github.com/haasonsaas/opsassist/internal/agent"
)

// paramSchema is the part of JSON Schema the operation catalog emits.
type paramSchema struct {
	Type        string                 `json:"type"`
	Description string                 `json:"description"`
	Enum        []string               `json:"enum"`
	Properties  map[string]paramSchema `json:"properties"`
	Required    []string               `json:"required"`
	Items       *paramSchema           `json:"items"`
}

func (s paramSchema) toGenai() *genai.Schema {
	out := &genai.Schema{
		Type:        genai.Type(strings.ToUpper(s.Type)),
		Description: s.Description,
		Enum:        s.Enum,
		Required:    s.Required,
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, prop := range s.Properties {
			out.Properties[name] = prop.toGenai()
			out.PropertyOrdering = append(out.PropertyOrdering, name)
		}
		sort.Strings(out.PropertyOrdering)
	}
	if s.Items != nil {
		out.Items = s.Items.toGenai()
	}
	return out
}

// GeminiSchema decodes an operation's JSON Schema into a genai schema.
// Properties are ordered by name so the declaration is stable across calls.
func GeminiSchema(raw json.RawMessage) (*genai.Schema, error) {
	var s paramSchema
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	return s.toGenai(), nil
}

// ToGeminiTools wraps every operation in one function declaration of a single
// Gemini tool. Operations whose schema does not decode are left out.
func ToGeminiTools(tools []agent.Tool) []*genai.Tool {
	var decls []*genai.FunctionDeclaration
	for _, tool := range tools {
		params, err := GeminiSchema(tool.Schema())
		if err != nil {
			continue
		}
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        tool.Name(),
			Description: tool.Description(),
			Parameters:  params,
		})
	}
	if len(decls) == 0 {
		return nil
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}
