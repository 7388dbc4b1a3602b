package gemini

import (
	"encoding/json"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/germanamz/silk/pkg/modeladapter"
	"github.com/germanamz/silk/pkg/tools/toolbox"
)

func TestSchemaFromJSON(t *testing.T) {
	raw := json.RawMessage(`{
		"$schema": "http://json-schema.org/draft-07/schema#",
		"type": "object",
		"additionalProperties": false,
		"properties": {
			"reason": {"type": "string", "description": "why"},
			"tags": {"type": "array", "items": {"type": "string", "enum": ["a", "b"]}},
			"count": {"type": "integer"}
		},
		"required": ["reason"]
	}`)

	s, err := schemaFromJSON(raw)
	require.NoError(t, err)

	assert.Equal(t, genai.TypeObject, s.Type)
	assert.Equal(t, []string{"reason"}, s.Required)
	require.Contains(t, s.Properties, "reason")
	assert.Equal(t, genai.TypeString, s.Properties["reason"].Type)
	assert.Equal(t, "why", s.Properties["reason"].Description)
	assert.Equal(t, genai.TypeInteger, s.Properties["count"].Type)
	require.NotNil(t, s.Properties["tags"].Items)
	assert.Equal(t, []string{"a", "b"}, s.Properties["tags"].Items.Enum)
}

func TestSchemaFromJSON_Invalid(t *testing.T) {
	_, err := schemaFromJSON(json.RawMessage(`{"properties":{"x":[]}}`))
	assert.ErrorContains(t, err, "property x")
}

func TestFunctionTool(t *testing.T) {
	tool, err := functionTool([]toolbox.Tool{{Name: "getAllProjectFiles", Description: "zip"}})
	require.NoError(t, err)

	require.Len(t, tool.FunctionDeclarations, 1)
	assert.Equal(t, "getAllProjectFiles", tool.FunctionDeclarations[0].Name)
	assert.Equal(t, genai.TypeObject, tool.FunctionDeclarations[0].Parameters.Type)
}

func TestToolConfig(t *testing.T) {
	auto := toolConfig(modeladapter.Auto())
	assert.Equal(t, genai.FunctionCallingAuto, auto.FunctionCallingConfig.Mode)

	forced := toolConfig(modeladapter.Force("getAllProjectFiles"))
	assert.Equal(t, genai.FunctionCallingAny, forced.FunctionCallingConfig.Mode)
	assert.Equal(t, []string{"getAllProjectFiles"}, forced.FunctionCallingConfig.AllowedFunctionNames)

	none := toolConfig(modeladapter.None())
	assert.Equal(t, genai.FunctionCallingNone, none.FunctionCallingConfig.Mode)
}

func TestChunksOf(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{
				genai.Text("Hello"),
				genai.FunctionCall{Name: "getAllProjectFiles", Args: map[string]any{"reason": "dl"}},
			}},
		}},
	}

	chunks := chunksOf(resp)
	require.Len(t, chunks, 2)
	assert.Equal(t, "Hello", chunks[0].Text)

	require.NotNil(t, chunks[1].Tool)
	assert.Equal(t, "getAllProjectFiles", chunks[1].Tool.Name)
	assert.Contains(t, chunks[1].Tool.ID, "call_getAllProjectFiles_")
	assert.JSONEq(t, `{"reason":"dl"}`, chunks[1].Tool.Arguments)
}

func TestChunksOf_Empty(t *testing.T) {
	assert.Nil(t, chunksOf(nil))
	assert.Nil(t, chunksOf(&genai.GenerateContentResponse{}))
	assert.Nil(t, chunksOf(&genai.GenerateContentResponse{Candidates: []*genai.Candidate{{}}}))
}
