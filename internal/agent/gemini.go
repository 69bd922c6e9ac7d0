package agent

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/pysugar/gmail-agent-nexus/internal/upstream/geminikey"
)

// GeminiModel adapts the AI Studio generateContent API to Model.
type GeminiModel struct {
	provider *geminikey.Provider
}

// NewGeminiModel wraps provider.
func NewGeminiModel(provider *geminikey.Provider) *GeminiModel {
	return &GeminiModel{provider: provider}
}

// Generate implements Model.
func (m *GeminiModel) Generate(ctx context.Context, system string, history []Message, tools []Tool) (Message, error) {
	resp, err := m.provider.GenerateContent(ctx, toGeminiRequest(system, history, tools))
	if err != nil {
		return Message{}, err
	}
	if len(resp.Candidates) == 0 {
		return Message{}, errors.New("gemini returned no candidates")
	}
	return fromGeminiContent(resp.Candidates[0].Content), nil
}

func toGeminiRequest(system string, history []Message, tools []Tool) *geminikey.GenerateContentRequest {
	req := &geminikey.GenerateContentRequest{}
	if system != "" {
		req.SystemInstruction = &geminikey.Content{Parts: []geminikey.Part{{Text: system}}}
	}

	for _, msg := range history {
		switch msg.Role {
		case RoleUser:
			req.Contents = append(req.Contents, geminikey.Content{
				Role:  "user",
				Parts: []geminikey.Part{{Text: msg.Text}},
			})
		case RoleModel:
			var parts []geminikey.Part
			if msg.Text != "" {
				parts = append(parts, geminikey.Part{Text: msg.Text})
			}
			for _, call := range msg.ToolCalls {
				args := call.Args
				if len(args) == 0 {
					args = json.RawMessage(`{}`)
				}
				parts = append(parts, geminikey.Part{FunctionCall: &geminikey.FunctionCall{Name: call.Name, Args: args}})
			}
			req.Contents = append(req.Contents, geminikey.Content{Role: "model", Parts: parts})
		case RoleTool:
			parts := make([]geminikey.Part, 0, len(msg.ToolResults))
			for _, r := range msg.ToolResults {
				body := map[string]any{"result": r.Output}
				if r.Error != "" {
					body = map[string]any{"error": r.Error}
				}
				parts = append(parts, geminikey.Part{FunctionResponse: &geminikey.FunctionResponse{Name: r.Name, Response: body}})
			}
			req.Contents = append(req.Contents, geminikey.Content{Role: "user", Parts: parts})
		}
	}

	if len(tools) > 0 {
		decls := make([]geminikey.FunctionDeclaration, 0, len(tools))
		for _, t := range tools {
			decls = append(decls, geminikey.FunctionDeclaration{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			})
		}
		req.Tools = []geminikey.Tool{{FunctionDeclarations: decls}}
	}
	return req
}

func fromGeminiContent(c geminikey.Content) Message {
	msg := Message{Role: RoleModel}
	var text []string
	for _, p := range c.Parts {
		if p.FunctionCall != nil {
			msg.ToolCalls = append(msg.ToolCalls, ToolCall{Name: p.FunctionCall.Name, Args: p.FunctionCall.Args})
			continue
		}
		if p.Text != "" {
			text = append(text, p.Text)
		}
	}
	msg.Text = strings.Join(text, "")
	return msg
}
