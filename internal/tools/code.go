package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"CodeChat/internal/provider"
)

// Built-in tool names.
const (
	CodeReview       = "code-review-tool"
	CodeOptimization = "code-optimization-tool"
	CodeExplanation  = "code-explanation-tool"
)

// The built-in tools do no analysis themselves. They give the model a
// structured frame that it fills in its reply.
type codeTool struct {
	spec  provider.ToolSpec
	frame func(code, language string, input map[string]any) map[string]any
	now   func() time.Time
}

// Builtin returns the three code tools.
func Builtin() []Tool {
	return []Tool{
		&codeTool{
			spec: provider.ToolSpec{
				Name:        CodeReview,
				Description: "Analyze code and produce a detailed review: detected issues, best-practice advice and improvement suggestions.",
				InputSchema: schema(map[string]any{
					"code":     stringProp("Code to review"),
					"language": stringProp("Programming language, e.g. javascript, python, typescript"),
					"context":  stringProp("Context the code runs in"),
				}),
			},
			frame: func(code, language string, input map[string]any) map[string]any {
				return map[string]any{
					"code":     code,
					"language": language,
					"context":  str(input, "context", ""),
					"analysis": map[string]any{
						"summary":       "code review complete",
						"issues":        []string{},
						"suggestions":   []string{},
						"bestPractices": []string{},
						"security":      []string{},
						"performance":   []string{},
						"codeQuality":   0,
					},
				}
			},
		},
		&codeTool{
			spec: provider.ToolSpec{
				Name:        CodeOptimization,
				Description: "Optimize code performance and structure and suggest refactorings.",
				InputSchema: schema(map[string]any{
					"code":     stringProp("Code to optimize"),
					"language": stringProp("Programming language"),
					"optimizationType": enumProp("Kind of optimization",
						"performance", "readability", "security", "all"),
				}),
			},
			frame: func(code, language string, input map[string]any) map[string]any {
				return map[string]any{
					"originalCode":     code,
					"optimizedCode":    "",
					"language":         language,
					"optimizationType": str(input, "optimizationType", "all"),
					"improvements":     []string{},
					"explanation":      "",
				}
			},
		},
		&codeTool{
			spec: provider.ToolSpec{
				Name:        CodeExplanation,
				Description: "Explain what code does and how, producing detailed documentation.",
				InputSchema: schema(map[string]any{
					"code":     stringProp("Code to explain"),
					"language": stringProp("Programming language"),
					"detailLevel": enumProp("How detailed the explanation should be",
						"basic", "detailed", "expert"),
				}),
			},
			frame: func(code, language string, input map[string]any) map[string]any {
				return map[string]any{
					"code":                  code,
					"language":              language,
					"detailLevel":           str(input, "detailLevel", "detailed"),
					"explanation":           "",
					"functionalDescription": "",
					"codeFlow":              []string{},
					"dependencies":          []string{},
				}
			},
		},
	}
}

func (t *codeTool) Spec() provider.ToolSpec { return t.spec }

func (t *codeTool) Call(_ context.Context, input map[string]any) (string, error) {
	code, ok := input["code"].(string)
	if !ok || code == "" {
		return "", fmt.Errorf("%s: code is required", t.spec.Name)
	}

	now := time.Now
	if t.now != nil {
		now = t.now
	}

	out := t.frame(code, str(input, "language", "unknown"), input)
	out["timestamp"] = now().UTC().Format(time.RFC3339)

	b, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("%s: failed to encode result: %w", t.spec.Name, err)
	}
	return string(b), nil
}

func str(input map[string]any, key, def string) string {
	if s, ok := input[key].(string); ok && s != "" {
		return s
	}
	return def
}

func schema(props map[string]any) map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   []string{"code"},
	}
}

func stringProp(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

func enumProp(desc string, values ...string) map[string]any {
	return map[string]any{"type": "string", "description": desc, "enum": values}
}
