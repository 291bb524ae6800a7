package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Gobusters/ectologger"
	"google.golang.org/genai"

	"github.com/Ramsey-B/sage/pkg/tracing"
)

// GeminiClient implements Client on the Gemini API.
type GeminiClient struct {
	client *genai.Client
	model  string
	logger ectologger.Logger
}

// GeminiConfig holds Gemini client configuration
type GeminiConfig struct {
	APIKey string
	Model  string
}

// NewGeminiClient creates a Gemini-backed completion client.
func NewGeminiClient(ctx context.Context, cfg GeminiConfig, logger ectologger.Logger) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is not configured")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      cfg.APIKey,
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &GeminiClient{
		client: client,
		model:  cfg.Model,
		logger: logger,
	}, nil
}

// Complete sends one completion request and maps the response onto the
// Completion contract. Only the first function call is honored.
func (c *GeminiClient) Complete(ctx context.Context, req Request) (Completion, error) {
	ctx, span := tracing.StartSpan(ctx, "llm.GeminiClient.Complete")
	defer span.End()

	config := &genai.GenerateContentConfig{}
	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if len(req.Tools) > 0 {
		config.Tools = []*genai.Tool{{FunctionDeclarations: toFunctionDeclarations(req.Tools)}}
	}

	contents := genai.Text(req.Prompt)

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		c.logger.WithContext(ctx).WithError(err).WithField("model", c.model).Error("Completion request failed")
		return Completion{}, fmt.Errorf("generate content: %w", err)
	}

	completion := Completion{Text: resp.Text()}

	calls := resp.FunctionCalls()
	if len(calls) > 0 {
		args, err := json.Marshal(calls[0].Args)
		if err != nil {
			return Completion{}, fmt.Errorf("marshal tool call args: %w", err)
		}
		completion.ToolCall = &ToolCall{
			Name: calls[0].Name,
			Args: args,
		}
	}

	return completion, nil
}

func toFunctionDeclarations(tools []ToolDefinition) []*genai.FunctionDeclaration {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, tool := range tools {
		properties := make(map[string]*genai.Schema, len(tool.Params))
		var required []string
		for _, param := range tool.Params {
			properties[param.Name] = &genai.Schema{
				Type:        genai.TypeString,
				Description: param.Description,
			}
			if param.Required {
				required = append(required, param.Name)
			}
		}
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters: &genai.Schema{
				Type:       genai.TypeObject,
				Properties: properties,
				Required:   required,
			},
		})
	}
	return decls
}
