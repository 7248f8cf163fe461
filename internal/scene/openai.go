package scene

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"github.com/rs/zerolog/log"

	"github.com/quillworks/cento/internal/quote"
)

// getQuoteTool is the retrieval surface exposed to the model. Parameter
// names mirror the Query json tags so arguments decode directly.
var getQuoteTool = openai.ChatCompletionToolParam{
	Function: shared.FunctionDefinitionParam{
		Name:        "get_quote",
		Description: openai.String("Search the Shakespeare fragment corpus for quotes matching a semantic query and optional filters."),
		Parameters: shared.FunctionParameters{
			"type": "object",
			"properties": map[string]any{
				"semantic_query": map[string]any{
					"type":        "string",
					"description": "What the quote should express, in plain language.",
				},
				"character_type": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "Acceptable speaker classes, e.g. royalty, nobility, commoner, comic_relief.",
				},
				"emotional_tone": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "Acceptable emotional tones, e.g. melancholic, joyful, angry, fearful.",
				},
				"themes": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "Acceptable themes, e.g. love, death, power, betrayal, fate.",
				},
				"context_type": map[string]any{
					"type": "string",
					"enum": []string{"soliloquy", "dialogue", "aside", "monologue"},
				},
				"chunk_type": map[string]any{
					"type": "string",
					"enum": []string{"full_line", "phrase", "fragment"},
				},
				"formality_level": map[string]any{
					"type": "string",
					"enum": []string{"high", "medium", "low"},
				},
				"max_results": map[string]any{
					"type":        "integer",
					"description": "How many candidates to return. Defaults to 5.",
				},
			},
			"required": []string{"semantic_query"},
		},
	},
}

// OpenAIOracle drives planning and quote selection through OpenAI chat
// completions with tool calling. It keeps one conversation per speech so the
// model sees its own earlier searches and verdicts.
type OpenAIOracle struct {
	client openai.Client
	model  string

	spec Spec
	plan *Plan

	// per-speech conversation state
	speechIndex   int
	messages      []openai.ChatCompletionMessageParamUnion
	pendingToolID string
}

// NewOpenAIOracle creates an oracle backed by the given chat model. The API
// key is taken from the environment.
func NewOpenAIOracle(model string) (*OpenAIOracle, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, quote.ErrMissingAPIKey
	}
	if model == "" {
		return nil, fmt.Errorf("%w: missing chat model name", ErrOracleFailed)
	}
	return &OpenAIOracle{
		client:      openai.NewClient(option.WithAPIKey(apiKey)),
		model:       model,
		speechIndex: -1,
	}, nil
}

// PlanScene asks the model for the scene outline as strict JSON.
func (o *OpenAIOracle) PlanScene(ctx context.Context, spec Spec) (*Plan, error) {
	completion, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: shared.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(planPrompt(spec)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOracleFailed, err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("%w: no plan generated", ErrOracleFailed)
	}

	var plan Plan
	raw := stripFences(completion.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(raw), &plan); err != nil {
		return nil, fmt.Errorf("%w: unparseable plan: %v", ErrPlanningFailed, err)
	}

	o.spec = spec
	o.plan = &plan
	return &plan, nil
}

// NextQuery asks the model for the next get_quote call, or nil when it
// declares the speech done.
func (o *OpenAIOracle) NextQuery(ctx context.Context, sc *SpeechContext) (*quote.Query, error) {
	if o.plan == nil {
		return nil, fmt.Errorf("%w: NextQuery called before PlanScene", ErrOracleFailed)
	}

	if sc.Index != o.speechIndex {
		o.speechIndex = sc.Index
		o.messages = []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(speechBrief(o.spec, o.plan, sc)),
		}
	} else {
		o.messages = append(o.messages,
			openai.UserMessage("Search again with get_quote, or reply DONE if the speech is complete."))
	}

	completion, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(o.model),
		Messages: o.messages,
		Tools:    []openai.ChatCompletionToolParam{getQuoteTool},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOracleFailed, err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("%w: no response generated", ErrOracleFailed)
	}

	msg := completion.Choices[0].Message
	o.messages = append(o.messages, msg.ToParam())

	if len(msg.ToolCalls) == 0 {
		if strings.Contains(strings.ToUpper(msg.Content), "DONE") {
			return nil, nil
		}
		log.Debug().Str("content", msg.Content).Msg("oracle replied without a tool call, treating speech as done")
		return nil, nil
	}

	call := msg.ToolCalls[0]
	if call.Function.Name != "get_quote" {
		return nil, fmt.Errorf("%w: unexpected tool %q", ErrOracleFailed, call.Function.Name)
	}
	o.pendingToolID = call.ID

	var q quote.Query
	if err := json.Unmarshal([]byte(call.Function.Arguments), &q); err != nil {
		return nil, fmt.Errorf("%w: unparseable tool arguments: %v", ErrOracleFailed, err)
	}
	return &q, nil
}

// toolResult is one retrieval hit as shown to the model.
type toolResult struct {
	ID        string  `json:"id"`
	Text      string  `json:"text"`
	Character string  `json:"character"`
	Play      string  `json:"play"`
	Delivery  string  `json:"delivery"`
	Score     float32 `json:"score"`
}

// verdictResponse is the JSON shape the model replies with after reviewing
// results.
type verdictResponse struct {
	AcceptIDs []string `json:"accept_ids"`
	Continue  bool     `json:"continue"`
}

// Judge feeds retrieval results back as the tool response and parses the
// model's accept/continue verdict.
func (o *OpenAIOracle) Judge(ctx context.Context, sc *SpeechContext, results []quote.Scored) (*Verdict, error) {
	if o.pendingToolID == "" {
		return nil, fmt.Errorf("%w: Judge called without a pending tool call", ErrOracleFailed)
	}

	payload := make([]toolResult, len(results))
	for i, r := range results {
		payload[i] = toolResult{
			ID:        r.Fragment.ID,
			Text:      r.Fragment.Text,
			Character: r.Fragment.Character,
			Play:      r.Fragment.Play,
			Delivery:  string(r.Fragment.Delivery),
			Score:     r.Score,
		}
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode tool results: %w", err)
	}

	o.messages = append(o.messages, openai.ToolMessage(string(encoded), o.pendingToolID))
	o.pendingToolID = ""

	completion, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(o.model),
		Messages: o.messages,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOracleFailed, err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("%w: no verdict generated", ErrOracleFailed)
	}

	msg := completion.Choices[0].Message
	o.messages = append(o.messages, msg.ToParam())

	var resp verdictResponse
	raw := stripFences(msg.Content)
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		// An unparseable verdict rejects the batch rather than aborting
		// the scene.
		log.Warn().Str("content", msg.Content).Msg("unparseable verdict, rejecting batch")
		return &Verdict{Continue: true}, nil
	}
	return &Verdict{AcceptIDs: resp.AcceptIDs, Continue: resp.Continue}, nil
}
