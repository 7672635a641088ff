// ABOUTME: Chat-completion backed Planner and Recommender built on openai-go
// ABOUTME: Model output is mined for its JSON object with gjson; reasoning quality is the model's concern

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/tidwall/gjson"

	"github.com/2389/voyage-gateway/internal/agent"
	"github.com/2389/voyage-gateway/internal/itinerary"
)

// ErrNoContent is returned when the model answers with nothing.
var ErrNoContent = errors.New("empty completion")

// Config selects the endpoint and model.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	// MaxRetries is passed to the client. Zero keeps the client default.
	MaxRetries int
}

// Client implements agent.Planner and agent.Recommender.
type Client struct {
	client openai.Client
	model  string
	logger *slog.Logger
}

var (
	_ agent.Planner     = (*Client)(nil)
	_ agent.Recommender = (*Client)(nil)
)

// New creates a Client.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: api key: %w", agent.ErrUnavailable)
	}
	if cfg.Model == "" {
		cfg.Model = string(openai.ChatModelGPT4oMini)
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.MaxRetries > 0 {
		opts = append(opts, option.WithMaxRetries(cfg.MaxRetries))
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		client: openai.NewClient(opts...),
		model:  cfg.Model,
		logger: logger.With("component", "openai"),
	}, nil
}

func (c *Client) complete(ctx context.Context, system string, history []agent.Message, user string) (string, error) {
	msgs := []openai.ChatCompletionMessageParamUnion{openai.SystemMessage(system)}
	for _, m := range history {
		if m.Role == "assistant" {
			msgs = append(msgs, openai.AssistantMessage(m.Text))
		} else {
			msgs = append(msgs, openai.UserMessage(m.Text))
		}
	}
	msgs = append(msgs, openai.UserMessage(user))

	completion, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.model),
		Messages: msgs,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(completion.Choices) == 0 || strings.TrimSpace(completion.Choices[0].Message.Content) == "" {
		return "", ErrNoContent
	}
	c.logger.Debug("completion received", "model", completion.Model, "tokens", completion.Usage.TotalTokens)
	return completion.Choices[0].Message.Content, nil
}

// extractJSON returns the first JSON object or array in s, ignoring code
// fences and prose around it. Returns "" when there is none.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	if gjson.Valid(s) && (strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[")) {
		return s
	}
	for _, pair := range [][2]string{{"{", "}"}, {"[", "]"}} {
		start := strings.Index(s, pair[0])
		end := strings.LastIndex(s, pair[1])
		if start >= 0 && end > start && gjson.Valid(s[start:end+1]) {
			return s[start : end+1]
		}
	}
	return ""
}

func decodeTrip(r gjson.Result) itinerary.TripContext {
	var trip itinerary.TripContext
	if r.IsObject() {
		// Unknown or mistyped fields are dropped rather than failing the turn.
		_ = json.Unmarshal([]byte(r.Raw), &trip)
	}
	return trip
}

// Classify asks the model for intent and extracted trip fields.
func (c *Client) Classify(ctx context.Context, history []agent.Message, text string, trip itinerary.TripContext) (*agent.Classification, error) {
	known, _ := json.Marshal(trip)
	out, err := c.complete(ctx, fmt.Sprintf(classifyPrompt, known), history, text)
	if err != nil {
		return nil, err
	}
	doc := extractJSON(out)
	if doc == "" {
		// Conversational answer with no structure.
		return &agent.Classification{Intent: agent.IntentGeneral, Reply: out}, nil
	}

	res := gjson.Parse(doc)
	c2 := &agent.Classification{
		Intent:    agent.Intent(res.Get("intent").String()),
		Extracted: decodeTrip(res.Get("extracted")),
		Reply:     res.Get("reply").String(),
	}
	switch c2.Intent {
	case agent.IntentPlan, agent.IntentRecommendation, agent.IntentGeneral:
	default:
		c.logger.Warn("unknown intent from model", "intent", c2.Intent)
		c2.Intent = agent.IntentGeneral
	}
	return c2, nil
}

// BuildPlan asks the model for a plan grounded on places. The raw JSON (or
// the whole answer when it holds none) is returned for validation upstream.
func (c *Client) BuildPlan(ctx context.Context, trip itinerary.TripContext, places []agent.Place) (string, error) {
	tripJSON, _ := json.Marshal(trip)
	placesJSON, _ := json.Marshal(places)
	out, err := c.complete(ctx, planPrompt, nil, fmt.Sprintf("Trip: %s\nPlaces: %s", tripJSON, placesJSON))
	if err != nil {
		return "", err
	}
	if doc := extractJSON(out); doc != "" {
		return doc, nil
	}
	return out, nil
}

// Recommend runs one step of the recommendation interview.
func (c *Client) Recommend(ctx context.Context, text string, trip itinerary.TripContext) (*agent.RecommendationReply, error) {
	known, _ := json.Marshal(trip)
	out, err := c.complete(ctx, fmt.Sprintf(recommendPrompt, known), nil, text)
	if err != nil {
		return nil, err
	}
	doc := extractJSON(out)
	if doc == "" {
		return &agent.RecommendationReply{Message: out}, nil
	}

	res := gjson.Parse(doc)
	reply := &agent.RecommendationReply{
		Message:   res.Get("message").String(),
		Collected: decodeTrip(res.Get("collected")),
	}
	if recs := res.Get("recommendations"); recs.IsArray() && len(recs.Array()) > 0 {
		reply.Raw = recs.Raw
	}
	return reply, nil
}
