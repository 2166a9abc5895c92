package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Dannythecoder88/StudyPal/internal/config"
	"github.com/Dannythecoder88/StudyPal/internal/resilience"
)

const (
	answerMaxTokens   = 500
	answerTemperature = 0.7
	filterMaxTokens   = 10
	filterTemperature = 0.1
)

// ErrEmptyMessage is returned for blank questions
var ErrEmptyMessage = errors.New("assistant: empty message")

// RoleMsg is one chat message
type RoleMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatBody is the chat completions request
type ChatBody struct {
	Model       string    `json:"model"`
	Messages    []RoleMsg `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
}

// ChatResp is the subset of the chat completions response we read
type ChatResp struct {
	Choices []struct {
		Message RoleMsg `json:"message"`
	} `json:"choices"`
}

// Client answers study questions through an OpenAI compatible chat API
type Client struct {
	apiKey     string
	apiURL     string
	model      string
	filter     bool
	breaker    *resilience.CircuitBreaker
	httpClient *http.Client
	logger     zerolog.Logger
	now        func() time.Time
}

// NewClient creates an assistant client. breaker may be nil.
func NewClient(cfg *config.Config, breaker *resilience.CircuitBreaker, logger zerolog.Logger) *Client {
	timeout := time.Duration(cfg.AssistantTimeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		apiKey:     cfg.OpenAIAPIKey,
		apiURL:     strings.TrimRight(cfg.OpenAIBaseURL, "/") + "/chat/completions",
		model:      cfg.AssistantModel,
		filter:     cfg.AssistantContentFilter,
		breaker:    breaker,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With().Str("component", "assistant").Logger(),
		now:        time.Now,
	}
}

// Converse answers req. Questions the content filter rejects get
// FilteredReply without a second model call.
func (c *Client) Converse(ctx context.Context, req Request) (*Response, error) {
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		return nil, ErrEmptyMessage
	}
	req.Type = ParseRequestType(string(req.Type))

	if c.filter && !c.isStudyRelated(ctx, req.Message) {
		c.logger.Info().Str("type", string(req.Type)).Msg("Question filtered as off-topic")
		return &Response{Response: FilteredReply, Type: TypeGeneral, Timestamp: c.now(), Filtered: true}, nil
	}

	system, user := prompts(req)
	answer, err := c.guarded(ctx, ChatBody{
		Model: c.model,
		Messages: []RoleMsg{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		MaxTokens:   answerMaxTokens,
		Temperature: answerTemperature,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get assistant response: %w", err)
	}
	if strings.TrimSpace(answer) == "" {
		answer = fallbackReply
	}

	return &Response{Response: answer, Type: req.Type, Timestamp: c.now()}, nil
}

// isStudyRelated runs the YES/NO classifier. Any failure lets the
// message through.
func (c *Client) isStudyRelated(ctx context.Context, message string) bool {
	verdict, err := c.guarded(ctx, ChatBody{
		Model: c.model,
		Messages: []RoleMsg{
			{Role: "system", Content: filterPrompt},
			{Role: "user", Content: message},
		},
		MaxTokens:   filterMaxTokens,
		Temperature: filterTemperature,
	})
	if err != nil {
		c.logger.Warn().Err(err).Msg("Content filter failed, allowing message")
		return true
	}
	return strings.ToUpper(strings.TrimSpace(verdict)) == "YES"
}

func (c *Client) guarded(ctx context.Context, body ChatBody) (string, error) {
	if c.breaker == nil {
		return c.complete(ctx, body)
	}
	return resilience.Execute(c.breaker, func() (string, error) {
		return c.complete(ctx, body)
	})
}

// complete sends one chat completion request and returns the first choice
func (c *Client) complete(ctx context.Context, body ChatBody) (string, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("chat API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var chat ChatResp
	if err := json.Unmarshal(respBody, &chat); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if len(chat.Choices) == 0 {
		return "", nil
	}
	return chat.Choices[0].Message.Content, nil
}
