package openai

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

type ChatResponse struct {
	ID      string `json:"id"`
	Choices []struct {
		Index        int         `json:"index"`
		Message      ChatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

var ErrEmptyCompletion = errors.New("completion has no content")

// Complete sends a system and a user message and returns the first choice.
func (c *Client) Complete(ctx context.Context, system, prompt string, maxTokens int) (string, error) {
	req := ChatRequest{
		Model:       c.chatModel,
		MaxTokens:   maxTokens,
		Temperature: c.temperature,
	}
	if system != "" {
		req.Messages = append(req.Messages, ChatMessage{Role: "system", Content: system})
	}
	req.Messages = append(req.Messages, ChatMessage{Role: "user", Content: prompt})

	var resp ChatResponse
	if err := c.doRequest(ctx, http.MethodPost, "/chat/completions", req, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", ErrEmptyCompletion
	}

	choice := resp.Choices[0]
	c.logger.Info("Completion received",
		zap.String("model", c.chatModel),
		zap.String("finish_reason", choice.FinishReason),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
	)
	return choice.Message.Content, nil
}
