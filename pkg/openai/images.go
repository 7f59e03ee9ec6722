package openai

import (
	"context"
	"errors"
	"net/http"
)

type ImageRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	N              int    `json:"n"`
	Size           string `json:"size,omitempty"`
	ResponseFormat string `json:"response_format"`
}

type ImageResponse struct {
	Created int64 `json:"created"`
	Data    []struct {
		URL           string `json:"url"`
		RevisedPrompt string `json:"revised_prompt"`
	} `json:"data"`
}

var ErrNoImage = errors.New("image response has no url")

// GenerateImage returns the URL of one generated image. URLs expire, so callers download promptly.
func (c *Client) GenerateImage(ctx context.Context, prompt string) (string, error) {
	req := ImageRequest{
		Model:          c.imageModel,
		Prompt:         prompt,
		N:              1,
		Size:           c.imageSize,
		ResponseFormat: "url",
	}

	var resp ImageResponse
	if err := c.doRequest(ctx, http.MethodPost, "/images/generations", req, &resp); err != nil {
		return "", err
	}
	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		return "", ErrNoImage
	}
	return resp.Data[0].URL, nil
}
