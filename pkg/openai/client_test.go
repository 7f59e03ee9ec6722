package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
)

type ClientSuite struct {
	suite.Suite
	server  *httptest.Server
	client  *Client
	handler http.HandlerFunc
}

func (s *ClientSuite) SetupTest() {
	s.handler = nil
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.Require().NotNil(s.handler, "no handler for %s", r.URL.Path)
		s.handler(w, r)
	}))
	s.client = NewClient(Options{
		APIKey:      "sk-test",
		BaseURL:     s.server.URL + "/v1/",
		ChatModel:   "gpt-test",
		ImageModel:  "image-test",
		ImageSize:   "1792x1024",
		Temperature: 0.5,
		Timeout:     5 * time.Second,
	}, zap.NewNop())
}

func (s *ClientSuite) TearDownTest() {
	s.server.Close()
}

func (s *ClientSuite) TestCompleteSendsMessages() {
	s.handler = func(w http.ResponseWriter, r *http.Request) {
		s.Equal(http.MethodPost, r.Method)
		s.Equal("/v1/chat/completions", r.URL.Path)
		s.Equal("Bearer sk-test", r.Header.Get("Authorization"))

		var req ChatRequest
		s.Require().NoError(json.NewDecoder(r.Body).Decode(&req))
		s.Equal("gpt-test", req.Model)
		s.Equal(900, req.MaxTokens)
		s.Require().Len(req.Messages, 2)
		s.Equal("system", req.Messages[0].Role)
		s.Equal("user", req.Messages[1].Role)
		s.Equal("write slides", req.Messages[1].Content)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","choices":[{"index":0,"message":{"role":"assistant","content":"SLIDE 1\nTITLE: Salom"},"finish_reason":"stop"}],"usage":{"completion_tokens":7}}`))
	}

	out, err := s.client.Complete(context.Background(), "you are a designer", "write slides", 900)
	s.Require().NoError(err)
	s.Equal("SLIDE 1\nTITLE: Salom", out)
}

func (s *ClientSuite) TestCompleteEmptyChoice() {
	s.handler = func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}

	_, err := s.client.Complete(context.Background(), "", "x", 10)
	s.ErrorIs(err, ErrEmptyCompletion)
}

func (s *ClientSuite) TestAPIErrorIsDecoded() {
	s.handler = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"Rate limit reached","type":"requests"}}`))
	}

	_, err := s.client.Complete(context.Background(), "", "x", 10)
	var apiErr *APIError
	s.Require().True(errors.As(err, &apiErr))
	s.Equal(http.StatusTooManyRequests, apiErr.StatusCode)
	s.Equal("Rate limit reached", apiErr.Message)
	s.Equal("requests", apiErr.Type)
	s.True(apiErr.Retryable())
	s.Contains(apiErr.Error(), "429")
}

func (s *ClientSuite) TestPlainTextErrorBody() {
	s.handler = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("bad things"))
	}

	err := s.client.Ping(context.Background())
	var apiErr *APIError
	s.Require().True(errors.As(err, &apiErr))
	s.Equal("bad things", apiErr.Message)
	s.False(apiErr.Retryable())
}

func (s *ClientSuite) TestGenerateImage() {
	s.handler = func(w http.ResponseWriter, r *http.Request) {
		s.Equal("/v1/images/generations", r.URL.Path)
		var req ImageRequest
		s.Require().NoError(json.NewDecoder(r.Body).Decode(&req))
		s.Equal("image-test", req.Model)
		s.Equal("1792x1024", req.Size)
		s.Equal(1, req.N)
		s.Equal("a spaceship near a black hole", req.Prompt)
		_, _ = w.Write([]byte(`{"created":1,"data":[{"url":"https://img.example/1.png"}]}`))
	}

	url, err := s.client.GenerateImage(context.Background(), "a spaceship near a black hole")
	s.Require().NoError(err)
	s.Equal("https://img.example/1.png", url)
}

func (s *ClientSuite) TestGenerateImageWithoutData() {
	s.handler = func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"created":1,"data":[]}`))
	}

	_, err := s.client.GenerateImage(context.Background(), "x")
	s.ErrorIs(err, ErrNoImage)
}

func (s *ClientSuite) TestPing() {
	s.handler = func(w http.ResponseWriter, r *http.Request) {
		s.Equal(http.MethodGet, r.Method)
		s.Equal("/v1/models", r.URL.Path)
		_, _ = w.Write([]byte(`{"data":[]}`))
	}

	s.NoError(s.client.Ping(context.Background()))
}

func (s *ClientSuite) TestContextCancellation() {
	s.handler = func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.client.Complete(ctx, "", "x", 10)
	s.ErrorIs(err, context.Canceled)
}

func TestClientSuite(t *testing.T) {
	suite.Run(t, new(ClientSuite))
}
