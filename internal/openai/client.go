package openai

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/cloo-solutions/crmkb/internal/domain"
)

const (
	// DefaultEmbeddingModel is the model used when none is configured
	DefaultEmbeddingModel = string(openai.SmallEmbedding3)
	// DefaultEmbeddingDimensions is the vector size stored in knowledge_chunks
	DefaultEmbeddingDimensions = 768
	// DefaultTimeout bounds a single embedding request
	DefaultTimeout = 30 * time.Second
	// DefaultMaxRetries is the number of retries after the first attempt
	DefaultMaxRetries = 3
)

var (
	// ErrEmptyText is returned when text is empty
	ErrEmptyText = errors.New("text cannot be empty")
	// ErrNoAPIKey is returned when no API key is configured
	ErrNoAPIKey = errors.New("KB_OPENAI_API_KEY not set")
)

// EmbeddingAPI defines the interface for embedding generation
type EmbeddingAPI interface {
	CreateEmbeddings(ctx context.Context, text string) ([]float32, error)
}

// OpenAIAdapter calls any OpenAI-compatible embeddings endpoint.
type OpenAIAdapter struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
}

// NewOpenAIAdapter builds an adapter for the given endpoint. An empty baseURL targets api.openai.com.
func NewOpenAIAdapter(apiKey, baseURL, model string, dimensions int) *OpenAIAdapter {
	if model == "" {
		model = DefaultEmbeddingModel
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return &OpenAIAdapter{
		client:     openai.NewClientWithConfig(cfg),
		model:      openai.EmbeddingModel(model),
		dimensions: dimensions,
	}
}

// CreateEmbeddings calls the embeddings API for a single input
func (a *OpenAIAdapter) CreateEmbeddings(ctx context.Context, text string) ([]float32, error) {
	req := openai.EmbeddingRequest{
		Input: []string{text},
		Model: a.model,
	}
	// Only the text-embedding-3 family accepts a reduced output size.
	if strings.HasPrefix(string(a.model), "text-embedding-3") {
		req.Dimensions = a.dimensions
	}

	resp, err := a.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, err
	}

	if len(resp.Data) == 0 {
		return nil, domain.ErrEmptyEmbedding
	}

	return resp.Data[0].Embedding, nil
}

type Config struct {
	APIKey              string
	BaseURL             string
	EmbeddingModel      string
	EmbeddingDimensions int
	Timeout             time.Duration
	MaxRetries          int
	Logger              *zap.Logger
}

// Client generates embeddings with a per-call timeout and bounded retries, and enforces the
// configured vector dimension.
type Client struct {
	api        EmbeddingAPI
	dimensions int
	timeout    time.Duration
	maxRetries int
	logger     *zap.Logger

	// newBackOff is replaced in tests to avoid real sleeps.
	newBackOff func() backoff.BackOff
}

// NewClient creates a new client using defaults.
func NewClient(apiKey string) *Client {
	return NewClientWithConfig(Config{APIKey: apiKey})
}

// NewClientWithConfig creates a new client with explicit configuration.
func NewClientWithConfig(cfg Config) *Client {
	dimensions := cfg.EmbeddingDimensions
	if dimensions <= 0 {
		dimensions = DefaultEmbeddingDimensions
	}
	return newClient(NewOpenAIAdapter(cfg.APIKey, cfg.BaseURL, cfg.EmbeddingModel, dimensions), cfg, dimensions)
}

func newClient(api EmbeddingAPI, cfg Config, dimensions int) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		api:        api,
		dimensions: dimensions,
		timeout:    timeout,
		maxRetries: retries,
		logger:     logger,
		newBackOff: defaultBackOff,
	}
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 2 * time.Minute
	return b
}

// Dimensions reports the vector size every embedding must have.
func (c *Client) Dimensions() int {
	return c.dimensions
}

// GenerateEmbedding embeds a single text. Failures are EMBEDDING_ERROR domain errors; a vector of
// the wrong size is rejected with ErrDimensionMismatch and never returned.
func (c *Client) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	var embedding []float32
	operation := func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		vec, err := c.api.CreateEmbeddings(attemptCtx, text)
		if err != nil {
			if ctx.Err() == nil && isRetryable(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		embedding = vec
		return nil
	}

	notify := func(err error, wait time.Duration) {
		c.logger.Warn("embedding request failed, retrying",
			zap.Error(err),
			zap.Duration("wait", wait))
	}

	b := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), uint64(c.maxRetries)), ctx)
	if err := backoff.RetryNotify(operation, b, notify); err != nil {
		if errors.Is(err, domain.ErrEmptyEmbedding) {
			return nil, err
		}
		return nil, domain.NewEmbeddingError(err)
	}

	if len(embedding) == 0 {
		return nil, domain.ErrEmptyEmbedding
	}
	if len(embedding) != c.dimensions {
		return nil, domain.NewDimensionMismatchError(c.dimensions, len(embedding))
	}

	return embedding, nil
}

// isRetryable reports rate limits, server errors and per-attempt timeouts.
func isRetryable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return retryableStatus(reqErr.HTTPStatusCode)
	}
	return false
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}
