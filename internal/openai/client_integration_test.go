//go:build integration

package openai

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/crmkb/internal/domain"
)

func liveConfig(t *testing.T) Config {
	t.Helper()
	key := os.Getenv("KB_OPENAI_API_KEY")
	if key == "" {
		t.Skip("KB_OPENAI_API_KEY not set")
	}
	return Config{
		APIKey:         key,
		BaseURL:        os.Getenv("KB_OPENAI_BASE_URL"),
		EmbeddingModel: os.Getenv("KB_EMBEDDING_MODEL"),
		Timeout:        20 * time.Second,
		MaxRetries:     1,
	}
}

func TestLive_EmbeddingHasConfiguredDimensions(t *testing.T) {
	client := NewClientWithConfig(liveConfig(t))

	vec, err := client.GenerateEmbedding(context.Background(), "Quarterly pricing policy for enterprise accounts.")
	require.NoError(t, err)
	assert.Len(t, vec, client.Dimensions())
}

func TestLive_BadKeyFailsWithoutRetrying(t *testing.T) {
	cfg := liveConfig(t)
	cfg.APIKey = "sk-invalid"
	cfg.MaxRetries = 5
	client := NewClientWithConfig(cfg)

	start := time.Now()
	_, err := client.GenerateEmbedding(context.Background(), "refund policy")
	require.Error(t, err)
	assert.Equal(t, domain.ErrCodeEmbedding, domain.ErrorCode(err))
	assert.Less(t, time.Since(start), 10*time.Second)
}
