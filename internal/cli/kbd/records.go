package kbd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cloo-solutions/crmkb/internal/config"
	"github.com/cloo-solutions/crmkb/internal/openai"
)

const defaultProbeText = "dimension probe"

// BackfillCmd returns the backfill command
func BackfillCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Embed CRM records that have no vector yet",
		Long: `Run one backfill pass over record embeddings with a missing vector.

Records are embedded one at a time with KB_BACKFILL_DELAY between calls. Failing records are
reported and retried on the next pass.`,
		Args: cobra.NoArgs,
		RunE: runBackfill,
	}

	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")

	return cmd
}

func runBackfill(cmd *cobra.Command, args []string) error {
	outputFormat, _ := cmd.Flags().GetString("output")

	ctx := context.Background()
	a, err := newApp(ctx, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.records.Backfill(ctx)
	if err != nil {
		return fmt.Errorf("backfill failed: %w", err)
	}

	if outputFormat == "json" {
		data := map[string]int{
			"embedded": result.Embedded,
			"skipped":  result.Skipped,
			"failed":   result.Failed,
		}
		jsonBytes, _ := json.MarshalIndent(data, "", "  ")
		fmt.Fprintln(cmd.OutOrStdout(), string(jsonBytes))
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "Backfill complete: %d embedded, %d skipped, %d failed\n",
			result.Embedded, result.Skipped, result.Failed)
	}
	return nil
}

// EmbedDimCmd returns the embed-dim command
func EmbedDimCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "embed-dim [text]",
		Short: "Report the vector size the embedding model returns",
		Long: `Embed a sample text and print the length of the returned vector next to the configured
KB_EMBEDDING_DIMENSIONS. A mismatch means stored vectors would be rejected.`,
		RunE: runEmbedDim,
	}
}

func runEmbedDim(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if !cfg.HasOpenAI() {
		return errOpenAINotConfigured
	}

	text := strings.Join(args, " ")
	if strings.TrimSpace(text) == "" {
		text = defaultProbeText
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.EmbeddingTimeout)
	defer cancel()

	adapter := openai.NewOpenAIAdapter(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.EmbeddingModel, cfg.EmbeddingDimensions)
	vec, err := adapter.CreateEmbeddings(ctx, text)
	if err != nil {
		return fmt.Errorf("embedding request failed: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "model: %s\nreturned: %d\nconfigured: %d\n", cfg.EmbeddingModel, len(vec), cfg.EmbeddingDimensions)
	if len(vec) != cfg.EmbeddingDimensions {
		return fmt.Errorf("dimension mismatch: model returned %d, configured %d", len(vec), cfg.EmbeddingDimensions)
	}
	return nil
}
