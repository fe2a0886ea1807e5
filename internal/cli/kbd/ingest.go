package kbd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cloo-solutions/crmkb/internal/domain"
	"github.com/cloo-solutions/crmkb/internal/service"
)

type ingestOutput struct {
	ID         string `json:"id,omitempty"`
	File       string `json:"file"`
	Title      string `json:"title,omitempty"`
	ChunkCount int    `json:"chunk_count"`
	Error      string `json:"error,omitempty"`
}

// IngestCmd returns the ingest command
func IngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Ingest files into the knowledge base",
		Long: `Extract, chunk and embed each file in order and store it as a knowledge document.

A failing file is reported and the remaining files are still ingested.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runIngest,
	}

	cmd.Flags().String("title", "", "Document title (single file only, defaults to the file name)")
	cmd.Flags().String("description", "", "Document description (single file only)")
	cmd.Flags().String("created-by", "", "User id recorded as the document author")
	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")

	return cmd
}

func runIngest(cmd *cobra.Command, args []string) error {
	title, _ := cmd.Flags().GetString("title")
	description, _ := cmd.Flags().GetString("description")
	createdBy, _ := cmd.Flags().GetString("created-by")
	outputFormat, _ := cmd.Flags().GetString("output")

	if len(args) > 1 && (title != "" || description != "") {
		return fmt.Errorf("--title and --description apply to a single file")
	}

	ctx := context.Background()
	a, err := newApp(ctx, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	results := make([]ingestOutput, 0, len(args))
	failed := 0
	for _, path := range args {
		out := ingestOne(ctx, cmd, a.knowledge, path, service.IngestFileInput{
			Title:       title,
			Description: description,
			CreatedBy:   createdBy,
		}, outputFormat != "json")
		if out.Error != "" {
			failed++
		}
		results = append(results, out)
	}

	if outputFormat == "json" {
		jsonBytes, _ := json.MarshalIndent(results, "", "  ")
		fmt.Fprintln(cmd.OutOrStdout(), string(jsonBytes))
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(args))
	}
	return nil
}

func ingestOne(ctx context.Context, cmd *cobra.Command, svc *service.KnowledgeService, path string, input service.IngestFileInput, verbose bool) ingestOutput {
	out := ingestOutput{File: path}

	data, err := os.ReadFile(path)
	if err != nil {
		out.Error = err.Error()
		fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", path, err)
		return out
	}

	input.FileName = filepath.Base(path)
	input.Data = data

	var progress service.ProgressFunc
	if verbose {
		progress = func(msg string) {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", input.FileName, msg)
		}
	}

	doc, err := svc.IngestFile(ctx, input, progress)
	if err != nil {
		out.Error = err.Error()
		fmt.Fprintf(cmd.ErrOrStderr(), "%s: failed [%s]: %v\n", path, domain.ErrorCode(err), err)
		return out
	}

	out.ID = doc.ID
	out.Title = doc.Title
	out.ChunkCount = doc.ChunkCount
	if verbose {
		fmt.Fprintf(cmd.OutOrStdout(), "Ingested %s as %q (%s, %d chunks)\n", path, doc.Title, doc.ID, doc.ChunkCount)
	}
	return out
}
