package kbd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cloo-solutions/crmkb/internal/service"
)

const snippetLen = 80

// SearchCmd returns the search command
func SearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Find knowledge and records similar to a query",
		Long:  "Embed the query and list the closest knowledge chunks and CRM records, most similar first",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runSearch,
	}

	cmd.Flags().IntP("top-k", "k", 0, "Number of matches to return (defaults to KB_SEARCH_DEFAULT_TOP_K)")
	cmd.Flags().String("source", "", "Only match this partition (knowledge or a record source)")
	cmd.Flags().Bool("context", false, "Print the grounding block handed to the assistant instead of a table")
	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")

	return cmd
}

func runSearch(cmd *cobra.Command, args []string) error {
	topK, _ := cmd.Flags().GetInt("top-k")
	source, _ := cmd.Flags().GetString("source")
	asContext, _ := cmd.Flags().GetBool("context")
	outputFormat, _ := cmd.Flags().GetString("output")

	ctx := context.Background()
	a, err := newApp(ctx, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	matches, err := a.search.Search(ctx, service.SearchInput{
		Query:  strings.Join(args, " "),
		TopK:   topK,
		Source: source,
	})
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	out := cmd.OutOrStdout()
	switch {
	case outputFormat == "json":
		jsonBytes, _ := json.MarshalIndent(matches, "", "  ")
		fmt.Fprintln(out, string(jsonBytes))
	case asContext:
		fmt.Fprint(out, service.BuildGroundingContext(matches))
	case len(matches) == 0:
		fmt.Fprintln(out, "No matches.")
	default:
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "SIMILARITY\tSOURCE\tTITLE\tCONTENT")
		for _, m := range matches {
			fmt.Fprintf(tw, "%.3f\t%s\t%s\t%s\n", m.Similarity, m.Source, m.Title, snippet(m.Content))
		}
		_ = tw.Flush()
	}
	return nil
}

func snippet(s string) string {
	s = service.NormalizeWhitespace(s)
	r := []rune(s)
	if len(r) <= snippetLen {
		return s
	}
	return string(r[:snippetLen-3]) + "..."
}
