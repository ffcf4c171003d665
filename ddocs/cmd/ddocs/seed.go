package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/spf13/cobra"

	"github.com/fileverse/ddocs-stack/ddocs/internal/models"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create generated documents for a portal",
	Long: `Creates --count documents with generated titles and markdown content. Each
document queues a create event, so the sync workers have work to anchor.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		portal, _ := cmd.Flags().GetString("portal")
		count, _ := cmd.Flags().GetInt("count")
		seed, _ := cmd.Flags().GetInt64("seed")
		if portal == "" {
			return errors.New("--portal is required")
		}
		if count < 1 {
			return errors.New("--count must be positive")
		}

		a, err := newApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		faker := gofakeit.New(seed)
		out := cmd.OutOrStdout()
		for i := 0; i < count; i++ {
			doc, err := a.svc.CreateDocument(cmd.Context(), portal, fakeDocument(faker))
			if err != nil {
				return fmt.Errorf("document %d: %w", i+1, err)
			}
			fmt.Fprintf(out, "%s  %s\n", doc.DDocID, doc.Title)
		}
		return nil
	},
}

// fakeDocument builds a markdown document with a heading and a few paragraphs.
func fakeDocument(f *gofakeit.Faker) models.CreateDocumentRequest {
	title := strings.TrimSuffix(f.Sentence(f.Number(2, 6)), ".")
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", title)
	for i := 0; i < f.Number(1, 4); i++ {
		b.WriteString(f.Paragraph(1, f.Number(2, 5), 12, " "))
		b.WriteString("\n\n")
	}
	return models.CreateDocumentRequest{Title: title, Content: strings.TrimSpace(b.String())}
}

func init() {
	seedCmd.Flags().String("portal", "", "portal address that owns the documents")
	seedCmd.Flags().Int("count", 10, "number of documents to create")
	seedCmd.Flags().Int64("seed", 0, "random seed (0 picks one)")
	rootCmd.AddCommand(seedCmd)
}
