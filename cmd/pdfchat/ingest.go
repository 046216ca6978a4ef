package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dgallion1/pdfchat/internal/parser"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Index the documents directory",
	Long: `Loads every supported file in the documents directory, splits it into
chunks, embeds them and stores them in the vector index. Files whose content
is already indexed are skipped; changed files replace their old chunks.`,
	Args: cobra.NoArgs,
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	report, err := a.ingester.IngestDir(cmd.Context())
	if errors.Is(err, parser.ErrNoDocuments) {
		fmt.Fprintf(out, "No documents found in %s.\n", a.cfg.DocumentsDir)
		return nil
	}
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}

	fmt.Fprintf(out, "Ingested %d document(s) into %d chunk(s), %d unchanged.\n",
		report.Documents, report.Chunks, report.Skipped)
	for _, f := range report.Failed {
		fmt.Fprintf(out, "  skipped %s: %s\n", f.Name, f.Error)
	}
	fmt.Fprintf(out, "Vector index saved to %s\n", a.cfg.PersistDir)
	return nil
}
