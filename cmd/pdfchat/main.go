// Command pdfchat answers questions about a directory of PDF and text
// documents using retrieval-augmented generation.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "pdfchat",
	Short: "Chat with your documents",
	Long: `pdfchat indexes the documents directory into a local vector index and
answers questions from it with a hosted chat model.

  pdfchat ingest           build or update the index
  pdfchat ask "question"   answer one question on the command line
  pdfchat serve            run the chat UI`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
