package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// defaultQuestion asks for a grounded summary that separates facts from
// the model's own reasoning, answered in Korean.
const defaultQuestion = "문서 내용을 기반으로 질문에 응답해줘. 모르는 것은 모른다고해. 사실과 너의 생각을 구분해서 알려줘. 영어로 생각하고 한글로 답변해"

var askJSON bool

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer one question from the indexed documents",
	Long: `Retrieves the chunks most similar to the question and asks the chat
model to answer from them. Without a question a default summary prompt is
used.`,
	Args: cobra.ArbitraryArgs,
	RunE: runAsk,
}

func init() {
	askCmd.Flags().BoolVar(&askJSON, "json", false, "output the answer and sources as JSON")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	question := strings.TrimSpace(strings.Join(args, " "))
	if question == "" {
		question = defaultQuestion
	}

	a, err := newApp(cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	n, err := a.store.Count(ctx)
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.New("vector index is empty; run `pdfchat ingest` first")
	}

	ans, err := a.chain.Ask(ctx, question, nil)
	if err != nil {
		return fmt.Errorf("ask failed: %w", err)
	}

	out := cmd.OutOrStdout()
	if askJSON {
		data, err := json.MarshalIndent(ans, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal answer: %w", err)
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	fmt.Fprintln(out, ans.Text)
	if len(ans.Sources) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Sources:")
		for _, s := range ans.Sources {
			fmt.Fprintf(out, "- %s (page %d)\n", s.Name, s.Page+1)
		}
	}
	return nil
}
