package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/akolanti/CivicRAG/internal/domain/commonModels"
	"github.com/akolanti/CivicRAG/internal/rag"
)

var (
	queryJurisdiction string
	queryJSON         bool
)

var queryCmd = &cobra.Command{
	Use:   "query [question]",
	Short: "Ask a question about a jurisdiction's documents",
	Args:  cobra.ExactArgs(1),
	RunE:  runQuery,
}

func init() {
	queryCmd.Flags().StringVarP(&queryJurisdiction, "jurisdiction", "j", "", "jurisdiction to answer from")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output the answer as JSON")
	_ = queryCmd.MarkFlagRequired("jurisdiction")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	answer, err := service.Query(cmd.Context(), principal(), rag.QueryRequest{
		Query:          args[0],
		JurisdictionId: queryJurisdiction,
	})
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}
	if queryJSON {
		return printJSON(cmd, answer)
	}
	printAnswer(cmd, answer)
	return nil
}

func printAnswer(cmd *cobra.Command, answer commonModels.Answer) {
	cmd.Println(answer.Content)
	if !answer.Grounded {
		return
	}
	cmd.Println()
	for i, c := range answer.Citations {
		location := fmt.Sprintf("paragraph %d", c.ParagraphIndex)
		if c.PageNumber != nil {
			location = fmt.Sprintf("page %d, %s", *c.PageNumber, location)
		}
		cmd.Printf("  [%d] %s, %s\n", i+1, c.FileName, location)
	}
	cmd.Printf("\nanswer %s, language %s, tier %s\n", answer.AnswerId, answer.DetectedLanguage, answer.RetrievalTier)
}
