package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/akolanti/CivicRAG/internal/domain/commonModels"
)

var (
	feedbackQuery string
	feedbackJSON  bool
)

var feedbackCmd = &cobra.Command{
	Use:   "feedback",
	Short: "Record or review answer feedback",
}

var feedbackListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all feedback, admins only",
	Args:  cobra.NoArgs,
	RunE:  runFeedbackList,
}

var feedbackAddCmd = &cobra.Command{
	Use:   "add [answer-id] [helpful|not_helpful]",
	Short: "Rate an answer",
	Args:  cobra.ExactArgs(2),
	RunE:  runFeedbackAdd,
}

func init() {
	feedbackListCmd.Flags().BoolVar(&feedbackJSON, "json", false, "output as JSON")
	feedbackAddCmd.Flags().StringVarP(&feedbackQuery, "query", "q", "", "the question that was asked")
	feedbackCmd.AddCommand(feedbackListCmd)
	feedbackCmd.AddCommand(feedbackAddCmd)
	rootCmd.AddCommand(feedbackCmd)
}

func runFeedbackList(cmd *cobra.Command, _ []string) error {
	records, err := service.ListFeedback(cmd.Context(), principal())
	if err != nil {
		return fmt.Errorf("failed to list feedback: %w", err)
	}
	if feedbackJSON {
		return printJSON(cmd, records)
	}
	if len(records) == 0 {
		cmd.Println("No feedback recorded.")
		return nil
	}
	for _, r := range records {
		cmd.Printf("%s  %-11s  %s  %q\n", r.CreatedAt.Format(time.RFC3339), r.Verdict, r.AnswerId, r.UserQuery)
	}
	return nil
}

func runFeedbackAdd(cmd *cobra.Command, args []string) error {
	err := service.SubmitFeedback(cmd.Context(), principal(), commonModels.FeedbackRecord{
		AnswerId:  args[0],
		UserQuery: feedbackQuery,
		Verdict:   commonModels.Verdict(args[1]),
	})
	if err != nil {
		return fmt.Errorf("failed to record feedback: %w", err)
	}
	cmd.Println("Feedback recorded.")
	return nil
}
