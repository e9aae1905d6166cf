package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/akolanti/CivicRAG/internal/domain/commonModels"
	"github.com/akolanti/CivicRAG/internal/domain/jobModel"
)

var (
	documentsJurisdiction string
	documentsStatus       string
	documentsJSON         bool
)

var documentsCmd = &cobra.Command{
	Use:   "documents",
	Short: "List documents and their ingestion status",
	Args:  cobra.NoArgs,
	RunE:  runDocuments,
}

var deleteCmd = &cobra.Command{
	Use:   "delete [document-id]",
	Short: "Delete a document and its chunks",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

func init() {
	documentsCmd.Flags().StringVarP(&documentsJurisdiction, "jurisdiction", "j", "", "only this jurisdiction")
	documentsCmd.Flags().StringVar(&documentsStatus, "status", "", "processing, ready or failed")
	documentsCmd.Flags().BoolVar(&documentsJSON, "json", false, "output as JSON")
	rootCmd.AddCommand(documentsCmd)
	rootCmd.AddCommand(deleteCmd)
}

func runDocuments(cmd *cobra.Command, _ []string) error {
	docs, err := service.ListDocuments(cmd.Context(), principal(), jobModel.DocumentFilter{
		JurisdictionId: documentsJurisdiction,
		Status:         commonModels.DocumentStatus(documentsStatus),
	})
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}
	if documentsJSON {
		return printJSON(cmd, docs)
	}
	if len(docs) == 0 {
		cmd.Println("No documents found.")
		return nil
	}
	for _, d := range docs {
		cmd.Printf("%s  %-10s  %-12s  %4d chunks  %s\n", d.Id, d.Status, d.JurisdictionId, d.ChunkCount, d.FileName)
		if d.Error != "" {
			cmd.Printf("    %s\n", d.Error)
		}
	}
	cmd.Printf("\nTotal: %d documents\n", len(docs))
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	deleted, err := service.DeleteDocument(cmd.Context(), principal(), args[0])
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	cmd.Printf("Deleted %s (%d chunks)\n", args[0], deleted)
	return nil
}
