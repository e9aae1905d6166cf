package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"

	"github.com/akolanti/CivicRAG/internal/config"
	"github.com/akolanti/CivicRAG/internal/domain/commonModels"
	"github.com/akolanti/CivicRAG/internal/rag"
)

var (
	ingestJurisdiction string
	ingestLanguage     string
	ingestDocumentId   string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [glob]...",
	Short: "Ingest files into a jurisdiction",
	Long: `Ingests every file matching the patterns and waits for each one to finish.
Patterns support ** to match across directories, e.g. "bylaws/**/*.pdf".`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVarP(&ingestJurisdiction, "jurisdiction", "j", "", "owning jurisdiction")
	ingestCmd.Flags().StringVar(&ingestLanguage, "language", "", "source language, detected when empty")
	ingestCmd.Flags().StringVar(&ingestDocumentId, "document", "", "re-ingest this document id, needs exactly one file")
	_ = ingestCmd.MarkFlagRequired("jurisdiction")
	rootCmd.AddCommand(ingestCmd)
}

// expandPatterns returns the matched files in pattern order without duplicates.
func expandPatterns(patterns []string) ([]string, error) {
	seen := make(map[string]bool)
	var files []string
	for _, pattern := range patterns {
		matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", pattern, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("no files match %q", pattern)
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				files = append(files, m)
			}
		}
	}
	return files, nil
}

func runIngest(cmd *cobra.Command, args []string) error {
	files, err := expandPatterns(args)
	if err != nil {
		return err
	}
	if ingestDocumentId != "" && len(files) != 1 {
		return fmt.Errorf("--document needs exactly one file, %d matched", len(files))
	}

	p := principal()
	failed := 0
	for _, file := range files {
		doc, err := ingestFile(cmd.Context(), p, file)
		switch {
		case doc.Status == commonModels.DocumentReady:
			cmd.Printf("ready   %s  %s  (%d chunks)\n", doc.Id, file, doc.ChunkCount)
		default:
			failed++
			reason := doc.Error
			if reason == "" && err != nil {
				reason = err.Error()
			}
			cmd.Printf("failed  %s  %s: %s\n", doc.Id, file, reason)
		}
	}

	cmd.Printf("\n%d of %d files ingested\n", len(files)-failed, len(files))
	if failed > 0 {
		return errors.New("some files failed to ingest")
	}
	return nil
}

func ingestFile(ctx context.Context, p commonModels.Principal, file string) (commonModels.Document, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return commonModels.Document{}, err
	}
	job, doc, err := service.AcceptDocument(ctx, p, rag.IngestRequest{
		JurisdictionId: ingestJurisdiction,
		FileName:       filepath.Base(file),
		SourceLanguage: ingestLanguage,
		DocumentId:     ingestDocumentId,
		Data:           data,
	})
	if err != nil {
		return doc, err
	}

	ctx, cancel := context.WithTimeout(ctx, config.IngestionTimeout)
	defer cancel()
	return service.IngestDocument(ctx, job)
}
