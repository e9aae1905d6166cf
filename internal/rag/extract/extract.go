package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/akolanti/CivicRAG/internal/config"
	"github.com/akolanti/CivicRAG/internal/domain/commonModels"
	"github.com/akolanti/CivicRAG/internal/domain/ragErrors"
	"github.com/akolanti/CivicRAG/pkg/logger_i"
	"github.com/dslipak/pdf"
	"github.com/lu4p/cat"
)

// PageBreak separates pages in Result.FullText.
const PageBreak = "\f"

type Page struct {
	Number int
	Text   string
}

type Result struct {
	FullText string
	Pages    []Page
	FileType commonModels.DocType
}

// Extractor turns an uploaded binary into text. ErrExtractionFailed means the file could not be
// parsed, ErrEmptyDocument means it parsed but held no text.
type Extractor interface {
	Extract(ctx context.Context, data []byte, fileName string) (Result, error)
}

type extractor struct {
	pageTimeout time.Duration
	logger      *logger_i.Logger
}

func NewExtractor() Extractor {
	return &extractor{
		pageTimeout: config.PageExtractLimit,
		logger:      logger_i.NewLogger("extract"),
	}
}

func DocTypeOf(fileName string) commonModels.DocType {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".pdf":
		return commonModels.PDF
	case ".docx":
		return commonModels.DOCX
	case ".odt":
		return commonModels.ODT
	case ".rtf":
		return commonModels.RTF
	case ".txt", ".md":
		return commonModels.TXT
	default:
		return commonModels.ERR
	}
}

func (e *extractor) Extract(ctx context.Context, data []byte, fileName string) (Result, error) {
	docType := DocTypeOf(fileName)
	var (
		pages []Page
		err   error
	)
	switch docType {
	case commonModels.PDF:
		pages, err = e.extractPDF(ctx, data)
	case commonModels.ERR:
		return Result{}, fmt.Errorf("%w: unsupported file type %q", ragErrors.ErrExtractionFailed, filepath.Ext(fileName))
	default:
		pages, err = e.extractWithCat(data, docType)
	}
	if err != nil {
		return Result{}, err
	}

	texts := make([]string, len(pages))
	blank := true
	for i, p := range pages {
		texts[i] = p.Text
		if strings.TrimSpace(p.Text) != "" {
			blank = false
		}
	}
	if blank {
		return Result{}, ragErrors.ErrEmptyDocument
	}
	return Result{FullText: strings.Join(texts, PageBreak), Pages: pages, FileType: docType}, nil
}

func (e *extractor) extractPDF(ctx context.Context, data []byte) (pages []Page, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages, err = nil, fmt.Errorf("%w: malformed pdf: %v", ragErrors.ErrExtractionFailed, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ragErrors.ErrExtractionFailed, err)
	}

	numPages := reader.NumPage()
	e.logger.WithTrace(ctx).Debug("extracting pdf", "pages", numPages)
	failed := 0
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := e.protectExtract(ctx, page)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// one unreadable page does not sink the document
			e.logger.WithTrace(ctx).Warn("skipping unreadable page", "page", i, "error", err)
			failed++
			continue
		}
		pages = append(pages, Page{Number: i, Text: content})
	}
	if numPages > 0 && failed == numPages {
		return nil, fmt.Errorf("%w: no readable pages", ragErrors.ErrExtractionFailed)
	}
	return pages, nil
}

func (e *extractor) protectExtract(ctx context.Context, page pdf.Page) (string, error) {
	type result struct {
		content string
		err     error
	}
	resChan := make(chan result, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				resChan <- result{err: fmt.Errorf("page parse panic: %v", r)}
			}
		}()
		content, err := page.GetPlainText(nil)
		resChan <- result{content, err}
	}()

	timer := time.NewTimer(e.pageTimeout)
	defer timer.Stop()
	select {
	case r := <-resChan:
		return r.content, r.err
	case <-timer.C:
		return "", errors.New("page extraction timeout")
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// extractWithCat reads docx, odt, rtf and plain text. These formats carry no page structure, so the
// whole text comes back as page 1 and SplitPages applies the blank line heuristic.
func (e *extractor) extractWithCat(data []byte, docType commonModels.DocType) ([]Page, error) {
	tmp, err := os.CreateTemp("", "extract-*."+string(docType))
	if err != nil {
		return nil, fmt.Errorf("staging upload: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("staging upload: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return nil, fmt.Errorf("staging upload: %w", err)
	}

	text, err := cat.File(tmp.Name())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ragErrors.ErrExtractionFailed, err)
	}
	return []Page{{Number: 1, Text: text}}, nil
}

var (
	pageGap      = regexp.MustCompile(`\n[ \t]*\n([ \t]*\n)+`)
	paragraphGap = regexp.MustCompile(`\n[ \t]*\n`)
)

// SplitPages recovers page boundaries from extracted text. Form feeds are real page breaks. Without
// them, runs of two or more blank lines stand in for page breaks, which misattributes pages on
// documents that use such gaps inside a page. The second result reports whether the numbers are
// approximate.
func SplitPages(fullText string) ([]Page, bool) {
	text := strings.ReplaceAll(fullText, "\r\n", "\n")
	var parts []string
	approximate := false
	if strings.Contains(text, PageBreak) {
		parts = strings.Split(text, PageBreak)
	} else {
		parts = pageGap.Split(text, -1)
		approximate = len(parts) > 1
	}

	pages := make([]Page, 0, len(parts))
	for i, p := range parts {
		if strings.TrimSpace(p) == "" {
			continue
		}
		pages = append(pages, Page{Number: i + 1, Text: p})
	}
	return pages, approximate
}

// Paragraphs splits page text on blank lines and folds line wrapping inside each paragraph.
func Paragraphs(pageText string) []string {
	text := strings.ReplaceAll(pageText, "\r\n", "\n")
	var out []string
	for _, block := range paragraphGap.Split(text, -1) {
		p := strings.Join(strings.Fields(block), " ")
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// PageView returns the pages ingestion should attribute chunks to. PDFs keep their real page
// numbers. Other formats fall back to SplitPages.
func (r Result) PageView() ([]Page, bool) {
	if r.FileType == commonModels.PDF {
		return r.Pages, false
	}
	return SplitPages(r.FullText)
}
