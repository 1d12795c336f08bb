package layout

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/xhad/solar/internal/models"
	"github.com/xhad/solar/internal/types"
)

// ErrInvalidPDF is returned when a document cannot be opened as a PDF.
var ErrInvalidPDF = errors.New("invalid pdf")

// PDFAnalyzer extracts paragraphs from PDFs locally, without calling the layout API.
// Each blank-line separated block of a page becomes one element.
type PDFAnalyzer struct {
	logger *slog.Logger
}

func NewPDFAnalyzer(logger *slog.Logger) *PDFAnalyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &PDFAnalyzer{logger: logger}
}

func (a *PDFAnalyzer) LayoutAnalysis(ctx context.Context, file io.Reader, filename string) (*models.LayoutAnalysisResult, error) {
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filename, err)
	}

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		a.logger.Error("Failed to create PDF reader",
			slog.String("error", err.Error()),
			slog.Int("data_size", len(data)))
		return nil, fmt.Errorf("%w: failed to create PDF reader: %v", ErrInvalidPDF, err)
	}

	result := &models.LayoutAnalysisResult{Model: "local-pdf"}
	id := 0
	total := reader.NumPage()
	for pageIndex := 1; pageIndex <= total; pageIndex++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page := reader.Page(pageIndex)
		if page.V.IsNull() {
			a.logger.Warn("Null page encountered", slog.Int("page_number", pageIndex))
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to extract text from page %d: %w", pageIndex, err)
		}

		for _, block := range splitBlocks(text) {
			result.Elements = append(result.Elements, models.LayoutElement{
				ID:       id,
				Page:     pageIndex,
				Category: "paragraph",
				Text:     block,
			})
			id++
		}
	}

	a.logger.Info("Extracted PDF elements",
		slog.String("filename", filename),
		slog.Int("total_pages", total),
		slog.Int("elements", len(result.Elements)))

	return result, nil
}

// splitBlocks splits page text on blank lines and collapses whitespace inside a block.
func splitBlocks(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	var blocks []string
	for _, raw := range strings.Split(text, "\n\n") {
		block := strings.Join(strings.Fields(raw), " ")
		if block != "" {
			blocks = append(blocks, block)
		}
	}
	return blocks
}

var _ types.LayoutAnalyzer = (*PDFAnalyzer)(nil)
