package services

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"techdocs-rag-platform/internal/config"
	"techdocs-rag-platform/internal/logger"
	"techdocs-rag-platform/models"

	"github.com/google/generative-ai-go/genai"
	"github.com/ledongthuc/pdf"
	"google.golang.org/api/option"
)

// PDFExtractor handles robust document text extraction
type PDFExtractor struct {
	config       *config.Config
	geminiClient *genai.Client
}

// NewPDFExtractor creates a new PDF extractor
func NewPDFExtractor(cfg *config.Config) *PDFExtractor {
	return &PDFExtractor{
		config: cfg,
	}
}

// ExtractionResult contains the result of text extraction
type ExtractionResult struct {
	Text           string
	Pages          int
	Method         string
	QualityScore   float64
	ProcessingTime time.Duration
	WordCount      int
	CharacterCount int
}

// ExtractText extracts text from an uploaded file. PDFs go through the
// local reader first with Gemini as fallback; anything else is treated
// as plain text.
func (e *PDFExtractor) ExtractText(ctx context.Context, filePath, contentType string) (*ExtractionResult, error) {
	start := time.Now()

	stat, err := os.Stat(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	if stat.Size() > 200<<20 { // 200MB safety cap
		return nil, fmt.Errorf("file too large for in-memory extraction")
	}

	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	if contentType != "application/pdf" {
		result := &ExtractionResult{
			Text:   string(content),
			Pages:  1,
			Method: models.ExtractionMethodPlain,
		}
		result.QualityScore = evaluateTextQuality(result.Text)
		result.ProcessingTime = time.Since(start)
		analyzeText(result)
		return result, nil
	}

	methods := []struct {
		name    string
		extract func(context.Context, []byte) (*ExtractionResult, error)
	}{
		{models.ExtractionMethodGoPDF, e.extractWithGoPDF},
		{models.ExtractionMethodGemini, e.extractWithGemini},
	}

	var lastErr error
	var bestResult *ExtractionResult

	for _, method := range methods {
		result, err := method.extract(ctx, content)
		if err != nil {
			logger.Warn("Extraction method failed", "method", method.name, "error", err)
			lastErr = err
			continue
		}

		result.Method = method.name
		result.ProcessingTime = time.Since(start)
		result.QualityScore = evaluateTextQuality(result.Text)
		analyzeText(result)

		logger.Debug("Extraction attempt", "method", method.name, "chars", len(result.Text), "quality", result.QualityScore)

		if result.QualityScore >= 0.7 {
			return result, nil
		}

		if bestResult == nil || result.QualityScore > bestResult.QualityScore {
			bestResult = result
		}
	}

	if bestResult != nil && bestResult.QualityScore >= 0.3 {
		return bestResult, nil
	}

	return nil, fmt.Errorf("all extraction methods failed: %v", lastErr)
}

// extractWithGoPDF uses the Go PDF library for extraction
func (e *PDFExtractor) extractWithGoPDF(ctx context.Context, content []byte) (*ExtractionResult, error) {
	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("failed to create PDF reader: %w", err)
	}

	var textBuilder strings.Builder
	pages := reader.NumPage()

	for i := 1; i <= pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		fonts := make(map[string]*pdf.Font)
		text, err := page.GetPlainText(fonts)
		if err != nil {
			logger.Warn("Failed to extract text from page", "page", i, "error", err)
			continue
		}

		textBuilder.WriteString(fmt.Sprintf("\n\n--- PAGE %d ---\n", i))
		textBuilder.WriteString(text)
	}

	extractedText := textBuilder.String()
	if len(extractedText) == 0 {
		return nil, fmt.Errorf("no text extracted by go-pdf")
	}

	return &ExtractionResult{
		Text:  extractedText,
		Pages: pages,
	}, nil
}

// extractWithGemini uploads the PDF to Gemini and asks for a faithful
// text transcription. Used when the local reader produces garbage.
func (e *PDFExtractor) extractWithGemini(ctx context.Context, content []byte) (*ExtractionResult, error) {
	if e.config.GeminiAPIKey == "" {
		return nil, fmt.Errorf("gemini API key not configured")
	}

	if e.geminiClient == nil {
		client, err := genai.NewClient(ctx, option.WithAPIKey(e.config.GeminiAPIKey))
		if err != nil {
			return nil, fmt.Errorf("failed to create gemini client: %w", err)
		}
		e.geminiClient = client
	}

	file, err := e.geminiClient.UploadFile(ctx, "", bytes.NewReader(content), &genai.UploadFileOptions{
		MIMEType: "application/pdf",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload file to gemini: %w", err)
	}
	defer e.geminiClient.DeleteFile(ctx, file.Name)

	model := e.geminiClient.GenerativeModel(e.config.GeminiModel)
	model.SetTemperature(0.1)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(`You are a precise document text extractor. Extract ALL text content from this PDF exactly as it appears, maintaining original formatting, line breaks, and structure. Do not summarize, interpret, or modify the content.`)},
	}

	resp, err := model.GenerateContent(ctx,
		genai.FileData{URI: file.URI},
		genai.Text("Extract all text content from this PDF document. Maintain original formatting and structure."),
	)
	if err != nil {
		return nil, fmt.Errorf("gemini text extraction failed: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("no text extracted by gemini")
	}

	extractedText := ""
	for _, part := range resp.Candidates[0].Content.Parts {
		if textPart, ok := part.(genai.Text); ok {
			extractedText += string(textPart)
		}
	}

	return &ExtractionResult{
		Text:  extractedText,
		Pages: guessPageCount(extractedText),
	}, nil
}

// evaluateTextQuality assesses the quality of extracted text by character
// class ratios. Corrupted extractions skew toward replacement runes and
// non-printable bytes.
func evaluateTextQuality(text string) float64 {
	text = strings.TrimSpace(text)
	if len(text) < 10 {
		return 0.1
	}

	var alphanumeric, printable, corrupted int

	for _, r := range text {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'):
			alphanumeric++
			printable++
		case r == ' ' || r == '\n' || r == '\t':
			printable++
		case r == '�':
			corrupted++
		case r >= 32 && r <= 126:
			printable++
		case r > 127:
			printable++
		}
	}

	total := len([]rune(text))
	if total == 0 {
		return 0.0
	}

	alphanumericRatio := float64(alphanumeric) / float64(total)
	printableRatio := float64(printable) / float64(total)
	corruptedRatio := float64(corrupted) / float64(total)

	score := printableRatio * 0.4
	if alphanumericRatio >= 0.3 {
		score += 0.3
	} else {
		score += alphanumericRatio
	}
	score -= corruptedRatio * 2.0
	if len(text) > 100 {
		score += 0.1
	}
	if strings.Contains(text, ". ") {
		score += 0.2
	}

	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}

	return score
}

func analyzeText(result *ExtractionResult) {
	words := strings.Fields(result.Text)
	result.WordCount = len(words)
	result.CharacterCount = len(result.Text)
}

func guessPageCount(text string) int {
	// Roughly 3000 characters per page of technical prose.
	pages := len(text) / 3000
	if pages < 1 {
		pages = 1
	}
	return pages
}
