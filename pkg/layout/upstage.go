package layout

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/xhad/solar/internal/models"
	"github.com/xhad/solar/internal/types"
)

const DefaultURL = "https://api.upstage.ai/v1/document-ai/layout-analysis"

type UpstageConfig struct {
	URL     string
	APIKey  string
	Timeout time.Duration
	// OCR forces OCR on every page when set.
	OCR    bool
	Logger *slog.Logger
}

// APIError is a non-2xx answer from the layout analysis API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("layout analysis returned status %d: %s", e.StatusCode, e.Body)
}

// UpstageClient calls the Upstage document layout analysis API.
type UpstageClient struct {
	config     UpstageConfig
	httpClient *http.Client
	logger     *slog.Logger
}

func NewUpstageClient(config UpstageConfig) *UpstageClient {
	if config.URL == "" {
		config.URL = DefaultURL
	}
	if config.Timeout == 0 {
		config.Timeout = 120 * time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &UpstageClient{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     config.Logger,
	}
}

func (c *UpstageClient) LayoutAnalysis(ctx context.Context, file io.Reader, filename string) (*models.LayoutAnalysisResult, error) {
	body, contentType, err := c.buildForm(file, filename)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.URL, body)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	c.logger.Info("Requesting layout analysis", slog.String("filename", filename))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Layout analysis request failed", slog.String("error", err.Error()))
		return nil, fmt.Errorf("error making request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(raw)}
		c.logger.Error("Layout analysis API error",
			slog.Int("status_code", resp.StatusCode),
			slog.String("raw_body", apiErr.Body))
		return nil, apiErr
	}

	var result models.LayoutAnalysisResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("error decoding layout analysis response: %w", err)
	}

	c.logger.Info("Layout analysis completed",
		slog.String("filename", filename),
		slog.Int("elements", len(result.Elements)))

	return &result, nil
}

func (c *UpstageClient) buildForm(file io.Reader, filename string) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("document", filename)
	if err != nil {
		return nil, "", fmt.Errorf("error creating form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, "", fmt.Errorf("error reading document: %w", err)
	}
	if c.config.OCR {
		if err := w.WriteField("ocr", "true"); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("error closing form: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

var _ types.LayoutAnalyzer = (*UpstageClient)(nil)
