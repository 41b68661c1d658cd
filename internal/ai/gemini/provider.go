package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/nancybwi/DrainGuardHCM-sub000/internal/ai"
	"github.com/sethvargo/go-retry"
)

const (
	// APIBaseURL is the base URL for the Gemini API
	APIBaseURL = "https://generativelanguage.googleapis.com/v1beta"

	// DefaultModel is the default Gemini model to use
	DefaultModel = "gemini-1.5-flash"

	// MaxImageSize is the maximum image size in bytes (20MB)
	MaxImageSize = 20 * 1024 * 1024

	// maxOutputTokens bounds the verdict payload; the expected JSON is small
	maxOutputTokens = 1024
)

// Config contains configuration for the Gemini provider
type Config struct {
	APIKey         string
	Model          string
	BaseURL        string // Overridable for tests; defaults to APIBaseURL
	ProviderConfig ai.ProviderConfig
}

// Provider implements the Adjudicator interface using Google's Gemini API
type Provider struct {
	config Config
	client *http.Client
	logger *slog.Logger
}

// New creates a new Gemini adjudicator provider
func New(config Config, logger *slog.Logger) (*Provider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	// Set defaults
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.BaseURL == "" {
		config.BaseURL = APIBaseURL
	}
	if config.ProviderConfig.MaxRetries == 0 {
		config.ProviderConfig.MaxRetries = 3
	}
	if config.ProviderConfig.RetryBaseDelay == 0 {
		config.ProviderConfig.RetryBaseDelay = 1 * time.Second
	}
	if config.ProviderConfig.RequestTimeout == 0 {
		config.ProviderConfig.RequestTimeout = 60 * time.Second
	}

	return &Provider{
		config: config,
		client: &http.Client{
			Timeout: config.ProviderConfig.RequestTimeout,
		},
		logger: logger,
	}, nil
}

// Adjudicate sends the prepared image and report context to Gemini and parses
// the structured verdict out of its response.
func (p *Provider) Adjudicate(ctx context.Context, params ai.AdjudicateParams) (*ai.Verdict, error) {
	// Validate input
	if err := p.validateParams(params); err != nil {
		return nil, ai.WrapError("adjudicate", err)
	}

	// Build the request body once; each retry attempt reuses it
	bodyBytes, err := p.buildRequestBody(params)
	if err != nil {
		return nil, ai.WrapError("build request", err)
	}

	// Execute with retry for transient transport errors
	resp, err := p.executeWithRetry(ctx, bodyBytes)
	if err != nil {
		return nil, ai.WrapError("execute request", err)
	}

	// Parse the response defensively
	verdict, err := p.parseVerdictResponse(resp)
	if err != nil {
		return nil, ai.WrapError("parse response", err)
	}

	return verdict, nil
}

// validateParams validates the adjudication parameters
func (p *Provider) validateParams(params ai.AdjudicateParams) error {
	if len(params.ImageData) == 0 {
		return fmt.Errorf("image data is required")
	}
	if len(params.ImageData) > MaxImageSize {
		return fmt.Errorf("image size %d exceeds maximum %d", len(params.ImageData), MaxImageSize)
	}
	if params.ContentType == "" {
		return fmt.Errorf("content type is required")
	}
	validTypes := map[string]bool{
		"image/jpeg": true,
		"image/png":  true,
		"image/webp": true,
	}
	if !validTypes[params.ContentType] {
		return fmt.Errorf("unsupported content type %s", params.ContentType)
	}
	return nil
}

// buildRequestBody builds the generateContent JSON body with the image inline
func (p *Provider) buildRequestBody(params ai.AdjudicateParams) ([]byte, error) {
	reqBody := apiRequest{
		Contents: []apiContent{
			{
				Parts: []apiPart{
					{
						InlineData: &apiInlineData{
							MimeType: params.ContentType,
							Data:     base64.StdEncoding.EncodeToString(params.ImageData),
						},
					},
					{
						Text: buildVerdictPrompt(params.Context),
					},
				},
			},
		},
		GenerationConfig: apiGenerationConfig{
			Temperature:     0.1,
			MaxOutputTokens: maxOutputTokens,
		},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	return bodyBytes, nil
}

// executeWithRetry executes the request with exponential backoff on
// transient errors. The request is rebuilt per attempt from the body bytes.
func (p *Provider) executeWithRetry(ctx context.Context, bodyBytes []byte) (*apiResponse, error) {
	backoff := retry.WithMaxRetries(
		uint64(p.config.ProviderConfig.MaxRetries),
		retry.NewExponential(p.config.ProviderConfig.RetryBaseDelay),
	)

	var resp *apiResponse
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		r, err := p.executeRequest(ctx, bodyBytes)
		if err != nil {
			if ai.IsRetryable(err) {
				p.logger.Info("Retrying AI request", "error", err)
				return retry.RetryableError(err)
			}
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// executeRequest executes a single HTTP request
func (p *Provider) executeRequest(ctx context.Context, bodyBytes []byte) (*apiResponse, error) {
	url := fmt.Sprintf("%s/models/%s:generateContent", p.config.BaseURL, p.config.Model)

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", p.config.APIKey)

	resp, err := p.client.Do(req)
	if err != nil {
		// Network errors are typically retryable
		return nil, ai.EAIUnavailable
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, p.mapHTTPError(resp.StatusCode, respBytes)
	}

	var apiResp apiResponse
	if err := json.Unmarshal(respBytes, &apiResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	return &apiResp, nil
}

// mapHTTPError maps transport status classes to user-presentable errors
func (p *Provider) mapHTTPError(statusCode int, body []byte) error {
	var errResp apiErrorResponse
	_ = json.Unmarshal(body, &errResp)

	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: model %q", ai.EAIModelMissing, p.config.Model)
	case http.StatusServiceUnavailable:
		return ai.EAIBusy
	case http.StatusTooManyRequests:
		return ai.EAIRateLimit
	case http.StatusUnauthorized, http.StatusForbidden:
		return ai.EAIUnauthorized
	case http.StatusBadGateway, http.StatusGatewayTimeout:
		return ai.EAIUnavailable
	default:
		if errResp.Error.Message != "" {
			return fmt.Errorf("API error (status %d): %s", statusCode, errResp.Error.Message)
		}
		return fmt.Errorf("API error (status %d)", statusCode)
	}
}

// parseVerdictResponse extracts a Verdict from a 200 response. The model is
// told to return strict JSON but its output is still treated as hostile:
// truncation, safety blocks, markdown fences and partial JSON all have to be
// caught before a decode is attempted.
func (p *Provider) parseVerdictResponse(resp *apiResponse) (*ai.Verdict, error) {
	// Application-level error envelope despite the 200
	if resp.Error != nil {
		return nil, fmt.Errorf("ai service error: %s", resp.Error.Message)
	}

	if len(resp.Candidates) == 0 {
		// A blocked prompt yields no candidates but names its reason
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return nil, fmt.Errorf("%w: %s", ai.EAISafetyBlocked, resp.PromptFeedback.BlockReason)
		}
		return nil, ai.EAINoResponse
	}

	candidate := resp.Candidates[0]

	switch candidate.FinishReason {
	case "", "STOP":
		// Normal completion
	case "MAX_TOKENS":
		return nil, ai.EAITruncated
	case "SAFETY":
		return nil, ai.EAISafetyBlocked
	default:
		// Unexpected but not necessarily fatal (e.g. RECITATION with content)
		p.logger.Warn("Unexpected finish reason", "finish_reason", candidate.FinishReason)
	}

	var text string
	for _, part := range candidate.Content.Parts {
		if part.Text != "" {
			text = part.Text
			break
		}
	}
	if text == "" {
		return nil, ai.EAINoResponse
	}

	text = strings.TrimSpace(stripCodeFences(text))

	// Unbalanced braces mean the JSON was cut off mid-object; fail fast
	// instead of handing a lenient parser half a document.
	if strings.Count(text, "{") != strings.Count(text, "}") {
		return nil, fmt.Errorf("%w: unbalanced braces", ai.EAITruncated)
	}
	if !strings.HasPrefix(text, "{") || !strings.HasSuffix(text, "}") {
		return nil, fmt.Errorf("%w: not a JSON object", ai.EAIMalformed)
	}

	var output verdictOutput
	if err := json.Unmarshal([]byte(text), &output); err != nil {
		return nil, fmt.Errorf("%w: %v", ai.EAIMalformed, err)
	}

	verdict := &ai.Verdict{
		IsValid:       output.IsValid,
		Confidence:    output.Confidence,
		DetectedIssue: output.DetectedIssue,
		Severity:      output.Severity,
		Reasons:       output.Reasons,
	}
	verdict.ClampSeverity()
	if verdict.Confidence < 0 {
		verdict.Confidence = 0
	}
	if verdict.Confidence > 1 {
		verdict.Confidence = 1
	}

	return verdict, nil
}

// stripCodeFences removes an optional markdown code fence wrapper
// (```json ... ``` or ``` ... ```) around the raw response text.
func stripCodeFences(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return text
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return trimmed
}

// API request/response types

type apiRequest struct {
	Contents         []apiContent        `json:"contents"`
	GenerationConfig apiGenerationConfig `json:"generationConfig"`
}

type apiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type apiContent struct {
	Parts []apiPart `json:"parts"`
}

type apiPart struct {
	Text       string         `json:"text,omitempty"`
	InlineData *apiInlineData `json:"inlineData,omitempty"`
}

type apiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type apiResponse struct {
	Candidates     []apiCandidate     `json:"candidates"`
	PromptFeedback *apiPromptFeedback `json:"promptFeedback"`
	Error          *apiError          `json:"error"`
}

type apiCandidate struct {
	Content      apiContent `json:"content"`
	FinishReason string     `json:"finishReason"`
}

type apiPromptFeedback struct {
	BlockReason string `json:"blockReason"`
}

type apiErrorResponse struct {
	Error apiError `json:"error"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// verdictOutput is the JSON structure the model is instructed to return
type verdictOutput struct {
	IsValid       bool     `json:"is_valid"`
	Confidence    float64  `json:"confidence"`
	DetectedIssue string   `json:"detected_issue"`
	Severity      int      `json:"severity"`
	Reasons       []string `json:"reasons"`
}
