// Package gemini provides a client for the Google Gemini generateContent API.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"gradeflow/internal/core"
	"gradeflow/internal/httpclient"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// Part is one piece of request content: text or inline image data.
type Part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *InlineData `json:"inline_data,omitempty"`
}

// InlineData carries base64-encoded media.
type InlineData struct {
	MIMEType string `json:"mime_type"`
	Data     []byte `json:"data"` // encoding/json base64-encodes []byte
}

// TextPart builds a text content part.
func TextPart(text string) Part {
	return Part{Text: text}
}

// ImagePart builds an inline image part. Scanned pages are JPEG throughout
// the pipeline.
func ImagePart(data []byte) Part {
	return Part{InlineData: &InlineData{MIMEType: "image/jpeg", Data: data}}
}

// GenerationConfig mirrors the generateContent generationConfig payload.
type GenerationConfig struct {
	Temperature      float64 `json:"temperature"`
	TopP             float64 `json:"topP"`
	MaxOutputTokens  int     `json:"maxOutputTokens,omitempty"`
	ResponseMIMEType string  `json:"responseMimeType,omitempty"`
}

// SafetySetting configures one harm-category threshold.
type SafetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

// DefaultSafetySettings returns the pipeline's standard thresholds. Exam
// answers occasionally trip the stricter defaults, so everything is relaxed
// to BLOCK_ONLY_HIGH.
func DefaultSafetySettings() []SafetySetting {
	categories := []string{
		"HARM_CATEGORY_HATE_SPEECH",
		"HARM_CATEGORY_DANGEROUS_CONTENT",
		"HARM_CATEGORY_SEXUALLY_EXPLICIT",
		"HARM_CATEGORY_HARASSMENT",
	}
	settings := make([]SafetySetting, 0, len(categories))
	for _, c := range categories {
		settings = append(settings, SafetySetting{Category: c, Threshold: "BLOCK_ONLY_HIGH"})
	}
	return settings
}

type content struct {
	Role  string `json:"role"`
	Parts []Part `json:"parts"`
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig GenerationConfig `json:"generationConfig"`
	SafetySettings   []SafetySetting  `json:"safetySettings,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

// Client calls the Gemini REST API. The model is never assumed to be
// deterministic across calls, even with temperature 0; the caching layer
// above this client exists for that reason.
type Client struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
}

// New creates a Gemini client with a per-call wall-clock timeout.
func New(apiKey string, timeout time.Duration) *Client {
	return &Client{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		httpClient: httpclient.New(timeout),
	}
}

// SetBaseURL overrides the API endpoint (tests point this at a fake server).
func (c *Client) SetBaseURL(url string) {
	c.baseURL = strings.TrimRight(url, "/")
}

// GenerateContent sends one prompt (text plus optional media parts) to the
// given model and returns the concatenated text of the first candidate.
// Errors are classified through the core taxonomy so the retry wrapper can
// distinguish transient failures from hopeless ones.
func (c *Client) GenerateContent(ctx context.Context, model string, parts []Part, cfg GenerationConfig) (string, error) {
	reqBody := generateRequest{
		Contents:         []content{{Role: "user", Parts: parts}},
		GenerationConfig: cfg,
		SafetySettings:   DefaultSafetySettings(),
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", core.NewInvalidInputError("failed to marshal request", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", core.NewInvalidInputError("failed to create request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", core.NewUpstreamError(0, "failed to send request: "+err.Error(), err)
	}
	defer func() {
		_ = resp.Body.Close() //nolint:errcheck
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", core.NewUpstreamError(resp.StatusCode, "failed to read response: "+err.Error(), err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", core.ParseAPIError(resp.StatusCode, respBody, nil)
	}

	var genResp generateResponse
	if err := json.Unmarshal(respBody, &genResp); err != nil {
		return "", core.NewParseError("failed to unmarshal response", err)
	}

	if genResp.PromptFeedback != nil && genResp.PromptFeedback.BlockReason != "" {
		return "", core.NewInvalidInputError("prompt blocked: "+genResp.PromptFeedback.BlockReason, nil)
	}
	if len(genResp.Candidates) == 0 {
		return "", core.NewParseError("response contained no candidates", nil)
	}

	var sb strings.Builder
	for _, p := range genResp.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", core.NewParseError("response candidate was empty", nil)
	}
	return text, nil
}
