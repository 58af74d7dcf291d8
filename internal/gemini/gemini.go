package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sampattai/sarthi/internal/chat"
)

// Client is a minimal Gemini generateContent client.
type Client struct {
	apiKey       string
	endpoint     string
	model        string
	systemPrompt string
	httpClient   *http.Client
}

// NewClient creates a Gemini client. endpoint is the API base, e.g.
// "https://generativelanguage.googleapis.com/v1beta". The client carries no
// timeout of its own; the caller bounds each Generate via its context.
func NewClient(apiKey, endpoint, model, systemPrompt string) *Client {
	return &Client{
		apiKey:       apiKey,
		endpoint:     strings.TrimRight(endpoint, "/"),
		model:        model,
		systemPrompt: systemPrompt,
		httpClient:   &http.Client{},
	}
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generateRequest struct {
	SystemInstruction *content  `json:"system_instruction,omitempty"`
	Contents          []content `json:"contents"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// Generate sends the prior turns plus the live query and returns the
// generated text. Status-class failures return *chat.CollaboratorError;
// anything else wraps chat.ErrCollaboratorUnavailable.
func (c *Client) Generate(ctx context.Context, history []chat.Turn, query string) (string, error) {
	reqBody := generateRequest{
		Contents: make([]content, 0, len(history)+1),
	}
	if c.systemPrompt != "" {
		reqBody.SystemInstruction = &content{Parts: []part{{Text: c.systemPrompt}}}
	}
	for _, turn := range history {
		reqBody.Contents = append(reqBody.Contents, content{
			Role:  wireRole(turn.Role),
			Parts: []part{{Text: turn.Content}},
		})
	}
	reqBody.Contents = append(reqBody.Contents, content{
		Role:  "user",
		Parts: []part{{Text: query}},
	})

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal gemini request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", c.endpoint, c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create gemini request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: gemini request failed: %v", chat.ErrCollaboratorUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: failed reading gemini response: %v", chat.ErrCollaboratorUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &chat.CollaboratorError{Status: resp.StatusCode, Body: truncate(string(body), 400)}
	}

	var parsed generateResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("%w: failed to parse gemini response: %s", chat.ErrCollaboratorUnavailable, truncate(string(body), 400))
	}

	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "(empty model response)", nil
	}

	var sb strings.Builder
	for _, p := range parsed.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "(empty model response)", nil
	}
	return text, nil
}

// wireRole maps internal roles onto the two roles the API accepts. Context
// turns are presented as user content.
func wireRole(role string) string {
	if role == chat.RoleAssistant {
		return "model"
	}
	return "user"
}

func truncate(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars])
}
