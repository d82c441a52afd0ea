package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var geminiEndpoint = "https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent"

// GeminiGenerator calls the Gemini REST API to turn a goal prompt into a
// structured task plan.
type GeminiGenerator struct {
	apiKey          string
	model           string
	temperature     float64
	maxOutputTokens int
	httpClient      *http.Client
}

func NewGeminiGenerator(apiKey, model string, temperature float64, maxOutputTokens int) *GeminiGenerator {
	if temperature <= 0 {
		temperature = 0.7
	}
	return &GeminiGenerator{
		apiKey:          apiKey,
		model:           model,
		temperature:     temperature,
		maxOutputTokens: maxOutputTokens,
		httpClient:      &http.Client{Timeout: 60 * time.Second},
	}
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
	Config   *geminiGenCfg   `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenCfg struct {
	Temperature      float64 `json:"temperature"`
	MaxOutputTokens  int     `json:"maxOutputTokens,omitempty"`
	ResponseMIMEType string  `json:"responseMimeType,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

func (g *GeminiGenerator) GeneratePlan(ctx context.Context, prompt GoalPrompt) (*GeneratedPlan, UsageStats, error) {
	if g.apiKey == "" {
		return nil, UsageStats{}, ErrNotConfigured
	}
	if strings.TrimSpace(prompt.Goal) == "" {
		return nil, UsageStats{}, ErrInvalidInput
	}

	body, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: buildPrompt(prompt)}}}},
		Config: &geminiGenCfg{
			Temperature:      g.temperature,
			MaxOutputTokens:  g.maxOutputTokens,
			ResponseMIMEType: "application/json",
		},
	})
	if err != nil {
		return nil, UsageStats{}, fmt.Errorf("encoding request: %w", err)
	}

	url := fmt.Sprintf(geminiEndpoint, g.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, UsageStats{}, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, UsageStats{}, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, UsageStats{}, fmt.Errorf("reading response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, UsageStats{}, ErrRateLimitExceeded
	case resp.StatusCode >= 500:
		return nil, UsageStats{}, ErrProviderUnavailable
	case resp.StatusCode != http.StatusOK:
		return nil, UsageStats{}, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(string(raw), 200))
	}

	var decoded geminiResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, UsageStats{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	usage := UsageStats{
		InputTokens:  decoded.UsageMetadata.PromptTokenCount,
		OutputTokens: decoded.UsageMetadata.CandidatesTokenCount,
	}

	if decoded.PromptFeedback.BlockReason != "" {
		return nil, usage, ErrSafetyViolation
	}
	if len(decoded.Candidates) == 0 || len(decoded.Candidates[0].Content.Parts) == 0 {
		return nil, usage, ErrMalformedResponse
	}
	if decoded.Candidates[0].FinishReason == "SAFETY" {
		return nil, usage, ErrSafetyViolation
	}

	plan, err := parsePlanJSON(decoded.Candidates[0].Content.Parts[0].Text)
	if err != nil {
		return nil, usage, err
	}
	return plan, usage, nil
}

// parsePlanJSON decodes the model's JSON output, tolerating markdown code
// fences the model sometimes wraps it in.
func parsePlanJSON(text string) (*GeneratedPlan, error) {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx != -1 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}

	var plan GeneratedPlan
	if err := json.Unmarshal([]byte(text), &plan); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if plan.Title == "" || len(plan.Tasks) == 0 {
		return nil, ErrMalformedResponse
	}
	for _, task := range plan.Tasks {
		if task.DayIndex < 0 || task.Title == "" {
			return nil, ErrMalformedResponse
		}
	}
	return &plan, nil
}

func buildPrompt(prompt GoalPrompt) string {
	var b strings.Builder
	b.WriteString("You are a curriculum planner. Produce a JSON object with fields ")
	b.WriteString(`"title", "description", "icon", and "tasks". Each task has `)
	b.WriteString(`"dayIndex" (0-based position in the working-day calendar), "type" `)
	b.WriteString(`(one of learn, practice, build, review), "title", "description", `)
	b.WriteString(`"durationMinutes", "points", and optional "resources" and "tags". `)
	b.WriteString("Respond with JSON only.\n\n")
	fmt.Fprintf(&b, "Goal: %s\n", prompt.Goal)
	if prompt.Category != "" {
		fmt.Fprintf(&b, "Category: %s\n", prompt.Category)
	}
	if prompt.ExperienceLevel != "" {
		fmt.Fprintf(&b, "Experience level: %s\n", prompt.ExperienceLevel)
	}
	if prompt.HoursPerDay > 0 {
		fmt.Fprintf(&b, "Available hours per day: %d\n", prompt.HoursPerDay)
	}
	if prompt.Schedule != "" {
		fmt.Fprintf(&b, "Schedule: %s\n", prompt.Schedule)
	}
	if prompt.Context != "" {
		fmt.Fprintf(&b, "Additional context: %s\n", prompt.Context)
	}
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
