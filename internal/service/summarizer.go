package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rowan/commitdeck/internal/domain"
	"github.com/rowan/commitdeck/internal/logger"
	"github.com/rowan/commitdeck/internal/prompts"
)

// SummarizerService generates short natural-language annotations for commits
// through an OpenAI-compatible chat completions endpoint. Every failure mode
// collapses to a nil annotation; callers always get a defined value to persist.
type SummarizerService struct {
	client   *resty.Client
	model    string
	endpoint string
	enabled  bool
	log      *logger.Logger
}

// SummarizerConfig holds configuration for the summarizer service.
type SummarizerConfig struct {
	Enabled bool
	Model   string
	APIKey  string
	BaseURL string
}

// NewSummarizerService creates a new summarizer service.
// Parameters:
//   - cfg: summarizer configuration including model and API key.
//   - log: logger for contained failures; nil uses the default logger.
// Returns:
//   - *SummarizerService: initialized client wrapper.
func NewSummarizerService(cfg *SummarizerConfig, log *logger.Logger) *SummarizerService {
	if log == nil {
		log = logger.GetDefault()
	}

	client := resty.New()
	client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	client.SetHeader("Content-Type", "application/json")
	// Set timeout to prevent hanging requests
	client.SetTimeout(60 * time.Second)

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}

	return &SummarizerService{
		client:   client,
		model:    cfg.Model,
		endpoint: baseURL + "/chat/completions",
		enabled:  cfg.Enabled && cfg.APIKey != "",
		log:      log,
	}
}

// Enabled reports whether annotation is available for this run.
func (s *SummarizerService) Enabled() bool {
	return s.enabled
}

// GetModel returns the model name being used.
func (s *SummarizerService) GetModel() string {
	return s.model
}

// OpenAI-compatible Chat Completion API request/response structures
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float32       `json:"temperature"`
	Stream      bool          `json:"stream"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Annotate generates a summary for a commit detail.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - detail: full commit with file stats.
// Returns:
//   - *string: trimmed summary text, or nil when disabled, unreachable,
//     erroring, or returning empty content.
func (s *SummarizerService) Annotate(ctx context.Context, detail *domain.CommitDetail) *string {
	if !s.enabled {
		return nil
	}

	text, err := s.complete(ctx, buildSummaryPrompt(detail))
	if err != nil {
		s.log.WithFields(logger.Fields{
			logger.FieldRepo:   detail.Repository,
			logger.FieldCommit: detail.ShortSHA,
		}).WithError(err).Warn("Annotation failed, persisting without summary")
		return nil
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	return &text
}

// complete performs one deterministic (non-streaming, temperature 0) request.
func (s *SummarizerService) complete(ctx context.Context, userPrompt string) (string, error) {
	req := chatRequest{
		Model: s.model,
		Messages: []chatMessage{
			{Role: "system", Content: prompts.SummarySystemPrompt},
			{Role: "user", Content: userPrompt},
		},
		MaxTokens:   300,
		Temperature: 0,
		Stream:      false,
	}

	var resp chatResponse
	httpResp, err := s.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		Post(s.endpoint)

	if err != nil {
		return "", fmt.Errorf("failed to call summarizer API: %w", err)
	}

	if httpResp.StatusCode() < 200 || httpResp.StatusCode() >= 300 {
		errorMsg := fmt.Sprintf("HTTP %d", httpResp.StatusCode())
		if resp.Error != nil {
			errorMsg = fmt.Sprintf("HTTP %d: %s", httpResp.StatusCode(), resp.Error.Message)
		} else if len(httpResp.Body()) > 0 {
			errorMsg = fmt.Sprintf("HTTP %d: %s", httpResp.StatusCode(), string(httpResp.Body()))
		}
		return "", fmt.Errorf("summarizer API returned error: %s", errorMsg)
	}

	if resp.Error != nil {
		return "", fmt.Errorf("summarizer API error: %s", resp.Error.Message)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in summarizer response (status: %d)", httpResp.StatusCode())
	}

	return resp.Choices[0].Message.Content, nil
}

// buildSummaryPrompt renders the fixed template: commit message, per-file
// bullet list, aggregate stats. Deterministic for a given detail.
func buildSummaryPrompt(detail *domain.CommitDetail) string {
	var files strings.Builder
	for _, f := range detail.Files {
		fmt.Fprintf(&files, "- %s (%s, +%d -%d)\n", f.Filename, f.Status, f.Additions, f.Deletions)
	}
	if files.Len() == 0 {
		files.WriteString("- (no file details)\n")
	}

	return fmt.Sprintf(prompts.SummaryUserTemplate,
		strings.TrimSpace(detail.Message),
		files.String(),
		len(detail.Files),
		detail.Additions,
		detail.Deletions,
	)
}
