package enrich

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/packratdev/packrat/internal/config"
	"github.com/packratdev/packrat/internal/types"
)

// ClaudeAnalyzer implements Analyzer against the Anthropic API using
// vision messages: each call sends the item's curated crops plus the
// first-pass fields and asks for a structured JSON appraisal.
type ClaudeAnalyzer struct {
	client  *anthropic.Client
	model   string
	cfg     config.EnrichConfig
	logger  *slog.Logger
	sem     *semaphore.Weighted
	limiter *rate.Limiter
}

// NewClaudeAnalyzer creates an Anthropic-backed analyzer. The API key
// falls back to the ANTHROPIC_API_KEY environment variable.
func NewClaudeAnalyzer(apiKey string, cfg config.EnrichConfig, logger *slog.Logger) (*ClaudeAnalyzer, error) {
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY not set")
		}
	}
	if logger == nil {
		logger = slog.Default()
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))

	a := &ClaudeAnalyzer{
		client: &client,
		model:  cfg.Model,
		cfg:    cfg,
		logger: logger,
	}
	if cfg.MaxConcurrentCalls > 0 {
		a.sem = semaphore.NewWeighted(int64(cfg.MaxConcurrentCalls))
	}
	if cfg.RequestsPerSecond > 0 {
		a.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return a, nil
}

// Analyze sends the item's images to the model and parses the structured
// response. Retries with exponential backoff on transient failures.
func (a *ClaudeAnalyzer) Analyze(ctx context.Context, detection *types.Detection, images []image.Image) (*types.EnrichedFields, error) {
	if len(images) == 0 {
		return nil, fmt.Errorf("no images for detection %s", detection.ID)
	}

	blocks, err := a.imageBlocks(images)
	if err != nil {
		return nil, fmt.Errorf("failed to encode images: %w", err)
	}
	blocks = append(blocks, anthropic.NewTextBlock(buildPrompt(detection)))

	var response *anthropic.Message
	err = a.withRetry(ctx, detection.ID, func(attemptCtx context.Context) error {
		resp, apiErr := a.client.Messages.New(attemptCtx, anthropic.MessageNewParams{
			Model:     anthropic.Model(a.model),
			MaxTokens: 1024,
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(blocks...),
			},
		})
		if apiErr != nil {
			return apiErr
		}
		response = resp
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic API call failed for %s: %w", detection.ID, err)
	}

	var responseText string
	for _, block := range response.Content {
		if block.Type == "text" {
			responseText += block.Text
		}
	}

	fields, err := parseEnrichment(responseText)
	if err != nil {
		return nil, fmt.Errorf("failed to parse enrichment response for %s: %w", detection.ID, err)
	}

	a.logger.Debug("enrichment call complete",
		"detection", detection.ID,
		"input_tokens", response.Usage.InputTokens,
		"output_tokens", response.Usage.OutputTokens)
	return fields, nil
}

// withRetry runs fn with the concurrency cap, rate limit, per-attempt
// timeout, and exponential backoff applied.
func (a *ClaudeAnalyzer) withRetry(ctx context.Context, id string, fn func(context.Context) error) error {
	if a.sem != nil {
		if err := a.sem.Acquire(ctx, 1); err != nil {
			return fmt.Errorf("failed to acquire API slot: %w", err)
		}
		defer a.sem.Release(1)
	}

	backoff := a.cfg.InitialBackoff
	if backoff <= 0 {
		backoff = time.Second
	}

	var lastErr error
	for attempt := 0; attempt <= a.cfg.MaxRetries; attempt++ {
		if a.limiter != nil {
			if err := a.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		attemptCtx := ctx
		var cancel context.CancelFunc
		if a.cfg.RequestTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, a.cfg.RequestTimeout)
		}
		err := fn(attemptCtx)
		if cancel != nil {
			cancel()
		}
		if err == nil {
			if attempt > 0 {
				a.logger.Info("API call succeeded after retry", "detection", id, "attempts", attempt+1)
			}
			return nil
		}
		lastErr = err

		// The parent context ending is cancellation, not a transient
		// failure; stop immediately.
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if attempt < a.cfg.MaxRetries {
			a.logger.Warn("API call failed, retrying",
				"detection", id, "attempt", attempt+1, "backoff", backoff, "error", err)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff *= 2
		}
	}
	return lastErr
}

// imageBlocks encodes curated crops as base64 JPEG content blocks.
func (a *ClaudeAnalyzer) imageBlocks(images []image.Image) ([]anthropic.ContentBlockParamUnion, error) {
	blocks := make([]anthropic.ContentBlockParamUnion, 0, len(images)+1)
	for _, img := range images {
		if img == nil {
			continue
		}
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
			return nil, err
		}
		encoded := base64.StdEncoding.EncodeToString(buf.Bytes())
		blocks = append(blocks, anthropic.NewImageBlockBase64("image/jpeg", encoded))
	}
	if len(blocks) == 0 {
		return nil, fmt.Errorf("no encodable images")
	}
	return blocks, nil
}

func buildPrompt(d *types.Detection) string {
	var b strings.Builder
	b.WriteString("You are appraising one household item for a home inventory. ")
	b.WriteString("The photos above all show the same item.\n\n")
	b.WriteString("First-pass detection:\n")
	fmt.Fprintf(&b, "- Title: %s\n", d.Title)
	if d.Description != "" {
		fmt.Fprintf(&b, "- Description: %s\n", d.Description)
	}
	if d.Category != "" {
		fmt.Fprintf(&b, "- Category: %s\n", d.Category)
	}
	if d.Make != "" || d.Model != "" {
		fmt.Fprintf(&b, "- Make/Model: %s %s\n", d.Make, d.Model)
	}
	if d.EstimatedPriceText != "" {
		fmt.Fprintf(&b, "- Estimated price: %s\n", d.EstimatedPriceText)
	}
	b.WriteString(`
Respond with ONLY a JSON object, no prose, with these keys (omit any you
cannot determine from the photos):
{
  "title": "improved short title",
  "description": "one or two sentences",
  "category": "item category",
  "make": "manufacturer",
  "model": "model name or number",
  "condition": "new | like new | good | fair | poor",
  "dimensions": "approximate W x D x H",
  "weight": "approximate weight",
  "estimated_price": "replacement value in USD",
  "serial_number": "if visible"
}`)
	return b.String()
}

// parseEnrichment decodes the model's JSON reply, tolerating markdown
// code fences and surrounding prose.
func parseEnrichment(text string) (*types.EnrichedFields, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in response: %s", truncate(text, 120))
	}

	var fields types.EnrichedFields
	if err := json.Unmarshal([]byte(text[start:end+1]), &fields); err != nil {
		return nil, fmt.Errorf("malformed JSON in response: %w", err)
	}
	return &fields, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
