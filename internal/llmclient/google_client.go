// File: internal/llmclient/google_client.go
package llmclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/xkilldash9x/selfheal/api/schemas"
	"github.com/xkilldash9x/selfheal/internal/config"
)

// ErrEmptyResponse is returned when the model produced no text.
var ErrEmptyResponse = errors.New("gemini returned an empty response")

// maxGenerateRetries bounds the retries of one Generate call.
const maxGenerateRetries = 3

// GoogleClient implements schemas.LLMClient on top of the genai SDK.
type GoogleClient struct {
	client  *genai.Client
	cfg     config.LLMModelConfig
	limiter *rate.Limiter
	logger  *zap.Logger
	// newBackOff builds the retry schedule for one Generate call.
	newBackOff func() backoff.BackOff
}

// NewGoogleClient creates a client for a single Gemini model. The limiter may
// be nil, in which case requests are not throttled. It is usually shared
// between all clients built from one router config.
func NewGoogleClient(ctx context.Context, cfg config.LLMModelConfig, limiter *rate.Limiter, logger *zap.Logger) (*GoogleClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("gemini model name is required")
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.Endpoint != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.Endpoint}
	}
	if cfg.APITimeout > 0 {
		clientCfg.HTTPClient = &http.Client{Timeout: cfg.APITimeout}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	c := &GoogleClient{
		client:  client,
		cfg:     cfg,
		limiter: limiter,
		logger:  logger.Named("llm_client.gemini").With(zap.String("model", cfg.Model)),
	}
	c.newBackOff = c.defaultBackOff
	return c, nil
}

// defaultBackOff retries with exponential delays, never for longer than the
// configured request timeout.
func (c *GoogleClient) defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 2 * time.Minute
	if c.cfg.APITimeout > 0 {
		b.MaxElapsedTime = c.cfg.APITimeout
	}
	return backoff.WithMaxRetries(b, maxGenerateRetries)
}

// retryable reports whether a GenerateContent error is transient.
func retryable(err error) bool {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusServiceUnavailable:
			return true
		}
		return false
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// Generate sends the prompts to the model and returns the response text.
func (c *GoogleClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limiter wait: %w", err)
		}
	}

	var resp *genai.GenerateContentResponse
	var text string
	start := time.Now()
	operation := func() error {
		r, err := c.client.Models.GenerateContent(ctx, c.cfg.Model, genai.Text(req.UserPrompt), c.generationConfig(req))
		if err != nil {
			err = fmt.Errorf("gemini generate content: %w", err)
			if !retryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		resp, text = r, r.Text()
		if text == "" {
			return backoff.Permanent(ErrEmptyResponse)
		}
		return nil
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Warn("Gemini request failed, retrying...", zap.Error(err), zap.Duration("wait", wait))
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(c.newBackOff(), ctx), notify); err != nil {
		if !errors.Is(err, ErrEmptyResponse) {
			c.logger.Warn("Gemini request failed", zap.Error(err), zap.Duration("duration", time.Since(start)))
		}
		return "", err
	}

	fields := []zap.Field{zap.Duration("duration", time.Since(start))}
	if usage := resp.UsageMetadata; usage != nil {
		fields = append(fields,
			zap.Int32("prompt_tokens", usage.PromptTokenCount),
			zap.Int32("completion_tokens", usage.CandidatesTokenCount),
			zap.Int32("total_tokens", usage.TotalTokenCount),
		)
	}
	c.logger.Debug("LLM generation complete", fields...)
	return text, nil
}

// generationConfig merges per-request options over the model defaults.
func (c *GoogleClient) generationConfig(req schemas.GenerationRequest) *genai.GenerateContentConfig {
	gc := &genai.GenerateContentConfig{}
	if req.SystemPrompt != "" {
		gc.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}

	temperature := c.cfg.Temperature
	if req.Options.Temperature > 0 {
		temperature = float32(req.Options.Temperature)
	}
	gc.Temperature = genai.Ptr(temperature)

	topP := c.cfg.TopP
	if req.Options.TopP > 0 {
		topP = float32(req.Options.TopP)
	}
	if topP > 0 {
		gc.TopP = genai.Ptr(topP)
	}

	topK := c.cfg.TopK
	if req.Options.TopK > 0 {
		topK = req.Options.TopK
	}
	if topK > 0 {
		gc.TopK = genai.Ptr(float32(topK))
	}

	if c.cfg.MaxTokens > 0 {
		gc.MaxOutputTokens = int32(c.cfg.MaxTokens)
	}
	if req.Options.ForceJSONFormat {
		gc.ResponseMIMEType = "application/json"
	}
	return gc
}

// Close releases client resources. The genai client holds no connections of
// its own beyond the shared HTTP transport.
func (c *GoogleClient) Close() error {
	return nil
}
