package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/huangdanqi/pawprint/internal/httpkit"
)

// OllamaProvider generates text through a local Ollama server using
// the /api/generate endpoint.
type OllamaProvider struct {
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewOllamaProvider creates a provider for the Ollama server at
// baseURL (e.g. http://localhost:11434).
func NewOllamaProvider(baseURL, model string, logger *slog.Logger) *OllamaProvider {
	if logger == nil {
		logger = slog.Default()
	}
	// Small local models can sit for a while before first byte when
	// the model has to be loaded from disk. Allow a generous header
	// timeout; overall control comes from the request context.
	t := httpkit.NewTransport()
	t.ResponseHeaderTimeout = 120 * time.Second

	return &OllamaProvider{
		baseURL: baseURL,
		model:   model,
		logger:  logger.With("provider", "ollama"),
		httpClient: httpkit.NewClient(
			httpkit.WithTimeout(0),
			httpkit.WithTransport(t),
		),
	}
}

// Name implements Provider.
func (p *OllamaProvider) Name() string { return "ollama" }

type ollamaGenerateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	System  string         `json:"system,omitempty"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaGenerateResponse struct {
	Model     string `json:"model"`
	Response  string `json:"response"`
	Done      bool   `json:"done"`
	EvalCount int    `json:"eval_count"`
}

// Generate implements Provider.
func (p *OllamaProvider) Generate(ctx context.Context, req Request) (string, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	options := map[string]any{}
	if req.MaxTokens > 0 {
		options["num_predict"] = req.MaxTokens
	}
	if req.Temperature > 0 {
		options["temperature"] = req.Temperature
	}

	body := ollamaGenerateRequest{
		Model:   p.model,
		Prompt:  req.Prompt,
		System:  req.System,
		Stream:  false,
		Options: options,
	}
	jsonData, err := json.Marshal(body)
	if err != nil {
		return "", &ProviderError{Provider: p.Name(), Err: fmt.Errorf("marshal request: %w", err)}
	}

	p.logger.Log(ctx, LevelTrace, "request payload", "json", string(jsonData))

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/api/generate", bytes.NewReader(jsonData))
	if err != nil {
		return "", &ProviderError{Provider: p.Name(), Err: fmt.Errorf("create request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return "", &ProviderError{Provider: p.Name(), Err: fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody := httpkit.ReadErrorBody(resp.Body, 4096)
		p.logger.Error("API error", "status", resp.StatusCode, "body", errBody)
		return "", &ProviderError{
			Provider: p.Name(),
			Status:   resp.StatusCode,
			Err:      fmt.Errorf("ollama API error: %s", errBody),
		}
	}

	var genResp ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return "", &ProviderError{Provider: p.Name(), Err: fmt.Errorf("decode response: %w", err)}
	}

	p.logger.Debug("response received", "model", genResp.Model, "eval_count", genResp.EvalCount)
	p.logger.Log(ctx, LevelTrace, "response content", "content", genResp.Response)

	return genResp.Response, nil
}

// Ping implements Provider by querying the version endpoint.
func (p *OllamaProvider) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", p.baseURL+"/api/version", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ollama unreachable: %w", err)
	}
	httpkit.DrainAndClose(resp.Body, 4096)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status from ollama: %d", resp.StatusCode)
	}
	return nil
}
