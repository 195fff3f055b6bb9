package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mbd888/fraudwatch/internal/transaction"
)

// Errors returned by the remote path. All of them mean the same thing to the
// gateway: fall back to the rule table.
var (
	ErrNoCredential = errors.New("classifier API key not configured")
	ErrNoVerdict    = errors.New("no parseable verdict in response")
)

const systemPrompt = "You are a fraud detection AI. Respond ONLY with valid JSON."

// HTTPRemote calls an OpenAI-compatible chat completions endpoint and
// extracts a structured verdict from the response text.
type HTTPRemote struct {
	url        string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewHTTPRemote creates a remote classifier client. The timeout bounds the
// whole call so a hung upstream cannot stall the simulation schedule.
func NewHTTPRemote(url, apiKey, model string, timeout time.Duration) *HTTPRemote {
	return &HTTPRemote{
		url:    url,
		apiKey: apiKey,
		model:  model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
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
}

// verdictPayload is the strict JSON object the model is instructed to emit.
type verdictPayload struct {
	FraudRiskScore float64 `json:"fraudRiskScore"`
	RiskLevel      string  `json:"riskLevel"`
	Reason         string  `json:"reason"`
}

// Analyze requests a risk verdict for the transaction. Every failure mode
// (credential, transport, status, parse) returns an error; no partial result
// is ever used.
func (r *HTTPRemote) Analyze(ctx context.Context, tx *transaction.Transaction) (*Verdict, error) {
	if r.apiKey == "" {
		return nil, ErrNoCredential
	}

	body, err := json.Marshal(chatRequest{
		Model: r.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: buildPrompt(tx)},
		},
		Temperature: 0.1,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+r.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("classifier request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("classifier API returned status %d", resp.StatusCode)
	}

	var chat chatResponse
	if err := json.Unmarshal(respBody, &chat); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(chat.Choices) == 0 {
		return nil, ErrNoVerdict
	}

	payload, ok := extractVerdict(chat.Choices[0].Message.Content)
	if !ok {
		return nil, ErrNoVerdict
	}

	score := int(payload.FraudRiskScore)
	if score < 0 || score > 100 {
		return nil, fmt.Errorf("verdict score %d out of range", score)
	}
	if !transaction.ValidRiskLevel(payload.RiskLevel) {
		return nil, fmt.Errorf("verdict level %q not a known risk band", payload.RiskLevel)
	}
	if payload.Reason == "" {
		return nil, ErrNoVerdict
	}

	return &Verdict{
		Score:  score,
		Level:  payload.RiskLevel,
		Reason: payload.Reason,
	}, nil
}

// buildPrompt summarizes the transaction for the model and demands a strict
// machine-parsable verdict.
func buildPrompt(tx *transaction.Transaction) string {
	return fmt.Sprintf(`Analyze this e-commerce transaction for potential fraud in the Indian context.
Transaction Details:
- Amount: %d
- Location: %s
- Category: %s
- Device: %s
- IP: %s

Response must be ONLY a valid JSON object with:
{
  "fraudRiskScore": (0-100),
  "riskLevel": ("Low", "Medium", or "High"),
  "reason": "short explanation"
}`, tx.Amount, tx.Location, tx.Category, tx.Device, tx.IPAddress)
}

// extractVerdict pulls the first well-formed verdict object out of free text.
// Models wrap JSON in markdown fences or prose often enough that strict
// whole-body decoding is a losing game.
func extractVerdict(text string) (*verdictPayload, bool) {
	for start := 0; start < len(text); start++ {
		if text[start] != '{' {
			continue
		}
		end, ok := matchBrace(text, start)
		if !ok {
			continue
		}
		var payload verdictPayload
		if err := json.Unmarshal([]byte(text[start:end+1]), &payload); err != nil {
			continue
		}
		// Unrelated objects in the surrounding text decode cleanly too;
		// only a payload carrying a risk level counts as a verdict.
		if payload.RiskLevel == "" {
			continue
		}
		return &payload, true
	}
	return nil, false
}

// matchBrace finds the closing brace balancing text[start], skipping braces
// inside JSON string literals.
func matchBrace(text string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}
