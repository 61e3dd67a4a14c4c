// Package diagnosis implements the remote AI diagnosis client over an
// OpenAI-compatible chat-completions endpoint.
package diagnosis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/GanQiao1990/ecg-receiver-standalone/internal/ports"
)

// Config holds the connection details of the diagnosis service.
type Config struct {
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
}

func (c *Config) ApplyDefaults() {
	if c.Model == "" {
		c.Model = "gemini-2.5-flash"
	}
	c.Endpoint = strings.TrimRight(c.Endpoint, "/")
}

func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return errors.New("diagnosis endpoint is required")
	}
	return nil
}

// Client dispatches one window of ECG data to the model and parses its
// structured verdict. Cancellation and timeouts are driven entirely by the
// caller's context; the embedded http.Client carries no timeout of its own.
type Client struct {
	cfg  Config
	http *http.Client
}

func NewClient(cfg Config) (*Client, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Client{cfg: cfg, http: &http.Client{}}, nil
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
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

// verdict is the JSON document the model is instructed to return.
type verdict struct {
	PrimaryDiagnosis string          `json:"primary_diagnosis"`
	Severity         string          `json:"severity"`
	Confidence       float64         `json:"confidence"`
	Recommendations  recommendations `json:"recommendations"`
}

type recommendations struct {
	Immediate []string `json:"immediate_actions"`
	FollowUp  []string `json:"follow_up"`
	Lifestyle []string `json:"lifestyle"`
}

// UnmarshalJSON accepts either the structured object form or a bare array.
func (r *recommendations) UnmarshalJSON(b []byte) error {
	type alias recommendations
	var obj alias
	if err := json.Unmarshal(b, &obj); err == nil {
		*r = recommendations(obj)
		return nil
	}
	var flat []string
	if err := json.Unmarshal(b, &flat); err != nil {
		return err
	}
	r.Immediate = flat
	return nil
}

func (r recommendations) flatten() []string {
	out := make([]string, 0, len(r.Immediate)+len(r.FollowUp)+len(r.Lifestyle))
	out = append(out, r.Immediate...)
	out = append(out, r.FollowUp...)
	out = append(out, r.Lifestyle...)
	return out
}

func (c *Client) Diagnose(ctx context.Context, req *ports.DiagnosisRequest) (*ports.DiagnosisResult, error) {
	body, err := json.Marshal(chatRequest{
		Model:       c.cfg.Model,
		Messages:    []chatMessage{{Role: "user", Content: buildPrompt(req)}},
		Temperature: 0.1,
		MaxTokens:   2000,
	})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.Endpoint+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ports.ErrUnreachable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, ports.ErrUnauthorized
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, ports.ErrRateLimited
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %s", ports.ErrUnreachable, resp.Status)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: status %s", ports.ErrInvalidResponse, resp.Status)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ports.ErrUnreachable, err)
	}

	var chat chatResponse
	if err := json.Unmarshal(raw, &chat); err != nil || len(chat.Choices) == 0 {
		return nil, fmt.Errorf("%w: no completion content", ports.ErrInvalidResponse)
	}

	var v verdict
	content := stripFences(chat.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(content), &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ports.ErrInvalidResponse, err)
	}
	if v.PrimaryDiagnosis == "" {
		return nil, fmt.Errorf("%w: missing primary_diagnosis", ports.ErrInvalidResponse)
	}

	return &ports.DiagnosisResult{
		Finding:         v.PrimaryDiagnosis,
		Severity:        v.Severity,
		Confidence:      v.Confidence,
		Recommendations: v.Recommendations.flatten(),
	}, nil
}

// stripFences removes a surrounding markdown code fence, which models add
// despite instructions not to.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}

func buildPrompt(req *ports.DiagnosisRequest) string {
	var b strings.Builder
	b.WriteString("You are an expert cardiologist analyzing ECG data. ")
	b.WriteString("Provide a heart condition assessment for the following window.\n\n")

	sum := req.Summary
	fmt.Fprintf(&b, "Recording: %d samples over %.1f s at %.0f Hz\n",
		sum.SampleCount, sum.DurationSecs, req.SampleRateHz)
	fmt.Fprintf(&b, "Mean %.2f, std %.2f, range %.2f..%.2f, peak-to-peak %.2f, RMS %.2f\n",
		sum.Mean, sum.StdDev, sum.Min, sum.Max, sum.PeakToPeak, sum.RMS)
	if sum.HeartRateBPM > 0 {
		fmt.Fprintf(&b, "Heart rate: %.1f BPM over %d detected beats\n", sum.HeartRateBPM, sum.PeakCount)
	}
	if sum.MeanRRMillis > 0 {
		fmt.Fprintf(&b, "HRV: mean RR %.1f ms, SDNN %.1f ms, RMSSD %.1f ms\n",
			sum.MeanRRMillis, sum.SDNNMillis, sum.RMSSDMillis)
	}

	if p := req.Patient; p != nil {
		b.WriteString("\nPatient:\n")
		if p.Age > 0 {
			fmt.Fprintf(&b, "- age: %d\n", p.Age)
		}
		if p.Gender != "" {
			fmt.Fprintf(&b, "- gender: %s\n", p.Gender)
		}
		if p.Symptoms != "" {
			fmt.Fprintf(&b, "- symptoms: %s\n", p.Symptoms)
		}
	}

	if n := len(req.Samples); n > 0 {
		head := req.Samples
		if n > 100 {
			head = head[:100]
		}
		b.WriteString("\nFirst raw values: ")
		for i, s := range head {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%.1f", s.Value)
		}
		b.WriteString("\n")
	}

	b.WriteString(`
Respond with ONLY a JSON object of this shape:
{
  "primary_diagnosis": "...",
  "severity": "low|moderate|high|critical",
  "confidence": 0.0,
  "recommendations": {
    "immediate_actions": [],
    "follow_up": [],
    "lifestyle": []
  }
}`)
	return b.String()
}

var _ ports.DiagnosisClient = (*Client)(nil)
