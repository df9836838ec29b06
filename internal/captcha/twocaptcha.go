package captcha

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/trose/ice-locator-go/internal/types"
)

const (
	twoCaptchaBaseURL    = "https://api.2captcha.com"
	twoCaptchaCreateTask = "/createTask"
	twoCaptchaGetResult  = "/getTaskResult"

	twoCaptchaPollInterval   = 5 * time.Second
	twoCaptchaDefaultTimeout = 120 * time.Second
)

// TwoCaptchaProvider implements Provider against the 2Captcha task API.
type TwoCaptchaProvider struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
	timeout    time.Duration
}

// TwoCaptchaConfig configures the 2Captcha provider.
type TwoCaptchaConfig struct {
	APIKey  string
	Timeout time.Duration
	BaseURL string // override for testing
}

// NewTwoCaptchaProvider creates a 2Captcha provider.
func NewTwoCaptchaProvider(cfg TwoCaptchaConfig) *TwoCaptchaProvider {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = twoCaptchaDefaultTimeout
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = twoCaptchaBaseURL
	}
	return &TwoCaptchaProvider{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		timeout: timeout,
		httpClient: &http.Client{
			Timeout: timeout + 10*time.Second,
		},
	}
}

// Name returns the provider name.
func (p *TwoCaptchaProvider) Name() string { return "2captcha" }

// IsConfigured returns true if an API key is set.
func (p *TwoCaptchaProvider) IsConfigured() bool { return p.apiKey != "" }

// Supports reports variant coverage.
func (p *TwoCaptchaProvider) Supports(v Variant) bool {
	switch v {
	case RecaptchaV2, RecaptchaV3, HCaptcha, FunCaptcha, Text:
		return true
	}
	return false
}

type twoCaptchaTask struct {
	Type       string `json:"type"`
	WebsiteURL string `json:"websiteURL,omitempty"`
	WebsiteKey string `json:"websiteKey,omitempty"`
	Comment    string `json:"comment,omitempty"`
	MinScore   float64 `json:"minScore,omitempty"`
}

type twoCaptchaCreateRequest struct {
	ClientKey string         `json:"clientKey"`
	Task      twoCaptchaTask `json:"task"`
}

type twoCaptchaCreateResponse struct {
	ErrorID          int    `json:"errorId"`
	ErrorCode        string `json:"errorCode,omitempty"`
	ErrorDescription string `json:"errorDescription,omitempty"`
	TaskID           int64  `json:"taskId,omitempty"`
}

type twoCaptchaResultRequest struct {
	ClientKey string `json:"clientKey"`
	TaskID    int64  `json:"taskId"`
}

type twoCaptchaSolution struct {
	GRecaptchaResponse string `json:"gRecaptchaResponse,omitempty"`
	Token              string `json:"token,omitempty"`
	Text               string `json:"text,omitempty"`
}

type twoCaptchaResultResponse struct {
	ErrorID          int                 `json:"errorId"`
	ErrorCode        string              `json:"errorCode,omitempty"`
	ErrorDescription string              `json:"errorDescription,omitempty"`
	Status           string              `json:"status"` // "processing" or "ready"
	Solution         *twoCaptchaSolution `json:"solution,omitempty"`
}

// taskFor maps a challenge to a 2Captcha task specification.
func (p *TwoCaptchaProvider) taskFor(ch *Challenge) (twoCaptchaTask, error) {
	switch ch.Variant {
	case RecaptchaV2:
		return twoCaptchaTask{Type: "RecaptchaV2TaskProxyless", WebsiteURL: ch.PageURL, WebsiteKey: ch.SiteKey}, nil
	case RecaptchaV3:
		return twoCaptchaTask{Type: "RecaptchaV3TaskProxyless", WebsiteURL: ch.PageURL, WebsiteKey: ch.SiteKey, MinScore: 0.3}, nil
	case HCaptcha:
		return twoCaptchaTask{Type: "HCaptchaTaskProxyless", WebsiteURL: ch.PageURL, WebsiteKey: ch.SiteKey}, nil
	case FunCaptcha:
		return twoCaptchaTask{Type: "FunCaptchaTaskProxyless", WebsiteURL: ch.PageURL, WebsiteKey: ch.SiteKey}, nil
	case Text:
		return twoCaptchaTask{Type: "TextCaptchaTask", Comment: ch.Question}, nil
	default:
		return twoCaptchaTask{}, fmt.Errorf("2captcha does not support variant %s", ch.Variant)
	}
}

// Solve submits the challenge and polls until a token is ready.
func (p *TwoCaptchaProvider) Solve(ctx context.Context, ch *Challenge) (string, error) {
	if !p.IsConfigured() {
		return "", fmt.Errorf("2captcha API key not configured")
	}

	task, err := p.taskFor(ch)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	taskID, err := p.createTask(ctx, task)
	if err != nil {
		return "", fmt.Errorf("failed to create task: %w", err)
	}

	log.Debug().
		Int64("task_id", taskID).
		Str("variant", string(ch.Variant)).
		Msg("2Captcha task created")

	return p.pollResult(ctx, taskID)
}

func (p *TwoCaptchaProvider) createTask(ctx context.Context, task twoCaptchaTask) (int64, error) {
	var resp twoCaptchaCreateResponse
	if err := p.post(ctx, twoCaptchaCreateTask, twoCaptchaCreateRequest{ClientKey: p.apiKey, Task: task}, &resp); err != nil {
		return 0, err
	}
	if resp.ErrorID != 0 {
		if resp.ErrorCode == "ERROR_ZERO_BALANCE" {
			return 0, types.NewSolverBalanceError(p.Name())
		}
		return 0, types.NewSolverRejectedError(p.Name(), resp.ErrorCode, resp.ErrorDescription)
	}
	return resp.TaskID, nil
}

func (p *TwoCaptchaProvider) pollResult(ctx context.Context, taskID int64) (string, error) {
	ticker := time.NewTicker(twoCaptchaPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", types.NewSolverTimeoutError(p.Name(), fmt.Sprintf("%d", taskID))
		case <-ticker.C:
		}

		var resp twoCaptchaResultResponse
		if err := p.post(ctx, twoCaptchaGetResult, twoCaptchaResultRequest{ClientKey: p.apiKey, TaskID: taskID}, &resp); err != nil {
			return "", err
		}
		if resp.ErrorID != 0 {
			return "", types.NewSolverRejectedError(p.Name(), resp.ErrorCode, resp.ErrorDescription)
		}
		if resp.Status != "ready" {
			continue
		}
		if resp.Solution == nil {
			return "", types.NewSolverRejectedError(p.Name(), "empty_solution", "ready result carried no solution")
		}
		switch {
		case resp.Solution.GRecaptchaResponse != "":
			return resp.Solution.GRecaptchaResponse, nil
		case resp.Solution.Token != "":
			return resp.Solution.Token, nil
		default:
			return resp.Solution.Text, nil
		}
	}
}

func (p *TwoCaptchaProvider) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("2captcha returned HTTP %d", resp.StatusCode)
	}
	return json.Unmarshal(data, out)
}
