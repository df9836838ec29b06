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
	capSolverBaseURL    = "https://api.capsolver.com"
	capSolverCreateTask = "/createTask"
	capSolverGetResult  = "/getTaskResult"

	capSolverPollInterval   = 3 * time.Second
	capSolverDefaultTimeout = 120 * time.Second
)

// CapSolverProvider implements Provider against the CapSolver task API.
type CapSolverProvider struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
	timeout    time.Duration
}

// CapSolverConfig configures the CapSolver provider.
type CapSolverConfig struct {
	APIKey  string
	Timeout time.Duration
	BaseURL string // override for testing
}

// NewCapSolverProvider creates a CapSolver provider.
func NewCapSolverProvider(cfg CapSolverConfig) *CapSolverProvider {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = capSolverDefaultTimeout
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = capSolverBaseURL
	}
	return &CapSolverProvider{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		timeout: timeout,
		httpClient: &http.Client{
			Timeout: timeout + 10*time.Second,
		},
	}
}

// Name returns the provider name.
func (p *CapSolverProvider) Name() string { return "capsolver" }

// IsConfigured returns true if an API key is set.
func (p *CapSolverProvider) IsConfigured() bool { return p.apiKey != "" }

// Supports reports variant coverage. CapSolver additionally handles
// image-to-text tasks.
func (p *CapSolverProvider) Supports(v Variant) bool {
	switch v {
	case RecaptchaV2, RecaptchaV3, HCaptcha, FunCaptcha, Image:
		return true
	}
	return false
}

type capSolverTask struct {
	Type       string `json:"type"`
	WebsiteURL string `json:"websiteURL,omitempty"`
	WebsiteKey string `json:"websiteKey,omitempty"`
	Body       string `json:"body,omitempty"` // base64 image for ImageToTextTask
	PageAction string `json:"pageAction,omitempty"`
}

type capSolverCreateRequest struct {
	ClientKey string        `json:"clientKey"`
	Task      capSolverTask `json:"task"`
}

type capSolverCreateResponse struct {
	ErrorID          int    `json:"errorId"`
	ErrorCode        string `json:"errorCode,omitempty"`
	ErrorDescription string `json:"errorDescription,omitempty"`
	TaskID           string `json:"taskId,omitempty"`
}

type capSolverSolution struct {
	GRecaptchaResponse string `json:"gRecaptchaResponse,omitempty"`
	Token              string `json:"token,omitempty"`
	Text               string `json:"text,omitempty"`
}

type capSolverResultResponse struct {
	ErrorID          int                `json:"errorId"`
	ErrorCode        string             `json:"errorCode,omitempty"`
	ErrorDescription string             `json:"errorDescription,omitempty"`
	Status           string             `json:"status"` // "processing" or "ready"
	Solution         *capSolverSolution `json:"solution,omitempty"`
}

// taskFor maps a challenge to a CapSolver task specification.
func (p *CapSolverProvider) taskFor(ch *Challenge) (capSolverTask, error) {
	switch ch.Variant {
	case RecaptchaV2:
		return capSolverTask{Type: "ReCaptchaV2TaskProxyLess", WebsiteURL: ch.PageURL, WebsiteKey: ch.SiteKey}, nil
	case RecaptchaV3:
		return capSolverTask{Type: "ReCaptchaV3TaskProxyLess", WebsiteURL: ch.PageURL, WebsiteKey: ch.SiteKey, PageAction: "verify"}, nil
	case HCaptcha:
		return capSolverTask{Type: "HCaptchaTaskProxyLess", WebsiteURL: ch.PageURL, WebsiteKey: ch.SiteKey}, nil
	case FunCaptcha:
		return capSolverTask{Type: "FunCaptchaTaskProxyLess", WebsiteURL: ch.PageURL, WebsiteKey: ch.SiteKey}, nil
	case Image:
		return capSolverTask{Type: "ImageToTextTask", Body: ch.ImageURL}, nil
	default:
		return capSolverTask{}, fmt.Errorf("capsolver does not support variant %s", ch.Variant)
	}
}

// Solve submits the challenge and polls until a token is ready.
func (p *CapSolverProvider) Solve(ctx context.Context, ch *Challenge) (string, error) {
	if !p.IsConfigured() {
		return "", fmt.Errorf("capsolver API key not configured")
	}

	task, err := p.taskFor(ch)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var created capSolverCreateResponse
	if err := p.post(ctx, capSolverCreateTask, capSolverCreateRequest{ClientKey: p.apiKey, Task: task}, &created); err != nil {
		return "", fmt.Errorf("failed to create task: %w", err)
	}
	if created.ErrorID != 0 {
		if created.ErrorCode == "ERROR_ZERO_BALANCE" {
			return "", types.NewSolverBalanceError(p.Name())
		}
		return "", types.NewSolverRejectedError(p.Name(), created.ErrorCode, created.ErrorDescription)
	}

	log.Debug().
		Str("task_id", created.TaskID).
		Str("variant", string(ch.Variant)).
		Msg("CapSolver task created")

	ticker := time.NewTicker(capSolverPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", types.NewSolverTimeoutError(p.Name(), created.TaskID)
		case <-ticker.C:
		}

		var result capSolverResultResponse
		if err := p.post(ctx, capSolverGetResult, map[string]string{"clientKey": p.apiKey, "taskId": created.TaskID}, &result); err != nil {
			return "", err
		}
		if result.ErrorID != 0 {
			return "", types.NewSolverRejectedError(p.Name(), result.ErrorCode, result.ErrorDescription)
		}
		if result.Status != "ready" {
			continue
		}
		if result.Solution == nil {
			return "", types.NewSolverRejectedError(p.Name(), "empty_solution", "ready result carried no solution")
		}
		switch {
		case result.Solution.GRecaptchaResponse != "":
			return result.Solution.GRecaptchaResponse, nil
		case result.Solution.Token != "":
			return result.Solution.Token, nil
		default:
			return result.Solution.Text, nil
		}
	}
}

func (p *CapSolverProvider) post(ctx context.Context, path string, body, out interface{}) error {
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
		return fmt.Errorf("capsolver returned HTTP %d", resp.StatusCode)
	}
	return json.Unmarshal(data, out)
}
