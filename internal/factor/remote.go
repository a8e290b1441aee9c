package factor

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/dmitrijs2005/authvault/internal/common"
	"github.com/dmitrijs2005/authvault/internal/config"
	"github.com/dmitrijs2005/authvault/internal/logging"
)

// RemoteProvider talks to an external face-matching service over HTTP.
// The wire format is a minimal JSON contract; the vendor behind the
// endpoint is not this package's concern.
//
// Failed or timed-out calls are retried with fibonacci backoff and then
// reported as common.ErrProviderUnavailable. Unavailability is fail-closed:
// the engine treats it as "not authenticated", never as a pass.
type RemoteProvider struct {
	endpoint  string
	apiKey    string
	apiSecret string
	timeout   time.Duration
	client    *http.Client
	logger    logging.Logger
}

func NewRemoteProvider(cfg *config.Config, logger logging.Logger) *RemoteProvider {
	return &RemoteProvider{
		endpoint:  cfg.FactorEndpoint,
		apiKey:    cfg.FactorAPIKey,
		apiSecret: cfg.FactorAPISecret,
		timeout:   cfg.FactorTimeout,
		client:    &http.Client{},
		logger:    logger.With("module", "factor_remote"),
	}
}

type enrollRequest struct {
	APIKey    string `json:"api_key"`
	APISecret string `json:"api_secret"`
	UserName  string `json:"username"`
	Sample    string `json:"sample"`
}

type enrollResponse struct {
	TemplateRef string `json:"template_ref"`
}

type compareRequest struct {
	APIKey      string `json:"api_key"`
	APISecret   string `json:"api_secret"`
	TemplateRef string `json:"template_ref"`
	Sample      string `json:"sample"`
}

type compareResponse struct {
	Matched    bool    `json:"matched"`
	Confidence float64 `json:"confidence"`
}

// Enroll submits a reference sample and returns the provider's opaque
// template reference.
func (p *RemoteProvider) Enroll(ctx context.Context, userName string, sample []byte) (string, error) {
	req := enrollRequest{
		APIKey:    p.apiKey,
		APISecret: p.apiSecret,
		UserName:  userName,
		Sample:    base64.StdEncoding.EncodeToString(sample),
	}

	var resp enrollResponse
	if err := p.post(ctx, p.endpoint+"/enroll", req, &resp); err != nil {
		return "", err
	}
	if resp.TemplateRef == "" {
		return "", fmt.Errorf("%w: empty template reference", common.ErrProviderUnavailable)
	}
	return resp.TemplateRef, nil
}

// Evaluate compares a live sample against an enrolled template.
func (p *RemoteProvider) Evaluate(ctx context.Context, templateRef string, sample []byte) (Outcome, error) {
	req := compareRequest{
		APIKey:      p.apiKey,
		APISecret:   p.apiSecret,
		TemplateRef: templateRef,
		Sample:      base64.StdEncoding.EncodeToString(sample),
	}

	var resp compareResponse
	if err := p.post(ctx, p.endpoint+"/compare", req, &resp); err != nil {
		return Outcome{}, err
	}

	p.logger.Info(ctx, "factor evaluated", "matched", resp.Matched, "score", resp.Confidence)
	return Outcome{Matched: resp.Matched, Score: resp.Confidence}, nil
}

// post sends one JSON request with retries. Any failure that survives the
// retry budget comes back wrapped in common.ErrProviderUnavailable.
func (p *RemoteProvider) post(ctx context.Context, url string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	backoff := retry.WithMaxRetries(2, retry.NewFibonacci(100*time.Millisecond))

	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(callCtx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := p.client.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return retry.RetryableError(fmt.Errorf("provider status %s", resp.Status))
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("provider status %s", resp.Status)
		}

		return json.NewDecoder(resp.Body).Decode(out)
	})
	if err != nil {
		p.logger.Warn(ctx, "factor provider unavailable", "error", err.Error())
		return fmt.Errorf("%w: %v", common.ErrProviderUnavailable, err)
	}
	return nil
}
