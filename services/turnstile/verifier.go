package turnstile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const SiteVerifyURL = "https://challenges.cloudflare.com/turnstile/v0/siteverify"

// ErrChallengeFailed means the token was missing, rejected, or could not be
// checked. Verification fails closed.
var ErrChallengeFailed = errors.New("turnstile challenge failed")

// Verifier checks Cloudflare Turnstile tokens submitted with public forms.
type Verifier struct {
	secret   string
	endpoint string
	client   *http.Client
	logger   *zap.Logger
}

// NewVerifier returns a verifier for secret. An empty secret disables the
// check, which suits local development.
func NewVerifier(secret string, logger *zap.Logger) *Verifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Verifier{
		secret:   secret,
		endpoint: SiteVerifyURL,
		client:   &http.Client{Timeout: 5 * time.Second},
		logger:   logger,
	}
}

// WithEndpoint points the verifier at another siteverify URL.
func (v *Verifier) WithEndpoint(endpoint string) *Verifier {
	c := *v
	c.endpoint = endpoint
	return &c
}

type siteVerifyResponse struct {
	Success    bool     `json:"success"`
	ErrorCodes []string `json:"error-codes"`
}

// Verify returns nil when token passes the challenge for remoteIP.
func (v *Verifier) Verify(ctx context.Context, token, remoteIP string) error {
	if v.secret == "" {
		v.logger.Warn("Turnstile verification skipped, no secret key configured")
		return nil
	}
	if strings.TrimSpace(token) == "" {
		return fmt.Errorf("%w: missing token", ErrChallengeFailed)
	}

	form := url.Values{"secret": {v.secret}, "response": {token}}
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrChallengeFailed, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.client.Do(req)
	if err != nil {
		v.logger.Error("Turnstile verification error", zap.Error(err))
		return fmt.Errorf("%w: %v", ErrChallengeFailed, err)
	}
	defer resp.Body.Close()

	var out siteVerifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		v.logger.Error("Turnstile verification error", zap.Int("status", resp.StatusCode), zap.Error(err))
		return fmt.Errorf("%w: decode response: %v", ErrChallengeFailed, err)
	}
	if !out.Success {
		v.logger.Info("Turnstile token rejected", zap.Strings("error_codes", out.ErrorCodes), zap.String("ip", remoteIP))
		return fmt.Errorf("%w: %s", ErrChallengeFailed, strings.Join(out.ErrorCodes, ","))
	}
	return nil
}
