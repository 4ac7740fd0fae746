package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/liran1305/Estimate-sub000/internal/services"
)

// TurnstileVerifyURL is Cloudflare's siteverify endpoint.
const TurnstileVerifyURL = "https://challenges.cloudflare.com/turnstile/v0/siteverify"

// NewTurnstileVerifier checks widget tokens against endpoint with secret.
// A nil client gets a 5s timeout.
func NewTurnstileVerifier(secret, endpoint string, client *http.Client) services.TurnstileVerifier {
	if endpoint == "" {
		endpoint = TurnstileVerifyURL
	}
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return func(token string) (bool, error) {
		if strings.TrimSpace(token) == "" {
			return false, nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), client.Timeout+time.Second)
		defer cancel()
		form := url.Values{"secret": {secret}, "response": {token}}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
		if err != nil {
			return false, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		resp, err := client.Do(req)
		if err != nil {
			return false, fmt.Errorf("turnstile verify: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return false, fmt.Errorf("turnstile verify: status %d", resp.StatusCode)
		}
		var out struct {
			Success bool `json:"success"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return false, fmt.Errorf("turnstile verify: %w", err)
		}
		return out.Success, nil
	}
}
