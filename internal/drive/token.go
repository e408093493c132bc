package drive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"ricevute/internal/transport"
)

// ErrAuth marks a failed token exchange: the endpoint rejected the
// assertion or the response carried no access token.
var ErrAuth = errors.New("drive: token exchange failed")

const jwtBearerGrant = "urn:ietf:params:oauth:grant-type:jwt-bearer"

// TokenProvider exchanges a freshly signed assertion for a bearer access
// token. There is no caching: each call performs a full exchange, so a
// token never outlives the sync operation that requested it.
type TokenProvider struct {
	http     *transport.Client
	creds    Credentials
	endpoint string
}

func NewTokenProvider(hc *transport.Client, creds Credentials) *TokenProvider {
	return &TokenProvider{
		http:     hc,
		creds:    creds,
		endpoint: TokenURL,
	}
}

// AccessToken mints an assertion scoped to drive.file and exchanges it.
func (p *TokenProvider) AccessToken(ctx context.Context) (string, error) {
	assertion, err := SignAssertion(p.creds, FileScope, p.endpoint)
	if err != nil {
		return "", err
	}

	form := url.Values{
		"grant_type": {jwtBearerGrant},
		"assertion":  {assertion},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("drive: build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAuth, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", ErrAuth, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: HTTP %d: %s", ErrAuth, resp.StatusCode, body)
	}

	var payload struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrAuth, err)
	}
	if payload.AccessToken == "" {
		return "", fmt.Errorf("%w: response contains no access token", ErrAuth)
	}
	return payload.AccessToken, nil
}
