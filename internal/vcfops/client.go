// Package vcfops is the client for the VCF Operations suite API: token
// acquisition, VM inventory lookup, and the resource update that enables
// ping monitoring.
package vcfops

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/atrejom/vcfping/internal/logger"
	"github.com/atrejom/vcfping/internal/retry"
)

const (
	// DefaultRequestTimeout is the timeout for individual suite API requests.
	DefaultRequestTimeout = 30 * time.Second

	// DefaultTokenTTL is assumed when the acquire response carries no
	// validity field.
	DefaultTokenTTL = 25 * time.Minute
)

// Config holds client settings.
type Config struct {
	Host               string        // Operations instance FQDN
	BaseURL            string        // Overrides https://<host>/suite-api; used by tests
	InsecureSkipVerify bool          // Skip TLS verification (lab instances with self-signed certs)
	RequestTimeout     time.Duration // Per-request timeout
	TokenTTL           time.Duration // Fallback token lifetime
	TokenSafetyMargin  time.Duration // Refresh this long before expiry
	Retry              retry.Config  // Backoff policy for token refresh
}

// Client talks to one VCF Operations instance.
type Client struct {
	host      string
	baseURL   string
	http      *http.Client
	tokens    *TokenManager
	loginData json.RawMessage
	tokenTTL  time.Duration
	logger    *logger.Logger
}

// NewClient creates a client for the given instance. loginData is the opaque
// credential document forwarded verbatim to the token acquire endpoint.
func NewClient(cfg Config, loginData json.RawMessage, log *logger.Logger) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	tokenTTL := cfg.TokenTTL
	if tokenTTL <= 0 {
		tokenTTL = DefaultTokenTTL
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = fmt.Sprintf("https://%s/suite-api", cfg.Host)
	}

	httpClient := &http.Client{Timeout: timeout}
	if cfg.InsecureSkipVerify {
		log.Warn("TLS verification disabled for VCF Operations; do not use outside lab environments",
			logger.Field{Key: "host", Value: cfg.Host})
		httpClient.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	c := &Client{
		host:      cfg.Host,
		baseURL:   baseURL,
		http:      httpClient,
		loginData: loginData,
		tokenTTL:  tokenTTL,
		logger:    log,
	}
	c.tokens = NewTokenManager(c.acquireToken, cfg.TokenSafetyMargin, cfg.Retry, log)
	return c
}

// Host returns the operations instance FQDN.
func (c *Client) Host() string {
	return c.host
}

// Tokens exposes the token manager so callers can invalidate after a 401.
func (c *Client) Tokens() *TokenManager {
	return c.tokens
}

// LoadLoginFile reads the loginData JSON document from disk.
func LoadLoginFile(path string) (*LoginFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read login data file: %w", err)
	}

	var login LoginFile
	if err := json.Unmarshal(data, &login); err != nil {
		return nil, fmt.Errorf("failed to parse login data file: %w", err)
	}
	if login.OperationsHost == "" {
		return nil, fmt.Errorf("login data file is missing operationsHost")
	}

	return &login, nil
}

// acquireToken performs the token acquire exchange. It is the RefreshFunc
// behind the token manager.
func (c *Client) acquireToken(ctx context.Context) (string, time.Time, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/auth/token/acquire", bytes.NewReader(c.loginData))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", time.Time{}, &HTTPError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var tokenResp tokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return "", time.Time{}, fmt.Errorf("failed to parse token response: %w", err)
	}
	if tokenResp.Token == "" {
		return "", time.Time{}, fmt.Errorf("token response contained no token")
	}

	expiresAt := time.Now().Add(c.tokenTTL)
	if tokenResp.Validity > 0 {
		expiresAt = time.UnixMilli(tokenResp.Validity)
	}

	return tokenResp.Token, expiresAt, nil
}

// ListVMs fetches every VirtualMachine resource from the instance, in the
// order the API returns them.
func (c *Client) ListVMs(ctx context.Context) ([]Resource, error) {
	params := url.Values{}
	params.Set("resourceKind", ResourceKindVM)
	params.Set("adapterKind", AdapterKindVMware)

	var list resourceList
	if err := c.doJSON(ctx, http.MethodGet, "/api/resources", params, nil, &list); err != nil {
		return nil, err
	}

	c.logger.DebugCtx(ctx, "fetched VM inventory",
		logger.Field{Key: "count", Value: len(list.ResourceList)})
	return list.ResourceList, nil
}

// FindVMs looks up VirtualMachine resources by display name. An empty result
// means the name does not exist in the instance.
func (c *Client) FindVMs(ctx context.Context, name string) ([]Resource, error) {
	params := url.Values{}
	params.Set("resourceKind", ResourceKindVM)
	params.Set("adapterKind", AdapterKindVMware)
	params.Set("name", name)

	var list resourceList
	if err := c.doJSON(ctx, http.MethodGet, "/api/resources", params, nil, &list); err != nil {
		return nil, err
	}
	return list.ResourceList, nil
}

// EnablePing flips the isPingEnabled identifier to "true" for the VM.
// Returns false when the flag was already set and no update was issued.
func (c *Client) EnablePing(ctx context.Context, vm Resource) (bool, error) {
	if vm.PingEnabled() {
		c.logger.DebugCtx(ctx, "ping monitoring already enabled",
			logger.Field{Key: "vm", Value: vm.Name()})
		return false, nil
	}

	// Build the minimal update payload: only the identifiers the API
	// requires, with isPingEnabled forced to "true".
	identifiers := make([]ResourceIdentifier, 0, len(requiredIdentifiers))
	for _, id := range vm.ResourceKey.ResourceIdentifiers {
		if !requiredIdentifiers[id.IdentifierType.Name] {
			continue
		}
		if id.IdentifierType.Name == IdentifierPingEnabled {
			id.Value = "true"
		}
		identifiers = append(identifiers, id)
	}

	payload := Resource{
		Identifier: vm.Identifier,
		ResourceKey: ResourceKey{
			Name:                vm.Name(),
			AdapterKindKey:      AdapterKindVMware,
			ResourceKindKey:     ResourceKindVM,
			ResourceIdentifiers: identifiers,
		},
	}

	params := url.Values{}
	params.Set("_no_links", "true")

	if err := c.doJSON(ctx, http.MethodPut, "/api/resources", params, payload, nil); err != nil {
		return false, err
	}

	c.logger.InfoCtx(ctx, "ping monitoring enabled",
		logger.Field{Key: "vm", Value: vm.Name()},
		logger.Field{Key: "vm_id", Value: vm.Identifier})
	return true, nil
}

// doJSON executes one authenticated suite API request and decodes the JSON
// response into out when non-nil.
func (c *Client) doJSON(ctx context.Context, method, path string, params url.Values, in, out any) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return err
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "OpsToken "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &HTTPError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}

	return nil
}
