package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var errClientExists = errors.New("client already exists on proxy server")

// SyncClient wraps the self-hosted proxy-auth server. Deletions of absent
// clients and 409 conflicts on add are normalized by the callers into
// success paths; everything else surfaces as a descriptive error.
type SyncClient struct {
	baseURL string
	httpc   *http.Client
}

func NewSyncClient(baseURL string) *SyncClient {
	return &SyncClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *SyncClient) do(method, path string, payload any, username, password string) (*http.Response, []byte, error) {
	var body io.Reader
	var raw []byte
	if payload != nil {
		var err error
		raw, err = json.Marshal(payload)
		if err != nil {
			return nil, nil, err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, c.baseURL+path, body)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if username != "" {
		req.SetBasicAuth(username, password)
	}

	slog.Debug("proxy server request", "method", method, "path", path, "body", truncateBody(raw))
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("proxy server unreachable: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("proxy server response read failed: %w", err)
	}
	if resp.StatusCode >= 300 {
		slog.Debug("proxy server error body", "status", resp.StatusCode, "body", truncateBody(respBody))
	}
	return resp, respBody, nil
}

// AddClient creates the client on the proxy server. The server treats this
// as create-only and answers 409 when the name is taken, which comes back
// as errClientExists so callers can fall back to AddProxies.
func (c *SyncClient) AddClient(name, password string, proxies []string) error {
	payload := map[string]any{
		"clientName": name,
		"password":   password,
		"proxies":    proxies,
	}
	resp, body, err := c.do(http.MethodPost, "/api/add-client", payload, "", "")
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusConflict {
		return errClientExists
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("add-client failed with status %d: %s", resp.StatusCode, truncateBody(body))
	}
	return nil
}

// AddProxyResult tallies a per-proxy incremental add.
type AddProxyResult struct {
	Added  int
	Failed int
	Errors []string
}

// AddProxies pushes proxies one request at a time and keeps going past
// individual failures.
func (c *SyncClient) AddProxies(name string, proxies []string) AddProxyResult {
	var res AddProxyResult
	for _, proxy := range proxies {
		payload := map[string]any{"clientName": name, "proxy": proxy}
		resp, body, err := c.do(http.MethodPost, "/api/add-proxy", payload, "", "")
		if err != nil {
			res.Failed++
			res.Errors = append(res.Errors, err.Error())
			continue
		}
		if resp.StatusCode >= 300 {
			res.Failed++
			msg := fmt.Sprintf("add-proxy failed with status %d: %s", resp.StatusCode, truncateBody(body))
			slog.Warn("add-proxy failed", "client", name, "status", resp.StatusCode)
			res.Errors = append(res.Errors, msg)
			continue
		}
		res.Added++
	}
	slog.Info("add-proxy batch finished", "client", name, "added", res.Added, "failed", res.Failed)
	return res
}

// DeleteClient removes the client remotely. A 404 means the desired
// post-condition already holds and counts as success.
func (c *SyncClient) DeleteClient(name string) error {
	resp, body, err := c.do(http.MethodDelete, "/api/delete-client/"+url.PathEscape(name), nil, "", "")
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusNotFound {
		slog.Info("client already absent on proxy server", "client", name)
		return nil
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("delete-client failed with status %d: %s", resp.StatusCode, truncateBody(body))
	}
	slog.Info("client deleted from proxy server", "client", name)
	return nil
}

// CurrentProxyInfo is the proxy the server currently assigns a client.
type CurrentProxyInfo struct {
	Proxy   string `json:"proxy"`
	Country string `json:"country"`
}

// CurrentProxy is authenticated with the client's own credentials, not the
// admin's.
func (c *SyncClient) CurrentProxy(name, password string) (CurrentProxyInfo, error) {
	resp, body, err := c.do(http.MethodGet, "/current", nil, name, password)
	if err != nil {
		return CurrentProxyInfo{}, err
	}
	if resp.StatusCode >= 300 {
		return CurrentProxyInfo{}, fmt.Errorf("current proxy request failed with status %d", resp.StatusCode)
	}
	var info CurrentProxyInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return CurrentProxyInfo{}, fmt.Errorf("current proxy response malformed: %w", err)
	}
	return info, nil
}

// IPInfo is the egress address the server reports for a client.
type IPInfo struct {
	IP      string `json:"ip"`
	Country string `json:"country"`
	City    string `json:"city"`
}

func (c *SyncClient) MyIP(name, password string) (IPInfo, error) {
	resp, body, err := c.do(http.MethodGet, "/myip", nil, name, password)
	if err != nil {
		return IPInfo{}, err
	}
	if resp.StatusCode >= 300 {
		return IPInfo{}, fmt.Errorf("myip request failed with status %d", resp.StatusCode)
	}
	var info IPInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return IPInfo{}, fmt.Errorf("myip response malformed: %w", err)
	}
	return info, nil
}

// translateProxy rewrites the local host:port:user:pass form into the
// URL-embedded form the proxy server expects, with credentials
// percent-encoded. URL-form input and anything unrecognized pass through
// unchanged.
func translateProxy(proxy string) string {
	if strings.Contains(proxy, "://") && strings.Contains(proxy, "@") {
		return proxy
	}
	parts := strings.Split(proxy, ":")
	if len(parts) != 4 {
		return proxy
	}
	u := url.URL{
		Scheme: "http",
		User:   url.UserPassword(parts[2], parts[3]),
		Host:   parts[0] + ":" + parts[1],
	}
	return u.String()
}

// translateProxies converts a proxy list for transmission. Strings that
// match neither accepted shape are dropped with a logged error rather than
// sent.
func translateProxies(proxies []string) []string {
	out := make([]string, 0, len(proxies))
	for _, p := range proxies {
		t := translateProxy(p)
		if !strings.Contains(t, "://") {
			slog.Error("invalid proxy format, skipping", "proxy", p)
			continue
		}
		out = append(out, t)
	}
	return out
}

// isLocalProxyFormat reports whether a string is the canonical
// host:port:user:pass form accepted from chat input.
func isLocalProxyFormat(proxy string) bool {
	return len(strings.Split(proxy, ":")) == 4
}
