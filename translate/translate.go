// Package translate is the DeepL /v2/translate client. Only lines whose
// detected source language is in the allowed set are shown translated (with
// a "[XX] " language indicator); everything else renders as the original
// line. Results are cached per source line for the session so the same line
// is never sent twice.
package translate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

var (
	// ErrAuth marks authentication failures (bad or revoked API key).
	ErrAuth = errors.New("translation API authentication failed")
	// ErrRateLimited marks rate-limit and quota responses.
	ErrRateLimited = errors.New("translation API rate limited")
)

type Config struct {
	APIKey             string
	Endpoint           string
	TargetLang         string
	AllowedSourceLangs []string
	Timeout            time.Duration
}

type Client struct {
	cfg     Config
	allowed map[string]bool
	httpc   *http.Client

	mu    sync.Mutex
	cache map[string]string // source line -> rendered display line
}

func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 12 * time.Second
	}
	allowed := make(map[string]bool, len(cfg.AllowedSourceLangs))
	for _, lang := range cfg.AllowedSourceLangs {
		if l := strings.ToUpper(strings.TrimSpace(lang)); l != "" {
			allowed[l] = true
		}
	}
	return &Client{
		cfg:     cfg,
		allowed: allowed,
		httpc:   &http.Client{Timeout: cfg.Timeout},
		cache:   make(map[string]string),
	}
}

// DeepL API structures
type translation struct {
	DetectedSourceLanguage string `json:"detected_source_language"`
	Text                   string `json:"text"`
}

type apiResponse struct {
	Translations []translation `json:"translations"`
	Message      string        `json:"message"`
}

// TranslateLines renders the given source lines for display, invoking the
// API only for lines not already cached this session. Order is preserved.
func (c *Client) TranslateLines(ctx context.Context, lines []string) ([]string, error) {
	if len(lines) == 0 {
		return nil, nil
	}
	if c.cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: API key is empty", ErrAuth)
	}

	toSend := c.uncached(lines)
	if len(toSend) > 0 {
		translations, err := c.request(ctx, toSend)
		if err != nil {
			return nil, err
		}
		if len(translations) != len(toSend) {
			return nil, fmt.Errorf("API returned %d translations for %d lines", len(translations), len(toSend))
		}
		c.store(toSend, translations)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(lines))
	for i, ln := range lines {
		if shown, ok := c.cache[ln]; ok {
			out[i] = shown
		} else {
			out[i] = ln
		}
	}
	return out, nil
}

// uncached returns the unique lines that still need an API call, in order.
func (c *Client) uncached(lines []string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	seen := make(map[string]bool, len(lines))
	var out []string
	for _, ln := range lines {
		if seen[ln] {
			continue
		}
		seen[ln] = true
		if _, ok := c.cache[ln]; !ok {
			out = append(out, ln)
		}
	}
	return out
}

func (c *Client) store(sources []string, translations []translation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, tr := range translations {
		src := strings.ToUpper(tr.DetectedSourceLanguage)
		if c.allowed[src] {
			c.cache[sources[i]] = fmt.Sprintf("[%s] %s", src, tr.Text)
		} else {
			c.cache[sources[i]] = sources[i]
		}
	}
}

func (c *Client) request(ctx context.Context, lines []string) ([]translation, error) {
	form := url.Values{}
	for _, ln := range lines {
		form.Add("text", ln)
	}
	form.Set("target_lang", c.cfg.TargetLang)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", fmt.Sprintf("DeepL-Auth-Key %s", c.cfg.APIKey))

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("translation request failed: %w", err)
	}
	defer resp.Body.Close()

	var response apiResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&response)

	if err := classifyStatus(resp.StatusCode, response.Message); err != nil {
		return nil, err
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("failed to decode response: %w", decodeErr)
	}
	return response.Translations, nil
}

func classifyStatus(status int, message string) error {
	switch {
	case status == http.StatusOK:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w (status %d): %s", ErrAuth, status, message)
	case status == http.StatusTooManyRequests || status == 456: // 456: DeepL quota exceeded
		return fmt.Errorf("%w (status %d): %s", ErrRateLimited, status, message)
	default:
		return fmt.Errorf("API returned status %d: %s", status, message)
	}
}
