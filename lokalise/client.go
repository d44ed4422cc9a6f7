// Package lokalise pushes finished translations back to a Lokalise project.
package lokalise

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"
)

// DefaultBaseURL is the Lokalise API v2 endpoint.
const DefaultBaseURL = "https://api.lokalise.com/api2"

// ErrMissingCredentials is returned when the token or project is unset.
var ErrMissingCredentials = errors.New("missing Lokalise API token or project ID")

// APIError is a non-200 answer from Lokalise.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("Lokalise returned status %d: %s", e.StatusCode, truncate(e.Body, 200))
}

// Temporary reports whether the request may succeed when repeated.
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Client talks to the translations endpoint of one project.
type Client struct {
	BaseURL   string
	ProjectID string
	Token     string
	HTTP      *http.Client
}

// NewClient creates a client for projectID.
func NewClient(token, projectID string) (*Client, error) {
	if token == "" || projectID == "" {
		return nil, ErrMissingCredentials
	}
	return &Client{
		BaseURL:   DefaultBaseURL,
		ProjectID: projectID,
		Token:     token,
		HTTP:      &http.Client{Timeout: 30 * time.Second},
	}, nil
}

type updateResponse struct {
	Translation struct {
		ModifiedAt string `json:"modified_at"`
	} `json:"translation"`
}

// UpdateTranslation replaces the text of one translation and returns its
// modified_at timestamp.
func (c *Client) UpdateTranslation(ctx context.Context, translationID, text string) (string, error) {
	body, err := json.Marshal(map[string]string{"translation": text})
	if err != nil {
		return "", err
	}
	url := fmt.Sprintf("%s/projects/%s/translations/%s", strings.TrimRight(c.BaseURL, "/"), c.ProjectID, translationID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, strings.NewReader(string(body)))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Api-Token", c.Token)

	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var ur updateResponse
	if err := json.Unmarshal(respBody, &ur); err != nil {
		return "", fmt.Errorf("parsing response: %w", err)
	}
	return ur.Translation.ModifiedAt, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
