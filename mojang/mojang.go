package mojang

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

const defaultBaseURL = "https://api.minecraftservices.com"

// Client looks up Minecraft account usernames against the Mojang profile
// directory.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a lookup client with a sane request timeout.
func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    defaultBaseURL,
	}
}

// UsernameExists reports whether the given username resolves to a real
// Minecraft account. A 404 means the name does not exist; any other non-2xx
// response (rate limiting included) is surfaced as an error so the caller
// does not silently reject a valid name.
func (c *Client) UsernameExists(ctx context.Context, username string) (bool, error) {
	url := c.baseURL + "/minecraft/profile/lookup/name/" + username
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("mojang lookup: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return true, nil
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("mojang lookup: unexpected status %d", resp.StatusCode)
	}
}
