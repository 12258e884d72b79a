package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hitoshi/storefront/internal/model"
)

const defaultAPIURL = "https://api.clerk.com/v1"

// ErrProviderUserNotFound はIdPにユーザーが存在しないことを示す。
var ErrProviderUserNotFound = errors.New("provider user not found")

// ProviderConfig はIdPのBackend APIクライアントの設定。
type ProviderConfig struct {
	// テスト用にオーバーライド可能なURL
	APIURL    string
	SecretKey string
	Timeout   time.Duration
}

// ProviderClient はIdPのBackend APIからユーザー情報を取得する。
type ProviderClient struct {
	config ProviderConfig
	client *http.Client
}

// NewProviderClient はProviderClientを生成する。
func NewProviderClient(config ProviderConfig) *ProviderClient {
	if config.APIURL == "" {
		config.APIURL = defaultAPIURL
	}
	config.APIURL = strings.TrimRight(config.APIURL, "/")
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	return &ProviderClient{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
	}
}

// GetUser は外部ユーザーIDでIdPのユーザー情報を取得する。
// レスポンスはWebhookのuser.created / user.updatedのdataと同じ形。
func (c *ProviderClient) GetUser(ctx context.Context, externalID string) (*model.ProviderUser, error) {
	if c.config.SecretKey == "" {
		return nil, fmt.Errorf("%w: provider secret key is not set", model.ErrConfiguration)
	}

	endpoint := c.config.APIURL + "/users/" + url.PathEscape(externalID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create user request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.config.SecretKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("user request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read user response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrProviderUserNotFound, externalID)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("user fetch failed with status %d", resp.StatusCode)
	}

	var user model.ProviderUser
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, fmt.Errorf("failed to parse user response: %w", err)
	}

	if user.ID == "" {
		return nil, fmt.Errorf("empty id in user response")
	}

	return &user, nil
}
