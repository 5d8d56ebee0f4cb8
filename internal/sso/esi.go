package sso

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/evecore/evecore/internal/observability/logger"
)

// RoleVerifier checks in-game corporation roles via a supplementary API
// call. Used to gate director and custom-variant logins.
type RoleVerifier interface {
	// VerifyRoles reports whether the character holds every role in
	// required. An empty required list verifies trivially.
	VerifyRoles(ctx context.Context, characterID int64, accessToken string, required []string) (bool, error)
}

// ESIClient is the minimal game-API client the login flow needs.
type ESIClient struct {
	baseURL string
	http    *http.Client
}

func NewESIClient(baseURL string, timeout time.Duration) *ESIClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ESIClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *ESIClient) VerifyRoles(ctx context.Context, characterID int64, accessToken string, required []string) (bool, error) {
	if len(required) == 0 {
		return true, nil
	}

	url := fmt.Sprintf("%s/latest/characters/%d/roles/", c.baseURL, characterID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		logger.From(ctx).Warn("roles lookup failed",
			logger.Component("esi"), logger.CharacterID(characterID), logger.Err(err))
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("roles lookup: status %d", resp.StatusCode)
	}

	var body struct {
		Roles []string `json:"roles"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, err
	}

	have := make(map[string]bool, len(body.Roles))
	for _, r := range body.Roles {
		have[r] = true
	}
	for _, r := range required {
		if !have[r] {
			return false, nil
		}
	}
	return true, nil
}
