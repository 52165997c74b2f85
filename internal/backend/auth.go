package backend

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

type tokenRequest struct {
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
}

type tokenResponse struct {
	Token         string `json:"token"`
	CorrelationID string `json:"correlationId"`
	ExpiresIn     int64  `json:"expiresIn"` // seconds, 0 means no expiry announced
}

// IssuedToken is the result of IssueToken.
type IssuedToken struct {
	Token         string
	CorrelationID string
	ExpiresAt     time.Time
}

// IssueToken obtains a bearer token and the correlation id to forward on all
// following calls of the session.
func (c *Client) IssueToken(ctx context.Context) (*IssuedToken, error) {
	var resp tokenResponse
	err := c.call(ctx, "issue_token", http.MethodPost, "/auth/token", nil,
		tokenRequest{ClientID: c.clientID, ClientSecret: c.clientSecret}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.Token == "" {
		return nil, fmt.Errorf("issue_token: %w: empty token", ErrTransport)
	}

	issued := &IssuedToken{Token: resp.Token, CorrelationID: resp.CorrelationID}
	if resp.ExpiresIn > 0 {
		issued.ExpiresAt = time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	}
	return issued, nil
}
