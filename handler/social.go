package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"unicode/utf8"

	"golang.org/x/oauth2"

	flowrge "github.com/Pratikkale26/Flowrge"
	"github.com/Pratikkale26/Flowrge/action"
)

const (
	xPostEndpoint = "https://api.x.com/2/tweets"

	// maxPostRunes is the platform's hard post length limit.
	maxPostRunes = 280
)

// SocialHandler publishes posts through the owner's connected account.
// There is no fallback path: a missing connection is a terminal
// failure.
type SocialHandler struct {
	tokens     TokenStore
	oauth      *oauth2.Config
	httpClient *http.Client
	endpoint   string
	logger     *slog.Logger
}

// SocialOption configures a SocialHandler.
type SocialOption func(*SocialHandler)

// WithSocialHTTPClient overrides the HTTP client used for posting.
func WithSocialHTTPClient(c *http.Client) SocialOption {
	return func(h *SocialHandler) { h.httpClient = c }
}

// WithSocialEndpoint overrides the post endpoint, for tests.
func WithSocialEndpoint(endpoint string) SocialOption {
	return func(h *SocialHandler) { h.endpoint = endpoint }
}

// WithSocialLogger sets the handler's logger.
func WithSocialLogger(logger *slog.Logger) SocialOption {
	return func(h *SocialHandler) { h.logger = logger }
}

// NewSocialHandler creates the social post action handler.
func NewSocialHandler(tokens TokenStore, oauthCfg *oauth2.Config, opts ...SocialOption) *SocialHandler {
	h := &SocialHandler{
		tokens:     tokens,
		oauth:      oauthCfg,
		httpClient: http.DefaultClient,
		endpoint:   xPostEndpoint,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *SocialHandler) Type() string { return action.TypeSocialPost }

func (h *SocialHandler) Execute(ctx context.Context, inv *action.Invocation) error {
	payload, ok := inv.Payload.(*action.SocialPost)
	if !ok {
		return fmt.Errorf("flowrge/handler: social handler got %T payload", inv.Payload)
	}
	if n := utf8.RuneCountInString(payload.Content); n > maxPostRunes {
		return fmt.Errorf("flowrge/handler: post is %d characters, limit is %d", n, maxPostRunes)
	}

	conn, err := h.tokens.GetConnection(ctx, inv.Workflow.OwnerID, ProviderX)
	switch {
	case errors.Is(err, flowrge.ErrConnectionNotFound):
		return fmt.Errorf("flowrge/handler: owner %s has no connected social account: %w", inv.Workflow.OwnerID, err)
	case err != nil:
		return action.Retryable(err)
	}

	status, err := h.postOnce(ctx, conn.Token.AccessToken, payload.Content)
	if err != nil {
		return err
	}
	if status == http.StatusUnauthorized {
		if err := refreshToken(ctx, h.oauth, h.tokens, conn); err != nil {
			return fmt.Errorf("flowrge/handler: refresh social token: %w", err)
		}
		status, err = h.postOnce(ctx, conn.Token.AccessToken, payload.Content)
		if err != nil {
			return err
		}
	}

	switch {
	case status >= 200 && status <= 299:
		return nil
	case status == http.StatusTooManyRequests || status >= 500:
		return action.Retryable(fmt.Errorf("flowrge/handler: post returned %d", status))
	default:
		return fmt.Errorf("flowrge/handler: post returned %d", status)
	}
}

func (h *SocialHandler) postOnce(ctx context.Context, accessToken, content string) (int, error) {
	body, err := json.Marshal(map[string]string{"text": content})
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return 0, action.Retryable(err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body) //nolint:errcheck
	return resp.StatusCode, nil
}
