package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/resend/resend-go/v2"
	"golang.org/x/oauth2"

	flowrge "github.com/Pratikkale26/Flowrge"
	"github.com/Pratikkale26/Flowrge/action"
)

const gmailSendEndpoint = "https://gmail.googleapis.com/gmail/v1/users/me/messages/send"

// EmailHandler sends email through the owner's connected provider
// account, refreshing the OAuth token once on a 401. Owners without a
// connection, and provider sends that keep failing, fall back to the
// platform's transactional sender.
type EmailHandler struct {
	tokens     TokenStore
	oauth      *oauth2.Config
	resend     *resend.Client
	from       string
	httpClient *http.Client
	endpoint   string
	logger     *slog.Logger
}

// EmailOption configures an EmailHandler.
type EmailOption func(*EmailHandler)

// WithEmailHTTPClient overrides the HTTP client used for provider
// sends.
func WithEmailHTTPClient(c *http.Client) EmailOption {
	return func(h *EmailHandler) { h.httpClient = c }
}

// WithEmailEndpoint overrides the provider send endpoint, for tests.
func WithEmailEndpoint(endpoint string) EmailOption {
	return func(h *EmailHandler) { h.endpoint = endpoint }
}

// WithEmailLogger sets the handler's logger.
func WithEmailLogger(logger *slog.Logger) EmailOption {
	return func(h *EmailHandler) { h.logger = logger }
}

// NewEmailHandler creates the email action handler. from is the
// platform sender address used on the fallback path.
func NewEmailHandler(tokens TokenStore, oauthCfg *oauth2.Config, resendClient *resend.Client, from string, opts ...EmailOption) *EmailHandler {
	h := &EmailHandler{
		tokens:     tokens,
		oauth:      oauthCfg,
		resend:     resendClient,
		from:       from,
		httpClient: http.DefaultClient,
		endpoint:   gmailSendEndpoint,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *EmailHandler) Type() string { return action.TypeEmail }

func (h *EmailHandler) Execute(ctx context.Context, inv *action.Invocation) error {
	payload, ok := inv.Payload.(*action.Email)
	if !ok {
		return fmt.Errorf("flowrge/handler: email handler got %T payload", inv.Payload)
	}

	conn, err := h.tokens.GetConnection(ctx, inv.Workflow.OwnerID, ProviderGoogle)
	switch {
	case errors.Is(err, flowrge.ErrConnectionNotFound):
		return h.sendFallback(ctx, payload)
	case err != nil:
		return action.Retryable(err)
	}

	if err := h.sendProvider(ctx, conn, payload); err != nil {
		h.logger.Warn("provider email send failed, using fallback",
			slog.String("run_id", inv.Run.ID.String()),
			slog.String("error", err.Error()),
		)
		return h.sendFallback(ctx, payload)
	}
	return nil
}

// sendProvider sends through the owner's account. A 401 triggers one
// token refresh and one retry.
func (h *EmailHandler) sendProvider(ctx context.Context, conn *Connection, payload *action.Email) error {
	status, err := h.providerSendOnce(ctx, conn.Token.AccessToken, payload)
	if err != nil {
		return err
	}
	if status == http.StatusUnauthorized {
		if err := refreshToken(ctx, h.oauth, h.tokens, conn); err != nil {
			return fmt.Errorf("flowrge/handler: refresh email token: %w", err)
		}
		status, err = h.providerSendOnce(ctx, conn.Token.AccessToken, payload)
		if err != nil {
			return err
		}
	}
	if status < 200 || status > 299 {
		return fmt.Errorf("flowrge/handler: provider email send returned %d", status)
	}
	return nil
}

func (h *EmailHandler) providerSendOnce(ctx context.Context, accessToken string, payload *action.Email) (int, error) {
	raw := fmt.Sprintf("To: %s\r\nSubject: %s\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s",
		payload.To, payload.Subject, payload.Body)
	body, err := json.Marshal(map[string]string{
		"raw": base64.URLEncoding.EncodeToString([]byte(raw)),
	})
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

func (h *EmailHandler) sendFallback(ctx context.Context, payload *action.Email) error {
	if h.resend == nil {
		return fmt.Errorf("flowrge/handler: no fallback email sender configured")
	}
	_, err := h.resend.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    h.from,
		To:      []string{payload.To},
		Subject: payload.Subject,
		Text:    payload.Body,
	})
	if err != nil {
		return action.Retryable(fmt.Errorf("flowrge/handler: fallback email send: %w", err))
	}
	return nil
}
