package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bnema/deadlock-gc/internal/domain"
)

const maxAuthResponseBytes = 1 << 20

const (
	ConfirmationDeviceCode   = "device_code"
	ConfirmationEmailCode    = "email_code"
	ConfirmationDeviceAccept = "device_confirmation"
)

var (
	ErrSessionFlowTimeout      = errors.New("timed out waiting for session confirmation")
	ErrAuthenticatorRequired   = errors.New("guard code required but no authenticator configured")
	ErrUnsupportedConfirmation = errors.New("no supported confirmation offered")
)

type API struct {
	BaseURL   string
	BeginPath string
	CodePath  string
	PollPath  string
}

// DefaultAPI resolves the endpoints relative to baseURL, so a base with a
// trailing slash keeps its path prefix.
func DefaultAPI(baseURL string) API {
	return API{
		BaseURL:   baseURL,
		BeginPath: "session/begin",
		CodePath:  "session/code",
		PollPath:  "session/poll",
	}
}

// SessionFlowAdapter exchanges account credentials for a logon token.
type SessionFlowAdapter struct {
	API            API
	HTTPClient     *http.Client
	Authenticator  Authenticator
	RequestTimeout time.Duration
	PollInterval   time.Duration
	PollTimeout    time.Duration
}

type Confirmation struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type beginResponse struct {
	ClientID      string         `json:"client_id"`
	RequestID     string         `json:"request_id"`
	Interval      int64          `json:"interval"`
	Confirmations []Confirmation `json:"allowed_confirmations"`
}

type pollResponse struct {
	AccountName  string `json:"account_name"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	NewGuardData string `json:"new_guard_data"`
}

type authErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Interval         int64  `json:"interval"`
}

type pendingSession struct {
	clientID  string
	requestID string
	interval  time.Duration
}

func (a SessionFlowAdapter) BeginSession(ctx context.Context, creds domain.Credentials, resumable []byte) (domain.AuthResult, error) {
	if creds.Username == "" {
		return domain.AuthResult{}, errors.New("username is required")
	}
	if creds.Password == "" {
		return domain.AuthResult{}, errors.New("password is required")
	}

	begin, err := a.begin(ctx, creds, resumable)
	if err != nil {
		return domain.AuthResult{}, err
	}

	session := pendingSession{
		clientID:  begin.ClientID,
		requestID: begin.RequestID,
		interval:  time.Duration(begin.Interval) * time.Second,
	}
	if a.PollInterval > 0 {
		session.interval = a.PollInterval
	}

	if err := a.confirm(ctx, session, begin.Confirmations); err != nil {
		return domain.AuthResult{}, err
	}

	tokens, err := a.poll(ctx, session)
	if err != nil {
		return domain.AuthResult{}, err
	}

	result := domain.AuthResult{
		AccountName:  tokens.AccountName,
		SessionToken: tokens.RefreshToken,
	}
	if result.AccountName == "" {
		result.AccountName = creds.Username
	}
	if tokens.NewGuardData != "" {
		guard, err := base64.StdEncoding.DecodeString(tokens.NewGuardData)
		if err != nil {
			return domain.AuthResult{}, fmt.Errorf("decode guard data: %w", err)
		}
		result.ResumableToken = guard
	}
	return result, nil
}

func (a SessionFlowAdapter) begin(ctx context.Context, creds domain.Credentials, resumable []byte) (beginResponse, error) {
	values := url.Values{}
	values.Set("account_name", creds.Username)
	values.Set("password", creds.Password)
	values.Set("persistence", "1")
	if len(resumable) > 0 {
		values.Set("guard_data", base64.StdEncoding.EncodeToString(resumable))
	}

	requestCtx, cancel := a.requestContext(ctx)
	defer cancel()
	resp, err := a.post(requestCtx, a.API.BeginPath, values)
	if err != nil {
		return beginResponse{}, fmt.Errorf("begin session: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return beginResponse{}, fmt.Errorf("begin session: %s", decodeAuthError(resp))
	}

	var payload beginResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxAuthResponseBytes)).Decode(&payload); err != nil {
		return beginResponse{}, fmt.Errorf("decode begin session response: %w", err)
	}
	if payload.ClientID == "" || payload.RequestID == "" {
		return beginResponse{}, errors.New("begin session response missing required fields")
	}
	return payload, nil
}

// confirm satisfies whichever out-of-band check the platform asked for.
// An empty list means the guard data was accepted.
func (a SessionFlowAdapter) confirm(ctx context.Context, session pendingSession, confirmations []Confirmation) error {
	if len(confirmations) == 0 {
		return nil
	}
	if a.Authenticator == nil {
		return ErrAuthenticatorRequired
	}

	byType := make(map[string]Confirmation, len(confirmations))
	for _, c := range confirmations {
		byType[c.Type] = c
	}

	if _, ok := byType[ConfirmationDeviceAccept]; ok {
		accepted, err := a.Authenticator.AcceptDeviceConfirmation(ctx)
		if err != nil {
			return err
		}
		if accepted {
			return nil
		}
	}

	if _, ok := byType[ConfirmationDeviceCode]; ok {
		return a.submitCodes(ctx, session, ConfirmationDeviceCode, func(previousIncorrect bool) (string, error) {
			return a.Authenticator.DeviceCode(ctx, previousIncorrect)
		})
	}
	if email, ok := byType[ConfirmationEmailCode]; ok {
		return a.submitCodes(ctx, session, ConfirmationEmailCode, func(previousIncorrect bool) (string, error) {
			return a.Authenticator.EmailCode(ctx, email.Message, previousIncorrect)
		})
	}

	return ErrUnsupportedConfirmation
}

func (a SessionFlowAdapter) submitCodes(ctx context.Context, session pendingSession, codeType string, next func(previousIncorrect bool) (string, error)) error {
	previousIncorrect := false
	for {
		code, err := next(previousIncorrect)
		if err != nil {
			return err
		}

		invalid, err := a.submitCode(ctx, session, codeType, strings.TrimSpace(code))
		if err != nil {
			return err
		}
		if !invalid {
			return nil
		}
		previousIncorrect = true
	}
}

func (a SessionFlowAdapter) submitCode(ctx context.Context, session pendingSession, codeType string, code string) (bool, error) {
	values := url.Values{}
	values.Set("client_id", session.clientID)
	values.Set("code", code)
	values.Set("code_type", codeType)

	requestCtx, cancel := a.requestContext(ctx)
	defer cancel()
	resp, err := a.post(requestCtx, a.API.CodePath, values)
	if err != nil {
		return false, fmt.Errorf("submit guard code: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		return false, nil
	}

	var authErr authErrorResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxAuthResponseBytes)).Decode(&authErr); err != nil {
		return false, fmt.Errorf("submit guard code: status %d", resp.StatusCode)
	}
	if authErr.Error == "invalid_code" {
		return true, nil
	}
	return false, fmt.Errorf("submit guard code: %s", formatAuthError(resp.StatusCode, authErr))
}

func (a SessionFlowAdapter) poll(ctx context.Context, session pendingSession) (pollResponse, error) {
	interval := session.interval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	timeout := a.PollTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}

	deadline := time.Now().Add(timeout)
	for {
		if time.Now().After(deadline) {
			return pollResponse{}, ErrSessionFlowTimeout
		}

		tokens, pollInterval, pending, err := a.pollOnce(ctx, session, interval, deadline)
		if err != nil {
			return pollResponse{}, err
		}
		if !pending {
			return tokens, nil
		}
		if pollInterval > 0 {
			interval = pollInterval
		}

		waitUntil := time.Now().Add(interval)
		if waitUntil.After(deadline) {
			return pollResponse{}, ErrSessionFlowTimeout
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			if !timer.Stop() {
				<-timer.C
			}
			return pollResponse{}, ctx.Err()
		case <-timer.C:
		}
	}
}

func (a SessionFlowAdapter) pollOnce(ctx context.Context, session pendingSession, interval time.Duration, deadline time.Time) (pollResponse, time.Duration, bool, error) {
	values := url.Values{}
	values.Set("client_id", session.clientID)
	values.Set("request_id", session.requestID)

	reqCtx := ctx
	if ctxDeadline, ok := ctx.Deadline(); !ok || deadline.Before(ctxDeadline) {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithDeadline(ctx, deadline)
		defer cancel()
	}

	resp, err := a.post(reqCtx, a.API.PollPath, values)
	if err != nil {
		return pollResponse{}, 0, false, fmt.Errorf("poll session: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		var tokens pollResponse
		if err := json.NewDecoder(io.LimitReader(resp.Body, maxAuthResponseBytes)).Decode(&tokens); err != nil {
			return pollResponse{}, 0, false, fmt.Errorf("decode poll response: %w", err)
		}
		if tokens.RefreshToken == "" {
			return pollResponse{}, 0, false, errors.New("poll response missing refresh token")
		}
		return tokens, 0, false, nil
	}

	var authErr authErrorResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxAuthResponseBytes)).Decode(&authErr); err != nil {
		return pollResponse{}, 0, false, fmt.Errorf("poll session: status %d", resp.StatusCode)
	}

	nextInterval := interval
	if authErr.Interval > 0 {
		nextInterval = time.Duration(authErr.Interval) * time.Second
	}
	if authErr.Error == "slow_down" {
		nextInterval += 5 * time.Second
	}

	if authErr.Error == "authorization_pending" || authErr.Error == "slow_down" {
		return pollResponse{}, nextInterval, true, nil
	}

	return pollResponse{}, 0, false, fmt.Errorf("poll session: %s", formatAuthError(resp.StatusCode, authErr))
}

func (a SessionFlowAdapter) post(ctx context.Context, path string, values url.Values) (*http.Response, error) {
	endpoint, err := buildAPIURL(a.API.BaseURL, path)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(values.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return a.httpClient().Do(req)
}

func (a SessionFlowAdapter) httpClient() *http.Client {
	if a.HTTPClient != nil {
		return a.HTTPClient
	}
	return http.DefaultClient
}

func (a SessionFlowAdapter) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}

	requestTimeout := a.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = 30 * time.Second
	}

	return context.WithTimeout(ctx, requestTimeout)
}

func decodeAuthError(resp *http.Response) string {
	var authErr authErrorResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxAuthResponseBytes)).Decode(&authErr); err != nil {
		return fmt.Sprintf("status %d", resp.StatusCode)
	}
	return formatAuthError(resp.StatusCode, authErr)
}

func formatAuthError(statusCode int, authErr authErrorResponse) string {
	if authErr.Error == "" {
		return fmt.Sprintf("status %d", statusCode)
	}
	if authErr.ErrorDescription != "" {
		return authErr.Error + ": " + authErr.ErrorDescription
	}
	return authErr.Error
}

func buildAPIURL(baseURL string, path string) (string, error) {
	if baseURL == "" {
		return "", errors.New("api base url is required")
	}
	if path == "" {
		return "", errors.New("api path is required")
	}

	parsed, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse api base url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", errors.New("api base url must use http or https")
	}
	if parsed.Host == "" {
		return "", errors.New("api base url host is required")
	}

	endpoint, err := parsed.Parse(path)
	if err != nil {
		return "", fmt.Errorf("parse api path: %w", err)
	}
	return endpoint.String(), nil
}
