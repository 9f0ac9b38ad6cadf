package platforms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/custodia-labs/adlink-core/internal/core/ports/driven"
)

// maxBodySize caps how much of a platform response is read.
const maxBodySize = 1 << 20

// DefaultHTTPClient returns the client used when none is injected.
func DefaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}

// Exchange runs the authorization-code grant through x/oauth2 using httpClient.
func Exchange(ctx context.Context, httpClient *http.Client, cfg *oauth2.Config, code, codeVerifier string) (*driven.OAuthToken, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)

	var opts []oauth2.AuthCodeOption
	if codeVerifier != "" {
		opts = append(opts, oauth2.VerifierOption(codeVerifier))
	}

	tok, err := cfg.Exchange(ctx, code, opts...)
	if err != nil {
		return nil, exchangeError(err)
	}
	return FromOAuth2Token(tok), nil
}

// FromOAuth2Token converts an x/oauth2 token into the port type.
func FromOAuth2Token(tok *oauth2.Token) *driven.OAuthToken {
	scope, _ := tok.Extra("scope").(string)
	return &driven.OAuthToken{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		Scope:        scope,
		Expiry:       tok.Expiry,
	}
}

func exchangeError(err error) error {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) {
		return &Error{Op: "token exchange", Message: err.Error()}
	}

	status := 0
	if re.Response != nil {
		status = re.Response.StatusCode
	}
	msg := re.ErrorDescription
	if msg == "" {
		msg = ExtractErrorMessage(re.Body)
	}
	if msg == "" {
		msg = re.ErrorCode
	}
	if msg == "" && status != 0 {
		msg = http.StatusText(status)
	}
	return &Error{Op: "token exchange", StatusCode: status, Message: msg}
}

// GetJSON performs an authenticated GET and decodes a 2xx JSON body into out.
// Non-2xx responses become *Error carrying the platform message.
func GetJSON(ctx context.Context, client *http.Client, op, rawURL string, header http.Header, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return &Error{Op: op, Message: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		return statusError(op, resp.StatusCode, body)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return &Error{Op: op, StatusCode: resp.StatusCode, Message: "malformed response"}
	}
	return nil
}
