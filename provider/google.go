package provider

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/dovidio/colino-backend/sessions"
	"github.com/hashicorp/go-cleanhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// defaultTokenLifetime backstops providers that omit expires_in from a
// token response. Google access tokens live one hour.
const defaultTokenLifetime = time.Hour

// Config carries the provider settings resolved at startup.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string

	// Issuer switches endpoint resolution to OIDC discovery when set.
	// Empty means the built-in Google endpoints.
	Issuer string

	// HTTPClient overrides the instrumented default, mainly for tests.
	HTTPClient *http.Client
}

// Google drives the three provider-facing legs of the flow: building
// the consent URL, exchanging an authorization code, and redeeming a
// refresh token. It holds no per-flow state.
type Google struct {
	oauthConfig *oauth2.Config
	httpClient  *http.Client
}

// NewGoogle builds the provider adapter. With cfg.Issuer set the
// authorization and token endpoints come from the issuer's discovery
// document; otherwise the built-in Google endpoints are used.
func NewGoogle(ctx context.Context, cfg Config) (*Google, error) {
	endpoint := google.Endpoint
	if cfg.Issuer != "" {
		oidcProvider, err := oidc.NewProvider(ctx, cfg.Issuer)
		if err != nil {
			return nil, fmt.Errorf("[provider NewGoogle] failed to discover issuer %q: %w", cfg.Issuer, err)
		}
		endpoint = oidcProvider.Endpoint()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: otelhttp.NewTransport(cleanhttp.DefaultPooledTransport()),
			Timeout:   30 * time.Second,
		}
	}

	return &Google{
		oauthConfig: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     endpoint,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
		},
		httpClient: httpClient,
	}, nil
}

// AuthCodeURL builds the consent URL for the given anti-forgery state.
// access_type=offline and prompt=consent together make Google return a
// refresh token on every authorization, not only the first.
func (g *Google) AuthCodeURL(state string) string {
	return g.oauthConfig.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("include_granted_scopes", "true"),
		oauth2.SetAuthURLParam("prompt", "consent"),
	)
}

// Exchange swaps an authorization code for a token bundle. OAuth error
// responses come back as *Error.
func (g *Google) Exchange(ctx context.Context, code string) (*sessions.TokenBundle, error) {
	token, err := g.oauthConfig.Exchange(g.withHTTPClient(ctx), code)
	if err != nil {
		return nil, asProviderError(err)
	}

	bundle := bundleFromToken(token)
	bundle.RefreshToken = token.RefreshToken
	return bundle, nil
}

// Refresh redeems a refresh token for a fresh access token. The
// returned bundle carries a refresh token only when the provider
// rotated it; an empty RefreshToken means the one the caller holds is
// still good.
func (g *Google) Refresh(ctx context.Context, refreshToken string) (*sessions.TokenBundle, error) {
	stale := &oauth2.Token{RefreshToken: refreshToken}
	token, err := g.oauthConfig.TokenSource(g.withHTTPClient(ctx), stale).Token()
	if err != nil {
		return nil, asProviderError(err)
	}

	bundle := bundleFromToken(token)
	if token.RefreshToken != "" && token.RefreshToken != refreshToken {
		bundle.RefreshToken = token.RefreshToken
	}
	return bundle, nil
}

// withHTTPClient routes the oauth2 library's requests through the
// adapter's instrumented client.
func (g *Google) withHTTPClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, g.httpClient)
}

// bundleFromToken maps an oauth2 token into the session bundle shape,
// filling in the one-hour default when the provider omitted expiry.
// The refresh token is deliberately left for callers to decide on.
func bundleFromToken(token *oauth2.Token) *sessions.TokenBundle {
	now := time.Now()
	expiresIn := int64(defaultTokenLifetime.Seconds())
	expiresAt := now.Add(defaultTokenLifetime).Unix()
	if !token.Expiry.IsZero() {
		expiresIn = int64(token.Expiry.Sub(now).Seconds())
		expiresAt = token.Expiry.Unix()
	}

	scope, _ := token.Extra("scope").(string)

	return &sessions.TokenBundle{
		AccessToken: token.AccessToken,
		TokenType:   token.Type(),
		ExpiresIn:   expiresIn,
		ExpiresAt:   expiresAt,
		Scope:       scope,
	}
}
