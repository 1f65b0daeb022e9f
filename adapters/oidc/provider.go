package oidc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

var (
	ErrStateMismatch = errors.New("state mismatch")
	ErrNonceMismatch = errors.New("nonce mismatch")
)

// Provider 包裝單一SSO供應商，除了標準OIDC流程外，
// 也透過discovery document取得撤銷與內省端點
type Provider struct {
	*oidc.Provider

	clientInfo ClientInfo
	endpoints  discoveredEndpoints
}

type ClientInfo struct {
	ID     string
	Secret string
}

type discoveredEndpoints struct {
	RevocationEndpoint    string `json:"revocation_endpoint"`
	IntrospectionEndpoint string `json:"introspection_endpoint"`
}

func NewProvider(issuerURL, clientID, clientSecret string) (*Provider, error) {
	const op = "NewProvider"
	provider, err := oidc.NewProvider(context.Background(), issuerURL)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create provider, err=%w", op, err)
	}
	p := &Provider{
		Provider: provider,
		clientInfo: ClientInfo{
			ID:     clientID,
			Secret: clientSecret,
		},
	}
	if err := provider.Claims(&p.endpoints); err != nil {
		return nil, fmt.Errorf("[%s] Fail to claim discovery endpoints, err=%w", op, err)
	}
	return p, nil
}

// AuthURL 產生導向SSO供應商的授權網址
func (p *Provider) AuthURL(state, nonce, redirectURL string, scopes []string) string {
	config := oauth2.Config{
		ClientID:     p.clientInfo.ID,
		ClientSecret: p.clientInfo.Secret,
		Endpoint:     p.Endpoint(),
		RedirectURL:  redirectURL,
		Scopes:       scopes,
	}
	return config.AuthCodeURL(state, oidc.Nonce(nonce))
}

// Exchange 用授權碼換取令牌，並驗證state、nonce與ID Token簽章
func (p *Provider) Exchange(ctx context.Context, verifier *ExchangeVerifier, code, state, redirectURL string) (*ExchangeToken, error) {
	const op = "Exchange"
	if !verifier.VerifyState(state) {
		return nil, ErrStateMismatch
	}
	config := oauth2.Config{
		ClientID:     p.clientInfo.ID,
		ClientSecret: p.clientInfo.Secret,
		Endpoint:     p.Endpoint(),
		RedirectURL:  redirectURL,
	}
	oauth2Token, err := config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to exchange token, err=%w", op, err)
	}
	rawIDToken, ok := oauth2Token.Extra("id_token").(string)
	if !ok {
		return nil, fmt.Errorf("[%s] No id_token field in oauth2 token", op)
	}
	idToken, err := verifier.VerifyIDToken(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to verify ID Token, err=%w", op, err)
	}
	if !verifier.VerifyNonce(idToken.Nonce) {
		return nil, ErrNonceMismatch
	}
	token := &ExchangeToken{
		OAuth2Token: oauth2Token,
		IDToken:     IDToken{internal: idToken},
	}
	if err := idToken.Claims(&token.IDToken); err != nil {
		return nil, fmt.Errorf("[%s] Fail to parse ID Token claims, err=%w", op, err)
	}

	return token, nil
}

func (p *Provider) NewExchangeVerifier(reqState, reqNonce string) *ExchangeVerifier {
	return &ExchangeVerifier{
		idTokenVerifier: p.Verifier(&oidc.Config{ClientID: p.clientInfo.ID}),
		reqState:        reqState,
		reqNonce:        reqNonce,
	}
}

// Revoke 通知SSO供應商撤銷令牌
func (p *Provider) Revoke(token string) error {
	const op = "Revoke"
	form := url.Values{}
	form.Set("token", token)

	req, err := http.NewRequest(http.MethodPost, p.endpoints.RevocationEndpoint, bytes.NewBufferString(form.Encode()))
	if err != nil {
		return fmt.Errorf("[%s] Fail to create revocation request, err=%w", op, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	if _, err := p.sendClientAuthRequest(req); err != nil {
		return fmt.Errorf("[%s] err=%w", op, err)
	}
	return nil
}

// UserInfo 內省端點回傳的用戶資訊
type UserInfo struct {
	Active        bool     `json:"active"`
	Name          string   `json:"name"`
	Nickname      string   `json:"nickname"`
	Email         string   `json:"email"`
	EmailVerified bool     `json:"email_verified"`
	Groups        []string `json:"groups"`
	Scope         string   `json:"scope"`
}

// Introspect 向SSO供應商查詢令牌目前的狀態
func (p *Provider) Introspect(token string) (*UserInfo, error) {
	const op = "Introspect"
	form := url.Values{}
	form.Set("token", token)

	req, err := http.NewRequest(http.MethodPost, p.endpoints.IntrospectionEndpoint, bytes.NewBufferString(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create introspection request, err=%w", op, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.sendClientAuthRequest(req)
	if err != nil {
		return nil, fmt.Errorf("[%s] err=%w", op, err)
	}

	result := new(UserInfo)
	if err := json.Unmarshal(*resp, result); err != nil {
		return nil, fmt.Errorf("[%s] Fail to decode introspection response, err=%w", op, err)
	}
	return result, nil
}

// sendClientAuthRequest 以client credentials送出請求並解析JSON回應
func (p *Provider) sendClientAuthRequest(req *http.Request) (*json.RawMessage, error) {
	const op = "sendClientAuthRequest"

	req.SetBasicAuth(p.clientInfo.ID, p.clientInfo.Secret)

	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to send request, err=%w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("[%s] Request failed with status code=%d", op, resp.StatusCode)
	}

	respBody := new(json.RawMessage)
	if err := json.NewDecoder(resp.Body).Decode(respBody); err != nil {
		return nil, fmt.Errorf("[%s] Fail to decode response body, err=%w", op, err)
	}
	return respBody, nil
}

type ExchangeToken struct {
	OAuth2Token *oauth2.Token
	IDToken     IDToken
}
