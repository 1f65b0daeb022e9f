package oidc

import "github.com/coreos/go-oidc/v3/oidc"

// OpenID 是openid scope底下的標準宣告
type OpenID struct {
	Sub    string `json:"sub"`
	Iss    string `json:"iss"`
	Aud    string `json:"aud"`
	Exp    int64  `json:"exp"`
	Iat    int64  `json:"iat"`
	AtHash string `json:"at_hash"`
}

// Email 是email scope底下的標準宣告
type Email struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
}

// Profile 是profile scope底下的標準宣告
type Profile struct {
	Name       string `json:"name"`
	FamilyName string `json:"family_name"`
	GivenName  string `json:"given_name"`
	MiddleName string `json:"middle_name"`
	Nickname   string `json:"nickname"`
	Picture    string `json:"picture"`
	UpdatedAt  string `json:"updated_at"`
}

// IDToken 聚合登入流程會請求的三個scope的宣告，
// 非標準的額外宣告可以透過Claims自行解出
type IDToken struct {
	OpenID
	Email
	Profile

	internal *oidc.IDToken
}

func (i *IDToken) Claims(v any) error {
	return i.internal.Claims(v)
}
