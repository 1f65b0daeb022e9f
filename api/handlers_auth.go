package api

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"gavel/adapters/oidc"
	"gavel/adapters/session"
	"gavel/models"
)

const (
	SESSION_KEY_REQUEST_STATE    = "request_state"
	SESSION_KEY_REQUEST_NONCE    = "request_nonce"
	SESSION_KEY_REDIRECT_URL     = "redirect_url"
	SESSION_KEY_URL_BEFORE_LOGIN = "url_before_login"
	SESSION_KEY_SSO_PROVIDER     = "sso_provider"
	SESSION_KEY_SSO_ACCESS_TOKEN = "sso_access_token"
)

// SsoLogin 導向SSO供應商的登入頁面
// (GET /api/auth/sso/:provider/login)
func (s *Server) SsoLogin(c *gin.Context) {
	const op = "SsoLogin"
	provider, ok := s.oidcProviders[c.Param("provider")]
	if !ok {
		c.Status(http.StatusNotFound)
		return
	}
	redirectURL := c.Query("redirectUrl")
	if redirectURL == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "Missing redirectUrl"})
		return
	}
	state, err := generateID("st")
	if err != nil {
		slog.Error("Unable to generate state", slog.String("op", op), slog.Any("error", err))
		c.Status(http.StatusInternalServerError)
		return
	}
	nonce, err := generateID("n")
	if err != nil {
		slog.Error("Unable to generate nonce", slog.String("op", op), slog.Any("error", err))
		c.Status(http.StatusInternalServerError)
		return
	}
	// 把這次登入請求的參數存進session，callback時要用來驗證
	sess, err := session.GetSession(c)
	if err != nil {
		slog.Error("Fail to get session", slog.String("op", op), slog.Any("error", err))
		c.Status(http.StatusInternalServerError)
		return
	}
	sess.Set(SESSION_KEY_REQUEST_STATE, state)
	sess.Set(SESSION_KEY_REQUEST_NONCE, nonce)
	sess.Set(SESSION_KEY_REDIRECT_URL, redirectURL)
	sess.Set(SESSION_KEY_URL_BEFORE_LOGIN, c.Query("from"))
	if err := sess.Save(); err != nil {
		slog.Error("Fail to save session", slog.String("op", op), slog.Any("error", err))
		c.Status(http.StatusInternalServerError)
		return
	}
	// 返回 sso server 的登入頁面
	c.Redirect(http.StatusFound, provider.AuthURL(state, nonce, redirectURL, []string{"email", "openid", "profile"}))
}

// SsoCallback 用授權碼交換令牌並建立本地登入狀態
// (GET /api/auth/sso/:provider/callback)
func (s *Server) SsoCallback(c *gin.Context) {
	const op = "SsoCallback"
	providerName := c.Param("provider")
	provider, ok := s.oidcProviders[providerName]
	if !ok {
		c.Status(http.StatusNotFound)
		return
	}
	// 驗證 callback 的參數和login時儲存在session的參數是否相同
	sess, err := session.GetSession(c)
	if err != nil {
		slog.Error("Fail to get session", slog.String("op", op), slog.Any("error", err))
		c.Status(http.StatusInternalServerError)
		return
	}
	verifier := provider.NewExchangeVerifier(
		sess.Get(SESSION_KEY_REQUEST_STATE),
		sess.Get(SESSION_KEY_REQUEST_NONCE),
	)
	// 向驗證伺服器交換token
	token, err := provider.Exchange(c.Request.Context(), verifier, c.Query("code"), c.Query("state"), sess.Get(SESSION_KEY_REDIRECT_URL))
	if errors.Is(err, oidc.ErrStateMismatch) || errors.Is(err, oidc.ErrNonceMismatch) {
		c.Status(http.StatusBadRequest)
		return
	}
	if err != nil {
		slog.Error("Fail to exchange token", slog.String("op", op), slog.Any("error", err))
		c.Status(http.StatusInternalServerError)
		return
	}
	// 關聯使用者資料(用於關聯使用者操作)
	// 如果 identity 不存在，會建立新的使用者
	ssoProvider := models.SsoProvider{Name: providerName}
	if result := s.db.Where(&ssoProvider).First(&ssoProvider); result.Error != nil {
		slog.Error("Fail to find sso provider", slog.String("op", op), slog.String("provider", providerName), slog.Any("error", result.Error))
		c.Status(http.StatusInternalServerError)
		return
	}
	userIdentity := models.UserIdentity{
		SsoProviderID: ssoProvider.ID,
		Identity:      token.IDToken.Sub,
	}
	if result := s.db.Preload("User").Where(&userIdentity).First(&userIdentity); result.Error != nil && !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		slog.Error("Fail to get user identity", slog.String("op", op), slog.Any("error", result.Error))
		c.Status(http.StatusInternalServerError)
		return
	} else if result.Error != nil {
		userIdentity.User = &models.User{
			Username: token.IDToken.Name,
		}
		if result := s.db.Create(&userIdentity); result.Error != nil {
			slog.Error("Fail to create user identity", slog.String("op", op), slog.Any("error", result.Error))
			c.Status(http.StatusInternalServerError)
			return
		}
	}
	// 建立token
	tokenString, err := IssueJWT(userIdentity.User.ID, userIdentity.User.Username, s.config.Auth)
	if err != nil {
		slog.Error("Fail to sign JWT", slog.String("op", op), slog.Any("error", err))
		c.Status(http.StatusInternalServerError)
		return
	}
	// 登入請求的參數用完即丟，sso的token留著logout時撤銷
	sess.Delete(SESSION_KEY_REQUEST_STATE)
	sess.Delete(SESSION_KEY_REQUEST_NONCE)
	sess.Delete(SESSION_KEY_REDIRECT_URL)
	urlBeforeLogin := sess.Get(SESSION_KEY_URL_BEFORE_LOGIN)
	sess.Delete(SESSION_KEY_URL_BEFORE_LOGIN)
	sess.Set(SESSION_KEY_SSO_PROVIDER, providerName)
	sess.Set(SESSION_KEY_SSO_ACCESS_TOKEN, token.OAuth2Token.AccessToken)
	if err := sess.Save(); err != nil {
		slog.Error("Fail to save session", slog.String("op", op), slog.Any("error", err))
		c.Status(http.StatusInternalServerError)
		return
	}

	maxAge := int(s.config.Auth.ExpireDuration / time.Second)
	c.SetCookie(accessTokenCookie, tokenString, maxAge, "/", "", true, true)
	c.SetCookie("username", base64.StdEncoding.EncodeToString([]byte(userIdentity.User.Username)), maxAge, "/", "", true, false)
	if urlBeforeLogin != "" {
		c.Redirect(http.StatusFound, urlBeforeLogin)
		return
	}
	c.Status(http.StatusOK)
}

// Logout 清除本地登入狀態，並盡力通知SSO供應商撤銷令牌
// (GET /api/auth/logout)
func (s *Server) Logout(c *gin.Context) {
	const op = "Logout"
	sess, err := session.GetSession(c)
	if err != nil {
		slog.Error("Fail to get session", slog.String("op", op), slog.Any("error", err))
		c.Status(http.StatusInternalServerError)
		return
	}
	// 撤銷失敗不影響登出，令牌過期後自然失效
	if ssoToken := sess.Get(SESSION_KEY_SSO_ACCESS_TOKEN); ssoToken != "" {
		if provider, ok := s.oidcProviders[sess.Get(SESSION_KEY_SSO_PROVIDER)]; ok {
			if err := provider.Revoke(ssoToken); err != nil {
				slog.Warn("Fail to revoke sso token", slog.String("op", op), slog.Any("error", err))
			}
		}
	}
	sess.Clear()
	if err := sess.Save(); err != nil {
		slog.Error("Fail to save session", slog.String("op", op), slog.Any("error", err))
		c.Status(http.StatusInternalServerError)
		return
	}
	c.SetCookie(accessTokenCookie, "", -1, "/", "", true, true)
	c.SetCookie("username", "", -1, "/", "", true, false)
	c.Status(http.StatusOK)
}

// GetUserInfo 取得目前使用者的資訊與SSO綁定狀態
// (GET /api/user/info)
func (s *Server) GetUserInfo(c *gin.Context) {
	const op = "GetUserInfo"
	_, userID, ok := s.currentUser(c)
	if !ok {
		return
	}
	user := models.User{ID: userID}
	if result := s.db.Preload("Identities").Preload("Identities.SsoProvider").First(&user); result.Error != nil {
		slog.Error("Fail to find user", slog.String("op", op), slog.Any("error", result.Error))
		c.Status(http.StatusInternalServerError)
		return
	}
	providers := make([]string, 0, len(user.Identities))
	for _, identity := range user.Identities {
		if identity.SsoProvider != nil {
			providers = append(providers, identity.SsoProvider.Name)
		}
	}
	// 順便向SSO供應商確認目前session的令牌是否還有效
	ssoActive := false
	if sess, err := session.GetSession(c); err == nil {
		if ssoToken := sess.Get(SESSION_KEY_SSO_ACCESS_TOKEN); ssoToken != "" {
			if provider, ok := s.oidcProviders[sess.Get(SESSION_KEY_SSO_PROVIDER)]; ok {
				if info, err := provider.Introspect(ssoToken); err == nil {
					ssoActive = info.Active
				} else {
					slog.Warn("Fail to introspect sso token", slog.String("op", op), slog.Any("error", err))
				}
			}
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"username":     user.Username,
		"ssoProviders": providers,
		"ssoActive":    ssoActive,
	})
}

// UpdateUserInfo 更新使用者名稱
// (PATCH /api/user/info)
func (s *Server) UpdateUserInfo(c *gin.Context) {
	const op = "UpdateUserInfo"
	_, userID, ok := s.currentUser(c)
	if !ok {
		return
	}
	var body struct {
		Username string `json:"username" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: err.Error()})
		return
	}
	// 檢查新的使用者名稱是否合法
	username := strings.TrimSpace(body.Username)
	if len(username) == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "Username cannot be empty"})
		return
	}
	// 更新使用者資訊
	user := models.User{ID: userID, Username: username}
	if result := s.db.Updates(user); result.Error != nil {
		slog.Error("Fail to update user", slog.String("op", op), slog.Any("error", result.Error))
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Status(http.StatusOK)
}

func generateID(prefix string) (string, error) {
	const op = "generateID"
	bytes := make([]byte, 20)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("[%s] Fail to generate unique id, err=%w", op, err)
	}
	return prefix + "_" + base64.URLEncoding.EncodeToString(bytes), nil
}
