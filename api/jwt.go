package api

import (
	"crypto"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type JWT struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// IssueJWT 為指定的使用者簽發一個新的存取令牌
func IssueJWT(userID uuid.UUID, username string, auth AuthConfig) (string, error) {
	const op = "IssueJWT"
	now := time.Now()
	token := jwt.NewWithClaims(&jwt.SigningMethodEd25519{}, JWT{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(auth.ExpireDuration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    auth.Issuer,
			Subject:   userID.String(),
			ID:        uuid.NewString(),
			Audience:  []string{auth.Audience},
		},
	})
	tokenString, err := token.SignedString(auth.PrivateKey)
	if err != nil {
		return "", fmt.Errorf("[%s] Fail to sign JWT, err=%w", op, err)
	}
	return tokenString, nil
}

func ParseAndValidateJWT(tokenString string, secret crypto.Signer) (*JWT, error) {
	const op = "ParseJWT"
	token, err := jwt.ParseWithClaims(tokenString, &JWT{}, func(token *jwt.Token) (interface{}, error) {
		return secret.Public(), nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("%s: token is invalid", op)
	}
	claims, ok := token.Claims.(*JWT)
	if !ok {
		return nil, fmt.Errorf("%s: token claims are invalid", op)
	}
	return claims, nil
}
