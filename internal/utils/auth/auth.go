package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/talx-hub/gopher-loyalty/internal/serviceerrs"
)

const TokenExpire = 24 * time.Hour

const bearerPrefix = "Bearer "

var ErrNoToken = errors.New("no bearer token")

// Claims identify the calling service, e.g. the backoffice or the POS gateway.
type Claims struct {
	jwt.RegisteredClaims
	CallerID string `json:"caller_id"`
}

func BuildToken(callerID string, secret []byte, ttl time.Duration, now time.Time) (string, error) {
	if ttl <= 0 {
		ttl = TokenExpire
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256,
		Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			},
			CallerID: callerID,
		},
	)
	tokenString, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("JWT signing: %w", err)
	}
	return tokenString, nil
}

// FromHeader extracts the token from an Authorization header value.
func FromHeader(header string) (string, error) {
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", ErrNoToken
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
	if token == "" {
		return "", ErrNoToken
	}
	return token, nil
}

func CheckToken(tokenString string, secret []byte) (Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(
		tokenString, claims,
		func(token *jwt.Token) (interface{}, error) {
			return secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if errors.Is(err, jwt.ErrTokenExpired) {
		return Claims{}, serviceerrs.ErrTokenExpired
	}
	if err != nil {
		return Claims{}, fmt.Errorf("failed to parse token %w", err)
	}
	if claims.CallerID == "" {
		return Claims{}, fmt.Errorf("token has no caller: %w", ErrNoToken)
	}
	return *claims, nil
}
