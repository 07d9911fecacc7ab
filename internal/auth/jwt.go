package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// GenerateToken mints an HS256 token for a channel integration. The
// subject identifies the integration (e.g. "telegram-bot"), not an end
// user; end users are identified by the external id in each request.
func GenerateToken(secret []byte, subject string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub": subject,
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// ValidateToken checks signature and expiry and returns the subject.
func ValidateToken(secret []byte, tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})

	if err != nil {
		return "", err
	}

	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		subject, _ := claims["sub"].(string)
		if subject == "" {
			return "", fmt.Errorf("token has no subject")
		}
		return subject, nil
	}

	return "", fmt.Errorf("invalid token")
}
