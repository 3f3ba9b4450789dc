package authn

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// claims is the bearer-token payload this realm issues. Grounded on
// lib/middleware/oapi_auth.go's jwt.MapClaims HMAC validation, given a
// concrete claim type here since this token has exactly one shape (unlike
// the teacher's registry-vs-user token disambiguation, there is only one
// kind of bearer token in this system).
type claims struct {
	jwt.RegisteredClaims
	RoleIDs []string `json:"role_ids"`
}

// IssueJWT signs a bearer token for userID, valid for ttl.
func IssueJWT(secret, userID string, roleIDs []string, ttl time.Duration) (string, error) {
	now := time.Now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		RoleIDs: roleIDs,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign jwt: %w", err)
	}
	return signed, nil
}

// ParseJWT validates tokenString against secret and returns the Principal
// it names. Any parse/signature/expiry failure collapses to
// ErrInvalidCredentials, exactly as the teacher's JwtAuth middleware never
// distinguishes "expired" from "malformed" to the caller.
func ParseJWT(secret, tokenString string) (*Principal, error) {
	c := &claims{}
	token, err := jwt.ParseWithClaims(tokenString, c, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidCredentials
	}
	return &Principal{UserID: c.Subject, RoleIDs: c.RoleIDs, Via: "jwt"}, nil
}
