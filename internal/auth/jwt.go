package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrTokenExpired means the token was well formed and correctly signed
	// but its expiry has passed. Callers should prompt a fresh login.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid covers every other decode failure: bad signature,
	// wrong issuer, malformed or missing claims.
	ErrTokenInvalid = errors.New("invalid token")
)

// Claims is the identity assertion carried by every authorized request.
// SchoolID is the account's own school assignment; it is empty for
// super-admins, whose breadth comes from school access grants instead.
type Claims struct {
	AccountID   string `json:"account_id"`
	AccountKind string `json:"account_kind"`
	Role        string `json:"role"`
	TenantID    string `json:"tenant_id"`
	SchoolID    string `json:"school_id,omitempty"`
	jwt.RegisteredClaims
}

func NewAccessToken(secret, issuer string, ttl time.Duration, claims Claims) (string, error) {
	now := time.Now().UTC()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   claims.AccountID,
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func ParseToken(secret, issuer, tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, ErrTokenInvalid
		}
		return []byte(secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.Issuer != issuer {
		return nil, ErrTokenInvalid
	}
	if claims.AccountID == "" || claims.TenantID == "" || claims.AccountKind == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
