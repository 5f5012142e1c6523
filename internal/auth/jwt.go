package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/HanTheDev/multi-tenant-dashboard/internal/models"
)

const DefaultTokenTTL = 24 * time.Hour

// Claims identify the caller. Tenant and user always come from the token,
// never from ambient state.
type Claims struct {
	TenantID int64 `json:"tenant_id"`
	UserID   int64 `json:"user_id"`
	Admin    bool  `json:"admin,omitempty"`
	jwt.RegisteredClaims
}

// Scope is the caller's scope on the given dashboard.
func (c *Claims) Scope(dashboard string) models.Scope {
	return models.Scope{TenantID: c.TenantID, UserID: c.UserID, Dashboard: dashboard}
}

func GenerateToken(tenantID, userID int64, admin bool, secret string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	now := time.Now()
	claims := &Claims{
		TenantID: tenantID,
		UserID:   userID,
		Admin:    admin,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func ValidateToken(tokenString, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		if claims.TenantID <= 0 || claims.UserID <= 0 {
			return nil, errors.New("token carries no tenant or user")
		}
		return claims, nil
	}

	return nil, errors.New("invalid token")
}
