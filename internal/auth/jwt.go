package auth

import (
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/kiwari-pos/orderdesk/internal/enum"
)

// Claims is the session object attached to every request. Tokens are issued
// by the remote API; orderdesk only verifies them.
type Claims struct {
	UserID   uuid.UUID `json:"user_id"`
	Role     string    `json:"role"`
	Features []string  `json:"feature_roles,omitempty"`
	jwt.RegisteredClaims
}

// IsAdmin reports whether the role bypasses feature checks.
func (c *Claims) IsAdmin() bool {
	return c.Role == enum.UserRoleAdmin || c.Role == enum.UserRoleSubAdmin
}

// Can reports whether the user may use feature.
func (c *Claims) Can(feature string) bool {
	if c == nil {
		return false
	}
	return c.IsAdmin() || slices.Contains(c.Features, feature)
}

func GenerateToken(secret string, userID uuid.UUID, role string, features []string, ttl time.Duration) (string, error) {
	claims := Claims{
		UserID:   userID,
		Role:     role,
		Features: features,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func ValidateToken(secret, tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.UserID == uuid.Nil {
		return nil, fmt.Errorf("token has no user")
	}
	return claims, nil
}
