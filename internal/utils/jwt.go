package utils

import (
	"time"

	"github.com/golang-jwt/jwt/v4"

	"crou/internal/models"
)

// Claims embed the denormalized permission snapshot of the user's role at
// issue time. The snapshot can go stale until re-authentication; role edits
// do not invalidate outstanding tokens.
type Claims struct {
	UserID      string   `json:"user_id"`
	TenantID    string   `json:"tenant_id"`
	RoleID      string   `json:"role_id"`
	Email       string   `json:"email"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
	jwt.RegisteredClaims
}

func GenerateJWT(user models.User, secret string, ttl time.Duration) (string, error) {
	var roleName string
	var permissions []string
	if user.Role != nil {
		roleName = user.Role.Name
		permissions = user.Role.Scopes()
	}

	claims := Claims{
		UserID:      user.ID,
		TenantID:    user.TenantID,
		RoleID:      user.RoleID,
		Email:       user.Email,
		Role:        roleName,
		Permissions: permissions,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseJWT parses and validates a JWT token
func ParseJWT(tokenString, secret string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})

	if err != nil {
		return nil, err
	}

	if !token.Valid {
		return nil, jwt.ErrSignatureInvalid
	}

	return claims, nil
}

// GenerateRefreshToken generates a refresh token carrying only the subject id
func GenerateRefreshToken(user models.User, secret string, ttl time.Duration) (string, error) {
	claims := Claims{
		UserID: user.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseRefreshToken parses and validates a refresh token
func ParseRefreshToken(tokenString, secret string) (*Claims, error) {
	return ParseJWT(tokenString, secret)
}
