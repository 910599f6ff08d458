// Package auth holds the bearer token format and the password hasher.
package auth

import (
	"errors"

	"github.com/dmitrijs2005/accounts/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// Claims carries the owning user in Subject and the server-side token id in
// ID. No expiry is set: a token lives until it is revoked.
type Claims struct {
	jwt.RegisteredClaims
}

func GenerateToken(userID, tokenID string, secretKey []byte) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: userID,
			ID:      tokenID,
		},
	})

	return token.SignedString(secretKey)
}

// ParseToken verifies the signature and returns the user id and token id.
// Any failure is reported as common.ErrInvalidToken.
func ParseToken(tokenString string, secretKey []byte) (userID, tokenID string, err error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", "", errors.Join(common.ErrInvalidToken, err)
	}

	if !token.Valid || claims.Subject == "" || claims.ID == "" {
		return "", "", common.ErrInvalidToken
	}

	return claims.Subject, claims.ID, nil
}
