package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Tokens are issued by the platform's auth service with a shared HS256
// secret; this service only verifies them. GenerateJWT exists for tests and
// local development.

func GenerateJWT(secret []byte, userID uint64, name string, isAdmin bool) (string, error) {
	claims := jwt.MapClaims{
		"user_id":   userID,
		"user_name": name,
		"is_admin":  isAdmin,
		"exp":       time.Now().Add(time.Hour * 24 * 3).Unix(), // expires in 3 days
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

func VerifyJWT(secret []byte, tokenString string) (*jwt.Token, error) {
	jwtToken, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return secret, nil
	})

	if err != nil {
		return nil, err
	}

	if !jwtToken.Valid {
		return nil, errors.New("token invalid")
	}

	return jwtToken, nil
}

// GetDataFromToken extracts the trusted identity claims from a verified token.
func GetDataFromToken(token *jwt.Token) (userID uint64, name string, isAdmin bool, err error) {
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, "", false, errors.New("invalid token claims")
	}

	rawID, ok := claims["user_id"].(float64)
	if !ok || rawID <= 0 {
		return 0, "", false, errors.New("user_id claim missing")
	}

	name, _ = claims["user_name"].(string)
	isAdmin, _ = claims["is_admin"].(bool)

	return uint64(rawID), name, isAdmin, nil
}
