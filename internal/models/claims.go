package models

import "github.com/golang-jwt/jwt/v5"

// Claims - полезная нагрузка JWT токена пользователя.
type Claims struct {
	UserID uint64 `json:"user_id"`
	jwt.RegisteredClaims
}
