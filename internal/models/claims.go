package models

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims представляет поля access-токена, выданного сервисом аутентификации.
type Claims struct {
	UserID uuid.UUID `json:"user_id"`
	jwt.RegisteredClaims
}

// UserIDKey - ключ gin-контекста с идентификатором пользователя.
const UserIDKey = "user_id"
