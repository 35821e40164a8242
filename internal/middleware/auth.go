package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"novel-fork/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// UserIDContextKey - ключ gin-контекста, под которым лежит uuid.UUID пользователя.
const UserIDContextKey = models.UserIDKey

// JWTVerifier проверяет access-токены, подписанные HMAC-секретом сервиса аутентификации.
type JWTVerifier struct {
	secret []byte
	logger *zap.Logger
}

func NewJWTVerifier(secret string, logger *zap.Logger) (*JWTVerifier, error) {
	if secret == "" {
		return nil, errors.New("JWT secret cannot be empty")
	}
	return &JWTVerifier{secret: []byte(secret), logger: logger.Named("JWTVerifier")}, nil
}

// VerifyToken проверяет подпись и срок действия токена и извлекает claims.
func (v *JWTVerifier) VerifyToken(tokenString string) (*models.Claims, error) {
	claims := &models.Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, models.ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, models.ErrTokenMalformed
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, models.ErrTokenInvalid
		}
		return nil, fmt.Errorf("%w: %v", models.ErrTokenInvalid, err)
	}
	if !token.Valid {
		return nil, models.ErrTokenInvalid
	}
	if claims.UserID == uuid.Nil {
		return nil, fmt.Errorf("%w: user_id missing", models.ErrTokenInvalid)
	}
	return claims, nil
}

// extractToken берёт токен из заголовка Authorization, а для WebSocket - из ?token=.
func extractToken(c *gin.Context) (string, bool) {
	if header := c.GetHeader("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
			return "", false
		}
		return strings.TrimSpace(parts[1]), true
	}
	if token := c.Query("token"); token != "" {
		return token, true
	}
	return "", false
}

// Auth требует валидный JWT и кладёт идентификатор пользователя в контекст.
func Auth(verifier *JWTVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		log := verifier.logger.With(zap.String("path", c.Request.URL.Path))
		tokenString, ok := extractToken(c)
		if !ok {
			log.Debug("Missing or malformed Authorization header")
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{
				Code: models.ErrCodeTokenInvalid, Message: "Unauthorized: missing or malformed token",
			})
			return
		}
		claims, err := verifier.VerifyToken(tokenString)
		if err != nil {
			code, msg := models.ErrCodeTokenInvalid, "Unauthorized: invalid token"
			if errors.Is(err, models.ErrTokenExpired) {
				code, msg = models.ErrCodeTokenExpired, "Unauthorized: token expired"
			}
			log.Warn("Token verification failed", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{Code: code, Message: msg})
			return
		}
		c.Set(UserIDContextKey, claims.UserID)
		c.Next()
	}
}

// UserID достаёт идентификатор пользователя, проставленный Auth.
func UserID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(UserIDContextKey)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}
