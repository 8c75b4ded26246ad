package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Dhoini/kleenpride-booking-service/internal/domain"
	"github.com/Dhoini/kleenpride-booking-service/pkg/logger"
	"github.com/Dhoini/kleenpride-booking-service/pkg/res"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	// ContextActorKey ключ, под которым в gin.Context хранится domain.Actor
	ContextActorKey  = "actor"
	authHeaderPrefix = "Bearer "
)

// TokenValidator проверяет токен доступа
type TokenValidator interface {
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims утверждения токена доступа
type TokenClaims struct {
	Email     string           `json:"email"`
	FirstName string           `json:"given_name,omitempty"`
	LastName  string           `json:"family_name,omitempty"`
	Role      string           `json:"role"`
	AuthTime  *jwt.NumericDate `json:"auth_time,omitempty"`
	jwt.RegisteredClaims
}

// Actor переводит утверждения токена в пользователя домена.
// Без auth_time временем входа считается iat.
func (c *TokenClaims) Actor() domain.Actor {
	actor := domain.Actor{
		ID:        c.Subject,
		Email:     c.Email,
		FirstName: c.FirstName,
		LastName:  c.LastName,
		Role:      domain.Role(strings.ToLower(c.Role)),
	}
	if actor.Role == "" {
		actor.Role = domain.RoleCustomer
	}
	switch {
	case c.AuthTime != nil:
		actor.AuthenticatedAt = c.AuthTime.Time
	case c.IssuedAt != nil:
		actor.AuthenticatedAt = c.IssuedAt.Time
	}
	return actor
}

// JWTMiddleware аутентифицирует запросы по заголовку Authorization
type JWTMiddleware struct {
	log       *logger.Logger
	validator TokenValidator
}

// NewJWTMiddleware создает middleware аутентификации
func NewJWTMiddleware(validator TokenValidator, log *logger.Logger) *JWTMiddleware {
	return &JWTMiddleware{log: log, validator: validator}
}

// RequireAuth требует валидный токен; при перечислении ролей actor должен иметь одну из них
func (m *JWTMiddleware) RequireAuth(roles ...domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			m.handleAuthError(c, http.StatusUnauthorized, "missing authorization token")
			return
		}
		if !strings.HasPrefix(authHeader, authHeaderPrefix) {
			m.handleAuthError(c, http.StatusUnauthorized, "invalid authorization header format")
			return
		}

		claims, err := m.validator.Validate(strings.TrimPrefix(authHeader, authHeaderPrefix))
		if err != nil {
			m.handleAuthError(c, http.StatusUnauthorized, fmt.Sprintf("token validation failed: %v", err))
			return
		}
		if claims.Subject == "" {
			m.handleAuthError(c, http.StatusUnauthorized, "user id (sub) missing in token")
			return
		}

		actor := claims.Actor()
		if !hasRole(actor.Role, roles) {
			m.handleAuthError(c, http.StatusForbidden, "insufficient role")
			return
		}

		c.Set(ContextActorKey, actor)
		m.log.Debugw("User authenticated", "user_id", actor.ID, "role", actor.Role)
		c.Next()
	}
}

// RequireRole ограничивает доступ ролями; ставится после RequireAuth
func (m *JWTMiddleware) RequireRole(roles ...domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := ActorFrom(c)
		if !ok {
			m.handleAuthError(c, http.StatusUnauthorized, "request is not authenticated")
			return
		}
		if !hasRole(actor.Role, roles) {
			m.handleAuthError(c, http.StatusForbidden, "insufficient role")
			return
		}
		c.Next()
	}
}

// ActorFrom возвращает аутентифицированного пользователя запроса
func ActorFrom(c *gin.Context) (domain.Actor, bool) {
	v, ok := c.Get(ContextActorKey)
	if !ok {
		return domain.Actor{}, false
	}
	actor, ok := v.(domain.Actor)
	return actor, ok
}

func hasRole(role domain.Role, allowed []domain.Role) bool {
	if len(allowed) == 0 || role == domain.RoleAdmin {
		return true
	}
	for _, r := range allowed {
		if r == role {
			return true
		}
	}
	return false
}

func (m *JWTMiddleware) handleAuthError(c *gin.Context, status int, message string) {
	m.log.Warnw("HTTP authentication failed", "path", c.Request.URL.Path, "status", status, "error", message)
	code := "unauthenticated"
	if status == http.StatusForbidden {
		code = "forbidden"
	}
	res.Error(c, status, res.ErrorResponse{Error: message, ErrorCode: code})
}

// HMACTokenValidator проверяет токены, подписанные общим секретом (HS256)
type HMACTokenValidator struct {
	Secret []byte
}

// NewHMACTokenValidator создает валидатор для секрета
func NewHMACTokenValidator(secret string) *HMACTokenValidator {
	return &HMACTokenValidator{Secret: []byte(secret)}
}

// Validate разбирает и проверяет токен
func (v *HMACTokenValidator) Validate(tokenString string) (*TokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, errors.New("malformed token")
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, errors.New("invalid token signature")
		case errors.Is(err, jwt.ErrTokenExpired), errors.Is(err, jwt.ErrTokenNotValidYet):
			return nil, errors.New("token expired")
		default:
			return nil, fmt.Errorf("invalid token: %w", err)
		}
	}

	if claims, ok := token.Claims.(*TokenClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token claims")
}
