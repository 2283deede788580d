package middleware

import (
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/yoockh/meetsense/internal/models"
	"github.com/yoockh/meetsense/internal/utils"
)

type apiError struct {
	Code    utils.Code `json:"code"`
	Message string     `json:"message"`
}

type JWTConfig struct {
	Secret   string
	Issuer   string // optional
	Audience string // optional
}

type claims struct {
	jwt.RegisteredClaims
	Role        string         `json:"role"`
	AppMetadata map[string]any `json:"app_metadata"` // {"role":"host"} is also accepted here
}

func (c *claims) appRole() string {
	if c.AppMetadata != nil {
		if s, ok := c.AppMetadata["role"].(string); ok && s != "" {
			return s
		}
	}
	switch models.UserRole(c.Role) {
	case models.RoleHost, models.RoleAdmin, models.RoleParticipant:
		return c.Role
	}
	return string(models.RoleParticipant)
}

func unauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, apiError{Code: utils.CodeUnauthorized, Message: msg})
}

func JWTAuth(cfg JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.Secret == "" {
			c.AbortWithStatusJSON(http.StatusInternalServerError, apiError{
				Code:    utils.CodeInternal,
				Message: "JWT_SECRET is not set",
			})
			return
		}

		raw := bearer(c)
		if raw == "" {
			unauthorized(c, "missing bearer token")
			return
		}

		cl := &claims{}
		tok, err := jwt.ParseWithClaims(raw, cl, func(t *jwt.Token) (any, error) {
			return []byte(cfg.Secret), nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

		if err != nil || tok == nil || !tok.Valid {
			unauthorized(c, "invalid token")
			return
		}
		if cfg.Issuer != "" && cl.Issuer != cfg.Issuer {
			unauthorized(c, "invalid token issuer")
			return
		}
		if cfg.Audience != "" && !slices.Contains(cl.Audience, cfg.Audience) {
			unauthorized(c, "invalid token audience")
			return
		}
		if cl.Subject == "" {
			unauthorized(c, "missing subject")
			return
		}

		c.Set("user_id", cl.Subject)
		c.Set("role", cl.appRole())
		c.Next()
	}
}

// bearer reads the Authorization header, falling back to ?access_token= for
// websocket upgrades where browsers cannot set headers.
func bearer(c *gin.Context) string {
	auth := c.GetHeader("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	if c.GetHeader("Upgrade") != "" {
		return strings.TrimSpace(c.Query("access_token"))
	}
	return ""
}
