package middleware

import (
	"collab-docs-server/auth"
	"collab-docs-server/internal/domain"
	"collab-docs-server/internal/errors"
	"context"
	"strings"

	"github.com/gin-gonic/gin"
)

type UserProvider interface {
	GetUserByID(ctx context.Context, id uint64) (*domain.User, error)
}

type Auth struct {
	Users          UserProvider
	JWTSecret      []byte
	InternalSecret string
}

// AuthMiddleware verifies the platform-issued JWT and loads the caller
// identity into the request context. Websocket clients can't set headers, so
// a token query param is accepted as well.
func (m *Auth) AuthMiddleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		authHeader := ctx.GetHeader("Authorization")
		var token string

		if authHeader != "" {
			token = strings.TrimPrefix(authHeader, "Bearer ")
		} else if tokenQuery := ctx.Query("token"); tokenQuery != "" {
			token = tokenQuery
		} else {
			ctx.Error(errors.Unauthorized("Authorization is not found!", nil))
			ctx.Abort()
			return
		}

		parsedToken, err := auth.VerifyJWT(m.JWTSecret, token)
		if err != nil {
			ctx.Error(errors.Unauthorized("Invalid token!", err))
			ctx.Abort()
			return
		}

		userID, name, isAdmin, err := auth.GetDataFromToken(parsedToken)
		if err != nil {
			ctx.Error(errors.Unauthorized("Invalid token!", err))
			ctx.Abort()
			return
		}

		user, err := m.Users.GetUserByID(ctx.Request.Context(), userID)
		if err != nil {
			ctx.Error(errors.Unauthorized("Invalid User ID!", err))
			ctx.Abort()
			return
		}

		if !user.IsActive {
			ctx.Error(errors.Unauthorized("User is deactivated!", nil))
			ctx.Abort()
			return
		}

		if name == "" {
			name = user.Name
		}

		ctx.Set("user_id", userID)
		ctx.Set("user_name", name)
		ctx.Set("is_admin", isAdmin || user.IsAdmin)
		ctx.Next()
	}
}

// InternalAuthMiddleware protects server-to-server routes with a shared secret.
func (m *Auth) InternalAuthMiddleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		token := strings.TrimPrefix(
			ctx.GetHeader("Authorization"),
			"Bearer ",
		)

		if token != m.InternalSecret {
			ctx.Error(errors.Unauthorized("Unauthorized internal call!", nil))
			ctx.Abort()
			return
		}

		ctx.Next()
	}
}

// IdentityFrom reads the identity placed in the context by AuthMiddleware.
func IdentityFrom(c *gin.Context) domain.Identity {
	userID, _ := c.Get("user_id")
	name, _ := c.Get("user_name")
	isAdmin, _ := c.Get("is_admin")

	ident := domain.Identity{}
	if id, ok := userID.(uint64); ok {
		ident.UserID = id
	}
	if n, ok := name.(string); ok {
		ident.Name = n
	}
	if a, ok := isAdmin.(bool); ok {
		ident.IsAdmin = a
	}
	return ident
}
