package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"accounts/internal/entity"
	"accounts/internal/service"

	"github.com/labstack/echo/v4"
)

type SessionResolver interface {
	ResolveSession(ctx context.Context, token string) (*entity.User, error)
}

// AuthMiddleware accepts the session token from the Authorization header only.
type AuthMiddleware struct {
	Sessions SessionResolver
}

func (m AuthMiddleware) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if m.Sessions == nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "unauthenticated")
		}
		token := extractBearerToken(c.Request())
		if token == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
		}
		user, err := m.Sessions.ResolveSession(c.Request().Context(), token)
		if err != nil {
			if errors.Is(err, service.ErrUnauthenticated) {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired session")
			}
			return err
		}
		SetAuthContext(c, user)
		return next(c)
	}
}

func extractBearerToken(r *http.Request) string {
	authorization := r.Header.Get(echo.HeaderAuthorization)
	if authorization == "" {
		return ""
	}
	parts := strings.SplitN(authorization, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
