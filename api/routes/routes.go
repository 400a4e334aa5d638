package routes

import (
	"fmt"
	"net/http"

	"accounts/api/handler"
	"accounts/api/middleware"

	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
)

type Router struct {
	Echo           *echo.Echo
	Auth           *handler.AuthHandler
	Accounts       *handler.AccountHandler
	AuthMiddleware middleware.AuthMiddleware
	AuthRate       *middleware.RateLimiter
	LoginRate      *middleware.RateLimiter
	// UploadLimit caps multipart bodies; it leaves room for form fields around
	// the avatar itself.
	UploadLimit int64
}

func NewRouter(
	e *echo.Echo,
	authHandler *handler.AuthHandler,
	accountHandler *handler.AccountHandler,
	authMiddleware middleware.AuthMiddleware,
	authRate *middleware.RateLimiter,
	loginRate *middleware.RateLimiter,
) *Router {
	return &Router{
		Echo:           e,
		Auth:           authHandler,
		Accounts:       accountHandler,
		AuthMiddleware: authMiddleware,
		AuthRate:       authRate,
		LoginRate:      loginRate,
		UploadLimit:    2 * accountHandler.AvatarMaxBytes,
	}
}

func (r *Router) RegisterRoutes() {
	e := r.Echo

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	auth := e.Group("/auth")
	auth.POST("/register", r.Auth.Register, r.AuthRate.Middleware())
	auth.POST("/login", r.Auth.Login, r.LoginRate.Middleware())
	auth.POST("/password/forgot", r.Auth.PasswordForgot, r.LoginRate.Middleware())
	auth.POST("/password/validate", r.Auth.PasswordValidate, r.LoginRate.Middleware())
	auth.POST("/password/reset", r.Auth.PasswordReset, r.LoginRate.Middleware())
	auth.GET("/verify-email/:token", r.Auth.VerifyEmail, r.AuthRate.Middleware())
	auth.POST("/verify-email", r.Auth.VerifyEmail, r.AuthRate.Middleware())
	auth.GET("/me", r.Accounts.Me, r.AuthMiddleware.RequireAuth)

	uploadLimit := echoMiddleware.BodyLimit(fmt.Sprintf("%dB", r.UploadLimit))
	users := e.Group("/users/:id", r.AuthMiddleware.RequireAuth)
	users.GET("", r.Accounts.Get)
	users.PUT("", r.Accounts.Update, uploadLimit)
	users.DELETE("", r.Accounts.Delete)
	users.POST("/logout", r.Accounts.Logout)
	users.PUT("/avatar", r.Accounts.UploadAvatar, uploadLimit)
	users.PUT("/password", r.Accounts.ChangePassword)
	users.POST("/verification", r.Accounts.RequestVerification)
	users.GET("/export", r.Accounts.Export)
}
