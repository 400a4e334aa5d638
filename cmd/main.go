package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"accounts/api/handler"
	apiMiddleware "accounts/api/middleware"
	"accounts/api/routes"
	"accounts/config"
	"accounts/internal/repository"
	"accounts/internal/service"
	"accounts/internal/utils"

	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	cfg, err := config.Load(logger)
	if err != nil {
		logger.WithError(err).Fatal("invalid configuration")
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	users, securityLogs := buildRepositories(cfg, logger)
	mailer := buildMailer(cfg, logger)
	objects := buildObjectStore(cfg, logger)

	jwtManager := utils.JWTManager{
		Secret:     []byte(cfg.JWTSecret),
		Issuer:     cfg.JWTIssuer,
		SessionTTL: cfg.SessionTTL,
		PurposeTTL: cfg.VerificationTokenTTL,
	}

	accountService := service.NewAccountService(
		users,
		securityLogs,
		mailer,
		objects,
		service.BcryptPasswordHasher{Cost: cfg.BcryptCost},
		service.JWTTokenIssuer{Manager: &jwtManager},
		service.RealClock{},
		service.AccountConfig{
			SessionTTL:           cfg.SessionTTL,
			VerificationTokenTTL: cfg.VerificationTokenTTL,
			ResetCodeTTL:         cfg.ResetCodeTTL,
			ResetCodeLength:      cfg.ResetCodeLength,
			UpstreamTimeout:      cfg.UpstreamTimeout,
			AppBaseURL:           cfg.AppBaseURL,
			AvatarMaxBytes:       service.DefaultAvatarMaxBytes,
		},
		logger,
	)

	validate := handler.NewValidator()
	authHandler := handler.NewAuthHandler(accountService, validate)
	accountHandler := handler.NewAccountHandler(accountService, validate, service.DefaultAvatarMaxBytes)

	app := echo.New()
	app.HideBanner = true
	app.HidePort = true
	app.HTTPErrorHandler = handler.HTTPErrorHandler(logger)
	app.Use(echoMiddleware.Recover())
	app.Use(echoMiddleware.RequestLoggerWithConfig(echoMiddleware.RequestLoggerConfig{
		LogStatus:   true,
		LogMethod:   true,
		LogURI:      true,
		LogRemoteIP: true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v echoMiddleware.RequestLoggerValues) error {
			entry := logger.WithFields(logrus.Fields{
				"status": v.Status,
				"method": v.Method,
				"uri":    v.URI,
				"ip":     v.RemoteIP,
			})
			if v.Error != nil {
				entry.WithError(v.Error).Error("request")
				return nil
			}
			entry.Info("request")
			return nil
		},
	}))

	authMiddleware := apiMiddleware.AuthMiddleware{Sessions: accountService}
	router := routes.NewRouter(
		app,
		authHandler,
		accountHandler,
		authMiddleware,
		apiMiddleware.PerMinute(cfg.RateLimitPerMinute*2, cfg.RateLimitBurst*2),
		apiMiddleware.PerMinute(cfg.RateLimitPerMinute, cfg.RateLimitBurst),
	)
	router.RegisterRoutes()

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.WithField("addr", cfg.HTTPAddr).Info("server started")
		if err := app.StartServer(server); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("server stopped")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := app.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("shutdown")
	}
	accountService.Wait()
	logger.Info("server stopped")
}

func buildRepositories(cfg config.Config, logger *logrus.Logger) (repository.UserRepository, repository.SecurityLogRepository) {
	if cfg.StorageDriver == config.StorageDriverMemory {
		logger.Warn("using in-memory storage; data is lost on restart")
		return repository.NewMemoryUserRepository(), repository.NewMemorySecurityLogRepository()
	}
	db, err := config.ConnectionDb(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("database unavailable")
	}
	return repository.NewUserRepository(db), repository.NewSecurityLogRepository(db)
}

func buildMailer(cfg config.Config, logger *logrus.Logger) service.Mailer {
	switch cfg.Mail.Driver {
	case config.MailDriverSMTP:
		return service.NewSMTPMailer(cfg.Mail.SMTPHost, cfg.Mail.SMTPPort, cfg.Mail.SMTPUsername, cfg.Mail.SMTPPassword, cfg.Mail.From)
	case config.MailDriverResend:
		return service.NewResendMailer(cfg.Mail.ResendAPIKey, cfg.Mail.From)
	default:
		return service.LogMailer{Logger: logger}
	}
}

func buildObjectStore(cfg config.Config, logger *logrus.Logger) service.ObjectStore {
	if !cfg.S3.Enabled() {
		logger.Warn("S3_BUCKET not set; avatar uploads are disabled")
		return nil
	}
	store, err := service.NewS3ObjectStore(context.Background(), service.S3Options{
		Region:        cfg.S3.Region,
		Endpoint:      cfg.S3.Endpoint,
		AccessKey:     cfg.S3.AccessKey,
		SecretKey:     cfg.S3.SecretKey,
		Bucket:        cfg.S3.Bucket,
		PublicBaseURL: cfg.S3.PublicBaseURL,
		UsePathStyle:  cfg.S3.UsePathStyle,
	})
	if err != nil {
		logger.WithError(err).Fatal("object storage unavailable")
	}
	return store
}
