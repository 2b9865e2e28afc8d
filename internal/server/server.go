// Package server assembles the portal backend from its configured collaborators.
package server

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/classroom-portal/internal/config"
	"github.com/noah-isme/classroom-portal/internal/handler"
	"github.com/noah-isme/classroom-portal/internal/middleware"
	"github.com/noah-isme/classroom-portal/internal/repository"
	"github.com/noah-isme/classroom-portal/internal/router"
	"github.com/noah-isme/classroom-portal/internal/service"
)

// Options carries the infrastructure the backend runs on. Redis, NATS and
// Storage are optional.
type Options struct {
	Config   config.Config
	DB       *gorm.DB
	Redis    *redis.Client
	NATS     *nats.Conn
	Storage  service.FileStorage
	Notifier service.Notifier
	Logger   zerolog.Logger
}

// Server is the assembled backend.
type Server struct {
	App      *fiber.App
	Events   service.AuthEventHub
	Accounts service.AccountService
	Auth     service.AuthService
}

// New wires repositories, services, handlers and routes into a fiber app.
func New(opts Options) *Server {
	cfg := opts.Config
	logger := opts.Logger
	validate := validator.New(validator.WithRequiredStructEnabled())

	accountRepo := repository.NewAccountRepository(opts.DB)
	classRepo := repository.NewClassRepository(opts.DB)
	moduleRepo := repository.NewModuleRepository(opts.DB)
	resourceRepo := repository.NewResourceRepository(opts.DB)
	enrollmentRepo := repository.NewEnrollmentRepository(opts.DB)
	noteRepo := repository.NewNoteRepository(opts.DB)
	progressRepo := repository.NewProgressRepository(opts.DB)

	notifier := opts.Notifier
	if notifier == nil {
		notifier = service.NewNotifier(service.NotifierConfig{
			AppName:        cfg.AppName,
			SendGridAPIKey: cfg.SendGridAPIKey,
			FromName:       cfg.MailFromName,
			FromAddress:    cfg.MailFromAddress,
			NATS:           opts.NATS,
			NATSSubject:    cfg.NotificationSubject,
		}, logger)
	}

	events := service.NewAuthEventHub(opts.Redis, "", logger)
	authService := service.NewAuthService(accountRepo, notifier, events, service.TokenSettings{
		AccessSecret:  cfg.JWTSecret,
		RefreshSecret: cfg.JWTRefreshSecret,
		AccessTTL:     cfg.AccessTokenTTL,
		RefreshTTL:    cfg.RefreshTokenTTL,
		ResetTTL:      cfg.ResetTokenTTL,
		PublicURL:     cfg.PublicURL,
	}, validate, logger)
	accountService := service.NewAccountService(accountRepo, authService, validate, logger)

	enrollmentService := service.NewEnrollmentService(enrollmentRepo, classRepo, opts.Redis, cfg.EnrollmentCacheTTL, validate, logger)
	classService := service.NewClassService(classRepo, enrollmentService, validate, logger)
	moduleService := service.NewModuleService(moduleRepo, classRepo, enrollmentService, validate, logger)
	resourceService := service.NewResourceService(resourceRepo, moduleRepo, opts.Storage, enrollmentService, cfg.UploadMaxBytes, validate, logger)
	noteService := service.NewNoteService(noteRepo, enrollmentRepo, cfg.NoteMaxBytes, logger)
	progressService := service.NewProgressService(progressRepo, enrollmentRepo, logger)

	jwtMiddleware := middleware.JWTProtected(cfg.JWTSecret)
	loginLimiter := middleware.RateLimit("login", cfg.LoginRateLimit, 0)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		BodyLimit:    int(cfg.UploadMaxBytes) + 1<<20,
	})

	middleware.Register(app, middleware.Config{
		Logger:    &logger,
		AccessLog: cfg.AppEnv == "development",
	})
	router.Register(app, cfg, router.Dependencies{
		AuthHandler:         handler.NewAuthHandler(authService, jwtMiddleware, loginLimiter, logger),
		StudentHandler:      handler.NewStudentHandler(classService, enrollmentService, noteService, progressService, logger),
		AdminContentHandler: handler.NewAdminContentHandler(classService, moduleService, resourceService, logger),
		ManageUsersHandler:  handler.NewManageUsersHandler(accountService, cfg.JWTSecret, logger),
		HealthProbes:        probes(opts),
		JWTMiddleware:       jwtMiddleware,
	})

	return &Server{
		App:      app,
		Events:   events,
		Accounts: accountService,
		Auth:     authService,
	}
}

func probes(opts Options) map[string]handler.Probe {
	checks := map[string]handler.Probe{
		"database": func(ctx context.Context) error {
			sqlDB, err := opts.DB.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
	if opts.Redis != nil {
		checks["redis"] = func(ctx context.Context) error {
			return opts.Redis.Ping(ctx).Err()
		}
	}
	if opts.NATS != nil {
		checks["nats"] = func(context.Context) error {
			if !opts.NATS.IsConnected() {
				return nats.ErrConnectionClosed
			}
			return nil
		}
	}
	return checks
}
