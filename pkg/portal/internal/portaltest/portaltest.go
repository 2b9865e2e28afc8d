// Package portaltest runs the real portal backend in-process for client tests.
package portaltest

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/noah-isme/classroom-portal/internal/config"
	"github.com/noah-isme/classroom-portal/internal/database"
	"github.com/noah-isme/classroom-portal/internal/models"
	"github.com/noah-isme/classroom-portal/internal/server"
	"github.com/noah-isme/classroom-portal/internal/service"
)

// BaseURL is the nominal address of the in-process backend.
const BaseURL = "http://portal.test"

// Password is the password of every seeded account.
const Password = "correct-horse-battery"

// Backend is a running in-process backend with direct database access for seeding.
type Backend struct {
	t      *testing.T
	DB     *gorm.DB
	Redis  *redis.Client
	Server *server.Server
	Config config.Config
	Mail   *Outbox
}

// Outbox records out-of-band notifications instead of sending them.
type Outbox struct {
	mu   sync.Mutex
	sent []service.AccountNotification
}

// Notify implements service.Notifier.
func (o *Outbox) Notify(_ context.Context, notification service.AccountNotification) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, notification)
	return nil
}

// Sent returns every recorded notification in send order.
func (o *Outbox) Sent() []service.AccountNotification {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]service.AccountNotification(nil), o.sent...)
}

// New starts a backend on an isolated in-memory database and miniredis.
// configure adjusts the backend settings before the server is built.
func New(t *testing.T, configure ...func(*config.Config)) *Backend {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })

	cfg := config.Config{
		AppName:            "Classroom Portal",
		AppEnv:             "test",
		PublicURL:          "http://portal.test",
		JWTSecret:          "test-access-secret",
		JWTRefreshSecret:   "test-refresh-secret",
		AccessTokenTTL:     time.Hour,
		RefreshTokenTTL:    24 * time.Hour,
		ResetTokenTTL:      30 * time.Minute,
		EnrollmentCacheTTL: time.Minute,
		NoteMaxBytes:       256 * 1024,
		UploadMaxBytes:     1 << 20,
		LoginRateLimit:     1000,
	}
	for _, fn := range configure {
		fn(&cfg)
	}

	outbox := &Outbox{}
	srv := server.New(server.Options{
		Config:   cfg,
		DB:       db,
		Redis:    redisClient,
		Notifier: outbox,
		Logger:   zerolog.Nop(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	srv.Events.Start(ctx)

	return &Backend{t: t, DB: db, Redis: redisClient, Server: srv, Config: cfg, Mail: outbox}
}

// HTTPClient returns a client whose requests are served by the in-process app.
func (b *Backend) HTTPClient() *http.Client {
	return &http.Client{Transport: appTransport{app: b.Server.App}}
}

// Serve exposes the app on a loopback listener, for websocket clients, and returns its URL.
func (b *Backend) Serve() string {
	b.t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(b.t, err)

	go func() { _ = b.Server.App.Listener(listener) }()
	b.t.Cleanup(func() { _ = b.Server.App.ShutdownWithTimeout(time.Second) })

	return "http://" + listener.Addr().String()
}

type appTransport struct {
	app *fiber.App
}

func (a appTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := req.Context().Err(); err != nil {
		return nil, err
	}
	resp, err := a.app.Test(req, -1)
	if err != nil {
		return nil, err
	}
	resp.Request = req
	return resp, nil
}

// Account creates a confirmed account with the given role and Password.
func (b *Backend) Account(email, fullName, role string) models.Account {
	b.t.Helper()
	account := models.Account{Email: email, FullName: fullName, Role: role, EmailConfirmed: true}
	require.NoError(b.t, account.SetPassword(Password))
	require.NoError(b.t, b.DB.Create(&account).Error)
	return account
}

// Class seeds a class starting on startDate (YYYY-MM-DD, may be empty) with
// modules in the given order.
func (b *Backend) Class(title, startDate string, moduleTitles ...string) models.Class {
	b.t.Helper()
	class := models.Class{
		Title:          title,
		Description:    title + " description",
		InstructorName: "Dr. Rivera",
		ScheduleData:   datatypes.NewJSONType(models.Schedule{StartDate: startDate}),
	}
	require.NoError(b.t, b.DB.Omit("Modules").Create(&class).Error)

	for i, moduleTitle := range moduleTitles {
		module := models.Module{
			ClassID:     class.ID,
			Title:       moduleTitle,
			Description: moduleTitle + " overview",
			Order:       i + 1,
		}
		require.NoError(b.t, b.DB.Omit("Resources").Create(&module).Error)
		class.Modules = append(class.Modules, module)
	}
	return class
}

// Resource attaches a link resource to module.
func (b *Backend) Resource(module models.Module, title string) models.Resource {
	b.t.Helper()
	moduleID := module.ID
	resource := models.Resource{ModuleID: &moduleID, Title: title, Kind: "link", URL: "https://example.com/" + strings.ReplaceAll(strings.ToLower(title), " ", "-")}
	require.NoError(b.t, b.DB.Create(&resource).Error)
	return resource
}

// Enroll enrolls account in class directly in the database.
func (b *Backend) Enroll(account models.Account, class models.Class) {
	b.t.Helper()
	require.NoError(b.t, b.DB.Create(&models.Enrollment{AccountID: account.ID, ClassID: class.ID}).Error)
}
