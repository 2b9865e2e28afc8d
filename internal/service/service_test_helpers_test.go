package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/classroom-portal/internal/models"
	"github.com/noah-isme/classroom-portal/internal/repository"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Account{},
		&models.AuthSession{},
		&models.Class{},
		&models.Module{},
		&models.Resource{},
		&models.Enrollment{},
		&models.Note{},
		&models.ModuleProgress{},
	))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func newValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}

func seedClassWithModules(t *testing.T, db *gorm.DB, title string, moduleTitles ...string) models.Class {
	t.Helper()

	class := models.Class{
		Title:        title,
		ScheduleData: datatypes.NewJSONType(models.Schedule{StartDate: "2025-02-01", Location: "Room 4"}),
	}
	require.NoError(t, repository.NewClassRepository(db).Create(context.Background(), &class))

	modules := repository.NewModuleRepository(db)
	for _, moduleTitle := range moduleTitles {
		module := models.Module{ClassID: class.ID, Title: moduleTitle}
		require.NoError(t, modules.Create(context.Background(), &module))
		class.Modules = append(class.Modules, module)
	}
	return class
}

func seedStudent(t *testing.T, db *gorm.DB, email string) models.Account {
	t.Helper()

	account := models.Account{Email: email, FullName: "Student"}
	require.NoError(t, account.SetPassword("password123"))
	require.NoError(t, db.Create(&account).Error)
	return account
}

func enroll(t *testing.T, db *gorm.DB, accountID, classID string) {
	t.Helper()
	enrollment := models.Enrollment{AccountID: accountID, ClassID: classID}
	require.NoError(t, repository.NewEnrollmentRepository(db).Upsert(context.Background(), &enrollment))
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []AccountNotification
}

func (n *recordingNotifier) Notify(_ context.Context, notification AccountNotification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification)
	return nil
}

func (n *recordingNotifier) last(t *testing.T) AccountNotification {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	require.NotEmpty(t, n.sent)
	return n.sent[len(n.sent)-1]
}
