package repository

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/classroom-portal/internal/models"
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

func seedClass(t *testing.T, db *gorm.DB, title, startDate string, moduleTitles ...string) models.Class {
	t.Helper()

	class := models.Class{
		Title:        title,
		Description:  title + " description",
		ScheduleData: datatypes.NewJSONType(models.Schedule{StartDate: startDate}),
	}
	require.NoError(t, db.Omit("Modules").Create(&class).Error)

	modules := NewModuleRepository(db)
	for _, moduleTitle := range moduleTitles {
		module := models.Module{ClassID: class.ID, Title: moduleTitle}
		require.NoError(t, modules.Create(t.Context(), &module))
		class.Modules = append(class.Modules, module)
	}
	return class
}

func seedAccount(t *testing.T, db *gorm.DB, email string) models.Account {
	t.Helper()

	account := models.Account{Email: email, FullName: "Test " + email}
	require.NoError(t, account.SetPassword("password123"))
	require.NoError(t, db.Create(&account).Error)
	return account
}
