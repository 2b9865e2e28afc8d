package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/classroom-portal/internal/models"
)

func TestEnrollmentRepositoryUpsertKeepsOneRow(t *testing.T) {
	db := newTestDB(t)
	account := seedAccount(t, db, "student@example.com")
	class := seedClass(t, db, "Go", "2025-01-10", "Intro", "Types")
	repo := NewEnrollmentRepository(db)
	ctx := context.Background()

	first := models.Enrollment{AccountID: account.ID, ClassID: class.ID}
	require.NoError(t, repo.Upsert(ctx, &first))
	second := models.Enrollment{AccountID: account.ID, ClassID: class.ID}
	require.NoError(t, repo.Upsert(ctx, &second))

	var count int64
	require.NoError(t, db.Model(&models.Enrollment{}).Count(&count).Error)
	require.EqualValues(t, 1, count)

	enrollments, err := repo.ListActive(ctx, account.ID)
	require.NoError(t, err)
	require.Len(t, enrollments, 1)
	require.Equal(t, "Go", enrollments[0].Class.Title)
	require.Len(t, enrollments[0].Class.Modules, 2)
	require.Equal(t, "Intro", enrollments[0].Class.Modules[0].Title)

	enrolled, err := repo.IsEnrolledInModule(ctx, account.ID, class.Modules[1].ID)
	require.NoError(t, err)
	require.True(t, enrolled)

	enrolled, err = repo.IsEnrolledInModule(ctx, "someone-else", class.Modules[1].ID)
	require.NoError(t, err)
	require.False(t, enrolled)
}

func TestNoteRepositoryUpsertOnConflict(t *testing.T) {
	db := newTestDB(t)
	account := seedAccount(t, db, "notes@example.com")
	class := seedClass(t, db, "Go", "2025-01-10", "Intro")
	repo := NewNoteRepository(db)
	ctx := context.Background()

	note := models.Note{AccountID: account.ID, ModuleID: class.Modules[0].ID, Content: "<p>first</p>"}
	require.NoError(t, repo.Upsert(ctx, &note))
	firstID := note.ID

	again := models.Note{AccountID: account.ID, ModuleID: class.Modules[0].ID, Content: "<p>second</p>", UpdatedAt: time.Now().Add(time.Minute)}
	require.NoError(t, repo.Upsert(ctx, &again))
	require.Equal(t, firstID, again.ID)
	require.Equal(t, "<p>second</p>", again.Content)

	notes, err := repo.ListByAccount(ctx, account.ID)
	require.NoError(t, err)
	require.Len(t, notes, 1)
}

func TestProgressRepositoryUpsertOnConflict(t *testing.T) {
	db := newTestDB(t)
	account := seedAccount(t, db, "progress@example.com")
	class := seedClass(t, db, "Go", "2025-01-10", "Intro")
	repo := NewProgressRepository(db)
	ctx := context.Background()

	record := models.ModuleProgress{AccountID: account.ID, ModuleID: class.Modules[0].ID, Completed: true, LastAccessed: time.Now()}
	require.NoError(t, repo.Upsert(ctx, &record))
	record = models.ModuleProgress{AccountID: account.ID, ModuleID: class.Modules[0].ID, Completed: false, LastAccessed: time.Now()}
	require.NoError(t, repo.Upsert(ctx, &record))
	require.False(t, record.Completed)

	records, err := repo.ListByAccount(ctx, account.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
}
