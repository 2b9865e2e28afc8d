package service

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/classroom-portal/internal/dto"
	"github.com/noah-isme/classroom-portal/internal/repository"
)

func TestNoteServiceSaveRequiresEnrollmentAndKeepsContent(t *testing.T) {
	db := newTestDB(t)
	student := seedStudent(t, db, "notes@example.com")
	class := seedClassWithModules(t, db, "Writing", "Drafts")
	moduleID := class.Modules[0].ID

	enrollments := repository.NewEnrollmentRepository(db)
	svc := NewNoteService(repository.NewNoteRepository(db), enrollments, 64, zerolog.Nop())
	ctx := context.Background()

	_, err := svc.Save(ctx, student.ID, moduleID, dto.NoteUpsertRequest{Content: "<p>hi</p>"})
	require.ErrorIs(t, err, ErrModuleNotFound)

	enroll(t, db, student.ID, class.ID)

	_, err = svc.Get(ctx, student.ID, moduleID)
	require.ErrorIs(t, err, ErrNoteNotFound)

	saved, err := svc.Save(ctx, student.ID, moduleID, dto.NoteUpsertRequest{Content: `a < b & b > c <b class="x">`})
	require.NoError(t, err)
	require.Equal(t, `a < b & b > c <b class="x">`, saved.Content)

	stored, err := svc.Get(ctx, student.ID, moduleID)
	require.NoError(t, err)
	require.Equal(t, saved.Content, stored.Content)

	updated, err := svc.Save(ctx, student.ID, moduleID, dto.NoteUpsertRequest{Content: "<p>second</p>"})
	require.NoError(t, err)
	require.Equal(t, saved.ID, updated.ID)

	_, err = svc.Save(ctx, student.ID, moduleID, dto.NoteUpsertRequest{Content: strings.Repeat("a", 65)})
	require.ErrorIs(t, err, ErrNoteTooLarge)

	notes, err := svc.List(ctx, student.ID)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	require.Equal(t, "<p>second</p>", notes[0].Content)
}

func TestProgressServiceSetIsUpsert(t *testing.T) {
	db := newTestDB(t)
	student := seedStudent(t, db, "progress@example.com")
	class := seedClassWithModules(t, db, "Writing", "Drafts", "Edits")
	enroll(t, db, student.ID, class.ID)

	svc := NewProgressService(repository.NewProgressRepository(db), repository.NewEnrollmentRepository(db), zerolog.Nop())
	ctx := context.Background()

	record, err := svc.Set(ctx, student.ID, class.Modules[0].ID, dto.ProgressUpsertRequest{Completed: true})
	require.NoError(t, err)
	require.True(t, record.Completed)

	record, err = svc.Set(ctx, student.ID, class.Modules[0].ID, dto.ProgressUpsertRequest{Completed: false})
	require.NoError(t, err)
	require.False(t, record.Completed)

	_, err = svc.Set(ctx, student.ID, "unknown", dto.ProgressUpsertRequest{Completed: true})
	require.ErrorIs(t, err, ErrModuleNotFound)

	records, err := svc.List(ctx, student.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
}
