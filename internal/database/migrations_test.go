package database

import (
	"path/filepath"
	"testing"

	"github.com/careerhub/backend/internal/tracker"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestApplyMigrationsBackfillsEmptyNoteTypes(testContext *testing.T) {
	tempDir := testContext.TempDir()
	databasePath := filepath.Join(tempDir, "migration.db")

	database, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{})
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}

	if err := database.AutoMigrate(&tracker.ApplicationNote{}, &migrationRecord{}); err != nil {
		testContext.Fatalf("failed to migrate schema: %v", err)
	}

	// Raw insert: GORM would substitute the column default for a zero value.
	insert := `INSERT INTO application_notes (note_id, application_id, user_id, note_type, content, created_at_s)
		VALUES ('note-1', 'app-1', 'user-1', '', 'legacy note', 1700000000)`
	if err := database.Exec(insert).Error; err != nil {
		testContext.Fatalf("failed to insert note: %v", err)
	}

	if err := applyMigrations(database, zap.NewNop()); err != nil {
		testContext.Fatalf("failed to apply migrations: %v", err)
	}

	var stored tracker.ApplicationNote
	if err := database.Where("note_id = ?", "note-1").Take(&stored).Error; err != nil {
		testContext.Fatalf("failed to reload note: %v", err)
	}
	if stored.NoteType != tracker.NoteTypeGeneral {
		testContext.Fatalf("expected note type to be backfilled, got %q", stored.NoteType)
	}

	var record migrationRecord
	if err := database.Where("name = ?", migrationBackfillNoteTypeGeneral).Take(&record).Error; err != nil {
		testContext.Fatalf("expected migration record to be created: %v", err)
	}
	if record.AppliedAtSeconds == 0 {
		testContext.Fatalf("expected migration timestamp to be set")
	}

	// A second run must be a no-op.
	if err := applyMigrations(database, zap.NewNop()); err != nil {
		testContext.Fatalf("expected replay to succeed: %v", err)
	}
}
