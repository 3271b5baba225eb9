// services/testdb_test.go
package services

import (
	"fmt"
	"strings"
	"testing"

	"score-ingest-system/models"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB opens a fresh in-memory database migrated with the full schema.
// Named per test so parallel tests never share state.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared",
		strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.All()...))

	return db
}

type testServices struct {
	db       *gorm.DB
	catalog  *CatalogService
	orphans  *OrphanService
	pbs      *PBService
	sessions *SessionService
	profiles *ProfileService
	importer *ImportService
	reverter *RevertService
}

func newTestServices(t *testing.T, orphanThreshold int) *testServices {
	t.Helper()

	db := newTestDB(t)
	catalog := NewCatalogService(db, nil)
	orphans := NewOrphanService(db, catalog, nil)
	pbs := NewPBService(db, nil)
	sessions := NewSessionService(db, nil)
	profiles := NewProfileService(db, nil)

	return &testServices{
		db:       db,
		catalog:  catalog,
		orphans:  orphans,
		pbs:      pbs,
		sessions: sessions,
		profiles: profiles,
		importer: NewImportService(db, catalog, orphans, pbs, sessions, profiles, orphanThreshold, nil),
		reverter: NewRevertService(db, pbs, sessions, profiles, nil),
	}
}

// seedIIDXChart creates a song+chart pair the iidx SP tests resolve against.
// 2000 notes means an EX score of 4000 is 100%.
func seedIIDXChart(t *testing.T, db *gorm.DB) *models.Chart {
	t.Helper()

	song := models.Song{Game: "iidx", SongID: 1, Title: "Test Song", Artist: "Test Artist"}
	require.NoError(t, db.Create(&song).Error)

	chart := models.Chart{
		ChartID:    "Ciidxtest01",
		SongID:     1,
		Game:       "iidx",
		Mode:       "SP",
		Difficulty: "ANOTHER",
		Level:      "12",
		LevelNum:   12,
		IsPrimary:  true,
		Data:       map[string]any{"notecount": 2000},
	}
	require.NoError(t, db.Create(&chart).Error)

	return &chart
}

func intPtr(v int) *int { return &v }
