// services/catalog.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"score-ingest-system/models"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/gosimple/unidecode"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ChartMatch is the criteria a payload supplies to resolve its chart: either
// a content hash (hash-keyed games) or a songID+difficulty pair.
type ChartMatch struct {
	SHA256     string `json:"sha256,omitempty"`
	SongID     *int   `json:"song_id,omitempty"`
	Difficulty string `json:"difficulty,omitempty"`
}

// Key canonicalizes the match criteria for use as an orphan match key.
func (m ChartMatch) Key(game, mode string) string {
	if m.SHA256 != "" {
		return fmt.Sprintf("sha256:%s:%s:%s", m.SHA256, game, mode)
	}
	songID := -1
	if m.SongID != nil {
		songID = *m.SongID
	}
	return fmt.Sprintf("song:%d:%s:%s:%s", songID, m.Difficulty, game, mode)
}

// CatalogService is the read/write surface over Song and Chart. Only the
// orphan resolver and table-sync seeding write through it; everything else
// is read-only.
type CatalogService struct {
	DB     *gorm.DB
	Logger *zap.Logger
}

func NewCatalogService(db *gorm.DB, logger *zap.Logger) *CatalogService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogService{DB: db, Logger: logger}
}

// FindChart resolves match criteria to a chart, or nil if the catalog does
// not know it.
func (s *CatalogService) FindChart(ctx context.Context, game, mode string, match ChartMatch) (*models.Chart, error) {
	q := s.DB.WithContext(ctx).Where("game = ? AND mode = ?", game, mode)

	switch {
	case match.SHA256 != "":
		q = q.Where("hash_sha256 = ?", match.SHA256)
	case match.SongID != nil:
		q = q.Where("song_id = ? AND difficulty = ? AND is_primary = ?", *match.SongID, match.Difficulty, true)
	default:
		return nil, nil
	}

	var chart models.Chart
	if err := q.First(&chart).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &chart, nil
}

// GetChart loads a chart by its canonical ID.
func (s *CatalogService) GetChart(ctx context.Context, chartID string) (*models.Chart, error) {
	var chart models.Chart
	if err := s.DB.WithContext(ctx).Where("chart_id = ?", chartID).First(&chart).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &chart, nil
}

// NextSongID allocates the next integer song ID for a game. The counter row
// is incremented and read inside the given transaction; concurrent
// allocations for the same game serialize on the row write.
func (s *CatalogService) NextSongID(tx *gorm.DB, game string) (int, error) {
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.SongIDCounter{Game: game, NextID: 1}).Error; err != nil {
		return 0, err
	}

	if err := tx.Model(&models.SongIDCounter{}).
		Where("game = ?", game).
		UpdateColumn("next_id", gorm.Expr("next_id + 1")).Error; err != nil {
		return 0, err
	}

	var counter models.SongIDCounter
	if err := tx.Where("game = ?", game).First(&counter).Error; err != nil {
		return 0, err
	}

	// NextID is the next free ID, so the one we just claimed is NextID-1.
	return counter.NextID - 1, nil
}

// InsertSong persists a song, filling in its searchable aliases.
func (s *CatalogService) InsertSong(tx *gorm.DB, song *models.Song) error {
	song.SearchTerms = BuildSearchTerms(song.Title, song.AltTitles)
	return tx.Create(song).Error
}

// InsertChart persists a chart, assigning a canonical ID if the caller did
// not provide one.
func (s *CatalogService) InsertChart(tx *gorm.DB, chart *models.Chart) error {
	if chart.ChartID == "" {
		chart.ChartID = "C" + strings.ReplaceAll(uuid.NewString(), "-", "")
	}
	return tx.Create(chart).Error
}

var caseFolder = cases.Fold()

// BuildSearchTerms derives the searchable aliases for a title: the case-folded
// title, its ASCII transliteration and its slug, plus the same for every
// alternative title.
func BuildSearchTerms(title string, altTitles []string) []string {
	seen := map[string]bool{}
	var terms []string

	add := func(t string) {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			return
		}
		seen[t] = true
		terms = append(terms, t)
	}

	for _, t := range append([]string{title}, altTitles...) {
		add(caseFolder.String(t))
		add(caseFolder.String(unidecode.Unidecode(t)))
		add(slug.Make(t))
	}

	return terms
}
