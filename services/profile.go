// services/profile.go
package services

import (
	"context"
	"sort"
	"time"

	"score-ingest-system/gameconfig"
	"score-ingest-system/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// profileBestCount is how many of the user's top PB ratings feed each profile
// rating average.
const profileBestCount = 20

// ProfileService maintains the denormalized per (user, game, mode) stats row.
// Imports and reverts only mark rows stale; the scheduler does the actual
// recomputes off the hot path.
type ProfileService struct {
	DB     *gorm.DB
	Logger *zap.Logger
}

func NewProfileService(db *gorm.DB, logger *zap.Logger) *ProfileService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProfileService{DB: db, Logger: logger}
}

// MarkStale flags a user's stats row for recompute, creating it if this is
// the user's first activity on the game+mode.
func (s *ProfileService) MarkStale(ctx context.Context, userID int, game, mode string) error {
	return s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "game"}, {Name: "mode"}},
		DoUpdates: clause.Assignments(map[string]any{"stale": true}),
	}).Create(&models.UserGameStats{
		UserID: userID,
		Game:   game,
		Mode:   mode,
		Stale:  true,
	}).Error
}

// RecomputeStats rebuilds one stats row from the user's current PBs.
func (s *ProfileService) RecomputeStats(ctx context.Context, userID int, game, mode string) (*models.UserGameStats, error) {
	// Unregistered game+mode rows still get refreshed (and un-flagged),
	// just with no rating aggregates.
	var ratingKeys []string
	if cfg, ok := gameconfig.Get(game, mode); ok {
		ratingKeys = cfg.ProfileRatingKeys
	}

	var pbs []models.PBScore
	if err := s.DB.WithContext(ctx).
		Where("user_id = ? AND game = ? AND mode = ?", userID, game, mode).
		Find(&pbs).Error; err != nil {
		return nil, err
	}

	var totalScores int64
	if err := s.DB.WithContext(ctx).Model(&models.Score{}).
		Where("user_id = ? AND game = ? AND mode = ?", userID, game, mode).
		Count(&totalScores).Error; err != nil {
		return nil, err
	}

	ratings := map[string]float64{}
	for _, key := range ratingKeys {
		if v, ok := averageBest(pbs, key, profileBestCount); ok {
			ratings[key] = v
		}
	}

	now := time.Now()
	stats := &models.UserGameStats{
		UserID: userID,
		Game:   game,
		Mode:   mode,

		Ratings:     ratings,
		TotalScores: totalScores,
		TotalCharts: int64(len(pbs)),

		Stale:          false,
		LastRecomputed: &now,
	}

	if err := s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "game"}, {Name: "mode"}},
		UpdateAll: true,
	}).Create(stats).Error; err != nil {
		return nil, err
	}

	return stats, nil
}

// RecomputeStale recomputes every flagged stats row. Returns how many rows
// were refreshed.
func (s *ProfileService) RecomputeStale(ctx context.Context) (int, error) {
	var stale []models.UserGameStats
	if err := s.DB.WithContext(ctx).Where("stale = ?", true).Find(&stale).Error; err != nil {
		return 0, err
	}

	done := 0
	for _, row := range stale {
		if _, err := s.RecomputeStats(ctx, row.UserID, row.Game, row.Mode); err != nil {
			s.Logger.Error("profile stats recompute failed",
				zap.Int("userID", row.UserID),
				zap.String("game", row.Game),
				zap.String("mode", row.Mode),
				zap.Error(err))
			continue
		}
		done++
	}

	return done, nil
}

// averageBest averages the top n values of one rating key across the PBs.
// Fewer than one value means the key is absent entirely.
func averageBest(pbs []models.PBScore, key string, n int) (float64, bool) {
	var values []float64
	for _, pb := range pbs {
		if v, ok := pb.CalculatedData[key]; ok {
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		return 0, false
	}

	sort.Sort(sort.Reverse(sort.Float64Slice(values)))
	if len(values) > n {
		values = values[:n]
	}

	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values)), true
}
