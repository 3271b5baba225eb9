// services/orphan.go
package services

import (
	"context"
	"errors"
	"time"

	"score-ingest-system/models"
	"score-ingest-system/utils"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OrphanService admits unrecognized chart signatures into the catalog once
// enough distinct players have reported them.
type OrphanService struct {
	DB      *gorm.DB
	Catalog *CatalogService
	Logger  *zap.Logger

	locks keyedMutex
}

func NewOrphanService(db *gorm.DB, catalog *CatalogService, logger *zap.Logger) *OrphanService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrphanService{DB: db, Catalog: catalog, Logger: logger}
}

// Resolve decides whether an unrecognized chart signature gets admitted.
//
// First sighting inserts a new OrphanChart seeded with this user; repeat
// sightings from the same user are deduplicated. When the distinct-user count
// reaches threshold the provisional song and chart are promoted into the
// catalog and the OrphanChart is removed. A nil chart with nil error means
// "still pending" — the caller must treat the score as orphaned this round.
//
// All work for one match key is serialized on a per-key mutex, so two
// submissions crossing the threshold together cannot double-promote.
func (s *OrphanService) Resolve(
	ctx context.Context,
	idString, game, mode string,
	chartDoc models.Chart,
	songDoc models.Song,
	matchKey string,
	threshold int,
	userID int,
) (*models.Chart, error) {
	unlock := s.locks.Lock("orphan:" + matchKey)
	defer unlock()

	var orphan models.OrphanChart
	err := s.DB.WithContext(ctx).Where("match_key = ?", matchKey).First(&orphan).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		orphan = models.OrphanChart{
			MatchKey: matchKey,
			IDString: idString,
			Game:     game,
			Mode:     mode,
			ChartDoc: chartDoc,
			SongDoc:  songDoc,
			UserIDs:  []int{userID},
		}
		if err := s.DB.WithContext(ctx).Create(&orphan).Error; err != nil {
			return nil, err
		}

		s.Logger.Info("queued new orphan chart",
			zap.String("matchKey", matchKey),
			zap.String("idString", idString),
			zap.Int("userID", userID))

		if threshold <= 1 {
			return s.promote(ctx, &orphan)
		}
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if !containsInt(orphan.UserIDs, userID) {
		orphan.UserIDs = append(orphan.UserIDs, userID)
		// The updated user list is persisted before any promotion
		// attempt, so a failed promotion never loses sightings.
		if err := s.DB.WithContext(ctx).Save(&orphan).Error; err != nil {
			return nil, err
		}
	}

	if len(orphan.UserIDs) < threshold {
		return nil, nil
	}

	return s.promote(ctx, &orphan)
}

// ForceResolve promotes a queued orphan regardless of how many users have
// reported it. Used by table-sync processes that want every listed chart
// admitted. Returns nil if nothing is queued under the match key.
func (s *OrphanService) ForceResolve(ctx context.Context, matchKey string) (*models.Chart, error) {
	unlock := s.locks.Lock("orphan:" + matchKey)
	defer unlock()

	var orphan models.OrphanChart
	err := s.DB.WithContext(ctx).Where("match_key = ?", matchKey).First(&orphan).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return s.promote(ctx, &orphan)
}

// promote moves the provisional song+chart into the catalog and deletes the
// OrphanChart, all in one transaction. Song ID allocation failing rolls the
// whole promotion back and leaves the queue entry (and its accumulated user
// list) untouched.
func (s *OrphanService) promote(ctx context.Context, orphan *models.OrphanChart) (*models.Chart, error) {
	chart := orphan.ChartDoc
	song := orphan.SongDoc

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		songID, err := s.Catalog.NextSongID(tx, orphan.Game)
		if err != nil {
			return err
		}

		song.Game = orphan.Game
		song.SongID = songID
		if err := s.Catalog.InsertSong(tx, &song); err != nil {
			return err
		}

		chart.Game = orphan.Game
		chart.Mode = orphan.Mode
		chart.SongID = songID
		if err := s.Catalog.InsertChart(tx, &chart); err != nil {
			return err
		}

		// Unscoped: queue entries are transient, not soft-delete data.
		return tx.Unscoped().Where("match_key = ?", orphan.MatchKey).
			Delete(&models.OrphanChart{}).Error
	})
	if err != nil {
		s.Logger.Error("orphan chart promotion failed",
			zap.String("matchKey", orphan.MatchKey),
			zap.Error(err))
		return nil, err
	}

	s.Logger.Info("promoted orphan chart to catalog",
		zap.String("matchKey", orphan.MatchKey),
		zap.String("chartID", chart.ChartID),
		zap.Int("songID", chart.SongID),
		zap.Int("reporters", len(orphan.UserIDs)))

	return &chart, nil
}

// StoreOrphanScore keeps an unresolvable payload around for replay once its
// chart exists. Returns true if the payload was newly stored, false if this
// exact orphaned score was already queued.
func (s *OrphanService) StoreOrphanScore(ctx context.Context, userID int, game, mode, matchKey string, payload []byte, errMsg string) (bool, error) {
	orphanID := utils.CreateOrphanID(userID, matchKey, payload)

	res := s.DB.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&models.OrphanScore{
		OrphanID:     orphanID,
		UserID:       userID,
		Game:         game,
		Mode:         mode,
		MatchKey:     matchKey,
		Payload:      payload,
		ErrMsg:       errMsg,
		TimeInserted: time.Now().UnixMilli(),
	})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// OrphanScoresFor loads every stored payload for a match key, oldest first.
func (s *OrphanService) OrphanScoresFor(ctx context.Context, matchKey string) ([]models.OrphanScore, error) {
	var orphans []models.OrphanScore
	err := s.DB.WithContext(ctx).
		Where("match_key = ?", matchKey).
		Order("time_inserted asc").
		Find(&orphans).Error
	return orphans, err
}

// DeleteOrphanScore removes a replayed (or permanently invalid) payload.
func (s *OrphanService) DeleteOrphanScore(ctx context.Context, orphanID string) error {
	return s.DB.WithContext(ctx).Where("orphan_id = ?", orphanID).Delete(&models.OrphanScore{}).Error
}

// PendingMatchKeys returns the distinct match keys that still have stored
// orphaned payloads, for the background sweep.
func (s *OrphanService) PendingMatchKeys(ctx context.Context) ([]string, error) {
	var keys []string
	err := s.DB.WithContext(ctx).Model(&models.OrphanScore{}).
		Distinct("match_key").
		Pluck("match_key", &keys).Error
	return keys, err
}

func containsInt(list []int, v int) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
