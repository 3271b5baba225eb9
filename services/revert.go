// services/revert.go
package services

import (
	"context"
	"errors"
	"fmt"

	"score-ingest-system/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RevertService undoes exactly one import: its scores disappear and every
// derived structure is recomputed as though the import never happened.
type RevertService struct {
	DB       *gorm.DB
	PBs      *PBService
	Sessions *SessionService
	Profiles *ProfileService
	Logger   *zap.Logger
}

func NewRevertService(db *gorm.DB, pbs *PBService, sessions *SessionService, profiles *ProfileService, logger *zap.Logger) *RevertService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RevertService{DB: db, PBs: pbs, Sessions: sessions, Profiles: profiles, Logger: logger}
}

// GetImport loads an import record by ID, nil if none exists.
func (s *RevertService) GetImport(ctx context.Context, importID string) (*models.Import, error) {
	var imp models.Import
	err := s.DB.WithContext(ctx).Where("import_id = ?", importID).First(&imp).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &imp, nil
}

// RevertImport removes exactly the scores an import created, then repairs
// sessions, PBs, and profile stats. Only the recorded score IDs are touched;
// scores the import skipped as duplicates belong to whichever import created
// them and survive.
//
// The import record itself is deleted last, so a partial failure leaves it
// behind as evidence rather than silently stranding derived data.
func (s *RevertService) RevertImport(ctx context.Context, imp *models.Import) error {
	unlock := importLocks.Lock(fmt.Sprintf("import:%d", imp.UserID))
	defer unlock()

	logger := s.Logger.With(
		zap.String("importID", imp.ImportID),
		zap.Int("userID", imp.UserID))

	var scores []models.Score
	if len(imp.ScoreIDs) > 0 {
		if err := s.DB.WithContext(ctx).
			Where("score_id IN ?", imp.ScoreIDs).
			Find(&scores).Error; err != nil {
			return err
		}
	}

	chartIDs := map[string]bool{}
	modes := map[string][2]string{}
	for _, sc := range scores {
		chartIDs[sc.ChartID] = true
		modes[sc.Game+":"+sc.Mode] = [2]string{sc.Game, sc.Mode}
	}

	if len(scores) > 0 {
		if err := s.DB.WithContext(ctx).Unscoped().
			Where("score_id IN ?", imp.ScoreIDs).
			Delete(&models.Score{}).Error; err != nil {
			return err
		}
	}

	// Sessions first: prune the deleted scores out of their scoreInfo,
	// then rebuild bounds and aggregates. A session emptied entirely is
	// removed.
	sessions, err := s.Sessions.SessionsContaining(ctx, imp.UserID, imp.Game, imp.ScoreIDs)
	if err != nil {
		return err
	}
	deleted := map[string]bool{}
	for _, id := range imp.ScoreIDs {
		deleted[id] = true
	}
	for i := range sessions {
		session := &sessions[i]
		kept := session.ScoreInfo[:0]
		for _, info := range session.ScoreInfo {
			if !deleted[info.ScoreID] {
				kept = append(kept, info)
			}
		}
		session.ScoreInfo = kept
		if err := s.Sessions.RecalcSession(ctx, session); err != nil {
			return err
		}
	}

	for chartID := range chartIDs {
		if _, err := s.PBs.RecomputePB(ctx, imp.UserID, chartID); err != nil {
			return err
		}
	}

	for _, gm := range modes {
		if err := s.Profiles.MarkStale(ctx, imp.UserID, gm[0], gm[1]); err != nil {
			return err
		}
	}

	if err := s.DB.WithContext(ctx).Unscoped().
		Where("import_id = ?", imp.ImportID).
		Delete(&models.Import{}).Error; err != nil {
		logger.Error("scores reverted but import record could not be deleted", zap.Error(err))
		return fmt.Errorf("%w: %v", ErrImportRecordDelete, err)
	}

	logger.Info("import reverted",
		zap.Int("scoresRemoved", len(scores)),
		zap.Int("sessionsTouched", len(sessions)),
		zap.Int("chartsRecomputed", len(chartIDs)))

	return nil
}
