// services/pb.go
package services

import (
	"context"
	"fmt"

	"score-ingest-system/gameconfig"
	"score-ingest-system/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PBService maintains the derived personal-best composite per (user, chart).
// PB rows are never authoritative: everything here is reconstructable by
// replaying the user's scores.
type PBService struct {
	DB     *gorm.DB
	Logger *zap.Logger
}

func NewPBService(db *gorm.DB, logger *zap.Logger) *PBService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PBService{DB: db, Logger: logger}
}

// RecomputePB rebuilds the PB for one (user, chart) from all of that user's
// surviving scores. If no scores remain the PB is deleted — a PB must never
// exist without at least one backing score. The chart's ranking is refreshed
// either way.
func (s *PBService) RecomputePB(ctx context.Context, userID int, chartID string) (*models.PBScore, error) {
	var scores []models.Score
	if err := s.DB.WithContext(ctx).
		Where("user_id = ? AND chart_id = ?", userID, chartID).
		Find(&scores).Error; err != nil {
		return nil, err
	}

	if len(scores) == 0 {
		if err := s.DB.WithContext(ctx).Unscoped().
			Where("user_id = ? AND chart_id = ?", userID, chartID).
			Delete(&models.PBScore{}).Error; err != nil {
			return nil, err
		}
		return nil, s.UpdateChartRanking(ctx, chartID)
	}

	cfg, ok := gameconfig.Get(scores[0].Game, scores[0].Mode)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedGame, gameconfig.Key(scores[0].Game, scores[0].Mode))
	}

	pb, err := buildPB(cfg, userID, chartID, scores)
	if err != nil {
		return nil, err
	}

	if err := s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "chart_id"}},
		UpdateAll: true,
	}).Create(pb).Error; err != nil {
		return nil, err
	}

	if err := s.UpdateChartRanking(ctx, chartID); err != nil {
		return nil, err
	}

	return pb, nil
}

// buildPB composes the metric-wise best-of record. Each metric class picks
// its own best contributor (ties broken by most recent play), so the lamp and
// the score of a PB routinely come from different physical plays.
func buildPB(cfg *gameconfig.GamePTConfig, userID int, chartID string, scores []models.Score) (*models.PBScore, error) {
	scorePB := bestBy(scores, func(sc *models.Score) float64 { return sc.ScoreData.Percent })
	lampPB := bestBy(scores, func(sc *models.Score) float64 { return float64(sc.ScoreData.LampIndex) })

	base := lampPB
	if cfg.PrimaryMetric == "score" {
		base = scorePB
	}

	timeAchieved := scorePB.TimeAchieved
	if lampPB.TimeAchieved > timeAchieved {
		timeAchieved = lampPB.TimeAchieved
	}

	pb := &models.PBScore{
		UserID:  userID,
		ChartID: chartID,

		SongID: base.SongID,
		Game:   base.Game,
		Mode:   base.Mode,

		IsPrimary:    true,
		Highlight:    scorePB.Highlight || lampPB.Highlight,
		TimeAchieved: timeAchieved,

		ScoreData:      base.ScoreData,
		CalculatedData: base.CalculatedData,
		ComposedFrom: models.ComposedFrom{
			ScorePB: scorePB.ScoreID,
			LampPB:  lampPB.ScoreID,
		},
	}

	// Each metric class contributes its own best, regardless of which
	// score seeded the composite.
	pb.ScoreData.Score = scorePB.ScoreData.Score
	pb.ScoreData.Percent = scorePB.ScoreData.Percent
	pb.ScoreData.Grade = scorePB.ScoreData.Grade
	pb.ScoreData.GradeIndex = scorePB.ScoreData.GradeIndex
	pb.ScoreData.Lamp = lampPB.ScoreData.Lamp
	pb.ScoreData.LampIndex = lampPB.ScoreData.LampIndex

	for _, mergeFn := range cfg.MergeFns {
		if err := mergeFn.Apply(pb, scorePB, lampPB); err != nil {
			return nil, fmt.Errorf("merge %q failed for %s on %s: %w", mergeFn.Name, cfg.Game, chartID, err)
		}
		pb.ComposedFrom.Other = append(pb.ComposedFrom.Other, models.ComposedFromEntry{
			Name:    mergeFn.Name,
			ScoreID: lampPB.ScoreID,
		})
	}

	return pb, nil
}

// bestBy returns the score with the highest metric value; ties go to the most
// recently achieved play.
func bestBy(scores []models.Score, metric func(*models.Score) float64) *models.Score {
	best := &scores[0]
	for i := 1; i < len(scores); i++ {
		cand := &scores[i]
		cv, bv := metric(cand), metric(best)
		if cv > bv || (cv == bv && cand.TimeAchieved > best.TimeAchieved) {
			best = cand
		}
	}
	return best
}

// UpdateChartRanking refreshes rank/outOf across every user's PB on a chart.
func (s *PBService) UpdateChartRanking(ctx context.Context, chartID string) error {
	var pbs []models.PBScore
	if err := s.DB.WithContext(ctx).
		Where("chart_id = ?", chartID).
		Find(&pbs).Error; err != nil {
		return err
	}

	if len(pbs) == 0 {
		return nil
	}

	// Ranking order lives in the serialized blob, so sort in Go rather
	// than depending on the database's JSON functions.
	sortPBsForRanking(pbs)

	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range pbs {
			pbs[i].RankingData = models.RankingData{Rank: i + 1, OutOf: len(pbs)}
			// Struct update so the field goes through its serializer.
			if err := tx.Model(&pbs[i]).
				Select("ranking_data").
				Updates(models.PBScore{RankingData: pbs[i].RankingData}).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func sortPBsForRanking(pbs []models.PBScore) {
	// Insertion sort: chart leaderboards are small and this keeps the
	// double-key comparison obvious.
	for i := 1; i < len(pbs); i++ {
		for j := i; j > 0; j-- {
			a, b := &pbs[j-1], &pbs[j]
			if b.ScoreData.Percent > a.ScoreData.Percent ||
				(b.ScoreData.Percent == a.ScoreData.Percent && b.TimeAchieved > a.TimeAchieved) {
				pbs[j-1], pbs[j] = pbs[j], pbs[j-1]
			} else {
				break
			}
		}
	}
}
