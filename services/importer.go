// services/importer.go
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"score-ingest-system/gameconfig"
	"score-ingest-system/models"
	"score-ingest-system/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ProvisionalDocs carries the song and chart documents a source adapter can
// construct for a chart the catalog does not know, so the signature can be
// queued for admission.
type ProvisionalDocs struct {
	Chart models.Chart `json:"chart"`
	Song  models.Song  `json:"song"`
}

// RawPayload is one source-adapted score submission.
type RawPayload struct {
	Mode        string           `json:"mode"`
	Match       ChartMatch       `json:"match"`
	Score       DryScore         `json:"score"`
	Provisional *ProvisionalDocs `json:"provisional,omitempty"`
}

// RejectedPayload explains why one payload was not accepted, so the user can
// correct and resubmit just the failing rows.
type RejectedPayload struct {
	PayloadIndex int    `json:"payload_index"`
	Reason       string `json:"reason"`
}

// ImportResult is the caller-facing summary of one batch.
type ImportResult struct {
	ImportID *string           `json:"import_id"`
	Imported int               `json:"imported"`
	Skipped  int               `json:"skipped"`
	Orphaned int               `json:"orphaned"`
	Rejected []RejectedPayload `json:"rejected"`
}

// ImportService runs the ingestion pipeline: chart resolution, normalization,
// duplicate suppression, persistence, and the downstream PB / session /
// profile recomputes.
type ImportService struct {
	DB       *gorm.DB
	Catalog  *CatalogService
	Orphans  *OrphanService
	PBs      *PBService
	Sessions *SessionService
	Profiles *ProfileService
	Logger   *zap.Logger

	// OrphanThreshold is how many distinct users must report an unknown
	// chart before it is admitted to the catalog.
	OrphanThreshold int
}

func NewImportService(
	db *gorm.DB,
	catalog *CatalogService,
	orphans *OrphanService,
	pbs *PBService,
	sessions *SessionService,
	profiles *ProfileService,
	orphanThreshold int,
	logger *zap.Logger,
) *ImportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if orphanThreshold < 1 {
		orphanThreshold = 2
	}
	return &ImportService{
		DB:              db,
		Catalog:         catalog,
		Orphans:         orphans,
		PBs:             pbs,
		Sessions:        sessions,
		Profiles:        profiles,
		Logger:          logger,
		OrphanThreshold: orphanThreshold,
	}
}

// Import ingests one batch of payloads for one user.
//
// Payloads are processed independently: a rejection never aborts siblings.
// All surviving scores are persisted in one transaction, the Import record is
// written after them, and only then do PB / session / profile recomputes run.
// Imports for the same user serialize on a per-user lock; different users run
// concurrently.
func (s *ImportService) Import(ctx context.Context, userID int, userIntent bool, importType, game string, payloads []RawPayload) (*ImportResult, error) {
	unlock := importLocks.Lock(fmt.Sprintf("import:%d", userID))
	defer unlock()

	importID := uuid.NewString()
	timeStarted := time.Now().UnixMilli()

	logger := s.Logger.With(
		zap.String("importID", importID),
		zap.Int("userID", userID),
		zap.String("game", game))

	s.archivePayloads(ctx, logger, importID, payloads)

	result := &ImportResult{Rejected: []RejectedPayload{}}
	var importErrors []models.ImportError
	var toInsert []models.Score
	batchScoreIDs := map[string]bool{}

	// Scores rescued from the orphan queue by a promotion this batch
	// triggers. This user's rescued scores join this import; other users'
	// get their own recompute pass below.
	rescuedByUser := map[int][]models.Score{}

	for i, payload := range payloads {
		cfg, ok := gameconfig.Get(game, payload.Mode)
		if !ok {
			result.Rejected = append(result.Rejected, RejectedPayload{i, fmt.Sprintf("unsupported game+mode %s", gameconfig.Key(game, payload.Mode))})
			importErrors = append(importErrors, models.ImportError{PayloadIndex: i, Type: string(FailInvalidMetric), Message: "unsupported game+mode"})
			continue
		}

		chart, err := s.resolveChart(ctx, logger, userID, game, payload, rescuedByUser, importID)
		if err != nil {
			return result, err
		}
		if chart == nil {
			// Not a failure: the chart is pending admission and the
			// payload is stored for replay.
			result.Orphaned++
			continue
		}

		sd, ratings, err := NormalizeScore(payload.Score, chart, cfg)
		if err != nil {
			var nerr *NormalizeError
			if errors.As(err, &nerr) {
				result.Rejected = append(result.Rejected, RejectedPayload{i, nerr.Message})
				importErrors = append(importErrors, models.ImportError{PayloadIndex: i, Type: string(nerr.Type), Message: nerr.Message})
				continue
			}
			return result, err
		}

		scoreID := utils.CreateScoreID(userID, chart.ChartID, sd.Score, sd.Lamp, sd.Judgements)

		if batchScoreIDs[scoreID] {
			result.Skipped++
			continue
		}
		exists, err := s.scoreExists(ctx, scoreID)
		if err != nil {
			return result, err
		}
		if exists {
			result.Skipped++
			continue
		}

		batchScoreIDs[scoreID] = true
		toInsert = append(toInsert, models.Score{
			ScoreID: scoreID,

			UserID:  userID,
			SongID:  chart.SongID,
			Game:    chart.Game,
			Mode:    chart.Mode,
			ChartID: chart.ChartID,

			TimeAchieved: payload.Score.TimeAchieved,
			TimeAdded:    time.Now().UnixMilli(),

			ScoreData:      sd,
			CalculatedData: ratings,

			Service:    payload.Score.Service,
			ImportType: importType,
			ImportID:   importID,

			Comment: payload.Score.Comment,
		})
	}

	// This user's rescued scores were already persisted during replay;
	// they join the import record and recomputes but must not be inserted
	// a second time.
	ownRescued := rescuedByUser[userID]
	delete(rescuedByUser, userID)

	// Persist the whole batch atomically: a transient store failure leaves
	// nothing behind, and the caller can safely retry the batch (duplicate
	// suppression makes re-import idempotent).
	if len(toInsert) > 0 {
		if err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return tx.CreateInBatches(toInsert, 200).Error
		}); err != nil {
			return result, fmt.Errorf("persisting scores for import %s: %w", importID, err)
		}
	}

	allScores := append(append([]models.Score{}, toInsert...), ownRescued...)
	result.Imported = len(allScores)

	importDoc := &models.Import{
		ImportID:   importID,
		UserID:     userID,
		Game:       game,
		ImportType: importType,
		UserIntent: userIntent,

		ScoreIDs: scoreIDsOf(allScores),
		Errors:   importErrors,

		Imported: result.Imported,
		Skipped:  result.Skipped,
		Orphaned: result.Orphaned,

		TimeStarted:  timeStarted,
		TimeFinished: time.Now().UnixMilli(),
	}

	var importRecordErr error
	if len(allScores) > 0 {
		if err := s.DB.WithContext(ctx).Create(importDoc).Error; err != nil {
			// The scores are durable and still count toward PBs; only
			// reversal-by-import is lost for them. Surfaced to
			// operators, never silently swallowed.
			logger.Error("import record write failed after scores were persisted",
				zap.Strings("scoreIDs", importDoc.ScoreIDs),
				zap.Error(err))
			importRecordErr = fmt.Errorf("%w: %v", ErrImportRecordWrite, err)
		} else {
			id := importID
			result.ImportID = &id
		}
	}

	// Downstream recomputes, in order: PBs, then sessions, then profile
	// staleness. Deferred across the batch but never skipped.
	sessionInfo, err := s.recomputeForScores(ctx, userID, importType, allScores)
	if err != nil {
		return result, err
	}

	// Rescued scores belonging to other users get the same treatment
	// under their own identity.
	for otherUserID, scores := range rescuedByUser {
		if _, err := s.recomputeForScores(ctx, otherUserID, importType, scores); err != nil {
			return result, err
		}
	}

	if result.ImportID != nil && len(sessionInfo) > 0 {
		// Struct update so the field goes through its serializer.
		if err := s.DB.WithContext(ctx).Model(&models.Import{ImportID: importID}).
			Select("created_sessions").
			Updates(models.Import{CreatedSessions: sessionInfo}).Error; err != nil {
			logger.Warn("failed to record created sessions on import", zap.Error(err))
		}
	}

	logger.Info("import finished",
		zap.Int("imported", result.Imported),
		zap.Int("skipped", result.Skipped),
		zap.Int("orphaned", result.Orphaned),
		zap.Int("rejected", len(result.Rejected)))

	return result, importRecordErr
}

// resolveChart resolves a payload's chart via the catalog, falling back to
// the orphan queue. A nil chart means the payload is orphaned this round; the
// payload has then been stored for replay.
func (s *ImportService) resolveChart(
	ctx context.Context,
	logger *zap.Logger,
	userID int,
	game string,
	payload RawPayload,
	rescuedByUser map[int][]models.Score,
	importID string,
) (*models.Chart, error) {
	chart, err := s.Catalog.FindChart(ctx, game, payload.Mode, payload.Match)
	if err != nil {
		return nil, err
	}
	if chart != nil {
		return chart, nil
	}

	matchKey := payload.Match.Key(game, payload.Mode)

	if payload.Provisional != nil {
		idString := gameconfig.Key(game, payload.Mode)
		chart, err = s.Orphans.Resolve(ctx, idString, game, payload.Mode,
			payload.Provisional.Chart, payload.Provisional.Song,
			matchKey, s.OrphanThreshold, userID)
		if err != nil {
			return nil, err
		}
	}

	if chart == nil {
		raw, merr := json.Marshal(payload)
		if merr != nil {
			return nil, merr
		}
		if _, err := s.Orphans.StoreOrphanScore(ctx, userID, game, payload.Mode, matchKey, raw, "chart not in catalog"); err != nil {
			return nil, err
		}
		return nil, nil
	}

	// The chart was just promoted: replay every payload that was waiting
	// on it, including this user's earlier submissions.
	rescued, err := s.replayOrphanScores(ctx, logger, chart, matchKey, userID, importID)
	if err != nil {
		return nil, err
	}
	for uid, scores := range rescued {
		rescuedByUser[uid] = append(rescuedByUser[uid], scores...)
	}

	return chart, nil
}

// replayOrphanScores runs stored orphaned payloads for a now-resolvable match
// key back through normalization and persistence. Payloads that are invalid
// against the real chart are dropped for good; duplicates of already-imported
// scores are silently retired.
func (s *ImportService) replayOrphanScores(
	ctx context.Context,
	logger *zap.Logger,
	chart *models.Chart,
	matchKey string,
	currentUserID int,
	currentImportID string,
) (map[int][]models.Score, error) {
	rows, err := s.Orphans.OrphanScoresFor(ctx, matchKey)
	if err != nil {
		return nil, err
	}

	rescued := map[int][]models.Score{}

	for _, row := range rows {
		var payload RawPayload
		if err := json.Unmarshal(row.Payload, &payload); err != nil {
			logger.Warn("dropping undecodable orphan payload", zap.String("orphanID", row.OrphanID), zap.Error(err))
			if err := s.Orphans.DeleteOrphanScore(ctx, row.OrphanID); err != nil {
				return nil, err
			}
			continue
		}

		cfg, ok := gameconfig.Get(row.Game, row.Mode)
		if !ok {
			continue
		}

		sd, ratings, err := NormalizeScore(payload.Score, chart, cfg)
		if err != nil {
			var nerr *NormalizeError
			if errors.As(err, &nerr) {
				logger.Warn("orphan payload invalid against promoted chart, dropping",
					zap.String("orphanID", row.OrphanID),
					zap.String("reason", nerr.Message))
				if err := s.Orphans.DeleteOrphanScore(ctx, row.OrphanID); err != nil {
					return nil, err
				}
				continue
			}
			return nil, err
		}

		scoreID := utils.CreateScoreID(row.UserID, chart.ChartID, sd.Score, sd.Lamp, sd.Judgements)
		exists, err := s.scoreExists(ctx, scoreID)
		if err != nil {
			return nil, err
		}

		if !exists {
			importID := ""
			if row.UserID == currentUserID {
				importID = currentImportID
			}

			score := models.Score{
				ScoreID: scoreID,

				UserID:  row.UserID,
				SongID:  chart.SongID,
				Game:    chart.Game,
				Mode:    chart.Mode,
				ChartID: chart.ChartID,

				TimeAchieved: payload.Score.TimeAchieved,
				TimeAdded:    time.Now().UnixMilli(),

				ScoreData:      sd,
				CalculatedData: ratings,

				Service:    payload.Score.Service,
				ImportType: "orphan-replay",
				ImportID:   importID,

				Comment: payload.Score.Comment,
			}

			if err := s.DB.WithContext(ctx).Create(&score).Error; err != nil {
				return nil, err
			}
			rescued[row.UserID] = append(rescued[row.UserID], score)
		}

		if err := s.Orphans.DeleteOrphanScore(ctx, row.OrphanID); err != nil {
			return nil, err
		}
	}

	if len(rescued) > 0 {
		logger.Info("replayed orphaned payloads against promoted chart",
			zap.String("matchKey", matchKey),
			zap.Int("users", len(rescued)))
	}

	return rescued, nil
}

// SweepOrphanScores replays stored orphaned payloads whose charts have since
// been admitted out of band (seed syncs, ForceResolve). Run periodically by
// the orphan worker.
func (s *ImportService) SweepOrphanScores(ctx context.Context) (int, error) {
	keys, err := s.Orphans.PendingMatchKeys(ctx)
	if err != nil {
		return 0, err
	}

	replayed := 0
	for _, key := range keys {
		rows, err := s.Orphans.OrphanScoresFor(ctx, key)
		if err != nil {
			return replayed, err
		}
		if len(rows) == 0 {
			continue
		}

		var payload RawPayload
		if err := json.Unmarshal(rows[0].Payload, &payload); err != nil {
			continue
		}

		chart, err := s.Catalog.FindChart(ctx, rows[0].Game, rows[0].Mode, payload.Match)
		if err != nil {
			return replayed, err
		}
		if chart == nil {
			continue
		}

		rescued, err := s.replayOrphanScores(ctx, s.Logger, chart, key, 0, "")
		if err != nil {
			return replayed, err
		}
		for userID, scores := range rescued {
			if _, err := s.recomputeForScores(ctx, userID, "orphan-sweep", scores); err != nil {
				return replayed, err
			}
			replayed += len(scores)
		}
	}

	return replayed, nil
}

// recomputeForScores runs the downstream derivations for freshly persisted
// scores: PB per touched chart, then sessions (with deltas against the PBs
// from before this batch), then profile staleness per touched mode.
func (s *ImportService) recomputeForScores(ctx context.Context, userID int, importType string, scores []models.Score) ([]models.SessionInfoReturn, error) {
	if len(scores) == 0 {
		return nil, nil
	}

	chartIDs := map[string]bool{}
	modes := map[string][2]string{}
	for _, sc := range scores {
		chartIDs[sc.ChartID] = true
		modes[gameconfig.Key(sc.Game, sc.Mode)] = [2]string{sc.Game, sc.Mode}
	}

	// Snapshot the PBs as they stood before this batch; session deltas
	// compare against these.
	prePBs := map[string]*models.PBScore{}
	for chartID := range chartIDs {
		var pb models.PBScore
		err := s.DB.WithContext(ctx).
			Where("user_id = ? AND chart_id = ?", userID, chartID).
			First(&pb).Error
		if err == nil {
			snapshot := pb
			prePBs[chartID] = &snapshot
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	for chartID := range chartIDs {
		if _, err := s.PBs.RecomputePB(ctx, userID, chartID); err != nil {
			return nil, err
		}
	}

	sessionInfo, err := s.Sessions.ProcessScores(ctx, userID, importType, scores, prePBs)
	if err != nil {
		return nil, err
	}

	for _, gm := range modes {
		if err := s.Profiles.MarkStale(ctx, userID, gm[0], gm[1]); err != nil {
			return nil, err
		}
	}

	return sessionInfo, nil
}

func (s *ImportService) scoreExists(ctx context.Context, scoreID string) (bool, error) {
	var count int64
	err := s.DB.WithContext(ctx).Model(&models.Score{}).
		Where("score_id = ?", scoreID).
		Count(&count).Error
	return count > 0, err
}

func (s *ImportService) archivePayloads(ctx context.Context, logger *zap.Logger, importID string, payloads []RawPayload) {
	if !utils.ArchiveEnabled() {
		return
	}
	raw, err := json.Marshal(payloads)
	if err != nil {
		logger.Warn("could not marshal payload batch for archive", zap.Error(err))
		return
	}
	go func() {
		if err := utils.ArchiveImportPayload(context.WithoutCancel(ctx), importID, raw); err != nil {
			logger.Warn("payload archive upload failed", zap.Error(err))
		}
	}()
}

func scoreIDsOf(scores []models.Score) []string {
	ids := make([]string, 0, len(scores))
	for _, sc := range scores {
		ids = append(ids, sc.ScoreID)
	}
	return ids
}
