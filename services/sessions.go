// services/sessions.go
package services

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"time"

	"score-ingest-system/gameconfig"
	"score-ingest-system/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// sessionGap is the maximum silence between two scores that still belong to
// the same session.
const sessionGap = 2 * time.Hour

// SessionService groups a user's temporally-adjacent scores into sessions and
// maintains their derived aggregates.
type SessionService struct {
	DB     *gorm.DB
	Logger *zap.Logger
}

func NewSessionService(db *gorm.DB, logger *zap.Logger) *SessionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{DB: db, Logger: logger}
}

// ProcessScores folds freshly-imported scores into sessions. prePBs is the PB
// state from before this import, keyed by chartID — per-score deltas are
// measured against what the user's record looked like when they played, not
// after.
//
// Scores without a timestamp cannot be placed on a timeline and are skipped.
func (s *SessionService) ProcessScores(
	ctx context.Context,
	userID int,
	importType string,
	scores []models.Score,
	prePBs map[string]*models.PBScore,
) ([]models.SessionInfoReturn, error) {
	byMode := map[string][]models.Score{}
	for _, sc := range scores {
		if sc.TimeAchieved == 0 {
			continue
		}
		key := gameconfig.Key(sc.Game, sc.Mode)
		byMode[key] = append(byMode[key], sc)
	}

	var results []models.SessionInfoReturn
	for _, modeScores := range byMode {
		info, err := s.loadScoresIntoSessions(ctx, userID, importType, modeScores, prePBs)
		if err != nil {
			return results, err
		}
		results = append(results, info...)
	}

	return results, nil
}

func (s *SessionService) loadScoresIntoSessions(
	ctx context.Context,
	userID int,
	importType string,
	scores []models.Score,
	prePBs map[string]*models.PBScore,
) ([]models.SessionInfoReturn, error) {
	sort.Slice(scores, func(i, j int) bool {
		return scores[i].TimeAchieved < scores[j].TimeAchieved
	})

	game, mode := scores[0].Game, scores[0].Mode
	cfg, ok := gameconfig.Get(game, mode)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedGame, gameconfig.Key(game, mode))
	}

	// Split on two-hour gaps first so each group needs only one
	// nearby-session query.
	var groups [][]models.Score
	var cur []models.Score
	var lastTime int64
	for _, sc := range scores {
		if len(cur) > 0 && sc.TimeAchieved >= lastTime+sessionGap.Milliseconds() {
			groups = append(groups, cur)
			cur = nil
		}
		cur = append(cur, sc)
		lastTime = sc.TimeAchieved
	}
	if len(cur) > 0 {
		groups = append(groups, cur)
	}

	var results []models.SessionInfoReturn

	for _, group := range groups {
		start := group[0].TimeAchieved
		end := group[len(group)-1].TimeAchieved

		groupInfo := make([]models.SessionScoreInfo, 0, len(group))
		for _, sc := range group {
			groupInfo = append(groupInfo, scoreInfoAgainstPB(&sc, prePBs[sc.ChartID]))
		}

		nearby, err := s.findNearbySession(ctx, userID, game, mode, start, end)
		if err != nil {
			return results, err
		}

		if nearby != nil {
			if err := s.appendToSession(ctx, cfg, nearby, group, groupInfo); err != nil {
				return results, err
			}
			results = append(results, models.SessionInfoReturn{SessionID: nearby.SessionID, Type: "Appended"})
			continue
		}

		session := &models.Session{
			SessionID: "Q" + strings.ReplaceAll(uuid.NewString(), "-", ""),
			UserID:    userID,
			Game:      game,
			Mode:      mode,

			Name:       randomSessionName(),
			ImportType: importType,

			TimeStarted:  start,
			TimeEnded:    end,
			TimeInserted: time.Now().UnixMilli(),

			ScoreInfo:      groupInfo,
			CalculatedData: sessionCalcData(cfg, group),
		}
		if err := s.DB.WithContext(ctx).Create(session).Error; err != nil {
			return results, err
		}

		s.Logger.Debug("created session",
			zap.String("sessionID", session.SessionID),
			zap.Int("userID", userID),
			zap.Int("scores", len(group)))

		results = append(results, models.SessionInfoReturn{SessionID: session.SessionID, Type: "Created"})
	}

	return results, nil
}

func (s *SessionService) findNearbySession(ctx context.Context, userID int, game, mode string, start, end int64) (*models.Session, error) {
	gap := sessionGap.Milliseconds()

	var sessions []models.Session
	err := s.DB.WithContext(ctx).
		Where("user_id = ? AND game = ? AND mode = ?", userID, game, mode).
		Where("(time_started >= ? AND time_started < ?) OR (time_ended >= ? AND time_ended < ?)",
			start-gap, end+gap, start-gap, end+gap).
		Limit(1).
		Find(&sessions).Error
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, nil
	}
	return &sessions[0], nil
}

func (s *SessionService) appendToSession(ctx context.Context, cfg *gameconfig.GamePTConfig, session *models.Session, newScores []models.Score, newInfo []models.SessionScoreInfo) error {
	session.ScoreInfo = append(session.ScoreInfo, newInfo...)

	if newScores[0].TimeAchieved < session.TimeStarted {
		session.TimeStarted = newScores[0].TimeAchieved
	}
	if newScores[len(newScores)-1].TimeAchieved > session.TimeEnded {
		session.TimeEnded = newScores[len(newScores)-1].TimeAchieved
	}

	members, err := s.memberScores(ctx, session)
	if err != nil {
		return err
	}
	session.CalculatedData = sessionCalcData(cfg, members)

	return s.DB.WithContext(ctx).Save(session).Error
}

// RecalcSession rebuilds a session's aggregates and bounds from its surviving
// member scores, deleting the session outright if none remain.
func (s *SessionService) RecalcSession(ctx context.Context, session *models.Session) error {
	if len(session.ScoreInfo) == 0 {
		return s.DB.WithContext(ctx).Unscoped().
			Where("session_id = ?", session.SessionID).
			Delete(&models.Session{}).Error
	}

	cfg, ok := gameconfig.Get(session.Game, session.Mode)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedGame, gameconfig.Key(session.Game, session.Mode))
	}

	members, err := s.memberScores(ctx, session)
	if err != nil {
		return err
	}

	if len(members) > 0 {
		session.TimeStarted = members[0].TimeAchieved
		session.TimeEnded = members[len(members)-1].TimeAchieved
	}
	session.CalculatedData = sessionCalcData(cfg, members)

	return s.DB.WithContext(ctx).Save(session).Error
}

// SessionsContaining finds a user's sessions that reference any of the given
// score IDs. Membership lives inside the serialized scoreInfo blob, so
// filtering happens here rather than in SQL.
func (s *SessionService) SessionsContaining(ctx context.Context, userID int, game string, scoreIDs []string) ([]models.Session, error) {
	idSet := map[string]bool{}
	for _, id := range scoreIDs {
		idSet[id] = true
	}

	var sessions []models.Session
	if err := s.DB.WithContext(ctx).
		Where("user_id = ? AND game = ?", userID, game).
		Find(&sessions).Error; err != nil {
		return nil, err
	}

	var hits []models.Session
	for _, session := range sessions {
		for _, info := range session.ScoreInfo {
			if idSet[info.ScoreID] {
				hits = append(hits, session)
				break
			}
		}
	}
	return hits, nil
}

func (s *SessionService) memberScores(ctx context.Context, session *models.Session) ([]models.Score, error) {
	var members []models.Score
	err := s.DB.WithContext(ctx).
		Where("score_id IN ?", session.ScoreIDs()).
		Order("time_achieved asc").
		Find(&members).Error
	return members, err
}

func sessionCalcData(cfg *gameconfig.GamePTConfig, scores []models.Score) map[string]*float64 {
	data := make(map[string]*float64, len(cfg.SessionCalcs))
	for _, calc := range cfg.SessionCalcs {
		data[calc.Key] = calc.Calc(scores)
	}
	return data
}

func scoreInfoAgainstPB(score *models.Score, pb *models.PBScore) models.SessionScoreInfo {
	if pb == nil {
		return models.SessionScoreInfo{ScoreID: score.ScoreID, IsNewScore: true}
	}
	return models.SessionScoreInfo{
		ScoreID:      score.ScoreID,
		IsNewScore:   false,
		ScoreDelta:   score.ScoreData.Score - pb.ScoreData.Score,
		PercentDelta: score.ScoreData.Percent - pb.ScoreData.Percent,
		GradeDelta:   score.ScoreData.GradeIndex - pb.ScoreData.GradeIndex,
		LampDelta:    score.ScoreData.LampIndex - pb.ScoreData.LampIndex,
	}
}

var sessionNameLeads = []string{
	"Midnight", "Rainy", "Electric", "Focused", "Reckless",
	"Quiet", "Marathon", "Sunday", "Warmup", "Overtime",
}

var sessionNameTails = []string{
	"Grind", "Run", "Set", "Push", "Streak",
	"Practice", "Charge", "Climb", "Drill", "Rush",
}

func randomSessionName() string {
	return sessionNameLeads[rand.Intn(len(sessionNameLeads))] + " " +
		sessionNameTails[rand.Intn(len(sessionNameTails))]
}
