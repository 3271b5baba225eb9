// gameconfig/config.go
package gameconfig

import (
	"fmt"

	"score-ingest-system/models"
)

// PBMergeFn selectively copies companion fields from one metric's best
// contributor onto a PB composite. Each merge function owns the fields it
// writes and must not touch fields owned by another.
type PBMergeFn struct {
	// Name labels the composedFrom entry this merge produces.
	Name  string
	Apply func(pb *models.PBScore, scorePB *models.Score, lampPB *models.Score) error
}

// SessionCalc computes one session-level aggregate from the session's member
// scores. Returning nil means "not enough data" and is surfaced as an explicit
// null, never as a partial number.
type SessionCalc struct {
	Key  string
	Calc func(scores []models.Score) *float64
}

// GamePTConfig bundles everything the pipeline needs to know about one
// game+mode. The pipeline itself never branches on game names; adding a game
// means registering a new entry here.
type GamePTConfig struct {
	Game string
	Mode string

	// Ordered worst-to-best. Enum indices are positions in these lists.
	Lamps  []string
	Grades []string
	// GradeBoundaries[i] is the minimum percent for Grades[i].
	GradeBoundaries []float64
	PercentMax      float64

	// ClearLamp is the first lamp counted as a clear, for profile stats.
	ClearLamp string

	// PrimaryMetric picks which contributor's full scoreData seeds the PB
	// composite: "lamp" (the convention for most games) or "score".
	PrimaryMetric string

	CalculatePercent func(score float64, chart *models.Chart) (float64, error)
	// CalculateRatings derives per-score rating metrics. Keys that cannot
	// be computed are simply absent.
	CalculateRatings func(sd *models.ScoreData, chart *models.Chart) map[string]float64

	MergeFns     []PBMergeFn
	SessionCalcs []SessionCalc

	// ProfileRatingKeys are averaged over the user's best PBs by the
	// profile stats recompute.
	ProfileRatingKeys []string
}

// Key builds the registry discriminant for a game+mode pair.
func Key(game, mode string) string {
	return game + ":" + mode
}

var registry = map[string]*GamePTConfig{}

func register(cfg *GamePTConfig) {
	key := Key(cfg.Game, cfg.Mode)
	if _, dup := registry[key]; dup {
		panic(fmt.Sprintf("gameconfig: duplicate registration for %s", key))
	}
	registry[key] = cfg
}

// Get returns the config for a game+mode, or false if the pair is unknown.
func Get(game, mode string) (*GamePTConfig, bool) {
	cfg, ok := registry[Key(game, mode)]
	return cfg, ok
}

// Supported reports whether a game+mode pair is registered.
func Supported(game, mode string) bool {
	_, ok := registry[Key(game, mode)]
	return ok
}

// LampIndex returns the position of lamp in the game's ordered lamp list.
func (c *GamePTConfig) LampIndex(lamp string) (int, bool) {
	for i, l := range c.Lamps {
		if l == lamp {
			return i, true
		}
	}
	return 0, false
}

// GradeIndex returns the position of grade in the game's ordered grade list.
func (c *GamePTConfig) GradeIndex(grade string) (int, bool) {
	for i, g := range c.Grades {
		if g == grade {
			return i, true
		}
	}
	return 0, false
}

// GradeFromPercent resolves the grade for a percent against the game's grade
// boundaries.
func (c *GamePTConfig) GradeFromPercent(percent float64) (string, int, error) {
	for i := len(c.GradeBoundaries) - 1; i >= 0; i-- {
		if percent >= c.GradeBoundaries[i] {
			return c.Grades[i], i, nil
		}
	}
	return "", 0, fmt.Errorf("no grade boundary matches percent %.2f for %s", percent, Key(c.Game, c.Mode))
}
