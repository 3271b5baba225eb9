// utils/scoreid.go
package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// CreateScoreID builds the deterministic identity of a score: the same user
// submitting the same play on the same chart always hashes to the same ID, so
// re-imports are idempotent. The identity fields are the source-provided
// uniqueness data (raw score, lamp, judgements) — not the time the row hit
// our database.
func CreateScoreID(userID int, chartID string, score float64, lamp string, judgements map[string]int) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d|%s|%.6f|%s|", userID, chartID, score, lamp)

	// Map iteration order is random; sort so the hash is stable.
	keys := make([]string, 0, len(judgements))
	for k := range judgements {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(h, "%s=%d|", k, judgements[k])
	}

	return "R" + hex.EncodeToString(h.Sum(nil))
}

// CreateOrphanID hashes an orphaned payload so the same unresolvable score is
// only stored once per user.
func CreateOrphanID(userID int, matchKey string, payload any) string {
	raw, err := json.Marshal(payload)
	if err != nil {
		raw = []byte(fmt.Sprintf("%v", payload))
	}

	h := sha256.New()
	fmt.Fprintf(h, "%d|%s|", userID, matchKey)
	h.Write(raw)

	return "O" + hex.EncodeToString(h.Sum(nil))
}
