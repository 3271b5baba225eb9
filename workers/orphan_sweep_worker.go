// workers/orphan_sweep_worker.go
package workers

import (
	"context"
	"log"
	"time"

	"score-ingest-system/services"
)

// OrphanSweepWorker periodically replays stored orphaned score payloads whose
// charts have since landed in the catalog through a path other than queue
// promotion (seed syncs, manual ForceResolve).
type OrphanSweepWorker struct {
	importer *services.ImportService
	interval time.Duration
}

func NewOrphanSweepWorker(importer *services.ImportService) *OrphanSweepWorker {
	return &OrphanSweepWorker{
		importer: importer,
		interval: 5 * time.Minute,
	}
}

func (w *OrphanSweepWorker) Start(ctx context.Context) {
	log.Println("🔁 Starting Orphan Sweep Worker (orphan_scores → scores)…")
	go w.run(ctx)
}

func (w *OrphanSweepWorker) run(ctx context.Context) {
	// One sweep at startup to drain anything left over from a restart.
	if replayed, err := w.importer.SweepOrphanScores(ctx); err != nil {
		log.Printf("⚠️ Initial orphan sweep failed: %v", err)
	} else if replayed > 0 {
		log.Printf("[SWEEP] ✅ Replayed %d orphaned score(s) on startup", replayed)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			replayed, err := w.importer.SweepOrphanScores(ctx)
			if err != nil {
				log.Printf("❌ Orphan sweep failed: %v", err)
				continue
			}
			if replayed > 0 {
				log.Printf("[SWEEP] ✅ Replayed %d orphaned score(s)", replayed)
			}
		case <-ctx.Done():
			log.Println("⏹️ Orphan Sweep Worker stopped")
			return
		}
	}
}
