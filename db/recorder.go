package db

import (
	"context"
	"database/sql"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/grow-controller/internal/model"
)

// pruneEvery is how many inserts pass between prunes.
const pruneEvery = 100

// Recorder journals every finished cycle and keeps the table bounded.
type Recorder struct {
	DB   *sql.DB
	Keep int

	inserts int
}

func (r *Recorder) ObserveCycle(_ context.Context, rec model.CycleRecord) error {
	if err := InsertCycle(r.DB, rec); err != nil {
		return err
	}

	r.inserts++
	if r.Keep > 0 && r.inserts%pruneEvery == 0 {
		removed, err := PruneCycles(r.DB, r.Keep)
		if err != nil {
			return err
		}
		if removed > 0 {
			log.Debug().Int64("removed", removed).Int("keep", r.Keep).Msg("Pruned cycle history")
		}
	}
	return nil
}
