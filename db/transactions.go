package db

import (
	"database/sql"
	"fmt"

	"github.com/thatsimonsguy/grow-controller/internal/model"
)

// StartTransaction starts a new database transaction.
func StartTransaction(db *sql.DB) (*sql.Tx, error) {
	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	return tx, nil
}

// CommitTransaction commits the given transaction.
func CommitTransaction(tx *sql.Tx) error {
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// RollbackTransaction rolls back the given transaction.
func RollbackTransaction(tx *sql.Tx) {
	tx.Rollback()
}

func InsertCycle(db *sql.DB, rec model.CycleRecord) error {
	tx, err := StartTransaction(db)
	if err != nil {
		return err
	}
	if err := InsertCycleWithTx(tx, rec); err != nil {
		RollbackTransaction(tx)
		return err
	}
	return CommitTransaction(tx)
}

func InsertCycleWithTx(tx *sql.Tx, rec model.CycleRecord) error {
	snap, cmd, out := rec.Snapshot, rec.Command, rec.Outcome

	var deliveryErr string
	if out.Err != nil {
		deliveryErr = out.Err.Error()
	}

	_, err := tx.Exec(`INSERT INTO cycles (
		id, started_at, network, skipped, skip_reason, duration_ms,
		soil_temp_c, air_temp_c, humidity_pct, soil_moisture_pct, faults,
		water_pump, grow_light, humidifier, fertilizer_lead_ms, fertilizer_hold_ms, cooling_hold_ms,
		delivered, status_code, response_body, delivery_error
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, formatTime(rec.StartedAt), string(rec.Network), rec.Skipped, rec.SkipReason, rec.Duration.Milliseconds(),
		snap.SoilTempC, snap.AirTempC, snap.HumidityPct, snap.SoilMoisturePct, marshalJSON(snap.Faults),
		cmd.WaterPump, cmd.GrowLight, cmd.Humidifier,
		cmd.FertilizerPulse.Lead.Milliseconds(), cmd.FertilizerPulse.Hold.Milliseconds(), cmd.CoolingPulse.Hold.Milliseconds(),
		out.Success, out.StatusCode, out.Body, deliveryErr,
	)
	if err != nil {
		return fmt.Errorf("insert cycle %s: %w", rec.ID, err)
	}
	return nil
}

// PruneCycles deletes all but the newest keep cycles and returns how many
// rows were removed.
func PruneCycles(db *sql.DB, keep int) (int64, error) {
	if keep < 0 {
		return 0, fmt.Errorf("invalid keep count %d", keep)
	}

	tx, err := StartTransaction(db)
	if err != nil {
		return 0, err
	}
	res, err := tx.Exec(`DELETE FROM cycles WHERE seq <= (
		SELECT seq FROM cycles ORDER BY seq DESC LIMIT 1 OFFSET ?
	)`, keep)
	if err != nil {
		RollbackTransaction(tx)
		return 0, fmt.Errorf("prune cycles: %w", err)
	}
	if err := CommitTransaction(tx); err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
