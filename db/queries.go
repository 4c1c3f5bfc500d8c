package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/thatsimonsguy/grow-controller/internal/model"
)

type DeliveryStats struct {
	Since     time.Time `json:"since"`
	Cycles    int       `json:"cycles"`
	Skipped   int       `json:"skipped"`
	Delivered int       `json:"delivered"`
	Failed    int       `json:"failed"`
	Faulted   int       `json:"faulted"`
}

const cycleColumns = `id, started_at, network, skipped, skip_reason, duration_ms,
	soil_temp_c, air_temp_c, humidity_pct, soil_moisture_pct, faults,
	water_pump, grow_light, humidifier, fertilizer_lead_ms, fertilizer_hold_ms, cooling_hold_ms,
	delivered, status_code, response_body, delivery_error`

// GetRecentCycles returns up to limit cycles, newest first.
func GetRecentCycles(db *sql.DB, limit int) ([]model.CycleRecord, error) {
	rows, err := db.Query(`SELECT `+cycleColumns+` FROM cycles ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query cycles: %w", err)
	}
	defer rows.Close()

	var records []model.CycleRecord
	for rows.Next() {
		rec, err := scanCycle(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// GetCycleByID retrieves a single cycle.
func GetCycleByID(db *sql.DB, id string) (*model.CycleRecord, error) {
	row := db.QueryRow(`SELECT `+cycleColumns+` FROM cycles WHERE id = ?`, id)
	rec, err := scanCycle(row)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetDeliveryStats summarizes cycles started at or after since.
func GetDeliveryStats(db *sql.DB, since time.Time) (DeliveryStats, error) {
	stats := DeliveryStats{Since: since}
	err := db.QueryRow(`SELECT
		COUNT(*),
		COALESCE(SUM(CASE WHEN skipped THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN NOT skipped AND delivered THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN NOT skipped AND NOT delivered THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN faults != '[]' THEN 1 ELSE 0 END), 0)
	FROM cycles WHERE started_at >= ?`, formatTime(since)).
		Scan(&stats.Cycles, &stats.Skipped, &stats.Delivered, &stats.Failed, &stats.Faulted)
	if err != nil {
		return stats, fmt.Errorf("failed to get delivery stats: %w", err)
	}
	return stats, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCycle(s scanner) (model.CycleRecord, error) {
	var (
		rec                       model.CycleRecord
		startedAt, network, fault string
		durationMs                int64
		fertLead, fertHold, cool  int64
		deliveryErr               string
	)
	err := s.Scan(
		&rec.ID, &startedAt, &network, &rec.Skipped, &rec.SkipReason, &durationMs,
		&rec.Snapshot.SoilTempC, &rec.Snapshot.AirTempC, &rec.Snapshot.HumidityPct, &rec.Snapshot.SoilMoisturePct, &fault,
		&rec.Command.WaterPump, &rec.Command.GrowLight, &rec.Command.Humidifier, &fertLead, &fertHold, &cool,
		&rec.Outcome.Success, &rec.Outcome.StatusCode, &rec.Outcome.Body, &deliveryErr,
	)
	if err != nil {
		return rec, fmt.Errorf("failed to scan cycle: %w", err)
	}

	rec.StartedAt = parseTime(startedAt)
	rec.Snapshot.TakenAt = rec.StartedAt
	rec.Network = model.NetworkState(network)
	rec.Duration = time.Duration(durationMs) * time.Millisecond
	json.Unmarshal([]byte(fault), &rec.Snapshot.Faults)
	rec.Command.FertilizerPulse = model.Pulse{
		Lead: time.Duration(fertLead) * time.Millisecond,
		Hold: time.Duration(fertHold) * time.Millisecond,
	}
	rec.Command.CoolingPulse = model.Pulse{Hold: time.Duration(cool) * time.Millisecond}
	if deliveryErr != "" {
		rec.Outcome.Err = errors.New(deliveryErr)
	}
	return rec, nil
}
