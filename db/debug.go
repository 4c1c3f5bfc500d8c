package db

import (
	"time"

	"github.com/thatsimonsguy/grow-controller/internal/model"
)

func RecentCyclesCLI(dbPath string, limit int) ([]model.CycleRecord, error) {
	conn, err := Open(dbPath)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	return GetRecentCycles(conn, limit)
}

func DeliveryStatsCLI(dbPath string, window time.Duration) (DeliveryStats, error) {
	conn, err := Open(dbPath)
	if err != nil {
		return DeliveryStats{}, err
	}
	defer conn.Close()
	return GetDeliveryStats(conn, time.Now().Add(-window))
}

func PruneCyclesCLI(dbPath string, keep int) (int64, error) {
	conn, err := Open(dbPath)
	if err != nil {
		return 0, err
	}
	defer conn.Close()
	return PruneCycles(conn, keep)
}
