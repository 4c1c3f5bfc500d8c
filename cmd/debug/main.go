package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/thatsimonsguy/grow-controller/db"
	"github.com/thatsimonsguy/grow-controller/internal/actuator"
	"github.com/thatsimonsguy/grow-controller/internal/config"
	"github.com/thatsimonsguy/grow-controller/internal/env"
	"github.com/thatsimonsguy/grow-controller/internal/gpio"
	"github.com/thatsimonsguy/grow-controller/internal/model"
	"github.com/thatsimonsguy/grow-controller/system/startup"
)

func main() {
	DebugCLI()
}

func DebugCLI() {
	var dbPath, configFile, command, name string
	var limit, keep int
	var window, hold time.Duration
	flag.StringVar(&dbPath, "db", "data/grow.db", "Path to the cycle history database")
	flag.StringVar(&configFile, "config-file", "config.json", "Path to controller config file")
	flag.StringVar(&command, "cmd", "", "Command to run: recent, stats, prune, pulse, install-service")
	flag.IntVar(&limit, "limit", 20, "Number of cycles for recent")
	flag.IntVar(&keep, "keep", 10000, "Cycles to keep for prune")
	flag.DurationVar(&window, "window", 24*time.Hour, "Window for stats")
	flag.StringVar(&name, "actuator", "", "Actuator for pulse: water_pump, fertilizer_pump, grow_light, humidifier")
	flag.DurationVar(&hold, "hold", time.Second, "Hold time for pulse")
	help := flag.Bool("help", false, "Show help")
	flag.Parse()

	if *help || command == "" {
		fmt.Println("\nUsage of grow-debug:")
		fmt.Println("  -db string\tPath to the cycle history database (default 'data/grow.db')")
		fmt.Println("  -config-file string\tPath to controller config file (pulse, install-service)")
		fmt.Println("  -cmd string\tCommand to run: recent, stats, prune, pulse, install-service")
		fmt.Println("  -limit int\tNumber of cycles for recent")
		fmt.Println("  -keep int\tCycles to keep for prune")
		fmt.Println("  -window duration\tWindow for stats")
		fmt.Println("  -actuator string\tActuator for pulse")
		fmt.Println("  -hold duration\tHold time for pulse")
		fmt.Println("  -help\tShow this help message")
		os.Exit(0)
	}

	var err error
	switch command {
	case "recent":
		var records []model.CycleRecord
		records, err = db.RecentCyclesCLI(dbPath, limit)
		if err == nil {
			err = printJSON(records)
		}
	case "stats":
		var stats db.DeliveryStats
		stats, err = db.DeliveryStatsCLI(dbPath, window)
		if err == nil {
			err = printJSON(stats)
		}
	case "prune":
		var removed int64
		removed, err = db.PruneCyclesCLI(dbPath, keep)
		if err == nil {
			fmt.Printf("Removed %d cycles\n", removed)
		}
	case "pulse":
		err = pulse(configFile, model.Actuator(name), hold)
	case "install-service":
		err = installService(configFile)
	default:
		fmt.Println("Invalid command")
		os.Exit(1)
	}

	if err != nil {
		fmt.Printf("Command %s failed: %v\n", command, err)
		os.Exit(1)
	}
	fmt.Printf("Command %s completed successfully\n", command)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func loadConfig(path string) *config.Config {
	cfg := config.LoadFile(path)
	env.Cfg = &cfg
	return env.Cfg
}

func pulse(configFile string, a model.Actuator, hold time.Duration) error {
	cfg := loadConfig(configFile)
	pins := cfg.Pins()
	if _, ok := pins[a]; !ok {
		return fmt.Errorf("unknown actuator %q", a)
	}
	if hold <= 0 {
		return fmt.Errorf("hold must be positive, got %s", hold)
	}

	gpio.SetSafeMode(cfg.SafeMode)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	driver := actuator.NewDriver(pins)
	driver.Pulse(ctx, a, model.Pulse{Hold: hold})
	return nil
}

func installService(configFile string) error {
	loadConfig(configFile)
	if err := startup.WriteStartupScript(); err != nil {
		return fmt.Errorf("failed to write boot script: %w", err)
	}
	if err := startup.InstallStartupService(); err != nil {
		return fmt.Errorf("failed to write boot unit: %w", err)
	}
	if err := startup.InstallControllerService(); err != nil {
		return fmt.Errorf("failed to write controller unit: %w", err)
	}
	return nil
}
