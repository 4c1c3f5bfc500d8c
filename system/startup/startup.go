package startup

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/thatsimonsguy/grow-controller/internal/env"
	"github.com/thatsimonsguy/grow-controller/internal/model"
)

var executable = os.Executable

// WriteStartupScript writes a boot script that forces every relay pin to its
// inactive level before the controller starts.
func WriteStartupScript() error {
	var lines []string
	lines = append(lines, "#!/bin/bash", "", "# Grow enclosure relay configuration at boot", "")

	pins := env.Cfg.Pins()
	names := make([]string, 0, len(pins))
	for a := range pins {
		names = append(names, string(a))
	}
	sort.Strings(names)

	for _, name := range names {
		pin := pins[model.Actuator(name)]
		drive := "dl"
		if !pin.ActiveHigh {
			drive = "dh"
		}
		lines = append(lines, fmt.Sprintf("# %s", name))
		lines = append(lines, fmt.Sprintf("pinctrl set %d op pn %s", pin.Number, drive))
		lines = append(lines, "")
	}

	contents := strings.Join(lines, "\n") + "\n"
	return os.WriteFile(env.Cfg.BootScriptFilePath, []byte(contents), 0755)
}

func InstallStartupService() error {
	unitContents := fmt.Sprintf(`[Unit]
Description=Force grow enclosure relays off at boot
After=network.target

[Service]
Type=oneshot
Environment=PATH=/usr/local/bin:/usr/bin:/bin
ExecStart=%s
RemainAfterExit=true

[Install]
WantedBy=multi-user.target
`, env.Cfg.BootScriptFilePath)

	return os.WriteFile(env.Cfg.OSServicePath, []byte(unitContents), 0644)
}

// InstallControllerService writes the main unit. It runs the binary that is
// installing it, against the same config file, and restarts on failure.
func InstallControllerService() error {
	bin, err := executable()
	if err != nil {
		return fmt.Errorf("failed to resolve controller binary: %w", err)
	}
	configFile, err := filepath.Abs(env.Cfg.ConfigFile)
	if err != nil {
		return fmt.Errorf("failed to resolve config file: %w", err)
	}
	gpioUnitName := filepath.Base(env.Cfg.OSServicePath)

	unit := fmt.Sprintf(`[Unit]
Description=Grow enclosure controller
After=%s network-online.target
Requires=%s

[Service]
Type=simple
WorkingDirectory=%s
ExecStart=%s -config-file %s
Restart=on-failure
RestartSec=5s

[Install]
WantedBy=multi-user.target
`, gpioUnitName, gpioUnitName, filepath.Dir(configFile), bin, configFile)

	return os.WriteFile(env.Cfg.MainServicePath, []byte(unit), 0644)
}
