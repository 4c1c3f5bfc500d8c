package network

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/grow-controller/internal/model"
)

// runCommand executes nmcli and returns its combined output.
var runCommand = func(ctx context.Context, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, "nmcli", args...).CombinedOutput()
}

// Monitor reports whether the host can reach the collector network.
type Monitor interface {
	Connect(ctx context.Context) bool
	Status(ctx context.Context) model.NetworkState
}

// NMCLI joins and monitors a Wi-Fi network through NetworkManager.
type NMCLI struct {
	SSID      string
	Password  string
	Interface string
}

// Connect joins the configured network. It returns false if nmcli reports
// an error or the host does not reach full connectivity afterwards.
func (n *NMCLI) Connect(ctx context.Context) bool {
	args := []string{"device", "wifi", "connect", n.SSID}
	if n.Password != "" {
		args = append(args, "password", n.Password)
	}
	if n.Interface != "" {
		args = append(args, "ifname", n.Interface)
	}

	out, err := runCommand(ctx, args...)
	if err != nil {
		log.Error().Err(err).Str("ssid", n.SSID).Str("output", strings.TrimSpace(string(out))).Msg("Failed to join network")
		return false
	}

	state := n.Status(ctx)
	log.Info().Str("ssid", n.SSID).Str("state", string(state)).Msg("Joined network")
	return state == model.Connected
}

// Status maps `nmcli networking connectivity` onto Connected only when
// NetworkManager reports "full".
func (n *NMCLI) Status(ctx context.Context) model.NetworkState {
	out, err := runCommand(ctx, "networking", "connectivity")
	if err != nil {
		log.Warn().Err(err).Msg("Failed to query connectivity")
		return model.Disconnected
	}
	state, err := parseConnectivity(string(out))
	if err != nil {
		log.Warn().Err(err).Msg("Unexpected connectivity output")
	}
	return state
}

func parseConnectivity(output string) (model.NetworkState, error) {
	switch v := strings.TrimSpace(output); v {
	case "full":
		return model.Connected, nil
	case "none", "portal", "limited", "unknown":
		return model.Disconnected, nil
	default:
		return model.Disconnected, fmt.Errorf("unknown connectivity state %q", v)
	}
}

// Static is used on hosts whose network is managed elsewhere.
type Static struct{}

func (Static) Connect(context.Context) bool { return true }

func (Static) Status(context.Context) model.NetworkState { return model.Connected }
