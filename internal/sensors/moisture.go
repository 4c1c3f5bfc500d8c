package sensors

import "context"

// MoistureProbe returns the raw ADC count of the capacitive soil probe.
type MoistureProbe interface {
	ReadRaw(ctx context.Context) (int, error)
}

// MoisturePercent maps a raw ADC value linearly from dry (0%) to wet (100%)
// using integer arithmetic, then clamps to [0,100]. Works for probes whose
// count falls or rises with moisture.
func MoisturePercent(raw, dry, wet int) int {
	if dry == wet {
		return 0
	}
	pct := (raw - dry) * 100 / (wet - dry)
	return clampPercent(pct)
}

func clampPercent(pct int) int {
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}
