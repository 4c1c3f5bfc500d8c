package env

import (
	"github.com/thatsimonsguy/grow-controller/internal/config"
)

var (
	Cfg *config.Config
)
