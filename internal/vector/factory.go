package vector

import (
	"fmt"

	"github.com/engramlabs/engram/internal/config"
)

// New selects a backend from config. Unsupported names are a fatal
// configuration error caught at startup.
func New(cfg config.Vector) (Store, error) {
	switch cfg.Backend {
	case "chromem":
		return NewChromemStore(cfg.Path), nil
	case "sqlite":
		return NewSQLiteStore(cfg.Path), nil
	default:
		return nil, fmt.Errorf("unsupported vector backend %q", cfg.Backend)
	}
}
