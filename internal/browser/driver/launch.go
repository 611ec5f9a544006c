package driver

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/storefront-cli/internal/config"
)

// Launch starts a browser with the configured backend and returns a driver for
// its first page. ctx bounds only the start up; the browser lives until Close.
func Launch(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (Driver, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("driver").With(zap.String("backend", cfg.Backend))

	switch cfg.Backend {
	case config.BackendChromedp, "":
		return launchChromedp(ctx, cfg, logger)
	case config.BackendRod:
		return launchRod(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unknown browser backend %q", cfg.Backend)
	}
}

// launchFlag is one Chrome command line switch.
type launchFlag struct {
	Name string
	// Value is true for a bare switch, otherwise the string after "=".
	Value any
}

// parseArgs turns "name" and "name=value" arguments into launch flags. Leading
// dashes are dropped because both backends add their own.
func parseArgs(args []string) []launchFlag {
	flags := make([]launchFlag, 0, len(args))
	for _, arg := range args {
		arg = strings.TrimLeft(strings.TrimSpace(arg), "-")
		if arg == "" {
			continue
		}
		if key, value, found := strings.Cut(arg, "="); found {
			flags = append(flags, launchFlag{Name: key, Value: value})
			continue
		}
		flags = append(flags, launchFlag{Name: arg, Value: true})
	}
	return flags
}
