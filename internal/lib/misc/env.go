/*
 * Copyright (c) 2024. SolTide Labs.
 * All Rights reserved.
 */

package misc

import (
	"fmt"
	"log/slog"

	"github.com/joho/godotenv"
)

// LoadEnvSettings loads .env.local then .env, earliest file winning for
// any key set in both.
func LoadEnvSettings(logger *slog.Logger) {
	if err := godotenv.Load(".env.local"); err == nil {
		Debugf(logger, "loaded environment overrides from .env.local")
	}
	if err := godotenv.Load(); err == nil {
		Debugf(logger, "loaded environment from .env")
	}
}

// LoadEnvForNetwork layers in network-specific settings once the target
// network is known. Keys already set stay as they are.
func LoadEnvForNetwork(logger *slog.Logger, network string) {
	if err := godotenv.Load(fmt.Sprintf(".env.%s", network)); err == nil {
		Debugf(logger, "loaded environment for network:%s", network)
	}
}
