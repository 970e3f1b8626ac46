// Copyright (c) 2026 Standsense Labs
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"flag"
	"log"

	"github.com/standsense/standsense/internal/app"
	"github.com/standsense/standsense/internal/config"
)

func main() {
	configPath := flag.String("config", "./standsense.conf", "path to configuration file")
	flag.Parse()

	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunWeb(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
