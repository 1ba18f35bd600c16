/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/openkvm/keywave/pkg/api"
	"github.com/openkvm/keywave/pkg/bluetooth/bluez"
	"github.com/openkvm/keywave/pkg/bridge"
	"github.com/openkvm/keywave/pkg/capture"
	"github.com/openkvm/keywave/pkg/clock"
	"github.com/openkvm/keywave/pkg/config"
	"github.com/openkvm/keywave/pkg/hid"
	"github.com/openkvm/keywave/pkg/lifecycle"
	"github.com/openkvm/keywave/pkg/logger"
	"github.com/openkvm/keywave/pkg/models"
	"github.com/openkvm/keywave/pkg/version"
)

var errFailedToLoadConfig = fmt.Errorf("failed to load config")

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	// Parse command line flags
	configPath := flag.String("config", "/etc/keywave/keywaved.json", "Path to keywaved config file")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("keywaved " + version.GetFullVersion())

		return nil
	}

	ctx := context.Background()

	// Step 1: Load configuration over the shipped defaults. A partial file
	// overrides only the fields it names.
	cfgLoader := config.NewConfig(nil)

	cfg := models.DefaultConfig()

	if err := cfgLoader.LoadAndValidate(ctx, *configPath, cfg); err != nil {
		return fmt.Errorf("%w: %w", errFailedToLoadConfig, err)
	}

	// Step 2: Create logger from loaded config
	logConfig := cfg.Logging
	if logConfig == nil {
		logConfig = &logger.Config{
			Level:  "info",
			Output: "stdout",
		}
	}

	daemonLogger, err := lifecycle.CreateComponentLogger("keywaved", logConfig)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	// Step 3: Assemble the pipeline with a real clock for production
	clk := clock.New()

	reportMap := hid.ReportMap(cfg.KeyboardReportID, cfg.MouseReportID, cfg.KeyboardBufferSize)
	radio := bluez.New(cfg, reportMap, daemonLogger)

	primary := capture.NewHookSource(daemonLogger)

	var fallback capture.CaptureSource
	if cfg.InputFallback {
		fallback = capture.NewPollSource(cfg.PollingInterval(), clk, daemonLogger)
	}

	svc := bridge.New(cfg, radio, primary, fallback, clk, daemonLogger)

	var apiServer lifecycle.HTTPServer
	if cfg.ListenAddr != "" {
		apiServer = api.NewServer(svc, daemonLogger)
	}

	// Run the bridge with lifecycle management
	return lifecycle.RunServer(ctx, &lifecycle.ServerOptions{
		Service:    svc,
		HTTPServer: apiServer,
		ListenAddr: cfg.ListenAddr,
		Logger:     daemonLogger,
	})
}
