// main.go
//
// LITE, a forensic triage case and artifact ingestion service
// Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC
//
// This file is part of lite.
// lite is free software: you can redistribute it and/or modify it
// under the terms of the GNU Affero General Public License as published by the Free Software
// Foundation, either version 3 of the License, or (at your option) any later version.
// lite is distributed in the hope that it will be useful, but WITHOUT ANY WARRANTY;
// without even the implied warranty of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
// See the GNU Affero General Public License for more details.
// You should have received a copy of the GNU Affero General Public License along with lite.
// If not, see <https://www.gnu.org/licenses/>.
// Additional terms under GNU AGPL version 3 section 7:
// a) The reasonable legal notice of original copyright and author attribution must be preserved
//    by including the string: "Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC"
//    in this material, copies, or source code of derived works.

package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/localnerve/lite/internal/config"
	"github.com/localnerve/lite/internal/database"
	"github.com/localnerve/lite/internal/logging"
	"github.com/localnerve/lite/internal/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	// Keep stdout for the JSON result
	logging.Init(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat, os.Stderr)
	log := logging.New("healthcheck")

	appDB, err := database.Connect(cfg)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	result := services.HealthCheck(cfg, appDB)
	database.Close(appDB)

	output, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		log.Error("failed to marshal health check result", "error", err)
		os.Exit(1)
	}
	fmt.Println(string(output))

	if result.Status != "healthy" {
		os.Exit(1)
	}
}
