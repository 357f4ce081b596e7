// ggeimport logs in to the game server, collects alliance and map data
// from the bulk login message, player details and region queries, and
// writes the merged castles to a JSON file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ggeimport/ggeimport/internal/api"
	"github.com/ggeimport/ggeimport/internal/cli"
	"github.com/ggeimport/ggeimport/internal/config"
	"github.com/ggeimport/ggeimport/internal/connector"
	"github.com/ggeimport/ggeimport/internal/db"
	"github.com/ggeimport/ggeimport/internal/errs"
	"github.com/ggeimport/ggeimport/internal/events"
	"github.com/ggeimport/ggeimport/internal/export"
	"github.com/ggeimport/ggeimport/internal/extract"
	"github.com/ggeimport/ggeimport/internal/store"
	"github.com/ggeimport/ggeimport/internal/telemetry"
	"github.com/ggeimport/ggeimport/internal/util"
)

const AppVersion = "0.3.0"

// Exit codes.
const (
	exitOK       = 0
	exitFailure  = 1
	exitConflict = 2
	exitConfig   = 3
)

type flags struct {
	configDir     string
	showOccupants bool
	showLocations int
	validate      bool
	version       bool
}

func parseFlags() flags {
	var f flags
	flag.StringVar(&f.configDir, "config", config.DefaultConfigDir, "Directory holding config.json")
	flag.BoolVar(&f.showOccupants, "occupants", false, "Print the occupant table after the import")
	flag.IntVar(&f.showLocations, "locations", 0, "Print up to N locations after the import, -1 for all")
	flag.BoolVar(&f.validate, "validate", false, "Validate configuration and exit")
	flag.BoolVar(&f.version, "version", false, "Show version information")
	flag.Parse()
	return f
}

func main() {
	os.Exit(run(parseFlags()))
}

func run(f flags) int {
	if f.version {
		fmt.Printf("%s %s\n", util.AppName, AppVersion)
		return exitOK
	}

	if _, err := util.InitLogger(util.DefaultLogConfig()); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		return exitFailure
	}

	cfg, err := config.Load(f.configDir)
	if err != nil {
		log.Error().Err(err).Msg("failed to load configuration")
		return exitConfig
	}

	logCfg := cfg.GetApplicationData().Logging
	if _, err := util.InitLogger(util.LogConfig{
		Level:      logCfg.Level,
		Directory:  logCfg.Directory,
		MaxBackups: logCfg.MaxBackups,
		Console:    logCfg.Console,
	}); err != nil {
		log.Warn().Err(err).Msg("failed to reconfigure logger, using defaults")
	}

	host := util.DescribeHost()
	log.Info().
		Str("version", AppVersion).
		Str("hostname", host.Hostname).
		Str("os", host.OS).
		Str("arch", host.Arch).
		Int("cpu_cores", host.CPUCores).
		Msg("starting import")

	config.ApplyEnv(cfg, nil)

	validation := config.Validate(cfg)
	for _, w := range validation.Warnings {
		log.Warn().Str("field", w.Field).Msg(w.Message)
	}
	if !validation.IsValid() {
		for _, e := range validation.Errors {
			log.Error().Str("field", e.Field).Msg(e.Message)
		}
		log.Error().Msg("configuration validation failed, please fix the errors above")
		return exitConfig
	}
	if f.validate {
		log.Info().Str("path", cfg.Path()).Msg("configuration is valid")
		return exitOK
	}

	if cfg.NeedsCredentials() {
		creds, err := cli.PromptCredentials(os.Stdin, os.Stdout, cfg.Credentials().Username)
		if err != nil {
			log.Error().Err(err).Msg("no credentials")
			return exitConfig
		}
		cfg.SetCredentials(creds.Username, creds.Password)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return importRun(ctx, cfg, f)
}

func importRun(ctx context.Context, cfg *config.Config, f flags) int {
	appData := cfg.GetApplicationData()
	serverData := cfg.GetServerData()

	eventBus := events.NewEventBus()
	defer eventBus.Stop()

	st := store.New()

	// Optional MQTT telemetry
	if appData.MQTT.Enabled {
		mqttHandler, err := telemetry.NewMQTTHandler(appData.MQTT, eventBus)
		if err != nil {
			log.Warn().Err(err).Msg("MQTT telemetry disabled")
		} else if err := mqttHandler.Start(ctx); err != nil {
			log.Warn().Err(err).Msg("MQTT telemetry failed")
		} else {
			defer mqttHandler.Stop()
		}
	}

	// Optional snapshot database
	var database *db.Database
	if appData.Storage.SQLitePath != "" {
		d, err := db.NewDatabase(appData.Storage.SQLitePath)
		if err != nil {
			log.Warn().Err(err).Msg("snapshot database disabled")
		} else {
			database = d
			defer database.Close()
		}
	}

	// Optional read-only API
	var apiServer *api.Server
	apiDone := make(chan struct{})
	if appData.API.Enabled {
		apiServer = api.NewServer(appData.API, st)
		if database != nil {
			apiServer.SetDatabase(database)
		}
		if err := apiServer.Listen(ctx); err != nil {
			log.Warn().Err(err).Msg("REST API disabled")
			apiServer = nil
		} else {
			go func() {
				defer close(apiDone)
				if err := apiServer.Serve(ctx); err != nil {
					log.Error().Err(err).Msg("REST API stopped")
				}
			}()
		}
	}

	x := extract.New(st)
	x.RequestDetails = serverData.RequestDetails

	conn := connector.NewGameConnector(connector.Options{
		Addr:          serverData.Address,
		Session:       cfg.SessionOptions(),
		Credentials:   cfg.Credentials(),
		RegionQueries: cfg.RegionQueries(),
		Store:         st,
	}, x, eventBus)
	if apiServer != nil {
		apiServer.SetStatusSource(conn)
	}

	startedAt := time.Now()
	res, runErr := conn.Run(ctx)

	if !res.LoginConfirmed {
		log.Warn().Msg("no bulk data received, login likely failed")
	}

	code := exitOK
	if runErr != nil {
		code = exitFailure
		var conflict *store.ConflictError
		switch {
		case errors.As(runErr, &conflict):
			log.Error().Err(runErr).Msg("records disagree, nothing written")
			code = exitConflict
		case errs.IsKind(runErr, errs.KindTransport):
			log.Error().Err(runErr).Msg("connection to game server failed")
		default:
			log.Error().Err(runErr).Msg("import failed")
		}
	}

	snap := st.Snapshot()
	if code == exitOK {
		code = persist(ctx, eventBus, appData.Storage.JSONPath, database, db.ImportRun{
			StartedAt:      startedAt,
			FinishedAt:     time.Now(),
			LoginConfirmed: res.LoginConfirmed,
		}, snap)
	}

	cli.PrintSummary(os.Stdout, res, snap)
	if f.showOccupants {
		cli.PrintOccupants(os.Stdout, snap)
	}
	if f.showLocations != 0 {
		cli.PrintLocations(os.Stdout, snap, f.showLocations)
	}

	if apiServer != nil {
		if appData.API.KeepServing && ctx.Err() == nil {
			log.Info().Str("addr", apiServer.Addr().String()).Msg("import done, API still serving until interrupted")
			<-ctx.Done()
		}
		apiServer.Stop()
		<-apiDone
	}

	eventBus.Emit(context.Background(), events.Event{Type: events.EventShutdown, Source: "main"})
	log.Info().Int("exit_code", code).Msg("import stopped")
	return code
}

// persist writes the JSON file and, when enabled, the database snapshot.
func persist(ctx context.Context, eventBus *events.EventBus, jsonPath string, database *db.Database, run db.ImportRun, snap store.Snapshot) int {
	n, err := export.WriteFile(jsonPath, snap)
	if err != nil {
		log.Error().Err(err).Str("path", jsonPath).Msg("failed to write output")
		return exitFailure
	}
	eventBus.Emit(ctx, events.Event{
		Type:    events.EventExportWritten,
		Source:  "main",
		Payload: events.ExportPayload{Target: "json", Path: jsonPath, Records: n},
	})

	if database == nil {
		return exitOK
	}
	id, err := database.SaveSnapshot(ctx, run, snap)
	if err != nil {
		log.Error().Err(err).Msg("failed to save database snapshot")
		return exitFailure
	}
	eventBus.Emit(ctx, events.Event{
		Type:    events.EventExportWritten,
		Source:  "main",
		Payload: events.ExportPayload{Target: "sqlite", Path: fmt.Sprintf("%s#%d", database.Path(), id), Records: len(snap.Locations)},
	})
	return exitOK
}
