// dummyserver runs a local stand-in for the game server with a small sample
// data set. Point ggeimport at it with GGE_SERVER=127.0.0.1:8081.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/ggeimport/ggeimport/internal/fakeserver"
	"github.com/ggeimport/ggeimport/internal/util"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:8081", "Address to listen on")
	password := flag.String("password", "", "Only answer logins with this password")
	level := flag.String("log-level", "debug", "Log level")
	flag.Parse()

	if _, err := util.InitLogger(util.LogConfig{Level: *level, Directory: "logs", MaxBackups: 5, Console: true}); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	script := fakeserver.SampleScript()
	script.Password = *password

	srv := fakeserver.New(*addr, script)
	if err := srv.Listen(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to listen")
	}
	log.Info().Str("addr", srv.Addr()).Msg("dummy game server ready")

	if err := srv.Serve(ctx); err != nil {
		log.Error().Err(err).Msg("dummy server stopped")
		os.Exit(1)
	}
	log.Info().Msg("dummy server stopped")
}
