package main

import (
	"net/http"
	"time"

	"github.com/navikt/mindar/pkg/mindar/emulator"
	"github.com/rs/zerolog"
	flag "github.com/spf13/pflag"
)

var (
	port       = flag.String("port", "8080", "Port to run the HTTP server on")
	username   = flag.String("username", "", "Require basic auth with this username")
	password   = flag.String("password", "", "Password for basic auth")
	structures = flag.StringSlice("structures", nil, "Data-structures that can be exported, all if empty")
)

func main() {
	flag.Parse()

	log := zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger()

	em := emulator.New(log)

	if *username != "" {
		em.SetCredentials(*username, *password)
	}

	if len(*structures) > 0 {
		em.SetStructures(*structures...)
	}

	server := &http.Server{
		Addr:              ":" + *port,
		Handler:           em,
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info().Msgf("mindar emulator listening on port %s", *port)

	err := server.ListenAndServe()
	if err != nil {
		log.Fatal().Err(err).Msg("starting server")
	}
}
