package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
)

const defaultAddr = ":3000"

func serveCmd() *cli.Command {
	var common commonFlags
	addr := defaultAddr
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the authentication HTTP server",
		Flags: append(common.flags(),
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "Address to listen on",
				Value:       addr,
				Destination: &addr,
			},
		),
		Action: func(ctx *cli.Context) error {
			logger := common.logger()
			cfg, err := common.load()
			if err != nil {
				return err
			}
			st, err := newStack(ctx.Context, cfg, logger)
			if err != nil {
				return err
			}
			defer st.Close()
			return serve(ctx.Context, addr, st.handler, logger)
		},
	}
}

func serve(ctx context.Context, addr string, handler http.Handler, logger zerolog.Logger) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	log := logger.With().Str("server.addr", addr).Logger()

	errc := make(chan error, 1)
	go func() {
		log.Info().Msg("Starting HTTP server")
		errc <- server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		log.Info().Msg("Initiating shutdown process")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		log.Info().Msg("Shutdown completed")
		return nil
	}
}
