// Command quizd runs the development quiz server: rooms over websocket
// plus the lobby's room-listing HTTP surface.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mathroom/mathroom/internal/httpapi"
	"github.com/mathroom/mathroom/internal/hub"
)

func main() {
	addr := flag.String("addr", ":3000", "listen address")
	rounds := flag.Int("rounds", 0, "questions per game, 0 means endless")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	flag.Parse()

	log := newLogger(*verbose)
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	h := hub.NewHub(ctx, hub.Config{Rounds: *rounds}, log)
	srv := &http.Server{Addr: *addr, Handler: httpapi.SetupRoutes(h, log)}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Sugar().Infow("listening", "addr", *addr, "rounds", *rounds)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Sugar().Fatalw("server error", "err", err)
	}
}

func newLogger(verbose bool) *zap.Logger {
	var log *zap.Logger
	var err error
	if verbose {
		log, err = zap.NewDevelopment()
	} else {
		log, err = zap.NewProduction()
	}
	if err != nil {
		panic(err)
	}
	return log
}
