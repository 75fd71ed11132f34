package main

import (
	"aimon/app/client/gpt"
	"aimon/app/config"
	"aimon/app/server"
	"aimon/app/service/ingest"
	"aimon/app/service/mailbox"
	"aimon/app/service/scheduler"
	"aimon/app/service/suggest"
	"aimon/app/service/summary"
	"aimon/app/storage"
	"aimon/app/util/mylog"
	"context"
	"log/slog"
	"os"
	"os/signal"

	"github.com/gofiber/fiber/v2/log"
	"github.com/samber/do"
	"golang.org/x/sync/errgroup"
)

func main() {
	di := do.New()
	defer di.Shutdown()
	defer log.Info("Waiting for services to finish...")

	mylog.Preinit()

	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	do.ProvideValue(di, appCtx)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	do.ProvideValue(di, cfg)

	if err = mylog.Init(cfg); err != nil {
		log.Fatalf("logging init failed: %v", err)
	}

	do.Provide(di, storage.New)
	do.Provide(di, gpt.NewClient)
	do.Provide(di, mailbox.New)
	do.Provide(di, ingest.New)
	do.Provide(di, summary.New)
	do.Provide(di, suggest.New)
	do.Provide(di, scheduler.New)
	do.Provide(di, server.New)

	slog.Info("Service started")

	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt)
		<-sigint

		log.Info("Shutting down...")

		cancel()
	}()

	g, runCtx := errgroup.WithContext(appCtx)

	g.Go(func() error {
		do.MustInvoke[*scheduler.Service](di).Run(runCtx)
		return nil
	})

	g.Go(func() error {
		do.MustInvoke[*server.Service](di).Run(runCtx)
		return nil
	})

	_ = g.Wait()
}
