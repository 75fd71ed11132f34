package mylog

import (
	"context"
	"log/slog"
	"os"

	"aimon/app/config"

	"github.com/phsym/console-slog"
	slogmulti "github.com/samber/slog-multi"
	slogtelegram "github.com/samber/slog-telegram/v2"
)

func consoleHandler(level slog.Level) slog.Handler {
	return console.NewHandler(os.Stderr, &console.HandlerOptions{
		AddSource: true,
		Level:     level,
	})
}

// Preinit installs a debug console logger so that config loading itself can
// log. Init replaces it once the config is available.
func Preinit() {
	slog.SetDefault(slog.New(consoleHandler(slog.LevelDebug)))
}

func Init(cfg *config.Config) error {
	level := cfg.Log.GetLevel()

	router := slogmulti.Router()

	router = router.Add(consoleHandler(level))

	if cfg.Log.Telegram.Token != "" {
		router = router.Add(
			slogtelegram.Option{
				Level:     level,
				Token:     cfg.Log.Telegram.Token,
				Username:  cfg.Log.Telegram.ChatID,
				AddSource: true,
			}.NewTelegramHandler(),

			func(_ context.Context, r slog.Record) bool {
				hasTelegram := false

				r.Attrs(func(attr slog.Attr) bool {
					if attr.Key == "telegram" {
						hasTelegram = true
						return false
					}

					return true
				})

				return r.Level == slog.LevelError || hasTelegram
			},
		)
	}

	slog.SetDefault(slog.New(router.Handler()))

	return nil
}
