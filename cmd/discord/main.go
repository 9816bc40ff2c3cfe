// cmd/discord/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"living-persona/internal/app"
	"living-persona/internal/config"
	"living-persona/internal/discord"
	"living-persona/pkg/jobmgr"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log := cfg.Logger()
	log.Info().Str("persona", cfg.PersonaName).Msg("starting discord bot")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dg, err := discord.NewSession(cfg.DiscordToken)
	if err != nil {
		log.Fatal().Err(err).Msg("discord session")
	}
	sink := discord.NewSink(dg, cfg.DiscordChannelID, cfg.RunePace)

	a, err := app.Build(cfg, sink, log)
	if err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
	defer a.Close()

	bot := discord.NewBot(dg, a.Engine, sink, cfg.DiscordChannelID, cfg.Debounce, log)

	jm := jobmgr.NewManager(log)
	jm.Start("engagement", func(ctx context.Context) error {
		return a.Engine.Run(ctx, cfg.TickInterval)
	})

	if err := bot.Run(ctx); err != nil && ctx.Err() == nil {
		log.Error().Err(err).Msg("discord bot error")
	}
	jm.Shutdown()
	log.Info().Msg("discord bot exited cleanly")
}
