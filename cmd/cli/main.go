// cmd/cli/main.go
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"living-persona/internal/app"
	"living-persona/internal/arbitrator"
	"living-persona/internal/config"
	"living-persona/internal/speech"
	"living-persona/pkg/jobmgr"

	"github.com/rs/zerolog"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log := cfg.Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	arb := arbitrator.New(cfg.Debounce, log)
	var score func(user string) float64

	var sink speech.Sink = speech.NewConsoleSink(os.Stdout, cfg.PersonaName, cfg.RunePace)
	var hub *speech.Hub
	if cfg.HubAddr != "" {
		hub = speech.NewHub(sink, func(in speech.Input) {
			arb.Add(in.User, in.Text, score(in.User), time.Now())
		}, log)
		sink = hub
	}

	a, err := app.Build(cfg, sink, log)
	if err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
	defer a.Close()
	score = a.Engine.TierScore

	jm := jobmgr.NewManager(log)
	defer jm.Shutdown()

	con := &console{app: a, jobs: jm, user: cfg.CLIUser, tick: cfg.TickInterval}
	con.wake()
	jm.Start("turns", func(ctx context.Context) error {
		return arb.Drain(ctx, cfg.Debounce/4, nil, func(ctx context.Context, c arbitrator.Candidate) {
			if _, err := a.Engine.OnUserTurn(ctx, c.Sender, c.Text); err != nil {
				log.Warn().Err(err).Str("user", c.Sender).Msg("turn failed")
			}
		})
	})
	if hub != nil {
		jm.Start("hub", func(ctx context.Context) error {
			return serveHub(ctx, cfg.HubAddr, hub, log)
		})
	}

	a.Engine.Welcome(ctx, cfg.CLIUser)

	lines := make(chan string)
	go readLines(os.Stdin, lines)

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("shutting down")
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if line == "/quit" {
				finishSpeaking(a)
				return
			}
			if con.command(line) {
				continue
			}
			arb.Add(cfg.CLIUser, line, a.Engine.TierScore(cfg.CLIUser), time.Now())
		}
	}
}

// finishSpeaking lets the current line play out before exit.
func finishSpeaking(a *app.App) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = a.Voice.Wait(ctx)
}

func readLines(f *os.File, out chan<- string) {
	defer close(out)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			out <- line
		}
	}
}

// console answers local slash commands.
type console struct {
	app  *app.App
	jobs *jobmgr.Manager
	user string
	tick time.Duration
}

func (c *console) wake() error {
	return c.jobs.Start("engagement", func(ctx context.Context) error {
		return c.app.Engine.Run(ctx, c.tick)
	})
}

// command runs line if it is a slash command and reports whether it was one.
func (c *console) command(line string) bool {
	e := c.app.Engine
	switch line {
	case "/status":
		s := e.Life()
		rel := e.Relationship(c.user)
		fmt.Printf("[%s @ %s] mood=%.0f energy=%.0f item=%q | %s (%.1f)\n",
			s.Activity, s.Location, s.Mood, s.Energy, s.HeldItem, rel.Tier().Name, rel.Affection)
	case "/history":
		for _, u := range e.History(c.user) {
			fmt.Printf("%s %s: %s\n", u.At.Format(time.Kitchen), u.Role, u.Text)
		}
	case "/users":
		users, err := c.app.Store.Users()
		if err != nil {
			fmt.Println("users:", err)
			break
		}
		for _, id := range users {
			rel := e.Relationship(id)
			fmt.Printf("%-20s %-20s %.1f\n", id, rel.Tier().Name, rel.Affection)
		}
	case "/forget":
		if err := e.Forget(c.user); err != nil {
			fmt.Println("forget:", err)
		}
	case "/jobs":
		fmt.Println(strings.Join(c.jobs.List(), " "))
	case "/quiet":
		if err := c.jobs.Stop("engagement"); err != nil {
			fmt.Println("quiet:", err)
		}
	case "/wake":
		if err := c.wake(); err != nil {
			fmt.Println("wake:", err)
		}
	default:
		return false
	}
	return true
}

func serveHub(ctx context.Context, addr string, hub *speech.Hub, log zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/ws", hub)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("speech hub listening")
		errCh <- srv.ListenAndServe()
	}()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
