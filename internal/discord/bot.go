package discord

import (
	"context"
	"fmt"
	"strings"
	"time"

	"living-persona/internal/arbitrator"
	"living-persona/internal/mind"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
)

// Bot feeds channel messages to the persona and lets her talk back through
// a Sink.
type Bot struct {
	dg        *discordgo.Session
	engine    *mind.Engine
	arb       *arbitrator.Arbitrator
	sink      *Sink
	channelID string
	debounce  time.Duration
	log       zerolog.Logger
}

// NewSession creates a bot session without opening it.
func NewSession(token string) (*discordgo.Session, error) {
	if token == "" {
		return nil, fmt.Errorf("discord token is not set")
	}
	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentsMessageContent
	return dg, nil
}

// NewBot listens on channelID, or on any channel where the bot is
// mentioned when channelID is empty.
func NewBot(dg *discordgo.Session, engine *mind.Engine, sink *Sink, channelID string, debounce time.Duration, log zerolog.Logger) *Bot {
	log = log.With().Str("component", "discord").Logger()
	return &Bot{
		dg:        dg,
		engine:    engine,
		arb:       arbitrator.New(debounce, log),
		sink:      sink,
		channelID: channelID,
		debounce:  debounce,
		log:       log,
	}
}

// Run opens the session and serves turns until ctx is done.
func (b *Bot) Run(ctx context.Context) error {
	b.dg.AddHandler(b.onReady)
	b.dg.AddHandler(b.onMessageCreate)
	if err := b.dg.Open(); err != nil {
		return fmt.Errorf("failed to open Discord session: %w", err)
	}
	defer b.dg.Close()

	err := b.arb.Drain(ctx, b.debounce/4, nil, b.handle)
	b.log.Info().Msg("shutdown signal received, cleaning up")
	return err
}

func (b *Bot) handle(ctx context.Context, c arbitrator.Candidate) {
	res, err := b.engine.OnUserTurn(ctx, c.Sender, c.Text)
	if err != nil {
		b.log.Warn().Err(err).Str("user", c.Sender).Msg("turn failed")
		return
	}
	b.log.Debug().
		Str("user", c.Sender).
		Int("fragments", c.Fragments).
		Str("tier", res.NewTier.Name).
		Bool("fallback", res.Fallback).
		Msg("turn handled")
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	b.log.Info().Str("user", r.User.Username).Int("guilds", len(r.Guilds)).Msg("discord bot is running")
}

func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || (s.State.User != nil && m.Author.ID == s.State.User.ID) {
		return
	}
	text, ok := b.addressed(s, m)
	if !ok {
		return
	}
	if b.channelID == "" {
		b.sink.SetChannel(m.ChannelID)
	}
	b.arb.Add(m.Author.ID, text, b.engine.TierScore(m.Author.ID), time.Now())
}

// addressed returns the message text with bot mentions removed, and whether
// the message is meant for the persona.
func (b *Bot) addressed(s *discordgo.Session, m *discordgo.MessageCreate) (string, bool) {
	var self string
	if s.State.User != nil {
		self = s.State.User.ID
	}
	mentioned := false
	for _, u := range m.Mentions {
		if u.ID == self {
			mentioned = true
			break
		}
	}
	if b.channelID != "" && m.ChannelID != b.channelID {
		return "", false
	}
	if b.channelID == "" && !mentioned && m.GuildID != "" {
		return "", false
	}
	return stripMention(m.Content, self), true
}

func stripMention(text, selfID string) string {
	if selfID != "" {
		text = strings.ReplaceAll(text, "<@"+selfID+">", "")
		text = strings.ReplaceAll(text, "<@!"+selfID+">", "")
	}
	return strings.TrimSpace(text)
}
