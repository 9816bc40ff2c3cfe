package mind

import (
	"time"

	"github.com/rs/zerolog"
)

// logOracleCall records one oracle round trip with short previews.
func logOracleCall(log zerolog.Logger, req OracleRequest, p Proposal, took time.Duration, err error) {
	ev := log.Debug()
	if err != nil {
		ev = log.Warn().Err(err)
	}
	ev.Str("kind", string(req.Kind)).
		Str("user", req.UserID).
		Str("activity", req.Life.Activity).
		Str("tier", req.Tier.Name).
		Int("history", len(req.History)).
		Str("text", truncateForLog(req.UserText, 120)).
		Str("reply", truncateForLog(p.Reply, 200)).
		Str("next_activity", p.Activity).
		Dur("took", took).
		Msg("oracle")
}

func truncateForLog(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
