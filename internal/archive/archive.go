package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"team-arena/internal/session"
)

// Repository mirrors finished sessions and settlement ledger entries into
// Postgres for long-term analysis. All methods are nil-safe so a missing
// DATABASE_URL simply disables archiving.
type Repository struct {
	db *sql.DB
}

func NewRepository(databaseURL string) (*Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// SaveSession upserts a finished session, keyed by the session id so replays
// of the same terminal event stay idempotent.
func (r *Repository) SaveSession(ctx context.Context, sess *session.Session) error {
	if r == nil || r.db == nil || sess == nil {
		return nil
	}

	var stateRaw []byte
	var pgn string
	switch sess.Variant {
	case session.VariantDuel:
		stateRaw, _ = json.Marshal(sess.Duel)
	case session.VariantChess:
		stateRaw, _ = json.Marshal(sess.Chess)
		pgn = buildPGN(sess)
	case session.VariantTicTacToe:
		stateRaw, _ = json.Marshal(sess.TTT)
	}

	duration := sess.Updated.Sub(sess.Created).Milliseconds()
	if duration < 0 {
		duration = 0
	}

	q := `INSERT INTO arena_sessions (
	    session_id, variant, challenger_id, opponent_id,
	    stake, status, winner_id, state, pgn,
	    started_at, ended_at, duration_ms
	  ) VALUES (
	    $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
	  ) ON CONFLICT (session_id) DO UPDATE SET
	    variant=EXCLUDED.variant,
	    challenger_id=EXCLUDED.challenger_id,
	    opponent_id=EXCLUDED.opponent_id,
	    stake=EXCLUDED.stake,
	    status=EXCLUDED.status,
	    winner_id=EXCLUDED.winner_id,
	    state=EXCLUDED.state,
	    pgn=EXCLUDED.pgn,
	    started_at=EXCLUDED.started_at,
	    ended_at=EXCLUDED.ended_at,
	    duration_ms=EXCLUDED.duration_ms`

	_, err := r.db.ExecContext(ctx, q,
		sess.ID, string(sess.Variant),
		sess.Challenger, sess.Opponent,
		sess.Stake, string(sess.Status), sess.Winner,
		string(stateRaw), pgn,
		sess.Created, sess.Updated, duration,
	)
	return err
}

// SaveSettlement appends one ledger row per settlement attempt.
func (r *Repository) SaveSettlement(ctx context.Context, sessionID string, variant session.Variant, winnerID, loserID string, stake int, state string) error {
	if r == nil || r.db == nil {
		return nil
	}
	q := `INSERT INTO arena_settlements (
	    session_id, variant, winner_id, loser_id, stake, state, recorded_at
	  ) VALUES ($1,$2,$3,$4,$5,$6,$7)`
	_, err := r.db.ExecContext(ctx, q,
		sessionID, string(variant), winnerID, loserID, stake, state, time.Now().UTC(),
	)
	return err
}

func buildPGN(sess *session.Session) string {
	if sess.Chess == nil {
		return ""
	}
	var b strings.Builder
	date := sess.Updated
	if date.IsZero() {
		date = time.Now()
	}
	b.WriteString("[Event \"TeamArena\"]\n")
	b.WriteString(fmt.Sprintf("[Date \"%04d.%02d.%02d\"]\n", date.Year(), int(date.Month()), date.Day()))
	b.WriteString(fmt.Sprintf("[White \"%s\"]\n", sanitizePGN(sess.Challenger)))
	b.WriteString(fmt.Sprintf("[Black \"%s\"]\n", sanitizePGN(sess.Opponent)))
	result := pgnResult(sess)
	b.WriteString(fmt.Sprintf("[Result \"%s\"]\n\n", result))
	if movetext := strings.TrimSpace(sess.Chess.PGN); movetext != "" {
		b.WriteString(movetext)
		b.WriteString(" ")
	}
	b.WriteString(result)
	return b.String()
}

func pgnResult(sess *session.Session) string {
	if sess.Status != session.StatusCompleted {
		return "*"
	}
	switch sess.Winner {
	case sess.Challenger:
		return "1-0"
	case sess.Opponent:
		return "0-1"
	default:
		return "1/2-1/2"
	}
}

func sanitizePGN(s string) string {
	s = strings.ReplaceAll(s, "\\", " ")
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.TrimSpace(s)
}
