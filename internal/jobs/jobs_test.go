package jobs

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"team-arena/internal/arena"
	"team-arena/internal/obslog"
	"team-arena/internal/store"
)

func TestSweepSettlements(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	restore := obslog.SetForTest(zap.New(core))
	defer restore()

	m := store.NewMemory(nil)
	m.Seed("duels",
		// settled ok: quiet
		store.Record{"id": "ok", "challenger": "u1", "opponent": "u2", "status": "completed", "winner": "u1"},
		// completed with winner but no ledger entry
		store.Record{"id": "missing", "challenger": "u1", "opponent": "u2", "status": "completed", "winner": "u2"},
		// partial ledger entry
		store.Record{"id": "partial", "challenger": "u1", "opponent": "u2", "status": "completed", "winner": "u1"},
		// draw: settles nothing
		store.Record{"id": "draw", "challenger": "u1", "opponent": "u2", "status": "completed", "winner": ""},
		// still in play
		store.Record{"id": "live", "challenger": "u1", "opponent": "u2", "status": "accepted"},
	)
	m.Seed(arena.SettlementCollection,
		store.Record{"id": "s1", "session": "ok", "state": arena.SettlementOK},
		store.Record{"id": "s2", "session": "partial", "state": arena.SettlementPartial},
	)

	r := NewRunner(m, nil, 0)
	r.SweepSettlements(context.Background())

	flagged := map[string]string{}
	for _, entry := range logs.All() {
		for _, f := range entry.Context {
			if f.Key == "session_id" {
				flagged[f.String] = entry.Message
			}
		}
	}
	if len(flagged) != 2 {
		t.Fatalf("flagged = %v, want missing+partial", flagged)
	}
	if flagged["missing"] != "settlement_missing" {
		t.Fatalf("missing session flagged as %q", flagged["missing"])
	}
	if flagged["partial"] != "settlement_incomplete" {
		t.Fatalf("partial session flagged as %q", flagged["partial"])
	}
}
