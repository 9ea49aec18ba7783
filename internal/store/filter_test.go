package store

import "testing"

func TestFilterMatch(t *testing.T) {
	rec := Record{"status": "pending", "stake": float64(10), "opponent": "u2"}

	if !Eq("status", "pending").Match(rec) {
		t.Fatalf("expected Eq match")
	}
	if Eq("status", "completed").Match(rec) {
		t.Fatalf("unexpected Eq match")
	}
	if !Ne("status", "completed").Match(rec) {
		t.Fatalf("expected Ne match")
	}
	if !Eq("stake", 10).Match(rec) {
		t.Fatalf("expected numeric match across int and float64")
	}
	if !In("status", "pending", "accepted").Match(rec) {
		t.Fatalf("expected In match")
	}
	if In("status", "completed", "declined").Match(rec) {
		t.Fatalf("unexpected In match")
	}

	f := And(Eq("opponent", "u2"), Or(Eq("status", "pending"), Eq("status", "accepted")))
	if !f.Match(rec) {
		t.Fatalf("expected composite match")
	}
	if And(Eq("opponent", "u2"), Eq("status", "completed")).Match(rec) {
		t.Fatalf("unexpected composite match")
	}
}

func TestFilterNilSubfilters(t *testing.T) {
	rec := Record{"status": "pending"}
	if !And(nil, Eq("status", "pending")).Match(rec) {
		t.Fatalf("nil sub-filter should be skipped")
	}
	if !And().Match(rec) {
		t.Fatalf("empty And should match everything")
	}
}

func TestFilterEncode(t *testing.T) {
	f := And(Eq("opponent", "u2"), Or(Eq("status", "pending"), Eq("status", "accepted")))
	got := f.Encode()
	want := `(opponent = "u2" && (status = "pending" || status = "accepted"))`
	if got != want {
		t.Fatalf("encode mismatch:\n got %s\nwant %s", got, want)
	}

	if got := Eq("stake", 25).Encode(); got != "stake = 25" {
		t.Fatalf("numeric encode mismatch: %s", got)
	}
	if got := Ne("is_completed", true).Encode(); got != "is_completed != true" {
		t.Fatalf("bool encode mismatch: %s", got)
	}
}
