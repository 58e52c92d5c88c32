package settings

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := OpenStore(filepath.Join(t.TempDir(), "gazecursor.db"))
	if err != nil {
		t.Fatalf("OpenStore failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestOpenStore_Memory(t *testing.T) {
	st, err := OpenStore(":memory:")
	if err != nil {
		t.Fatalf("OpenStore failed: %v", err)
	}
	defer st.Close()

	var name string
	err = st.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='settings'").Scan(&name)
	if err != nil {
		t.Fatalf("settings table not created: %v", err)
	}
}

func TestStore_LoadEmptyReturnsDefaults(t *testing.T) {
	st := openTestStore(t)

	s, found, err := st.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if found {
		t.Fatalf("expected empty store")
	}
	if s != Default() {
		t.Fatalf("expected defaults, got %+v", s)
	}
}

func TestStore_SaveThenLoad(t *testing.T) {
	st := openTestStore(t)

	want := New(WithFixationDuration(800), WithPreset(PresetStability), WithCursorOffset(-10, 22.5))
	if err := st.Save(want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, found, err := st.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !found {
		t.Fatalf("expected stored settings")
	}
	if got != want {
		t.Fatalf("mismatch:\n got  %+v\n want %+v", got, want)
	}

	// Overwrite keeps one row per key.
	if err := st.Save(want.With(WithAOIRadius(60))); err != nil {
		t.Fatalf("second Save: %v", err)
	}
	var n int
	if err := st.db.QueryRow("SELECT COUNT(*) FROM settings").Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != len(Keys()) {
		t.Fatalf("expected %d rows, got %d", len(Keys()), n)
	}
}

func TestStore_SaveRejectsInvalid(t *testing.T) {
	st := openTestStore(t)
	if err := st.Save(New(WithAOIRadius(0))); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestStore_SetDefaults(t *testing.T) {
	st := openTestStore(t)

	if err := st.Save(New(WithClickEnabled(false))); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := st.SetDefaults(); err != nil {
		t.Fatalf("SetDefaults: %v", err)
	}
	got, found, err := st.Load()
	if err != nil || !found {
		t.Fatalf("Load: found=%v err=%v", found, err)
	}
	if got != Default() {
		t.Fatalf("expected defaults after reset, got %+v", got)
	}
}

func TestStore_Calibrations(t *testing.T) {
	st := openTestStore(t)

	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	first, err := st.RecordCalibration(CalibrationRecord{SessionID: "s1", Accepted: true, OffsetX: 3, OffsetY: -4, CreatedAt: t0})
	if err != nil {
		t.Fatalf("RecordCalibration: %v", err)
	}
	if first.ID == "" {
		t.Fatalf("expected generated id")
	}
	if _, err := st.RecordCalibration(CalibrationRecord{SessionID: "s1", Accepted: false, OffsetX: 900, Reason: "offset out of range", CreatedAt: t0.Add(time.Minute)}); err != nil {
		t.Fatalf("RecordCalibration: %v", err)
	}

	recs, err := st.Calibrations(10)
	if err != nil {
		t.Fatalf("Calibrations: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	if recs[0].Accepted || recs[0].Reason != "offset out of range" {
		t.Errorf("expected newest (rejected) record first, got %+v", recs[0])
	}

	last, ok, err := st.LastAcceptedCalibration()
	if err != nil || !ok {
		t.Fatalf("LastAcceptedCalibration: ok=%v err=%v", ok, err)
	}
	if last.ID != first.ID || last.OffsetX != 3 || last.OffsetY != -4 {
		t.Fatalf("unexpected last accepted: %+v", last)
	}
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")

	st, err := OpenStore(path)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	want := New(WithEdgeTrigger(2000))
	if err := st.Save(want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	st.Close()

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected db file: %v", err)
	}

	st2, err := OpenStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st2.Close()

	got, found, err := st2.Load()
	if err != nil || !found || got != want {
		t.Fatalf("reopened store: found=%v err=%v got=%+v", found, err, got)
	}
}
