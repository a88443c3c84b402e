package database

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nao1215/headscrape/internal/model"
)

// setupTestArchive creates a temporary archive for testing.
func setupTestArchive(t *testing.T) *Archive {
	t.Helper()

	a, err := Open(t.TempDir(), DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open archive: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func success(target, family string, at time.Time) model.ScrapeResult {
	r := model.NewSuccess(target, map[string]string{
		"family_name": family,
		"region":      "EU",
	}, 1)
	r.Layer = "direct"
	r.StartedAt = at
	r.FinishedAt = at.Add(time.Second)
	return r
}

func TestOpen(t *testing.T) {
	t.Parallel()

	t.Run("creates database in new directory", func(t *testing.T) {
		t.Parallel()

		dbDir := filepath.Join(t.TempDir(), "newdir", "subdir")
		a, err := Open(dbDir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open archive: %v", err)
		}
		defer a.Close()

		if _, err := os.Stat(filepath.Join(dbDir, FileName)); err != nil {
			t.Errorf("database file was not created: %v", err)
		}
		if a.Path() != filepath.Join(dbDir, FileName) {
			t.Errorf("Path() = %q", a.Path())
		}
	})

	t.Run("CreateIfNotExists=false fails for missing database", func(t *testing.T) {
		t.Parallel()

		_, err := Open(filepath.Join(t.TempDir(), "missing"), Options{})
		if !errors.Is(err, ErrArchiveMissing) {
			t.Fatalf("expected ErrArchiveMissing, got %v", err)
		}
	})

	t.Run("reopens existing database", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		a, err := Open(dir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open archive: %v", err)
		}
		if _, err := a.SaveRun(context.Background(), time.Now(), time.Now(), nil); err != nil {
			t.Fatalf("SaveRun: %v", err)
		}
		_ = a.Close()

		b, err := Open(dir, Options{EnableWAL: true})
		if err != nil {
			t.Fatalf("failed to reopen archive: %v", err)
		}
		defer b.Close()

		runs, err := b.Runs(context.Background(), 0)
		if err != nil {
			t.Fatalf("Runs: %v", err)
		}
		if len(runs) != 1 {
			t.Errorf("expected 1 run, got %d", len(runs))
		}
	})
}

func TestDigest(t *testing.T) {
	t.Parallel()

	a := Digest(map[string]string{"a": "1", "b": "2"})
	b := Digest(map[string]string{"b": "2", "a": "1"})
	if a != b {
		t.Error("digest depends on map order")
	}
	if len(a) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(a))
	}
	if a == Digest(map[string]string{"a": "1", "b": "3"}) {
		t.Error("expected different digest for different values")
	}
	// Key/value boundaries are part of the digest.
	if Digest(map[string]string{"ab": "c"}) == Digest(map[string]string{"a": "bc"}) {
		t.Error("expected boundary-sensitive digest")
	}
	if Digest(nil) != "" || Digest(map[string]string{}) != "" {
		t.Error("expected empty digest for no fields")
	}
}

func TestSaveRunAndHistory(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	a := setupTestArchive(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	target := "https://example.com/profile?id=1"

	failure := model.NewFailure(target, model.KindTimeout, 9, errors.New("navigation timeout"))
	failure.Layer = "tor"

	batches := [][]model.ScrapeResult{
		{success(target, "Stormborn", base), success("https://example.com/other", "Other", base)},
		{failure},
		{success(target, "Stormborn", base.Add(2*time.Hour))},
		{success(target, "Stormborne", base.Add(3*time.Hour))},
	}

	var runIDs []string
	for i, batch := range batches {
		start := base.Add(time.Duration(i) * time.Hour)
		id, err := a.SaveRun(ctx, start, start.Add(time.Minute), batch)
		if err != nil {
			t.Fatalf("SaveRun #%d: %v", i, err)
		}
		if id == "" {
			t.Fatal("expected run ID")
		}
		runIDs = append(runIDs, id)
	}

	history, err := a.History(ctx, target, 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(history))
	}

	newest := history[0]
	if newest.RunID != runIDs[3] {
		t.Errorf("expected newest entry first")
	}
	if newest.Fields["family_name"] != "Stormborne" {
		t.Errorf("fields = %v", newest.Fields)
	}
	if !newest.Changed() {
		t.Error("expected renamed profile to be reported as changed")
	}

	unchanged := history[1]
	if unchanged.Changed() {
		t.Error("expected identical profile to be unchanged")
	}
	if unchanged.PreviousDigest != history[3].Digest {
		t.Error("expected previous digest to skip the failed run")
	}

	failed := history[2]
	if failed.Status != model.StatusFailure || failed.Reason != "timeout" || failed.Attempts != 9 {
		t.Errorf("unexpected failure entry: %+v", failed)
	}
	if failed.Message != "navigation timeout" || failed.Layer != "tor" {
		t.Errorf("unexpected failure entry: %+v", failed)
	}
	if failed.Digest != "" || failed.Changed() {
		t.Error("failures carry no digest")
	}

	first := history[3]
	if first.PreviousDigest != "" || first.Changed() {
		t.Error("first success has nothing to compare with")
	}
	if !first.StartedAt.Equal(base) {
		t.Errorf("StartedAt = %v, want %v", first.StartedAt, base)
	}

	limited, err := a.History(ctx, target, 2)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(limited) != 2 || limited[0].RunID != runIDs[3] {
		t.Errorf("limit not applied to newest entries: %+v", limited)
	}
}

func TestLatestAndTargets(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	a := setupTestArchive(t)
	now := time.Now()

	if _, err := a.Latest(ctx, "https://nowhere.example"); !IsNotFound(err) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	results := []model.ScrapeResult{
		success("https://b.example/p", "B", now),
		success("https://a.example/p", "A", now),
	}
	if _, err := a.SaveRun(ctx, now, now, results); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	latest, err := a.Latest(ctx, "https://a.example/p")
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if latest.Fields["family_name"] != "A" {
		t.Errorf("unexpected latest entry: %+v", latest)
	}

	targets, err := a.Targets(ctx)
	if err != nil {
		t.Fatalf("Targets: %v", err)
	}
	if len(targets) != 2 || targets[0] != "https://a.example/p" || targets[1] != "https://b.example/p" {
		t.Errorf("Targets() = %v", targets)
	}
}

func TestRuns(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	a := setupTestArchive(t)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	failure := model.NewFailure("https://x.example", model.KindBadStatus, 1, nil)
	for i := range 3 {
		start := base.Add(time.Duration(i) * time.Hour)
		batch := []model.ScrapeResult{success("https://x.example", "X", start), failure}
		if _, err := a.SaveRun(ctx, start, start.Add(time.Minute), batch); err != nil {
			t.Fatalf("SaveRun: %v", err)
		}
	}

	runs, err := a.Runs(ctx, 2)
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if !runs[0].StartedAt.Equal(base.Add(2 * time.Hour)) {
		t.Errorf("expected newest run first, got %v", runs[0].StartedAt)
	}
	if runs[0].Total != 2 || runs[0].Succeeded != 1 || runs[0].Failed != 1 {
		t.Errorf("unexpected counts: %+v", runs[0])
	}
}

func TestParseTimestamp(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  time.Time
	}{
		{"", time.Time{}},
		{"garbage", time.Time{}},
		{"2026-03-01T12:00:00Z", time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		{"2026-03-01T12:00:00.5Z", time.Date(2026, 3, 1, 12, 0, 0, 5e8, time.UTC)},
		{"2026-03-01 12:00:00", time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		if got := parseTimestamp(tt.input); !got.Equal(tt.want) {
			t.Errorf("parseTimestamp(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}
