package commands

import (
	"bytes"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Marz6759/goldy/pkg/log"
)

func readAll(t *testing.T, path string) []log.Event {
	t.Helper()
	r, err := log.NewReader(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer r.Close()
	var events []log.Event
	for {
		e, err := r.Next()
		if err == io.EOF {
			return events
		}
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		events = append(events, e)
	}
}

func TestFilterOptionsBuild(t *testing.T) {
	f, err := FilterOptions{
		ConnID:    testConnID,
		TimeStart: "2026-01-28T10:15:32Z",
		Layer:     "record",
		Direction: "in",
		Category:  "message",
	}.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if f.ConnectionID != testConnID || f.TimeStart == nil || f.TimeEnd != nil {
		t.Errorf("unexpected filter: %+v", f)
	}
	if *f.Layer != log.LayerRecord || *f.Direction != log.DirectionIn || *f.Category != log.CategoryMessage {
		t.Errorf("unexpected filter values: %+v", f)
	}

	bad := []FilterOptions{
		{TimeStart: "yesterday"},
		{TimeEnd: "10:00"},
		{Layer: "service"},
		{Direction: "up"},
		{Category: "control"},
	}
	for _, o := range bad {
		if _, err := o.Build(); err == nil {
			t.Errorf("expected error for %+v", o)
		}
	}
}

func TestRunFilter(t *testing.T) {
	events := sampleEvents()
	events = append(events, log.Event{
		Timestamp: events[0].Timestamp, ConnectionID: "someone-else",
		Layer: log.LayerRecord, Record: &log.RecordEvent{ContentType: 21},
	})
	path := createTestLogFile(t, events)
	out := filepath.Join(t.TempDir(), "filtered.dlog")

	dir := log.DirectionOut
	var buf bytes.Buffer
	if err := RunFilter(path, out, log.Filter{ConnectionID: testConnID, Direction: &dir}, &buf); err != nil {
		t.Fatalf("RunFilter failed: %v", err)
	}
	if !strings.Contains(buf.String(), "Filtered 2 events") {
		t.Errorf("unexpected report: %s", buf.String())
	}

	got := readAll(t, out)
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	for _, e := range got {
		if e.ConnectionID != testConnID || e.Direction != log.DirectionOut {
			t.Errorf("unexpected event kept: %+v", e)
		}
	}
}

func TestRunFilterTimeWindow(t *testing.T) {
	events := sampleEvents()
	path := createTestLogFile(t, events)
	out := filepath.Join(t.TempDir(), "window.dlog")

	start := events[1].Timestamp
	end := events[2].Timestamp.Add(time.Nanosecond)
	if err := RunFilter(path, out, log.Filter{TimeStart: &start, TimeEnd: &end}, io.Discard); err != nil {
		t.Fatalf("RunFilter failed: %v", err)
	}
	if got := readAll(t, out); len(got) != 2 {
		t.Errorf("expected 2 events in window, got %d", len(got))
	}
}
