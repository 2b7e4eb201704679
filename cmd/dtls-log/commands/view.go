// Package commands implements the dtls-log CLI commands.
package commands

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pion/dtls/v2/pkg/protocol"
	"github.com/pion/dtls/v2/pkg/protocol/alert"
	"github.com/pkg/errors"

	"github.com/Marz6759/goldy/pkg/log"
	"github.com/Marz6759/goldy/pkg/wire"
)

// formatEvent writes a human-readable representation of the event to w.
func formatEvent(w io.Writer, event log.Event) {
	// Header line: timestamp [conn:id] DIRECTION LAYER Type
	ts := event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z")
	fmt.Fprintf(w, "%s [conn:%s] %-3s %s %s\n",
		ts, shortenConnID(event.ConnectionID), event.Direction, event.Layer, typeLabel(event))

	switch {
	case event.Frame != nil:
		formatFrameDetails(w, event.Frame)
	case event.Record != nil:
		formatRecordDetails(w, event.Record)
	case event.Handshake != nil:
		formatHandshakeDetails(w, event.Handshake)
	case event.StateChange != nil:
		formatStateChangeDetails(w, event.StateChange)
	case event.Alert != nil:
		formatAlertDetails(w, event.Alert)
	case event.Timer != nil:
		formatTimerDetails(w, event.Timer)
	case event.Error != nil:
		formatErrorDetails(w, event.Error)
	}

	fmt.Fprintln(w)
}

// typeLabel names the payload carried by event.
func typeLabel(event log.Event) string {
	switch {
	case event.Frame != nil:
		return "Frame"
	case event.Record != nil:
		return wire.ContentTypeName(protocol.ContentType(event.Record.ContentType))
	case event.Handshake != nil:
		return event.Handshake.Name
	case event.StateChange != nil:
		return "State"
	case event.Alert != nil:
		return "Alert"
	case event.Timer != nil:
		return "Timer"
	case event.Error != nil:
		return "Error"
	default:
		return "Unknown"
	}
}

// shortenConnID returns the first 8 characters of the connection ID.
func shortenConnID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}

func formatFrameDetails(w io.Writer, frame *log.FrameEvent) {
	fmt.Fprintf(w, "  Size: %d bytes\n", frame.Size)
	if len(frame.Data) > 0 {
		fmt.Fprintf(w, "  Data: %s", hex.EncodeToString(frame.Data))
		if frame.Truncated {
			fmt.Fprint(w, " (truncated)")
		}
		fmt.Fprintln(w)
	}
}

func formatRecordDetails(w io.Writer, rec *log.RecordEvent) {
	fmt.Fprintf(w, "  Epoch: %d  Seq: %d  Length: %d\n", rec.Epoch, rec.Seq, rec.Length)
	if rec.Dropped != "" {
		fmt.Fprintf(w, "  Dropped: %s\n", rec.Dropped)
	}
}

func formatHandshakeDetails(w io.Writer, hs *log.HandshakeEvent) {
	fmt.Fprintf(w, "  MessageSeq: %d\n", hs.MessageSeq)
	if hs.Retransmit {
		fmt.Fprintln(w, "  Retransmit: yes")
	}
}

func formatStateChangeDetails(w io.Writer, sc *log.StateChangeEvent) {
	if sc.OldState != "" {
		fmt.Fprintf(w, "  %s -> %s\n", sc.OldState, sc.NewState)
	} else {
		fmt.Fprintf(w, "  -> %s\n", sc.NewState)
	}
	if sc.Reason != "" {
		fmt.Fprintf(w, "  Reason: %s\n", sc.Reason)
	}
}

func formatAlertDetails(w io.Writer, a *log.AlertEvent) {
	level := "warning"
	if alert.Level(a.Level) == alert.Fatal {
		level = "fatal"
	}
	name := a.Name
	if name == "" {
		name = wire.AlertName(alert.Description(a.Description))
	}
	fmt.Fprintf(w, "  %s: %s\n", level, name)
}

func formatTimerDetails(w io.Writer, tm *log.TimerEvent) {
	fmt.Fprintf(w, "  Deadline: %s\n", tm.Kind)
	if tm.Attempt > 0 {
		fmt.Fprintf(w, "  Attempt: %d\n", tm.Attempt)
	}
	if tm.Next > 0 {
		fmt.Fprintf(w, "  Next: %s\n", formatDuration(tm.Next))
	}
}

func formatErrorDetails(w io.Writer, err *log.ErrorEventData) {
	fmt.Fprintf(w, "  Layer: %s\n", err.Layer)
	fmt.Fprintf(w, "  Message: %s\n", err.Message)
	if err.Code != nil {
		fmt.Fprintf(w, "  Code: %d\n", *err.Code)
	}
	if err.Context != "" {
		fmt.Fprintf(w, "  Context: %s\n", err.Context)
	}
}

// formatDuration formats a duration for display.
func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%.3fus", float64(d.Nanoseconds())/1000)
	}
	if d < time.Second {
		return fmt.Sprintf("%.3fms", float64(d.Microseconds())/1000)
	}
	return fmt.Sprintf("%.3fs", d.Seconds())
}

// parseLayer parses a layer name (case-insensitive).
func parseLayer(s string) (log.Layer, error) {
	switch strings.ToLower(s) {
	case "transport":
		return log.LayerTransport, nil
	case "record":
		return log.LayerRecord, nil
	case "handshake":
		return log.LayerHandshake, nil
	case "session":
		return log.LayerSession, nil
	default:
		return 0, errors.Errorf("invalid layer: %s (must be transport, record, handshake, or session)", s)
	}
}

// parseDirection parses a direction name (case-insensitive).
func parseDirection(s string) (log.Direction, error) {
	switch strings.ToLower(s) {
	case "in":
		return log.DirectionIn, nil
	case "out":
		return log.DirectionOut, nil
	default:
		return 0, errors.Errorf("invalid direction: %s (must be in or out)", s)
	}
}

// parseCategory parses a category name (case-insensitive).
func parseCategory(s string) (log.Category, error) {
	switch strings.ToLower(s) {
	case "message":
		return log.CategoryMessage, nil
	case "alert":
		return log.CategoryAlert, nil
	case "state":
		return log.CategoryState, nil
	case "error":
		return log.CategoryError, nil
	case "timer":
		return log.CategoryTimer, nil
	default:
		return 0, errors.Errorf("invalid category: %s (must be message, alert, state, error, or timer)", s)
	}
}

// RunView prints every event of the log file matching filter.
func RunView(path string, filter log.Filter, output io.Writer) error {
	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return errors.Wrap(err, "failed to open log file")
	}
	defer reader.Close()

	for {
		event, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "failed to read event")
		}
		formatEvent(output, event)
	}
}
