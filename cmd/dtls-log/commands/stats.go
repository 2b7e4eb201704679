package commands

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/Marz6759/goldy/pkg/log"
)

// Stats holds aggregate statistics about a log file.
type Stats struct {
	TotalEvents       int
	EventsByLayer     map[log.Layer]int
	EventsByCategory  map[log.Category]int
	EventsByDirection map[log.Direction]int
	Connections       map[string]*ConnectionStats
	Errors            int
	TimeRange         struct {
		Start time.Time
		End   time.Time
	}
}

// ConnectionStats holds statistics for a single session.
type ConnectionStats struct {
	FirstSeen  time.Time
	LastSeen   time.Time
	Events     int
	RemoteAddr string
	ServerName string

	BytesOut      int
	BytesIn       int
	Retransmits   int
	TimerExpiries int
	Dropped       int
	Alerts        int
	FinalState    string
}

// RunStats analyzes the log file and prints statistics.
func RunStats(path string, w io.Writer) error {
	reader, err := log.NewReader(path)
	if err != nil {
		return errors.Wrap(err, "failed to open log file")
	}
	defer reader.Close()

	stats := &Stats{
		EventsByLayer:     make(map[log.Layer]int),
		EventsByCategory:  make(map[log.Category]int),
		EventsByDirection: make(map[log.Direction]int),
		Connections:       make(map[string]*ConnectionStats),
	}

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.Wrap(err, "failed to read event")
		}
		stats.add(event)
	}

	printStats(w, stats)
	return nil
}

func (s *Stats) add(event log.Event) {
	s.TotalEvents++
	s.EventsByLayer[event.Layer]++
	s.EventsByCategory[event.Category]++
	s.EventsByDirection[event.Direction]++

	if s.TimeRange.Start.IsZero() || event.Timestamp.Before(s.TimeRange.Start) {
		s.TimeRange.Start = event.Timestamp
	}
	if event.Timestamp.After(s.TimeRange.End) {
		s.TimeRange.End = event.Timestamp
	}

	conn, ok := s.Connections[event.ConnectionID]
	if !ok {
		conn = &ConnectionStats{FirstSeen: event.Timestamp, LastSeen: event.Timestamp}
		s.Connections[event.ConnectionID] = conn
	}
	conn.Events++
	if event.Timestamp.After(conn.LastSeen) {
		conn.LastSeen = event.Timestamp
	}
	if event.RemoteAddr != "" && conn.RemoteAddr == "" {
		conn.RemoteAddr = event.RemoteAddr
	}
	if event.ServerName != "" && conn.ServerName == "" {
		conn.ServerName = event.ServerName
	}

	switch {
	case event.Frame != nil:
		if event.Direction == log.DirectionOut {
			conn.BytesOut += event.Frame.Size
		} else {
			conn.BytesIn += event.Frame.Size
		}
	case event.Handshake != nil:
		if event.Handshake.Retransmit {
			conn.Retransmits++
		}
	case event.Record != nil:
		if event.Record.Dropped != "" {
			conn.Dropped++
		}
	case event.Timer != nil:
		conn.TimerExpiries++
	case event.Alert != nil:
		conn.Alerts++
	case event.StateChange != nil:
		conn.FinalState = event.StateChange.NewState
	case event.Error != nil:
		s.Errors++
	}
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintln(w, "=== Protocol Log Statistics ===")
	fmt.Fprintln(w)

	if stats.TotalEvents > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n",
			stats.TimeRange.Start.Format(time.RFC3339),
			stats.TimeRange.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n", stats.TimeRange.End.Sub(stats.TimeRange.Start).Round(time.Millisecond))
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Total Events: %d\n", stats.TotalEvents)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Layer:")
	for _, layer := range []log.Layer{log.LayerTransport, log.LayerRecord, log.LayerHandshake, log.LayerSession} {
		if count := stats.EventsByLayer[layer]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", layer.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Category:")
	for _, cat := range []log.Category{log.CategoryMessage, log.CategoryAlert, log.CategoryState, log.CategoryError, log.CategoryTimer} {
		if count := stats.EventsByCategory[cat]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", cat.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Direction:")
	for _, dir := range []log.Direction{log.DirectionIn, log.DirectionOut} {
		if count := stats.EventsByDirection[dir]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", dir.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Sessions: %d\n", len(stats.Connections))
	if len(stats.Connections) > 0 {
		type connInfo struct {
			id    string
			stats *ConnectionStats
		}
		conns := make([]connInfo, 0, len(stats.Connections))
		for id, cs := range stats.Connections {
			conns = append(conns, connInfo{id, cs})
		}
		sort.Slice(conns, func(i, j int) bool {
			return conns[i].stats.FirstSeen.Before(conns[j].stats.FirstSeen)
		})

		fmt.Fprintln(w)
		for _, c := range conns {
			cs := c.stats
			duration := cs.LastSeen.Sub(cs.FirstSeen).Round(time.Millisecond)
			fmt.Fprintf(w, "  [%s] %d events, duration %s\n", shortenConnID(c.id), cs.Events, duration)
			if cs.RemoteAddr != "" {
				fmt.Fprintf(w, "           Remote: %s\n", cs.RemoteAddr)
			}
			if cs.ServerName != "" {
				fmt.Fprintf(w, "           Server name: %s\n", cs.ServerName)
			}
			fmt.Fprintf(w, "           Bytes: %d out, %d in\n", cs.BytesOut, cs.BytesIn)
			if cs.Retransmits > 0 || cs.TimerExpiries > 0 {
				fmt.Fprintf(w, "           Retransmits: %d (timer expiries: %d)\n", cs.Retransmits, cs.TimerExpiries)
			}
			if cs.Dropped > 0 {
				fmt.Fprintf(w, "           Dropped records: %d\n", cs.Dropped)
			}
			if cs.Alerts > 0 {
				fmt.Fprintf(w, "           Alerts: %d\n", cs.Alerts)
			}
			if cs.FinalState != "" {
				fmt.Fprintf(w, "           Final state: %s\n", cs.FinalState)
			}
		}
	}

	if stats.Errors > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Errors: %d\n", stats.Errors)
	}
}
