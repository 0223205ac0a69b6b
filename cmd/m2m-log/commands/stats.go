package commands

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/mash-protocol/m2m-client/pkg/log"
)

// Stats holds aggregate statistics about a log file.
type Stats struct {
	TotalEvents       int
	EventsByLayer     map[log.Layer]int
	EventsByCategory  map[log.Category]int
	EventsByDirection map[log.Direction]int
	Sessions          map[string]*SessionStats
	BlockOutcomes     map[log.BlockOutcome]int
	Errors            int
	Start, End        time.Time
}

// SessionStats holds statistics for one registration session.
type SessionStats struct {
	Endpoint  string
	FirstSeen time.Time
	LastSeen  time.Time
	Events    int
	Requests  int
	LastState string
}

// Collect reads the log at path into Stats.
func Collect(path string) (*Stats, error) {
	stats := &Stats{
		EventsByLayer:     make(map[log.Layer]int),
		EventsByCategory:  make(map[log.Category]int),
		EventsByDirection: make(map[log.Direction]int),
		Sessions:          make(map[string]*SessionStats),
		BlockOutcomes:     make(map[log.BlockOutcome]int),
	}

	err := each(path, Selection{}, func(event log.Event) error {
		stats.TotalEvents++
		stats.EventsByLayer[event.Layer]++
		stats.EventsByCategory[event.Category]++
		stats.EventsByDirection[event.Direction]++

		if stats.Start.IsZero() || event.Timestamp.Before(stats.Start) {
			stats.Start = event.Timestamp
		}
		if event.Timestamp.After(stats.End) {
			stats.End = event.Timestamp
		}

		if event.SessionID != "" {
			s, ok := stats.Sessions[event.SessionID]
			if !ok {
				s = &SessionStats{FirstSeen: event.Timestamp, LastSeen: event.Timestamp}
				stats.Sessions[event.SessionID] = s
			}
			s.Events++
			if event.Timestamp.After(s.LastSeen) {
				s.LastSeen = event.Timestamp
			}
			if s.Endpoint == "" {
				s.Endpoint = event.Endpoint
			}
			if event.Message != nil && !event.Message.Response {
				s.Requests++
			}
			if sc := event.StateChange; sc != nil && sc.Entity == log.StateEntitySession {
				s.LastState = sc.NewState
			}
		}

		if event.Block != nil {
			stats.BlockOutcomes[event.Block.Outcome]++
		}
		if event.Error != nil {
			stats.Errors++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// RunStats prints statistics about the log at path.
func RunStats(path string, w io.Writer) error {
	stats, err := Collect(path)
	if err != nil {
		return err
	}
	printStats(w, stats)
	return nil
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintln(w, "=== Protocol Log Statistics ===")
	fmt.Fprintln(w)

	if stats.TotalEvents > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n", stats.Start.Format(time.RFC3339), stats.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n", stats.End.Sub(stats.Start).Round(time.Second))
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "Total Events: %d\n\n", stats.TotalEvents)

	fmt.Fprintln(w, "Events by Layer:")
	for _, l := range []log.Layer{log.LayerTransport, log.LayerWire, log.LayerSession, log.LayerBlock} {
		if n := stats.EventsByLayer[l]; n > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", l.String()+":", n)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Category:")
	for _, c := range []log.Category{log.CategoryMessage, log.CategoryState, log.CategoryBlock, log.CategoryError} {
		if n := stats.EventsByCategory[c]; n > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", c.String()+":", n)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Direction:")
	for _, d := range []log.Direction{log.DirectionIn, log.DirectionOut} {
		if n := stats.EventsByDirection[d]; n > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", d.String()+":", n)
		}
	}

	if len(stats.BlockOutcomes) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Blocks:")
		for _, o := range []log.BlockOutcome{log.BlockAccepted, log.BlockCompleted, log.BlockRejected, log.BlockServed} {
			if n := stats.BlockOutcomes[o]; n > 0 {
				fmt.Fprintf(w, "  %-12s %d\n", o.String()+":", n)
			}
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Sessions: %d\n", len(stats.Sessions))
	ids := make([]string, 0, len(stats.Sessions))
	for id := range stats.Sessions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return stats.Sessions[ids[i]].FirstSeen.Before(stats.Sessions[ids[j]].FirstSeen)
	})
	for _, id := range ids {
		s := stats.Sessions[id]
		fmt.Fprintf(w, "  [%s] %s: %d events, %d requests, duration %s",
			shortID(id), s.Endpoint, s.Events, s.Requests, s.LastSeen.Sub(s.FirstSeen).Round(time.Millisecond))
		if s.LastState != "" {
			fmt.Fprintf(w, ", last state %s", s.LastState)
		}
		fmt.Fprintln(w)
	}

	if stats.Errors > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Errors: %d\n", stats.Errors)
	}
}
