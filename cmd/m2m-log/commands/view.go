// Package commands implements the m2m-log subcommands.
package commands

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mash-protocol/m2m-client/pkg/log"
)

// Selection narrows the events a command looks at. Direction is not part
// of log.Filter, so it is applied here.
type Selection struct {
	log.Filter
	Direction *log.Direction
}

// each calls fn for every selected event in the log at path.
func each(path string, sel Selection, fn func(log.Event) error) error {
	reader, err := log.NewFilteredReader(path, sel.Filter)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	for {
		event, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		if sel.Direction != nil && event.Direction != *sel.Direction {
			continue
		}
		if err := fn(event); err != nil {
			return err
		}
	}
}

// RunView prints the selected events in human-readable form.
func RunView(path string, sel Selection, w io.Writer) error {
	return each(path, sel, func(e log.Event) error {
		formatEvent(w, e)
		return nil
	})
}

func formatEvent(w io.Writer, event log.Event) {
	ts := event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z")
	fmt.Fprintf(w, "%s [conn:%s] %-3s %s %s", ts, shortID(event.ConnectionID),
		event.Direction, event.Layer, eventType(event))
	if event.Endpoint != "" {
		fmt.Fprintf(w, " ep=%s", event.Endpoint)
	}
	fmt.Fprintln(w)

	switch {
	case event.Frame != nil:
		f := event.Frame
		fmt.Fprintf(w, "  Size: %d bytes\n", f.Size)
		if len(f.Data) > 0 {
			fmt.Fprintf(w, "  Data: %s", hex.EncodeToString(f.Data))
			if f.Truncated {
				fmt.Fprint(w, " (truncated)")
			}
			fmt.Fprintln(w)
		}
	case event.Message != nil:
		m := event.Message
		fmt.Fprintf(w, "  MessageID: %d\n", m.MessageID)
		if m.Path != "" {
			fmt.Fprintf(w, "  Path: %s\n", m.Path)
		}
		if m.Status != nil {
			fmt.Fprintf(w, "  Status: %s (%d)\n", m.Status, *m.Status)
		}
		if m.RoundTrip != nil {
			fmt.Fprintf(w, "  Duration: %s\n", formatDuration(*m.RoundTrip))
		}
		if m.PayloadSize > 0 {
			fmt.Fprintf(w, "  Payload: %d bytes\n", m.PayloadSize)
		}
	case event.StateChange != nil:
		sc := event.StateChange
		fmt.Fprintf(w, "  Entity: %s\n", sc.Entity)
		if sc.OldState != "" {
			fmt.Fprintf(w, "  %s -> %s\n", sc.OldState, sc.NewState)
		} else {
			fmt.Fprintf(w, "  -> %s\n", sc.NewState)
		}
		if sc.Reason != "" {
			fmt.Fprintf(w, "  Reason: %s\n", sc.Reason)
		}
	case event.Block != nil:
		b := event.Block
		fmt.Fprintf(w, "  Resource: %s block %d (%d of %d bytes) %s", b.ResourceID, b.Index, b.Length, b.TotalSize, b.Outcome)
		if b.Last {
			fmt.Fprint(w, " last")
		}
		fmt.Fprintln(w)
	case event.Error != nil:
		e := event.Error
		fmt.Fprintf(w, "  Layer: %s\n", e.Layer)
		fmt.Fprintf(w, "  Message: %s\n", e.Message)
		if e.Code != nil {
			fmt.Fprintf(w, "  Code: %d\n", *e.Code)
		}
		if e.Context != "" {
			fmt.Fprintf(w, "  Context: %s\n", e.Context)
		}
	}
	fmt.Fprintln(w)
}

// eventType labels an event by its payload.
func eventType(e log.Event) string {
	switch {
	case e.Frame != nil:
		return "Frame"
	case e.Message != nil:
		if e.Message.Response {
			return e.Message.Operation.String() + " response"
		}
		return e.Message.Operation.String()
	case e.StateChange != nil:
		return "State"
	case e.Block != nil:
		return "Block"
	case e.Error != nil:
		return "Error"
	default:
		return "Unknown"
	}
}

func shortID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return fmt.Sprintf("%.3fus", float64(d.Nanoseconds())/1000)
	case d < time.Second:
		return fmt.Sprintf("%.3fms", float64(d.Microseconds())/1000)
	default:
		return fmt.Sprintf("%.3fs", d.Seconds())
	}
}

// ParseLayer parses a layer name (case-insensitive).
func ParseLayer(s string) (log.Layer, error) {
	switch strings.ToLower(s) {
	case "transport":
		return log.LayerTransport, nil
	case "wire":
		return log.LayerWire, nil
	case "session":
		return log.LayerSession, nil
	case "block":
		return log.LayerBlock, nil
	default:
		return 0, fmt.Errorf("invalid layer: %s (must be transport, wire, session or block)", s)
	}
}

// ParseDirection parses "in" or "out".
func ParseDirection(s string) (log.Direction, error) {
	switch strings.ToLower(s) {
	case "in":
		return log.DirectionIn, nil
	case "out":
		return log.DirectionOut, nil
	default:
		return 0, fmt.Errorf("invalid direction: %s (must be in or out)", s)
	}
}

// ParseCategory parses a category name (case-insensitive).
func ParseCategory(s string) (log.Category, error) {
	switch strings.ToLower(s) {
	case "message":
		return log.CategoryMessage, nil
	case "state":
		return log.CategoryState, nil
	case "block":
		return log.CategoryBlock, nil
	case "error":
		return log.CategoryError, nil
	default:
		return 0, fmt.Errorf("invalid category: %s (must be message, state, block or error)", s)
	}
}
