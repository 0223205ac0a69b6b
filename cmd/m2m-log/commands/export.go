package commands

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/mash-protocol/m2m-client/pkg/log"
)

// RunExport writes the selected events of the log at path as jsonl or csv
// to output, or to stdout when output is empty.
func RunExport(path, format, output string, sel Selection) error {
	var w io.Writer = os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}
	return Export(path, format, w, sel)
}

// Export writes the selected events to w.
func Export(path, format string, w io.Writer, sel Selection) error {
	switch format {
	case "jsonl":
		enc := json.NewEncoder(w)
		return each(path, sel, func(e log.Event) error {
			if err := enc.Encode(e); err != nil {
				return fmt.Errorf("failed to encode event: %w", err)
			}
			return nil
		})

	case "csv":
		cw := csv.NewWriter(w)
		header := []string{"timestamp", "session_id", "connection_id", "endpoint", "direction", "layer", "category", "type", "message_id", "path"}
		if err := cw.Write(header); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
		err := each(path, sel, func(e log.Event) error {
			msgID, resPath := "", ""
			if e.Message != nil {
				msgID = strconv.FormatUint(uint64(e.Message.MessageID), 10)
				resPath = e.Message.Path
			}
			if e.Block != nil {
				resPath = e.Block.ResourceID
			}
			row := []string{
				e.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z"),
				e.SessionID,
				e.ConnectionID,
				e.Endpoint,
				e.Direction.String(),
				e.Layer.String(),
				e.Category.String(),
				eventType(e),
				msgID,
				resPath,
			}
			if err := cw.Write(row); err != nil {
				return fmt.Errorf("failed to write row: %w", err)
			}
			return nil
		})
		cw.Flush()
		if err != nil {
			return err
		}
		return cw.Error()

	default:
		return fmt.Errorf("unknown format: %s (supported: jsonl, csv)", format)
	}
}
