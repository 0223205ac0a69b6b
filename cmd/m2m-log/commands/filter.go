package commands

import (
	"fmt"
	"time"

	"github.com/mash-protocol/m2m-client/pkg/log"
)

// SelectionOptions are the textual selection flags shared by subcommands.
type SelectionOptions struct {
	SessionID string
	ConnID    string
	Endpoint  string
	Resource  string
	TimeStart string
	TimeEnd   string
	Layer     string
	Direction string
	Category  string
}

// Selection parses the options.
func (o SelectionOptions) Selection() (Selection, error) {
	sel := Selection{Filter: log.Filter{
		SessionID:    o.SessionID,
		ConnectionID: o.ConnID,
		Endpoint:     o.Endpoint,
		ResourceID:   o.Resource,
	}}

	if o.TimeStart != "" {
		t, err := time.Parse(time.RFC3339, o.TimeStart)
		if err != nil {
			return sel, fmt.Errorf("invalid time-start format: %w", err)
		}
		sel.TimeStart = &t
	}
	if o.TimeEnd != "" {
		t, err := time.Parse(time.RFC3339, o.TimeEnd)
		if err != nil {
			return sel, fmt.Errorf("invalid time-end format: %w", err)
		}
		sel.TimeEnd = &t
	}
	if o.Layer != "" {
		l, err := ParseLayer(o.Layer)
		if err != nil {
			return sel, err
		}
		sel.Layer = &l
	}
	if o.Direction != "" {
		d, err := ParseDirection(o.Direction)
		if err != nil {
			return sel, err
		}
		sel.Direction = &d
	}
	if o.Category != "" {
		c, err := ParseCategory(o.Category)
		if err != nil {
			return sel, err
		}
		sel.Category = &c
	}
	return sel, nil
}

// RunFilter copies the selected events of the log at path into output and
// returns how many were written.
func RunFilter(path, output string, sel Selection) (int, error) {
	logger, err := log.NewFileLogger(output)
	if err != nil {
		return 0, fmt.Errorf("failed to create output logger: %w", err)
	}
	defer logger.Close()

	count := 0
	err = each(path, sel, func(e log.Event) error {
		logger.Log(e)
		count++
		return nil
	})
	return count, err
}
