// Package interactive provides the interactive console of m2m-client.
package interactive

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/chzyer/readline"
)

// Status is a snapshot of the endpoint.
type Status struct {
	Endpoint  string    `json:"endpoint"`
	SessionID string    `json:"sessionId"`
	State     string    `json:"state"`
	Location  string    `json:"location,omitempty"`
	LastError string    `json:"lastError,omitempty"`
	Connected bool      `json:"connected"`
	Objects   []string  `json:"objects"`
	Counter   int64     `json:"counter"`
	Ticks     int       `json:"ticks"`
	Reports   int       `json:"reports"`
	Failures  int       `json:"reportFailures,omitempty"`
	Attempt   int       `json:"attempt"`
	Since     time.Time `json:"since"`
}

// Target is the endpoint the console drives.
type Target interface {
	Status() Status
	Renew(ctx context.Context) error
	Unregister(ctx context.Context) error
	Get(path string) ([]byte, error)
	Set(path string, value []byte) error
	Paths() []string
}

// Console handles interactive mode for m2m-client.
type Console struct {
	target Target
	rl     *readline.Instance
}

// New creates a console reading from the terminal.
func New(target Target) (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "m2m> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &Console{target: target, rl: rl}, nil
}

// Stdout returns a writer that properly coordinates with the readline input.
// Use this for log output to avoid interfering with the command prompt.
func (c *Console) Stdout() io.Writer {
	return c.rl.Stdout()
}

// Close releases the terminal.
func (c *Console) Close() error {
	return c.rl.Close()
}

// Run starts the command loop. quit is called on "quit" or EOF.
func (c *Console) Run(ctx context.Context, quit func()) {
	defer c.rl.Close()

	c.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(c.rl.Stdout(), "Exiting...")
			quit()
			return
		}

		if c.Exec(ctx, line, c.rl.Stdout()) {
			quit()
			return
		}
	}
}

// Exec runs one command line and writes its output to w. It returns true
// when the command asks to quit.
func (c *Console) Exec(ctx context.Context, line string, w io.Writer) bool {
	parts := strings.Fields(strings.TrimSpace(line))
	if len(parts) == 0 {
		return false
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "?":
		c.printHelpTo(w)

	case "status", "s":
		printStatus(w, c.target.Status())

	case "renew":
		if err := c.target.Renew(ctx); err != nil {
			fmt.Fprintf(w, "Renew failed: %v\n", err)
			return false
		}
		fmt.Fprintln(w, "Renewal sent")

	case "unregister":
		if err := c.target.Unregister(ctx); err != nil {
			fmt.Fprintf(w, "Unregister failed: %v\n", err)
			return false
		}
		fmt.Fprintln(w, "Deregistration sent")

	case "get", "g":
		if len(args) != 1 {
			fmt.Fprintln(w, "Usage: get <path>")
			return false
		}
		v, err := c.target.Get(args[0])
		if err != nil {
			fmt.Fprintf(w, "Error: %v\n", err)
			return false
		}
		fmt.Fprintf(w, "%s = %q\n", args[0], v)

	case "set":
		if len(args) < 2 {
			fmt.Fprintln(w, "Usage: set <path> <value>")
			return false
		}
		value := strings.Join(args[1:], " ")
		if err := c.target.Set(args[0], []byte(value)); err != nil {
			fmt.Fprintf(w, "Error: %v\n", err)
			return false
		}
		fmt.Fprintf(w, "%s set\n", args[0])

	case "ls", "resources":
		for _, p := range c.target.Paths() {
			fmt.Fprintln(w, p)
		}

	case "quit", "exit", "q":
		return true

	default:
		fmt.Fprintf(w, "Unknown command: %s (type 'help')\n", cmd)
	}
	return false
}

func printStatus(w io.Writer, s Status) {
	fmt.Fprintf(w, "Endpoint:   %s\n", s.Endpoint)
	fmt.Fprintf(w, "Session:    %s (attempt %d)\n", s.SessionID, s.Attempt)
	fmt.Fprintf(w, "State:      %s\n", s.State)
	if s.Location != "" {
		fmt.Fprintf(w, "Location:   %s\n", s.Location)
	}
	if s.LastError != "" {
		fmt.Fprintf(w, "Last error: %s\n", s.LastError)
	}
	fmt.Fprintf(w, "Connected:  %v\n", s.Connected)
	fmt.Fprintf(w, "Objects:    %s\n", strings.Join(s.Objects, ", "))
	fmt.Fprintf(w, "Counter:    %d (tick %d, %d reports, %d failed)\n", s.Counter, s.Ticks, s.Reports, s.Failures)
}

func (c *Console) printHelp() {
	c.printHelpTo(c.rl.Stdout())
}

func (c *Console) printHelpTo(w io.Writer) {
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  status              Show registration state")
	fmt.Fprintln(w, "  renew               Send a registration update now")
	fmt.Fprintln(w, "  unregister          Deregister and exit")
	fmt.Fprintln(w, "  get <path>          Read a resource, e.g. get /Test/0/D")
	fmt.Fprintln(w, "  set <path> <value>  Set a dynamic resource and notify the server")
	fmt.Fprintln(w, "  ls                  List resources")
	fmt.Fprintln(w, "  quit                Shut down")
}
