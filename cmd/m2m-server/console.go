package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/mash-protocol/m2m-client/pkg/persistence"
)

// directory is the server surface the console drives.
type directory interface {
	Registrations() []persistence.RegistrationRecord
	Online(endpoint string) bool
	LastValue(endpoint, path string) ([]byte, bool)
	Read(ctx context.Context, endpoint, path string) ([]byte, error)
	ReadBlocks(ctx context.Context, endpoint, path string, blockSize int) ([]byte, error)
	Write(ctx context.Context, endpoint, path string, value []byte) error
	WriteBlocks(ctx context.Context, endpoint, path string, value []byte, blockSize int) error
	Execute(ctx context.Context, endpoint, path string, args []byte) error
}

const defaultBlockSize = 16

// console is the interactive shell of m2m-server.
type console struct {
	dir     directory
	timeout time.Duration
	rl      *readline.Instance
}

func newConsole(dir directory, timeout time.Duration) (*console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "m2m-server> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &console{dir: dir, timeout: timeout, rl: rl}, nil
}

func (c *console) Stdout() io.Writer { return c.rl.Stdout() }

func (c *console) run(ctx context.Context, quit func()) {
	defer c.rl.Close()
	c.help(c.rl.Stdout())

	stop := context.AfterFunc(ctx, func() { c.rl.Close() })
	defer stop()

	for ctx.Err() == nil {
		line, err := c.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			quit()
			return
		}
		if c.exec(ctx, line, c.rl.Stdout()) {
			quit()
			return
		}
	}
}

// exec runs one command and reports whether it asked to quit.
func (c *console) exec(ctx context.Context, line string, w io.Writer) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return false
	}
	cmd, args := strings.ToLower(parts[0]), parts[1:]

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	switch cmd {
	case "help", "?":
		c.help(w)

	case "list", "ls":
		c.list(w)

	case "read", "r":
		if len(args) != 2 {
			fmt.Fprintln(w, "Usage: read <endpoint> <path>")
			return false
		}
		v, err := c.dir.Read(ctx, args[0], args[1])
		report(w, err, func() { fmt.Fprintf(w, "%s = %q\n", args[1], v) })

	case "readblocks":
		if len(args) < 2 || len(args) > 3 {
			fmt.Fprintln(w, "Usage: readblocks <endpoint> <path> [block-size]")
			return false
		}
		size, ok := blockSize(w, args[2:])
		if !ok {
			return false
		}
		v, err := c.dir.ReadBlocks(ctx, args[0], args[1], size)
		report(w, err, func() { fmt.Fprintf(w, "%s = %q (%d bytes)\n", args[1], v, len(v)) })

	case "write", "w":
		if len(args) < 3 {
			fmt.Fprintln(w, "Usage: write <endpoint> <path> <value>")
			return false
		}
		err := c.dir.Write(ctx, args[0], args[1], []byte(strings.Join(args[2:], " ")))
		report(w, err, func() { fmt.Fprintln(w, "OK") })

	case "writeblocks":
		if len(args) < 4 {
			fmt.Fprintln(w, "Usage: writeblocks <endpoint> <path> <block-size> <value>")
			return false
		}
		size, ok := blockSize(w, args[2:3])
		if !ok {
			return false
		}
		value := []byte(strings.Join(args[3:], " "))
		err := c.dir.WriteBlocks(ctx, args[0], args[1], value, size)
		report(w, err, func() { fmt.Fprintf(w, "OK (%d bytes)\n", len(value)) })

	case "execute", "exec", "x":
		if len(args) < 2 {
			fmt.Fprintln(w, "Usage: execute <endpoint> <path> [args]")
			return false
		}
		err := c.dir.Execute(ctx, args[0], args[1], []byte(strings.Join(args[2:], " ")))
		report(w, err, func() { fmt.Fprintln(w, "OK") })

	case "quit", "exit", "q":
		return true

	default:
		fmt.Fprintf(w, "Unknown command: %s (type 'help')\n", cmd)
	}
	return false
}

func (c *console) list(w io.Writer) {
	regs := c.dir.Registrations()
	if len(regs) == 0 {
		fmt.Fprintln(w, "No registrations")
		return
	}
	for _, r := range regs {
		state := "offline"
		if c.dir.Online(r.Endpoint) {
			state = "online"
		}
		fmt.Fprintf(w, "%-20s %-8s %-7s lifetime=%ds objects=%s\n",
			r.Endpoint, r.Location, state, r.Lifetime, strings.Join(r.Objects, ","))
		if v, ok := c.dir.LastValue(r.Endpoint, "/Test/0/D"); ok {
			fmt.Fprintf(w, "  /Test/0/D = %q\n", v)
		}
	}
}

func (c *console) help(w io.Writer) {
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  list                                        Show registrations")
	fmt.Fprintln(w, "  read <ep> <path>                            Read a resource")
	fmt.Fprintln(w, "  readblocks <ep> <path> [size]               Read a resource block-wise")
	fmt.Fprintln(w, "  write <ep> <path> <value>                   Write a resource")
	fmt.Fprintln(w, "  writeblocks <ep> <path> <size> <value>      Write a resource block-wise")
	fmt.Fprintln(w, "  execute <ep> <path> [args]                  Execute a resource")
	fmt.Fprintln(w, "  quit                                        Shut down")
}

func blockSize(w io.Writer, args []string) (int, bool) {
	if len(args) == 0 {
		return defaultBlockSize, true
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n <= 0 {
		fmt.Fprintf(w, "Invalid block size: %s\n", args[0])
		return 0, false
	}
	return n, true
}

func report(w io.Writer, err error, ok func()) {
	if err != nil {
		fmt.Fprintf(w, "Error: %v\n", err)
		return
	}
	ok()
}
