// Command healthctl talks to a running server: it lists and calls tools,
// replays webhook bodies, exports recent days to Excel and hashes API tokens
// for MCP_API_TOKEN_BCRYPT.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/sakif/garmin-mcp/internal/auth"
	"github.com/sakif/garmin-mcp/internal/client"
	"github.com/sakif/garmin-mcp/internal/export"
)

const usage = `healthctl: command-line client for the Garmin health server.

Usage:
  healthctl <command> [flags]

Commands:
  tools                             list the tool catalog
  call <name> [--arg key=value]...  invoke a tool and print the result
  ingest <file|->                   post a webhook body (JSON object or array)
  export --user ID [--days N]       write recent days to an .xlsx file
  hash-token <token>                print a bcrypt hash for MCP_API_TOKEN_BCRYPT

Common flags:
  --server URL    server base URL (env HEALTHCTL_SERVER, default http://localhost:8080)
  --token TOKEN   bearer token (env MCP_API_TOKEN)
  --timeout DUR   request timeout (default 10s)
`

var errUsage = errors.New("usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprint(os.Stderr, usage)
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type connection struct {
	server  string
	token   string
	timeout time.Duration
}

func (c *connection) addFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.server, "server", envOr("HEALTHCTL_SERVER", "http://localhost:8080"), "server base URL")
	fs.StringVar(&c.token, "token", os.Getenv("MCP_API_TOKEN"), "bearer token")
	fs.DurationVar(&c.timeout, "timeout", 10*time.Second, "request timeout")
}

func (c *connection) newClient() *client.Client {
	return client.New(c.server, c.token, c.timeout)
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, args := args[0], args[1:]

	var conn connection
	fs := pflag.NewFlagSet("healthctl "+cmd, pflag.ContinueOnError)
	fs.SetOutput(io.Discard)

	switch cmd {
	case "tools":
		conn.addFlags(fs)
		if err := fs.Parse(args); err != nil {
			return err
		}
		tools, err := conn.newClient().ListTools(ctx)
		if err != nil {
			return err
		}
		return printJSON(stdout, tools)

	case "call":
		conn.addFlags(fs)
		pairs := fs.StringArray("arg", nil, "tool argument as key=value (repeatable)")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if fs.NArg() != 1 {
			return fmt.Errorf("call takes exactly one tool name: %w", errUsage)
		}
		toolArgs, err := parseArgs(*pairs)
		if err != nil {
			return err
		}
		res, err := conn.newClient().Call(ctx, fs.Arg(0), toolArgs)
		if err != nil {
			return err
		}
		return printJSON(stdout, res)

	case "ingest":
		conn.addFlags(fs)
		secret := fs.String("secret", os.Getenv("GARMIN_WEBHOOK_SECRET"), "webhook signing secret")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if fs.NArg() != 1 {
			return fmt.Errorf("ingest takes one file or '-': %w", errUsage)
		}
		body, err := readInput(fs.Arg(0), stdin)
		if err != nil {
			return err
		}
		if err := conn.newClient().Ingest(ctx, body, *secret); err != nil {
			return err
		}
		fmt.Fprintln(stdout, "ok")
		return nil

	case "export":
		conn.addFlags(fs)
		user := fs.String("user", "", "user id")
		days := fs.Int("days", 7, "number of most recent days")
		out := fs.StringP("out", "o", "health.xlsx", "output file")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if *user == "" {
			return fmt.Errorf("export requires --user: %w", errUsage)
		}
		recs, err := conn.newClient().RecentDays(ctx, *user, *days)
		if err != nil {
			return err
		}
		f, err := os.Create(*out)
		if err != nil {
			return err
		}
		if err := export.WriteXLSX(f, recs); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "wrote %d days to %s\n", len(recs), *out)
		return nil

	case "hash-token":
		cost := fs.Int("cost", auth.DefaultCost, "bcrypt cost")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if fs.NArg() != 1 {
			return fmt.Errorf("hash-token takes one token: %w", errUsage)
		}
		hash, err := auth.HashToken(fs.Arg(0), *cost)
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, hash)
		return nil

	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return nil
	}
	return fmt.Errorf("unknown command %q: %w", cmd, errUsage)
}

// stringArgs are always sent verbatim, so "007" stays "007".
var stringArgs = map[string]bool{
	"user_id": true,
	"date":    true,
}

// parseArgs turns key=value pairs into tool arguments. Values that parse as
// numbers or booleans are sent as such, unless the key is in stringArgs or the
// number would not print back the same; everything else is a string.
func parseArgs(pairs []string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("argument %q is not key=value", pair)
		}
		if stringArgs[key] {
			out[key] = value
			continue
		}
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			if strconv.FormatInt(n, 10) == value {
				out[key] = n
			} else {
				out[key] = value
			}
			continue
		}
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			out[key] = f
			continue
		}
		if b, err := strconv.ParseBool(value); err == nil {
			out[key] = b
			continue
		}
		out[key] = value
	}
	return out, nil
}

func readInput(name string, stdin io.Reader) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(name)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
