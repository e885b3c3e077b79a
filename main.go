package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/term"

	appLogger "github.com/FACorreiaa/gearguard/app/logger"
	"github.com/FACorreiaa/gearguard/app/tracer"
	"github.com/FACorreiaa/gearguard/config"
	"github.com/FACorreiaa/gearguard/internal/container"
)

const (
	exitOK       = 0
	exitFailure  = 1
	exitUsage    = 2
	closeTimeout = 5 * time.Second
)

func main() {
	// Use standard log until slog is configured, in case godotenv fails
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Println("Warning: error loading .env file:", err)
	}

	cfg, err := config.InitConfig()
	if err != nil {
		log.Fatalf("FATAL: Error initializing config: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app := newCLI(&cfg, os.Stdin, os.Stdout, os.Stderr)
	code := app.run(ctx, os.Args[1:])
	cancel()
	os.Exit(code)
}

// cli carries the process streams and configuration shared by every command.
type cli struct {
	cfg    *config.Config
	stdin  io.Reader
	in     *bufio.Reader
	stdout io.Writer
	stderr io.Writer
	logger *slog.Logger
}

func newCLI(cfg *config.Config, stdin io.Reader, stdout, stderr io.Writer) *cli {
	return &cli{
		cfg:    cfg,
		stdin:  stdin,
		in:     bufio.NewReader(stdin),
		stdout: stdout,
		stderr: stderr,
		logger: appLogger.Discard(),
	}
}

type command struct {
	name    string
	summary string
	needsDB bool
	run     func(ctx context.Context, c *cli, deps *container.Container, args []string) int
}

var commands = []command{
	{name: "policy", summary: "Print the active password policy as JSON", run: policyCmd},
	{name: "score", summary: "Rate the strength of a password read from stdin", run: scoreCmd},
	{name: "generate", summary: "Generate random passwords", run: generateCmd},
	{name: "validate", summary: "Check a password against the policy", run: validateCmd},
	{name: "breach", summary: "Look a password up in the breach database", run: breachCmd},
	{name: "register", summary: "Create a user and their profile", needsDB: true, run: registerCmd},
	{name: "sync-profiles", summary: "Create or repair profiles for every user", needsDB: true, run: syncProfilesCmd},
}

// run executes the CLI and returns an exit code.
func (c *cli) run(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("gearguard", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	verbose := fs.Bool("v", false, "Write application logs to stderr")
	stats := fs.Bool("stats", false, "Print metrics to stderr in Prometheus text format after the command")
	fs.Usage = func() { c.printUsage(c.stderr) }

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	if fs.NArg() == 0 {
		c.printUsage(c.stderr)
		return exitUsage
	}

	name := fs.Arg(0)
	if name == "help" {
		c.printUsage(c.stdout)
		return exitOK
	}
	cmd, ok := lookupCommand(name)
	if !ok {
		fmt.Fprintf(c.stderr, "Unknown command: %s\n", name)
		fmt.Fprintln(c.stderr, "Run 'gearguard help' for usage.")
		return exitUsage
	}

	if *verbose {
		c.logger = appLogger.New(c.cfg.Mode, c.stderr)
	}
	slog.SetDefault(c.logger)

	deps, err := container.NewContainer(ctx, c.cfg, c.logger)
	if err != nil {
		fmt.Fprintf(c.stderr, "Error: %v\n", err)
		return exitFailure
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
		defer cancel()
		if err := deps.Close(closeCtx); err != nil {
			c.logger.Warn("Failed to release resources", slog.Any("error", err))
		}
	}()

	if cmd.needsDB {
		if err := deps.OpenDatabase(ctx); err != nil {
			fmt.Fprintf(c.stderr, "Error: %v\n", err)
			return exitFailure
		}
	}

	code := cmd.run(ctx, c, deps, fs.Args()[1:])

	if *stats {
		c.printStats(deps.Telemetry)
	}
	return code
}

func lookupCommand(name string) (command, bool) {
	for _, cmd := range commands {
		if cmd.name == name {
			return cmd, true
		}
	}
	return command{}, false
}

func (c *cli) printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: gearguard [-v] [-stats] <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	for _, cmd := range commands {
		fmt.Fprintf(w, "  %-14s %s\n", cmd.name, cmd.summary)
	}
	fmt.Fprintf(w, "  %-14s %s\n", "help", "Show this message")
}

func (c *cli) printStats(t *tracer.Telemetry) {
	if err := t.WritePrometheus(c.stderr); err != nil {
		fmt.Fprintf(c.stderr, "Error collecting metrics: %v\n", err)
	}
}

// readSecret reads one secret. On a terminal it prompts and disables echo;
// otherwise it takes the next line of stdin so passwords can be piped in.
func (c *cli) readSecret(prompt string) (string, error) {
	if f, ok := c.stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(c.stderr, prompt)
		pw, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(c.stderr)
		if err != nil {
			return "", fmt.Errorf("error reading password: %w", err)
		}
		return string(pw), nil
	}

	line, err := c.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		if errors.Is(err, io.EOF) {
			return "", errors.New("no password on stdin")
		}
		return "", fmt.Errorf("error reading password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
