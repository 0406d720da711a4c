package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/amirbrooks/quicktask/internal/assist"
	"github.com/amirbrooks/quicktask/internal/config"
	"github.com/amirbrooks/quicktask/internal/logging"
	"github.com/amirbrooks/quicktask/internal/store"
)

// Exit codes
const (
	ExitOK           = 0
	ExitUsage        = 2
	ExitNotFound     = 3
	ExitConflict     = 4
	ExitPrecondition = 5
	ExitInternal     = 10
)

type GlobalFlags struct {
	Root       string
	JSON       bool
	StdoutJSON bool
	ExportDir  string
	Plain      bool
	Format     string
	Quiet      bool
	Verbose    bool
}

// usageError marks bad invocations so they map to ExitUsage.
type usageError struct{ err error }

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

func usagef(format string, args ...any) error {
	return &usageError{err: fmt.Errorf(format, args...)}
}

func withUsage(fn cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := fn(cmd, args); err != nil {
			return &usageError{err: err}
		}
		return nil
	}
}

// app is the per-invocation state shared by every command.
type app struct {
	gf     GlobalFlags
	out    io.Writer
	errOut io.Writer

	cfg     *config.Manager
	log     *zap.Logger
	backend store.Backend
	store   *store.Store
}

func Run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return run(ctx, args, os.Stdout, os.Stderr)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := &app{out: stdout, errOut: stderr, log: zap.NewNop()}
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	cmd, err := root.ExecuteContextC(ctx)
	if cerr := a.close(); cerr != nil && err == nil {
		err = cerr
	}
	if err == nil {
		return ExitOK
	}
	code := exitCode(err)
	name := "quicktask"
	if cmd != nil && cmd != root {
		name = cmd.Name()
	}
	fmt.Fprintf(stderr, "%s: %v\n", name, err)
	if code == ExitUsage && cmd != nil {
		fmt.Fprintf(stderr, "Usage: %s\n", cmd.UseLine())
	}
	return code
}

func exitCode(err error) int {
	var ue *usageError
	switch {
	case err == nil:
		return ExitOK
	case errors.As(err, &ue):
		return ExitUsage
	case errors.Is(err, store.ErrNotFound):
		return ExitNotFound
	case errors.Is(err, store.ErrConflict):
		return ExitConflict
	case errors.Is(err, assist.ErrNoCredential):
		return ExitPrecondition
	case errors.Is(err, store.ErrInvalid), errors.Is(err, config.ErrInvalid):
		return ExitUsage
	case strings.HasPrefix(err.Error(), "unknown command"), strings.HasPrefix(err.Error(), "unknown flag"):
		return ExitUsage
	default:
		return ExitInternal
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "quicktask",
		Short: "Keyboard-driven task list with natural-language input and AI assist",
		Long: `quicktask keeps a short, ordered task list.

Type tasks the way you would say them ("Call John at 2pm urgent"); due labels,
times and priority are picked out of the text. Run without arguments to open
the terminal UI.`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runUI(cmd.Context())
		},
	}
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &usageError{err: err}
	})

	pf := root.PersistentFlags()
	pf.StringVar(&a.gf.Root, "root", "", "Data directory (default: $QUICKTASK_ROOT or ~/.quicktask)")
	pf.BoolVar(&a.gf.JSON, "json", false, "Write JSON output to <root>/exports")
	pf.BoolVar(&a.gf.StdoutJSON, "stdout-json", false, "With --json, print JSON to stdout instead")
	pf.StringVar(&a.gf.ExportDir, "export-dir", "", "Override export directory (default: <root>/exports)")
	pf.BoolVar(&a.gf.Plain, "plain", false, "TSV output")
	pf.StringVar(&a.gf.Format, "format", "", "Output format for lists (telegram)")
	pf.BoolVar(&a.gf.Quiet, "quiet", false, "Suppress confirmations")
	pf.BoolVar(&a.gf.Verbose, "verbose", false, "Debug logging, also to stderr")

	root.AddCommand(
		newUICmd(a),
		newAddCmd(a),
		newListCmd(a),
		newShowCmd(a),
		newDoneCmd(a),
		newArchiveCmd(a),
		newSubtaskCmd(a),
		newMoveCmd(a),
		newBreakdownCmd(a),
		newSortCmd(a),
		newParseCmd(a),
		newKeyCmd(a),
		newConfigCmd(a),
		newExportCmd(a),
	)
	return root
}

// setup resolves the root directory, loads config and builds the logger. The
// store is opened lazily by the commands that need it.
func (a *app) setup(cmd *cobra.Command) error {
	if a.gf.StdoutJSON && !a.gf.JSON {
		return usagef("--stdout-json requires --json")
	}
	if a.gf.Format != "" && !isKnownFormat(a.gf.Format) {
		return usagef("unknown format %q (use telegram)", a.gf.Format)
	}
	a.gf.Root = config.ResolveRoot(a.gf.Root)
	if a.gf.ExportDir == "" {
		a.gf.ExportDir = filepath.Join(a.gf.Root, "exports")
	}

	cfg, err := config.Load(a.gf.Root)
	if err != nil {
		return err
	}
	a.cfg = cfg

	level := cfg.Config().LogLevel
	if a.gf.Verbose {
		level = "debug"
	}
	logger, err := logging.New(logging.Options{Root: a.gf.Root, Level: level, Stderr: a.gf.Verbose})
	if err != nil {
		return err
	}
	a.log = logger.With(zap.String("cmd", cmd.Name()))
	return nil
}

func (a *app) openStore() (*store.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	cfg := a.cfg.Config()
	var (
		backend store.Backend
		err     error
	)
	switch cfg.Backend {
	case config.BackendSQL:
		backend, err = store.NewSQLiteBackend(filepath.Join(a.gf.Root, "quicktask.db"))
	default:
		backend, err = store.NewFileBackend(a.gf.Root)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s backend: %w", cfg.Backend, err)
	}
	st, err := store.Open(backend, store.Options{ArchiveDelay: cfg.ArchiveDelay, Logger: a.log})
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	a.backend = backend
	a.store = st
	return st, nil
}

func (a *app) newAssist(st *store.Store) (*assist.Client, error) {
	cfg := a.cfg.Config()
	return assist.New(assist.Options{
		Credentials: a.cfg,
		Generator:   assist.NewGeminiGenerator(cfg.Model, cfg.BaseURL),
		Store:       st,
		Logger:      a.log,
		Delays:      assist.Backoff(cfg.RetryBase),
	})
}

func (a *app) close() error {
	var err error
	if a.store != nil {
		err = a.store.Close()
		a.store = nil
	}
	if a.log != nil {
		_ = a.log.Sync()
	}
	return err
}

// emit writes payload as JSON when --json is set and otherwise runs human.
func (a *app) emit(base string, payload any, human func() error) error {
	if !a.gf.JSON {
		return human()
	}
	if a.gf.StdoutJSON {
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(payload)
	}
	path, err := writeJSONExport(a.gf, base, payload)
	if err != nil {
		return err
	}
	a.info("Wrote JSON to: %s", path)
	return nil
}

// info prints a confirmation unless --quiet is set.
func (a *app) info(format string, args ...any) {
	if a.gf.Quiet {
		return
	}
	fmt.Fprintf(a.out, format+"\n", args...)
}

func writeJSONExport(gf GlobalFlags, base string, payload any) (string, error) {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", err
	}
	return writeExportFile(gf.ExportDir, base, "json", data)
}

func writeNDJSONExport(gf GlobalFlags, base string, items []any) (string, error) {
	var b strings.Builder
	for _, item := range items {
		line, err := json.Marshal(item)
		if err != nil {
			return "", err
		}
		b.Write(line)
		b.WriteByte('\n')
	}
	return writeExportFile(gf.ExportDir, base, "ndjson", []byte(b.String()))
}

func writeExportFile(dir, base, ext string, data []byte) (string, error) {
	if strings.TrimSpace(dir) == "" {
		return "", errors.New("export directory is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	t := time.Now().UTC()
	ts := t.Format("20060102-150405")
	name := fmt.Sprintf("%s-%s.%s", base, ts, ext)
	path := filepath.Join(dir, name)
	for i := 1; ; i++ {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			break
		}
		name = fmt.Sprintf("%s-%s-%d.%s", base, ts, i, ext)
		path = filepath.Join(dir, name)
	}
	tmp := filepath.Join(dir, fmt.Sprintf(".tmp-%d", time.Now().UTC().UnixNano()))
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		_ = os.Remove(tmp)
		return "", err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", err
	}
	return path, nil
}
