package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/aristath/toolbelt/internal/config"
	"github.com/aristath/toolbelt/internal/debug"
	"github.com/aristath/toolbelt/internal/toolerr"
)

// skipConfig marks commands that must work with a broken config file.
const skipConfig = "toolbelt/skip-config"

type app struct {
	stdout io.Writer
	stderr io.Writer

	loadConfig func() (*config.ToolbeltConfig, error)

	cfg    *config.ToolbeltConfig
	tracer *debug.Tracer
	logger zerolog.Logger

	// persistent flags
	debugNamespaces string
	debugAll        bool
	depth           int
	verbose         bool
}

func newApp(stdout, stderr io.Writer) *app {
	return &app{
		stdout:     stdout,
		stderr:     stderr,
		loadConfig: config.LoadDefault,
		logger:     zerolog.Nop(),
	}
}

// execute runs the command line and returns the process exit code. Errors
// are rendered to stderr.
func (a *app) execute(ctx context.Context, args []string) int {
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return toolerr.ExitSuccess
	}
	out := toolerr.Renderer{Depth: a.renderDepth(), Color: a.color()}.Render(err)
	if !strings.HasSuffix(out, "\n") {
		out += "\n"
	}
	fmt.Fprint(a.stderr, out)
	return toolerr.GetExitCode(err)
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:               "toolbelt",
		Short:             "Run Salesforce DX workflows as ordered tasks",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.debugNamespaces, "debug", "", "trace namespaces to enable, comma-separated (* for all)")
	pf.BoolVar(&a.debugAll, "debug-all", false, "enable every trace namespace")
	pf.IntVar(&a.depth, "depth", 0, "dump depth for traced objects and rendered errors")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "log debug messages")

	root.AddCommand(a.runCmd(), a.validateCmd(), a.historyCmd(), a.configCmd())
	return root
}

// setup loads configuration, then builds the tracer and logger from it and
// the persistent flags.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	if a.depth < 0 {
		return toolerr.NewValidationError("Expected --depth to be a positive number.", "toolbelt:flags",
			toolerr.ValidationDetail{Argument: "depth", Expected: "a number of at least 1", Received: fmt.Sprint(a.depth)})
	}

	if cmd.Annotations[skipConfig] == "true" {
		a.cfg = config.DefaultConfig()
	} else {
		cfg, err := a.loadConfig()
		if err != nil {
			return toolerr.New("Could not load configuration.", toolerr.NameGeneric, "toolbelt:config",
				toolerr.WithCause(err),
				toolerr.WithActions(fmt.Sprintf("Check %s and %s.", config.GlobalPath(), config.ProjectPath())))
		}
		a.cfg = cfg
	}

	if a.debugAll {
		a.cfg.Debug.All = true
	}
	if a.depth > 0 {
		a.cfg.Debug.Depth = a.depth
	}

	a.tracer = debug.New(a.stderr)
	a.tracer.Init(a.cfg.Debug.Namespaces)
	a.tracer.Init(a.debugNamespaces)
	if a.cfg.Debug.All {
		a.tracer.EnableAll(true)
	}
	a.tracer.SetDepth(a.cfg.Debug.Depth)

	level := zerolog.InfoLevel
	if a.verbose {
		level = zerolog.DebugLevel
	}
	output := zerolog.ConsoleWriter{Out: a.stderr, TimeFormat: time.Stamp, NoColor: !a.color()}
	a.logger = zerolog.New(output).Level(level).With().Timestamp().Logger()
	return nil
}

func (a *app) renderDepth() int {
	switch {
	case a.cfg != nil:
		return a.cfg.Debug.Depth
	case a.depth > 0:
		return a.depth
	default:
		return toolerr.DefaultDepth
	}
}

func (a *app) color() bool {
	if a.cfg == nil {
		return isTerminal(a.stderr)
	}
	return a.cfg.Runner.ForceColor
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
