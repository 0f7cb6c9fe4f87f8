package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/l3aro/codeflow/internal/config"
	"github.com/l3aro/codeflow/internal/log"
	"github.com/l3aro/codeflow/internal/watcher"
	"github.com/l3aro/codeflow/pkg/client"
	"github.com/l3aro/codeflow/pkg/lang"
	"github.com/l3aro/codeflow/pkg/render"
)

// graphCmd represents the graph command
var graphCmd = &cobra.Command{
	Use:   "graph <file>",
	Short: "Render the flowchart of one function",
	Long: `Builds the flowchart of a function in a Python or TypeScript/JavaScript file.

The target is chosen by --func (bound or qualified name such as Shape.area),
by --offset or by --line/--col. Without any of them the first function in
the file is used.

Examples:
  cflow graph app.py --func classify
  cflow graph src/cart.ts --line 42 --format json
  cflow graph app.py --func main --watch --out main.mmd`,
	Args: cobra.ExactArgs(1),
	RunE: runGraph,
}

type graphRun struct {
	path   string
	lang   string
	params client.GraphParams
	line   int
	col    int
	format render.Format
	ropts  render.Options
	out    string
	router *client.Router
	logger log.Logger
}

func runGraph(cmd *cobra.Command, args []string) error {
	conf, _, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger := newLogger(cmd, conf)

	path := args[0]
	l, ok := lang.ForFile(path)
	if !ok {
		return fmt.Errorf("unsupported file type: %s (supported: .py, .ts, .tsx, .js, .jsx and variants)", path)
	}

	r := &graphRun{path: path, lang: l.Name(), logger: logger}
	r.params.FunctionName, _ = cmd.Flags().GetString("func")
	if cmd.Flags().Changed("offset") {
		off, _ := cmd.Flags().GetInt("offset")
		r.params.Position = &off
	}
	r.line, _ = cmd.Flags().GetInt("line")
	r.col, _ = cmd.Flags().GetInt("col")

	formatName := conf.Format
	if cmd.Flags().Changed("format") {
		formatName, _ = cmd.Flags().GetString("format")
	}
	if r.format, err = render.ParseFormat(formatName); err != nil {
		return err
	}
	r.ropts.Direction = conf.Direction
	if cmd.Flags().Changed("direction") {
		r.ropts.Direction, _ = cmd.Flags().GetString("direction")
	}
	r.ropts.NoStyle, _ = cmd.Flags().GetBool("no-style")
	r.out, _ = cmd.Flags().GetString("out")

	useDaemon, _ := cmd.Flags().GetBool("daemon")
	r.router = newRouter(conf, useDaemon, logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := r.render(ctx); err != nil {
		return err
	}

	if watch, _ := cmd.Flags().GetBool("watch"); watch {
		return r.watch(ctx)
	}
	return nil
}

// newRouter builds a router that uses a running daemon when asked to and
// builds in-process otherwise.
func newRouter(conf *config.Config, useDaemon bool, logger log.Logger) *client.Router {
	c := client.New(client.WithSocketPath(conf.SocketPath))
	local := client.NewExecutor(conf.BuildOptions(), conf.MaxFunctionBytes)
	if useDaemon {
		return client.NewRouter(c, local, client.WithAutoDetect(), client.WithLogger(logger))
	}
	return client.NewRouter(c, local, client.WithoutDaemon(), client.WithLogger(logger))
}

func (r *graphRun) render(ctx context.Context) error {
	src, err := os.ReadFile(r.path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", r.path, err)
	}

	params := r.params
	params.Source = string(src)
	params.Language = r.lang
	if params.Position == nil && r.line > 0 {
		col := r.col
		if col < 1 {
			col = 1
		}
		off, err := lang.Offset(src, r.line, col)
		if err != nil {
			return err
		}
		params.Position = &off
	}

	g, err := r.router.Graph(ctx, params)
	if err != nil {
		return err
	}

	var w io.Writer = os.Stdout
	if r.out != "" {
		f, err := os.Create(r.out)
		if err != nil {
			return fmt.Errorf("creating %s: %w", r.out, err)
		}
		defer f.Close()
		w = f
	}
	return render.Write(w, g, r.format, r.ropts)
}

func (r *graphRun) watch(ctx context.Context) error {
	w, err := watcher.New([]string{r.path}, watcher.DefaultDebounce)
	if err != nil {
		return err
	}
	defer w.Close()

	events, err := w.Start(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Watching %s (Ctrl+C to stop)\n", r.path)

	for ev := range events {
		r.logger.Debug("file changed", "path", ev.Path)
		if err := r.render(ctx); err != nil {
			r.logger.Error("render failed", "err", err)
			continue
		}
		fmt.Fprintf(os.Stderr, "Updated %s\n", ev.Time.Format(time.TimeOnly))
	}
	return nil
}

func init() {
	graphCmd.Flags().StringP("func", "f", "", "Function name (e.g. classify or Shape.area)")
	graphCmd.Flags().Int("offset", 0, "Byte offset inside the target function")
	graphCmd.Flags().Int("line", 0, "1-based line inside the target function")
	graphCmd.Flags().Int("col", 1, "1-based column, used with --line")
	graphCmd.Flags().String("format", "", "Output format: mermaid, dot, json or text (default from config)")
	graphCmd.Flags().String("direction", "", "Layout direction: TD, LR, BT or RL (default from config)")
	graphCmd.Flags().Bool("no-style", false, "Omit Mermaid class styling")
	graphCmd.Flags().StringP("out", "o", "", "Write to file instead of stdout")
	graphCmd.Flags().Bool("daemon", false, "Use a running daemon, falling back to in-process builds")
	graphCmd.Flags().BoolP("watch", "w", false, "Re-render whenever the file changes")
	RootCmd.AddCommand(graphCmd)
}
