// Package export writes one rendered flowchart file per function.
package export

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/schollz/progressbar/v3"

	"github.com/l3aro/codeflow/internal/scanner"
	"github.com/l3aro/codeflow/pkg/cfg"
	"github.com/l3aro/codeflow/pkg/flowchart"
	"github.com/l3aro/codeflow/pkg/lang"
	"github.com/l3aro/codeflow/pkg/render"
)

// Options configures an export run.
type Options struct {
	OutDir           string
	Format           render.Format
	Render           render.Options
	Build            cfg.Options
	MaxFunctionBytes int
	// Incremental skips source files whose content is unchanged since the
	// previous export into OutDir.
	Incremental bool
	// Progress receives a progress bar. nil disables it.
	Progress io.Writer
}

// Result summarises an export run.
type Result struct {
	Written []string
	// Skipped counts functions whose graph was only a message.
	Skipped int
	// Unchanged counts source files left alone by an incremental run.
	Unchanged int
	// Failed maps a source path to the error that stopped it.
	Failed map[string]error
}

type job struct {
	file scanner.FileInfo
	src  []byte
	fn   lang.FunctionInfo
}

// Run exports every function in files.
func Run(ctx context.Context, files []scanner.FileInfo, opts Options) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if opts.Format == "" {
		opts.Format = render.FormatMermaid
	}
	if err := os.MkdirAll(opts.OutDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	manifest, err := LoadManifest(opts.OutDir)
	if err != nil {
		return nil, err
	}
	manifest.SetFormat(string(opts.Format))

	result := &Result{Failed: map[string]error{}}
	used := map[string]int{}
	hashes := map[string]string{}
	outputs := map[string][]string{}
	seen := map[string]bool{}

	var jobs []job
	for _, f := range files {
		seen[f.Path] = true
		src, err := os.ReadFile(f.FullPath)
		if err != nil {
			result.Failed[f.Path] = err
			continue
		}
		hash := contentHash(src)
		if opts.Incremental && manifest.Unchanged(f.Path, hash) {
			result.Unchanged++
			for _, name := range manifest.Outputs(f.Path) {
				used[name]++
			}
			continue
		}
		fns, err := flowchart.ListFunctions(ctx, f.Language, src)
		if err != nil {
			result.Failed[f.Path] = err
			continue
		}
		hashes[f.Path] = hash
		outputs[f.Path] = nil
		for _, fn := range fns {
			jobs = append(jobs, job{file: f, src: src, fn: fn})
		}
	}

	bar := newBar(len(jobs), opts.Progress)
	defer bar.Finish()

	for _, j := range jobs {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		bar.Describe(j.fn.Name)

		pos := j.fn.Start
		g := flowchart.Generate(ctx, flowchart.Request{
			Source:           j.src,
			Language:         j.file.Language,
			Position:         &pos,
			Options:          &opts.Build,
			MaxFunctionBytes: opts.MaxFunctionBytes,
		})
		bar.Add(1)
		if g.Degenerate {
			result.Skipped++
			continue
		}

		name := FileName(j.file.Path, j.fn.Name, opts.Format)
		if n := used[name]; n > 0 {
			ext := opts.Format.Extension()
			name = fmt.Sprintf("%s_%d%s", strings.TrimSuffix(name, ext), n+1, ext)
		}
		used[name]++

		out := filepath.Join(opts.OutDir, name)
		if err := writeGraph(out, g, opts); err != nil {
			return result, err
		}
		result.Written = append(result.Written, out)
		outputs[j.file.Path] = append(outputs[j.file.Path], name)
	}

	for source, names := range outputs {
		manifest.Record(source, hashes[source], names)
	}
	if !opts.Incremental {
		manifest.Forget(seen)
	}
	if err := manifest.Save(); err != nil {
		return result, err
	}
	return result, nil
}

func writeGraph(path string, g *cfg.FlowGraph, opts Options) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := render.Write(f, g, opts.Format, opts.Render); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

// FileName derives a flat output file name from a source path and a
// function name, e.g. "src/app.py" and "Shape.area" give
// "src_app.py.Shape.area.mmd".
func FileName(sourcePath, function string, format render.Format) string {
	clean := filepath.ToSlash(filepath.Clean(sourcePath))
	clean = strings.TrimLeft(strings.TrimPrefix(clean, "./"), "/")
	replacer := strings.NewReplacer("/", "_", ":", "_", " ", "_", "<", "", ">", "")
	return replacer.Replace(clean) + "." + replacer.Replace(function) + format.Extension()
}

func newBar(max int, w io.Writer) *progressbar.ProgressBar {
	if w == nil {
		w = io.Discard
	}
	return progressbar.NewOptions(max,
		progressbar.OptionSetDescription("Exporting"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionSetWriter(w),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(w)
		}),
	)
}
