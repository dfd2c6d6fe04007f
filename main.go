package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/muesli/termenv"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/df07/go-pbrt-scenegraph/pkg/builder"
	"github.com/df07/go-pbrt-scenegraph/pkg/config"
	"github.com/df07/go-pbrt-scenegraph/pkg/loaders"
	"github.com/df07/go-pbrt-scenegraph/pkg/pbrt"
	"github.com/df07/go-pbrt-scenegraph/pkg/scene"
	"github.com/df07/go-pbrt-scenegraph/pkg/writer"
	"github.com/df07/go-pbrt-scenegraph/web/server"
)

// ErrWarnings is returned by --strict runs that produced warnings
var ErrWarnings = errors.New("scene has warnings")

// app holds state shared by every command
type app struct {
	configPath string
	logLevel   string

	cfg      config.Config
	log      *slog.Logger
	registry *scene.Registry
	stdout   io.Writer
	stderr   *termenv.Output
}

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: termenv.NewOutput(stderr)}
	root := &cobra.Command{
		Use:           "pbrt-scenegraph",
		Short:         "Load, inspect and rewrite pbrt-v3 scene files",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default "+config.DefaultFile+")")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn or error")

	root.AddCommand(a.convertCmd(), a.printCmd(), a.checkCmd(), a.serveCmd())
	return wrapErrors(root, a)
}

// wrapErrors prints the error returned by any command in color
func wrapErrors(root *cobra.Command, a *app) *cobra.Command {
	for _, cmd := range root.Commands() {
		run := cmd.RunE
		cmd.RunE = func(cmd *cobra.Command, args []string) error {
			err := run(cmd, args)
			if err != nil && !errors.Is(err, ErrWarnings) {
				fmt.Fprintln(a.stderr, a.stderr.String("error:").Foreground(termenv.ANSIRed).Bold(), err)
			}
			return err
		}
	}
	return root
}

func (a *app) setup() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	level, err := cfg.Level()
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = slog.New(slog.NewTextHandler(a.stderr, &slog.HandlerOptions{Level: level}))
	a.registry, err = cfg.Registry()
	return err
}

// load builds a scene, printing its warnings. Warnings are printed here
// rather than logged, so the builder gets a silent logger.
func (a *app) load(name string) (*builder.Result, error) {
	path, err := a.cfg.FindScene(name)
	if err != nil {
		return nil, err
	}
	res, err := builder.LoadFile(path, builder.Options{
		Registry:    a.registry,
		Logger:      slog.New(slog.DiscardHandler),
		CheckImages: true,
	})
	if err != nil {
		return nil, err
	}
	a.printWarnings(res.Warnings)
	return res, nil
}

func (a *app) printWarnings(warnings []builder.Warning) {
	for _, w := range warnings {
		a.warning(w)
	}
}

func (a *app) warning(msg any) {
	fmt.Fprintln(a.stderr, a.stderr.String("warning:").Foreground(termenv.ANSIYellow).Bold(), msg)
}

func (a *app) convertCmd() *cobra.Command {
	var copyResources, noCopy, strict bool
	var workers int
	cmd := &cobra.Command{
		Use:   "convert <scene> <output.pbrt>",
		Short: "Load a scene and write it back out as a single pbrt file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.load(args[0])
			if err != nil {
				return err
			}
			defer res.Close()
			if strict && len(res.Warnings) > 0 {
				return ErrWarnings
			}

			opts := writer.Options{
				CopyResources: a.cfg.CopyResources,
				Registry:      a.registry,
				Logger:        a.log,
				Workers:       a.cfg.Workers,
			}
			if cmd.Flags().Changed("copy-resources") {
				opts.CopyResources = copyResources
			}
			if noCopy {
				opts.CopyResources = false
			}
			if cmd.Flags().Changed("workers") {
				opts.Workers = workers
			}

			out := args[1]
			if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
				return errors.Wrap(err, "failed to create output directory")
			}
			if err := writer.WriteFile(cmd.Context(), out, res.Scene, opts); err != nil {
				return err
			}
			st := res.Scene.Stats()
			a.log.Info("scene written", "path", out, "shapes", st.Shapes, "lights", st.Lights,
				"warnings", len(res.Warnings), "copied", opts.CopyResources)
			return nil
		},
	}
	cmd.Flags().BoolVar(&copyResources, "copy-resources", false, "copy referenced files next to the output")
	cmd.Flags().BoolVar(&noCopy, "no-copy", false, "write absolute file paths even if the config enables copying")
	cmd.Flags().BoolVar(&strict, "strict", false, "fail if loading produced warnings")
	cmd.Flags().IntVar(&workers, "workers", 0, "concurrent file copies (0 = one per CPU)")
	return cmd
}

func (a *app) printCmd() *cobra.Command {
	var expand bool
	cmd := &cobra.Command{
		Use:   "print <scene>",
		Short: "Reformat the directives of a scene file without interpreting them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := a.cfg.FindScene(args[0])
			if err != nil {
				return err
			}
			src, err := loaders.OpenScene(path)
			if err != nil {
				return err
			}
			defer src.Close()

			text := src.Text
			if expand {
				if !strings.HasSuffix(src.Path, loaders.SceneExt) {
					return errors.Errorf("--expand needs an uncompressed %s file", loaders.SceneExt)
				}
				if text, err = pbrt.ExpandIncludes(src.Path); err != nil {
					return err
				}
			}
			p := pbrt.NewPrinter(a.stdout)
			if err := p.ParseString(text); err != nil {
				return err
			}
			return p.Err()
		},
	}
	cmd.Flags().BoolVar(&expand, "expand", false, "inline Include directives")
	return cmd
}

func (a *app) checkCmd() *cobra.Command {
	var strict, tree bool
	cmd := &cobra.Command{
		Use:   "check <scene>...",
		Short: "Load scenes and report warnings and statistics",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			warned := false
			for _, name := range args {
				res, err := a.load(name)
				if err != nil {
					return errors.Wrap(err, name)
				}
				// meshes are built while the result is open; archives
				// are extracted to a directory Close removes
				meshes, err := res.Scene.Resources.LoadMeshes(cmd.Context(), a.cfg.Workers)
				if err != nil {
					res.Close()
					return errors.Wrap(err, name)
				}
				for _, e := range meshes.Errors {
					a.warning(e)
				}
				a.printStats(name, res, meshes)
				if tree {
					printTree(a.stdout, res.Scene.Root)
				}
				warned = warned || len(res.Warnings) > 0 || len(meshes.Errors) > 0
				res.Close()
			}
			if strict && warned {
				return ErrWarnings
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "fail if any scene produced warnings")
	cmd.Flags().BoolVar(&tree, "tree", false, "print the node tree")
	return cmd
}

func (a *app) printStats(name string, res *builder.Result, meshes scene.MeshReport) {
	st := res.Scene.Stats()
	c := st.Resources
	fmt.Fprintf(a.stdout, "%s: %d nodes, %d shapes, %d lights, %d materials, %d textures, %d meshes, %d warnings\n",
		name, st.Nodes, st.Shapes, st.Lights, c.Materials, c.Textures, c.Meshes, len(res.Warnings))
	fmt.Fprintf(a.stdout, "  triangles: %d in %d meshes, %d failed\n",
		meshes.Triangles, meshes.Meshes, len(meshes.Errors))
	if up, ok := res.Scene.Up(); ok {
		fmt.Fprintf(a.stdout, "  up axis: %g %g %g\n", up.X, up.Y, up.Z)
	}
}

// printTree writes one line per node, indented by depth
func printTree(w io.Writer, root *scene.Node) {
	root.Walk(func(n *scene.Node, depth int) bool {
		kinds := make([]string, 0, 4)
		for _, k := range n.Kinds() {
			kinds = append(kinds, k.String())
		}
		state := ""
		if !n.Enabled() {
			state = " (disabled)"
		}
		fmt.Fprintf(w, "%s%s [%s]%s\n", strings.Repeat("  ", depth), n.Name(), strings.Join(kinds, " "), state)
		return true
	})
}

func (a *app) serveCmd() *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve [search paths...]",
		Short: "Serve scene inspection, export and live reload over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := server.Options{
				Addr:        a.cfg.Listen,
				SearchPaths: a.cfg.SearchPaths,
				Registry:    a.registry,
				Logger:      a.log,
			}
			if listen != "" {
				opts.Addr = listen
			}
			if len(args) > 0 {
				opts.SearchPaths = args
			}
			srv, err := server.NewServer(opts)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return srv.Start(ctx)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "address to serve on (overrides config)")
	return cmd
}
