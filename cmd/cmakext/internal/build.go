package internal

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/goplus/cmakext/internal/build"
	"github.com/goplus/cmakext/internal/config"
	"github.com/goplus/cmakext/internal/env"
	"github.com/goplus/cmakext/internal/modules"
	"github.com/goplus/cmakext/pkgs/buildsys"
	"github.com/qiniu/x/log"
	"github.com/spf13/cobra"
)

type buildFlags struct {
	config    string
	dest      string
	inplace   bool
	defines   string
	buildTemp string
	generator string
	output    string
}

var buildOpts buildFlags

// Replaced in tests; nil means the builder defaults.
var (
	buildRunner  buildsys.Runner
	buildChecker *env.Checker
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Configure, build and install every extension",
	Long: `Build reads the project file and runs CMake configure, build and install
for each extension in order. The first failure stops the run.`,
	Args: cobra.NoArgs,
	RunE: runBuild,
}

func init() {
	f := buildCmd.Flags()
	f.StringVarP(&buildOpts.config, "config", "c", config.DefaultFile, "Project file")
	f.StringVar(&buildOpts.dest, "dest", "", "Destination root (default build/lib, or . with --inplace)")
	f.BoolVar(&buildOpts.inplace, "inplace", false, "Editable build into the source tree")
	f.StringVarP(&buildOpts.defines, "define", "D", "", `CMake cache overrides as "KEY=VALUE;KEY=VALUE"`)
	f.StringVar(&buildOpts.buildTemp, "build-temp", "", "Staging base directory")
	f.StringVarP(&buildOpts.generator, "generator", "G", "", "CMake generator (default Ninja)")
	f.StringVarP(&buildOpts.output, "output", "o", "", "Copy the destination root to a directory or .zip file")
	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(buildOpts.config)
	if err != nil {
		return err
	}

	reporter := &styledReporter{w: cmd.OutOrStdout()}
	opts := builderOptions(buildOpts, cfg)
	opts.Reporter = reporter

	builder, err := build.NewBuilder(opts)
	if err != nil {
		return fmt.Errorf("failed to create builder: %w", err)
	}
	results, err := builder.Build(cmd.Context(), cfg.Extensions)
	if err != nil {
		return err
	}
	reporter.Summary(results)

	if buildOpts.output != "" {
		out, err := filepath.Abs(buildOpts.output)
		if err != nil {
			return fmt.Errorf("failed to resolve output path: %w", err)
		}
		log.Debugf("Writing %s", out)
		if err := outputResult(builder.DestRoot(), out); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}
	return nil
}

// builderOptions merges command line flags over the project file.
func builderOptions(flags buildFlags, cfg *config.Config) build.Options {
	opts := build.Options{
		DestRoot:  flags.dest,
		Editable:  flags.inplace,
		Defines:   flags.defines,
		BuildTemp: cfg.BuildTemp,
		Generator: cfg.Generator,
		Resolver: modules.Chain{
			modules.NewPathResolver(cfg.PackagePath...),
			&modules.PythonResolver{},
		},
		Runner:  buildRunner,
		Checker: buildChecker,
	}
	if opts.DestRoot == "" {
		if flags.inplace {
			opts.DestRoot = "."
		} else {
			opts.DestRoot = filepath.Join("build", "lib")
		}
	}
	if flags.buildTemp != "" {
		opts.BuildTemp = flags.buildTemp
	}
	if flags.generator != "" {
		opts.Generator = flags.generator
	}
	return opts
}

// outputResult writes the build output to dest.
// If dest ends with ".zip", creates a zip archive; otherwise copies the directory.
// A zip archive may live inside srcDir, a copy may not.
func outputResult(srcDir, dest string) error {
	src, err := filepath.Abs(srcDir)
	if err != nil {
		return err
	}
	dst, err := filepath.Abs(dest)
	if err != nil {
		return err
	}
	if strings.HasSuffix(dst, ".zip") {
		return zipDir(src, dst)
	}
	if within(src, dst) {
		return fmt.Errorf("output %s is inside %s", dst, src)
	}
	return os.CopyFS(dst, os.DirFS(src))
}

// within reports whether path is root or below it. Both must be clean and
// absolute.
func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// zipDir archives srcDir into dest with slash-separated names. Both paths
// are absolute; dest itself is never archived.
func zipDir(srcDir, dest string) error {
	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer f.Close()

	w := zip.NewWriter(f)
	err = filepath.WalkDir(srcDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || path == dest {
			return nil
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		header, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(rel)
		header.Method = zip.Deflate

		writer, err := w.CreateHeader(header)
		if err != nil {
			return err
		}
		file, err := os.Open(path)
		if err != nil {
			return err
		}
		defer file.Close()
		_, err = io.Copy(writer, file)
		return err
	})
	if err != nil {
		w.Close()
		return err
	}
	return w.Close()
}
