package internal

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/goplus/cmakext/internal/config"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init [package]",
	Short: "Create a project file",
	Long: `Init writes a skeleton cmakext.hcl in the current directory. The package
name defaults to the directory name.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	dir, err := os.Getwd()
	if err != nil {
		return err
	}
	pkg := filepath.Base(dir)
	if len(args) > 0 {
		pkg = args[0]
	}
	if err := writeSkeleton(dir, pkg); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Initialized %s for %s\n", config.DefaultFile, pkg)
	return nil
}

func writeSkeleton(dir, pkg string) error {
	path := filepath.Join(dir, config.DefaultFile)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", config.DefaultFile)
	}
	if err := os.WriteFile(path, []byte(config.Skeleton(pkg)), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", config.DefaultFile, err)
	}
	return nil
}
