package internal

import (
	"fmt"
	"os"

	"github.com/goplus/cmakext/internal/dispatch"
	"github.com/spf13/cobra"
)

var dispatchPrefix string

var dispatchCmd = &cobra.Command{
	Use:   "dispatch --prefix <install-root> <binary> [args...]",
	Short: "Run a binary exposed by an installed extension",
	Long: `Dispatch looks up <binary> in the directories listed by
<install-root>/bin/dispatch.json and runs it, exiting with its exit code.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDispatch,
}

func init() {
	dispatchCmd.Flags().StringVar(&dispatchPrefix, "prefix", ".", "Install root of the extension")
	dispatchCmd.Flags().SetInterspersed(false)
	rootCmd.AddCommand(dispatchCmd)
}

func runDispatch(cmd *cobra.Command, args []string) error {
	code, err := dispatch.Run(cmd.Context(), dispatchPrefix, args, dispatch.Stdio{
		Stdin:  cmd.InOrStdin(),
		Stdout: cmd.OutOrStdout(),
		Stderr: cmd.ErrOrStderr(),
	})
	if err != nil {
		return fmt.Errorf("dispatch %s: %w", args[0], err)
	}
	if code != 0 {
		os.Exit(code)
	}
	return nil
}
