package internal

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/goplus/cmakext/internal/build"
	"github.com/goplus/cmakext/pkgs/buildsys"
)

var (
	phaseStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86"))
	commandStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))
	doneStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("46"))
	skipStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))
)

// styledReporter is build.TextReporter with colors.
type styledReporter struct {
	w io.Writer
}

var _ build.Reporter = (*styledReporter)(nil)

func (r *styledReporter) Phase(title string) {
	fmt.Fprintf(r.w, "\n%s\n", phaseStyle.Render("==> "+title+":"))
}

func (r *styledReporter) Command(cmd *buildsys.Command) {
	fmt.Fprintf(r.w, "%s\n\n", commandStyle.Render("$ "+cmd.String()))
}

func (r *styledReporter) Summary(results []build.Result) {
	for _, res := range results {
		if res.Skipped {
			fmt.Fprintf(r.w, "%s %s\n", skipStyle.Render("skipped"), res.Name)
			continue
		}
		fmt.Fprintf(r.w, "%s %s -> %s\n", doneStyle.Render("built"), res.Name, res.InstallRoot)
	}
}
