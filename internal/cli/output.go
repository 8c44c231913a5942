package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"autotrade-console/internal/mode"
	"autotrade-console/internal/plans"
	"autotrade-console/internal/ui"
)

// Output handles formatted output for the CLI.
type Output = ui.Output

// NewOutput creates an Output honouring the --json and --output flags.
func NewOutput(cmd *cobra.Command) *Output {
	name, _ := cmd.Flags().GetString("output")
	format, err := parseFormat(cmd, name)
	if err != nil {
		format = ui.FormatText
	}
	return ui.NewOutput(cmd.OutOrStdout(), format, colorEnabled(cmd))
}

func parseFormat(cmd *cobra.Command, name string) (ui.Format, error) {
	if jsonMode, _ := cmd.Flags().GetBool("json"); jsonMode && name == "" {
		return ui.FormatJSON, nil
	}
	return ui.ParseFormat(name)
}

func colorEnabled(cmd *cobra.Command) bool {
	f, ok := cmd.OutOrStdout().(*os.File)
	return ok && f == os.Stdout && ui.IsTerminal()
}

// NewTable creates a new table.
func NewTable(output *Output, headers ...string) *ui.Table {
	return ui.NewTable(output, headers...)
}

// lineReader prompts on out and reads answers from in.
type lineReader struct {
	in  *bufio.Reader
	out io.Writer
}

func newLineReader(in io.Reader, out io.Writer) *lineReader {
	return &lineReader{in: bufio.NewReader(in), out: out}
}

// Prompt implements mode.Prompter.
func (r *lineReader) Prompt(ctx context.Context, message string) (string, error) {
	fmt.Fprint(r.out, message)

	type answer struct {
		line string
		err  error
	}
	ch := make(chan answer, 1)
	go func() {
		line, err := r.in.ReadString('\n')
		if err == io.EOF && line != "" {
			err = nil
		}
		ch <- answer{strings.TrimRight(line, "\r\n"), err}
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(r.out)
		return "", ctx.Err()
	case a := <-ch:
		return a.line, a.err
	}
}

// Confirm implements plans.Confirmer with a y/N question. Anything but an
// explicit yes declines.
func (r *lineReader) Confirm(ctx context.Context, prompt string) (bool, error) {
	line, err := r.Prompt(ctx, prompt+" [y/N]: ")
	if err != nil {
		if err == io.EOF {
			return false, nil
		}
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

var (
	_ mode.Prompter   = (*lineReader)(nil)
	_ plans.Confirmer = (*lineReader)(nil)
)

// assumeYes confirms without asking.
var assumeYes = plans.ConfirmFunc(func(ctx context.Context, prompt string) (bool, error) {
	return true, nil
})

func (app *App) confirmer(cmd *cobra.Command) plans.Confirmer {
	if yes, _ := cmd.Flags().GetBool("yes"); yes {
		return assumeYes
	}
	return app.prompter(cmd)
}

func (app *App) prompter(cmd *cobra.Command) *lineReader {
	if app.prompts == nil {
		app.prompts = newLineReader(app.in, cmd.ErrOrStderr())
	}
	return app.prompts
}
