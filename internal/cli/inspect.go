package cli

import (
	"os"

	"github.com/spf13/cobra"
)

// InspectOptions holds flags for the inspect command.
type InspectOptions struct {
	*RootOptions
	Table string
}

// inspectTables names the dumpable tables.
var inspectTables = []string{
	"letters", "canceled-letters", "insurances", "canceled-insurances",
	"reimbursements", "usage-rights", "lessons", "templates",
	"agreements", "pseudonyms", "summary",
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InspectOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Dump ledger contents",
		Long: `Dump one table of the ledger, or a row-count summary.

Example:
  slonigd inspect --table insurances --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Table, "table", "summary", "table to dump")

	return cmd
}

func runInspect(cmd *cobra.Command, opts *InspectOptions) error {
	app, err := openApp(opts.RootOptions)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx := cmd.Context()
	formatter := &OutputFormatter{Format: opts.Format, Writer: os.Stdout}

	var (
		data   any
		getErr error
	)
	switch opts.Table {
	case "letters":
		data, getErr = app.Store.AllLetters(ctx)
	case "canceled-letters":
		data, getErr = app.Store.AllCanceledLetters(ctx)
	case "insurances":
		data, getErr = app.Store.AllInsurances(ctx)
	case "canceled-insurances":
		data, getErr = app.Store.AllCanceledInsurances(ctx)
	case "reimbursements":
		data, getErr = app.Store.AllReimbursements(ctx)
	case "usage-rights":
		data, getErr = app.Store.AllUsageRights(ctx)
	case "lessons":
		data, getErr = app.Store.AllLessons(ctx)
	case "templates":
		data, getErr = app.Store.AllLetterTemplates(ctx)
	case "agreements":
		data, getErr = app.Store.AllAgreements(ctx)
	case "pseudonyms":
		data, getErr = app.Store.AllPseudonyms(ctx)
	case "summary":
		data, getErr = summarize(cmd, opts, app)
	default:
		return NewExitError(ExitCommandError, "unknown table, expected one of: "+joinTables())
	}
	if getErr != nil {
		return WrapExitError(ExitCommandError, "inspect", getErr)
	}

	return formatter.Success(data)
}

func summarize(cmd *cobra.Command, opts *InspectOptions, app *App) (map[string]int, error) {
	ctx := cmd.Context()
	snap, err := app.Store.Export(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]int{
		"letters":             len(snap.Letters),
		"canceled_letters":    len(snap.CanceledLetters),
		"insurances":          len(snap.Insurances),
		"canceled_insurances": len(snap.CanceledInsurances),
		"reimbursements":      len(snap.Reimbursements),
		"usage_rights":        len(snap.UsageRights),
		"lessons":             len(snap.Lessons),
		"pseudonyms":          len(snap.Pseudonyms),
		"scheduled_events":    len(snap.ScheduledEvents),
	}, nil
}

func joinTables() string {
	out := ""
	for i, t := range inspectTables {
		if i > 0 {
			out += ", "
		}
		out += t
	}
	return out
}
