package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/slonigiraf/slonledger/internal/backup"
)

// BackupOptions holds flags for the backup subcommands.
type BackupOptions struct {
	*RootOptions
	File string
}

// NewBackupCommand creates the backup command and its subcommands.
func NewBackupCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BackupOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Export or restore a ledger archive",
	}

	export := &cobra.Command{
		Use:           "export",
		Short:         "Write the full ledger, keys included, to an archive",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBackupExport(cmd, opts)
		},
	}
	export.Flags().StringVar(&opts.File, "out", "", "archive path (required)")
	_ = export.MarkFlagRequired("out")

	restore := &cobra.Command{
		Use:           "import",
		Short:         "Restore an archive into the local ledger",
		Long: `Restore an archive. Existing rows are kept; the archive only fills
gaps, so importing the same file twice is harmless. A malformed archive
changes nothing.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBackupImport(cmd, opts)
		},
	}
	restore.Flags().StringVar(&opts.File, "in", "", "archive path (required)")
	_ = restore.MarkFlagRequired("in")

	cmd.AddCommand(export, restore)
	return cmd
}

func runBackupExport(cmd *cobra.Command, opts *BackupOptions) error {
	app, err := openApp(opts.RootOptions)
	if err != nil {
		return err
	}
	defer app.Close()

	f, err := os.Create(opts.File)
	if err != nil {
		return WrapExitError(ExitCommandError, "create archive", err)
	}
	defer f.Close()

	if err := backup.Export(cmd.Context(), app.Store, f, app.Log); err != nil {
		return WrapExitError(ExitCommandError, "export", err)
	}
	if err := f.Close(); err != nil {
		return WrapExitError(ExitCommandError, "flush archive", err)
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: os.Stdout}
	return formatter.Successf("ledger exported to %s", opts.File)
}

func runBackupImport(cmd *cobra.Command, opts *BackupOptions) error {
	app, err := openApp(opts.RootOptions)
	if err != nil {
		return err
	}
	defer app.Close()

	f, err := os.Open(opts.File)
	if err != nil {
		return WrapExitError(ExitCommandError, "open archive", err)
	}
	defer f.Close()

	if err := backup.Import(cmd.Context(), app.Store, f, app.Log); err != nil {
		if backup.IsInvalidBackupFile(err) {
			return WrapExitError(ExitFailure, "not a valid backup file", err)
		}
		return WrapExitError(ExitCommandError, "import", err)
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: os.Stdout}
	return formatter.Successf("ledger restored from %s", opts.File)
}
