package cli

import (
	"math/big"
	"os"

	"github.com/spf13/cobra"

	"github.com/slonigiraf/slonledger/internal/ledger"
	"github.com/slonigiraf/slonledger/internal/record"
)

// IssueOptions holds flags for the issue command.
type IssueOptions struct {
	*RootOptions
	Worker      string
	WorkerID    string
	KnowledgeID string
	CID         string
	ContentFile string
	Lesson      string
	Block       uint64
	Amount      string
}

// NewIssueCommand creates the issue command.
func NewIssueCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &IssueOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue a diploma letter as the local referee",
		Long: `Sign and store a diploma letter for a worker. The local identity
acts as the referee and stakes the given amount.

Example:
  slonigd issue --worker <hex-key> --knowledge k1 --cid bafy... --amount 1000000`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIssue(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Worker, "worker", "", "worker public key (hex, required)")
	cmd.Flags().StringVar(&opts.WorkerID, "worker-id", "", "worker account id (defaults to the key)")
	cmd.Flags().StringVar(&opts.KnowledgeID, "knowledge", "", "knowledge id (required)")
	cmd.Flags().StringVar(&opts.CID, "cid", "", "content id of the skill material")
	cmd.Flags().StringVar(&opts.ContentFile, "content", "", "skill material file; stored and its content id used instead of --cid")
	cmd.Flags().StringVar(&opts.Lesson, "lesson", "", "lesson id this letter came from")
	cmd.Flags().Uint64Var(&opts.Block, "block", 0, "chain block of issue")
	cmd.Flags().StringVar(&opts.Amount, "amount", "", "staked amount (required)")
	_ = cmd.MarkFlagRequired("worker")
	_ = cmd.MarkFlagRequired("knowledge")
	_ = cmd.MarkFlagRequired("amount")
	cmd.MarkFlagsOneRequired("cid", "content")
	cmd.MarkFlagsMutuallyExclusive("cid", "content")

	return cmd
}

func runIssue(cmd *cobra.Command, opts *IssueOptions) error {
	app, err := openApp(opts.RootOptions)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx := cmd.Context()
	formatter := &OutputFormatter{Format: opts.Format, Writer: os.Stdout}

	worker, err := record.ParsePublicKey(opts.Worker)
	if err != nil {
		return WrapExitError(ExitCommandError, "parse worker key", err)
	}
	amount, ok := new(big.Int).SetString(opts.Amount, 10)
	if !ok {
		return NewExitError(ExitCommandError, "amount must be a decimal integer")
	}
	workerID := opts.WorkerID
	if workerID == "" {
		workerID = string(worker)
	}

	referee, err := app.Identity(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "load identity", err)
	}

	cid := opts.CID
	if opts.ContentFile != "" {
		data, err := os.ReadFile(opts.ContentFile)
		if err != nil {
			return WrapExitError(ExitCommandError, "read content file", err)
		}
		cid, err = app.Blobs.Put(ctx, data)
		if err != nil {
			return WrapExitError(ExitCommandError, "store content", err)
		}
		err = app.Store.PutAgreement(ctx, record.Agreement{CID: cid, Data: string(data)})
		if err != nil {
			return WrapExitError(ExitCommandError, "cache content", err)
		}
	}

	letter, err := app.Engine.IssueLetter(ctx, ledger.IssueLetterParams{
		Referee:     referee,
		Worker:      worker,
		WorkerID:    workerID,
		KnowledgeID: opts.KnowledgeID,
		CID:         cid,
		Lesson:      opts.Lesson,
		Genesis:     app.Config.Genesis,
		Block:       opts.Block,
		Amount:      amount,
	})
	if err != nil {
		return WrapExitError(ExitFailure, "issue letter", err)
	}

	return formatter.Success(letter)
}
