package ledger

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slonigiraf/slonledger/internal/record"
	"github.com/slonigiraf/slonledger/internal/testutil"
)

func TestIngestForeignRecords_AcceptsValidBatch(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	referee := testutil.Keypair(t, 1)
	worker := testutil.Keypair(t, 2)
	local := testutil.Keypair(t, 3)

	batch := Batch{
		Letters:    []record.Letter{testutil.Letter(t, referee, worker, 1)},
		Insurances: []record.Insurance{testutil.Insurance(t, referee, worker, local.Public, 2)},
	}

	report, err := e.IngestForeignRecords(ctx, batch, local.Public)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Accepted)
	assert.Zero(t, report.Rejected)
}

func TestIngestForeignRecords_RejectsBadSignatures(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	referee := testutil.Keypair(t, 1)
	worker := testutil.Keypair(t, 2)
	local := testutil.Keypair(t, 3)

	tampered := testutil.Letter(t, referee, worker, 1)
	tampered.Amount = big.NewInt(999999999)

	badCoSign := testutil.Insurance(t, referee, worker, local.Public, 2)
	badCoSign.WorkerSign = worker.CoSign(badCoSign.SignOverReceipt, referee.Public) // wrong employer

	report, err := e.IngestForeignRecords(ctx, Batch{
		Letters:    []record.Letter{tampered},
		Insurances: []record.Insurance{badCoSign},
	}, local.Public)
	require.NoError(t, err, "bad records are tallied, not raised")
	assert.Zero(t, report.Accepted)
	assert.Equal(t, 2, report.Rejected)
	for _, r := range report.Reasons {
		assert.Equal(t, CodeSignatureInvalid, r.Code)
	}

	// Nothing was persisted.
	letters, err := e.Store().AllLetters(ctx)
	require.NoError(t, err)
	assert.Empty(t, letters)
}

func TestIngestForeignRecords_RejectsDuplicates(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	referee := testutil.Keypair(t, 1)
	worker := testutil.Keypair(t, 2)
	local := testutil.Keypair(t, 3)

	ins := testutil.Insurance(t, referee, worker, local.Public, 1)
	batch := Batch{Insurances: []record.Insurance{ins}}

	report, err := e.IngestForeignRecords(ctx, batch, local.Public)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Accepted)

	// The same batch replayed: everything is a duplicate, nothing
	// changes, no error.
	report, err = e.IngestForeignRecords(ctx, batch, local.Public)
	require.NoError(t, err)
	assert.Zero(t, report.Accepted)
	assert.Equal(t, 1, report.Rejected)
	assert.Equal(t, CodeDuplicateClaim, report.Reasons[0].Code)

	all, err := e.Store().AllInsurances(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

// A revoked credential must stay out even if a peer re-sends it with a
// fresh co-signature.
func TestIngestForeignRecords_RejectsRevoked(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	referee := testutil.Keypair(t, 1)
	worker := testutil.Keypair(t, 2)
	local := testutil.Keypair(t, 3)
	other := testutil.Keypair(t, 4)

	ins := testutil.Insurance(t, referee, worker, local.Public, 1)
	_, err := e.IngestForeignRecords(ctx, Batch{Insurances: []record.Insurance{ins}}, local.Public)
	require.NoError(t, err)
	require.NoError(t, e.CancelInsurance(ctx, ins.WorkerSign, time.Now()))

	// Same credential, different employer binding, fresh workerSign.
	resent := testutil.Insurance(t, referee, worker, other.Public, 1)
	report, err := e.IngestForeignRecords(ctx, Batch{Insurances: []record.Insurance{resent}}, local.Public)
	require.NoError(t, err)
	assert.Zero(t, report.Accepted)
	require.Len(t, report.Reasons, 1)
	assert.Equal(t, CodeRevokedCredential, report.Reasons[0].Code)
}

func TestIngestForeignRecords_MixedBatchContinuesPastRejections(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	referee := testutil.Keypair(t, 1)
	worker := testutil.Keypair(t, 2)
	local := testutil.Keypair(t, 3)

	good := testutil.Letter(t, referee, worker, 1)
	bad := testutil.Letter(t, referee, worker, 2)
	bad.Amount = big.NewInt(777777)
	alsoGood := testutil.Letter(t, referee, worker, 3)

	report, err := e.IngestForeignRecords(ctx, Batch{
		Letters: []record.Letter{good, bad, alsoGood},
	}, local.Public)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Accepted)
	assert.Equal(t, 1, report.Rejected)
}
