package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetExitCode(t *testing.T) {
	require.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
	require.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad flag")))
	require.Equal(t, ExitFailure, GetExitCode(NewExitError(ExitFailure, "timed out")))

	// Wrapped ExitErrors still surface their code.
	wrapped := fmt.Errorf("outer: %w", WrapExitError(ExitCommandError, "inner", errors.New("cause")))
	require.Equal(t, ExitCommandError, GetExitCode(wrapped))
}

func TestExitError_Message(t *testing.T) {
	plain := NewExitError(ExitFailure, "no insurances to send")
	require.Equal(t, "no insurances to send", plain.Error())

	cause := errors.New("connection refused")
	withCause := WrapExitError(ExitCommandError, "relay unreachable", cause)
	require.Equal(t, "relay unreachable: connection refused", withCause.Error())
	require.ErrorIs(t, withCause, cause)
}

func TestOutputFormatter_JSON(t *testing.T) {
	var buf bytes.Buffer
	f := &OutputFormatter{Format: "json", Writer: &buf}

	require.NoError(t, f.Success(map[string]int{"accepted": 3}))

	var resp Response
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	require.Equal(t, "ok", resp.Status)
	require.Nil(t, resp.Error)

	buf.Reset()
	require.NoError(t, f.Error("PEER_TIMEOUT", "no data within window"))
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	require.Equal(t, "error", resp.Status)
	require.Equal(t, "PEER_TIMEOUT", resp.Error.Code)
}

func TestOutputFormatter_Text(t *testing.T) {
	var buf bytes.Buffer
	f := &OutputFormatter{Format: "text", Writer: &buf}

	require.NoError(t, f.Successf("accepted %d records", 3))
	require.Equal(t, "accepted 3 records\n", buf.String())

	buf.Reset()
	require.NoError(t, f.Error("PEER_TIMEOUT", "no data within window"))
	require.Equal(t, "Error [PEER_TIMEOUT]: no data within window\n", buf.String())
}
