package store

import (
	"fmt"
	"math/big"
	"time"

	"github.com/slonigiraf/slonledger/internal/record"
)

// Column conversion helpers. SQLite has no native bool, time, or
// arbitrary-precision integer, so:
//   - bools are stored as INTEGER 0/1
//   - times as INTEGER unix milliseconds (0 = zero time)
//   - amounts as TEXT decimal, preserving precision beyond int64

func boolCol(b bool) int {
	if b {
		return 1
	}
	return 0
}

func colBool(i int) bool { return i != 0 }

func timeCol(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func colTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func amountCol(a *big.Int) string {
	return record.AmountString(a)
}

func colAmount(s string) (*big.Int, error) {
	a, ok := record.ParseAmount(s)
	if !ok {
		return nil, fmt.Errorf("invalid stored amount %q", s)
	}
	return a, nil
}
