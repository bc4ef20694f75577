package core

import (
	"context"
	"time"
)

// Clock stamps commands that arrive without a timestamp. Handlers only ever
// see the stamped value.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// CollateralTransfer moves real collateral in and out of custody. The engine
// calls it after a command validated and before the command commits; a
// failure rejects the command with nothing applied.
type CollateralTransfer interface {
	// Debit pulls amount from owner into custody.
	Debit(ctx context.Context, owner string, bankIndex uint16, amount int64) error
	// Credit pays amount out of custody to recipient.
	Credit(ctx context.Context, recipient string, bankIndex uint16, amount int64) error
}

// NoopCustody accepts every transfer. Used when custody is tracked
// elsewhere.
type NoopCustody struct{}

func (NoopCustody) Debit(context.Context, string, uint16, int64) error  { return nil }
func (NoopCustody) Credit(context.Context, string, uint16, int64) error { return nil }
