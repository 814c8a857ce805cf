// Package ledger defines the seam onto the external ledger collaborator
// described in §6: opaque key/value object storage with composite keys and
// partial-key pagination, plus the fee-gate predicate every user-facing
// operation is run behind.
package ledger

import (
	"context"

	"github.com/dexlabs/clamm-core/internal/dexerrors"
)

// FeeCode names the operation a fee-gate check is being run for, per §6.
type FeeCode string

const (
	FeeCreatePool          FeeCode = "CreatePool"
	FeeAddLiquidity        FeeCode = "AddLiquidity"
	FeeSwap                FeeCode = "Swap"
	FeeRemoveLiquidity     FeeCode = "RemoveLiquidity"
	FeeCollectPositionFees FeeCode = "CollectPositionFees"
	FeeTransferDexPosition FeeCode = "TransferDexPosition"
)

// PoolIndexKey is the index name ledger composite keys for pools are built
// under, per §6: "composite key for a pool: INDEX_KEY, [token0, token1,
// feeTier.toString()]".
const PoolIndexKey = "DEXPOOL"

// PositionOwnerIndexKey is the index name the owner-position page chain in
// §4.8 is built under.
const PositionOwnerIndexKey = "DEXPOSITIONOWNER"

// KeyedObject is anything the ledger can persist: a chain object that knows
// its own composite key, per the putChainObject(obj) convention in §6.
type KeyedObject interface {
	Key() string
}

// Ctx is the ledger collaborator's object-store surface, per §6.
// GetObjectByKey fails dexerrors.NotFound when the key is absent.
type Ctx interface {
	GetObjectByKey(ctx context.Context, compositeKey string, out interface{}) error
	PutObject(ctx context.Context, obj KeyedObject) error
	CreateCompositeKey(indexKey string, keyParts []string) (string, error)
	GetObjectsByPartialCompositeKeyWithPagination(
		ctx context.Context, indexKey string, partialKey []string, cursor string, pageSize int32,
	) (results [][]byte, nextBookmark string, err error)
}

// FeeGate is the opaque predicate gating every user-facing operation,
// per §6.
type FeeGate interface {
	Check(ctx context.Context, code FeeCode) error
}

// RequireFee runs the fee gate and maps its own failures to Unauthorized
// if the collaborator didn't already tag them with a kind.
func RequireFee(ctx context.Context, gate FeeGate, code FeeCode) error {
	if err := gate.Check(ctx, code); err != nil {
		if _, tagged := dexerrors.KindOf(err); tagged {
			return err
		}
		return dexerrors.Unauthorized(err.Error())
	}
	return nil
}
