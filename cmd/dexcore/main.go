// Command dexcore is a thin demonstration harness around the engine: it
// wires an in-memory ledger and an always-allow fee gate, initializes one
// pool, and runs a swap against it, logging each stage the way an operator
// driving the engine from a shell would.
package main

import (
	"context"
	"os"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/dexlabs/clamm-core/internal/dexapi"
	"github.com/dexlabs/clamm-core/internal/fixedpoint"
	"github.com/dexlabs/clamm-core/internal/ledger/ledgertest"
	"github.com/dexlabs/clamm-core/internal/ledgerreplica"
	"github.com/dexlabs/clamm-core/internal/pool"
)

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if lvl := os.Getenv("DEXCORE_LOG_LEVEL"); lvl != "" {
		parsed, err := logrus.ParseLevel(lvl)
		if err != nil {
			logrus.Fatalf("invalid DEXCORE_LOG_LEVEL %q: %v", lvl, err)
		}
		logrus.SetLevel(parsed)
	}

	ctx := context.Background()
	store := ledgertest.New()
	gate := ledgertest.FeeGate{} // nil Allow + nil Err means "allow everything"
	svc := dexapi.New(store, gate, 50)

	replicaDB, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		logrus.Fatalf("opening replica db: %v", err)
	}
	if err := replicaDB.AutoMigrate(&ledgerreplica.PoolRow{}, &ledgerreplica.TickRow{}); err != nil {
		logrus.Fatalf("migrating replica db: %v", err)
	}
	svc.Replica = ledgerreplica.New(replicaDB)

	const token0, token1 = "TOKEN|A|unit|none", "TOKEN|B|unit|none"
	feeTier := decimal.NewFromFloat(0.003)

	p, err := pool.New(pool.TokenClassKey(token0), pool.TokenClassKey(token1), feeTier, 60)
	if err != nil {
		logrus.Fatalf("constructing pool: %v", err)
	}
	// Not exactly 1: a price sitting precisely on a tick's lower boundary
	// would leave the swap loop's first step with no price to move toward.
	if err := p.Initialize(decimal.NewFromFloat(1.00002)); err != nil {
		logrus.Fatalf("initializing pool: %v", err)
	}
	p.Liquidity = decimal.NewFromInt(1_000_000)

	if err := store.PutObject(ctx, poolRecordFrom(p)); err != nil {
		logrus.Fatalf("seeding pool: %v", err)
	}

	mint, err := svc.AddLiquidity(ctx, dexapi.AddLiquidityRequest{
		Owner:     "demo-caller",
		Token0:    token0,
		Token1:    token1,
		FeeTier:   feeTier,
		TickLower: -600,
		TickUpper: 600,
		Liquidity: fixedpoint.F18(decimal.NewFromInt(500_000)),
	})
	if err != nil {
		logrus.Fatalf("minting liquidity: %v", err)
	}
	logrus.Infof("minted position %s liquidity=%s", mint.PositionID, mint.Liquidity)

	result, err := svc.Swap(ctx, dexapi.SwapRequest{
		Token0:     token0,
		Token1:     token1,
		FeeTier:    feeTier,
		Amount:     fixedpoint.F18(decimal.NewFromInt(1000)),
		ExactInput: true,
		ZeroForOne: true,
		Recipient:  "demo-caller",
	})
	if err != nil {
		logrus.Fatalf("swap failed: %v", err)
	}

	logrus.Infof("swap result: amount0=%s amount1=%s sqrtPriceAfter=%s tickAfter=%d",
		result.Amount0, result.Amount1, result.SqrtPriceAfter, result.TickAfter)

	positions, err := svc.GetUserPositions(ctx, dexapi.GetUserPositionsRequest{User: "demo-caller", Limit: 10})
	if err != nil {
		logrus.Fatalf("listing positions: %v", err)
	}
	logrus.Infof("demo-caller holds %d position(s), bookmark=%q", len(positions.Positions), positions.Bookmark)

	if replicaRow, ok, err := svc.Replica.LoadPool(p.PoolHash); err != nil {
		logrus.Fatalf("reading replica: %v", err)
	} else if ok {
		logrus.Infof("replica sees pool %s at tick=%d liquidity=%s", replicaRow.PoolHash, replicaRow.Tick, replicaRow.Liquidity)
	}
}

func poolRecordFrom(p *pool.Pool) dexapi.PoolRecord {
	words := make(map[int16]string, len(p.Bitmap))
	for pos, w := range p.Bitmap {
		words[pos] = w.Text(16)
	}
	return dexapi.PoolRecord{
		PoolHash:           p.PoolHash,
		Token0:             string(p.Token0),
		Token1:             string(p.Token1),
		FeeTier:            p.FeeTier,
		TickSpacing:        p.TickSpacing,
		SqrtPrice:          p.SqrtPrice,
		Tick:               p.Tick,
		Liquidity:          p.Liquidity,
		FeeGrowthGlobal0:   p.FeeGrowthGlobal0,
		FeeGrowthGlobal1:   p.FeeGrowthGlobal1,
		ProtocolFees:       p.ProtocolFees,
		ProtocolFeesToken0: p.ProtocolFeesToken0,
		ProtocolFeesToken1: p.ProtocolFeesToken1,
		BitmapWords:        words,
	}
}
