// Package ledgerreplica is a local, queryable mirror of pool and tick state
// kept alongside the ledger's system of record. The engine itself never
// reads from it to decide swap outcomes — the ledger's Ctx is authoritative
// — but it gives operators a debug/read replica they can query with SQL
// without round-tripping to the chain, following the teacher's CorePool.Flush
// create-or-update idiom over gorm.io/gorm.
package ledgerreplica

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/dexlabs/clamm-core/internal/pool"
	"github.com/dexlabs/clamm-core/internal/tickstore"
)

// PoolRow mirrors pool.Pool in a form gorm can persist.
type PoolRow struct {
	gorm.Model
	PoolHash           string `gorm:"uniqueIndex"`
	HasCreated         bool
	Token0             string
	Token1             string
	FeeTier            decimal.Decimal
	TickSpacing        int32
	SqrtPrice          decimal.Decimal
	Tick               int32
	Liquidity          decimal.Decimal
	FeeGrowthGlobal0   decimal.Decimal
	FeeGrowthGlobal1   decimal.Decimal
	ProtocolFees       decimal.Decimal
	ProtocolFeesToken0 decimal.Decimal
	ProtocolFeesToken1 decimal.Decimal
}

// FromDomain projects a pool.Pool onto its replica row. HasCreated and
// gorm.Model are left to the caller/ORM to manage across writes.
func FromDomain(p *pool.Pool) PoolRow {
	return PoolRow{
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
	}
}

// ToDomain reconstructs a pool.Pool from its replica row. The tick bitmap
// is not part of the replica row, so the returned pool's Bitmap is nil; the
// per-tick state lives in the TickRow table.
func (r PoolRow) ToDomain() *pool.Pool {
	return &pool.Pool{
		PoolHash:           r.PoolHash,
		Token0:             pool.TokenClassKey(r.Token0),
		Token1:             pool.TokenClassKey(r.Token1),
		FeeTier:            r.FeeTier,
		TickSpacing:        r.TickSpacing,
		SqrtPrice:          r.SqrtPrice,
		Tick:               r.Tick,
		Liquidity:          r.Liquidity,
		FeeGrowthGlobal0:   r.FeeGrowthGlobal0,
		FeeGrowthGlobal1:   r.FeeGrowthGlobal1,
		ProtocolFees:       r.ProtocolFees,
		ProtocolFeesToken0: r.ProtocolFeesToken0,
		ProtocolFeesToken1: r.ProtocolFeesToken1,
	}
}

// TickRow mirrors tickstore.TickData for a single (poolHash, tick) pair.
type TickRow struct {
	gorm.Model
	PoolHash          string `gorm:"index:idx_pool_tick,unique"`
	Tick              int32  `gorm:"index:idx_pool_tick,unique"`
	LiquidityGross    decimal.Decimal
	LiquidityNet      decimal.Decimal
	FeeGrowthOutside0 decimal.Decimal
	FeeGrowthOutside1 decimal.Decimal
	Initialised       bool
}

func tickRowFromData(poolHash string, tick int32, d *tickstore.TickData) TickRow {
	return TickRow{
		PoolHash:          poolHash,
		Tick:              tick,
		LiquidityGross:    d.LiquidityGross,
		LiquidityNet:      d.LiquidityNet,
		FeeGrowthOutside0: d.FeeGrowthOutside0,
		FeeGrowthOutside1: d.FeeGrowthOutside1,
		Initialised:       d.Initialised,
	}
}

func (r TickRow) toData() *tickstore.TickData {
	return &tickstore.TickData{
		LiquidityGross:    r.LiquidityGross,
		LiquidityNet:      r.LiquidityNet,
		FeeGrowthOutside0: r.FeeGrowthOutside0,
		FeeGrowthOutside1: r.FeeGrowthOutside1,
		Initialised:       r.Initialised,
	}
}

// Store is the replica's read/write handle. Writes are best-effort mirrors
// run after the ledger transaction commits; a failure here never unwinds
// the ledger write, it only means the replica is stale until the next
// successful Flush.
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// FlushPool creates or updates a pool's replica row, following the
// teacher's has-created-flag idiom: the first flush creates the row, every
// later flush updates the mutable columns only.
func (s *Store) FlushPool(p *pool.Pool) error {
	var existing PoolRow
	err := s.db.Where("pool_hash = ?", p.PoolHash).First(&existing).Error
	if err == gorm.ErrRecordNotFound {
		row := FromDomain(p)
		row.HasCreated = true
		return s.db.Create(&row).Error
	}
	if err != nil {
		return err
	}
	return s.db.Model(&existing).Updates(map[string]interface{}{
		"sqrt_price":            p.SqrtPrice,
		"tick":                  p.Tick,
		"liquidity":             p.Liquidity,
		"fee_growth_global0":    p.FeeGrowthGlobal0,
		"fee_growth_global1":    p.FeeGrowthGlobal1,
		"protocol_fees":         p.ProtocolFees,
		"protocol_fees_token0":  p.ProtocolFeesToken0,
		"protocol_fees_token1":  p.ProtocolFeesToken1,
	}).Error
}

// FlushTick creates or updates a single tick's replica row.
func (s *Store) FlushTick(poolHash string, tick int32, d *tickstore.TickData) error {
	row := tickRowFromData(poolHash, tick, d)
	var existing TickRow
	err := s.db.Where("pool_hash = ? AND tick = ?", poolHash, tick).First(&existing).Error
	if err == gorm.ErrRecordNotFound {
		return s.db.Create(&row).Error
	}
	if err != nil {
		return err
	}
	return s.db.Model(&existing).Updates(map[string]interface{}{
		"liquidity_gross":     d.LiquidityGross,
		"liquidity_net":       d.LiquidityNet,
		"fee_growth_outside0": d.FeeGrowthOutside0,
		"fee_growth_outside1": d.FeeGrowthOutside1,
		"initialised":         d.Initialised,
	}).Error
}

// LoadTick reads a single tick's replica row, if present.
func (s *Store) LoadTick(poolHash string, tick int32) (*tickstore.TickData, bool, error) {
	var row TickRow
	err := s.db.Where("pool_hash = ? AND tick = ?", poolHash, tick).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return row.toData(), true, nil
}

// LoadPool reads a pool's replica row, if present.
func (s *Store) LoadPool(poolHash string) (*pool.Pool, bool, error) {
	var row PoolRow
	err := s.db.Where("pool_hash = ?", poolHash).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return row.ToDomain(), true, nil
}
