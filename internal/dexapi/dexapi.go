// Package dexapi exposes the three callable operations from §6 — swap,
// configurePoolDexFee, getUserPositions — backed by the ledger collaborator
// as its system of record. The mutating operations are gated by the fee
// predicate; the read-only getUserPositions is not.
package dexapi

import (
	"context"
	"encoding/json"
	"math/big"
	"strconv"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/dexlabs/clamm-core/internal/dexerrors"
	"github.com/dexlabs/clamm-core/internal/fixedpoint"
	"github.com/dexlabs/clamm-core/internal/ledger"
	"github.com/dexlabs/clamm-core/internal/ledgerreplica"
	"github.com/dexlabs/clamm-core/internal/pool"
	"github.com/dexlabs/clamm-core/internal/positionmgr"
	"github.com/dexlabs/clamm-core/internal/positionpaging"
	"github.com/dexlabs/clamm-core/internal/swapengine"
	"github.com/dexlabs/clamm-core/internal/tickbitmap"
	"github.com/dexlabs/clamm-core/internal/tickstore"
)

// PoolRecord is the ledger-persisted form of a pool, keyed the way §6
// specifies: INDEX_KEY, [token0, token1, feeTier.toString()].
type PoolRecord struct {
	PoolHash           string
	Token0             string
	Token1             string
	FeeTier            fixedpoint.Decimal
	TickSpacing        int32
	SqrtPrice          fixedpoint.Decimal
	Tick               int32
	Liquidity          fixedpoint.Decimal
	FeeGrowthGlobal0   fixedpoint.Decimal
	FeeGrowthGlobal1   fixedpoint.Decimal
	ProtocolFees       fixedpoint.Decimal
	ProtocolFeesToken0 fixedpoint.Decimal
	ProtocolFeesToken1 fixedpoint.Decimal
	BitmapWords        map[int16]string // big.Int words, string-encoded for JSON
}

// Key matches the composite key §6 specifies for pools: INDEX_KEY,
// [token0, token1, feeTier.toString()] — not the pool hash, so loadPool can
// address a pool by its trading pair without knowing the hash in advance.
func (r PoolRecord) Key() string {
	return ledger.PoolIndexKey + "\x00" + r.Token0 + "\x00" + r.Token1 + "\x00" + r.FeeTier.String()
}

// TickRecord is the ledger-persisted form of a single tick.
type TickRecord struct {
	PoolHash          string
	Tick              int32
	LiquidityGross    fixedpoint.Decimal
	LiquidityNet      fixedpoint.Decimal
	FeeGrowthOutside0 fixedpoint.Decimal
	FeeGrowthOutside1 fixedpoint.Decimal
	Initialised       bool
}

func (r TickRecord) Key() string {
	return "DEXTICK\x00" + r.PoolHash + "\x00" + tickKeyPart(r.Tick)
}

// Service wires the ledger collaborator and fee gate into the three
// callable operations. Its limiter bounds how often the fee gate is invoked
// per second — a defensive wrapper around an otherwise uncontrolled
// external dependency, the same shape as a rate-limited RPC client.
type Service struct {
	Ledger  ledger.Ctx
	FeeGate ledger.FeeGate
	limiter *rate.Limiter

	// Replica is an optional local read replica pool/tick writes are
	// mirrored to after the ledger write commits. Nil disables mirroring;
	// a mirror failure is logged but never fails the call, since the
	// ledger remains the system of record.
	Replica *ledgerreplica.Store
}

// New constructs a Service whose fee-gate calls are capped at feeGateQPS
// requests per second (burst of 1).
func New(led ledger.Ctx, gate ledger.FeeGate, feeGateQPS float64) *Service {
	return &Service{
		Ledger:  led,
		FeeGate: gate,
		limiter: rate.NewLimiter(rate.Limit(feeGateQPS), 1),
	}
}

func (s *Service) gate(ctx context.Context, code ledger.FeeCode) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return dexerrors.Unauthorized("fee gate rate limit: " + err.Error())
	}
	return ledger.RequireFee(ctx, s.FeeGate, code)
}

// SwapRequest carries a swap call's parameters, per §6.
type SwapRequest struct {
	Token0         string
	Token1         string
	FeeTier        fixedpoint.Decimal
	Amount         fixedpoint.Decimal
	ExactInput     bool
	ZeroForOne     bool
	SqrtPriceLimit *fixedpoint.Decimal
	Recipient      string
}

// Swap executes §4.7 against the pool named by (token0, token1, feeTier).
func (s *Service) Swap(ctx context.Context, req SwapRequest) (swapengine.Result, error) {
	if err := s.gate(ctx, ledger.FeeSwap); err != nil {
		return swapengine.Result{}, err
	}

	p, err := s.loadPool(ctx, req.Token0, req.Token1, req.FeeTier)
	if err != nil {
		return swapengine.Result{}, err
	}

	amountSpecified := req.Amount
	if !req.ExactInput {
		amountSpecified = req.Amount.Neg()
	}

	store := &tickStore{ledger: s.Ledger, replica: s.Replica}
	engineReq := swapengine.Request{
		ZeroForOne:      req.ZeroForOne,
		AmountSpecified: amountSpecified,
	}
	if req.SqrtPriceLimit != nil {
		engineReq.SqrtPriceLimit = *req.SqrtPriceLimit
		engineReq.HasSqrtPriceLimit = true
	}

	result, err := swapengine.Execute(ctx, store, p, engineReq)
	if err != nil {
		return swapengine.Result{}, err
	}

	if err := s.savePool(ctx, p); err != nil {
		return swapengine.Result{}, err
	}

	if logrus.GetLevel() >= logrus.InfoLevel {
		logrus.Infof("swap executed: pool=%s recipient=%s amount0=%s amount1=%s", p.PoolHash, req.Recipient, result.Amount0, result.Amount1)
	}
	return result, nil
}

// ConfigurePoolDexFeeRequest carries §4.6's protocol-fee configuration
// call, per §6.
type ConfigurePoolDexFeeRequest struct {
	Token0      string
	Token1      string
	FeeTier     fixedpoint.Decimal
	ProtocolFee fixedpoint.Decimal
}

// ConfigurePoolDexFee sets a pool's protocol-fee fraction, per §4.6/§4.9.
// Authorization (caller in `authorities`) is enforced entirely by the fee
// gate; this method does not re-derive it.
func (s *Service) ConfigurePoolDexFee(ctx context.Context, req ConfigurePoolDexFeeRequest) error {
	if err := s.gate(ctx, ledger.FeeCreatePool); err != nil {
		return err
	}

	p, err := s.loadPool(ctx, req.Token0, req.Token1, req.FeeTier)
	if err != nil {
		return err
	}
	if err := p.ConfigureProtocolFee(req.ProtocolFee); err != nil {
		return err
	}
	return s.savePool(ctx, p)
}

// AddLiquidityRequest carries a mint call's parameters: the thin
// liquidity wrapper named alongside swap/configurePoolDexFee/getUserPositions
// in §1 as exposed by the core, not the hard part of it.
type AddLiquidityRequest struct {
	Owner     string
	Token0    string
	Token1    string
	FeeTier   fixedpoint.Decimal
	TickLower int32
	TickUpper int32
	Liquidity fixedpoint.Decimal
}

// AddLiquidityResult is the position minted or increased by the call.
type AddLiquidityResult struct {
	PositionID string
	Liquidity  fixedpoint.Decimal
}

// AddLiquidity mints or increases a position's liquidity, updating the
// range's boundary ticks and the pool's active liquidity the same way the
// teacher's CorePool.updatePosition does (tick.Update on both bounds, then
// feeGrowthInside, then position.Update), generalized to the ledger-backed
// tick store. Token amounts owed for the mint are out of scope per §1's
// non-goal on token transfer primitives — this only maintains bookkeeping.
func (s *Service) AddLiquidity(ctx context.Context, req AddLiquidityRequest) (AddLiquidityResult, error) {
	if err := s.gate(ctx, ledger.FeeAddLiquidity); err != nil {
		return AddLiquidityResult{}, err
	}
	if err := fixedpoint.RequirePositive("liquidity", req.Liquidity); err != nil {
		return AddLiquidityResult{}, dexerrors.Validation(err.Error())
	}
	if req.TickLower >= req.TickUpper {
		return AddLiquidityResult{}, dexerrors.Validationf("tickLower %d must be below tickUpper %d", req.TickLower, req.TickUpper)
	}

	p, err := s.loadPool(ctx, req.Token0, req.Token1, req.FeeTier)
	if err != nil {
		return AddLiquidityResult{}, err
	}

	store := &tickStore{ledger: s.Ledger, replica: s.Replica}
	maxLiquidityPerTick := pool.TickSpacingToMaxLiquidityPerTick(p.TickSpacing)

	lowerData, _, err := store.GetTick(ctx, p.PoolHash, req.TickLower)
	if err != nil {
		return AddLiquidityResult{}, err
	}
	lowerFlipped, err := tickstore.Update(lowerData, req.Liquidity, p.Tick, req.TickLower, p.FeeGrowthGlobal0, p.FeeGrowthGlobal1, false, maxLiquidityPerTick)
	if err != nil {
		return AddLiquidityResult{}, err
	}
	if err := store.PutTick(ctx, p.PoolHash, req.TickLower, lowerData); err != nil {
		return AddLiquidityResult{}, err
	}

	upperData, _, err := store.GetTick(ctx, p.PoolHash, req.TickUpper)
	if err != nil {
		return AddLiquidityResult{}, err
	}
	upperFlipped, err := tickstore.Update(upperData, req.Liquidity, p.Tick, req.TickUpper, p.FeeGrowthGlobal0, p.FeeGrowthGlobal1, true, maxLiquidityPerTick)
	if err != nil {
		return AddLiquidityResult{}, err
	}
	if err := store.PutTick(ctx, p.PoolHash, req.TickUpper, upperData); err != nil {
		return AddLiquidityResult{}, err
	}

	if lowerFlipped {
		tickbitmap.FlipTick(p.Bitmap, req.TickLower, p.TickSpacing)
	}
	if upperFlipped {
		tickbitmap.FlipTick(p.Bitmap, req.TickUpper, p.TickSpacing)
	}

	feeGrowthInside0, feeGrowthInside1 := tickstore.FeeGrowthInside(
		lowerData, upperData, p.Tick, req.TickLower, req.TickUpper, p.FeeGrowthGlobal0, p.FeeGrowthGlobal1)

	pos, err := s.loadOrCreatePosition(ctx, req.Owner, p.PoolHash, req.TickLower, req.TickUpper)
	if err != nil {
		return AddLiquidityResult{}, err
	}
	if err := pos.Update(req.Liquidity, feeGrowthInside0, feeGrowthInside1); err != nil {
		return AddLiquidityResult{}, err
	}

	if p.Tick >= req.TickLower && p.Tick < req.TickUpper {
		newLiquidity, err := pool.AddDelta(p.Liquidity, req.Liquidity)
		if err != nil {
			return AddLiquidityResult{}, err
		}
		p.Liquidity = newLiquidity
	}

	if err := s.Ledger.PutObject(ctx, positionToRecord(pos)); err != nil {
		return AddLiquidityResult{}, err
	}
	if err := s.appendOwnerIndex(ctx, req.Owner, p.PoolHash, req.TickLower, req.TickUpper, pos.ID); err != nil {
		return AddLiquidityResult{}, err
	}
	if err := s.savePool(ctx, p); err != nil {
		return AddLiquidityResult{}, err
	}

	return AddLiquidityResult{PositionID: pos.ID, Liquidity: pos.Liquidity}, nil
}

// GetUserPositionsRequest carries §4.8's paging call.
type GetUserPositionsRequest struct {
	User     string
	Limit    int
	Bookmark string
}

// GetUserPositionsResponse is the paged result, per §4.8.
type GetUserPositionsResponse struct {
	Positions []positionpaging.PositionRef
	Bookmark  string
}

// GetUserPositions pages through a user's positions, per §4.8. It is not
// gated by the fee predicate: §6 only lists CreatePool, AddLiquidity, Swap,
// RemoveLiquidity, CollectPositionFees and TransferDexPosition as gated
// codes, and a read-only listing call is none of those.
func (s *Service) GetUserPositions(ctx context.Context, req GetUserPositionsRequest) (GetUserPositionsResponse, error) {
	store := &positionStore{ledger: s.Ledger}
	refs, bookmark, err := positionpaging.GetUserPositions(ctx, store, req.User, req.Limit, req.Bookmark)
	if err != nil {
		return GetUserPositionsResponse{}, err
	}
	return GetUserPositionsResponse{Positions: refs, Bookmark: bookmark}, nil
}

func (s *Service) loadPool(ctx context.Context, token0, token1 string, feeTier fixedpoint.Decimal) (*pool.Pool, error) {
	poolHash := pool.GenPoolHash(pool.TokenClassKey(token0), pool.TokenClassKey(token1), feeTier)
	compositeKey, err := s.Ledger.CreateCompositeKey(ledger.PoolIndexKey, []string{token0, token1, feeTier.String()})
	if err != nil {
		return nil, err
	}

	var rec PoolRecord
	if err := s.Ledger.GetObjectByKey(ctx, compositeKey, &rec); err != nil {
		return nil, dexerrors.NotFound("pool " + poolHash + " not found")
	}
	return recordToPool(rec), nil
}

func (s *Service) savePool(ctx context.Context, p *pool.Pool) error {
	if err := s.Ledger.PutObject(ctx, poolToRecord(p)); err != nil {
		return err
	}
	if s.Replica != nil {
		if err := s.Replica.FlushPool(p); err != nil {
			logrus.Warnf("replica flush pool %s: %v", p.PoolHash, err)
		}
	}
	return nil
}

func poolToRecord(p *pool.Pool) PoolRecord {
	words := make(map[int16]string, len(p.Bitmap))
	for pos, w := range p.Bitmap {
		words[pos] = w.Text(16)
	}
	return PoolRecord{
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

func recordToPool(r PoolRecord) *pool.Pool {
	p := &pool.Pool{
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
	p.Bitmap = decodeBitmap(r.BitmapWords)
	return p
}

// tickStore adapts the ledger collaborator to tickstore.Store, mirroring
// every write to the optional local replica the same way savePool does.
type tickStore struct {
	ledger  ledger.Ctx
	replica *ledgerreplica.Store
}

func (t *tickStore) GetTick(ctx context.Context, poolHash string, tick int32) (*tickstore.TickData, bool, error) {
	key := "DEXTICK\x00" + poolHash + "\x00" + tickKeyPart(tick)
	var rec TickRecord
	err := t.ledger.GetObjectByKey(ctx, key, &rec)
	if dexerrors.Is(err, dexerrors.KindNotFound) {
		return &tickstore.TickData{
			LiquidityGross:    fixedpoint.Zero,
			LiquidityNet:      fixedpoint.Zero,
			FeeGrowthOutside0: fixedpoint.Zero,
			FeeGrowthOutside1: fixedpoint.Zero,
		}, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &tickstore.TickData{
		LiquidityGross:    rec.LiquidityGross,
		LiquidityNet:      rec.LiquidityNet,
		FeeGrowthOutside0: rec.FeeGrowthOutside0,
		FeeGrowthOutside1: rec.FeeGrowthOutside1,
		Initialised:       rec.Initialised,
	}, rec.Initialised, nil
}

func (t *tickStore) PutTick(ctx context.Context, poolHash string, tick int32, data *tickstore.TickData) error {
	if err := t.ledger.PutObject(ctx, TickRecord{
		PoolHash:          poolHash,
		Tick:              tick,
		LiquidityGross:    data.LiquidityGross,
		LiquidityNet:      data.LiquidityNet,
		FeeGrowthOutside0: data.FeeGrowthOutside0,
		FeeGrowthOutside1: data.FeeGrowthOutside1,
		Initialised:       data.Initialised,
	}); err != nil {
		return err
	}
	if t.replica != nil {
		if err := t.replica.FlushTick(poolHash, tick, data); err != nil {
			logrus.Warnf("replica flush tick %s/%d: %v", poolHash, tick, err)
		}
	}
	return nil
}

// DexPositionOwnerRecord mirrors the ledger's owner-keyed position index
// from §4.8: one record per (user, poolHash) holding many positions across
// tick ranges.
type DexPositionOwnerRecord struct {
	User       string
	PoolHash   string
	TickRanges []string
	Positions  map[string][]string
}

func (r DexPositionOwnerRecord) Key() string {
	return ledger.PositionOwnerIndexKey + "\x00" + r.User + "\x00" + r.PoolHash
}

// positionIndexKey is the index name positions are addressed by ID under,
// mirroring the DEXPOOL/DEXTICK/DEXPOSITIONOWNER naming convention.
const positionIndexKey = "DEXPOSITION"

// PositionRecord is the ledger-persisted form of a liquidity position.
type PositionRecord struct {
	ID                   string
	Owner                string
	PoolHash             string
	TickLower            int32
	TickUpper            int32
	Liquidity            fixedpoint.Decimal
	FeeGrowthInside0Last fixedpoint.Decimal
	FeeGrowthInside1Last fixedpoint.Decimal
	TokensOwed0          fixedpoint.Decimal
	TokensOwed1          fixedpoint.Decimal
}

func (r PositionRecord) Key() string {
	return positionIndexKey + "\x00" + r.ID
}

func positionToRecord(p *positionmgr.Position) PositionRecord {
	return PositionRecord{
		ID:                   p.ID,
		Owner:                p.Owner,
		PoolHash:             p.PoolHash,
		TickLower:            p.TickLower,
		TickUpper:            p.TickUpper,
		Liquidity:            p.Liquidity,
		FeeGrowthInside0Last: p.FeeGrowthInside0Last,
		FeeGrowthInside1Last: p.FeeGrowthInside1Last,
		TokensOwed0:          p.TokensOwed0,
		TokensOwed1:          p.TokensOwed1,
	}
}

func recordToPosition(r PositionRecord) *positionmgr.Position {
	return &positionmgr.Position{
		ID:                   r.ID,
		Owner:                r.Owner,
		PoolHash:             r.PoolHash,
		TickLower:            r.TickLower,
		TickUpper:            r.TickUpper,
		Liquidity:            r.Liquidity,
		FeeGrowthInside0Last: r.FeeGrowthInside0Last,
		FeeGrowthInside1Last: r.FeeGrowthInside1Last,
		TokensOwed0:          r.TokensOwed0,
		TokensOwed1:          r.TokensOwed1,
	}
}

// loadOrCreatePosition returns the owner's existing position over
// [tickLower, tickUpper] if one is already indexed, or a freshly minted one
// otherwise — the same GetPositionAndInitIfAbsent idiom the teacher's
// updatePosition uses, generalized to a ledger-backed lookup through the
// owner index.
func (s *Service) loadOrCreatePosition(ctx context.Context, owner, poolHash string, tickLower, tickUpper int32) (*positionmgr.Position, error) {
	ownerKey, err := s.Ledger.CreateCompositeKey(ledger.PositionOwnerIndexKey, []string{owner, poolHash})
	if err != nil {
		return nil, err
	}

	var ownerRec DexPositionOwnerRecord
	err = s.Ledger.GetObjectByKey(ctx, ownerKey, &ownerRec)
	if err != nil && !dexerrors.Is(err, dexerrors.KindNotFound) {
		return nil, err
	}
	if err == nil {
		if ids := ownerRec.Positions[tickRangeKey(tickLower, tickUpper)]; len(ids) > 0 {
			posKey, err := s.Ledger.CreateCompositeKey(positionIndexKey, []string{ids[0]})
			if err != nil {
				return nil, err
			}
			var rec PositionRecord
			if err := s.Ledger.GetObjectByKey(ctx, posKey, &rec); err != nil {
				return nil, err
			}
			return recordToPosition(rec), nil
		}
	}
	return positionmgr.New(owner, poolHash, tickLower, tickUpper), nil
}

// appendOwnerIndex records positionID under (owner, poolHash)'s tick-range
// index, per §4.8's tickRangeMap shape, so getUserPositions has it to page
// over.
func (s *Service) appendOwnerIndex(ctx context.Context, owner, poolHash string, tickLower, tickUpper int32, positionID string) error {
	ownerKey, err := s.Ledger.CreateCompositeKey(ledger.PositionOwnerIndexKey, []string{owner, poolHash})
	if err != nil {
		return err
	}

	rec := DexPositionOwnerRecord{User: owner, PoolHash: poolHash, Positions: map[string][]string{}}
	err = s.Ledger.GetObjectByKey(ctx, ownerKey, &rec)
	if err != nil && !dexerrors.Is(err, dexerrors.KindNotFound) {
		return err
	}
	if rec.Positions == nil {
		rec.Positions = map[string][]string{}
	}
	rec.User, rec.PoolHash = owner, poolHash

	rangeKey := tickRangeKey(tickLower, tickUpper)
	for _, id := range rec.Positions[rangeKey] {
		if id == positionID {
			return s.Ledger.PutObject(ctx, rec)
		}
	}
	if len(rec.Positions[rangeKey]) == 0 {
		rec.TickRanges = append(rec.TickRanges, rangeKey)
	}
	rec.Positions[rangeKey] = append(rec.Positions[rangeKey], positionID)
	return s.Ledger.PutObject(ctx, rec)
}

func tickRangeKey(tickLower, tickUpper int32) string {
	return strconv.FormatInt(int64(tickLower), 10) + ":" + strconv.FormatInt(int64(tickUpper), 10)
}

// positionStore adapts the ledger collaborator's partial-composite-key
// pagination to positionpaging.Store.
type positionStore struct {
	ledger ledger.Ctx
}

const defaultPageSize = 10

func (s *positionStore) FetchPage(ctx context.Context, user string, cursor string) (positionpaging.Page, error) {
	raws, next, err := s.ledger.GetObjectsByPartialCompositeKeyWithPagination(
		ctx, ledger.PositionOwnerIndexKey, []string{user}, cursor, defaultPageSize)
	if err != nil {
		return positionpaging.Page{}, err
	}

	records := make([]positionpaging.OwnerRecord, 0, len(raws))
	for _, raw := range raws {
		var rec DexPositionOwnerRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return positionpaging.Page{}, dexerrors.Inconsistentf("decoding owner record: %v", err)
		}
		records = append(records, positionpaging.OwnerRecord{
			PoolHash:     rec.PoolHash,
			TickRanges:   rec.TickRanges,
			PositionsFor: rec.Positions,
		})
	}
	return positionpaging.Page{Records: records, NextCursor: next}, nil
}

func decodeBitmap(words map[int16]string) tickbitmap.Bitmap {
	bm := make(tickbitmap.Bitmap, len(words))
	for pos, text := range words {
		w := new(big.Int)
		w.SetString(text, 16)
		bm[pos] = w
	}
	return bm
}

func tickKeyPart(tick int32) string {
	if tick < 0 {
		return "n" + strconv.FormatInt(int64(-tick), 10)
	}
	return strconv.FormatInt(int64(tick), 10)
}
