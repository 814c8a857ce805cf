// Package tickbitmap implements the sparse indicator over initialized ticks
// described in §4.3: a mapping from 16-bit word index to 256-bit word, with
// a next-initialized-tick search bounded to O(1) work per call.
package tickbitmap

import (
	"math/big"

	"github.com/dexlabs/clamm-core/internal/fixedpoint"
)

// Bitmap maps a word index to its 256-bit word. Bit n of word w is set iff
// tick w*256+n (in tickSpacing-compressed units) is initialized.
type Bitmap map[int16]*big.Int

// Position returns the word index and in-word bit position for the
// tickSpacing-compressed form of tick.
func Position(tick int32, tickSpacing int32) (wordPos int16, bitPos uint8) {
	compressed := compress(tick, tickSpacing)
	wordPos = int16(compressed >> 8)
	bitPos = uint8(compressed & 0xff)
	return wordPos, bitPos
}

// compress floor-divides tick by tickSpacing.
func compress(tick, tickSpacing int32) int32 {
	q := tick / tickSpacing
	if tick%tickSpacing != 0 && (tick < 0) != (tickSpacing < 0) {
		q--
	}
	return q
}

// IsInitialized reports whether tick's bit is set.
func IsInitialized(bm Bitmap, tick, tickSpacing int32) bool {
	wordPos, bitPos := Position(tick, tickSpacing)
	word, ok := bm[wordPos]
	if !ok {
		return false
	}
	return word.Bit(int(bitPos)) == 1
}

// FlipTick toggles tick's bit, allocating its word on first use.
func FlipTick(bm Bitmap, tick, tickSpacing int32) {
	wordPos, bitPos := Position(tick, tickSpacing)
	word, ok := bm[wordPos]
	if !ok {
		word = new(big.Int)
		bm[wordPos] = word
	}
	mask := new(big.Int).Lsh(big.NewInt(1), uint(bitPos))
	word.Xor(word, mask)
}

// NextInitializedTickInSameWord returns the closest initialized tick in the
// current 256-bit word in the direction of travel (zeroForOne scans toward
// lower ticks). If none is found within the word, it returns the word
// boundary tick with initialized=false, bounding the work per swap-loop
// iteration to this one word lookup.
//
// sqrtPrice is accepted for call-site parity with §4.7 step 2's signature;
// the bitmap search itself only depends on tick position, so it is unused
// here.
func NextInitializedTickInSameWord(bm Bitmap, tick int32, tickSpacing int32, zeroForOne bool, _ fixedpoint.Decimal) (int32, bool) {
	compressed := compress(tick, tickSpacing)

	if zeroForOne {
		wordPos, bitPos := int16(compressed>>8), uint8(compressed&0xff)
		word := wordOrZero(bm, wordPos)
		mask := lowMaskInclusive(bitPos)
		masked := new(big.Int).And(word, mask)
		if masked.Sign() != 0 {
			msb := masked.BitLen() - 1
			next := compressed - int32(int(bitPos)-msb)
			return next * tickSpacing, true
		}
		next := compressed - int32(bitPos)
		return next * tickSpacing, false
	}

	compressed++
	wordPos, bitPos := int16(compressed>>8), uint8(compressed&0xff)
	word := wordOrZero(bm, wordPos)
	mask := highMaskInclusive(bitPos)
	masked := new(big.Int).And(word, mask)
	if masked.Sign() != 0 {
		lsb := int(masked.TrailingZeroBits())
		next := compressed + int32(lsb-int(bitPos))
		return next * tickSpacing, true
	}
	next := compressed + int32(255-int(bitPos))
	return next * tickSpacing, false
}

func wordOrZero(bm Bitmap, wordPos int16) *big.Int {
	if word, ok := bm[wordPos]; ok {
		return word
	}
	return new(big.Int)
}

// lowMaskInclusive returns the mask of bits [0, bitPos].
func lowMaskInclusive(bitPos uint8) *big.Int {
	return new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), uint(bitPos)+1), big.NewInt(1))
}

// highMaskInclusive returns the mask of bits [bitPos, 255].
func highMaskInclusive(bitPos uint8) *big.Int {
	full := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	lower := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), uint(bitPos)), big.NewInt(1))
	return new(big.Int).Xor(full, lower)
}
