// Package positionpaging implements the bookmark protocol from §4.8: paging
// through a user's positions across a ledger-backed page chain whose pages
// can be empty, preserving a resumable cursor across calls.
package positionpaging

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/dexlabs/clamm-core/internal/dexerrors"
)

// PositionRef identifies one position within an owner record's
// tickRangeMap, per §4.8's flattening rule.
type PositionRef struct {
	PoolHash   string
	TickRange  string
	PositionID string
}

// OwnerRecord is one ledger page entry: a DexPositionOwner-shaped record
// whose tickRangeMap holds an ordered list of position IDs per tick range.
// Flatten preserves insertion order of the map and list order within each
// entry, per §4.8 step 3.
type OwnerRecord struct {
	PoolHash     string
	TickRanges   []string            // insertion order of tickRangeMap
	PositionsFor map[string][]string // tickRange -> ordered positionIds
}

func (r OwnerRecord) Flatten() []PositionRef {
	var out []PositionRef
	for _, tr := range r.TickRanges {
		for _, id := range r.PositionsFor[tr] {
			out = append(out, PositionRef{PoolHash: r.PoolHash, TickRange: tr, PositionID: id})
		}
	}
	return out
}

// Page is one fetched ledger page: its owner records, in order, and the
// cursor to the next page (empty means this is the last page).
type Page struct {
	Records    []OwnerRecord
	NextCursor string
}

// Store is the seam onto the ledger's partial-composite-key pagination
// call, per §6.
type Store interface {
	FetchPage(ctx context.Context, user string, cursor string) (Page, error)
}

// Bookmark is the parsed `<chainBookmark>|<localBookmark>` cursor from §3.
type Bookmark struct {
	Chain string
	Local int
}

// ParseBookmark parses the transient bookmark string. Empty string means
// "from the beginning".
func ParseBookmark(s string) (Bookmark, error) {
	if s == "" {
		return Bookmark{}, nil
	}
	idx := strings.LastIndex(s, "|")
	if idx < 0 {
		return Bookmark{}, dexerrors.Validationf("malformed bookmark %q", s)
	}
	chain, localStr := s[:idx], s[idx+1:]
	if localStr == "" {
		return Bookmark{Chain: chain}, nil
	}
	local, err := strconv.Atoi(localStr)
	if err != nil || local < 0 {
		return Bookmark{}, dexerrors.Validationf("malformed bookmark %q: bad local offset", s)
	}
	return Bookmark{Chain: chain, Local: local}, nil
}

func (b Bookmark) String() string {
	if b.Chain == "" && b.Local == 0 {
		return ""
	}
	return fmt.Sprintf("%s|%d", b.Chain, b.Local)
}

// GetUserPositions runs the §4.8 algorithm: fetch pages starting at
// bookmark, skipping already-consumed positions, until limit positions have
// been collected or the chain is exhausted.
func GetUserPositions(ctx context.Context, store Store, user string, limit int, bookmark string) ([]PositionRef, string, error) {
	start, err := ParseBookmark(bookmark)
	if err != nil {
		return nil, "", err
	}

	chain := start.Chain
	toSkip := start.Local
	required := limit
	var results []PositionRef
	isLast := false

	// localBookmark tracks the in-page offset reached within the CURRENT
	// chain cursor (positions skipped plus positions returned on that page),
	// so the final bookmark can report (chain, localBookmark) rather than
	// the simplified "+limit" formula from §4.8 step 5, which only holds
	// when results come from a single page.
	localBookmark := start.Local

	first := true
	for required > 0 {
		if !first && chain == "" {
			break
		}
		first = false

		page, err := store.FetchPage(ctx, user, chain)
		if err != nil {
			return nil, "", err
		}

		consumedThisPage := 0
		pageExhausted := false

		for _, record := range page.Records {
			flat := record.Flatten()
			if len(flat) == 0 {
				continue
			}
			if toSkip >= len(flat) {
				toSkip -= len(flat)
				consumedThisPage += len(flat)
				continue
			}
			consumedThisPage += toSkip
			for i := toSkip; i < len(flat); i++ {
				if required == 0 {
					break
				}
				results = append(results, flat[i])
				required--
				consumedThisPage++
			}
			toSkip = 0
			if required == 0 {
				break
			}
		}

		totalInPage := 0
		for _, record := range page.Records {
			totalInPage += len(record.Flatten())
		}
		pageExhausted = consumedThisPage >= totalInPage

		if pageExhausted {
			if page.NextCursor == "" {
				isLast = true
				chain = ""
				localBookmark = 0
				break
			}
			chain = page.NextCursor
			localBookmark = 0
			if required == 0 {
				isLast = true
				break
			}
			continue
		}

		// Page had more after what we consumed (required hit zero
		// mid-page): record how far into THIS page we got.
		localBookmark = consumedThisPage
		isLast = false
		break
	}

	if toSkip > 0 {
		return nil, "", dexerrors.Validation("bookmark points past the end of available data")
	}

	if chain == "" && isLast {
		return results, "", nil
	}
	if isLast {
		return results, Bookmark{Chain: chain}.String(), nil
	}
	return results, Bookmark{Chain: chain, Local: localBookmark}.String(), nil
}
