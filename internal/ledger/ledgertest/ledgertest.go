// Package ledgertest is an in-memory fake of ledger.Ctx for tests, with
// real composite-key partial matching and page-chain pagination so tests
// can exercise the bookmark protocol's empty-page and partial-consumption
// edge cases without a real ledger collaborator.
package ledgertest

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"github.com/dexlabs/clamm-core/internal/dexerrors"
	"github.com/dexlabs/clamm-core/internal/ledger"
)

type entry struct {
	key   string
	value []byte
}

// Ctx is an in-memory ledger.Ctx implementation. PageSize, when positive,
// overrides how many matching entries
// GetObjectsByPartialCompositeKeyWithPagination returns per call; zero means
// the caller's pageSize is used, and if that is not positive either, all
// results come back in one page.
type Ctx struct {
	PageSize int
	objects  map[string][]byte
	order    []string
}

func New() *Ctx {
	return &Ctx{objects: map[string][]byte{}}
}

func (c *Ctx) GetObjectByKey(_ context.Context, compositeKey string, out interface{}) error {
	raw, ok := c.objects[compositeKey]
	if !ok {
		return dexerrors.NotFound("no object at key " + compositeKey)
	}
	return json.Unmarshal(raw, out)
}

func (c *Ctx) PutObject(_ context.Context, obj ledger.KeyedObject) error {
	key := obj.Key()
	raw, err := json.Marshal(obj)
	if err != nil {
		return err
	}
	if _, exists := c.objects[key]; !exists {
		c.order = append(c.order, key)
	}
	c.objects[key] = raw
	return nil
}

func (c *Ctx) CreateCompositeKey(indexKey string, keyParts []string) (string, error) {
	return indexKey + "\x00" + strings.Join(keyParts, "\x00"), nil
}

// GetObjectsByPartialCompositeKeyWithPagination returns the entries whose
// key starts with indexKey\x00partialKey..., in key order, paginated by
// PageSize. The cursor is the offset into the sorted match set, encoded as
// a decimal string; empty cursor means start from the beginning.
func (c *Ctx) GetObjectsByPartialCompositeKeyWithPagination(
	_ context.Context, indexKey string, partialKey []string, cursor string, pageSize int32,
) ([][]byte, string, error) {
	prefix := indexKey + "\x00"
	if len(partialKey) > 0 {
		prefix += strings.Join(partialKey, "\x00") + "\x00"
	}

	var matches []string
	for _, k := range c.order {
		if strings.HasPrefix(k+"\x00", prefix) || strings.HasPrefix(k, prefix) {
			matches = append(matches, k)
		}
	}
	sort.Strings(matches)

	offset := 0
	if cursor != "" {
		v, err := strconv.Atoi(cursor)
		if err != nil || v < 0 {
			return nil, "", dexerrors.Validationf("ledgertest: malformed cursor %q", cursor)
		}
		offset = v
	}

	size := int(pageSize)
	if c.PageSize > 0 {
		size = c.PageSize
	}
	if size <= 0 {
		size = len(matches)
	}

	end := offset + size
	if end > len(matches) {
		end = len(matches)
	}
	if offset > len(matches) {
		offset = len(matches)
	}

	page := matches[offset:end]
	results := make([][]byte, 0, len(page))
	for _, k := range page {
		results = append(results, c.objects[k])
	}

	nextCursor := ""
	if end < len(matches) {
		nextCursor = strconv.Itoa(end)
	}
	return results, nextCursor, nil
}

// Seed pre-populates the fake store; used by tests to construct page
// chains with specific shapes (e.g. an empty page in the middle).
func (c *Ctx) Seed(obj ledger.KeyedObject) error {
	return c.PutObject(context.Background(), obj)
}

// FeeGate is a fake fee-gate predicate for tests. With a nil Allow it
// returns Err for every code (so a nil Allow and nil Err allow everything).
// With a non-nil Allow it allows the listed codes and fails the rest with
// Err, or with Unauthorized when Err is nil.
type FeeGate struct {
	Allow map[ledger.FeeCode]bool
	Err   error
}

func (g FeeGate) Check(_ context.Context, code ledger.FeeCode) error {
	if g.Allow == nil {
		return g.Err
	}
	if g.Allow[code] {
		return nil
	}
	if g.Err != nil {
		return g.Err
	}
	return dexerrors.Unauthorized("caller not in authorities")
}
