package identity

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/google/uuid"

	"github.com/hurou927/docmap/internal/doctype"
)

func uuid4() (uuid.UUID, error) { return uuid.NewRandom() }
func uuid7() (uuid.UUID, error) { return uuid.NewV7() }

type guidGenerator struct {
	next func() (uuid.UUID, error)
}

func (g *guidGenerator) Assign(_ context.Context, current any) (any, bool, error) {
	switch v := current.(type) {
	case uuid.UUID:
		if v != uuid.Nil {
			return v, false, nil
		}
	case string:
		if v != "" {
			id, err := uuid.Parse(v)
			if err != nil {
				return nil, false, fmt.Errorf("parsing document id %q: %w", v, err)
			}
			if id != uuid.Nil {
				return id, false, nil
			}
		}
	case nil:
	default:
		return nil, false, fmt.Errorf("guid generator cannot assign to %T", current)
	}

	id, err := g.next()
	if err != nil {
		return nil, false, fmt.Errorf("generating uuid: %w", err)
	}
	return id, true, nil
}

// hiloGenerator hands out hi*maxLo+lo for lo in [1, maxLo], then fetches a new hi.
type hiloGenerator struct {
	key      doctype.ValueType
	maxLo    int64
	sequence Sequence

	mu sync.Mutex
	hi int64
	lo int64
	// started is false until the first hi has been reserved
	started bool
}

func (g *hiloGenerator) Assign(ctx context.Context, current any) (any, bool, error) {
	existing, err := asInt64(current)
	if err != nil {
		return nil, false, err
	}
	if existing != 0 {
		return g.typed(existing)
	}

	next, err := g.next(ctx)
	if err != nil {
		return nil, false, err
	}
	id, _, err := g.typed(next)
	return id, true, err
}

func (g *hiloGenerator) next(ctx context.Context) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.started || g.lo > g.maxLo {
		hi, err := g.sequence.NextHi(ctx)
		if err != nil {
			return 0, fmt.Errorf("advancing hilo sequence: %w", err)
		}
		g.hi = hi
		g.lo = 1
		g.started = true
	}

	id := g.hi*g.maxLo + g.lo
	g.lo++
	return id, nil
}

func (g *hiloGenerator) typed(id int64) (any, bool, error) {
	if g.key == doctype.ValueInt32 {
		if id > math.MaxInt32 || id < math.MinInt32 {
			return nil, false, fmt.Errorf("hilo id %d overflows int32", id)
		}
		return int32(id), false, nil
	}
	return id, false, nil
}

func asInt64(v any) (int64, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case float64:
		// numbers decoded from JSON
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("document id %v is not an integer", n)
		}
		return int64(n), nil
	}
	return 0, fmt.Errorf("hilo generator cannot assign to %T", v)
}

type stringGenerator struct{}

func (stringGenerator) Assign(_ context.Context, current any) (any, bool, error) {
	s, ok := current.(string)
	if !ok && current != nil {
		return nil, false, fmt.Errorf("string id expected, got %T", current)
	}
	if s == "" {
		return nil, false, ErrEmptyID
	}
	return s, false, nil
}
