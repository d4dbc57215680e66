package activity

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"thermofit/pkg/equilibrium"
)

// defaultCacheSize bounds the number of prepared chemical systems kept alive.
const defaultCacheSize = 64

type preparedEntry struct {
	system   string
	prepared equilibrium.Prepared
}

// preparedCache shares one immutable prepared context per (components,
// phases) system across every sample and every evaluation.
type preparedCache struct {
	preparer equilibrium.Preparer
	entries  *lru.Cache[uint64, preparedEntry]
	group    singleflight.Group
}

func newPreparedCache(p equilibrium.Preparer, size int) (*preparedCache, error) {
	if size <= 0 {
		size = defaultCacheSize
	}
	entries, err := lru.New[uint64, preparedEntry](size)
	if err != nil {
		return nil, fmt.Errorf("prepared cache: %w", err)
	}
	return &preparedCache{preparer: p, entries: entries}, nil
}

// systemKey canonicalizes a chemical system so that ordering and case do not
// matter.
func systemKey(components, phases []string) string {
	norm := func(in []string) []string {
		out := make([]string, len(in))
		for i, s := range in {
			out[i] = strings.ToUpper(s)
		}
		sort.Strings(out)
		return out
	}
	return strings.Join(norm(components), ",") + "|" + strings.Join(norm(phases), ",")
}

func (c *preparedCache) get(ctx context.Context, components, phases []string) (equilibrium.Prepared, error) {
	system := systemKey(components, phases)
	hash := xxhash.Sum64String(system)
	if entry, ok := c.entries.Get(hash); ok && entry.system == system {
		return entry.prepared, nil
	}
	v, err, _ := c.group.Do(system, func() (any, error) {
		prepared, err := c.preparer.Prepare(ctx, components, phases)
		if err != nil {
			return nil, err
		}
		c.entries.Add(hash, preparedEntry{system: system, prepared: prepared})
		return prepared, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(equilibrium.Prepared), nil
}

// Len reports the number of cached systems.
func (c *preparedCache) Len() int { return c.entries.Len() }
