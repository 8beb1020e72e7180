// Package idgen assigns human-readable agent ids by suffixing a requested
// base id with the next free number ("buyer" becomes "buyer-0", "buyer-1",
// ...). The agents table is the source of truth; in-process locking only
// prevents two local registrations from racing to the same suffix.
package idgen

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/agora-sim/agora/internal/model"
	"github.com/agora-sim/agora/internal/query"
	"github.com/agora-sim/agora/internal/store"
)

const maxRetries = 10

// Generator hands out unique suffixed agent ids. Safe for concurrent use.
type Generator struct {
	mu         sync.Mutex
	locks      map[string]*sync.Mutex
	lastSuffix map[string]int
}

// New returns an empty Generator.
func New() *Generator {
	return &Generator{
		locks:      make(map[string]*sync.Mutex),
		lastSuffix: make(map[string]int),
	}
}

func (g *Generator) baseLock(baseID string) *sync.Mutex {
	g.mu.Lock()
	defer g.mu.Unlock()
	lock, ok := g.locks[baseID]
	if !ok {
		lock = &sync.Mutex{}
		g.locks[baseID] = lock
	}
	return lock
}

// UniqueAgentID returns "<baseID>-<n>" where n is one past the highest
// suffix already present in the agents table. Another process may win the
// race for a candidate id; the double-check plus retry loop absorbs that.
func (g *Generator) UniqueAgentID(ctx context.Context, baseID string, agents store.Table[model.AgentProfile]) (string, error) {
	lock := g.baseLock(baseID)
	lock.Lock()
	defer lock.Unlock()

	pattern, err := regexp.Compile("^" + regexp.QuoteMeta(baseID) + `-(\d+)$`)
	if err != nil {
		return "", fmt.Errorf("idgen: bad base id %q: %w", baseID, err)
	}

	for attempt := 0; attempt < maxRetries; attempt++ {
		if err := g.rescan(ctx, baseID, pattern, agents); err != nil {
			return "", err
		}

		next := g.lastSuffix[baseID] + 1
		candidate := fmt.Sprintf("%s-%d", baseID, next)

		_, err := agents.GetByID(ctx, candidate)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				g.lastSuffix[baseID] = next
				return candidate, nil
			}
			return "", fmt.Errorf("idgen: check candidate %s: %w", candidate, err)
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(time.Duration(attempt+1) * time.Millisecond):
		}
	}
	return "", fmt.Errorf("idgen: no unique id for base %q after %d attempts", baseID, maxRetries)
}

// rescan refreshes the highest known suffix for baseID from the table. The
// counter never goes backwards: an id handed out locally counts as taken
// even before its row lands in the table.
func (g *Generator) rescan(ctx context.Context, baseID string, pattern *regexp.Regexp, agents store.Table[model.AgentProfile]) error {
	rows, err := agents.Find(ctx,
		query.FieldCompare("id", query.Like, baseID+"-%"), store.Range{})
	if err != nil {
		return fmt.Errorf("idgen: scan existing ids for %q: %w", baseID, err)
	}

	maxSuffix := -1
	if cached, ok := g.lastSuffix[baseID]; ok {
		maxSuffix = cached
	}
	for _, row := range rows {
		m := pattern.FindStringSubmatch(row.ID)
		if m == nil {
			continue
		}
		if n, err := strconv.Atoi(m[1]); err == nil && n > maxSuffix {
			maxSuffix = n
		}
	}
	g.lastSuffix[baseID] = maxSuffix
	return nil
}
