package bridge

import (
	"fmt"
	"sync"
	"time"
)

// Category names one debounce gate. Each category has its own independent cooldown.
type Category int

const (
	// CategoryStartClick guards the flag/sprite clicked start events.
	CategoryStartClick Category = iota
)

// MaxCategories bounds the gate table.
const MaxCategories = 10

func (c Category) valid() bool {
	return c >= 0 && c < MaxCategories
}

func (c Category) String() string {
	switch c {
	case CategoryStartClick:
		return "start_click"
	default:
		return fmt.Sprintf("category_%d", int(c))
	}
}

type gate struct {
	engaged bool
	timer   *time.Timer
}

// gateTable is the set of debounce gates shared by every caller of one bridge.
type gateTable struct {
	mu    sync.Mutex
	gates [MaxCategories]gate
}

// engage returns true when the gate is already engaged. Otherwise it engages the
// gate, schedules its release after window and returns false. An engaged gate's
// timer is never extended.
func (t *gateTable) engage(c Category, window time.Duration) bool {
	if !c.valid() {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	g := &t.gates[c]
	if g.engaged {
		return true
	}
	g.engaged = true
	g.timer = time.AfterFunc(window, func() {
		t.mu.Lock()
		g.engaged = false
		g.timer = nil
		t.mu.Unlock()
	})
	return false
}

func (t *gateTable) isEngaged(c Category) bool {
	if !c.valid() {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.gates[c].engaged
}
