// Package slotpool implements the pre-warmed startup pool: a fixed-size set
// of RuntimeDriver slots created ahead of demand so Admit's Acquire call
// never waits on an image pull or container create. It is grounded on the
// teacher's worker.go container bookkeeping (a mutex-guarded map of
// container IDs plus a background replenishment goroutine), adapted from
// tracking every running container to tracking only the idle warm set.
package slotpool

import (
	"context"
	"sync"

	"github.com/cuemby/orbiter/pkg/capability"
	"github.com/cuemby/orbiter/pkg/log"
	"github.com/cuemby/orbiter/pkg/types"
	"github.com/rs/zerolog"
)

// Pool maintains a target number of idle, pre-created slots for one image.
// Acquire hands out an idle slot (or creates one synchronously if the pool
// is empty); Release destroys the slot, since a used slot's filesystem and
// cgroup state cannot be trusted as "warm" for the next job. The pool has no
// replenishment loop: only a later Warm call refills it.
type Pool struct {
	driver capability.RuntimeDriver
	image  string
	logger zerolog.Logger

	mu      sync.Mutex
	idle    []string
	target  int
	nextSeq int
}

// New creates a Pool backed by driver, pre-warming containers from image.
// targetSize is the number of idle slots the pool tries to maintain.
func New(driver capability.RuntimeDriver, image string, targetSize int) *Pool {
	return &Pool{
		driver: driver,
		image:  image,
		logger: log.WithComponent("slotpool"),
		target: targetSize,
	}
}

// Warm synchronously fills the pool up to its target size. Callers
// typically invoke this once at startup before serving Acquire calls.
func (p *Pool) Warm(ctx context.Context) error {
	p.mu.Lock()
	need := p.target - len(p.idle)
	p.mu.Unlock()
	for i := 0; i < need; i++ {
		if err := p.createOne(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pool) createOne(ctx context.Context) error {
	p.mu.Lock()
	p.nextSeq++
	id := "slot-" + itoa(p.nextSeq)
	p.mu.Unlock()

	slotID, err := p.driver.CreateSlot(ctx, capability.SlotSpec{ContainerID: id, Image: p.image})
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.idle = append(p.idle, slotID)
	p.mu.Unlock()
	return nil
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

// Acquire satisfies capability.SlotProvider: it hands out an idle slot, or
// creates one synchronously (absorbing the pull/create latency the pool
// exists to avoid) if none is idle.
func (p *Pool) Acquire(ctx context.Context, hint types.ResourceRequirements) (string, error) {
	p.mu.Lock()
	if len(p.idle) > 0 {
		id := p.idle[len(p.idle)-1]
		p.idle = p.idle[:len(p.idle)-1]
		p.mu.Unlock()
		return id, nil
	}
	p.mu.Unlock()

	p.logger.Warn().Msg("pool empty, creating slot synchronously")
	p.mu.Lock()
	p.nextSeq++
	id := "slot-" + itoa(p.nextSeq)
	p.mu.Unlock()
	return p.driver.CreateSlot(ctx, capability.SlotSpec{ContainerID: id, Image: p.image})
}

// Release destroys slotID. The slot is not returned to the idle set; only a
// later Warm call creates a replacement (cmd/orchestrator calls Warm once,
// at startup).
func (p *Pool) Release(ctx context.Context, slotID string) error {
	return p.driver.Destroy(ctx, slotID)
}

// Resize changes the pool's target idle-slot count. It does not itself
// create or destroy slots; call Warm afterward to grow, or let idle slots
// drain naturally via Acquire to shrink.
func (p *Pool) Resize(ctx context.Context, poolSize int) error {
	p.mu.Lock()
	p.target = poolSize
	p.mu.Unlock()
	return nil
}

// Available reports the current idle slot count.
func (p *Pool) Available(ctx context.Context) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle), nil
}

var _ capability.SlotProvider = (*Pool)(nil)
