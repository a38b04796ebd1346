// Package bandwidth implements per-container network bandwidth accounting
// and enforcement: a token bucket tracks whether a container is within its
// configured rate, and an optional TCShaper applies the limit at the
// kernel level via tc. Where no shaping hook is available, the Enforcer
// falls back to throttling cpu.quota (a degraded mode, documented in
// spec.md §4.2) rather than this package pretending to shape traffic it
// cannot.
package bandwidth

import (
	"fmt"
	"os/exec"
	"sync"
	"time"
)

// Bucket is a token bucket for one direction (ingress or egress) of one
// container's traffic.
type Bucket struct {
	mu         sync.Mutex
	rateBps    float64
	burstBytes float64
	tokens     float64
	last       time.Time
}

// NewBucket creates a token bucket that refills at rateBps up to a maximum
// of burstBytes.
func NewBucket(rateBps float64, burstBytes int64) *Bucket {
	return &Bucket{
		rateBps:    rateBps,
		burstBytes: float64(burstBytes),
		tokens:     float64(burstBytes),
		last:       time.Now(),
	}
}

// Allow reports whether n bytes may pass right now, consuming tokens if so.
func (b *Bucket) Allow(n int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(b.last).Seconds()
	b.last = now
	b.tokens += elapsed * b.rateBps
	if b.tokens > b.burstBytes {
		b.tokens = b.burstBytes
	}

	if b.tokens >= float64(n) {
		b.tokens -= float64(n)
		return true
	}
	return false
}

// Tracker holds the ingress/egress buckets for one container.
type Tracker struct {
	Ingress *Bucket
	Egress  *Bucket
}

func NewTracker(ingressBps, egressBps float64, burstBytes int64) *Tracker {
	return &Tracker{
		Ingress: NewBucket(ingressBps, burstBytes),
		Egress:  NewBucket(egressBps, burstBytes),
	}
}

// TCShaper applies a bandwidth limit at the kernel level via tc qdisc/class,
// when the RuntimeDriver exposes a traffic-shaping hook (i.e. a known
// network interface for the container). Absent that hook, callers should
// not construct a TCShaper and instead rely on the Enforcer's degraded
// cpu.quota throttling.
type TCShaper struct{}

func NewTCShaper() *TCShaper { return &TCShaper{} }

// Apply sets up an HTB class on iface limiting throughput to rateBps with
// burstBytes of burst allowance.
func (s *TCShaper) Apply(iface string, rateBps float64, burstBytes int64) error {
	rateKbit := fmt.Sprintf("%dkbit", int64(rateBps*8/1000))
	burst := fmt.Sprintf("%db", burstBytes)

	if out, err := exec.Command("tc", "qdisc", "add", "dev", iface, "root", "handle", "1:", "htb").CombinedOutput(); err != nil {
		return fmt.Errorf("tc qdisc add: %w: %s", err, out)
	}
	if out, err := exec.Command("tc", "class", "add", "dev", iface, "parent", "1:",
		"classid", "1:1", "htb", "rate", rateKbit, "burst", burst).CombinedOutput(); err != nil {
		return fmt.Errorf("tc class add: %w: %s", err, out)
	}
	return nil
}

// Remove tears down the qdisc installed by Apply.
func (s *TCShaper) Remove(iface string) error {
	out, err := exec.Command("tc", "qdisc", "del", "dev", iface, "root").CombinedOutput()
	if err != nil {
		return fmt.Errorf("tc qdisc del: %w: %s", err, out)
	}
	return nil
}
