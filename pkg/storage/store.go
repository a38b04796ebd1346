// Package storage implements capability.Persistence over BoltDB: resource
// profiles, execution history, and baseline statistics, each in its own
// bucket.
package storage

import (
	"github.com/cuemby/orbiter/pkg/capability"
)

// Store is the storage-layer interface BoltStore implements. It is
// equivalent to capability.Persistence; the alias exists so callers that
// only need storage (not the full capability surface) can depend on the
// narrower name.
type Store = capability.Persistence
