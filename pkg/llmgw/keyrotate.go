package llmgw

import (
	"context"
	"sync/atomic"
)

// DurableCounter is the optional durable backing for the rotation counter
// (memory.RedisStore satisfies this), so the counter survives process
// restarts when a durable store is available — per spec's "atomic
// increment or durable INCR" design note.
type DurableCounter interface {
	RotationCounter(ctx context.Context, key string) (int64, error)
	IncrRotationCounter(ctx context.Context, key string) (int64, error)
}

const rotationCounterKey = "runtime_config:openai_api_key_rotation_counter:v1"

// KeyRotator selects keys[counter mod N] and advances the counter on
// rate-limit errors. A no-op when fewer than two keys are configured.
type KeyRotator struct {
	keys    []string
	counter atomic.Int64
	durable DurableCounter
}

// NewKeyRotator constructs a rotator over keys, optionally backed by a
// durable counter store.
func NewKeyRotator(keys []string, durable DurableCounter) *KeyRotator {
	return &KeyRotator{keys: keys, durable: durable}
}

// Len reports how many keys are configured.
func (r *KeyRotator) Len() int { return len(r.keys) }

// Current returns the key selected by the current counter value.
func (r *KeyRotator) Current(ctx context.Context) string {
	if len(r.keys) == 0 {
		return ""
	}
	idx := r.index(ctx)
	return r.keys[idx%int64(len(r.keys))]
}

func (r *KeyRotator) index(ctx context.Context) int64 {
	if r.durable != nil {
		if v, err := r.durable.RotationCounter(ctx, rotationCounterKey); err == nil {
			return v
		}
	}
	return r.counter.Load()
}

// Advance moves the rotator to the next key. No-op when there is at most
// one key, matching spec's "rotation is a no-op when N<=1".
func (r *KeyRotator) Advance(ctx context.Context) {
	if len(r.keys) <= 1 {
		return
	}
	if r.durable != nil {
		if _, err := r.durable.IncrRotationCounter(ctx, rotationCounterKey); err == nil {
			return
		}
	}
	r.counter.Add(1)
}
