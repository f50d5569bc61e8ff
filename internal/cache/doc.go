/*
Package cache implements the multi-level displacement engine.

A Cache owns an ordered list of tiers, tier 0 being the fastest and
smallest, and one displacement policy (LRU, MRU or Random) shared by all of
them. Entries always enter at tier 0 and move down only when displaced:

	put(e)                       tier 0        tier 1        tier 2
	  │                        ┌────────┐    ┌────────┐    ┌────────┐
	  └──────────────────────▶ │  full? │──▶ │  full? │──▶ │  full? │──▶ discard
	                           └────────┘    └────────┘    └────────┘
	                             victim        victim        victim

When the target tier is full its victim is pulled and cascaded into the
next tier before the incoming entry is written, so no tier ever holds more
than its capacity. A victim pulled from the last tier is discarded.

# Operations

Put removes any copy of the id from every tier, then cascades the entry in
at tier 0. Get pulls the entry from the first tier holding it and cascades
it back in at tier 0, so every hit counts as an access for LRU and MRU,
including a hit in tier 0 itself. Find looks an entry up without moving it.

Size and MaxSize sum the tier sizes and capacities. IsFull reports whether
the last tier is full. Clear empties every tier; Delete disposes every tier
concurrently and closes the cache.

# Failures

Any tier failure aborts the operation with an *errors.EngineError naming
the operation, the entry id and the failing tier index. Tiers already
changed earlier in the cascade stay changed. Operations on a deleted cache
fail with CACHE_CLOSED.

# Construction

	cfg := config.NewDefault()
	c, err := cache.NewFromConfig(ctx, cfg,
		cache.WithLogger(logger),
		cache.WithRecorder(collector),
	)

builds a memory tier of base_size entries followed by a file tier of
base_size*multiplier entries. New accepts ready-made tiers instead.
*/
package cache
