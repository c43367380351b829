// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"log/slog"

	"github.com/google/uuid"
)

// SubscriptionID identifies one relation subscription.
type SubscriptionID string

// DeltaFunc receives the deltas of one relation after an Apply settles.
// The batch is only valid for the duration of the call; handlers must
// not call back into the engine.
type DeltaFunc func(rel Relation, deltas []Delta)

// Subscribe registers a handler for the given relation's deltas.
//
// Description:
//
//	The handler is invoked once per Apply that changed the relation,
//	after every affected file has settled. A consumer that would rather
//	not track deltas can ignore subscriptions and call Snapshot instead.
func (e *Engine) Subscribe(rel Relation, fn DeltaFunc) SubscriptionID {
	id := SubscriptionID(uuid.NewString())
	e.subMu.Lock()
	defer e.subMu.Unlock()
	subs, ok := e.subs[rel]
	if !ok {
		subs = make(map[SubscriptionID]DeltaFunc)
		e.subs[rel] = subs
	}
	subs[id] = fn
	return id
}

// Unsubscribe removes a subscription. Unknown ids are a no-op.
func (e *Engine) Unsubscribe(id SubscriptionID) {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	for _, subs := range e.subs {
		delete(subs, id)
	}
}

// notify delivers the batched deltas of one Apply to subscribers, in
// stratum order.
func (e *Engine) notify(deltas map[Relation][]Delta) {
	e.subMu.RLock()
	defer e.subMu.RUnlock()
	for _, rel := range AllRelations {
		batch := deltas[rel]
		if len(batch) == 0 {
			continue
		}
		for id, fn := range e.subs[rel] {
			e.logger.Debug("delivering relation deltas",
				slog.String("relation", rel.String()),
				slog.String("subscription", string(id)),
				slog.Int("deltas", len(batch)),
			)
			fn(rel, batch)
		}
	}
}
