// Package store keeps the router's working state: the in-memory signal
// book and the durable user settings.
package store

import (
	"sigrelay/internal/model"
)

// SignalBook holds every signal observed this session, keyed by ID.
// It is owned by the router loop and is not safe for concurrent use.
type SignalBook struct {
	signals map[string]*model.Signal
	order   []string
}

func NewSignalBook() *SignalBook {
	return &SignalBook{signals: make(map[string]*model.Signal)}
}

func (b *SignalBook) Put(sig *model.Signal) {
	if sig == nil || sig.ID == "" {
		return
	}
	if _, ok := b.signals[sig.ID]; !ok {
		b.order = append(b.order, sig.ID)
	}
	b.signals[sig.ID] = sig
}

func (b *SignalBook) Get(id string) (*model.Signal, bool) {
	sig, ok := b.signals[id]
	return sig, ok
}

// All returns signals in insertion order.
func (b *SignalBook) All() []*model.Signal {
	out := make([]*model.Signal, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.signals[id])
	}
	return out
}

func (b *SignalBook) Len() int { return len(b.signals) }
