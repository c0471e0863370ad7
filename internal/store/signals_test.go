package store

import (
	"testing"
	"time"

	"sigrelay/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignalBook(t *testing.T) {
	b := NewSignalBook()

	first := &model.Signal{ID: "a", Symbol: "XAUUSD", Status: model.SignalPending, CreatedAt: time.Now().Add(-time.Minute)}
	second := &model.Signal{ID: "b", Symbol: "BTCUSDT", Status: model.SignalExecuted, CreatedAt: time.Now()}
	b.Put(first)
	b.Put(second)

	got, ok := b.Get("a")
	require.True(t, ok)
	assert.Same(t, first, got)

	_, ok = b.Get("missing")
	assert.False(t, ok)

	all := b.All()
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].ID)
	assert.Equal(t, "b", all[1].ID)
}

func TestSignalBookPutIgnoresEmpty(t *testing.T) {
	b := NewSignalBook()
	b.Put(nil)
	b.Put(&model.Signal{})
	assert.Zero(t, b.Len())
}

func TestSignalBookPutSameIDKeepsOrder(t *testing.T) {
	b := NewSignalBook()
	b.Put(&model.Signal{ID: "a"})
	b.Put(&model.Signal{ID: "b"})
	b.Put(&model.Signal{ID: "a", Symbol: "XAUUSD"})

	all := b.All()
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].ID)
	assert.Equal(t, "XAUUSD", all[0].Symbol)
}
