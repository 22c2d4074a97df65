package watcher

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitForBatch(t *testing.T, w *Watcher) *Events {
	select {
	case <-w.EventsReady:
		return w.GetEventsBatch()
	case <-time.After(2 * time.Second):
		t.Fatal("no events within 2s")
		return nil
	}
}

func TestWatchReportsOnlyWatchedFiles(t *testing.T) {
	dir := t.TempDir()
	valuation := filepath.Join(dir, "valuation.js")
	other := filepath.Join(dir, "other.js")
	require.NoError(t, ioutil.WriteFile(valuation, []byte("1"), 0644))

	w, err := NewWatcher(20 * time.Millisecond)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.Watch(valuation))
	require.NoError(t, w.Watch(valuation))

	require.NoError(t, ioutil.WriteFile(other, []byte("ignored"), 0644))
	for i := 0; i < 5; i++ {
		require.NoError(t, ioutil.WriteFile(valuation, []byte("saved"), 0644))
	}

	batch := waitForBatch(t, w)
	require.NotNil(t, batch)

	events := batch.Events()
	require.Len(t, events, 1)
	assert.Equal(t, valuation, events[0].Path)
	assert.Equal(t, MODIFIED, events[0].EventType)
	assert.NotNil(t, events[0].Info)

	assert.Nil(t, w.GetEventsBatch())
}

func TestWatchReportsDeletes(t *testing.T) {
	dir := t.TempDir()
	valuation := filepath.Join(dir, "valuation.js")
	require.NoError(t, ioutil.WriteFile(valuation, []byte("1"), 0644))

	w, err := NewWatcher(20 * time.Millisecond)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.Watch(valuation))
	require.NoError(t, os.Remove(valuation))

	events := waitForBatch(t, w).Events()
	require.Len(t, events, 1)
	assert.Equal(t, DELETED, events[0].EventType)
}

func TestEventBatch(t *testing.T) {
	batch := newEventBatch()
	batch.addEvent("b.js", CREATED, nil)
	batch.addEvent("b.js", MODIFIED, nil)
	batch.addEvent("a.js", MODIFIED, nil)
	batch.addEvent("a.js", DELETED, nil)

	assert.Equal(t, 2, batch.Len())
	assert.Equal(t, []Event{
		{Path: "a.js", EventType: DELETED},
		{Path: "b.js", EventType: CREATED},
	}, batch.Events())
}

func TestCloseIsIdempotent(t *testing.T) {
	w, err := NewWatcher(0)
	require.NoError(t, err)

	w.Close()
	w.Close()
}
