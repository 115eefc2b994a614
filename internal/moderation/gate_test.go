package moderation

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var defaultWords = []string{"badword1", "badword2", "offensive", "prohibited"}

func TestEvaluate(t *testing.T) {
	gate := NewGate(defaultWords)

	tests := []struct {
		name  string
		text  string
		want  Decision
		match string
	}{
		{"prohibited word", "This is offensive content", Blocked, "offensive"},
		{"clean text", "Hello friend", Allowed, ""},
		{"upper case", "OFFENSIVE", Blocked, "offensive"},
		{"substring match", "unprohibitedly", Blocked, "prohibited"},
		{"empty text", "", Allowed, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := gate.Evaluate(tt.text)

			assert.Equal(t, tt.want, v.Decision)
			assert.Equal(t, tt.match, v.Match)
		})
	}
}

func TestSwapNormalizes(t *testing.T) {
	gate := NewGate(nil)
	assert.False(t, gate.Evaluate("Spam").Blocked())

	gate.Swap([]string{"SPAM", "spam", "", "   "})

	assert.Equal(t, []string{"spam"}, gate.Words())
	assert.True(t, gate.Evaluate("more Spam please").Blocked())
}

func TestSwapKeepsSurroundingSpaces(t *testing.T) {
	gate := NewGate([]string{" ASS "})

	assert.Equal(t, []string{" ass "}, gate.Words())
	assert.Equal(t, Allowed, gate.Evaluate("first class").Decision)
	assert.Equal(t, Allowed, gate.Evaluate("ass").Decision)

	v := gate.Evaluate("what an ass here")
	assert.Equal(t, Blocked, v.Decision)
	assert.Equal(t, " ass ", v.Match)
}

func TestEvaluateDuringSwap(t *testing.T) {
	gate := NewGate(defaultWords)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				gate.Evaluate("Hello friend")
				gate.Swap(defaultWords)
			}
		}()
	}
	wg.Wait()

	assert.True(t, gate.Evaluate("OFFENSIVE").Blocked())
}

func TestWatcherReloadsChangedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blocklist.yaml")
	require.NoError(t, os.WriteFile(path, []byte("blocklist:\n  - spam\n"), 0o600))

	gate := NewGate(defaultWords)
	w := NewWatcher(gate, path, time.Minute, nil)

	swapped, err := w.Reload(context.Background())
	require.NoError(t, err)
	assert.True(t, swapped)
	assert.True(t, gate.Evaluate("spam").Blocked())
	assert.False(t, gate.Evaluate("offensive").Blocked())

	// Unchanged file is not reloaded
	swapped, err = w.Reload(context.Background())
	require.NoError(t, err)
	assert.False(t, swapped)

	// Newer file replaces the list
	require.NoError(t, os.WriteFile(path, []byte("blocklist:\n  - Scam\n"), 0o600))
	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(path, future, future))

	swapped, err = w.Reload(context.Background())
	require.NoError(t, err)
	assert.True(t, swapped)
	assert.Equal(t, []string{"scam"}, gate.Words())
}

func TestLoadFileRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blocklist.yaml")
	require.NoError(t, os.WriteFile(path, []byte("blocklist: [unclosed"), 0o600))

	_, err := LoadFile(path)
	assert.Error(t, err)
}
