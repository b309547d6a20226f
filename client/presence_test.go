package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPresenceMirrorSnapshotReplaces(t *testing.T) {
	p := NewPresenceMirror()
	p.Join("stale")

	p.ApplySnapshot([]string{"u1", "u2"})
	assert.Equal(t, []string{"u1", "u2"}, p.Online())
	assert.False(t, p.IsOnline("stale"))
}

func TestPresenceMirrorDeltasIdempotent(t *testing.T) {
	p := NewPresenceMirror()
	p.ApplySnapshot([]string{"u1"})

	p.Join("u1")
	p.Join("u2")
	p.Join("u2")
	assert.Equal(t, []string{"u1", "u2"}, p.Online())

	p.Leave("u2")
	p.Leave("u2")
	p.Leave("never-joined")
	assert.Equal(t, []string{"u1"}, p.Online())
}

func TestPresenceMirrorIgnoresEmptyJoin(t *testing.T) {
	p := NewPresenceMirror()
	p.Join("")
	assert.Empty(t, p.Online())
}
