package logbuffer

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingWrapsOldestFirst(t *testing.T) {
	r := New(3)
	base := time.Now()
	for i, msg := range []string{"a", "b", "c", "d", "e"} {
		r.Append(Entry{Timestamp: base.Add(time.Duration(i) * time.Millisecond), Message: msg})
	}

	got := r.All()
	require.Len(t, got, 3)
	assert.Equal(t, []string{"c", "d", "e"}, []string{got[0].Message, got[1].Message, got[2].Message})
	assert.Equal(t, 3, r.Len())
	assert.Equal(t, 3, r.Cap())
}

func TestRingSince(t *testing.T) {
	r := New(10)
	base := time.Now()
	r.Append(Entry{Timestamp: base, Message: "old"})
	r.Append(Entry{Timestamp: base.Add(time.Second), Message: "new"})

	got := r.Since(base.Add(500 * time.Millisecond))
	require.Len(t, got, 1)
	assert.Equal(t, "new", got[0].Message)
}

func TestRingTruncatesAndResets(t *testing.T) {
	r := New(0)
	assert.Equal(t, DefaultCapacity, r.Cap())

	r.Append(Entry{Message: strings.Repeat("x", MaxMessageLength*2)})
	got := r.All()
	require.Len(t, got, 1)
	assert.Len(t, got[0].Message, MaxMessageLength)
	assert.True(t, strings.HasSuffix(got[0].Message, "..."))

	r.Reset()
	assert.Nil(t, r.All())
}
