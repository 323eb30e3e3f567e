package history

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendOrdering(t *testing.T) {
	t.Run("should keep messages in append order", func(t *testing.T) {
		h := New()
		h.Append(UserMessage("first"))
		h.Append(AssistantMessage("recon", "second", nil))
		h.Append(ToolMessage("call_1", "third"))

		msgs := h.Messages()
		require.Len(t, msgs, 3)
		assert.Equal(t, "first", msgs[0].Content)
		assert.Equal(t, "second", msgs[1].Content)
		assert.Equal(t, "third", msgs[2].Content)
	})

	t.Run("should stamp zero timestamps", func(t *testing.T) {
		h := New()
		h.Append(Message{Role: RoleUser, Content: "hi"})

		last, ok := h.Last()
		require.True(t, ok)
		assert.False(t, last.Timestamp.IsZero())
	})

	t.Run("messages returns a copy", func(t *testing.T) {
		h := New()
		h.Append(UserMessage("original"))

		msgs := h.Messages()
		msgs[0].Content = "mutated"

		fresh := h.Messages()
		assert.Equal(t, "original", fresh[0].Content)
	})
}

func TestCheckpointRollback(t *testing.T) {
	t.Run("should truncate to checkpoint", func(t *testing.T) {
		h := New()
		h.Append(UserMessage("keep"))
		cp := h.Checkpoint()

		h.Append(AssistantMessage("a", "discard", nil))
		h.Append(ToolMessage("call_x", "discard too"))
		h.Rollback(cp)

		assert.Equal(t, 1, h.Len())
		last, _ := h.Last()
		assert.Equal(t, "keep", last.Content)
	})

	t.Run("rollback never grows history", func(t *testing.T) {
		h := New()
		h.Append(UserMessage("one"))
		h.Rollback(10)
		assert.Equal(t, 1, h.Len())
	})

	t.Run("negative checkpoint clears history", func(t *testing.T) {
		h := New()
		h.Append(UserMessage("one"))
		h.Rollback(-1)
		assert.Equal(t, 0, h.Len())
	})
}

func TestSince(t *testing.T) {
	h := New()
	h.Append(UserMessage("a"), UserMessage("b"), UserMessage("c"))

	delta := h.Since(1)
	require.Len(t, delta, 2)
	assert.Equal(t, "b", delta[0].Content)
	assert.Equal(t, "c", delta[1].Content)

	assert.Empty(t, h.Since(3))
	assert.Len(t, h.Since(-1), 3)
}

func TestNewToolCallID(t *testing.T) {
	a := NewToolCallID()
	b := NewToolCallID()
	assert.NotEqual(t, a, b)
	assert.Contains(t, a, "call_")
}
