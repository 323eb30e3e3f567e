package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validDefinition(id string) Definition {
	return Definition{
		ID:           id,
		Name:         id,
		Model:        "claude-3-5-sonnet-20241022",
		Instructions: "You are a test agent.",
	}
}

func TestDefinitionValidate(t *testing.T) {
	t.Run("should accept valid definition", func(t *testing.T) {
		assert.NoError(t, validDefinition("recon").Validate())
	})

	t.Run("should reject missing id", func(t *testing.T) {
		def := validDefinition("x")
		def.ID = ""
		assert.Error(t, def.Validate())
	})

	t.Run("should reject missing instructions", func(t *testing.T) {
		def := validDefinition("x")
		def.Instructions = ""
		err := def.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "instructions")
	})

	t.Run("should accept dynamic instructions", func(t *testing.T) {
		def := validDefinition("x")
		def.Instructions = ""
		def.InstructionsFunc = func(sc SessionContext) string { return "dynamic" }
		assert.NoError(t, def.Validate())
	})

	t.Run("should reject out-of-range temperature", func(t *testing.T) {
		def := validDefinition("x")
		def.Temperature = 1.5
		assert.Error(t, def.Validate())
	})
}

func TestRenderInstructions(t *testing.T) {
	t.Run("static instructions", func(t *testing.T) {
		def := validDefinition("x")
		assert.Equal(t, "You are a test agent.", def.RenderInstructions(SessionContext{}))
	})

	t.Run("dynamic instructions win over static", func(t *testing.T) {
		def := validDefinition("x")
		def.InstructionsFunc = func(sc SessionContext) string {
			return "session " + sc.SessionID
		}
		assert.Equal(t, "session s1", def.RenderInstructions(SessionContext{SessionID: "s1"}))
	})
}

func TestRegistry(t *testing.T) {
	t.Run("register and get", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Register(validDefinition("recon")))

		def, err := r.Get("recon")
		require.NoError(t, err)
		assert.Equal(t, "recon", def.ID)
		assert.True(t, r.Exists("recon"))
		assert.Equal(t, 1, r.Count())
	})

	t.Run("should reject duplicate id", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Register(validDefinition("recon")))
		err := r.Register(validDefinition("recon"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "already registered")
	})

	t.Run("get unknown agent fails", func(t *testing.T) {
		r := NewRegistry()
		_, err := r.Get("ghost")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
	})
}

func TestValidateHandoffs(t *testing.T) {
	t.Run("cyclic handoffs are legal", func(t *testing.T) {
		r := NewRegistry()
		a := validDefinition("a")
		a.Handoffs = []string{"b"}
		b := validDefinition("b")
		b.Handoffs = []string{"a"}
		require.NoError(t, r.Register(a))
		require.NoError(t, r.Register(b))

		assert.NoError(t, r.ValidateHandoffs())
	})

	t.Run("self-handoff is legal", func(t *testing.T) {
		r := NewRegistry()
		a := validDefinition("a")
		a.Handoffs = []string{"a"}
		require.NoError(t, r.Register(a))

		assert.NoError(t, r.ValidateHandoffs())
	})

	t.Run("dangling handoff target fails", func(t *testing.T) {
		r := NewRegistry()
		a := validDefinition("a")
		a.Handoffs = []string{"nobody"}
		require.NoError(t, r.Register(a))

		err := r.ValidateHandoffs()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown agent")
	})
}

func TestCanHandOffTo(t *testing.T) {
	def := validDefinition("a")
	def.Handoffs = []string{"b", "c"}

	assert.True(t, def.CanHandOffTo("b"))
	assert.False(t, def.CanHandOffTo("z"))
}
