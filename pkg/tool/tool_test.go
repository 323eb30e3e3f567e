package tool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoDefinition(name string) Definition {
	return Definition{
		Name:        name,
		Description: "Echoes its input.",
		Parameters: []Parameter{
			{Name: "text", Type: "string", Description: "Text to echo", Required: true},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (Result, error) {
			text, _ := args["text"].(string)
			return Result{Output: text}, nil
		},
	}
}

func TestRegistryRegister(t *testing.T) {
	t.Run("should register valid definition", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Register(echoDefinition("echo")))
		assert.NotNil(t, r.Get("echo"))
		assert.Equal(t, 1, r.Count())
	})

	t.Run("should reject duplicate name", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Register(echoDefinition("echo")))
		err := r.Register(echoDefinition("echo"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "already registered")
	})

	t.Run("should reject missing handler", func(t *testing.T) {
		r := NewRegistry()
		def := echoDefinition("echo")
		def.Handler = nil
		assert.Error(t, r.Register(def))
	})

	t.Run("should reject invalid parameter type", func(t *testing.T) {
		r := NewRegistry()
		def := echoDefinition("echo")
		def.Parameters[0].Type = "text"
		assert.Error(t, r.Register(def))
	})
}

func TestRegistrySchemas(t *testing.T) {
	t.Run("should resolve schemas for known tools", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Register(echoDefinition("echo")))

		schemas, err := r.Schemas([]string{"echo"})
		require.NoError(t, err)
		require.Len(t, schemas, 1)
		assert.Equal(t, "echo", schemas[0].Name)
		assert.Equal(t, "object", schemas[0].InputSchema["type"])
		assert.Equal(t, []string{"text"}, schemas[0].InputSchema["required"])
	})

	t.Run("unknown name is a configuration error", func(t *testing.T) {
		r := NewRegistry()
		_, err := r.Schemas([]string{"ghost"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
	})
}

func TestValidateArgs(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(echoDefinition("echo")))

	t.Run("should accept valid arguments", func(t *testing.T) {
		assert.NoError(t, r.ValidateArgs("echo", map[string]interface{}{"text": "hi"}))
	})

	t.Run("should reject missing required argument", func(t *testing.T) {
		assert.Error(t, r.ValidateArgs("echo", map[string]interface{}{}))
	})

	t.Run("should reject unexpected argument", func(t *testing.T) {
		err := r.ValidateArgs("echo", map[string]interface{}{"text": "hi", "extra": 1})
		assert.Error(t, err)
	})

	t.Run("should reject wrong argument type", func(t *testing.T) {
		assert.Error(t, r.ValidateArgs("echo", map[string]interface{}{"text": 42}))
	})
}

func TestHandoff(t *testing.T) {
	t.Run("should name tool with transfer prefix", func(t *testing.T) {
		def := Handoff("exploit", "Exploit Agent")
		assert.Equal(t, "transfer_to_exploit", def.Name)
	})

	t.Run("result carries target and assistant payload", func(t *testing.T) {
		def := Handoff("exploit", "Exploit Agent")
		res, err := def.Handler(context.Background(), nil)
		require.NoError(t, err)
		assert.Equal(t, "exploit", res.HandoffTo)
		assert.JSONEq(t, `{"assistant":"Exploit Agent"}`, res.Output)
	})

	t.Run("handoff tools register like any other", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Register(Handoff("recon", "Recon Agent")))
		assert.NotNil(t, r.Get("transfer_to_recon"))
	})
}
