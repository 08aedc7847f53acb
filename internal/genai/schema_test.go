package genai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testPayload struct {
	Name  string `json:"name"`
	Score int    `json:"score"`
}

func TestDecodeStrict(t *testing.T) {
	t.Run("plain JSON", func(t *testing.T) {
		var p testPayload
		require.NoError(t, DecodeStrict(`{"name":"x","score":3}`, &p))
		assert.Equal(t, "x", p.Name)
		assert.Equal(t, 3, p.Score)
	})

	t.Run("fenced JSON", func(t *testing.T) {
		var p testPayload
		content := "```json\n{\"name\":\"x\",\"score\":3}\n```"
		require.NoError(t, DecodeStrict(content, &p))
		assert.Equal(t, "x", p.Name)
	})

	t.Run("JSON with surrounding prose", func(t *testing.T) {
		var p testPayload
		content := "Here is the result:\n{\"name\":\"x\",\"score\":3}\nLet me know if you need anything else."
		require.NoError(t, DecodeStrict(content, &p))
		assert.Equal(t, 3, p.Score)
	})

	t.Run("unknown fields rejected", func(t *testing.T) {
		var p testPayload
		err := DecodeStrict(`{"name":"x","score":3,"extra":true}`, &p)
		assert.Error(t, err)
	})

	t.Run("no JSON rejected", func(t *testing.T) {
		var p testPayload
		err := DecodeStrict("I could not produce output.", &p)
		assert.Error(t, err)
	})

	t.Run("truncated JSON rejected", func(t *testing.T) {
		var p testPayload
		err := DecodeStrict(`{"name":"x","sco`, &p)
		assert.Error(t, err)
	})

	t.Run("wrong types rejected", func(t *testing.T) {
		var p testPayload
		err := DecodeStrict(`{"name":"x","score":"three"}`, &p)
		assert.Error(t, err)
	})
}

func TestExtractJSON(t *testing.T) {
	t.Run("array payload", func(t *testing.T) {
		got := ExtractJSON("result: [1,2,3] done")
		assert.Equal(t, "[1,2,3]", got)
	})

	t.Run("nested objects", func(t *testing.T) {
		got := ExtractJSON(`{"a":{"b":"}"}}`)
		assert.Equal(t, `{"a":{"b":"}"}}`, got)
	})

	t.Run("braces inside strings ignored", func(t *testing.T) {
		got := ExtractJSON(`{"text":"a { b } c"}`)
		assert.Equal(t, `{"text":"a { b } c"}`, got)
	})

	t.Run("empty when unbalanced", func(t *testing.T) {
		assert.Equal(t, "", ExtractJSON(`{"a":1`))
	})
}
