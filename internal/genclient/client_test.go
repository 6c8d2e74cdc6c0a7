package genclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeStrict(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		sub, err := decodeStrict(`{"code":"return 1;","imports":"react"}`)
		require.NoError(t, err)
		assert.Equal(t, "return 1;", sub.Code)
		require.NotNil(t, sub.Imports)
		assert.Equal(t, "react", *sub.Imports)
	})

	t.Run("missing code", func(t *testing.T) {
		_, err := decodeStrict(`{"imports":"react","extra":"x"}`)
		assert.ErrorIs(t, err, ErrSchema)
	})

	t.Run("missing imports", func(t *testing.T) {
		_, err := decodeStrict(`{"code":"return 1;"}`)
		assert.ErrorIs(t, err, ErrSchema)
	})

	t.Run("additional property", func(t *testing.T) {
		_, err := decodeStrict(`{"code":"x","imports":"y","explanation":"chatty"}`)
		assert.ErrorIs(t, err, ErrSchema)
	})

	t.Run("wrong type", func(t *testing.T) {
		_, err := decodeStrict(`{"code":42,"imports":"y"}`)
		assert.ErrorIs(t, err, ErrSchema)
	})

	t.Run("not json", func(t *testing.T) {
		_, err := decodeStrict(`here is your function body:`)
		assert.ErrorIs(t, err, ErrSchema)
	})
}

func serveCompletion(t *testing.T, finishReason, content string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.NotNil(t, req["response_format"], "structured output must be requested")

		fmt.Fprintf(w, `{"choices":[{"message":{"content":%q},"finish_reason":%q}]}`,
			content, finishReason)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestGenerateSuccessDiscardsImports(t *testing.T) {
	server := serveCompletion(t, "stop", `{"code":"return 42;","imports":"react"}`)
	client := New(Config{APIKey: "test-key", BaseURL: server.URL})

	sub, err := client.Generate(context.Background(), "function f(){}", "the answer", "function f()")
	require.NoError(t, err)
	assert.Equal(t, "return 42;", sub.Code)
	// The self-reported import list is informational only.
	assert.Nil(t, sub.Imports)
}

func TestGenerateRejectsNonStopCompletion(t *testing.T) {
	server := serveCompletion(t, "length", `{"code":"trunc","imports":""}`)
	client := New(Config{APIKey: "test-key", BaseURL: server.URL})

	_, err := client.Generate(context.Background(), "src", "prompt", "stub")
	assert.ErrorIs(t, err, ErrSchema)
}

func TestGenerateRejectsSchemaViolation(t *testing.T) {
	server := serveCompletion(t, "stop", `{"code":"x","imports":"y","notes":"extra"}`)
	client := New(Config{APIKey: "test-key", BaseURL: server.URL})

	_, err := client.Generate(context.Background(), "src", "prompt", "stub")
	assert.ErrorIs(t, err, ErrSchema)
}

func TestGenerateFailsOnServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)
	client := New(Config{APIKey: "test-key", BaseURL: server.URL})

	_, err := client.Generate(context.Background(), "src", "prompt", "stub")
	assert.Error(t, err)
}

func TestGenerateRequiresAPIKey(t *testing.T) {
	client := New(Config{})
	_, err := client.Generate(context.Background(), "src", "prompt", "stub")
	assert.Error(t, err)
}
