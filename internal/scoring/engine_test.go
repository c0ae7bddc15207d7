package scoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIEngineComplete(t *testing.T) {
	var gotModel, gotAuth string
	var gotRoles []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		gotAuth = r.Header.Get("Authorization")
		var body struct {
			Model    string `json:"model"`
			Messages []struct {
				Role string `json:"role"`
			} `json:"messages"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotModel = body.Model
		for _, m := range body.Messages {
			gotRoles = append(gotRoles, m.Role)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1700000000,
			"model": "google/gemini-2.5-flash",
			"choices": [{
				"index": 0,
				"finish_reason": "stop",
				"message": {"role": "assistant", "content": "{\"score\": 70, \"reasoning\": \"ok\"}"}
			}]
		}`))
	}))
	defer srv.Close()

	engine := NewOpenAIEngine("test-key", srv.URL+"/v1/", "google/gemini-2.5-flash")
	content, err := engine.Complete(context.Background(), systemPrompt, "score this")
	require.NoError(t, err)

	assert.Equal(t, `{"score": 70, "reasoning": "ok"}`, content)
	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "google/gemini-2.5-flash", gotModel)
	assert.Equal(t, []string{"system", "user"}, gotRoles)
}

func TestOpenAIEngineUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": {"message": "bad request", "type": "invalid_request_error"}}`))
	}))
	defer srv.Close()

	engine := NewOpenAIEngine("test-key", srv.URL+"/v1/", "m")
	_, err := engine.Complete(context.Background(), "s", "p")
	assert.Error(t, err)
}
