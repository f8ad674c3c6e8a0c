package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestModel(t *testing.T, serverURL string) *OpenAICompatibleChatModel {
	t.Helper()
	m, err := NewOpenAICompatibleChatModel("test-provider", "test-model", serverURL, "sk-test")
	require.NoError(t, err)
	return m
}

func TestNewOpenAICompatibleChatModelValidation(t *testing.T) {
	_, err := NewOpenAICompatibleChatModel("p", "m", "https://api.example.com/v1", "")
	assert.Error(t, err)

	_, err = NewOpenAICompatibleChatModel("p", "", "https://api.example.com/v1", "sk")
	assert.Error(t, err)

	m, err := NewOpenAICompatibleChatModel("p", "m", "https://api.example.com/v1/", "sk")
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com/v1/chat/completions", m.apiURL)
}

// 降级链按 model.ToolCallingChatModel 使用模型客户端，
// 接口必须在编译期满足。
func TestModelSatisfiesToolCallingInterface(t *testing.T) {
	var tcm model.ToolCallingChatModel = newTestModel(t, "https://api.example.com/v1")

	bound, err := tcm.WithTools(nil)
	require.NoError(t, err)
	assert.Same(t, tcm, bound)
}

func TestGenerateParsesCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "{\"ok\":true}"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 5, "total_tokens": 17}
		}`))
	}))
	defer srv.Close()

	m := newTestModel(t, srv.URL)
	msg, err := m.Generate(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	require.NoError(t, err)

	assert.Equal(t, schema.Assistant, msg.Role)
	assert.Equal(t, `{"ok":true}`, msg.Content)
	require.NotNil(t, msg.ResponseMeta)
	assert.Equal(t, 12, msg.ResponseMeta.Usage.PromptTokens)
	assert.Equal(t, 17, msg.ResponseMeta.Usage.TotalTokens)
}

func TestGenerateClassifies429AsRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	m := newTestModel(t, srv.URL)
	_, err := m.Generate(context.Background(), []*schema.Message{schema.UserMessage("hi")})

	var rle *RateLimitError
	require.ErrorAs(t, err, &rle)
	assert.Equal(t, "test-provider", rle.Provider)
	assert.Equal(t, 30*time.Second, rle.RetryAfter)
}

func TestGenerateClassifies5xxAsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	m := newTestModel(t, srv.URL)
	_, err := m.Generate(context.Background(), []*schema.Message{schema.UserMessage("hi")})

	var pue *ProviderUnavailableError
	require.ErrorAs(t, err, &pue)
}

func TestGenerateClassifies4xxAsRequestError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": "bad request"}`))
	}))
	defer srv.Close()

	m := newTestModel(t, srv.URL)
	_, err := m.Generate(context.Background(), []*schema.Message{schema.UserMessage("hi")})

	var mre *ModelRequestError
	require.ErrorAs(t, err, &mre)
	assert.Equal(t, http.StatusBadRequest, mre.StatusCode)
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, time.Duration(0), parseRetryAfter(""))
	assert.Equal(t, 45*time.Second, parseRetryAfter("45"))
	assert.Equal(t, time.Duration(0), parseRetryAfter("not-a-number"))
}
