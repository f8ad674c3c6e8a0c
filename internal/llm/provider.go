package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"resume-agent-go/internal/logger"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// --- OpenAI兼容请求/响应结构 ---

type openAIChatCompletionRequest struct {
	Model          string            `json:"model"`
	Messages       []*schema.Message `json:"messages"`
	Temperature    *float32          `json:"temperature,omitempty"`
	MaxTokens      *int              `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat   `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"` // "json_object"
}

type openAIMessage struct {
	Role    string  `json:"role"`
	Content *string `json:"content"`
}

type openAIChatChoice struct {
	Index        int           `json:"index"`
	Message      openAIMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type openAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type openAICompletionResponse struct {
	Id      string             `json:"id"`
	Object  string             `json:"object"`
	Created int64              `json:"created"`
	Model   string             `json:"model"`
	Choices []openAIChatChoice `json:"choices"`
	Usage   *openAIUsage       `json:"usage,omitempty"`
}

// OpenAICompatibleChatModel 实现 model.ToolCallingChatModel 接口，
// 对接任意OpenAI兼容的chat completions端点。
// 响应错误按可重试性分类：429归为RateLimitError，
// 5xx与网络错误归为ProviderUnavailableError，其余4xx归为ModelRequestError。
type OpenAICompatibleChatModel struct {
	providerName string
	modelName    string
	apiURL       string
	apiKey       string
	temperature  *float32
	jsonMode     bool
	httpClient   *http.Client
}

// NewOpenAICompatibleChatModel 创建模型客户端。baseURL为供应商根地址，
// 路径/chat/completions会自动补齐。
func NewOpenAICompatibleChatModel(providerName, modelName, baseURL, apiKey string) (*OpenAICompatibleChatModel, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("供应商%s的API密钥不能为空", providerName)
	}
	if strings.TrimSpace(modelName) == "" {
		return nil, fmt.Errorf("模型名称不能为空")
	}

	url := strings.TrimRight(baseURL, "/")
	if !strings.HasSuffix(url, "/chat/completions") {
		url += "/chat/completions"
	}

	return &OpenAICompatibleChatModel{
		providerName: providerName,
		modelName:    modelName,
		apiURL:       url,
		apiKey:       apiKey,
		httpClient:   &http.Client{},
	}, nil
}

// WithTemperature 设置默认采样温度。
func (m *OpenAICompatibleChatModel) WithTemperature(t float32) *OpenAICompatibleChatModel {
	m.temperature = &t
	return m
}

// WithJSONMode 请求端点以json_object格式返回。
// 并非所有供应商都支持，解析侧仍需做JSON提取兜底。
func (m *OpenAICompatibleChatModel) WithJSONMode() *OpenAICompatibleChatModel {
	m.jsonMode = true
	return m
}

// ProviderName 返回供应商标识。
func (m *OpenAICompatibleChatModel) ProviderName() string { return m.providerName }

// ModelName 返回模型标识。
func (m *OpenAICompatibleChatModel) ModelName() string { return m.modelName }

// Generate 实现 model.BaseChatModel 接口
func (m *OpenAICompatibleChatModel) Generate(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.Message, error) {
	opts := model.GetCommonOptions(&model.Options{
		Temperature: m.temperature,
	}, options...)

	reqPayload := openAIChatCompletionRequest{
		Model:       m.modelName,
		Messages:    messages,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	}
	if m.jsonMode {
		reqPayload.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	jsonData, err := json.Marshal(reqPayload)
	if err != nil {
		return nil, fmt.Errorf("序列化请求体失败: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.apiURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("创建HTTP请求失败: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+m.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := m.httpClient.Do(httpReq)
	if err != nil {
		return nil, &ProviderUnavailableError{Provider: m.providerName, Model: m.modelName, Cause: err}
	}
	defer httpResp.Body.Close()

	bodyBytes, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &ProviderUnavailableError{Provider: m.providerName, Model: m.modelName, Cause: err}
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, m.classifyHTTPError(httpResp, bodyBytes)
	}

	var openAIResp openAICompletionResponse
	if err := json.Unmarshal(bodyBytes, &openAIResp); err != nil {
		return nil, fmt.Errorf("反序列化API响应失败: %w。响应体: %s", err, truncateBody(string(bodyBytes)))
	}

	if len(openAIResp.Choices) == 0 {
		return nil, fmt.Errorf("API返回空choices: %s", truncateBody(string(bodyBytes)))
	}

	apiMessage := openAIResp.Choices[0].Message
	responseContent := ""
	if apiMessage.Content != nil {
		responseContent = *apiMessage.Content
	}

	resultMessage := &schema.Message{
		Role:    schema.RoleType(apiMessage.Role),
		Content: responseContent,
	}
	if resultMessage.Role == "" {
		resultMessage.Role = schema.Assistant
	}
	if openAIResp.Usage != nil {
		resultMessage.ResponseMeta = &schema.ResponseMeta{
			FinishReason: openAIResp.Choices[0].FinishReason,
			Usage: &schema.TokenUsage{
				PromptTokens:     openAIResp.Usage.PromptTokens,
				CompletionTokens: openAIResp.Usage.CompletionTokens,
				TotalTokens:      openAIResp.Usage.TotalTokens,
			},
		}
	}

	return resultMessage, nil
}

// Stream 实现 model.BaseChatModel 接口。解析流水线只走Generate，流式暂不支持。
func (m *OpenAICompatibleChatModel) Stream(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, fmt.Errorf("OpenAICompatibleChatModel的Stream方法未实现")
}

// WithTools 实现 model.ToolCallingChatModel 接口。
// 结构化抽取通过prompt约束JSON输出，不走工具调用。
func (m *OpenAICompatibleChatModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	if len(tools) > 0 {
		logger.Warn().Str("provider", m.providerName).Int("tool_count", len(tools)).Msg("模型客户端忽略工具绑定")
	}
	return m, nil
}

// classifyHTTPError 按状态码归类非200响应。
func (m *OpenAICompatibleChatModel) classifyHTTPError(resp *http.Response, body []byte) error {
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return &RateLimitError{
			Provider:   m.providerName,
			Model:      m.modelName,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Body:       truncateBody(string(body)),
		}
	case resp.StatusCode >= 500:
		return &ProviderUnavailableError{
			Provider: m.providerName,
			Model:    m.modelName,
			Cause:    fmt.Errorf("状态 %s: %s", resp.Status, truncateBody(string(body))),
		}
	default:
		return &ModelRequestError{
			Provider:   m.providerName,
			Model:      m.modelName,
			StatusCode: resp.StatusCode,
			Body:       string(body),
		}
	}
}

// parseRetryAfter 解析Retry-After头，支持秒数与HTTP日期两种格式。
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(value); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

var _ model.ToolCallingChatModel = (*OpenAICompatibleChatModel)(nil)
