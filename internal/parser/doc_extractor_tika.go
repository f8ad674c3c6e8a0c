package parser

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"resume-agent-go/internal/logger"
)

// TikaTextExtractor 基于Apache Tika Server的通用文本提取器，
// 负责doc/docx与未知类型。Tika自带格式探测，Content-Type统一交给它判断。
type TikaTextExtractor struct {
	// Tika服务器地址，例如 http://localhost:9998
	ServerURL string
	// HTTP客户端，可配置超时等参数
	Client *http.Client
}

// TikaOption 定义配置选项函数
type TikaOption func(*TikaTextExtractor)

// WithTimeout 配置HTTP客户端超时时间
func WithTimeout(timeout time.Duration) TikaOption {
	return func(e *TikaTextExtractor) {
		e.Client.Timeout = timeout
	}
}

// NewTikaTextExtractor 创建Tika文本提取器
func NewTikaTextExtractor(serverURL string, options ...TikaOption) *TikaTextExtractor {
	extractor := &TikaTextExtractor{
		ServerURL: serverURL,
		Client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}

	for _, option := range options {
		option(extractor)
	}

	return extractor
}

func (e *TikaTextExtractor) Method() string { return "tika" }

// ExtractTextFromBytes 通过Tika /tika端点提取纯文本
func (e *TikaTextExtractor) ExtractTextFromBytes(ctx context.Context, data []byte, uri string, options interface{}) (string, map[string]interface{}, error) {
	startTime := time.Now()

	baseMetadata := map[string]interface{}{
		"extraction_time":  time.Now().Format(time.RFC3339),
		"source_file_path": uri,
	}

	url := fmt.Sprintf("%s/tika", e.ServerURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(data))
	if err != nil {
		return "", baseMetadata, fmt.Errorf("创建HTTP请求失败: %w", err)
	}

	req.Header.Set("Accept", "text/plain")
	if uri != "" {
		req.Header.Set("X-Tika-Resource-Name", uri)
	}

	resp, err := e.Client.Do(req)
	if err != nil {
		return "", baseMetadata, fmt.Errorf("发送请求到Tika服务器失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusUnprocessableEntity {
			// Tika用422表示无法解析的文档（加密或损坏）
			return "", baseMetadata, NewExtractionError(ErrCodeCorruptedFile,
				fmt.Sprintf("Tika无法解析文档 (status=%d)", resp.StatusCode), nil)
		}
		return "", baseMetadata, fmt.Errorf("tika服务器返回错误状态码: %d", resp.StatusCode)
	}

	textBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", baseMetadata, fmt.Errorf("读取Tika响应失败: %w", err)
	}

	text := string(textBytes)
	baseMetadata["text_length"] = len(text)
	baseMetadata["processing_duration_ms"] = time.Since(startTime).Milliseconds()

	logger.Debug().Str("uri", uri).Int("chars", len(text)).Msg("Tika文本提取完成")
	return text, baseMetadata, nil
}

var _ TextExtractor = (*TikaTextExtractor)(nil)
