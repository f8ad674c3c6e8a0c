package parser

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"resume-agent-go/internal/logger"

	"github.com/cloudwego/eino-ext/components/document/parser/pdf"
	einoParser "github.com/cloudwego/eino/components/document/parser"
)

// EinoPDFTextExtractor 使用 Eino PDF Parser 提取文本
type EinoPDFTextExtractor struct {
	parser  *pdf.PDFParser
	timeout time.Duration
}

// NewEinoPDFTextExtractor 初始化 Eino PDF 文本提取器。
// 配置为不按页面分割，以获取整个文档的连续文本。
func NewEinoPDFTextExtractor(ctx context.Context) (*EinoPDFTextExtractor, error) {
	p, err := pdf.NewPDFParser(ctx, &pdf.Config{
		ToPages: false,
	})
	if err != nil {
		return nil, fmt.Errorf("创建Eino PDF解析器失败: %w", err)
	}

	return &EinoPDFTextExtractor{
		parser:  p,
		timeout: 30 * time.Second,
	}, nil
}

func (e *EinoPDFTextExtractor) Method() string { return "eino-pdf" }

// ExtractTextFromBytes 从字节数组提取文本内容。
// 加密与损坏的PDF映射为带码的ExtractionError，调用方据此终态处理。
func (e *EinoPDFTextExtractor) ExtractTextFromBytes(ctx context.Context, data []byte, uri string, options interface{}) (string, map[string]interface{}, error) {
	startTime := time.Now()

	extraMeta := map[string]interface{}{
		"source_file_path": uri,
		"extraction_time":  time.Now().Format(time.RFC3339),
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	docs, err := e.parser.Parse(ctx, bytes.NewReader(data),
		einoParser.WithURI(uri),
		einoParser.WithExtraMeta(extraMeta),
	)

	duration := time.Since(startTime)
	if err != nil {
		logger.Warn().Err(err).Str("uri", uri).Dur("duration", duration).Msg("PDF文本提取失败")
		return "", extraMeta, classifyPDFError(err)
	}

	if len(docs) == 0 {
		return "", extraMeta, NewExtractionError(ErrCodeEmptyText, "PDF解析未返回任何文档", nil)
	}

	var sb strings.Builder
	for i, doc := range docs {
		sb.WriteString(doc.Content)
		if i < len(docs)-1 {
			sb.WriteString("\n\n")
		}
	}
	fullContent := sb.String()

	finalMetadata := extraMeta
	if docs[0].MetaData != nil {
		finalMetadata = docs[0].MetaData
		for k, v := range extraMeta {
			finalMetadata[k] = v
		}
	}
	finalMetadata["processing_duration_ms"] = duration.Milliseconds()
	finalMetadata["document_count"] = len(docs)
	finalMetadata["text_length"] = len(fullContent)

	logger.Debug().Str("uri", uri).Int("chars", len(fullContent)).Dur("duration", duration).Msg("PDF文本提取完成")
	return fullContent, finalMetadata, nil
}

// classifyPDFError 根据底层库的错误信息归类为带码的提取错误。
func classifyPDFError(err error) *ExtractionError {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "encrypted") || strings.Contains(msg, "password"):
		return NewExtractionError(ErrCodePasswordProtected, "PDF文件已加密", err)
	case strings.Contains(msg, "malformed") || strings.Contains(msg, "invalid") || strings.Contains(msg, "not a pdf"):
		return NewExtractionError(ErrCodeCorruptedFile, "PDF文件已损坏", err)
	default:
		return NewExtractionError(ErrCodeExtractionFailed, "PDF提取失败", err)
	}
}

var _ TextExtractor = (*EinoPDFTextExtractor)(nil)
