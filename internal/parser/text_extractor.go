package parser

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"resume-agent-go/internal/logger"
)

// 提取失败的错误码
const (
	ErrCodePasswordProtected = "PASSWORD_PROTECTED"
	ErrCodeCorruptedFile     = "CORRUPTED_FILE"
	ErrCodeUnsupportedType   = "UNSUPPORTED_TYPE"
	ErrCodeEmptyText         = "EMPTY_TEXT"
	ErrCodeExtractionFailed  = "EXTRACTION_FAILED"
)

// ExtractionError 文本提取错误，携带机器可读的错误码。
// 提取错误都是终态：同一份文件重试不会有不同结果。
type ExtractionError struct {
	Code    string
	Message string
	Cause   error
}

func (e *ExtractionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ExtractionError) Unwrap() error { return e.Cause }

// NewExtractionError 创建提取错误。
func NewExtractionError(code, message string, cause error) *ExtractionError {
	return &ExtractionError{Code: code, Message: message, Cause: cause}
}

// TextExtractor 单一格式的文本提取器
type TextExtractor interface {
	// ExtractTextFromBytes 从字节数组提取文本和元数据
	ExtractTextFromBytes(ctx context.Context, data []byte, uri string, options interface{}) (string, map[string]interface{}, error)

	// Method 返回提取方式标识，随运行记录持久化
	Method() string
}

// CompositeExtractor 按文件扩展名与MIME类型分发到具体提取器。
// 未知类型回落到Tika（Tika自带格式探测）。
type CompositeExtractor struct {
	pdf   TextExtractor
	tika  TextExtractor
	plain TextExtractor
}

// NewCompositeExtractor 组装分发提取器。tika可为nil，此时doc/docx与未知类型直接报UNSUPPORTED_TYPE。
func NewCompositeExtractor(pdf, tika, plain TextExtractor) *CompositeExtractor {
	return &CompositeExtractor{pdf: pdf, tika: tika, plain: plain}
}

// Extract 分发提取并返回(清洗后文本, 提取方式, 元数据)。
// 提取成功但文本为空视为EMPTY_TEXT错误。
func (c *CompositeExtractor) Extract(ctx context.Context, data []byte, filename, mimeType string) (string, string, map[string]interface{}, error) {
	extractor, err := c.pick(filename, mimeType)
	if err != nil {
		return "", "", nil, err
	}

	text, meta, err := extractor.ExtractTextFromBytes(ctx, data, filename, nil)
	if err != nil {
		var exErr *ExtractionError
		if !errors.As(err, &exErr) {
			err = NewExtractionError(ErrCodeExtractionFailed, "文本提取失败", err)
		}
		return "", extractor.Method(), meta, err
	}

	cleaned := CleanText(text)
	if cleaned == "" {
		logger.Warn().Str("filename", filename).Str("method", extractor.Method()).Msg("提取结果为空文本")
		return "", extractor.Method(), meta, NewExtractionError(ErrCodeEmptyText, "文件中未提取到任何文本", nil)
	}

	return cleaned, extractor.Method(), meta, nil
}

func (c *CompositeExtractor) pick(filename, mimeType string) (TextExtractor, error) {
	ext := strings.ToLower(filepath.Ext(filename))

	switch {
	case ext == ".pdf" || mimeType == "application/pdf":
		return c.pdf, nil
	case ext == ".txt" || mimeType == "text/plain":
		return c.plain, nil
	case ext == ".docx" || mimeType == "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		ext == ".doc" || mimeType == "application/msword":
		if c.tika == nil {
			return nil, NewExtractionError(ErrCodeUnsupportedType, fmt.Sprintf("未配置Tika，无法处理%s文件", ext), nil)
		}
		return c.tika, nil
	default:
		// 未知类型交给Tika探测
		if c.tika == nil {
			return nil, NewExtractionError(ErrCodeUnsupportedType, fmt.Sprintf("不支持的文件类型: %s (%s)", ext, mimeType), nil)
		}
		logger.Warn().Str("filename", filename).Str("mime_type", mimeType).Msg("未知文件类型，交给Tika探测")
		return c.tika, nil
	}
}

// PlainTextExtractor 纯文本提取器。非UTF-8内容按Latin-1兜底解码，不丢字节。
type PlainTextExtractor struct{}

func NewPlainTextExtractor() *PlainTextExtractor { return &PlainTextExtractor{} }

func (p *PlainTextExtractor) Method() string { return "plaintext" }

func (p *PlainTextExtractor) ExtractTextFromBytes(ctx context.Context, data []byte, uri string, options interface{}) (string, map[string]interface{}, error) {
	meta := map[string]interface{}{
		"source_file_path": uri,
		"text_length":      len(data),
	}

	if utf8.Valid(data) {
		meta["encoding"] = "utf-8"
		return string(data), meta, nil
	}

	// Latin-1每个字节都是合法码点，作为最后的兜底
	runes := make([]rune, len(data))
	for i, b := range data {
		runes[i] = rune(b)
	}
	meta["encoding"] = "latin-1"
	return string(runes), meta, nil
}

var _ TextExtractor = (*PlainTextExtractor)(nil)
