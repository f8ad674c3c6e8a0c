package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var codeFenceRe = regexp.MustCompile("(?is)```(?:json)?\\s*(.*?)```")

// ExtractJSONObject 从模型输出中提取JSON对象。
// 处理常见的格式问题：```json代码围栏、JSON前的铺垫文字、JSON后的附注。
// 提取失败返回错误，调用方据此走重提示或终态处理。
func ExtractJSONObject(modelText string) (map[string]interface{}, error) {
	text := strings.TrimSpace(modelText)
	if text == "" {
		return nil, fmt.Errorf("模型输出为空")
	}

	if m := codeFenceRe.FindStringSubmatch(text); m != nil {
		text = strings.TrimSpace(m[1])
	}

	first := strings.Index(text, "{")
	last := strings.LastIndex(text, "}")
	if first != -1 && last > first {
		text = text[first : last+1]
	}

	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		return nil, fmt.Errorf("模型输出不是合法JSON: %w", err)
	}
	return obj, nil
}

// ExtractRawJSON 与ExtractJSONObject同样的恢复逻辑，但返回原始字节，
// 供需要按原样持久化模型输出的场景使用。
func ExtractRawJSON(modelText string) ([]byte, error) {
	obj, err := ExtractJSONObject(modelText)
	if err != nil {
		return nil, err
	}
	return json.Marshal(obj)
}
