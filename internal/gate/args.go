package gate

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
)

// NormalizeArgs 把任意参数值转为字符串表示，键保持不变；纯函数，不会失败
func NormalizeArgs(args map[string]any) map[string]string {
	out := make(map[string]string, len(args))
	for k, v := range args {
		out[k] = Stringify(v)
	}
	return out
}

// Stringify 单个值的规范文本：nil 为 "null"，字符串原样，数字与布尔取字面量，
// 复合值为紧凑 JSON，JSON 无法编码的值退回 %v
func Stringify(v any) string {
	if isNil(v) {
		return "null"
	}
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	case bool:
		return strconv.FormatBool(x)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprint(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case json.Number:
		return x.String()
	case json.RawMessage:
		return string(x)
	case error:
		return x.Error()
	case fmt.Stringer:
		return x.String()
	}
	if data, err := json.Marshal(v); err == nil {
		return string(data)
	}
	return fmt.Sprintf("%v", v)
}

// SerializeResult 工具结果的 JSON 表示（did-call 通知使用）
func SerializeResult(result any) string {
	if isNil(result) {
		return "null"
	}
	if data, err := json.Marshal(result); err == nil {
		return string(data)
	}
	return fmt.Sprintf("%v", result)
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
