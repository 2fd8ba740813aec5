package wizard

import (
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"
)

// Fields 是向导累积的字段值，所有修改都返回新的副本。
type Fields map[string]any

// Clone 返回浅拷贝。
func (f Fields) Clone() Fields {
	if f == nil {
		return Fields{}
	}
	return maps.Clone(f)
}

// DeepClone 返回深拷贝，嵌套的 map 与切片也会被复制。
func (f Fields) DeepClone() Fields {
	if f == nil {
		return Fields{}
	}
	return Fields(CloneMap(f))
}

// CloneMap 深拷贝字段形态的 map，nil 保持为 nil。
func CloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for key, value := range m {
		out[key] = CloneValue(value)
	}
	return out
}

// CloneValue 深拷贝 JSON 形态的值：map、切片递归复制，其余按值返回。
func CloneValue(v any) any {
	switch typed := v.(type) {
	case map[string]any:
		return CloneMap(typed)
	case Fields:
		return Fields(CloneMap(typed))
	case []any:
		if typed == nil {
			return typed
		}
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = CloneValue(item)
		}
		return out
	case []map[string]any:
		if typed == nil {
			return typed
		}
		out := make([]map[string]any, len(typed))
		for i, item := range typed {
			out[i] = CloneMap(item)
		}
		return out
	case []string:
		return slices.Clone(typed)
	default:
		return v
	}
}

// With 返回设置了 key 的新副本，value 为 nil 时删除该字段。
func (f Fields) With(key string, value any) Fields {
	out := f.Clone()
	if value == nil {
		delete(out, key)
		return out
	}
	out[key] = value
	return out
}

// Merge 返回合并了 other 的新副本。
func (f Fields) Merge(other map[string]any) Fields {
	out := f.Clone()
	for key, value := range other {
		if value == nil {
			delete(out, key)
			continue
		}
		out[key] = value
	}
	return out
}

// Has 判断字段是否存在且非空。
func (f Fields) Has(key string) bool {
	value, ok := f[key]
	if !ok || value == nil {
		return false
	}
	if s, ok := value.(string); ok {
		return strings.TrimSpace(s) != ""
	}
	return true
}

func (f Fields) String(key string) string { return String(f[key]) }

func (f Fields) Float(key string) (float64, bool) { return Float(f[key]) }

func (f Fields) Int(key string) (int64, bool) { return Int(f[key]) }

func (f Fields) Bool(key string) bool {
	v, _ := Bool(f[key])
	return v
}

func (f Fields) Items(key string) []map[string]any { return Items(f[key]) }

// String 把任意字段值转换为去除首尾空白的字符串。
func String(v any) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(value)
	case json.Number:
		return value.String()
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	case fmt.Stringer:
		return strings.TrimSpace(value.String())
	default:
		return strings.TrimSpace(fmt.Sprint(value))
	}
}

// Float 把 JSON 数字、整数或数字字符串转换为 float64。
func Float(v any) (float64, bool) {
	switch value := v.(type) {
	case float64:
		return value, !math.IsNaN(value) && !math.IsInf(value, 0)
	case float32:
		return float64(value), true
	case int:
		return float64(value), true
	case int64:
		return float64(value), true
	case int32:
		return float64(value), true
	case uint64:
		return float64(value), true
	case json.Number:
		f, err := value.Float64()
		return f, err == nil
	case string:
		s := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(value), "%"))
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// Int 把字段值转换为整数，带小数部分的数值视为非法。
func Int(v any) (int64, bool) {
	switch value := v.(type) {
	case int:
		return int64(value), true
	case int64:
		return value, true
	case int32:
		return int64(value), true
	case string:
		s := strings.TrimSpace(value)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, true
		}
	}
	f, ok := Float(v)
	if !ok || f != math.Trunc(f) || math.Abs(f) > math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

// Bool 识别布尔值以及常见的中英文是/否写法。
func Bool(v any) (bool, bool) {
	switch value := v.(type) {
	case bool:
		return value, true
	case string:
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "true", "yes", "y", "1", "on", "是", "开启":
			return true, true
		case "false", "no", "n", "0", "off", "否", "关闭":
			return false, true
		}
		return false, false
	default:
		if f, ok := Float(v); ok {
			return f != 0, true
		}
		return false, false
	}
}

// Items 把字段值转换为对象列表，支持 JSON 字符串形式的列表。
func Items(v any) []map[string]any {
	switch value := v.(type) {
	case []map[string]any:
		return value
	case []any:
		out := make([]map[string]any, 0, len(value))
		for _, item := range value {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	case string:
		s := strings.TrimSpace(value)
		if s == "" {
			return nil
		}
		var items []map[string]any
		if err := json.Unmarshal([]byte(s), &items); err != nil {
			return nil
		}
		return items
	default:
		return nil
	}
}
