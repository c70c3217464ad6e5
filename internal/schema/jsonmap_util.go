package schema

import (
	"strconv"
	"strings"
	"time"
)

// GetString 读取字符串字段（数字会被格式化为字符串，便于 commentId 这类 ID 做键）
func GetString(meta JSONMap, key string) string {
	if meta == nil {
		return ""
	}
	raw, ok := meta[key]
	if !ok || raw == nil {
		return ""
	}
	switch v := raw.(type) {
	case string:
		return strings.TrimSpace(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatInt(int64(v), 10)
	default:
		return ""
	}
}

// GetInt 读取整数字段；JSON 反序列化后的数字是 float64
func GetInt(meta JSONMap, key string) int {
	if meta == nil {
		return 0
	}
	switch v := meta[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case float32:
		return int(v)
	case string:
		n, _ := strconv.Atoi(strings.TrimSpace(v))
		return n
	default:
		return 0
	}
}

// GetTime 读取时间字段，支持 time.Time 与 RFC3339 字符串；缺失返回零值
func GetTime(meta JSONMap, key string) time.Time {
	if meta == nil {
		return time.Time{}
	}
	switch v := meta[key].(type) {
	case time.Time:
		return v
	case *time.Time:
		if v == nil {
			return time.Time{}
		}
		return *v
	case string:
		t, err := time.Parse(time.RFC3339, strings.TrimSpace(v))
		if err != nil {
			return time.Time{}
		}
		return t
	default:
		return time.Time{}
	}
}
