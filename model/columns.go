package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Clock 可注入的时间源，测试中用固定时间替换 time.Now。
type Clock func() time.Time

// Timestamp 以 Unix 毫秒整数存储的时间，零值对应 NULL。
type Timestamp struct {
	time.Time
}

func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t}
}

// Millis 返回 Unix 毫秒，零值返回 0。
func (t Timestamp) Millis() int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func (t Timestamp) Value() (driver.Value, error) {
	if t.IsZero() {
		return nil, nil
	}
	return t.UnixMilli(), nil
}

func (t *Timestamp) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		t.Time = time.Time{}
	case int64:
		t.Time = time.UnixMilli(v)
	case float64:
		t.Time = time.UnixMilli(int64(v))
	case []byte:
		return t.Scan(string(v))
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("failed to scan timestamp %q: %w", v, err)
		}
		t.Time = time.UnixMilli(n)
	default:
		return fmt.Errorf("unsupported timestamp source %T", src)
	}
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time)
}

// StringList JSON 数组列
type StringList []string

func (l StringList) Value() (driver.Value, error) { return jsonValue(l, "[]") }
func (l *StringList) Scan(src any) error        { return jsonScan(src, l) }

// Contains 是否包含 v
func (l StringList) Contains(v string) bool {
	for _, s := range l {
		if s == v {
			return true
		}
	}
	return false
}

// StringMap JSON 对象列
type StringMap map[string]string

func (m StringMap) Value() (driver.Value, error) { return jsonValue(m, "{}") }
func (m *StringMap) Scan(src any) error        { return jsonScan(src, m) }

// ContentList 自动回复回应列表列
type ContentList []Content

func (l ContentList) Value() (driver.Value, error) { return jsonValue(l, "[]") }
func (l *ContentList) Scan(src any) error        { return jsonScan(src, l) }

// FlagList 权限列表列
type FlagList []PermissionFlag

func (l FlagList) Value() (driver.Value, error) { return jsonValue(l, "[]") }
func (l *FlagList) Scan(src any) error        { return jsonScan(src, l) }

// DataMap 任意键值列（Execode 附带数据）
type DataMap map[string]any

func (m DataMap) Value() (driver.Value, error) { return jsonValue(m, "{}") }
func (m *DataMap) Scan(src any) error        { return jsonScan(src, m) }

func jsonValue(v any, empty string) (driver.Value, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal json column: %w", err)
	}
	if string(b) == "null" {
		return empty, nil
	}
	return string(b), nil
}

func jsonScan(src any, dst any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported json column source %T", src)
	}
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("failed to unmarshal json column: %w", err)
	}
	return nil
}
