package utils

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	qqUserPrefix  = "QQ:"
	qqGroupPrefix = "QQ-Group:"
)

// FormatQQUserID 123 -> QQ:123
func FormatQQUserID(uid string) string {
	return qqUserPrefix + uid
}

// FormatQQGroupID 123 -> QQ-Group:123
func FormatQQGroupID(gid string) string {
	return qqGroupPrefix + gid
}

// ExtractQQUserID 去掉用户ID的平台前缀
func ExtractQQUserID(id string) string {
	return strings.TrimPrefix(id, qqUserPrefix)
}

// ExtractQQGroupID 去掉群ID的平台前缀
func ExtractQQGroupID(id string) string {
	return strings.TrimPrefix(id, qqGroupPrefix)
}

// ParseQQID 解析带或不带前缀的QQ号/群号
func ParseQQID(id string) (int64, error) {
	trimmed := strings.TrimSpace(id)
	trimmed = strings.TrimPrefix(trimmed, qqGroupPrefix)
	trimmed = strings.TrimPrefix(trimmed, qqUserPrefix)
	if trimmed == "" {
		return 0, fmt.Errorf("empty numeric id")
	}
	v, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid numeric id %q: %w", id, err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("invalid numeric id %q", id)
	}
	return v, nil
}
