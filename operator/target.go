package operator

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrEmptyTarget   = errors.New("模仿目标为空")
	ErrInvalidTarget = errors.New("模仿目标格式错误，应为'群号,QQ号'")
)

// Target 被模仿的用户
type Target struct {
	GroupID int64 `json:"group_id"`
	UserID  int64 `json:"user_id"`
}

// String 持久化格式 "群号,QQ号"
func (t Target) String() string {
	return fmt.Sprintf("%d,%d", t.GroupID, t.UserID)
}

// ParseTarget 解析 "群号,QQ号"，两段都必须是纯数字
func ParseTarget(s string) (Target, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Target{}, ErrEmptyTarget
	}
	parts := strings.SplitN(s, ",", 2)
	if len(parts) != 2 {
		return Target{}, errors.Wrapf(ErrInvalidTarget, "实际为'%s'", s)
	}

	groupPart := strings.TrimSpace(parts[0])
	userPart := strings.TrimSpace(parts[1])
	if !isDigits(groupPart) || !isDigits(userPart) {
		return Target{}, errors.Wrapf(ErrInvalidTarget, "群号或QQ号必须为数字，实际为'%s,%s'", groupPart, userPart)
	}

	groupID, err := strconv.ParseInt(groupPart, 10, 64)
	if err != nil {
		return Target{}, errors.Wrapf(ErrInvalidTarget, "群号转换错误: %v", err)
	}
	userID, err := strconv.ParseInt(userPart, 10, 64)
	if err != nil {
		return Target{}, errors.Wrapf(ErrInvalidTarget, "QQ号转换错误: %v", err)
	}
	return Target{GroupID: groupID, UserID: userID}, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
