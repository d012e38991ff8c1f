package types

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

type CmdArgs struct {
	Command           string   // 命中的指令名
	Args              []string // 以空白切分的参数
	CleanArgs         string   // 去掉首尾空白的参数原文
	RawArgs           string   // 指令名之后的原文
	Prefix            string   // 命中的指令前缀
	IsSpaceBeforeArgs bool
	Mentions          []string // 消息中被@的QQ号
}

// GetArgN 取第 n 个参数，从 1 开始计数
func (a *CmdArgs) GetArgN(n int) string {
	if n <= 0 || n > len(a.Args) {
		return ""
	}
	return a.Args[n-1]
}

// IsArgEqual 第 n 个参数是否与任一候选相等，忽略大小写
func (a *CmdArgs) IsArgEqual(n int, candidates ...string) bool {
	arg := a.GetArgN(n)
	if arg == "" {
		return false
	}
	for _, c := range candidates {
		if strings.EqualFold(arg, c) {
			return true
		}
	}
	return false
}

// CommandParse 从消息文本中解析指令。未命中前缀或指令时返回 nil。
// 指令按长度降序匹配，保证 "模仿状态" 优先于 "模仿"。
func CommandParse(text string, commands []string, prefixes []string) *CmdArgs {
	text = strings.TrimLeftFunc(text, unicode.IsSpace)

	var prefix string
	matchedPrefix := false
	for _, p := range prefixes {
		if strings.HasPrefix(text, p) {
			prefix = p
			matchedPrefix = true
			break
		}
	}
	if !matchedPrefix {
		return nil
	}
	rest := strings.TrimLeftFunc(text[len(prefix):], unicode.IsSpace)

	sorted := make([]string, len(commands))
	copy(sorted, commands)
	sort.SliceStable(sorted, func(i, j int) bool {
		return utf8.RuneCountInString(sorted[i]) > utf8.RuneCountInString(sorted[j])
	})

	for _, cmd := range sorted {
		if cmd == "" || !hasPrefixFold(rest, cmd) {
			continue
		}
		raw := rest[len(cmd):]
		clean := strings.TrimSpace(raw)
		args := strings.Fields(clean)
		if args == nil {
			args = []string{}
		}
		r, _ := utf8.DecodeRuneInString(raw)
		return &CmdArgs{
			Command:           cmd,
			Args:              args,
			CleanArgs:         clean,
			RawArgs:           raw,
			Prefix:            prefix,
			IsSpaceBeforeArgs: raw != "" && unicode.IsSpace(r),
		}
	}
	return nil
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}
