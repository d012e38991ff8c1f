package bot

import (
	"fmt"
	"slices"
	"strings"

	"github.com/sealdice/qqoperator/bot/types"
)

func (b *Bot) RegisterExtension(extInfo *types.ExtInfo) {
	for _, name := range append(slices.Clone(extInfo.Aliases), extInfo.Name) {
		if collide := b.ExtFind(name); collide != nil {
			panic(fmt.Sprintf("扩展<%s>的名字%q与现存扩展<%s>冲突", extInfo.Name, name, collide.Name))
		}
	}

	b.ExtList = append(b.ExtList, extInfo)
	if extInfo.OnLoad != nil {
		extInfo.OnLoad()
	}
}

// ExtFind 根据名称或别名查找扩展，名字优先，其次别名，最后忽略大小写
func (b *Bot) ExtFind(s string) *types.ExtInfo {
	for _, i := range b.ExtList {
		if i.Name == s {
			return i
		}
	}
	for _, i := range b.ExtList {
		if slices.Contains(i.Aliases, s) {
			return i
		}
	}
	for _, i := range b.ExtList {
		if strings.EqualFold(i.Name, s) || slices.Contains(i.Aliases, strings.ToLower(s)) {
			return i
		}
	}
	return nil
}

func (b *Bot) GetExtList() []*types.ExtInfo {
	return b.ExtList
}
