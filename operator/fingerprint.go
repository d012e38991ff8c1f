package operator

// Fingerprint 最近一次成功同步到机器人身上的资料
type Fingerprint struct {
	Nickname   string `json:"nickname"`
	Card       string `json:"card"`
	AvatarHash string `json:"avatar_hash"`
}

// NeedsUpdate 首次同步或任一字段变化时为 true
func NeedsUpdate(cached *Fingerprint, profile Profile, avatarHash string) bool {
	if cached == nil {
		return true
	}
	return cached.Nickname != profile.Nickname ||
		cached.Card != profile.Card ||
		cached.AvatarHash != avatarHash
}

func avatarStale(cached *Fingerprint, avatarHash string) bool {
	return cached == nil || cached.AvatarHash != avatarHash
}

func cardStale(cached *Fingerprint, profile Profile) bool {
	return cached == nil || cached.Nickname != profile.Nickname || cached.Card != profile.Card
}

// applied 只更新本轮成功写入的字段，其余保留旧值
func applied(cached *Fingerprint, profile Profile, avatarHash string, avatarDone, cardDone bool) *Fingerprint {
	var next Fingerprint
	if cached != nil {
		next = *cached
	}
	if avatarDone {
		next.AvatarHash = avatarHash
	}
	if cardDone {
		next.Nickname = profile.Nickname
		next.Card = profile.Card
	}
	return &next
}

func (fp *Fingerprint) clone() *Fingerprint {
	if fp == nil {
		return nil
	}
	c := *fp
	return &c
}
