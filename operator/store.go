package operator

import (
	"encoding/json"
	"errors"
	"strings"

	pkgerrors "github.com/pkg/errors"
	"github.com/tidwall/buntdb"
)

// Store 持久化模仿目标和已同步的指纹，进程重启后用于自动恢复
type Store interface {
	// LoadTarget found 为 false 表示从未写入过；写入过空串表示已被手动停止
	LoadTarget() (target string, found bool, err error)
	SaveTarget(target string) error
	ClearTarget() error
	LoadFingerprint(target Target) (*Fingerprint, error)
	SaveFingerprint(target Target, fp *Fingerprint) error
	ClearFingerprints() error
}

const (
	targetKey         = "imitate:target"
	fingerprintPrefix = "imitate:fingerprint:"
)

func fingerprintKey(target Target) string {
	return fingerprintPrefix + target.String()
}

type BuntStore struct {
	db *buntdb.DB
}

// NewBuntStore db 由调用方打开和关闭，测试可用 ":memory:"
func NewBuntStore(db *buntdb.DB) *BuntStore {
	return &BuntStore{db: db}
}

func (s *BuntStore) LoadTarget() (string, bool, error) {
	var value string
	err := s.db.View(func(tx *buntdb.Tx) error {
		v, err := tx.Get(targetKey)
		if err != nil {
			return err
		}
		value = v
		return nil
	})
	if errors.Is(err, buntdb.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, pkgerrors.Wrap(err, "读取模仿目标失败")
	}
	return value, true, nil
}

func (s *BuntStore) SaveTarget(target string) error {
	err := s.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(targetKey, target, nil)
		return err
	})
	return pkgerrors.Wrap(err, "保存模仿目标失败")
}

// ClearTarget 写入空串而不是删除，使配置文件里的默认目标不再被自动恢复
func (s *BuntStore) ClearTarget() error {
	return s.SaveTarget("")
}

func (s *BuntStore) LoadFingerprint(target Target) (*Fingerprint, error) {
	var fp *Fingerprint
	err := s.db.View(func(tx *buntdb.Tx) error {
		raw, err := tx.Get(fingerprintKey(target))
		if err != nil {
			return err
		}
		var stored Fingerprint
		if err := json.Unmarshal([]byte(raw), &stored); err != nil {
			return err
		}
		fp = &stored
		return nil
	})
	if errors.Is(err, buntdb.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(err, "读取同步指纹失败")
	}
	return fp, nil
}

func (s *BuntStore) SaveFingerprint(target Target, fp *Fingerprint) error {
	if fp == nil {
		return nil
	}
	data, err := json.Marshal(fp)
	if err != nil {
		return pkgerrors.Wrap(err, "序列化同步指纹失败")
	}
	err = s.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(fingerprintKey(target), string(data), nil)
		return err
	})
	return pkgerrors.Wrap(err, "保存同步指纹失败")
}

func (s *BuntStore) ClearFingerprints() error {
	err := s.db.Update(func(tx *buntdb.Tx) error {
		var keys []string
		err := tx.AscendKeys(fingerprintPrefix+"*", func(key, _ string) bool {
			keys = append(keys, key)
			return true
		})
		if err != nil {
			return err
		}
		for _, key := range keys {
			if _, err := tx.Delete(key); err != nil && !errors.Is(err, buntdb.ErrNotFound) {
				return err
			}
		}
		return nil
	})
	return pkgerrors.Wrap(err, "清除同步指纹失败")
}

// nopStore 未配置持久化时使用
type nopStore struct{}

func (nopStore) LoadTarget() (string, bool, error) { return "", false, nil }
func (nopStore) SaveTarget(string) error { return nil }
func (nopStore) ClearTarget() error { return nil }
func (nopStore) LoadFingerprint(Target) (*Fingerprint, error) { return nil, nil }
func (nopStore) SaveFingerprint(Target, *Fingerprint) error { return nil }
func (nopStore) ClearFingerprints() error { return nil }

var _ Store = (*BuntStore)(nil)
var _ Store = nopStore{}

func isStoredEmpty(s string) bool {
	return strings.TrimSpace(s) == ""
}
