package operator

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const maxAvatarSize = 10 << 20

// AvatarImage 下载到的头像摘要，原始字节不保留
type AvatarImage struct {
	Hash string
	MIME string
	Size int
}

// AvatarFetcher 单个监控任务独占的下载器，任务结束时 Close
type AvatarFetcher struct {
	transport *http.Transport
	client    *http.Client
}

func NewAvatarFetcher(timeout time.Duration) *AvatarFetcher {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        2,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: timeout,
	}
	return &AvatarFetcher{
		transport: transport,
		client:    &http.Client{Transport: transport, Timeout: timeout},
	}
}

// Download 返回原始字节
func (f *AvatarFetcher) Download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "构造头像请求失败")
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "下载头像失败")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("下载头像失败，状态码: %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAvatarSize))
	if err != nil {
		return nil, errors.Wrap(err, "读取头像内容失败")
	}
	return data, nil
}

// Fetch 下载并计算 MD5，失败时记日志返回 false
func (f *AvatarFetcher) Fetch(ctx context.Context, url string) (*AvatarImage, bool) {
	data, err := f.Download(ctx, url)
	if err != nil {
		if ctx.Err() == nil {
			zap.S().Named("operator").Warnf("%v: %s", err, url)
		}
		return nil, false
	}
	img := &AvatarImage{
		Hash: HashBytes(data),
		MIME: mimetype.Detect(data).String(),
		Size: len(data),
	}
	zap.S().Named("operator").Debugf("头像已下载: %s %s md5=%s", img.MIME, humanize.Bytes(uint64(img.Size)), img.Hash)
	return img, true
}

func (f *AvatarFetcher) Close() {
	f.transport.CloseIdleConnections()
}

// HashBytes 小写十六进制 MD5
func HashBytes(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

// ProbeImage 下载并检测文件类型，用于手动设置头像前的校验
func (f *AvatarFetcher) ProbeImage(ctx context.Context, url string) (*mimetype.MIME, error) {
	data, err := f.Download(ctx, url)
	if err != nil {
		return nil, err
	}
	mime, err := mimetype.DetectReader(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "检测文件类型失败")
	}
	return mime, nil
}

// IsImage 判断 mime 或其父类型是否为图片
func IsImage(mime *mimetype.MIME) bool {
	for m := mime; m != nil; m = m.Parent() {
		if strings.HasPrefix(m.String(), "image/") {
			return true
		}
	}
	return false
}
