package operator

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// Response 协议端响应的三种形态，只在边界处解析一次
type Response interface {
	// Payload 解包后的数据
	Payload() gjson.Result
	// Err 业务失败时非 nil
	Err() error
	isResponse()
}

// SequencePayload 直接返回的数组
type SequencePayload struct {
	Items gjson.Result
}

// WrappedPayload {status, retcode, data} 包装
type WrappedPayload struct {
	Status  string
	RetCode int64
	Message string
	Wording string
	Data    gjson.Result
}

// RawMapping 不带 data 的对象，字段直接平铺
type RawMapping struct {
	Fields gjson.Result
}

type ActionError struct {
	Status  string
	RetCode int64
	Message string
}

func (e *ActionError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "未知错误"
	}
	if e.Status == "" {
		return msg
	}
	return fmt.Sprintf("%s (status=%s, retcode=%d)", msg, e.Status, e.RetCode)
}

func (p SequencePayload) Payload() gjson.Result { return p.Items }
func (p SequencePayload) Err() error { return nil }
func (SequencePayload) isResponse() {}

func (p WrappedPayload) Payload() gjson.Result { return p.Data }

func (p WrappedPayload) Err() error {
	if p.Status == "" || strings.EqualFold(p.Status, "ok") {
		return nil
	}
	msg := p.Message
	if msg == "" {
		msg = p.Wording
	}
	return &ActionError{Status: p.Status, RetCode: p.RetCode, Message: msg}
}

func (WrappedPayload) isResponse() {}

func (p RawMapping) Payload() gjson.Result { return p.Fields }

func (p RawMapping) Err() error {
	if !p.Fields.IsObject() {
		return nil
	}
	status := p.Fields.Get("status")
	if status.Exists() && !strings.EqualFold(status.String(), "ok") {
		return &ActionError{
			Status:  status.String(),
			RetCode: p.Fields.Get("retcode").Int(),
			Message: p.Fields.Get("message").String(),
		}
	}
	if msg := p.Fields.Get("message").String(); msg != "" {
		return &ActionError{Message: msg}
	}
	return nil
}

func (RawMapping) isResponse() {}

// Normalize 数组原样返回；带 data 的对象取 data；其余对象原样返回。从不失败。
func Normalize(raw []byte) Response {
	r := gjson.ParseBytes(raw)
	switch {
	case r.IsArray():
		return SequencePayload{Items: r}
	case r.IsObject() && r.Get("data").Exists():
		return WrappedPayload{
			Status:  r.Get("status").String(),
			RetCode: r.Get("retcode").Int(),
			Message: r.Get("message").String(),
			Wording: r.Get("wording").String(),
			Data:    r.Get("data"),
		}
	default:
		return RawMapping{Fields: r}
	}
}

// Unwrap 等价于 Normalize(raw).Payload()
func Unwrap(raw []byte) gjson.Result {
	return Normalize(raw).Payload()
}
