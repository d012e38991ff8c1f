package types

import "strings"

type ElementType int

const (
	Text ElementType = iota
	At
	File
	Image
	Reply
	Record
	Face
	Poke
)

type IMessageElement interface {
	Type() ElementType
}

type TextElement struct {
	Content string
}

type AtElement struct {
	Target string // QQ号，"all" 表示全体成员
}

type FileElement struct {
	ContentType string
	File        string
	URL         string
}

type ImageElement struct {
	File *FileElement
	URL  string
}

type ReplyElement struct {
	ReplySeq string
	Sender   string
	GroupID  string
	Elements MessageSegments
}

type RecordElement struct {
	File *FileElement
}

type FaceElement struct {
	FaceID string
}

type PokeElement struct {
	Target string
}

func (*TextElement) Type() ElementType   { return Text }
func (*AtElement) Type() ElementType     { return At }
func (*FileElement) Type() ElementType   { return File }
func (*ImageElement) Type() ElementType  { return Image }
func (*ReplyElement) Type() ElementType  { return Reply }
func (*RecordElement) Type() ElementType { return Record }
func (*FaceElement) Type() ElementType   { return Face }
func (*PokeElement) Type() ElementType   { return Poke }

// Source 返回图片的可用地址，优先 URL
func (e *ImageElement) Source() string {
	if e.URL != "" {
		return e.URL
	}
	if e.File != nil {
		if e.File.URL != "" {
			return e.File.URL
		}
		return e.File.File
	}
	return ""
}

type MessageSegments []IMessageElement

// ToText 只拼接文本段，@、图片等非文本段被忽略
func (ms MessageSegments) ToText() string {
	var b strings.Builder
	for _, elem := range ms {
		if t, ok := elem.(*TextElement); ok {
			b.WriteString(t.Content)
		}
	}
	return b.String()
}

// Mentions 按出现顺序返回被@的QQ号，不包含@全体成员
func (ms MessageSegments) Mentions() []string {
	var out []string
	for _, elem := range ms {
		if at, ok := elem.(*AtElement); ok && at.Target != "" && at.Target != "all" {
			out = append(out, at.Target)
		}
	}
	return out
}

func (ms MessageSegments) Images() []*ImageElement {
	var out []*ImageElement
	for _, elem := range ms {
		if img, ok := elem.(*ImageElement); ok {
			out = append(out, img)
		}
	}
	return out
}
