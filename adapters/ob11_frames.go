package adapters

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/sealdice/qqoperator/bot/types"
	"github.com/sealdice/qqoperator/utils"
)

// dispatchFrame 带 echo 的是调用响应，其余按 post_type 分发
func (pa *PlatformAdapterOB11) dispatchFrame(payload []byte) error {
	if !gjson.ValidBytes(payload) {
		return errors.New("ob11 adapter: invalid json frame")
	}
	frame := gjson.ParseBytes(payload)

	if echo := frame.Get("echo"); echo.Exists() {
		if ch, ok := pa.pending.LoadAndDelete(echo.String()); ok {
			raw := make(json.RawMessage, len(payload))
			copy(raw, payload)
			select {
			case ch <- actionResult{frame: raw}:
			default:
			}
		}
		return nil
	}

	if selfID := frame.Get("self_id").String(); selfID != "" && selfID != "0" {
		pa.selfID.Store(utils.FormatQQUserID(selfID))
	}

	postType := frame.Get("post_type").String()
	if pa.callback == nil || postType == "" || postType == "message_sent" {
		return nil
	}

	if postType != "message" {
		pa.callback.OnEvent(convertFrameToEvent(frame))
		return nil
	}

	var evt ob11MessageEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		pa.callback.OnError(errors.Wrap(err, "ob11 adapter: decode message"))
		return nil
	}
	msg := convertEventToMessage(&evt)
	if msg == nil {
		return nil
	}
	pa.callback.OnMessageReceived(&MessageReceivedInfo{
		Sender:  &SimpleUserInfo{UserId: msg.Sender.UserID, UserName: msg.Sender.Nickname},
		Message: msg,
	})
	return nil
}

func convertFrameToEvent(frame gjson.Result) *types.AdapterEvent {
	postType := frame.Get("post_type").String()
	evt := &types.AdapterEvent{
		Platform: "QQ",
		PostType: postType,
		SubType:  frame.Get("sub_type").String(),
		Time:     frame.Get("time").Int(),
	}
	if raw, ok := frame.Value().(map[string]any); ok {
		evt.Raw = raw
	}

	switch postType {
	case "notice":
		evt.Type = frame.Get("notice_type").String()
	case "request":
		evt.Type = frame.Get("request_type").String()
	case "meta_event":
		evt.Type = frame.Get("meta_event_type").String()
	}
	if evt.Type == "" {
		evt.Type = postType
	}

	if v := frame.Get("self_id").String(); v != "" {
		evt.SelfID = utils.FormatQQUserID(v)
	}
	if v := frame.Get("group_id").String(); v != "" {
		evt.GroupID = utils.FormatQQGroupID(v)
	}
	if v := firstNonEmpty(frame, "user_id", "target_id"); v != "" {
		evt.UserID = utils.FormatQQUserID(v)
	}
	if v := firstNonEmpty(frame, "operator_id", "invitor_id"); v != "" {
		evt.OperatorID = utils.FormatQQUserID(v)
	}
	return evt
}

func firstNonEmpty(frame gjson.Result, keys ...string) string {
	for _, k := range keys {
		if v := frame.Get(k).String(); v != "" && v != "0" {
			return v
		}
	}
	return ""
}

func convertEventToMessage(evt *ob11MessageEvent) *types.Message {
	if evt.MessageType != types.MessageTypeGroup && evt.MessageType != types.MessageTypePrivate {
		return nil
	}

	segments := extractSegments(evt.Message)
	if len(segments) == 0 && evt.RawMessage != "" {
		segments = types.MessageSegments{&types.TextElement{Content: evt.RawMessage}}
	}
	if len(segments) == 0 {
		return nil
	}

	senderID := utils.FormatQQUserID(rawID(evt.Sender.UserID))
	if rawID(evt.Sender.UserID) == "" {
		senderID = utils.FormatQQUserID(rawID(evt.UserID))
	}
	nickname := evt.Sender.Card
	if nickname == "" {
		nickname = evt.Sender.Nickname
	}
	if nickname == "" {
		nickname = senderID
	}

	msg := &types.Message{
		Platform:    "QQ",
		Time:        evt.Time,
		MessageType: evt.MessageType,
		Segments:    segments,
		Message:     segments.ToText(),
		RawID:       rawID(evt.MessageID),
		Sender: types.SenderBase{
			UserID:    senderID,
			Nickname:  nickname,
			GroupRole: evt.Sender.Role,
		},
	}
	if id := rawID(evt.SelfID); id != "" {
		msg.SelfID = utils.FormatQQUserID(id)
	}
	if evt.MessageType == types.MessageTypeGroup {
		msg.GroupID = utils.FormatQQGroupID(rawID(evt.GroupID))
	}
	return msg
}

func extractSegments(raw json.RawMessage) types.MessageSegments {
	var arrayPayload []ob11Segment
	if err := json.Unmarshal(raw, &arrayPayload); err == nil {
		return fromSegments(arrayPayload)
	}

	var plain string
	if err := json.Unmarshal(raw, &plain); err == nil && plain != "" {
		return types.MessageSegments{&types.TextElement{Content: plain}}
	}
	return nil
}

func segString(data map[string]any, key string) string {
	switch v := data[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatInt(int64(v), 10)
	case json.Number:
		return v.String()
	}
	return ""
}

func fromSegments(src []ob11Segment) types.MessageSegments {
	var result types.MessageSegments
	for _, seg := range src {
		switch seg.Type {
		case "text":
			if text := segString(seg.Data, "text"); text != "" {
				result = append(result, &types.TextElement{Content: text})
			}
		case "image":
			img := &types.ImageElement{URL: segString(seg.Data, "url")}
			if file := segString(seg.Data, "file"); file != "" {
				img.File = &types.FileElement{File: file}
				if img.URL == "" && (strings.HasPrefix(file, "http://") || strings.HasPrefix(file, "https://")) {
					img.URL = file
				}
			}
			if img.Source() != "" {
				result = append(result, img)
			}
		case "at":
			if qq := segString(seg.Data, "qq"); qq != "" {
				result = append(result, &types.AtElement{Target: qq})
			}
		case "face":
			result = append(result, &types.FaceElement{FaceID: segString(seg.Data, "id")})
		case "reply":
			result = append(result, &types.ReplyElement{ReplySeq: segString(seg.Data, "id")})
		case "record":
			if file := segString(seg.Data, "file"); file != "" {
				result = append(result, &types.RecordElement{File: &types.FileElement{File: file, URL: segString(seg.Data, "url")}})
			}
		case "poke":
			result = append(result, &types.PokeElement{Target: segString(seg.Data, "id")})
		}
	}
	return result
}

func buildMessage(segments []types.IMessageElement) []map[string]any {
	log := zap.S().Named("adapter")
	seg := func(typ string, data map[string]any) map[string]any {
		return map[string]any{"type": typ, "data": data}
	}

	result := make([]map[string]any, 0, len(segments))
	for _, elem := range segments {
		switch e := elem.(type) {
		case *types.TextElement:
			result = append(result, seg("text", map[string]any{"text": e.Content}))
		case *types.ImageElement:
			file := e.Source()
			if file == "" {
				log.Debug("ob11: skip image with empty source")
				continue
			}
			result = append(result, seg("image", map[string]any{"file": file}))
		case *types.AtElement:
			result = append(result, seg("at", map[string]any{"qq": e.Target}))
		case *types.ReplyElement:
			result = append(result, seg("reply", map[string]any{"id": e.ReplySeq}))
		case *types.RecordElement:
			if e.File == nil {
				continue
			}
			file := e.File.URL
			if file == "" {
				file = e.File.File
			}
			if file != "" {
				result = append(result, seg("record", map[string]any{"file": file}))
			}
		case *types.FaceElement:
			result = append(result, seg("face", map[string]any{"id": e.FaceID}))
		case *types.PokeElement:
			result = append(result, seg("poke", map[string]any{"id": e.Target}))
		default:
			log.Debugf("ob11: unsupported segment type %T", elem)
		}
	}
	return result
}

// rawID 数字或字符串形式的 id
func rawID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	s := strings.Trim(strings.TrimSpace(string(raw)), "\"")
	if s == "null" || s == "0" {
		return ""
	}
	return s
}

type ob11APIResponse struct {
	Status  string          `json:"status"`
	RetCode int64           `json:"retcode"`
	Message string          `json:"message"`
	Wording string          `json:"wording"`
	Data    json.RawMessage `json:"data"`
	Echo    json.RawMessage `json:"echo"`
}

type ob11Segment struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

type ob11MessageEvent struct {
	PostType    string          `json:"post_type"`
	MessageType string          `json:"message_type"`
	Time        int64           `json:"time"`
	SelfID      json.RawMessage `json:"self_id"`
	UserID      json.RawMessage `json:"user_id"`
	GroupID     json.RawMessage `json:"group_id"`
	MessageID   json.RawMessage `json:"message_id"`
	RawMessage  string          `json:"raw_message"`
	Message     json.RawMessage `json:"message"`
	Sender      ob11Sender      `json:"sender"`
}

type ob11Sender struct {
	UserID   json.RawMessage `json:"user_id"`
	Nickname string          `json:"nickname"`
	Card     string          `json:"card"`
	Role     string          `json:"role"`
}
