package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/sealdice/qqoperator/bot/types"
	"github.com/sealdice/qqoperator/utils"
)

const actionTimeout = 15 * time.Second

var (
	ErrNoSession     = errors.New("ob11 adapter: no active API session")
	ErrActionTimeout = errors.New("ob11 adapter: action timeout")
	ErrAdapterClosed = errors.New("ob11 adapter closed")
)

type sessionRole string

const (
	roleUnknown sessionRole = ""
	roleEvent   sessionRole = "event"
	roleAPI     sessionRole = "api"
	roleUnified sessionRole = "unified"
)

// PlatformAdapterOB11 通过 WebSocket（正向或反向）连接 OneBot 11 协议端
type PlatformAdapterOB11 struct {
	WSReverseURL  string `json:"ws_reverse" yaml:"ws_reverse"`
	WSForwardAddr string `json:"ws_forward" yaml:"ws_forward"`
	AccessToken   string `json:"access_token" yaml:"access_token"`
	Secret        string `json:"secret" yaml:"secret"`

	// ActionTimeout 单次调用等待响应的时间，默认 15 秒
	ActionTimeout time.Duration `json:"-" yaml:"-"`

	callback AdapterCallback

	running atomic.Bool
	selfID  atomic.Value // string

	apiSession   atomic.Pointer[ob11Session]
	eventSession atomic.Pointer[ob11Session]

	requestSeq atomic.Uint64
	pending    utils.SyncMap[string, chan actionResult]

	forwardServer *http.Server
}

type actionResult struct {
	frame json.RawMessage
	err   error
}

// ob11Session 一条 websocket 连接及其角色
type ob11Session struct {
	conn      *websocket.Conn
	role      sessionRole
	writeMu   sync.Mutex
	closeOnce sync.Once
}

func newOB11Session(conn *websocket.Conn, role sessionRole) *ob11Session {
	return &ob11Session{conn: conn, role: role}
}

func (s *ob11Session) writeJSON(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(v)
}

func (s *ob11Session) close() {
	s.closeOnce.Do(func() {
		_ = s.conn.Close()
	})
}

func (pa *PlatformAdapterOB11) SetCallback(callback AdapterCallback) {
	pa.callback = callback
}

// IsAlive 至少有一条连接
func (pa *PlatformAdapterOB11) IsAlive() bool {
	return pa.running.Load()
}

// SelfID 最近一帧里的 self_id，带 QQ: 前缀；未收到过时为空
func (pa *PlatformAdapterOB11) SelfID() string {
	v, _ := pa.selfID.Load().(string)
	return v
}

// Serve 启动反向和/或正向 websocket，立即返回
func (pa *PlatformAdapterOB11) Serve(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if pa.WSReverseURL == "" && pa.WSForwardAddr == "" {
		return errors.New("ob11 adapter: neither ws_reverse nor ws_forward configured")
	}

	if pa.WSReverseURL != "" {
		go pa.loopReverse(ctx)
	}
	if pa.WSForwardAddr != "" {
		go pa.listenForward(ctx)
	}
	return nil
}

// Close 关闭所有连接和正向服务
func (pa *PlatformAdapterOB11) Close() {
	if srv := pa.forwardServer; srv != nil {
		_ = srv.Shutdown(context.Background())
	}

	api := pa.apiSession.Swap(nil)
	event := pa.eventSession.Swap(nil)

	pa.failPending(ErrAdapterClosed)
	if api != nil {
		api.close()
	}
	if event != nil && event != api {
		event.close()
	}

	pa.running.Store(false)
}

func (pa *PlatformAdapterOB11) loopReverse(ctx context.Context) {
	log := zap.S().Named("adapter")
	backoff := time.Second

	for {
		if ctx.Err() != nil {
			return
		}

		connected, err := pa.connectReverse(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Warnf("ob11 reverse ws: %v", err)
		}
		if connected {
			backoff = time.Second
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (pa *PlatformAdapterOB11) authHeader() http.Header {
	header := http.Header{}
	if pa.AccessToken != "" {
		header.Set("Authorization", "Bearer "+pa.AccessToken)
	}
	if pa.Secret != "" {
		header.Set("X-Self-Secret", pa.Secret)
	}
	return header
}

func (pa *PlatformAdapterOB11) connectReverse(ctx context.Context) (bool, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, pa.WSReverseURL, pa.authHeader())
	if err != nil {
		return false, errors.Wrap(err, "connect failed")
	}
	zap.S().Named("adapter").Infof("ob11 reverse ws connected: %s", pa.WSReverseURL)

	session := newOB11Session(conn, roleUnified)
	pa.setSession(session)
	err = pa.consumeSession(ctx, session)
	pa.clearSession(session, err)
	return true, err
}

func (pa *PlatformAdapterOB11) forwardHandler(ctx context.Context) http.Handler {
	log := zap.S().Named("adapter")
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ctx.Err() != nil {
			http.Error(w, "adapter shutting down", http.StatusServiceUnavailable)
			return
		}

		if pa.AccessToken != "" {
			token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if token == "" {
				token = r.URL.Query().Get("access_token")
			}
			if token != pa.AccessToken {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}

		role := determineRole(r)
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warnf("ob11 forward ws upgrade failed: %v", err)
			return
		}
		if selfID := r.Header.Get("X-Self-ID"); selfID != "" {
			pa.selfID.Store(utils.FormatQQUserID(selfID))
		}

		session := newOB11Session(conn, role)
		pa.setSession(session)
		err = pa.consumeSession(ctx, session)
		pa.clearSession(session, err)
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Debugf("ob11 forward ws closed: %v", err)
		}
	})
}

func (pa *PlatformAdapterOB11) listenForward(ctx context.Context) {
	log := zap.S().Named("adapter")

	server := &http.Server{
		Addr:              pa.WSForwardAddr,
		Handler:           pa.forwardHandler(ctx),
		ReadHeaderTimeout: 10 * time.Second,
	}
	pa.forwardServer = server

	go func() {
		<-ctx.Done()
		_ = server.Shutdown(context.Background())
	}()

	log.Infof("ob11 forward ws listening on %s", pa.WSForwardAddr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Errorf("ob11 forward ws listen failed: %v", err)
	}
}

func determineRole(r *http.Request) sessionRole {
	switch strings.ToLower(r.Header.Get("X-Client-Role")) {
	case "event":
		return roleEvent
	case "api":
		return roleAPI
	case "universal":
		return roleUnified
	}

	path := strings.ToLower(r.URL.Path)
	switch {
	case strings.Contains(path, "api"):
		return roleAPI
	case strings.Contains(path, "event"):
		return roleEvent
	default:
		return roleUnified
	}
}

func (pa *PlatformAdapterOB11) consumeSession(ctx context.Context, session *ob11Session) error {
	log := zap.S().Named("adapter")

	stop := context.AfterFunc(ctx, session.close)
	defer stop()

	for {
		_, payload, err := session.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		if err := pa.dispatchFrame(payload); err != nil {
			log.Debugf("ob11 frame dispatch failed: %v", err)
		}
	}
}

func (pa *PlatformAdapterOB11) setSession(session *ob11Session) {
	swap := func(slot *atomic.Pointer[ob11Session]) {
		if old := slot.Swap(session); old != nil && old != session {
			old.close()
		}
	}

	switch session.role {
	case roleAPI:
		swap(&pa.apiSession)
	case roleUnified:
		swap(&pa.apiSession)
		swap(&pa.eventSession)
	default:
		swap(&pa.eventSession)
	}

	pa.running.Store(true)
}

func (pa *PlatformAdapterOB11) clearSession(session *ob11Session, cause error) {
	apiCleared := pa.apiSession.CompareAndSwap(session, nil)
	pa.eventSession.CompareAndSwap(session, nil)

	session.close()

	if apiCleared {
		if cause == nil {
			cause = errors.New("ob11 api websocket closed")
		}
		pa.failPending(cause)
	}

	if pa.apiSession.Load() == nil && pa.eventSession.Load() == nil {
		pa.running.Store(false)
	}
}

func (pa *PlatformAdapterOB11) failPending(err error) {
	pa.pending.Range(func(key string, ch chan actionResult) bool {
		select {
		case ch <- actionResult{err: err}:
		default:
		}
		pa.pending.Delete(key)
		return true
	})
}

func (pa *PlatformAdapterOB11) getAPISession() *ob11Session {
	if ses := pa.apiSession.Load(); ses != nil {
		return ses
	}
	if ses := pa.eventSession.Load(); ses != nil && ses.role == roleUnified {
		return ses
	}
	return nil
}

// CallAction 发送一次调用并按 echo 等待响应
func (pa *PlatformAdapterOB11) CallAction(ctx context.Context, action string, params map[string]any) (json.RawMessage, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if params == nil {
		params = map[string]any{}
	}

	session := pa.getAPISession()
	if session == nil {
		return nil, ErrNoSession
	}

	echo := fmt.Sprintf("qqop-%d", pa.requestSeq.Add(1))
	respCh := make(chan actionResult, 1)
	pa.pending.Store(echo, respCh)
	defer pa.pending.Delete(echo)

	frame := map[string]any{
		"action": action,
		"params": params,
		"echo":   echo,
	}
	if err := session.writeJSON(frame); err != nil {
		return nil, errors.Wrapf(err, "ob11 adapter: send %s", action)
	}

	timeout := pa.ActionTimeout
	if timeout <= 0 {
		timeout = actionTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, errors.Wrap(ErrActionTimeout, action)
	case res := <-respCh:
		return res.frame, res.err
	}
}

// callData 调用并在 status 非 ok 时返回 error，供发送消息使用
func (pa *PlatformAdapterOB11) callData(ctx context.Context, action string, params map[string]any) (*ob11APIResponse, error) {
	raw, err := pa.CallAction(ctx, action, params)
	if err != nil {
		return nil, err
	}
	var resp ob11APIResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, errors.Wrapf(err, "ob11 adapter: decode %s response", action)
	}
	if resp.Status != "" && resp.Status != "ok" {
		msg := resp.Message
		if msg == "" {
			msg = resp.Wording
		}
		return &resp, errors.Errorf("ob11 adapter: %s failed: %s (retcode=%d)", action, msg, resp.RetCode)
	}
	return &resp, nil
}

func (pa *PlatformAdapterOB11) MsgSendToGroup(ctx context.Context, request *MessageSendRequest) (bool, error) {
	gid, err := utils.ParseQQID(request.TargetId)
	if err != nil {
		return false, err
	}
	_, err = pa.callData(ctx, "send_group_msg", map[string]any{
		"group_id": gid,
		"message":  buildMessage(request.Segments),
	})
	return err == nil, err
}

func (pa *PlatformAdapterOB11) MsgSendToPerson(ctx context.Context, request *MessageSendRequest) (bool, error) {
	uid, err := utils.ParseQQID(request.TargetId)
	if err != nil {
		return false, err
	}
	_, err = pa.callData(ctx, "send_private_msg", map[string]any{
		"user_id": uid,
		"message": buildMessage(request.Segments),
	})
	return err == nil, err
}

func (pa *PlatformAdapterOB11) SendReply(msg *types.MsgToReply) {
	log := zap.S().Named("adapter")
	ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
	defer cancel()

	var err error
	switch msg.MessageType {
	case types.MessageTypeGroup:
		_, err = pa.MsgSendToGroup(ctx, &MessageSendRequest{TargetId: msg.SendTo.GroupId, Segments: msg.Segments})
	case types.MessageTypePrivate:
		_, err = pa.MsgSendToPerson(ctx, &MessageSendRequest{TargetId: msg.SendTo.UserId, Segments: msg.Segments})
	default:
		err = errors.Errorf("ob11 adapter: unknown message type %q", msg.MessageType)
	}
	if err != nil {
		log.Warnf("send reply failed: %v", err)
	}
}
