package app

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"school_messaging_service/internal/messaging/domain"
	errprocess "school_messaging_service/pkg/err"
	"school_messaging_service/pkg/logger"
	"school_messaging_service/pkg/middlewares"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"
)

// MessagingWebsocketHandler 可包含所有需要的 UseCase
type MessagingWebsocketHandler struct {
	threadUC  *ThreadUseCase
	messageUC *MessageUseCase
	tracker   *ReceiptTracker
	feed      domain.ChangeFeed
	pageSize  int
}

// NewMessagingWebsocketHandler create MessagingWebsocketHandler
func NewMessagingWebsocketHandler(
	threadUC *ThreadUseCase,
	messageUC *MessageUseCase,
	tracker *ReceiptTracker,
	feed domain.ChangeFeed,
	pageSize int,
) *MessagingWebsocketHandler {
	return &MessagingWebsocketHandler{
		threadUC:  threadUC,
		messageUC: messageUC,
		tracker:   tracker,
		feed:      feed,
		pageSize:  pageSize,
	}
}

// responder 序列化寫入，feed 回呼與請求回應可能同時寫
type responder interface {
	send(resp domain.WSResponse)
}

type wsWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsWriter) send(resp domain.WSResponse) {
	b, _ := json.Marshal(resp)
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.conn.WriteMessage(websocket.TextMessage, b); err != nil {
		logger.Log.Warn("write message error", zap.Error(err))
	}
}

func (w *wsWriter) ping() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteMessage(websocket.PingMessage, []byte("ping message"))
}

// session one websocket connection of a viewer
type session struct {
	memberID string
	client   *SyncClient
	out      responder
}

// newSession wire a sync client whose refreshed views and stale notices
// are pushed to out
func (h *MessagingWebsocketHandler) newSession(memberID string, out responder) (*session, func()) {
	bus := NewInvalidationBus()
	client := NewSyncClient(memberID, h.feed, h.threadUC, h.messageUC, h.tracker, bus, SyncHooks{
		OnThreadList: func(result *domain.ThreadListResult) {
			out.send(domain.WSResponse{
				Action:  string(domain.NotifyThreadList),
				Success: true,
				Payload: map[string]interface{}{"threads": result.Threads, "notice": result.Notice},
			})
		},
		OnThread: func(threadID string, page *domain.MessagePage) {
			out.send(domain.WSResponse{
				Action:  string(domain.NotifyThread),
				Success: true,
				Payload: map[string]interface{}{"thread_id": threadID, "page": page},
			})
		},
	}, h.pageSize)

	unsubscribe := bus.Subscribe(func(s Stale) {
		out.send(domain.WSResponse{
			Action:  string(domain.NotifyStale),
			Success: true,
			Payload: map[string]interface{}{"topic": s.Topic, "view": s.View},
		})
	})

	return &session{memberID: memberID, client: client, out: out}, func() {
		unsubscribe()
		client.Close()
	}
}

// HandleConnection 是 WebSocket 連線的進入點
func (h *MessagingWebsocketHandler) HandleConnection(ctx context.Context, conn *websocket.Conn) {
	memberID, _ := conn.Locals(middlewares.TokenMemberID).(string)
	logger.Log.Info("websocket handle memberID", zap.String("member_id", memberID))

	writer := &wsWriter{conn: conn}
	sess, release := h.newSession(memberID, writer)

	ticker := time.NewTicker(10 * time.Minute)
	ctxClose, cancel := context.WithCancel(ctx)

	defer func() {
		ticker.Stop()
		release()
		cancel()
		logger.Log.Info("websocket close", zap.String("member_id", memberID))
		conn.Close()
	}()

	//client發出close
	//fiber會自動處理(在read msg 回傳err),故需要SetCloseHandler另外接出
	conn.SetCloseHandler(func(code int, text string) error {
		logger.Log.Debug("websocket closed by client", zap.Int("code", code), zap.String("text", text))
		return nil
	})

	//server發出ping之後client連線正常會回pong
	conn.SetPongHandler(func(appData string) error {
		logger.Log.Debug("received pong", zap.String("member_id", memberID))
		return nil
	})

	// 重新連線時將所有 thread 標記為已送達
	if err := sess.client.Connect(ctxClose); err != nil {
		logger.Log.Warn("mark all delivered on connect failed", zap.String("member_id", memberID), zap.Error(err))
	}

	// 定期發送 Ping
	go func() {
		for {
			select {
			case <-ticker.C:
				if err := writer.ping(); err != nil {
					logger.Log.Warn("ping error", zap.Error(err))
					return
				}
			case <-ctxClose.Done():
				return
			}
		}
	}()

	for {
		mt, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				logger.Log.Info("connection closed", zap.String("member_id", memberID))
			} else {
				//直接斷線 1006
				logger.Log.Warn("websocket read error", zap.Error(err))
			}
			return
		}

		if mt != websocket.TextMessage {
			writer.send(errorResponse("", errprocess.ErrInvalidParams))
			continue
		}

		var req domain.WSRequest
		if err := json.Unmarshal(message, &req); err != nil {
			writer.send(errorResponse("", errprocess.ErrInvalidParams))
			continue
		}
		writer.send(h.dispatch(ctxClose, sess, req))
	}
}

// dispatch run one websocket action and build its response
func (h *MessagingWebsocketHandler) dispatch(ctx context.Context, s *session, req domain.WSRequest) domain.WSResponse {
	resp := domain.WSResponse{Action: req.Action, Success: true, Payload: map[string]interface{}{}}
	var err error

	switch domain.Action(req.Action) {
	case domain.ListThreads:
		var result *domain.ThreadListResult
		if result, err = h.threadUC.ListThreads(ctx, req.OrganizationID, s.memberID); err == nil {
			resp.Payload["threads"] = result.Threads
			resp.Payload["notice"] = result.Notice
		}

	case domain.GetThread:
		var summary *domain.ThreadSummary
		if summary, err = h.threadUC.GetThread(ctx, req.ThreadID, s.memberID); err == nil {
			resp.Payload["thread"] = summary
		}

	case domain.ListMessages:
		var page *domain.MessagePage
		if page, err = h.messageUC.ListMessages(ctx, req.ThreadID, s.memberID, req.Cursor, req.PageSize); err == nil {
			resp.Payload["page"] = page
		}

	//傳送訊息，寫入 db 後由 change feed 通知其他人
	case domain.SendMessage:
		var msg *domain.Message
		if msg, err = h.messageUC.SendMessage(ctx, req.ThreadID, s.memberID, req.Content, domain.ContentType(req.ContentType)); err == nil {
			resp.Payload["message"] = msg
		}

	case domain.DeleteMessage:
		var msg *domain.Message
		if msg, err = h.messageUC.DeleteMessage(ctx, req.MessageID, s.memberID); err == nil {
			resp.Payload["message"] = msg
		}

	//讀取訊息 將整個 thread 標記為已讀
	case domain.MarkRead:
		if req.MessageID != "" {
			err = h.tracker.MarkRead(ctx, req.MessageID, s.memberID)
		} else {
			err = h.threadUC.MarkThreadRead(ctx, req.ThreadID, s.memberID)
		}

	case domain.Search:
		var result *domain.SearchResult
		if result, err = h.messageUC.SearchInThread(ctx, req.ThreadID, s.memberID, req.Query); err == nil {
			resp.Payload["messages"] = result.Messages
			resp.Payload["notice"] = result.Notice
		}

	case domain.UnreadCount:
		var result *domain.UnreadResult
		if result, err = h.threadUC.UnreadCount(ctx, s.memberID); err == nil {
			resp.Payload["total"] = result.Total
			resp.Payload["by_thread"] = result.ByThread
			resp.Payload["notice"] = result.Notice
		}

	case domain.SubscribeThreadList:
		if err = h.authorizeOrganization(ctx, req.OrganizationID, s.memberID); err == nil {
			err = s.client.SubscribeThreadList(ctx, req.OrganizationID)
		}

	case domain.SubscribeThread:
		if _, err = h.threadUC.GetThread(ctx, req.ThreadID, s.memberID); err == nil {
			err = s.client.OpenThread(ctx, req.ThreadID)
		}

	case domain.UnsubscribeThread:
		s.client.CloseThread()

	default:
		err = errprocess.ErrInvalidParams
	}

	if err != nil {
		logger.Log.Warn("websocket action failed",
			zap.String("member_id", s.memberID),
			zap.String("action", req.Action),
			zap.Error(err),
		)
		return errorResponse(req.Action, err)
	}
	return resp
}

func (h *MessagingWebsocketHandler) authorizeOrganization(ctx context.Context, organizationID, memberID string) error {
	if organizationID == "" {
		return errprocess.ErrInvalidParams
	}
	return h.threadUC.checkMember(ctx, organizationID, memberID)
}

func errorResponse(action string, err error) domain.WSResponse {
	if action == "" {
		action = "error"
	}
	return domain.WSResponse{
		Action:  action,
		Success: false,
		Error:   errprocess.GetMessage(err),
		Code:    errprocess.GetCode(err),
	}
}
