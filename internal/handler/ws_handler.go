package handler

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/starfire-ai/kbase/internal/service"
	"github.com/starfire-ai/kbase/internal/session"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

type ticketVerifier interface {
	VerifyTicket(token string) (string, error)
}

type WSHandler struct {
	query    *service.QueryService
	tickets  ticketVerifier
	upgrader websocket.Upgrader
}

func NewWSHandler(query *service.QueryService, tickets ticketVerifier) *WSHandler {
	return &WSHandler{
		query:   query,
		tickets: tickets,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

type wsRequest struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Query     string `json:"query"`
}

// wsConn serializes frame writes: the query pipeline and the control path
// both write to the same socket.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (w *wsConn) send(frame interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteJSON(frame)
}

func (w *wsConn) ping() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteMessage(websocket.PingMessage, nil)
}

// HandleQuery upgrades the connection and runs the query/cancel loop until
// the peer goes away. Queries run on their own goroutine so cancel messages
// are handled while a response streams.
func (h *WSHandler) HandleQuery(c *gin.Context) {
	logger := logutil.GetLogger(c.Request.Context())
	ticket := c.Query("ticket")
	if ticket == "" {
		ticket = strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	}
	clientID, err := h.tickets.VerifyTicket(ticket)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid ticket"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	logger.Info("query channel opened", zap.String("client_id", clientID))

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	wc := &wsConn{conn: conn}
	st := session.NewState()
	var queries sync.WaitGroup
	defer queries.Wait()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	go h.pingLoop(ctx, wc)

	for {
		var req wsRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("query channel read error", zap.Error(err))
			}
			st.Cancel()
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		if req.Type == "cancel" {
			logger.Info("cancellation requested", zap.String("session_id", req.SessionID))
			st.Cancel()
			_ = wc.send(&service.CancelledFrame{
				Type:    "cancelled",
				Message: "Request cancelled successfully",
			})
			continue
		}

		if err := h.query.Validate(req.SessionID, req.Query); err != nil {
			_ = wc.send(&service.ErrorFrame{Error: err.Error()})
			continue
		}

		// Supersede any in-flight query before starting the next one.
		st.Cancel()
		queries.Wait()

		// Reset runs on the read loop, not the query goroutine, so the flag
		// transition is ordered with control messages: a cancel read after
		// this point can never be erased by a query goroutine starting late.
		qctx := st.Reset(ctx)
		queries.Add(1)
		go func(qctx context.Context, sessionID, query string) {
			defer queries.Done()
			if err := h.query.HandleQuery(qctx, st, sessionID, query, wc.send); err != nil {
				_ = wc.send(&service.ErrorFrame{Error: err.Error()})
			}
		}(qctx, req.SessionID, req.Query)
	}
}

func (h *WSHandler) pingLoop(ctx context.Context, wc *wsConn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := wc.ping(); err != nil {
				return
			}
		}
	}
}
