package handlers

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/apk-analysis/apk-intake-go/internal/domain"
)

const writeTimeout = 10 * time.Second

// AnalysisMessage 推送给订阅者的分析完成消息
type AnalysisMessage struct {
	Type      string                 `json:"type"`
	Record    *domain.AnalysisRecord `json:"record"`
	Results   []domain.ResultView    `json:"results"`
	Timestamp int64                  `json:"timestamp"`
}

// ResultsHub 通过 WebSocket 广播分析结果
type ResultsHub struct {
	logger      *logrus.Logger
	upgrader    websocket.Upgrader
	clients     map[*websocket.Conn]bool
	clientMutex sync.RWMutex
	broadcast   chan AnalysisMessage
	done        chan struct{}
	stopOnce    sync.Once
}

// NewResultsHub 创建广播器
func NewResultsHub(logger *logrus.Logger) *ResultsHub {
	return &ResultsHub{
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan AnalysisMessage, 100),
		done:      make(chan struct{}),
	}
}

// Start 启动广播协程
func (h *ResultsHub) Start() {
	go h.runBroadcaster()
}

// Stop 停止广播并断开所有客户端
func (h *ResultsHub) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.clientMutex.Lock()
		for conn := range h.clients {
			conn.Close()
			delete(h.clients, conn)
		}
		h.clientMutex.Unlock()
	})
}

func (h *ResultsHub) runBroadcaster() {
	for {
		select {
		case <-h.done:
			return
		case msg := <-h.broadcast:
			h.send(msg)
		}
	}
}

func (h *ResultsHub) send(msg AnalysisMessage) {
	h.clientMutex.RLock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		conns = append(conns, conn)
	}
	h.clientMutex.RUnlock()

	for _, conn := range conns {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteJSON(msg); err != nil {
			h.logger.WithError(err).Warn("Failed to write to WebSocket client")
			h.remove(conn)
		}
	}
}

func (h *ResultsHub) remove(conn *websocket.Conn) {
	h.clientMutex.Lock()
	if h.clients[conn] {
		delete(h.clients, conn)
		conn.Close()
	}
	h.clientMutex.Unlock()
}

// ClientCount 当前连接数
func (h *ResultsHub) ClientCount() int {
	h.clientMutex.RLock()
	defer h.clientMutex.RUnlock()
	return len(h.clients)
}

// HandleWebSocket 处理订阅连接
// GET /ws/analyses
func (h *ResultsHub) HandleWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WithError(err).Error("Failed to upgrade to WebSocket")
		return
	}

	h.clientMutex.Lock()
	h.clients[conn] = true
	h.clientMutex.Unlock()
	h.logger.WithField("remote", c.Request.RemoteAddr).Info("WebSocket client connected")

	// 只读取控制帧，客户端消息忽略
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.WithError(err).Warn("WebSocket error")
			}
			break
		}
	}

	h.remove(conn)
	h.logger.WithField("remote", c.Request.RemoteAddr).Info("WebSocket client disconnected")
}

// NotifyAnalysis 广播一次分析结果，队列满时丢弃
func (h *ResultsHub) NotifyAnalysis(record *domain.AnalysisRecord, views []domain.ResultView) {
	trimmed := *record
	trimmed.ResultJSON = ""
	msg := AnalysisMessage{
		Type:      "analysis_completed",
		Record:    &trimmed,
		Results:   views,
		Timestamp: time.Now().Unix(),
	}

	select {
	case h.broadcast <- msg:
		h.logger.WithField("analysis_id", record.ID).Debug("Analysis broadcasted")
	default:
		h.logger.Warn("Broadcast channel is full, dropping message")
	}
}
