package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"proctor_backend/pkg/logger"
	"proctor_backend/pkg/monitoring"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	shardCount     = 32
	onlineTTL      = 2 * time.Minute

	monitorChannel = "proctor_monitor"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSMessage is what examiners send over the socket.
type WSMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Client is one examiner connection, optionally narrowed to one exam.
type Client struct {
	Hub     *MonitorHub
	Conn    *websocket.Conn
	Send    chan []byte
	UserID  uint
	Limiter *rate.Limiter

	mu     sync.RWMutex
	examID uint
}

func (c *Client) watching(examID uint) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.examID == 0 || c.examID == examID
}

func (c *Client) subscribe(examID uint) {
	c.mu.Lock()
	c.examID = examID
	c.mu.Unlock()
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.Hub.unregister <- c:
		case <-c.Hub.ctx.Done():
		}
		c.Conn.Close()
	}()
	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error { c.Conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Log.Error("WebSocket unexpected close", zap.Error(err), zap.Uint("userId", c.UserID))
			}
			break
		}
		if !c.Limiter.Allow() {
			continue
		}

		var msg WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		monitoring.MonitorMessageCounter.WithLabelValues(msg.Type, "in").Inc()

		if msg.Type == "SUBSCRIBE" {
			var data struct {
				ExamID uint `json:"exam_id"`
			}
			if err := json.Unmarshal(msg.Data, &data); err == nil {
				c.subscribe(data.ExamID)
			}
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

type shard struct {
	clients map[*Client]struct{}
	mu      sync.RWMutex
}

// MonitorHub fans proctoring events out to connected examiners. With redis
// every instance publishes to one channel and delivers what it receives, so
// an examiner sees events raised on any instance.
type MonitorHub struct {
	shards     [shardCount]*shard
	register   chan *Client
	unregister chan *Client
	Redis      *redis.Client
	ctx        context.Context
	cancel     context.CancelFunc
}

func NewMonitorHub(rdb *redis.Client) *MonitorHub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &MonitorHub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		Redis:      rdb,
		ctx:        ctx,
		cancel:     cancel,
	}
	for i := 0; i < shardCount; i++ {
		h.shards[i] = &shard{clients: make(map[*Client]struct{})}
	}
	return h
}

func (h *MonitorHub) getShard(userID uint) *shard {
	return h.shards[userID%shardCount]
}

type pubSubEnvelope struct {
	ExamID  uint            `json:"exam_id"`
	Payload json.RawMessage `json:"payload"`
}

func (h *MonitorHub) Run() {
	if h.Redis != nil {
		pubsub := h.Redis.Subscribe(h.ctx, monitorChannel)
		defer pubsub.Close()
		go func() {
			for msg := range pubsub.Channel() {
				var env pubSubEnvelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					logger.Log.Error("PubSub unmarshal error", zap.Error(err))
					continue
				}
				h.deliverLocal(env.ExamID, env.Payload)
			}
		}()
	}

	heartbeat := time.NewTicker(time.Minute)
	defer heartbeat.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return
		case client := <-h.register:
			s := h.getShard(client.UserID)
			s.mu.Lock()
			s.clients[client] = struct{}{}
			s.mu.Unlock()
			monitoring.MonitorOnlineExaminers.Inc()
			h.markOnline(client.UserID)
		case client := <-h.unregister:
			s := h.getShard(client.UserID)
			s.mu.Lock()
			if _, ok := s.clients[client]; ok {
				delete(s.clients, client)
				close(client.Send)
				monitoring.MonitorOnlineExaminers.Dec()
			}
			s.mu.Unlock()
		case <-heartbeat.C:
			h.refreshOnline()
		}
	}
}

func onlineKey(userID uint) string {
	return fmt.Sprintf("monitor:online:%d", userID)
}

func (h *MonitorHub) markOnline(userID uint) {
	if h.Redis == nil {
		return
	}
	if err := h.Redis.Set(h.ctx, onlineKey(userID), "true", onlineTTL).Err(); err != nil {
		logger.Log.Warn("Redis online flag failed", zap.Error(err))
	}
}

func (h *MonitorHub) refreshOnline() {
	if h.Redis == nil {
		return
	}
	pipe := h.Redis.Pipeline()
	count := 0
	for _, s := range h.shards {
		s.mu.RLock()
		for client := range s.clients {
			pipe.Expire(h.ctx, onlineKey(client.UserID), onlineTTL)
			count++
		}
		s.mu.RUnlock()
	}
	if count > 0 {
		if _, err := pipe.Exec(h.ctx); err != nil {
			logger.Log.Warn("Redis heartbeat failed", zap.Error(err))
		}
	}
}

// Notify implements Notifier.
func (h *MonitorHub) Notify(ctx context.Context, event MonitorEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		logger.Log.Error("Monitor event marshal error", zap.Error(err))
		return
	}
	monitoring.MonitorMessageCounter.WithLabelValues(event.Type, "out").Inc()

	if h.Redis != nil {
		env, _ := json.Marshal(pubSubEnvelope{ExamID: event.ExamID, Payload: payload})
		err := h.Redis.Publish(ctx, monitorChannel, env).Err()
		if err == nil {
			return
		}
		logger.Log.Warn("Redis publish failed, delivering locally", zap.Error(err))
	}
	h.deliverLocal(event.ExamID, payload)
}

func (h *MonitorHub) deliverLocal(examID uint, payload []byte) {
	for _, s := range h.shards {
		s.mu.RLock()
		for client := range s.clients {
			if !client.watching(examID) {
				continue
			}
			select {
			case client.Send <- payload:
			default:
			}
		}
		s.mu.RUnlock()
	}
}

// ConnectionCount is the number of sockets open on this instance.
func (h *MonitorHub) ConnectionCount() int {
	n := 0
	for _, s := range h.shards {
		s.mu.RLock()
		n += len(s.clients)
		s.mu.RUnlock()
	}
	return n
}

// Stop closes every connection and ends Run.
func (h *MonitorHub) Stop() {
	logger.Log.Info("MonitorHub stopping")
	closed := 0
	for _, s := range h.shards {
		s.mu.Lock()
		for client := range s.clients {
			close(client.Send)
			delete(s.clients, client)
			if h.Redis != nil {
				h.Redis.Del(context.Background(), onlineKey(client.UserID))
			}
			closed++
		}
		s.mu.Unlock()
	}
	h.cancel()
	monitoring.MonitorOnlineExaminers.Set(0)
	logger.Log.Info("MonitorHub stopped", zap.Int("closedConnections", closed))
}

// ServeWs upgrades an examiner's request and registers the connection,
// watching examID (0 for every exam).
func ServeWs(hub *MonitorHub, w http.ResponseWriter, r *http.Request, userID, examID uint) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Error("WebSocket upgrade failed", zap.Error(err), zap.Uint("userId", userID))
		return
	}
	client := &Client{
		Hub:     hub,
		Conn:    conn,
		Send:    make(chan []byte, 256),
		UserID:  userID,
		Limiter: rate.NewLimiter(rate.Limit(10), 20),
		examID:  examID,
	}
	select {
	case hub.register <- client:
	case <-hub.ctx.Done():
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
