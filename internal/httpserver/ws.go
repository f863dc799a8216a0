package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"nhooyr.io/websocket"

	"github.com/skobkin/rtsstop-web/internal/api"
	"github.com/skobkin/rtsstop-web/internal/monitor"
)

const wsSendQueueSize = 16

// wsCounters tracks WebSocket capacity and traffic.
type wsCounters struct {
	limit    int64
	active   atomic.Int64
	total    atomic.Uint64
	rejected atomic.Uint64
	sent     atomic.Uint64
	dropped  atomic.Uint64
	connIDs  atomic.Uint64
}

func (c *wsCounters) reserve() bool {
	if c.limit <= 0 {
		c.active.Add(1)
		return true
	}

	for {
		current := c.active.Load()
		if current >= c.limit {
			c.rejected.Add(1)
			return false
		}
		if c.active.CompareAndSwap(current, current+1) {
			return true
		}
	}
}

func (c *wsCounters) release() {
	c.active.Add(-1)
}

func (c *wsCounters) collectors() []prometheus.Collector {
	counters := []struct {
		name  string
		help  string
		value *atomic.Uint64
	}{
		{"connections_total", "Total WebSocket connections accepted since start.", &c.total},
		{"rejected_total", "Total WebSocket connection attempts rejected due to capacity.", &c.rejected},
		{"messages_sent_total", "Total WebSocket messages sent to clients.", &c.sent},
		{"messages_dropped_total", "Total WebSocket messages dropped due to backpressure.", &c.dropped},
	}

	out := []prometheus.Collector{
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "ws",
			Name:      "active_connections",
			Help:      "Current number of active WebSocket clients.",
		}, func() float64 {
			return float64(c.active.Load())
		}),
	}
	for _, counter := range counters {
		value := counter.value
		out = append(out, prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "ws",
			Name:      counter.name,
			Help:      counter.help,
		}, func() float64 {
			return float64(value.Load())
		}))
	}
	return out
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	reqLogger := s.loggerFromContext(r.Context())
	if !allowGet(w, r) {
		return
	}
	if s.monitor == nil {
		http.Error(w, "monitor unavailable", http.StatusServiceUnavailable)
		return
	}

	if !s.ws.reserve() {
		reqLogger.Warn("websocket rejected", "reason", "capacity")
		http.Error(w, "websocket capacity reached", http.StatusServiceUnavailable)
		return
	}
	defer s.ws.release()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: originPatterns(s.cfg.AllowedOrigins),
	})
	if err != nil {
		reqLogger.Warn("websocket accept failed", "err", err)
		return
	}
	s.ws.total.Add(1)

	session := &wsSession{
		server:   s,
		conn:     conn,
		outbound: newWSOutbound(wsSendQueueSize, &s.ws.dropped),
		logger:   reqLogger.With("ws_id", s.ws.connIDs.Add(1)),
	}
	defer session.close()

	session.run(r.Context())
}

// wsSession streams monitor events to one client and answers its requests.
type wsSession struct {
	server   *Server
	conn     *websocket.Conn
	outbound *wsOutbound
	logger   *slog.Logger

	// goingAway is set when the monitor stops, so clients know to reconnect.
	goingAway bool
}

func (ws *wsSession) close() {
	status, reason := websocket.StatusNormalClosure, ""
	if ws.goingAway {
		status, reason = websocket.StatusGoingAway, "monitor stopped"
	}
	if err := ws.conn.Close(status, reason); err != nil {
		ws.logger.Debug("websocket close failed", "err", err)
	}
}

func (ws *wsSession) run(parent context.Context) {
	mon := ws.server.monitor

	ctx, cancel := context.WithCancel(parent)
	writerDone := make(chan struct{})
	go ws.writeLoop(ctx, cancel, writerDone)

	events, unsubscribe := mon.Subscribe()
	defer func() {
		unsubscribe()
		ws.outbound.close()
		cancel()
		<-writerDone
	}()

	hello := api.NewHelloMessage(
		int(mon.Interval()/time.Millisecond),
		mon.DefaultTitle(),
		map[string]bool{
			"candidates": true,
			"prometheus": ws.server.cfg.EnablePrometheus,
		},
	)
	if !ws.send(hello) {
		return
	}
	ws.logger.Info("ws subscribed")

	requests := make(chan []byte, 8)
	readErr := make(chan error, 1)
	go ws.readLoop(ctx, requests, readErr)
	go ws.keepalive(ctx, cancel)

	for {
		select {
		case event, ok := <-events:
			if !ok {
				ws.logger.Info("monitor stream closed")
				ws.goingAway = true
				return
			}
			if !ws.send(api.NewEventMessage(event)) {
				return
			}
		case data, ok := <-requests:
			if !ok {
				requests = nil
				continue
			}
			if err := ws.answer(mon, data); err != nil {
				ws.logger.Warn("client message handling error", "err", err)
				return
			}
		case err := <-readErr:
			if err != nil && websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				ws.logger.Warn("websocket read error", "err", err)
			}
			return
		case <-ctx.Done():
			return
		}
	}
}

func (ws *wsSession) readLoop(ctx context.Context, out chan<- []byte, errCh chan<- error) {
	defer close(out)
	for {
		msgType, data, err := ws.conn.Read(ctx)
		if err != nil {
			errCh <- err
			return
		}
		if msgType != websocket.MessageText {
			continue
		}
		select {
		case out <- data:
		case <-ctx.Done():
			return
		}
	}
}

// keepalive pings the client every half read timeout. Overlay clients never
// send anything themselves, so liveness is judged by pong replies; a reply
// missing for a full read timeout ends the session.
func (ws *wsSession) keepalive(ctx context.Context, cancel context.CancelFunc) {
	timeout := ws.server.cfg.WS.ReadTimeout
	if timeout <= 0 {
		return
	}
	ticker := time.NewTicker(timeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		pingCtx, pingCancel := context.WithTimeout(ctx, timeout)
		err := ws.conn.Ping(pingCtx)
		pingCancel()
		if err != nil {
			if ctx.Err() == nil {
				ws.logger.Info("websocket keepalive failed", "err", err)
			}
			cancel()
			return
		}
	}
}

func (ws *wsSession) answer(mon *monitor.Monitor, data []byte) error {
	var envelope api.ClientMessage
	if err := json.Unmarshal(data, &envelope); err != nil {
		ws.logger.Debug("invalid client message", "err", err)
		return ws.sendOrFail(api.NewErrorMessage("invalid message"))
	}

	switch envelope.Type {
	case "ping":
		return ws.sendOrFail(api.NewPongMessage())
	case "state":
		return ws.sendOrFail(api.NewStateMessage(mon.Latest()))
	case "candidates":
		return ws.sendOrFail(api.NewCandidatesMessage(mon.Candidates()))
	default:
		ws.logger.Debug("unknown message type", "type", envelope.Type)
		return ws.sendOrFail(api.NewErrorMessage(fmt.Sprintf("unknown message type %q", envelope.Type)))
	}
}

func (ws *wsSession) writeLoop(ctx context.Context, cancel context.CancelFunc, done chan<- struct{}) {
	defer close(done)
	timeout := ws.server.cfg.WS.WriteTimeout
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ws.outbound.channel():
			if !ok {
				return
			}
			writeCtx, writeCancel := withOptionalTimeout(ctx, timeout)
			err := ws.conn.Write(writeCtx, websocket.MessageText, msg)
			writeCancel()
			if err != nil {
				if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
					ws.logger.Warn("websocket write failed", "err", err)
				}
				cancel()
				return
			}
			ws.server.ws.sent.Add(1)
		}
	}
}

func (ws *wsSession) send(payload any) bool {
	data, err := json.Marshal(payload)
	if err != nil {
		ws.logger.Error("failed to marshal websocket payload", "err", err)
		return false
	}
	if !ws.outbound.enqueue(data) {
		ws.logger.Warn("websocket outbound queue unavailable")
		return false
	}
	return true
}

func (ws *wsSession) sendOrFail(payload any) error {
	if !ws.send(payload) {
		return fmt.Errorf("enqueue %T", payload)
	}
	return nil
}

func withOptionalTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

// originPatterns converts configured origins into host patterns. Entries may
// be bare hosts, globs or full origins such as "http://localhost:8080".
func originPatterns(origins []string) []string {
	patterns := make([]string, 0, len(origins))
	for _, origin := range origins {
		if origin == "*" {
			return []string{"*"}
		}
		if u, err := url.Parse(origin); err == nil && u.Host != "" {
			origin = u.Host
		}
		patterns = append(patterns, origin)
	}
	return patterns
}
