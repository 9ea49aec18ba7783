package store

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"team-arena/internal/obslog"
)

// feedFrame is one websocket message from the record API. The server opens
// every connection with a hello frame carrying the connection's client id;
// all later frames are change events.
type feedFrame struct {
	Type       string `json:"type"` // "hello" or "event"
	ClientID   string `json:"clientId,omitempty"`
	Action     Action `json:"action,omitempty"`
	Collection string `json:"collection,omitempty"`
	Record     Record `json:"record,omitempty"`
}

type feedState string

const (
	feedDisconnected feedState = "disconnected"
	feedConnecting   feedState = "connecting"
	feedConnected    feedState = "connected"
	feedReconnecting feedState = "reconnecting"
	feedFailed       feedState = "failed"
)

type wsFeed struct {
	wsURL string

	conn   *websocket.Conn
	connM  sync.RWMutex
	state  feedState
	stateM sync.RWMutex

	subs      map[int]subscription
	nextSubID int
	clientID  string
	subM      sync.RWMutex

	maxReconnectAttempts int
	reconnectDelay       time.Duration
	pingInterval         time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	rootCtx    context.Context
	rootCancel context.CancelFunc

	headerProvider HeaderProvider
}

func newWSFeed(wsURL string, maxReconnectAttempts int, reconnectDelay time.Duration) *wsFeed {
	return &wsFeed{
		wsURL:                wsURL,
		state:                feedDisconnected,
		subs:                 make(map[int]subscription),
		maxReconnectAttempts: maxReconnectAttempts,
		reconnectDelay:       reconnectDelay,
		pingInterval:         30 * time.Second,
		stopCh:               make(chan struct{}),
	}
}

func (ws *wsFeed) connect(ctx context.Context) error {
	ws.stateM.Lock()
	if ws.state == feedConnected || ws.state == feedConnecting {
		ws.stateM.Unlock()
		return nil
	}
	ws.stateM.Unlock()

	ws.rootCtx, ws.rootCancel = context.WithCancel(context.Background())
	ws.setState(feedConnecting)

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, ws.wsURL, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
		HTTPHeader:      ws.buildHeaders(),
	})
	if err != nil {
		ws.setState(feedFailed)
		ws.scheduleReconnect()
		return err
	}

	ws.setConn(conn)
	ws.setState(feedConnected)

	ws.wg.Add(2)
	go ws.listen()
	go ws.pingLoop()
	return nil
}

func (ws *wsFeed) listen() {
	defer ws.wg.Done()
	for {
		select {
		case <-ws.stopCh:
			return
		default:
		}

		conn := ws.getConn()
		if conn == nil {
			return
		}
		var frame feedFrame
		if err := wsjson.Read(ws.rootCtx, conn, &frame); err != nil {
			if ws.isStopping() {
				return
			}
			ws.setState(feedDisconnected)
			_ = ws.closeConn(websocket.StatusGoingAway, "reconnect")
			ws.scheduleReconnect()
			return
		}

		switch frame.Type {
		case "hello":
			ws.subM.Lock()
			ws.clientID = frame.ClientID
			ws.subM.Unlock()
			obslog.L().Info("store_feed_hello", zap.String("client_id", frame.ClientID))
		case "event":
			ws.dispatch(Event{Action: frame.Action, Collection: frame.Collection, Record: frame.Record})
		}
	}
}

func (ws *wsFeed) pingLoop() {
	defer ws.wg.Done()
	t := time.NewTicker(ws.pingInterval)
	defer t.Stop()
	consecutivePingFailures := 0
	for {
		select {
		case <-ws.stopCh:
			return
		case <-t.C:
			conn := ws.getConn()
			if conn == nil {
				continue
			}
			ctx, cancel := context.WithTimeout(ws.rootCtx, 3*time.Second)
			err := conn.Ping(ctx)
			cancel()
			if err != nil {
				consecutivePingFailures++
				if consecutivePingFailures >= 2 {
					if ws.isStopping() {
						return
					}
					ws.setState(feedDisconnected)
					_ = ws.closeConn(websocket.StatusGoingAway, "ping failure")
					ws.scheduleReconnect()
					consecutivePingFailures = 0
				}
				continue
			}
			consecutivePingFailures = 0
		}
	}
}

func (ws *wsFeed) scheduleReconnect() {
	if ws.maxReconnectAttempts <= 0 {
		return
	}
	ws.setState(feedReconnecting)

	go func() {
		for attempt := 1; attempt <= ws.maxReconnectAttempts; attempt++ {
			select {
			case <-ws.stopCh:
				return
			case <-time.After(backoffDuration(attempt)):
			}

			dialCtx, cancel := context.WithTimeout(ws.rootCtx, 10*time.Second)
			conn, _, err := websocket.Dial(dialCtx, ws.wsURL, &websocket.DialOptions{
				CompressionMode: websocket.CompressionNoContextTakeover,
				HTTPHeader:      ws.buildHeaders(),
			})
			cancel()
			if err != nil {
				continue
			}

			ws.setConn(conn)
			ws.setState(feedConnected)

			ws.wg.Add(2)
			go ws.listen()
			go ws.pingLoop()
			return
		}
		ws.setState(feedFailed)
	}()
}

func (ws *wsFeed) subscribe(collection string, cb EventCallback) func() {
	ws.subM.Lock()
	ws.nextSubID++
	id := ws.nextSubID
	ws.subs[id] = subscription{collection: collection, cb: cb}
	ws.subM.Unlock()
	return func() {
		ws.subM.Lock()
		delete(ws.subs, id)
		ws.subM.Unlock()
	}
}

func (ws *wsFeed) unsubscribeAll() {
	ws.subM.Lock()
	ws.subs = make(map[int]subscription)
	ws.subM.Unlock()
}

func (ws *wsFeed) clientIDSnapshot() string {
	ws.subM.RLock()
	defer ws.subM.RUnlock()
	return ws.clientID
}

func (ws *wsFeed) dispatch(ev Event) {
	ws.subM.RLock()
	cbs := make([]EventCallback, 0, len(ws.subs))
	for _, s := range ws.subs {
		if s.collection == ev.Collection || s.collection == "*" {
			cbs = append(cbs, s.cb)
		}
	}
	ws.subM.RUnlock()
	for _, cb := range cbs {
		cb(ev)
	}
}

func (ws *wsFeed) setState(state feedState) {
	ws.stateM.Lock()
	ws.state = state
	ws.stateM.Unlock()
}

func (ws *wsFeed) close(ctx context.Context) error {
	ws.stopOnce.Do(func() { close(ws.stopCh) })
	_ = ws.closeConn(websocket.StatusNormalClosure, "close")

	done := make(chan struct{})
	go func() {
		ws.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		if ws.rootCancel != nil {
			ws.rootCancel()
		}
		return nil
	}
}

func (ws *wsFeed) setConn(c *websocket.Conn) {
	ws.connM.Lock()
	ws.conn = c
	ws.connM.Unlock()
}

func (ws *wsFeed) getConn() *websocket.Conn {
	ws.connM.RLock()
	defer ws.connM.RUnlock()
	return ws.conn
}

func (ws *wsFeed) closeConn(code websocket.StatusCode, reason string) error {
	ws.connM.Lock()
	conn := ws.conn
	ws.conn = nil
	ws.connM.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close(code, reason)
}

func (ws *wsFeed) isStopping() bool {
	select {
	case <-ws.stopCh:
		return true
	default:
		return false
	}
}

func (ws *wsFeed) buildHeaders() http.Header {
	hdr := http.Header{}
	if ws.headerProvider == nil {
		return hdr
	}
	for k, v := range ws.headerProvider() {
		if strings.TrimSpace(k) == "" || strings.TrimSpace(v) == "" {
			continue
		}
		hdr.Set(k, v)
	}
	return hdr
}
