package rest

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mailmount/mailmount/pkg/extension/event"
	"github.com/mailmount/mailmount/pkg/msghub"
	"github.com/mailmount/mailmount/pkg/rest/model"
	"github.com/mailmount/mailmount/pkg/server/web"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 512

	// Events queued for a socket before it is considered too slow and dropped.
	listenerQueueLen = 100
)

var (
	errListenerClosed = errors.New("monitor socket closed")
	errSlowListener   = errors.New("monitor socket is not keeping up")
)

// options for gorilla connection upgrader
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// msgListener relays stored messages from the msghub to one socket.
type msgListener struct {
	hub       *msghub.Hub
	c         chan event.MessageMetadata
	done      chan struct{}
	closeOnce sync.Once
	account   string // account id to monitor, "" == all accounts
}

// newMsgListener creates a listener and registers it.  A non-empty account restricts the
// messages sent to the socket to that account.
func newMsgListener(hub *msghub.Hub, account string) *msgListener {
	ml := &msgListener{
		hub:     hub,
		c:       make(chan event.MessageMetadata, listenerQueueLen),
		done:    make(chan struct{}),
		account: account,
	}
	hub.AddListener(ml)
	return ml
}

// Receive is called from the hub goroutine, and must not block it.
func (ml *msgListener) Receive(msg event.MessageMetadata) error {
	if ml.account != "" && ml.account != msg.AccountID {
		return nil
	}
	select {
	case <-ml.done:
		return errListenerClosed
	case ml.c <- msg:
		return nil
	default:
		ml.stop()
		return errSlowListener
	}
}

func (ml *msgListener) stop() {
	ml.closeOnce.Do(func() { close(ml.done) })
}

// Close stops the listener and removes its registration.
func (ml *msgListener) Close() {
	ml.stop()
	ml.hub.RemoveListener(ml)
}

// WSReader makes sure the websocket client is still connected, discards any messages from client
func (ml *msgListener) WSReader(conn *websocket.Conn) {
	slog := log.With().Str("module", "rest").Str("proto", "WebSocket").
		Str("remote", conn.RemoteAddr().String()).Logger()
	defer ml.Close()
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		slog.Debug().Msg("Got pong")
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(
				err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				// Unexpected close code
				slog.Warn().Err(err).Msg("Socket error")
			} else {
				slog.Debug().Msg("Closing socket")
			}
			break
		}
	}
}

// WSWriter sends queued messages and pings until the listener is closed.
func (ml *msgListener) WSWriter(conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ml.Close()
	}()

	for {
		select {
		case <-ml.done:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case msg := <-ml.c:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			ev := &model.JSONMonitorEventV1{Variant: "message-stored", Header: headerToJSON(msg)}
			if conn.WriteJSON(ev) != nil {
				// Write failed
				return
			}
		case <-ticker.C:
			// Send ping
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if conn.WriteMessage(websocket.PingMessage, []byte{}) != nil {
				// Write error
				return
			}
			log.Debug().Str("module", "rest").Str("proto", "WebSocket").
				Str("remote", conn.RemoteAddr().String()).Msg("Sent ping")
		}
	}
}

// monitor upgrades the connection and streams stored messages until the client goes away.
func monitor(w http.ResponseWriter, req *http.Request, ctx *web.Context, account string) error {
	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		log.Warn().Str("module", "rest").Str("proto", "WebSocket").Err(err).Msg("Upgrade failed")
		return nil
	}
	web.ExpWebSocketConnectsCurrent.Add(1)
	defer func() {
		_ = conn.Close()
		web.ExpWebSocketConnectsCurrent.Add(-1)
	}()
	log.Debug().Str("module", "rest").Str("proto", "WebSocket").
		Str("remote", conn.RemoteAddr().String()).Str("account", account).Msg("Upgraded to WebSocket")

	ml := newMsgListener(ctx.MsgHub, account)
	go ml.WSWriter(conn)
	ml.WSReader(conn)
	return nil
}

// MonitorAllMessagesV1 is a web handler which upgrades the connection to a websocket and notifies
// the client of every message stored by a sync.
func MonitorAllMessagesV1(w http.ResponseWriter, req *http.Request, ctx *web.Context) error {
	return monitor(w, req, ctx, "")
}

// MonitorAccountMessagesV1 is a web handler which upgrades the connection to a websocket and
// notifies the client of messages stored for one account.
func MonitorAccountMessagesV1(w http.ResponseWriter, req *http.Request, ctx *web.Context) error {
	v, err := ctx.Manager.GetAccount(ctx.Vars["account"])
	if err != nil {
		return err
	}
	return monitor(w, req, ctx, v.ID)
}
