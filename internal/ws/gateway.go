// Package ws is the live channel: authenticated websocket connections
// speaking the {"event", "data"} envelope.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"candidnotes/internal/common"
	"candidnotes/internal/config"
	"candidnotes/internal/presence"
	"candidnotes/internal/realtime"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const trackerTimeout = 2 * time.Second

type Submitter interface {
	Submit(ctx context.Context, identity common.Identity, sub common.Submission) (*common.MessageView, error)
}

type UnreadPusher interface {
	PushUnreadCount(ctx context.Context, userID string) (int64, error)
}

type Gateway struct {
	auth          common.Authenticator
	registry      *realtime.Registry
	broadcaster   *realtime.Broadcaster
	pipeline      Submitter
	typing        *presence.TypingRelay
	tracker       presence.Tracker
	notifications UnreadPusher
	upgrader      websocket.Upgrader
	cfg           config.RealtimeConfig
	log           *logrus.Entry
}

func NewGateway(
	cfg *config.Config,
	auth common.Authenticator,
	registry *realtime.Registry,
	broadcaster *realtime.Broadcaster,
	pipeline Submitter,
	typing *presence.TypingRelay,
	tracker presence.Tracker,
	notifications UnreadPusher,
	logger *logrus.Logger,
) *Gateway {
	rt := cfg.Realtime
	if rt.PingInterval <= 0 {
		rt.PingInterval = 30 * time.Second
	}
	if rt.PongWait <= rt.PingInterval {
		rt.PongWait = rt.PingInterval * 2
	}
	if rt.WriteWait <= 0 {
		rt.WriteWait = 10 * time.Second
	}
	if rt.SendBuffer < 1 {
		rt.SendBuffer = 256
	}

	g := &Gateway{
		auth:          auth,
		registry:      registry,
		broadcaster:   broadcaster,
		pipeline:      pipeline,
		typing:        typing,
		tracker:       tracker,
		notifications: notifications,
		cfg:           rt,
		log:           logger.WithField("component", "ws_gateway"),
	}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     allowOrigin(cfg.Server.ClientURL),
	}
	return g
}

// allowOrigin accepts same-host requests, non-browser clients that send no
// Origin, and the configured client URL.
func allowOrigin(clientURL string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || clientURL == "*" {
			return true
		}
		if strings.EqualFold(strings.TrimRight(origin, "/"), strings.TrimRight(clientURL, "/")) {
			return true
		}
		return strings.HasSuffix(origin, "://"+r.Host)
	}
}

func (g *Gateway) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/ws", g.ServeWS).Methods(http.MethodGet)
}

// ServeWS verifies the caller before upgrading; a rejected handshake never
// reaches the event loop.
func (g *Gateway) ServeWS(w http.ResponseWriter, r *http.Request) {
	identity, err := g.auth.Authenticate(r.Context(), common.BearerToken(r))
	if err != nil {
		g.log.WithError(err).Debug("websocket handshake rejected")
		common.WriteError(w, err)
		return
	}

	wsConn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.WithError(err).Info("upgrade websocket error")
		return
	}

	conn := newConnection(uuid.NewString(), identity, wsConn, g.cfg, g.log)
	first, err := g.registry.Register(conn)
	if err != nil {
		conn.log.WithError(err).Warn("failed to register connection")
		_ = wsConn.Close()
		return
	}
	go conn.writeLoop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn.log.Info("connection opened")
	if first {
		g.statusChanged(ctx, identity.UserID, common.StatusOnline)
	}
	if _, err := g.notifications.PushUnreadCount(ctx, identity.UserID); err != nil {
		conn.log.WithError(err).Warn("failed to push unread count")
	}

	g.readLoop(ctx, conn)
	g.disconnect(conn)
}

func (g *Gateway) readLoop(ctx context.Context, conn *Connection) {
	ws := conn.ws
	if g.cfg.ReadLimit > 0 {
		ws.SetReadLimit(g.cfg.ReadLimit)
	}
	_ = ws.SetReadDeadline(time.Now().Add(g.cfg.PongWait))
	ws.SetPongHandler(func(string) error {
		_ = ws.SetReadDeadline(time.Now().Add(g.cfg.PongWait))
		g.touch(ctx, conn)
		return nil
	})

	for {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				conn.log.WithError(err).Info("read error")
			}
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}

		var frame inbound
		if err := json.Unmarshal(data, &frame); err != nil || frame.Event == "" {
			g.sendError(conn, common.ValidationError("malformed frame"))
			continue
		}
		if err := g.dispatch(ctx, conn, frame); err != nil {
			g.sendError(conn, err)
		}
	}
}

func (g *Gateway) dispatch(ctx context.Context, conn *Connection, frame inbound) error {
	switch frame.Event {
	case common.EventJoinRoom:
		var room common.RoomPayload
		if err := decode(frame, &room); err != nil {
			return err
		}
		return g.registry.Join(conn.ID(), room.CandidateID)

	case common.EventLeaveRoom:
		var room common.RoomPayload
		if err := decode(frame, &room); err != nil {
			return err
		}
		g.typing.Forget(conn.ID(), room.CandidateID)
		return g.registry.Leave(conn.ID(), room.CandidateID)

	case common.EventSubmitMessage:
		var sub common.Submission
		if err := decodeRaw(frame, &sub); err != nil {
			return err
		}
		view, err := g.pipeline.Submit(ctx, conn.Identity(), sub)
		if err != nil {
			return err
		}
		if err := conn.Send(common.EventMessageAck, common.AckPayload{MessageID: view.ID}); err != nil {
			conn.log.WithError(err).Warn("failed to acknowledge message")
		}
		return nil

	case common.EventTyping:
		var typing common.TypingPayload
		if err := decode(frame, &typing); err != nil {
			return err
		}
		g.typing.Relay(conn.Identity(), conn.ID(), typing.CandidateID, typing.IsTyping)
		return nil

	default:
		return common.ValidationError("unknown event %q", frame.Event)
	}
}

// decodeRaw only unmarshals; validation is left to the consumer.
func decodeRaw(frame inbound, v interface{}) error {
	if len(frame.Data) == 0 || string(frame.Data) == "null" {
		return common.ValidationError("%s requires data", frame.Event)
	}
	if err := json.Unmarshal(frame.Data, v); err != nil {
		return common.ValidationError("malformed %s payload", frame.Event)
	}
	return nil
}

func decode(frame inbound, v interface{}) error {
	if err := decodeRaw(frame, v); err != nil {
		return err
	}
	return common.ValidateStruct(v)
}

func (g *Gateway) sendError(conn *Connection, err error) {
	entry := conn.log.WithField("kind", common.KindOf(err))
	if common.KindOf(err) == common.KindInternal {
		entry.WithError(err).Error("event failed")
	} else {
		entry.WithError(err).Debug("event rejected")
	}
	if sendErr := conn.Send(common.EventError, common.ErrorPayloadFor(err)); sendErr != nil {
		entry.WithError(sendErr).Debug("failed to send error event")
	}
}

// disconnect removes the connection from every room and index at once,
// then announces the user offline if this was their last connection.
func (g *Gateway) disconnect(conn *Connection) {
	g.typing.ForgetConnection(conn.ID())
	userID, last := g.registry.Unregister(conn.ID())
	_ = conn.Close()
	conn.log.Info("connection closed")

	if last {
		g.statusChanged(context.Background(), userID, common.StatusOffline)
	}
}

func (g *Gateway) statusChanged(ctx context.Context, userID, status string) {
	tctx, cancel := context.WithTimeout(ctx, trackerTimeout)
	defer cancel()

	var err error
	if status == common.StatusOnline {
		err = g.tracker.Online(tctx, userID)
	} else {
		err = g.tracker.Offline(tctx, userID)
	}
	if err != nil {
		g.log.WithError(err).WithField("user_id", userID).Warn("failed to update presence")
	}

	g.broadcaster.ToAllExcept(userID, common.EventUserStatusChanged, common.UserStatusPayload{UserID: userID, Status: status})
}

func (g *Gateway) touch(ctx context.Context, conn *Connection) {
	tctx, cancel := context.WithTimeout(ctx, trackerTimeout)
	defer cancel()
	if err := g.tracker.Touch(tctx, conn.UserID()); err != nil {
		conn.log.WithError(err).Debug("failed to refresh presence")
	}
}

// Count is the number of live connections.
func (g *Gateway) Count() int {
	return g.registry.Count()
}
