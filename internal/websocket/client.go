package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"expertvakil/server/internal/apperrors"
	"expertvakil/server/internal/identity"
	"expertvakil/server/internal/session"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	commandTimeout = 15 * time.Second
)

var validate = validator.New()

// Conn is the part of a websocket connection the client uses
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Client is one websocket connection bound to its own chat session
type Client struct {
	UserID  string
	Conn    Conn
	Hub     *Hub
	Session *session.Manager

	sendCh chan []byte
	mu     sync.Mutex
	closed bool
	log    *zap.SugaredLogger
}

// NewClient creates a client for me and starts its chat session. Session
// state changes are pushed to the connection as state events.
func NewClient(ctx context.Context, me identity.Identity, conn Conn, hub *Hub, deps session.Deps, log *zap.SugaredLogger) *Client {
	c := &Client{
		UserID: me.UserID,
		Conn:   conn,
		Hub:    hub,
		sendCh: make(chan []byte, 256),
		log:    log.With("user_id", me.UserID),
	}
	deps.Log = c.log
	deps.OnState = c.pushState
	deps.OnError = c.pushError
	c.Session = session.New(ctx, deps)
	c.Session.SetIdentity(&me)
	return c
}

// send queues data without blocking. It reports false when the client is
// closed or its buffer is full.
func (c *Client) send(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.sendCh <- data:
		return true
	default:
		return false
	}
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.sendCh)
	}
}

// SendMessage sends a message to the client
func (c *Client) SendMessage(msg WSMessage) error {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if !c.send(data) {
		return fmt.Errorf("client %s is not accepting messages", c.UserID)
	}
	return nil
}

func (c *Client) pushState(st session.State) {
	if err := c.SendMessage(WSMessage{Type: EventState, Payload: st}); err != nil {
		c.log.Debugw("state push skipped", "error", err)
	}
}

func (c *Client) pushError(err error) {
	c.reply(EventError, "", errorPayload(err))
}

func (c *Client) reply(typ EventType, requestID string, payload interface{}) {
	if err := c.SendMessage(WSMessage{Type: typ, RequestID: requestID, Payload: payload}); err != nil {
		c.log.Debugw("reply skipped", "type", typ, "error", err)
	}
}

func errorPayload(err error) ErrorPayload {
	return ErrorPayload{Code: string(apperrors.KindOf(err)), Message: err.Error()}
}

// ReadPump handles incoming commands from the client
func (c *Client) ReadPump() {
	defer func() {
		c.Session.Close()
		c.Hub.Remove(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warnw("websocket read error", "error", err)
			}
			break
		}

		var incoming IncomingMessage
		if err := json.Unmarshal(message, &incoming); err != nil {
			c.reply(EventError, "", ErrorPayload{Code: string(apperrors.KindInvalidArgument), Message: "malformed command"})
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		result, err := c.handleCommand(ctx, incoming)
		cancel()
		if err != nil {
			c.log.Debugw("command failed", "type", incoming.Type, "error", err)
			c.reply(EventError, incoming.RequestID, errorPayload(err))
			continue
		}
		c.reply(EventAck, incoming.RequestID, result)
	}
}

// WritePump handles outgoing messages to the client
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.sendCh:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.log.Warnw("websocket write error", "error", err)
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

func decode(raw json.RawMessage, v interface{}) error {
	const op = "websocket.decode"
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return apperrors.InvalidArgument(op, "malformed payload")
	}
	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return apperrors.InvalidArgument(op, fmt.Sprintf("%s failed on %s", verrs[0].Field(), verrs[0].Tag()))
		}
		return apperrors.InvalidArgument(op, err.Error())
	}
	return nil
}

// handleCommand runs one command against the session and returns the ack
// payload.
func (c *Client) handleCommand(ctx context.Context, msg IncomingMessage) (interface{}, error) {
	switch msg.Type {
	case EventStartConversation:
		var p StartConversationPayload
		if err := decode(msg.Payload, &p); err != nil {
			return nil, err
		}
		return c.Session.StartConversation(ctx, p.OtherUserID, p.OtherUserName)

	case EventSelectConversation:
		var p SelectConversationPayload
		if err := decode(msg.Payload, &p); err != nil {
			return nil, err
		}
		return nil, c.Session.SelectConversationWith(ctx, p.OtherUserID)

	case EventSendText:
		var p SendTextPayload
		if err := decode(msg.Payload, &p); err != nil {
			return nil, err
		}
		return c.Session.SendTextMessage(ctx, p.Text)

	case EventMarkSeen:
		return nil, c.Session.MarkMessagesAsSeen(ctx)

	case EventDeleteMessage:
		var p DeleteMessagePayload
		if err := decode(msg.Payload, &p); err != nil {
			return nil, err
		}
		if p.Scope == ScopeEveryone {
			return nil, c.Session.DeleteMessageForEveryone(ctx, p.MessageID)
		}
		return nil, c.Session.DeleteMessageForMe(ctx, p.MessageID)

	case EventClearConversation:
		c.Session.ClearCurrentConversation()
		return nil, nil

	case EventRefreshConversations:
		return nil, c.Session.RefreshConversations(ctx)

	default:
		return nil, apperrors.InvalidArgument("websocket.handleCommand", fmt.Sprintf("unknown command %q", msg.Type))
	}
}
