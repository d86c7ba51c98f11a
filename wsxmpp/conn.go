package wsxmpp

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	jingle "github.com/Connect-Club/connectclub-jingle"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const Subprotocol = "xmpp"

var ErrClosed = errors.New("connection closed")
var ErrTimeout = errors.New("response timed out")

const writeWait = 5 * time.Second

type pendingRequest struct {
	onResult func(*jingle.IQ)
	onError  func(error)
	timer    *time.Timer
}

type handler struct {
	match  func(*jingle.IQ) bool
	handle func(*jingle.IQ)
}

// Conn carries one IQ stanza per websocket text message. It implements
// jingle.Messenger; handlers and response callbacks run on the read goroutine.
type Conn struct {
	log *logrus.Entry
	ws  *websocket.Conn

	writeMu sync.Mutex

	mu       sync.Mutex
	pending  map[string]*pendingRequest
	handlers []handler
	closed   bool

	closeOnce sync.Once
	done      chan struct{}
}

var _ jingle.Messenger = (*Conn)(nil)

// Dial connects to url, offering the xmpp subprotocol.
func Dial(ctx context.Context, url string, header http.Header) (*Conn, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 10 * time.Second,
		Subprotocols:     []string{Subprotocol},
	}
	ws, _, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("cannot dial %v: %w", url, err)
	}
	return New(ws), nil
}

// New takes ownership of ws and starts reading from it.
func New(ws *websocket.Conn) *Conn {
	c := &Conn{
		log:     logrus.WithField("remote", ws.RemoteAddr().String()),
		ws:      ws,
		pending: make(map[string]*pendingRequest),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c
}

func (c *Conn) Done() <-chan struct{} {
	return c.done
}

func (c *Conn) write(iq *jingle.IQ) error {
	data, err := xml.Marshal(iq)
	if err != nil {
		return fmt.Errorf("cannot marshal stanza: %w", err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *Conn) SendRequest(iq *jingle.IQ, onResult func(*jingle.IQ), onError func(error), timeout time.Duration) string {
	if iq.ID == "" {
		iq.ID = uuid.NewString()
	}
	id := iq.ID

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		go onError(ErrClosed)
		return id
	}
	req := &pendingRequest{onResult: onResult, onError: onError}
	req.timer = time.AfterFunc(timeout, func() {
		if r := c.take(id); r != nil {
			r.onError(fmt.Errorf("%w, id = %v", ErrTimeout, id))
		}
	})
	c.pending[id] = req
	c.mu.Unlock()

	if err := c.write(iq); err != nil {
		if r := c.take(id); r != nil {
			r.onError(err)
		}
	}
	return id
}

func (c *Conn) Send(iq *jingle.IQ) error {
	if iq.ID == "" {
		iq.ID = uuid.NewString()
	}
	return c.write(iq)
}

func (c *Conn) RegisterHandler(match func(*jingle.IQ) bool, handle func(*jingle.IQ)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.handlers = append(c.handlers, handler{match: match, handle: handle})
}

func (c *Conn) take(id string) *pendingRequest {
	c.mu.Lock()
	defer c.mu.Unlock()

	req, ok := c.pending[id]
	if !ok {
		return nil
	}
	delete(c.pending, id)
	req.timer.Stop()
	return req
}

func (c *Conn) readLoop() {
	defer c.shutdown()

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.WithError(err).Warn("read failed")
			}
			return
		}
		var iq jingle.IQ
		if err := xml.Unmarshal(data, &iq); err != nil {
			c.log.WithError(err).Warn("cannot parse stanza")
			continue
		}
		c.dispatch(&iq)
	}
}

func (c *Conn) dispatch(iq *jingle.IQ) {
	switch iq.Type {
	case jingle.IQResult, jingle.IQError:
		req := c.take(iq.ID)
		if req == nil {
			c.log.WithField("id", iq.ID).Debug("response without request")
			return
		}
		if iq.Type == jingle.IQError {
			if iq.Error != nil {
				req.onError(iq.Error)
			} else {
				req.onError(errors.New("error response without condition"))
			}
			return
		}
		req.onResult(iq)
		return
	}

	c.mu.Lock()
	handlers := append([]handler(nil), c.handlers...)
	c.mu.Unlock()
	for _, h := range handlers {
		if h.match(iq) {
			h.handle(iq)
			return
		}
	}
	log := c.log.WithFields(logrus.Fields{"id": iq.ID, "type": iq.Type})
	log.Debug("unhandled stanza")
	if iq.Type == jingle.IQGet || iq.Type == jingle.IQSet {
		if err := c.write(iq.ErrorReply("cancel", jingle.StanzaCondition("service-unavailable"))); err != nil {
			log.WithError(err).Warn("cannot reject stanza")
		}
	}
}

func (c *Conn) shutdown() {
	c.mu.Lock()
	c.closed = true
	pending := c.pending
	c.pending = make(map[string]*pendingRequest)
	c.mu.Unlock()

	for _, req := range pending {
		req.timer.Stop()
		req.onError(ErrClosed)
	}
	close(c.done)
}

// Close sends a close frame and waits for the read loop to finish.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		c.writeMu.Unlock()

		select {
		case <-c.done:
		case <-time.After(writeWait):
		}
		err = c.ws.Close()
		<-c.done
	})
	return err
}
