package nostrrelay

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/vulpemventures/cashew/pkg/nostr"
)

const (
	msgEvent  = "EVENT"
	msgReq    = "REQ"
	msgClose  = "CLOSE"
	msgEose   = "EOSE"
	msgOk     = "OK"
	msgClosed = "CLOSED"
	msgNotice = "NOTICE"
)

var ErrConnectionClosed = fmt.Errorf("relay connection closed")

type relayMessage struct {
	kind  string
	event *nostr.Event
	ok    bool
	text  string
}

type subscription struct {
	ch   chan relayMessage
	done chan struct{}
}

// relayConn is a websocket connection to a single relay. Responses are
// dispatched by subscription id or event id to the waiting callers.
type relayConn struct {
	url       string
	conn      *websocket.Conn
	writeLock *sync.Mutex
	lock      *sync.Mutex
	subs      map[string]*subscription
	oks       map[string]chan relayMessage
	dead      chan struct{}
	closeOnce *sync.Once

	log  func(format string, a ...interface{})
	warn func(err error, format string, a ...interface{})
}

func dial(
	ctx context.Context, url string,
	logFn func(format string, a ...interface{}),
	warnFn func(err error, format string, a ...interface{}),
) (*relayConn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}

	c := &relayConn{
		url:       url,
		conn:      conn,
		writeLock: &sync.Mutex{},
		lock:      &sync.Mutex{},
		subs:      make(map[string]*subscription),
		oks:       make(map[string]chan relayMessage),
		dead:      make(chan struct{}),
		closeOnce: &sync.Once{},
		log:       logFn,
		warn:      warnFn,
	}
	go c.listen()
	return c, nil
}

func (c *relayConn) isAlive() bool {
	select {
	case <-c.dead:
		return false
	default:
		return true
	}
}

func (c *relayConn) close() {
	c.closeOnce.Do(func() {
		close(c.dead)
		// nolint
		c.conn.Close()
	})
}

func (c *relayConn) listen() {
	defer c.close()

	for {
		_, buf, err := c.conn.ReadMessage()
		if err != nil {
			if c.isAlive() {
				c.warn(err, "connection to %s dropped", c.url)
			}
			return
		}

		var msg []json.RawMessage
		if err := json.Unmarshal(buf, &msg); err != nil || len(msg) < 2 {
			c.log("skipping malformed message from %s", c.url)
			continue
		}
		var kind string
		if err := json.Unmarshal(msg[0], &kind); err != nil {
			continue
		}

		switch kind {
		case msgEvent:
			if len(msg) < 3 {
				continue
			}
			var subID string
			event := &nostr.Event{}
			if json.Unmarshal(msg[1], &subID) != nil ||
				json.Unmarshal(msg[2], event) != nil {
				continue
			}
			c.deliver(subID, relayMessage{kind: kind, event: event})
		case msgEose, msgClosed:
			var subID, text string
			if json.Unmarshal(msg[1], &subID) != nil {
				continue
			}
			if len(msg) > 2 {
				// nolint
				json.Unmarshal(msg[2], &text)
			}
			c.deliver(subID, relayMessage{kind: kind, text: text})
		case msgOk:
			if len(msg) < 3 {
				continue
			}
			var eventID, text string
			var ok bool
			if json.Unmarshal(msg[1], &eventID) != nil ||
				json.Unmarshal(msg[2], &ok) != nil {
				continue
			}
			if len(msg) > 3 {
				// nolint
				json.Unmarshal(msg[3], &text)
			}
			c.lock.Lock()
			ch, found := c.oks[eventID]
			c.lock.Unlock()
			if found {
				select {
				case ch <- relayMessage{kind: kind, ok: ok, text: text}:
				default:
				}
			}
		case msgNotice:
			var text string
			// nolint
			json.Unmarshal(msg[1], &text)
			c.log("notice from %s: %s", c.url, text)
		}
	}
}

func (c *relayConn) deliver(subID string, msg relayMessage) {
	c.lock.Lock()
	sub, ok := c.subs[subID]
	c.lock.Unlock()
	if !ok {
		return
	}
	select {
	case sub.ch <- msg:
	case <-sub.done:
	}
}

func (c *relayConn) write(v interface{}) error {
	c.writeLock.Lock()
	defer c.writeLock.Unlock()
	return c.conn.WriteJSON(v)
}

func (c *relayConn) publish(ctx context.Context, event *nostr.Event) error {
	ch := make(chan relayMessage, 1)
	c.lock.Lock()
	c.oks[event.ID] = ch
	c.lock.Unlock()
	defer func() {
		c.lock.Lock()
		delete(c.oks, event.ID)
		c.lock.Unlock()
	}()

	if err := c.write([]interface{}{msgEvent, event}); err != nil {
		c.close()
		return err
	}

	select {
	case msg := <-ch:
		if !msg.ok && !strings.HasPrefix(msg.text, "duplicate") {
			return fmt.Errorf("event rejected by %s: %s", c.url, msg.text)
		}
		return nil
	case <-c.dead:
		return ErrConnectionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *relayConn) query(
	ctx context.Context, filter nostr.Filter,
) ([]*nostr.Event, error) {
	subID := uuid.New().String()
	sub := &subscription{
		ch:   make(chan relayMessage, 16),
		done: make(chan struct{}),
	}
	c.lock.Lock()
	c.subs[subID] = sub
	c.lock.Unlock()
	defer func() {
		close(sub.done)
		c.lock.Lock()
		delete(c.subs, subID)
		c.lock.Unlock()
		if c.isAlive() {
			// nolint
			c.write([]interface{}{msgClose, subID})
		}
	}()

	if err := c.write([]interface{}{msgReq, subID, filter}); err != nil {
		c.close()
		return nil, err
	}

	events := make([]*nostr.Event, 0)
	for {
		select {
		case msg := <-sub.ch:
			switch msg.kind {
			case msgEvent:
				events = append(events, msg.event)
			case msgEose:
				return events, nil
			case msgClosed:
				return nil, fmt.Errorf("subscription closed by %s: %s", c.url, msg.text)
			}
		case <-c.dead:
			return nil, ErrConnectionClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
