package transport

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/tidwall/buntdb"

	"github.com/cifrazia/cats-go/cmn/cos"
	"github.com/cifrazia/cats-go/cmn/nlog"
	"github.com/cifrazia/cats-go/config"
)

// ChannelAll is every signed-in-or-not connection's implicit channel.
const ChannelAll = "__all__"

const identityKeyPrefix = "identity:"

func identityKey(identityID string) string { return identityKeyPrefix + identityID }

func channelKeyPrefix(channel string) string { return "channel:" + channel + ":" }

func channelKey(channel, connID string) string { return channelKeyPrefix(channel) + connID }

// Middleware wraps HandlerFunc, composed outermost-first the
// first-registered middleware sees the request first and the response
// last, mirroring xreg's style of wrapping renewable entries.
type Middleware func(HandlerFunc) HandlerFunc

// Handshaker authenticates a new connection before it reaches StateRunning:
// accept or fail closed within the configured timeout.
type Handshaker interface {
	Handshake(ctx context.Context, c *Conn) error
}

// Server owns the handler registry, channel/identity index, middleware
// chain, and event bus shared by every accepted Conn.
type Server struct {
	Api        *Api
	Handshaker Handshaker
	Config     *config.Config

	middleware []Middleware

	ic *idleCollector

	mu    sync.RWMutex
	conns map[string]*Conn

	// idx is the channel-membership and identity-lookup index: buntdb
	// keys "channel:<channel>:<conn id>" (value is the conn id, for
	// Members' AscendKeys scan) and "identity:<identity id>" (value is
	// the conn id, for ConnByIdentity's O(1) Get). s.conns remains the
	// only place the actual *Conn lives, since buntdb only stores
	// strings.
	idx *buntdb.DB

	events *EventBus

	// HandshakeTimeout is per-Server, not global; every listener served by
	// this Server shares it.
	HandshakeTimeout time.Duration
}

func NewServer(api *Api, hs Handshaker, cfg *config.Config) *Server {
	if cfg == nil {
		cfg = config.Default()
	}
	idx, err := buntdb.Open(":memory:")
	if err != nil {
		// :memory: never fails to open in practice; keep the server usable
		// with channel/identity lookups degrading to no-ops rather than a
		// nil-pointer panic.
		nlog.Errorf("server: buntdb open failed, channel index disabled: %v", err)
		idx = nil
	}
	s := &Server{
		Api:              api,
		Handshaker:       hs,
		Config:           cfg,
		ic:               newIdleCollector(idleTickUnit),
		conns:            make(map[string]*Conn),
		idx:              idx,
		events:           NewEventBus(),
		HandshakeTimeout: 10 * time.Second,
	}
	s.Use(s.defaultErrorMiddleware)
	go s.ic.run()
	s.events.Fire(context.Background(), EventServerStart, nil, nil)
	return s
}

// Use appends a middleware to the chain.
func (s *Server) Use(mw Middleware) { s.middleware = append(s.middleware, mw) }

func (s *Server) wrap(h HandlerFunc) HandlerFunc {
	for i := len(s.middleware) - 1; i >= 0; i-- {
		h = s.middleware[i](h)
	}
	return h
}

// handle resolves req's handler by id+version, runs it through the
// middleware chain, and returns its response.
func (s *Server) handle(ctx context.Context, req *Request) (*Response, error) {
	item, ok := s.Api.Resolve(req.HandlerID, req.Conn.apiVersion)
	if !ok {
		return nil, cos.NewProtocolError("no handler for id %d at version %d", req.HandlerID, req.Conn.apiVersion)
	}
	return s.wrap(item.Callback)(ctx, req)
}

// Accept runs the accept loop for one net.Listener until ctx is canceled.
// Each accepted connection is handshaked then served on its own goroutine.
func (s *Server) Accept(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	for {
		nc, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		go s.onAccept(ctx, nc)
	}
}

func (s *Server) onAccept(ctx context.Context, nc net.Conn) {
	c := NewConn(nc, s.Config, s.ic)
	s.register(c)
	defer s.unregister(c)

	hctx, cancel := context.WithTimeout(ctx, s.HandshakeTimeout)
	c.setState(StateHandshaking)
	err := s.Handshaker.Handshake(hctx, c)
	cancel()
	if err != nil {
		nlog.Warningf("conn %s handshake failed: %v", c.id, err)
		s.events.Fire(ctx, EventHandshakeFail, c, err)
		c.Close(ctx)
		return
	}
	s.events.Fire(ctx, EventHandshakePass, c, nil)
	s.events.Fire(ctx, EventConnStart, c, nil)
	serveErr := c.Serve(ctx, s)
	if serveErr != nil {
		nlog.Infof("conn %s serve ended: %v", c.id, serveErr)
	}
	s.events.Fire(ctx, EventConnClose, c, serveErr)
}

func (s *Server) register(c *Conn) {
	s.mu.Lock()
	s.conns[c.id] = c
	s.mu.Unlock()
	s.Join(c, ChannelAll)
}

func (s *Server) unregister(c *Conn) {
	s.mu.Lock()
	delete(s.conns, c.id)
	s.mu.Unlock()

	if s.idx == nil {
		return
	}
	_ = s.idx.Update(func(tx *buntdb.Tx) error {
		var keys []string
		_ = tx.AscendKeys("channel:*:"+c.id, func(key, _ string) bool {
			keys = append(keys, key)
			return true
		})
		_ = tx.AscendKeys(identityKeyPrefix+"*", func(key, value string) bool {
			if value == c.id {
				keys = append(keys, key)
			}
			return true
		})
		for _, k := range keys {
			if _, err := tx.Delete(k); err != nil && err != buntdb.ErrNotFound {
				return err
			}
		}
		return nil
	})
}

// SignIn binds an identity to a connection, joining it to its identity
// channels model_<model_name>, model_<model_name>:<identity_id>.
func (s *Server) SignIn(c *Conn, identityID, modelName string) {
	c.SetIdentity(identityID)
	if s.idx != nil {
		_ = s.idx.Update(func(tx *buntdb.Tx) error {
			_, _, err := tx.Set(identityKey(identityID), c.id, nil)
			return err
		})
	}
	s.Join(c, "model_"+modelName)
	s.Join(c, "model_"+modelName+":"+identityID)
	s.events.Fire(context.Background(), EventSignedIn, c, nil)
}

// Join adds c to a named channel, creating it if needed.
func (s *Server) Join(c *Conn, channel string) {
	if s.idx == nil {
		return
	}
	_ = s.idx.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(channelKey(channel, c.id), c.id, nil)
		return err
	})
}

// Leave removes c from a named channel.
func (s *Server) Leave(c *Conn, channel string) {
	if s.idx == nil {
		return
	}
	_ = s.idx.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(channelKey(channel, c.id))
		if err != nil && err != buntdb.ErrNotFound {
			return err
		}
		return nil
	})
}

// Members returns a snapshot of a channel's connections, resolved from the
// buntdb membership index back to live *Conn values via s.conns.
func (s *Server) Members(channel string) []*Conn {
	if s.idx == nil {
		return nil
	}
	var ids []string
	_ = s.idx.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(channelKeyPrefix(channel)+"*", func(_, value string) bool {
			ids = append(ids, value)
			return true
		})
	})
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Conn, 0, len(ids))
	for _, id := range ids {
		if c, ok := s.conns[id]; ok {
			out = append(out, c)
		}
	}
	return out
}

// ConnByIdentity looks up the live connection for a signed-in identity via
// an O(1) buntdb key lookup, if any.
func (s *Server) ConnByIdentity(identityID string) (*Conn, bool) {
	if s.idx == nil {
		return nil, false
	}
	var connID string
	err := s.idx.View(func(tx *buntdb.Tx) error {
		v, err := tx.Get(identityKey(identityID))
		if err != nil {
			return err
		}
		connID = v
		return nil
	})
	if err != nil {
		return nil, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conns[connID]
	return c, ok
}

// Shutdown fires the shutdown event, closes every live connection (without
// waiting for in-flight handlers; see Conn.Close), clears the
// channel-membership index, then stops the idle collector and closes the
// in-memory index.
func (s *Server) Shutdown(ctx context.Context) error {
	s.events.Fire(ctx, EventServerShutdown, nil, nil)

	s.mu.RLock()
	conns := make([]*Conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.RUnlock()

	var wg sync.WaitGroup
	for _, c := range conns {
		wg.Add(1)
		go func(c *Conn) {
			defer wg.Done()
			c.Close(ctx)
		}(c)
	}
	wg.Wait()

	if s.idx != nil {
		_ = s.idx.Update(func(tx *buntdb.Tx) error {
			var keys []string
			_ = tx.AscendKeys("channel:*", func(key, _ string) bool {
				keys = append(keys, key)
				return true
			})
			for _, k := range keys {
				tx.Delete(k)
			}
			return nil
		})
	}

	s.ic.stop()
	if s.idx != nil {
		return s.idx.Close()
	}
	return nil
}
