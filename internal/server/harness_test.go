package server

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/techox/unotable/internal/auth"
	"github.com/techox/unotable/internal/protocol"
	"github.com/techox/unotable/internal/session"
	"github.com/techox/unotable/internal/store"
)

// testConn is an in-memory session.Conn that records everything sent to it
type testConn struct {
	id string

	mu     sync.Mutex
	sent   []*protocol.Envelope
	closed bool
}

func newTestConn(id string) *testConn { return &testConn{id: id} }

func (c *testConn) ID() string { return c.id }

func (c *testConn) Send(env *protocol.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, env)
	return nil
}

func (c *testConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// envelopes returns a snapshot of everything sent so far
func (c *testConn) envelopes() []*protocol.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*protocol.Envelope(nil), c.sent...)
}

// last returns the most recent envelope
func (c *testConn) last(t *testing.T) *protocol.Envelope {
	t.Helper()
	envs := c.envelopes()
	require.NotEmpty(t, envs, "no envelopes sent to %s", c.id)
	return envs[len(envs)-1]
}

// lastOfType returns the most recent envelope with the given kind and type
func (c *testConn) lastOfType(t *testing.T, kind, msgType string) *protocol.Envelope {
	t.Helper()
	envs := c.envelopes()
	for i := len(envs) - 1; i >= 0; i-- {
		if envs[i].Kind == kind && envs[i].Type == msgType {
			return envs[i]
		}
	}
	t.Fatalf("no %s/%s envelope sent to %s", kind, msgType, c.id)
	return nil
}

func (c *testConn) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = nil
}

// harness wires a full command path against in-memory collaborators
type harness struct {
	clock     *quartz.Mock
	store     *store.Store
	registry  *session.Registry
	directory *MemoryDirectory
	service   *GameService
	router    *Router
}

func newHarness(t *testing.T) *harness {
	logger := zerolog.Nop()
	clock := quartz.NewMock(t)

	st := store.New(store.Config{}, clock, logger)
	registry := session.NewRegistry(logger)
	broadcaster := NewBroadcaster(registry, clock, logger)

	directory := NewMemoryDirectory()
	directory.Put(Room{ID: 1, Name: "main", OwnerID: 1, MaxPlayers: 4})

	service := NewGameService(st, registry, directory, broadcaster, clock, logger)
	router := NewRouter(auth.NewDevVerifier(), registry, service, clock, logger)

	return &harness{
		clock:     clock,
		store:     st,
		registry:  registry,
		directory: directory,
		service:   service,
		router:    router,
	}
}

// cmd builds a command envelope with a correlation id
func cmd(msgType string, data interface{}) *protocol.Envelope {
	env := &protocol.Envelope{Kind: protocol.KindCommand, Type: msgType, Cid: "cid-" + msgType}
	if data != nil {
		raw, _ := json.Marshal(data)
		env.Data = raw
	}
	return env
}

func (h *harness) handle(conn *testConn, env *protocol.Envelope) {
	h.router.Handle(context.Background(), conn, env)
}

// authAs authenticates a connection. Tokens of the form "name:id" pin the
// user id through the dev verifier.
func (h *harness) authAs(t *testing.T, conn *testConn, token string) {
	t.Helper()
	h.handle(conn, cmd(CmdAuth, AuthData{Token: token}))

	ack := conn.lastOfType(t, protocol.KindAck, CmdAuth)
	var data AuthAckData
	require.NoError(t, json.Unmarshal(ack.Data, &data))
	conn.clear()
}

// joinRoom authenticates nothing, just issues the join and clears the ack
func (h *harness) joinRoom(t *testing.T, conn *testConn, roomID int64) {
	t.Helper()
	h.handle(conn, cmd(CmdRoomJoin, JoinRoomData{RoomID: roomID}))
	conn.lastOfType(t, protocol.KindAck, CmdRoomJoin)
	conn.clear()
}

// decodeData unmarshals an envelope payload into out
func decodeData(t *testing.T, env *protocol.Envelope, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(env.Data, out))
}

// errorCode extracts the code from an err envelope
func errorCode(t *testing.T, env *protocol.Envelope) string {
	t.Helper()
	require.Equal(t, protocol.KindError, env.Kind)
	var data protocol.ErrorData
	decodeData(t, env, &data)
	return data.Code
}
