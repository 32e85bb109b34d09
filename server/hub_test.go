package server

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/alejzeis/strangerchat/common"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConnection is a MessageConnection whose writes block until release is closed
type fakeConnection struct {
	mutex     sync.Mutex
	written   [][]byte
	closeCode int
	closed    chan struct{}
	release   chan struct{}
	closeOnce sync.Once
}

func newFakeConnection() *fakeConnection {
	return &fakeConnection{
		closed:  make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (c *fakeConnection) ReadMessage() ([]byte, net.Addr, error) {
	<-c.closed
	return nil, nil, common.ErrConnectionClosed
}

func (c *fakeConnection) WriteMessage(data []byte) error {
	<-c.release
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.written = append(c.written, data)
	return nil
}

func (c *fakeConnection) Ping() error { return nil }

func (c *fakeConnection) CloseWithMessage(code int, msg string) error {
	c.mutex.Lock()
	c.closeCode = code
	c.mutex.Unlock()
	return c.Close()
}

func (c *fakeConnection) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConnection) IsClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *fakeConnection) frames() [][]byte {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return append([][]byte(nil), c.written...)
}

func (c *fakeConnection) code() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return c.closeCode
}

func TestHubNotifyUnknownClient(t *testing.T) {
	h := newHub()
	assert.False(t, h.Notify("ghost", common.EventSearching, nil))
}

func TestHubDeliversInOrder(t *testing.T) {
	h := newHub()
	conn := newFakeConnection()
	close(conn.release)

	client := newConnectedClient("a", conn, 8)
	h.add(client)
	go client.writePump(0)
	defer client.close(websocket.CloseNormalClosure, "")

	require.True(t, h.Notify("a", common.EventSearching, nil))
	require.True(t, h.Notify("a", common.EventMatched, common.MatchedEvent{PartnerID: "b"}))

	require.Eventually(t, func() bool { return len(conn.frames()) == 2 }, time.Second, 5*time.Millisecond)
	frames := conn.frames()
	assert.JSONEq(t, `{"event":"searching"}`, string(frames[0]))
	assert.JSONEq(t, `{"event":"matched","data":{"partnerId":"b"}}`, string(frames[1]))
}

func TestSlowClientIsDisconnected(t *testing.T) {
	h := newHub()
	conn := newFakeConnection()
	client := newConnectedClient("a", conn, 2)
	h.add(client)

	// Nothing drains the queue so the third frame overflows it
	assert.True(t, h.Notify("a", common.EventSearching, nil))
	assert.True(t, h.Notify("a", common.EventSearching, nil))
	assert.False(t, h.Notify("a", common.EventSearching, nil))

	select {
	case <-conn.closed:
	case <-time.After(time.Second):
		t.Fatal("slow client was not closed")
	}
	assert.Equal(t, websocket.ClosePolicyViolation, conn.code())
	assert.False(t, h.Notify("a", common.EventSearching, nil), "closed clients accept nothing")
}

func TestHubRemoveIgnoresReplacedClient(t *testing.T) {
	h := newHub()
	first := newConnectedClient("a", newFakeConnection(), 1)
	second := newConnectedClient("a", newFakeConnection(), 1)

	h.add(first)
	h.add(second)
	h.remove(first)
	assert.Same(t, second, h.get("a"))

	h.remove(second)
	assert.Nil(t, h.get("a"))
}

func TestCloseAll(t *testing.T) {
	h := newHub()
	conns := []*fakeConnection{newFakeConnection(), newFakeConnection()}
	for i, conn := range conns {
		h.add(newConnectedClient(string(rune('a'+i)), conn, 1))
	}

	h.closeAll()

	for _, conn := range conns {
		select {
		case <-conn.closed:
		case <-time.After(time.Second):
			t.Fatal("client was not closed")
		}
		assert.Equal(t, websocket.CloseGoingAway, conn.code())
	}
}
