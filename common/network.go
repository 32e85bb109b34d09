package common

import (
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrConnectionClosed is returned when writing to or closing a connection that is already closed
var ErrConnectionClosed = errors.New("connection already closed")

// Represents a connection capable of sending full messages between each other
// This is an abstracted type of the websocket connections used by the server and client code, primarily to allow mocks for testing purposes
type MessageConnection interface {
	// Reads a message, blocking
	ReadMessage() ([]byte, net.Addr, error)
	// Sends a message
	WriteMessage(data []byte) error
	// Sends a keepalive ping
	Ping() error
	// Sends a closing message with the given close code and closes the connection
	CloseWithMessage(code int, msg string) error
	// Closes the underlying socket
	Close() error
	// Determine if the connection has been closed or not
	IsClosed() bool
}

// WebsocketOptions tunes a WebsocketMessageConnection. Zero values disable the corresponding limit.
type WebsocketOptions struct {
	// Largest message accepted from the peer, in bytes
	ReadLimit int64
	// Deadline applied to every write
	WriteTimeout time.Duration
	// How long to wait for any frame (including pongs) before the read side gives up
	PongTimeout time.Duration
}

// Websocket implementation of MessageConnection, exchanging JSON text frames
type WebsocketMessageConnection struct {
	socket  *websocket.Conn
	options WebsocketOptions

	// gorilla allows one concurrent writer
	writeMutex *sync.Mutex

	isClosedMutex *sync.RWMutex
	closed        bool
}

// NewWebsocketMessageConnection wraps an established websocket connection
func NewWebsocketMessageConnection(socket *websocket.Conn, options WebsocketOptions) *WebsocketMessageConnection {
	connection := &WebsocketMessageConnection{
		socket:        socket,
		options:       options,
		writeMutex:    new(sync.Mutex),
		isClosedMutex: new(sync.RWMutex),
	}

	if options.ReadLimit > 0 {
		socket.SetReadLimit(options.ReadLimit)
	}
	if options.PongTimeout > 0 {
		_ = socket.SetReadDeadline(time.Now().Add(options.PongTimeout))
		socket.SetPongHandler(func(string) error {
			return socket.SetReadDeadline(time.Now().Add(options.PongTimeout))
		})
	}

	return connection
}

func (connection *WebsocketMessageConnection) ReadMessage() ([]byte, net.Addr, error) {
	_, data, err := connection.socket.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			connection.markClosed()
		}
		return data, connection.socket.RemoteAddr(), err
	}

	if connection.options.PongTimeout > 0 {
		_ = connection.socket.SetReadDeadline(time.Now().Add(connection.options.PongTimeout))
	}
	return data, connection.socket.RemoteAddr(), nil
}

func (connection *WebsocketMessageConnection) WriteMessage(data []byte) error {
	return connection.write(websocket.TextMessage, data)
}

func (connection *WebsocketMessageConnection) Ping() error {
	return connection.write(websocket.PingMessage, nil)
}

func (connection *WebsocketMessageConnection) CloseWithMessage(code int, msg string) error {
	err := connection.write(websocket.CloseMessage, websocket.FormatCloseMessage(code, msg))
	if err != nil {
		_ = connection.Close()
		return err
	}
	return connection.Close()
}

func (connection *WebsocketMessageConnection) Close() error {
	connection.isClosedMutex.Lock()
	defer connection.isClosedMutex.Unlock()

	if !connection.closed {
		connection.closed = true
		return connection.socket.Close()
	}
	return ErrConnectionClosed
}

func (connection *WebsocketMessageConnection) IsClosed() bool {
	connection.isClosedMutex.RLock()
	defer connection.isClosedMutex.RUnlock()

	return connection.closed
}

func (connection *WebsocketMessageConnection) write(messageType int, data []byte) error {
	if connection.IsClosed() {
		return ErrConnectionClosed
	}

	connection.writeMutex.Lock()
	defer connection.writeMutex.Unlock()

	if connection.options.WriteTimeout > 0 {
		_ = connection.socket.SetWriteDeadline(time.Now().Add(connection.options.WriteTimeout))
	}
	return connection.socket.WriteMessage(messageType, data)
}

// markClosed records a peer-initiated close so the socket is still released by Close
func (connection *WebsocketMessageConnection) markClosed() {
	connection.isClosedMutex.Lock()
	defer connection.isClosedMutex.Unlock()

	if !connection.closed {
		connection.closed = true
		_ = connection.socket.Close()
	}
}

// Represents a source for creating MessageConnections to remote addresses
type MessageConnectionProvider interface {
	// Creates and returns a new MessageConnection that is connected to the specified address
	DialForConnection(address string) (MessageConnection, error)
}

// Implements MessageConnectionProvider by dialing websocket connections
type WebsocketConnectionProvider struct {
	Options WebsocketOptions
	Header  http.Header
}

func (provider *WebsocketConnectionProvider) DialForConnection(address string) (MessageConnection, error) {
	webConn, _, err := websocket.DefaultDialer.Dial(address, provider.Header)
	if err != nil {
		return nil, err
	}
	return NewWebsocketMessageConnection(webConn, provider.Options), nil
}
