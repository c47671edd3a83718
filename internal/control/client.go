package control

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
)

// Client is a single-connection control-plane client, grounded on the
// teacher's rpc/transport/unix.clientConnector dial and
// rpc/transport/base's request/response correlation by ID — simplified to
// one connection (no round-robin pool, no retry/backoff) since a backend
// process talks to exactly one local manager, not a replicated cluster.
type Client struct {
	socketPath string
	conn       net.Conn
	writeMu    sync.Mutex
	nextReqID  uint64
	pending    *xsync.MapOf[uint64, chan Message]
}

// Dial connects to the manager's control-plane socket.
func Dial(socketPath string) (*Client, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("control: dial %s: %w", socketPath, err)
	}
	c := &Client{
		socketPath: socketPath,
		conn:       conn,
		pending:    xsync.NewMapOf[uint64, chan Message](),
	}
	go c.readLoop()
	return c, nil
}

// Send issues req and blocks for the matching response.
func (c *Client) Send(req Message) (Message, error) {
	id := atomic.AddUint64(&c.nextReqID, 1)
	respCh := make(chan Message, 1)
	c.pending.Store(id, respCh)
	defer c.pending.Delete(id)

	c.writeMu.Lock()
	err := writeFrame(c.conn, id, req)
	c.writeMu.Unlock()
	if err != nil {
		return Message{}, err
	}

	resp := <-respCh
	if resp.MsgType == MsgTError {
		return resp, fmt.Errorf("control: %s", resp.Err)
	}
	return resp, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) readLoop() {
	for {
		id, msg, err := readFrame(c.conn)
		if err != nil {
			return
		}
		if ch, ok := c.pending.Load(id); ok {
			ch <- msg
		}
	}
}
