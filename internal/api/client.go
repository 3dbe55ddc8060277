package api

import (
	"net/http"
	"time"

	"github.com/Sternrassler/vidmeta/pkg/jobs"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are enforced by the CORS middleware.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Client is one WebSocket subscriber.
type Client struct {
	hub   *Hub
	conn  *websocket.Conn
	send  chan jobs.Event
	jobID string
}

// NewClient creates a client following jobID ("all" for every job).
func NewClient(hub *Hub, conn *websocket.Conn, jobID string) *Client {
	return &Client{
		hub:   hub,
		conn:  conn,
		send:  make(chan jobs.Event, 256),
		jobID: jobID,
	}
}

// StartPumps starts the read and write pumps for the client.
func (c *Client) StartPumps() {
	go c.writePump()
	go c.readPump()
}

// readPump only consumes control frames; clients do not send data.
func (c *Client) readPump() {
	defer func() {
		c.hub.UnregisterClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Debug().Err(err).Str("job_id", c.jobID).Msg("WebSocket read error")
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case event, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(event); err != nil {
				c.hub.logger.Debug().Err(err).Str("job_id", c.jobID).Msg("WebSocket write error")
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
