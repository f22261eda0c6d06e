package server

import (
	"context"
	"errors"
	"io"
	"net"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/talkbuddy/internal/pipeline"
	"github.com/MrWong99/talkbuddy/internal/protocol"
)

// wsConn adapts a websocket connection to pipeline.Source and pipeline.Sink.
type wsConn struct {
	conn *websocket.Conn
}

var (
	_ pipeline.Source = wsConn{}
	_ pipeline.Sink   = wsConn{}
)

// Receive reads one message. A close frame or a dropped connection is
// reported as pipeline.ErrDisconnected.
func (c wsConn) Receive(ctx context.Context) (pipeline.Inbound, error) {
	typ, data, err := c.conn.Read(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return pipeline.Inbound{}, ctx.Err()
		}
		if websocket.CloseStatus(err) != -1 || errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
			return pipeline.Inbound{}, pipeline.ErrDisconnected
		}
		return pipeline.Inbound{}, err
	}
	return pipeline.Inbound{Binary: typ == websocket.MessageBinary, Data: data}, nil
}

// Send writes msg as a JSON text message.
func (c wsConn) Send(ctx context.Context, msg protocol.Message) error {
	return wsjson.Write(ctx, c.conn, msg)
}

// closeReason trims err to fit in a close frame.
func closeReason(err error) string {
	const maxReason = 120
	s := err.Error()
	if len(s) > maxReason {
		s = s[:maxReason]
	}
	return s
}
