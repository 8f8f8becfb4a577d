package jsonrpc

import (
	"context"
	"errors"
	"fmt"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/goliatone/go-formbind/pkg/proxy"
)

// Subscribe connects to the event stream at url and publishes every received
// event on bus until ctx is cancelled or the server closes the stream.
func (c *Client) Subscribe(ctx context.Context, url string, bus *proxy.Bus) error {
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPClient: c.http,
		HTTPHeader: c.header.Clone(),
	})
	if err != nil {
		return fmt.Errorf("jsonrpc: dial events: %w", err)
	}
	defer conn.CloseNow()

	for {
		var evt proxy.Event
		if err := wsjson.Read(ctx, conn, &evt); err != nil {
			if ctx.Err() != nil || websocket.CloseStatus(err) == websocket.StatusNormalClosure || errors.Is(err, context.Canceled) {
				return nil
			}
			if websocket.CloseStatus(err) != -1 {
				c.logger.Printf("jsonrpc: event stream closed: %v", err)
				return nil
			}
			return fmt.Errorf("jsonrpc: read event: %w", err)
		}
		bus.Publish(ctx, evt)
	}
}
