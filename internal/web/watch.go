package web

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

// Watch connects to the /ws/status stream of a server at addr and calls
// onChange for the first status and every label change after it. It
// returns when ctx is done or the connection fails.
func Watch(ctx context.Context, addr string, onChange func(Status)) error {
	u := url.URL{Scheme: "ws", Host: addr, Path: "/ws/status"}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	ws, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", u.String(), err)
	}
	defer ws.Close()

	// Unblock ReadJSON on cancel
	stop := context.AfterFunc(ctx, func() { ws.Close() })
	defer stop()

	var (
		last Status
		seen bool
	)
	for {
		var st Status
		if err := ws.ReadJSON(&st); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("status stream: %w", err)
		}
		if seen && st.Label == last.Label {
			continue
		}
		seen = true
		last = st
		onChange(st)
	}
}
