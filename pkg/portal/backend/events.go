package backend

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/noah-isme/classroom-portal/pkg/portal/apperr"
)

// WatchAuthEvents streams auth events for the account behind accessToken into
// handle until ctx is done or the connection drops. A ctx cancellation returns nil.
func (c *Client) WatchAuthEvents(ctx context.Context, accessToken string, handle func(AuthEvent)) error {
	target := *c.baseURL
	switch target.Scheme {
	case "https":
		target.Scheme = "wss"
	default:
		target.Scheme = "ws"
	}
	target.Path = strings.TrimRight(target.Path, "/") + authPath + "/events"
	target.RawQuery = url.Values{"access_token": {accessToken}}.Encode()

	conn, resp, err := c.dialer.DialContext(ctx, target.String(), nil)
	if err != nil {
		if resp != nil {
			return apperr.FromStatus(resp.StatusCode, "event stream rejected")
		}
		return TransportError(ctx, err)
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		var event AuthEvent
		if err := conn.ReadJSON(&event); err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) && closeErr.Code == websocket.ClosePolicyViolation {
				return apperr.New(apperr.KindAuthentication, closeErr.Text)
			}
			return apperr.Wrap(apperr.KindNetwork, "event stream interrupted", err)
		}
		handle(event)
	}
}
