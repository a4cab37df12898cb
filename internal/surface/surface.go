// Package surface abstracts the separate browsing context used by the
// one-time-code login flow, together with the typed cross-context message
// channel and the data-described automation routine that drives it.
//
// A Surface is anything that can render the platform's login page and accept
// simulated input: a real browser window supplied by the host application, or
// the scripted fake used in tests. The automation is expressed as a Routine
// value (selectors, timeouts, pacing) executed by the Interpreter rather than
// as an injected script blob, so it can be tested without a browser.
package surface

import (
	"context"
	"errors"
	"time"
)

// MessageType discriminates cross-context messages.
type MessageType string

const (
	// MessageLoginSuccess reports a captured session.
	MessageLoginSuccess MessageType = "LOGIN_SUCCESS"
	// MessageLoginFailed reports a visible login failure.
	MessageLoginFailed MessageType = "LOGIN_FAILED"
)

// UserInfo is the best-effort identity captured from the surface.
type UserInfo struct {
	Nickname string
	Avatar   string
}

// Message is one cross-context message. Origin names the sender's origin and
// is checked by Channel before a message is delivered.
type Message struct {
	Type          MessageType
	Origin        string
	UserInfo      UserInfo
	SessionTokens string
	Text          string
}

// Surface is a browsing context under automation control.
type Surface interface {
	// Navigate points the surface at url.
	Navigate(ctx context.Context, url string) error
	// Snapshot returns the currently rendered HTML.
	Snapshot(ctx context.Context) (string, error)
	// Type enters text into the element matching selector, pausing for the
	// corresponding delay before each rune.
	Type(ctx context.Context, selector, text string, delays []time.Duration) error
	// Click activates the element matching selector.
	Click(ctx context.Context, selector string) error
	// InputValue returns the current value of the input matching selector,
	// or "" when the element does not exist.
	InputValue(ctx context.Context, selector string) (string, error)
	// Tokens returns the surface context's current session token string.
	Tokens(ctx context.Context) (string, error)
	// Messages delivers messages posted by the surface itself. May be nil
	// for surfaces that cannot post.
	Messages() <-chan Message
	// Closed is closed when the user dismisses the surface.
	Closed() <-chan struct{}
	// Close tears the surface down. Idempotent.
	Close() error
}

// Opener creates surfaces. The host application supplies one; tests supply
// fakes.
type Opener interface {
	Open(ctx context.Context) (Surface, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context) (Surface, error)

// Open implements Opener.
func (f OpenerFunc) Open(ctx context.Context) (Surface, error) { return f(ctx) }

// ErrChannelClosed is returned by Channel.Receive when the underlying message
// stream ends.
var ErrChannelClosed = errors.New("message channel closed")

// Channel wraps a raw message stream with origin validation. Messages whose
// origin does not match are dropped, never delivered.
type Channel struct {
	origin string
	in     <-chan Message
}

// NewChannel accepts messages from in whose Origin equals origin.
func NewChannel(origin string, in <-chan Message) *Channel {
	return &Channel{origin: origin, in: in}
}

// Receive blocks until a message from the trusted origin arrives, the stream
// closes, or ctx is cancelled.
func (c *Channel) Receive(ctx context.Context) (Message, error) {
	if c.in == nil {
		<-ctx.Done()
		return Message{}, ctx.Err()
	}
	for {
		select {
		case msg, ok := <-c.in:
			if !ok {
				return Message{}, ErrChannelClosed
			}
			if msg.Origin != c.origin {
				continue
			}
			return msg, nil
		case <-ctx.Done():
			return Message{}, ctx.Err()
		}
	}
}
