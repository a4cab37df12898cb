package surface

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redforge/redauth/internal/markers"
	"github.com/redforge/redauth/internal/pacing"
)

const (
	loginDoc = `<form><input name="phone"><input name="verifyCode"><button type="submit">login</button></form>`
	homeDoc  = `<div class="user-info"><span class="nickname">tester</span><img class="avatar" src="https://cdn.example.com/a.png"></div>`
	errorDoc = `<form><div class="error-msg">wrong code</div></form>`
)

// fakeSurface is a scripted login page. Click swaps the rendered document for
// the configured outcome.
type fakeSurface struct {
	mu        sync.Mutex
	doc       string
	afterDoc  string
	codeValue string
	tokens    string
	typed     map[string]string
	clicked   []string
	closed    chan struct{}
	messages  chan Message
	closeOnce sync.Once
}

func newFakeSurface(doc, afterDoc string) *fakeSurface {
	return &fakeSurface{
		doc:      doc,
		afterDoc: afterDoc,
		tokens:   "web_session=s; xhsuid=u",
		typed:    map[string]string{},
		closed:   make(chan struct{}),
		messages: make(chan Message, 1),
	}
}

func (f *fakeSurface) Navigate(_ context.Context, _ string) error { return nil }

func (f *fakeSurface) Snapshot(_ context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.doc, nil
}

func (f *fakeSurface) Type(_ context.Context, selector, text string, _ []time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typed[selector] = text
	return nil
}

func (f *fakeSurface) Click(_ context.Context, selector string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clicked = append(f.clicked, selector)
	f.doc = f.afterDoc
	return nil
}

func (f *fakeSurface) InputValue(_ context.Context, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.codeValue, nil
}

func (f *fakeSurface) Tokens(_ context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tokens, nil
}

func (f *fakeSurface) Messages() <-chan Message { return f.messages }
func (f *fakeSurface) Closed() <-chan struct{}  { return f.closed }

func (f *fakeSurface) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeSurface) setCode(code string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.codeValue = code
}

func testRoutine() Routine {
	return Routine{
		PhoneSelector:   "[name=phone]",
		CodeSelector:    "[name=verifyCode]",
		SubmitSelectors: []string{"[type=submit]"},
		Markers: markers.Config{
			LoggedIn:  []string{".user-info"},
			Nickname:  []string{".nickname"},
			Avatar:    []string{".avatar"},
			ErrorText: []string{".error-msg"},
		},
		ElementWait: 200 * time.Millisecond,
		CodeLength:  4,
		PollEvery:   time.Millisecond,
		Origin:      "https://www.example.com",
	}
}

func newTestInterpreter() *Interpreter {
	p := pacing.New(1, nil)
	p.SetSleeper(func(_ context.Context, _ time.Duration) error { return nil })
	return NewInterpreter(p, nil)
}

func TestRunSuccessfulLogin(t *testing.T) {
	sf := newFakeSurface(loginDoc, homeDoc)
	sf.setCode("1234")

	msg, err := newTestInterpreter().Run(context.Background(), sf, testRoutine(), "13800138000")
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if msg.Type != MessageLoginSuccess {
		t.Fatalf("expected success message, got %s", msg.Type)
	}
	if msg.SessionTokens != "web_session=s; xhsuid=u" {
		t.Fatalf("expected captured tokens, got %q", msg.SessionTokens)
	}
	if msg.UserInfo.Nickname != "tester" {
		t.Fatalf("expected nickname from markers, got %q", msg.UserInfo.Nickname)
	}
	if msg.Origin != "https://www.example.com" {
		t.Fatalf("expected routine origin, got %q", msg.Origin)
	}
	if sf.typed["[name=phone]"] != "13800138000" {
		t.Fatalf("expected phone typed, got %q", sf.typed["[name=phone]"])
	}
	if len(sf.clicked) != 1 || sf.clicked[0] != "[type=submit]" {
		t.Fatalf("expected one submit click, got %v", sf.clicked)
	}
}

func TestRunWaitsForFullCode(t *testing.T) {
	sf := newFakeSurface(loginDoc, homeDoc)
	sf.setCode("12")

	go func() {
		time.Sleep(20 * time.Millisecond)
		sf.setCode("1234")
	}()

	msg, err := newTestInterpreter().Run(context.Background(), sf, testRoutine(), "13800138000")
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if msg.Type != MessageLoginSuccess {
		t.Fatalf("expected success after code completion, got %s", msg.Type)
	}
}

func TestRunVisibleLoginError(t *testing.T) {
	sf := newFakeSurface(loginDoc, errorDoc)
	sf.setCode("1234")

	msg, err := newTestInterpreter().Run(context.Background(), sf, testRoutine(), "13800138000")
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if msg.Type != MessageLoginFailed {
		t.Fatalf("expected failure message, got %s", msg.Type)
	}
	if msg.Text != "wrong code" {
		t.Fatalf("expected visible error text, got %q", msg.Text)
	}
}

func TestRunPhoneInputNeverAppears(t *testing.T) {
	sf := newFakeSurface("<html><body>loading</body></html>", homeDoc)

	r := testRoutine()
	r.ElementWait = 10 * time.Millisecond

	_, err := newTestInterpreter().Run(context.Background(), sf, r, "13800138000")
	if !errors.Is(err, ErrElementNotFound) {
		t.Fatalf("expected ErrElementNotFound, got %v", err)
	}
}

func TestRunSurfaceDismissed(t *testing.T) {
	sf := newFakeSurface(loginDoc, homeDoc)
	// Code never completes; the user closes the surface instead.
	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = sf.Close()
	}()

	_, err := newTestInterpreter().Run(context.Background(), sf, testRoutine(), "13800138000")
	if !errors.Is(err, ErrSurfaceClosed) {
		t.Fatalf("expected ErrSurfaceClosed, got %v", err)
	}
}

func TestRunContextCancelled(t *testing.T) {
	sf := newFakeSurface(loginDoc, homeDoc)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := newTestInterpreter().Run(ctx, sf, testRoutine(), "13800138000")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestChannelDropsForeignOrigins(t *testing.T) {
	in := make(chan Message, 2)
	in <- Message{Type: MessageLoginSuccess, Origin: "https://evil.example.com", SessionTokens: "stolen"}
	in <- Message{Type: MessageLoginSuccess, Origin: "https://www.example.com", SessionTokens: "real"}

	ch := NewChannel("https://www.example.com", in)
	msg, err := ch.Receive(context.Background())
	if err != nil {
		t.Fatalf("receive failed: %v", err)
	}
	if msg.SessionTokens != "real" {
		t.Fatalf("foreign-origin message delivered: %+v", msg)
	}
}

func TestChannelClosedStream(t *testing.T) {
	in := make(chan Message)
	close(in)

	ch := NewChannel("https://www.example.com", in)
	if _, err := ch.Receive(context.Background()); !errors.Is(err, ErrChannelClosed) {
		t.Fatalf("expected ErrChannelClosed, got %v", err)
	}
}

func TestChannelNilStreamWaitsForContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	ch := NewChannel("https://www.example.com", nil)
	if _, err := ch.Receive(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}
