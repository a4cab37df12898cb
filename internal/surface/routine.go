package surface

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/redforge/redauth/internal/markers"
	"github.com/redforge/redauth/internal/pacing"
)

// ErrElementNotFound is returned when a required element never appears within
// its wait window.
var ErrElementNotFound = errors.New("element not found on surface")

// ErrSurfaceClosed is returned when the user dismisses the surface while a
// routine is running.
var ErrSurfaceClosed = errors.New("surface closed by user")

// Routine describes the one-time-code login automation as data: which
// selectors to drive, how long to wait for each stage, and how to pace input.
// The Interpreter executes it against any Surface.
type Routine struct {
	// PhoneSelector locates the phone number input.
	PhoneSelector string
	// CodeSelector locates the verification code input.
	CodeSelector string
	// SubmitSelectors locate the submit control, tried in order.
	SubmitSelectors []string

	// Markers identify a logged-in page and extract user info.
	Markers markers.Config

	// ElementWait bounds how long to wait for the phone input to render.
	ElementWait time.Duration
	// CodeLength is the minimum entered code length that triggers submit.
	CodeLength int
	// PollEvery is the cadence for input and marker polling.
	PollEvery time.Duration

	// TypeDelayMin and TypeDelayMax bound per-keystroke pauses.
	TypeDelayMin time.Duration
	TypeDelayMax time.Duration
	// SettleMin and SettleMax bound the pauses between stages.
	SettleMin time.Duration
	SettleMax time.Duration

	// Origin is attached to the synthesized result messages.
	Origin string
}

// Interpreter drives a Routine against a Surface.
type Interpreter struct {
	pacer *pacing.Pacer
	log   *zap.Logger
}

// NewInterpreter creates an Interpreter. A nil logger disables logging.
func NewInterpreter(pacer *pacing.Pacer, log *zap.Logger) *Interpreter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Interpreter{pacer: pacer, log: log}
}

// Run executes the routine: wait for the phone input, type the phone number
// with humanized cadence, watch the code input until the user has entered a
// full code, click submit, then poll for logged-in markers. The returned
// message carries the captured session tokens on success or the visible error
// text on failure.
//
// Run returns ErrSurfaceClosed if the user dismisses the surface, and the
// context error on cancellation or deadline.
func (it *Interpreter) Run(ctx context.Context, sf Surface, r Routine, phone string) (Message, error) {
	if err := it.waitForElement(ctx, sf, r, r.PhoneSelector); err != nil {
		return Message{}, err
	}

	if err := it.pacer.Delay(ctx, r.SettleMin, r.SettleMax); err != nil {
		return Message{}, err
	}
	delays := it.pacer.TypeDelays(phone, r.TypeDelayMin, r.TypeDelayMax)
	if err := sf.Type(ctx, r.PhoneSelector, phone, delays); err != nil {
		return Message{}, err
	}
	it.log.Debug("phone entered, waiting for code", zap.String("selector", r.CodeSelector))

	if err := it.waitForCode(ctx, sf, r); err != nil {
		return Message{}, err
	}

	if err := it.pacer.Delay(ctx, r.SettleMin, r.SettleMax); err != nil {
		return Message{}, err
	}
	if err := it.clickSubmit(ctx, sf, r); err != nil {
		return Message{}, err
	}

	return it.awaitOutcome(ctx, sf, r)
}

func (it *Interpreter) waitForElement(ctx context.Context, sf Surface, r Routine, selector string) error {
	deadline := time.Now().Add(r.ElementWait)
	for {
		doc, err := sf.Snapshot(ctx)
		if err != nil {
			return err
		}
		if markers.HasElement(doc, []string{selector}) {
			return nil
		}
		if time.Now().After(deadline) {
			return ErrElementNotFound
		}
		if err := it.poll(ctx, sf, r); err != nil {
			return err
		}
	}
}

// waitForCode blocks until the code input holds at least CodeLength
// characters. The user types the code themselves; we only watch.
func (it *Interpreter) waitForCode(ctx context.Context, sf Surface, r Routine) error {
	for {
		value, err := sf.InputValue(ctx, r.CodeSelector)
		if err != nil {
			return err
		}
		if len(value) >= r.CodeLength {
			return nil
		}
		if err := it.poll(ctx, sf, r); err != nil {
			return err
		}
	}
}

func (it *Interpreter) clickSubmit(ctx context.Context, sf Surface, r Routine) error {
	doc, err := sf.Snapshot(ctx)
	if err != nil {
		return err
	}
	for _, sel := range r.SubmitSelectors {
		if markers.HasElement(doc, []string{sel}) {
			return sf.Click(ctx, sel)
		}
	}
	return ErrElementNotFound
}

// awaitOutcome polls the page for logged-in markers or a visible error and
// synthesizes the corresponding message.
func (it *Interpreter) awaitOutcome(ctx context.Context, sf Surface, r Routine) (Message, error) {
	for {
		doc, err := sf.Snapshot(ctx)
		if err != nil {
			return Message{}, err
		}
		res := markers.Scan(doc, r.Markers)
		if res.LoggedIn {
			tokens, err := sf.Tokens(ctx)
			if err != nil {
				return Message{}, err
			}
			return Message{
				Type:          MessageLoginSuccess,
				Origin:        r.Origin,
				UserInfo:      UserInfo{Nickname: res.Nickname, Avatar: res.Avatar},
				SessionTokens: tokens,
			}, nil
		}
		if res.ErrorText != "" {
			return Message{
				Type:   MessageLoginFailed,
				Origin: r.Origin,
				Text:   res.ErrorText,
			}, nil
		}
		if err := it.poll(ctx, sf, r); err != nil {
			return Message{}, err
		}
	}
}

// poll waits one polling interval, aborting early on cancellation or when the
// surface is dismissed.
func (it *Interpreter) poll(ctx context.Context, sf Surface, r Routine) error {
	t := time.NewTimer(r.PollEvery)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-sf.Closed():
		return ErrSurfaceClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}
