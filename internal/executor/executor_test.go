package executor

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/example/teesched/internal/clock"
	"github.com/example/teesched/internal/task"
)

// fakeSession scripts the external UI. State keyed by selector.
type fakeSession struct {
	visible map[string]bool
	values  map[string]string
	texts   map[string]string
	cands   map[string][]Candidate
	loc     string

	onClick     func(sel string)
	onNavigate  func(url string)
	selectFails map[SelectMethod]bool

	clicked     []string
	clickedRefs []string
	navigated   []string
	screenshots int
}

func (f *fakeSession) Navigate(_ context.Context, url string) error {
	f.navigated = append(f.navigated, url)
	if f.onNavigate != nil {
		f.onNavigate(url)
	} else {
		f.loc = url
	}
	return nil
}

func (f *fakeSession) Location(context.Context) (string, error) { return f.loc, nil }

func (f *fakeSession) Visible(_ context.Context, sel string) (bool, error) {
	return f.visible[sel], nil
}

func (f *fakeSession) WaitVisible(_ context.Context, sel string, _ time.Duration) error {
	if f.visible[sel] {
		return nil
	}
	return fmt.Errorf("timeout waiting for %s", sel)
}

func (f *fakeSession) Click(_ context.Context, sel string) error {
	f.clicked = append(f.clicked, sel)
	if f.onClick != nil {
		f.onClick(sel)
	}
	return nil
}

func (f *fakeSession) Fill(_ context.Context, sel, value string) error {
	f.values[sel] = value
	return nil
}

func (f *fakeSession) SelectOption(_ context.Context, sel, value string, m SelectMethod) error {
	if f.selectFails[m] {
		return fmt.Errorf("select by %s unsupported", m)
	}
	f.values[sel] = value
	return nil
}

func (f *fakeSession) Value(_ context.Context, sel string) (string, error) {
	return f.values[sel], nil
}

func (f *fakeSession) Text(_ context.Context, sel string) (string, error) {
	return f.texts[sel], nil
}

func (f *fakeSession) Candidates(_ context.Context, sel string) ([]Candidate, error) {
	return f.cands[sel], nil
}

func (f *fakeSession) ClickRef(_ context.Context, ref string) error {
	f.clickedRefs = append(f.clickedRefs, ref)
	return nil
}

func (f *fakeSession) Screenshot(context.Context) ([]byte, error) {
	f.screenshots++
	return []byte{0x89}, nil
}

func (f *fakeSession) Close() error { return nil }

// newBookingFake scripts a healthy login-through-booking page.
func newBookingFake() *fakeSession {
	sel := DefaultSelectors()
	f := &fakeSession{
		visible: map[string]bool{
			sel.SignIn[1]:       true, // anchor text matcher
			sel.UsernameInput:   true,
			sel.PasswordInput:   true,
			sel.PlayerSelects[0]: true,
			sel.HoleSelects[0]:   true,
			sel.SearchButton:     true,
			sel.CartLink:         true,
		},
		values:      map[string]string{},
		texts:       map[string]string{},
		cands:       map[string][]Candidate{},
		selectFails: map[SelectMethod]bool{},
		loc:         "https://example.test/web/search.html?module=GR&secondarycode=3",
	}
	// Submitting the login form dismisses it and the sign-in affordance.
	f.onClick = func(s string) {
		if s == sel.LoginButton {
			f.visible[sel.UsernameInput] = false
			f.visible[sel.PasswordInput] = false
			f.visible[sel.SignIn[1]] = false
		}
	}
	return f
}

func testParams() Params {
	return Params{
		Credentials:     task.Credentials{Username: "golfer", Password: "secret"},
		BookingURL:      "https://example.test/web/search.html?module=GR&secondarycode=3",
		Course:          3,
		Players:         4,
		Holes:           18,
		Window:          clock.Window{StartMinute: 7 * 60, EndMinute: 18 * 60},
		OpeningInstant:  time.Date(2026, 6, 1, 7, 0, 0, 0, time.UTC),
		PrePositionLead: 45 * time.Second,
	}
}

func fastExecutor(f *fakeSession) *Executor {
	return &Executor{
		Session: f,
		Selectors: DefaultSelectors(),
		Timing: Timing{
			CredentialFormWait: time.Millisecond,
			PasswordFieldWait:  time.Millisecond,
			LoginSettle:        time.Millisecond,
			SearchSettle:       time.Millisecond,
		},
		// Clock pinned at the opening instant: no pre-position or opening
		// waits in tests.
		Now: func() time.Time { return time.Date(2026, 6, 1, 7, 0, 0, 0, time.UTC) },
	}
}

func TestRunAcquiresFirstSlotInWindow(t *testing.T) {
	f := newBookingFake()
	sel := DefaultSelectors()
	f.cands[sel.AddToCart] = []Candidate{
		{Label: "6:45 AM", Ref: "slot-0"},
		{Label: "9:15 AM", Ref: "slot-1"},
		{Label: "9:30 AM", Ref: "slot-2"},
	}

	res, err := fastExecutor(f).Run(context.Background(), testParams())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.State != StateAcquired {
		t.Fatalf("state = %s, want acquired", res.State)
	}
	if res.SlotLabel != "9:15 AM" {
		t.Errorf("slot = %q, want first in-window entry 9:15 AM", res.SlotLabel)
	}
	if len(f.clickedRefs) != 1 || f.clickedRefs[0] != "slot-1" {
		t.Errorf("clicked refs = %v, want [slot-1]", f.clickedRefs)
	}
	if len(res.ParameterWarnings) != 0 {
		t.Errorf("unexpected parameter warnings: %v", res.ParameterWarnings)
	}
	// Username and password were filled after being cleared.
	if f.values[sel.UsernameInput] != "golfer" || f.values[sel.PasswordInput] != "secret" {
		t.Error("credentials not filled")
	}
	// Handoff clicked the cart link.
	found := false
	for _, c := range f.clicked {
		if c == sel.CartLink {
			found = true
		}
	}
	if !found {
		t.Error("cart handoff not attempted")
	}
}

func TestRunSkipsUnparseableTimesByDefault(t *testing.T) {
	f := newBookingFake()
	sel := DefaultSelectors()
	f.cands[sel.AddToCart] = []Candidate{
		{Label: "walk-up only", Ref: "slot-0"},
		{Label: "10:00 AM", Ref: "slot-1"},
	}

	res, err := fastExecutor(f).Run(context.Background(), testParams())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.SlotLabel != "10:00 AM" {
		t.Errorf("slot = %q, want the parseable in-window entry", res.SlotLabel)
	}
}

func TestRunAcquireUnknownTimesOptIn(t *testing.T) {
	f := newBookingFake()
	sel := DefaultSelectors()
	f.cands[sel.AddToCart] = []Candidate{
		{Label: "???", Ref: "slot-0"},
		{Label: "10:00 AM", Ref: "slot-1"},
	}

	p := testParams()
	p.AcquireUnknownTimes = true
	res, err := fastExecutor(f).Run(context.Background(), p)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.SlotLabel != "???" {
		t.Errorf("slot = %q, want the first entry under legacy opt-in", res.SlotLabel)
	}
}

func TestRunFallsBackThroughDiscoveryStrategies(t *testing.T) {
	f := newBookingFake()
	sel := DefaultSelectors()
	// No add links; plus icons exist. Taken unconditionally.
	f.cands[sel.PlusIcon] = []Candidate{{Label: "", Ref: "icon-0"}}

	res, err := fastExecutor(f).Run(context.Background(), testParams())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(f.clickedRefs) != 1 || f.clickedRefs[0] != "icon-0" {
		t.Errorf("clicked refs = %v, want [icon-0]", f.clickedRefs)
	}
	if res.State != StateAcquired {
		t.Errorf("state = %s, want acquired", res.State)
	}

	// Third strategy: only row-embedded actions.
	f2 := newBookingFake()
	f2.cands[sel.RowActions] = []Candidate{{Label: "7:10 AM", Ref: "row-3"}}
	if _, err := fastExecutor(f2).Run(context.Background(), testParams()); err != nil {
		t.Fatalf("row-action fallback: %v", err)
	}
	if len(f2.clickedRefs) != 1 || f2.clickedRefs[0] != "row-3" {
		t.Errorf("clicked refs = %v, want [row-3]", f2.clickedRefs)
	}
}

func TestRunNoSlots(t *testing.T) {
	f := newBookingFake()
	res, err := fastExecutor(f).Run(context.Background(), testParams())
	if !errors.Is(err, ErrNoSlotsAvailable) {
		t.Fatalf("err = %v, want ErrNoSlotsAvailable", err)
	}
	if res.State != StateFailed {
		t.Errorf("state = %s, want failed", res.State)
	}
}

func TestRunAllEntriesOutsideWindow(t *testing.T) {
	f := newBookingFake()
	sel := DefaultSelectors()
	f.cands[sel.AddToCart] = []Candidate{
		{Label: "5:00 AM", Ref: "slot-0"},
		{Label: "8:30 PM", Ref: "slot-1"},
	}
	_, err := fastExecutor(f).Run(context.Background(), testParams())
	if !errors.Is(err, ErrNoSlotsAvailable) {
		t.Fatalf("err = %v, want ErrNoSlotsAvailable", err)
	}
	if len(f.clickedRefs) != 0 {
		t.Errorf("out-of-window entries must not be acquired, clicked %v", f.clickedRefs)
	}
}

func TestRunAuthenticationRejected(t *testing.T) {
	f := newBookingFake()
	sel := DefaultSelectors()
	f.onClick = nil // form stays up after submit
	f.texts[sel.LoginError] = "Invalid username or password"

	res, err := fastExecutor(f).Run(context.Background(), testParams())
	if !errors.Is(err, ErrAuthenticationRejected) {
		t.Fatalf("err = %v, want ErrAuthenticationRejected", err)
	}
	if res.State != StateFailed {
		t.Errorf("state = %s, want failed", res.State)
	}
}

func TestRunLoginVerificationTimeout(t *testing.T) {
	// Form stays up, no inline error text.
	f := newBookingFake()
	f.onClick = nil
	if _, err := fastExecutor(f).Run(context.Background(), testParams()); !errors.Is(err, ErrLoginVerificationTimeout) {
		t.Fatalf("err = %v, want ErrLoginVerificationTimeout", err)
	}

	// No sign-in affordance at all.
	f2 := newBookingFake()
	for _, s := range DefaultSelectors().SignIn {
		f2.visible[s] = false
	}
	if _, err := fastExecutor(f2).Run(context.Background(), testParams()); !errors.Is(err, ErrLoginVerificationTimeout) {
		t.Fatalf("err = %v, want ErrLoginVerificationTimeout", err)
	}
}

func TestRunRecoversBookingPageAfterLoginRedirect(t *testing.T) {
	f := newBookingFake()
	sel := DefaultSelectors()
	f.cands[sel.AddToCart] = []Candidate{{Label: "9:15 AM", Ref: "slot-0"}}

	// Login submission lands on a splash page without the booking marker.
	inner := f.onClick
	f.onClick = func(s string) {
		inner(s)
		if s == sel.LoginButton {
			f.loc = "https://example.test/wbsplash.html"
		}
	}

	res, err := fastExecutor(f).Run(context.Background(), testParams())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.State != StateAcquired {
		t.Fatalf("state = %s, want acquired", res.State)
	}
	// Initial open plus the recovery navigation.
	if len(f.navigated) != 2 {
		t.Fatalf("navigations = %v, want initial + recovery", f.navigated)
	}
}

func TestRunFailsWhenBookingPageUnreachable(t *testing.T) {
	f := newBookingFake()
	sel := DefaultSelectors()

	// Redirect on login, and the recovery navigation never reaches a page
	// carrying the booking marker.
	inner := f.onClick
	f.onClick = func(s string) {
		inner(s)
		if s == sel.LoginButton {
			f.loc = "https://example.test/wbsplash.html"
		}
	}
	f.onNavigate = func(string) {}

	res, err := fastExecutor(f).Run(context.Background(), testParams())
	if !errors.Is(err, ErrLoginVerificationTimeout) {
		t.Fatalf("err = %v, want ErrLoginVerificationTimeout", err)
	}
	if res.State != StateFailed {
		t.Fatalf("state = %s, want failed", res.State)
	}
}

func TestRunParameterVerificationNonFatal(t *testing.T) {
	f := newBookingFake()
	sel := DefaultSelectors()
	// Player select never verifies regardless of method.
	f.selectFails[ByValue] = true
	f.selectFails[ByLabel] = true
	f.selectFails[ByOptionClick] = true
	f.cands[sel.AddToCart] = []Candidate{{Label: "9:15 AM", Ref: "slot-1"}}

	res, err := fastExecutor(f).Run(context.Background(), testParams())
	if err != nil {
		t.Fatalf("Run should continue past parameter failures: %v", err)
	}
	if res.State != StateAcquired {
		t.Fatalf("state = %s, want acquired", res.State)
	}
	if len(res.ParameterWarnings) != 2 {
		t.Errorf("warnings = %v, want players and holes unset", res.ParameterWarnings)
	}
}

func TestRunSelectMethodFallback(t *testing.T) {
	f := newBookingFake()
	sel := DefaultSelectors()
	f.selectFails[ByValue] = true // label selection should still verify
	f.cands[sel.AddToCart] = []Candidate{{Label: "9:15 AM", Ref: "slot-1"}}

	res, err := fastExecutor(f).Run(context.Background(), testParams())
	if err != nil {
		t.Fatal(err)
	}
	if len(res.ParameterWarnings) != 0 {
		t.Errorf("warnings = %v, want none after label fallback", res.ParameterWarnings)
	}
	if f.values[sel.PlayerSelects[0]] != "4" || f.values[sel.HoleSelects[0]] != "18" {
		t.Error("dropdowns not set")
	}
}

func TestRunMissingConfigFailsBeforeSession(t *testing.T) {
	f := newBookingFake()
	p := testParams()
	p.Credentials = task.Credentials{}
	_, err := fastExecutor(f).Run(context.Background(), p)
	if !errors.Is(err, ErrMissingConfig) {
		t.Fatalf("err = %v, want ErrMissingConfig", err)
	}
	if len(f.navigated) != 0 {
		t.Error("no interaction may happen on a config error")
	}

	p = testParams()
	p.OpeningInstant = time.Time{}
	if _, err := fastExecutor(f).Run(context.Background(), p); !errors.Is(err, ErrMissingConfig) {
		t.Fatalf("err = %v, want ErrMissingConfig", err)
	}
}

func TestRunCancellableWhileWaiting(t *testing.T) {
	f := newBookingFake()
	e := fastExecutor(f)
	p := testParams()
	p.OpeningInstant = time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC) // an hour out

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := e.Run(ctx, p)
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("err = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("run did not abort on cancellation")
	}
}

func TestRunSearchAbsenceIsNotAnError(t *testing.T) {
	f := newBookingFake()
	sel := DefaultSelectors()
	f.visible[sel.SearchButton] = false
	f.cands[sel.AddToCart] = []Candidate{{Label: "9:15 AM", Ref: "slot-1"}}

	res, err := fastExecutor(f).Run(context.Background(), testParams())
	if err != nil {
		t.Fatal(err)
	}
	if res.State != StateAcquired {
		t.Errorf("state = %s, want acquired", res.State)
	}
}
