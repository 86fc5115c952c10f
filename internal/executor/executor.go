// Package executor drives one acquisition attempt against the external
// booking UI as a state machine: Init -> LoggedIn -> Positioned ->
// ParametersSet -> Searched -> SlotFound -> Acquired, with Failed reachable
// from any state. Every interaction goes through an ordered chain of
// alternative strategies, so a single unstable selector never sinks the run
// on its own.
package executor

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/teesched/internal/clock"
	"github.com/example/teesched/internal/task"
	"github.com/example/teesched/internal/trigger"
)

// State of a run. Acquired and Failed are terminal; a run never loops.
type State string

const (
	StateInit          State = "init"
	StateLoggedIn      State = "logged-in"
	StatePositioned    State = "positioned"
	StateParametersSet State = "parameters-set"
	StateSearched      State = "searched"
	StateSlotFound     State = "slot-found"
	StateAcquired      State = "acquired"
	StateFailed        State = "failed"
)

// Params is the fully-resolved input for one run. Nothing here may be
// missing or ambiguous: the coordinator resolves everything before a session
// is opened.
type Params struct {
	Credentials task.Credentials
	BookingURL  string

	Course  int
	Players int
	Holes   int

	// TargetDate is the date to book for, YYYY-MM-DD; empty leaves the
	// site's pre-selected date alone.
	TargetDate string

	// Window is the acceptable slot time range, minutes of day, inclusive.
	Window clock.Window

	// OpeningInstant is when slots open; the acquisition click is held until
	// then. Setup runs during the pre-position lead before it.
	OpeningInstant  time.Time
	PrePositionLead time.Duration

	// AcquireUnknownTimes restores the legacy behavior of taking the first
	// discovered entry when its displayed time cannot be parsed. Off by
	// default: an unknown time is not an acceptable time.
	AcquireUnknownTimes bool

	// PageMarker is a substring the post-login location must contain.
	PageMarker string
}

func (p Params) validate() error {
	if p.Credentials.Username == "" || p.Credentials.Password == "" {
		return fmt.Errorf("%w: credentials", ErrMissingConfig)
	}
	if p.BookingURL == "" {
		return fmt.Errorf("%w: booking url", ErrMissingConfig)
	}
	if p.OpeningInstant.IsZero() {
		return fmt.Errorf("%w: opening instant", ErrMissingConfig)
	}
	return nil
}

// Result is what a finished run reports back.
type Result struct {
	State     State
	SlotLabel string
	// ParameterWarnings lists parameters that could not be verified. They do
	// not fail the run.
	ParameterWarnings []string
}

// Executor performs runs over an interactive session. One instance per task;
// instances share nothing.
type Executor struct {
	Session   Session
	Selectors Selectors
	Timing    Timing
	Artifacts ArtifactSink
	Log       *zap.SugaredLogger

	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time
}

// Run executes the full state sequence. On any terminal failure a full-page
// snapshot is captured before the error propagates; the session is left open
// for manual inspection.
func (e *Executor) Run(ctx context.Context, p Params) (Result, error) {
	log := e.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	now := e.Now
	if now == nil {
		now = time.Now
	}
	if p.PageMarker == "" {
		p.PageMarker = "module=GR"
	}

	res := Result{State: StateInit}
	if err := p.validate(); err != nil {
		// Config errors are fatal before any interaction happens; there is
		// no page to snapshot.
		res.State = StateFailed
		return res, err
	}

	err := e.run(ctx, p, log, now, &res)
	if err != nil {
		e.capture(ctx, log, "run-failed")
		res.State = StateFailed
		return res, err
	}
	return res, nil
}

func (e *Executor) run(ctx context.Context, p Params, log *zap.SugaredLogger, now func() time.Time, res *Result) error {
	tm := e.Timing.withDefaults()
	start, skip := trigger.PrePosition(p.OpeningInstant, now(), p.PrePositionLead)
	if skip {
		log.Infow("pre-position skipped", "opening", p.OpeningInstant)
	} else {
		log.Infow("waiting for pre-position instant", "start", start, "opening", p.OpeningInstant)
		if err := waitUntil(ctx, start, now); err != nil {
			return err
		}
	}

	if err := e.login(ctx, p, tm, log); err != nil {
		return err
	}
	res.State = StateLoggedIn

	if err := e.position(ctx, p, log); err != nil {
		return err
	}
	res.State = StatePositioned

	res.ParameterWarnings = e.setParameters(ctx, p, log)
	res.State = StateParametersSet

	// Setup is paid for; hold until the opening instant so only the
	// acquisition click remains.
	if err := waitUntil(ctx, p.OpeningInstant, now); err != nil {
		return err
	}

	if err := e.search(ctx, tm, log); err != nil {
		return err
	}
	res.State = StateSearched

	cand, err := e.discover(ctx, p, log)
	if err != nil {
		return err
	}
	res.State = StateSlotFound
	res.SlotLabel = strings.TrimSpace(cand.Label)

	if err := e.Session.ClickRef(ctx, cand.Ref); err != nil {
		return fmt.Errorf("acquisition click: %w", err)
	}
	res.State = StateAcquired
	log.Infow("slot acquired", "slot", res.SlotLabel)

	e.handoff(ctx, log)
	return nil
}

// login locates a sign-in affordance through the matcher chain, submits
// credentials, and verifies success three ways: the credential form is gone,
// no sign-in affordance remains, and the expected post-login location is
// reached (position() handles the last).
func (e *Executor) login(ctx context.Context, p Params, tm Timing, log *zap.SugaredLogger) error {
	if err := e.Session.Navigate(ctx, p.BookingURL); err != nil {
		return fmt.Errorf("open booking page: %w", err)
	}

	clicked := false
	for _, sel := range e.Selectors.SignIn {
		ok, err := e.Session.Visible(ctx, sel)
		if err != nil || !ok {
			continue
		}
		if err := e.Session.Click(ctx, sel); err != nil {
			log.Debugw("sign-in click failed, trying next matcher", "selector", sel, "error", err)
			continue
		}
		log.Debugw("sign-in affordance found", "selector", sel)
		clicked = true
		break
	}
	if !clicked {
		return fmt.Errorf("%w: no sign-in affordance matched", ErrLoginVerificationTimeout)
	}

	if err := e.Session.WaitVisible(ctx, e.Selectors.UsernameInput, tm.CredentialFormWait); err != nil {
		return fmt.Errorf("%w: credential form never appeared", ErrLoginVerificationTimeout)
	}
	if err := e.Session.WaitVisible(ctx, e.Selectors.PasswordInput, tm.PasswordFieldWait); err != nil {
		return fmt.Errorf("%w: password field never appeared", ErrLoginVerificationTimeout)
	}

	// Clear both fields before filling; the site autofills stale values.
	for _, f := range []struct{ sel, val string }{
		{e.Selectors.UsernameInput, ""},
		{e.Selectors.PasswordInput, ""},
		{e.Selectors.UsernameInput, p.Credentials.Username},
		{e.Selectors.PasswordInput, p.Credentials.Password},
	} {
		if err := e.Session.Fill(ctx, f.sel, f.val); err != nil {
			return fmt.Errorf("fill credential field: %w", err)
		}
	}

	if err := e.Session.Click(ctx, e.Selectors.LoginButton); err != nil {
		return fmt.Errorf("submit login: %w", err)
	}
	if err := sleep(ctx, tm.LoginSettle); err != nil {
		return err
	}

	formUp, _ := e.Session.Visible(ctx, e.Selectors.UsernameInput)
	if formUp {
		if txt, err := e.Session.Text(ctx, e.Selectors.LoginError); err == nil {
			if msg := strings.TrimSpace(txt); msg != "" {
				return fmt.Errorf("%w: %s", ErrAuthenticationRejected, msg)
			}
		}
		return fmt.Errorf("%w: credential form still visible", ErrLoginVerificationTimeout)
	}
	for _, sel := range e.Selectors.SignIn {
		if ok, _ := e.Session.Visible(ctx, sel); ok {
			return fmt.Errorf("%w: sign-in affordance still visible", ErrLoginVerificationTimeout)
		}
	}
	return nil
}

// position makes sure the session ended up back on the booking page; some
// login variants navigate away. The marker is verified again after the
// recovery navigation: a session that cannot reach the booking page did not
// complete login.
func (e *Executor) position(ctx context.Context, p Params, log *zap.SugaredLogger) error {
	loc, err := e.Session.Location(ctx)
	if err != nil {
		return fmt.Errorf("read location: %w", err)
	}
	if strings.Contains(loc, p.PageMarker) {
		return nil
	}
	log.Infow("navigating back to booking page", "from", loc)
	if err := e.Session.Navigate(ctx, p.BookingURL); err != nil {
		return fmt.Errorf("return to booking page: %w", err)
	}
	loc, err = e.Session.Location(ctx)
	if err != nil {
		return fmt.Errorf("read location: %w", err)
	}
	if !strings.Contains(loc, p.PageMarker) {
		return fmt.Errorf("%w: booking page marker %q absent after navigation (at %s)",
			ErrLoginVerificationTimeout, p.PageMarker, loc)
	}
	return nil
}

// setParameters sets date, players and holes through their matcher chains.
// A parameter that cannot be verified is recorded and left unset; the run
// continues, but a snapshot is captured for the operator.
func (e *Executor) setParameters(ctx context.Context, p Params, log *zap.SugaredLogger) []string {
	var warnings []string

	if p.TargetDate != "" && !e.setDate(ctx, p.TargetDate) {
		warnings = append(warnings, "date")
	}
	if !e.setSelect(ctx, e.Selectors.PlayerSelects, strconv.Itoa(p.Players)) {
		warnings = append(warnings, "players")
	}
	if !e.setSelect(ctx, e.Selectors.HoleSelects, strconv.Itoa(p.Holes)) {
		warnings = append(warnings, "holes")
	}

	if len(warnings) > 0 {
		log.Warnw("parameters not verified", "parameters", warnings)
		e.capture(ctx, log, "parameters")
	}
	return warnings
}

func (e *Executor) setDate(ctx context.Context, date string) bool {
	// Verify against the day component; sites reformat the rest.
	day := date
	if i := strings.LastIndex(date, "-"); i >= 0 {
		day = date[i+1:]
	}
	for _, sel := range e.Selectors.DateInputs {
		ok, err := e.Session.Visible(ctx, sel)
		if err != nil || !ok {
			continue
		}
		if err := e.Session.Fill(ctx, sel, ""); err != nil {
			continue
		}
		if err := e.Session.Fill(ctx, sel, date); err != nil {
			continue
		}
		if v, err := e.Session.Value(ctx, sel); err == nil && strings.Contains(v, day) {
			return true
		}
	}
	return false
}

// setSelect walks the matcher chain for a selectable field, and for each
// visible match tries every selection method until one verifies: the field's
// resolved value must equal the requested value.
func (e *Executor) setSelect(ctx context.Context, matchers []string, value string) bool {
	for _, sel := range matchers {
		ok, err := e.Session.Visible(ctx, sel)
		if err != nil || !ok {
			continue
		}
		for _, m := range []SelectMethod{ByValue, ByLabel, ByOptionClick} {
			if err := e.Session.SelectOption(ctx, sel, value, m); err != nil {
				continue
			}
			if got, err := e.Session.Value(ctx, sel); err == nil && got == value {
				return true
			}
		}
	}
	return false
}

// search clicks the search affordance if one is visible and lets the results
// settle. Its absence is not an error; results may already be displayed.
func (e *Executor) search(ctx context.Context, tm Timing, log *zap.SugaredLogger) error {
	ok, err := e.Session.Visible(ctx, e.Selectors.SearchButton)
	if err != nil || !ok {
		log.Debugw("no search affordance; assuming results shown")
		return nil
	}
	if err := e.Session.Click(ctx, e.Selectors.SearchButton); err != nil {
		return fmt.Errorf("search click: %w", err)
	}
	return sleep(ctx, tm.SearchSettle)
}

// discover runs the three slot-discovery strategies in order and returns the
// entry to acquire.
func (e *Executor) discover(ctx context.Context, p Params, log *zap.SugaredLogger) (Candidate, error) {
	// Strategy 1: explicit add affordances, filtered by the acceptable
	// window. First in-range entry wins.
	cands, err := e.Session.Candidates(ctx, e.Selectors.AddToCart)
	if err == nil && len(cands) > 0 {
		log.Infow("add affordances found", "count", len(cands))
		for i, c := range cands {
			min, perr := clock.ParseClockText(c.Label)
			if perr != nil {
				if i == 0 && p.AcquireUnknownTimes {
					log.Warnw("time unparseable, acquiring first entry anyway", "label", c.Label)
					return c, nil
				}
				log.Debugw("skipping entry with unparseable time", "label", c.Label)
				continue
			}
			if p.Window.Contains(min) {
				return c, nil
			}
			log.Debugw("skipping entry outside window", "label", strings.TrimSpace(c.Label), "window", p.Window)
		}
		return Candidate{}, fmt.Errorf("%w: %d entries, none inside %s", ErrNoSlotsAvailable, len(cands), p.Window)
	}

	// Strategy 2: iconographic matcher; first hit, no time filtering
	// available at this level.
	if cands, err := e.Session.Candidates(ctx, e.Selectors.PlusIcon); err == nil && len(cands) > 0 {
		log.Infow("plus icons found", "count", len(cands))
		return cands[0], nil
	}

	// Strategy 3: scan generic row containers for anything with the
	// add-semantics signature.
	if cands, err := e.Session.Candidates(ctx, e.Selectors.RowActions); err == nil && len(cands) > 0 {
		log.Infow("row-embedded add action found", "count", len(cands))
		return cands[0], nil
	}

	return Candidate{}, ErrNoSlotsAvailable
}

// handoff tries to move to the cart for manual checkout. Best-effort: the
// run is already acquired.
func (e *Executor) handoff(ctx context.Context, log *zap.SugaredLogger) {
	ok, err := e.Session.Visible(ctx, e.Selectors.CartLink)
	if err != nil || !ok {
		log.Debugw("cart link not found; slot remains in cart")
		return
	}
	if err := e.Session.Click(ctx, e.Selectors.CartLink); err != nil {
		log.Debugw("cart navigation failed", "error", err)
	}
}

func (e *Executor) capture(ctx context.Context, log *zap.SugaredLogger, name string) {
	if e.Artifacts == nil {
		return
	}
	png, err := e.Session.Screenshot(ctx)
	if err != nil {
		log.Debugw("snapshot failed", "error", err)
		return
	}
	path, err := e.Artifacts.Save(name, png)
	if err != nil {
		log.Debugw("snapshot not persisted", "error", err)
		return
	}
	log.Infow("snapshot saved", "path", path)
}

// waitUntil blocks until the wall clock reaches t or ctx is cancelled.
func waitUntil(ctx context.Context, t time.Time, now func() time.Time) error {
	return sleep(ctx, t.Sub(now()))
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
