package executor

import "time"

// Selectors are the ordered matcher chains for the WebTrac-style booking UI.
// Every interaction tries its chain front to back because the exact markup is
// not contractually stable.
type Selectors struct {
	// SignIn chain: structural and textual matchers for the sign-in
	// affordance, most specific first.
	SignIn []string

	UsernameInput string
	PasswordInput string
	LoginButton   string
	LoginError    string

	DateInputs    []string
	PlayerSelects []string
	HoleSelects   []string

	SearchButton string

	// Slot discovery strategies, in order: explicit add-to-cart links,
	// iconographic plus matcher, then any add-semantics action inside
	// generic row containers.
	AddToCart  string
	PlusIcon   string
	RowActions string

	CartLink string
}

// DefaultSelectors matches the Austin WebTrac deployment the system was
// built against.
func DefaultSelectors() Selectors {
	return Selectors{
		// Textual matchers first, as XPath so the session can dispatch
		// them; attribute heuristics as fallback.
		SignIn: []string{
			`//button[contains(normalize-space(.), "Sign In")]`,
			`//a[contains(normalize-space(.), "Sign In")]`,
			`//button[contains(normalize-space(.), "SIGN IN")]`,
			`//a[contains(normalize-space(.), "SIGN IN")]`,
			`button[aria-label*="Sign"]`,
			`a[href*="login"]`,
			`[class*="signin"]`,
			`[id*="signin"]`,
		},
		UsernameInput: `input[name="weblogin_username"]`,
		PasswordInput: `input[name="weblogin_password"]`,
		LoginButton:   `button#weblogin_buttonlogin`,
		LoginError:    `.error, .alert, [class*="error"]`,

		DateInputs: []string{
			`input[name*="date"]`,
			`input[id*="date"]`,
			`input[type="date"]`,
			`#date`,
			`[name="date"]`,
		},
		PlayerSelects: []string{
			`select[name*="player"]`,
			`select[id*="player"]`,
			`select[name*="Player"]`,
			`select[id*="Player"]`,
			`#players`,
			`[name="players"]`,
		},
		HoleSelects: []string{
			`select[name*="hole"]`,
			`select[id*="hole"]`,
			`select[name*="Hole"]`,
			`select[id*="Hole"]`,
			`#holes`,
			`[name="holes"]`,
		},

		SearchButton: `input[type="submit"][value="Search"]`,

		AddToCart:  `a[onclick*="addtocart"]`,
		PlusIcon:   `img[alt="+"]`,
		RowActions: `table.grid tbody tr a[onclick*="addtocart"]`,

		CartLink: `a[href*="cart"]`,
	}
}

// Timing bounds the waits around unstable UI interactions. Zero values fall
// back to the tuning the workflow was built with.
type Timing struct {
	CredentialFormWait time.Duration // max wait for the login form to appear
	PasswordFieldWait  time.Duration
	LoginSettle        time.Duration // pause after submitting credentials
	SearchSettle       time.Duration // pause after triggering a search
}

func DefaultTiming() Timing {
	return Timing{
		CredentialFormWait: 10 * time.Second,
		PasswordFieldWait:  5 * time.Second,
		LoginSettle:        2 * time.Second,
		SearchSettle:       2 * time.Second,
	}
}

func (t Timing) withDefaults() Timing {
	d := DefaultTiming()
	if t.CredentialFormWait <= 0 {
		t.CredentialFormWait = d.CredentialFormWait
	}
	if t.PasswordFieldWait <= 0 {
		t.PasswordFieldWait = d.PasswordFieldWait
	}
	if t.LoginSettle <= 0 {
		t.LoginSettle = d.LoginSettle
	}
	if t.SearchSettle <= 0 {
		t.SearchSettle = d.SearchSettle
	}
	return t
}
