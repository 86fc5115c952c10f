package inspect

import (
	"context"

	"github.com/example/teesched/internal/executor"
)

// SelectorCheck is the probe result for one matcher.
type SelectorCheck struct {
	Concern  string `json:"concern"`
	Selector string `json:"selector"`
	Present  bool   `json:"present"`
}

// AuditSelectors probes every matcher chain against the current page and
// reports which matchers actually resolve. Run it on the booking page to
// catch markup drift before an opening, not during one.
func AuditSelectors(ctx context.Context, s executor.Session, sel executor.Selectors) ([]SelectorCheck, error) {
	var out []SelectorCheck
	probe := func(concern string, selectors ...string) error {
		for _, selector := range selectors {
			if selector == "" {
				continue
			}
			present, err := s.Visible(ctx, selector)
			if err != nil {
				return err
			}
			out = append(out, SelectorCheck{Concern: concern, Selector: selector, Present: present})
		}
		return nil
	}

	checks := []struct {
		concern   string
		selectors []string
	}{
		{"sign-in", sel.SignIn},
		{"username", []string{sel.UsernameInput}},
		{"password", []string{sel.PasswordInput}},
		{"login-button", []string{sel.LoginButton}},
		{"date", sel.DateInputs},
		{"players", sel.PlayerSelects},
		{"holes", sel.HoleSelects},
		{"search", []string{sel.SearchButton}},
		{"add-to-cart", []string{sel.AddToCart}},
		{"plus-icon", []string{sel.PlusIcon}},
		{"row-actions", []string{sel.RowActions}},
		{"cart", []string{sel.CartLink}},
	}
	for _, c := range checks {
		if err := probe(c.concern, c.selectors...); err != nil {
			return out, err
		}
	}
	return out, nil
}
