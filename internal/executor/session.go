package executor

import (
	"context"
	"time"
)

// SelectMethod is one way of setting a selectable field. The methods are
// tried in order because the target markup is not stable: a native select
// accepts a value directly, some variants only match on visible label text,
// and custom dropdowns need to be opened and have their option clicked.
type SelectMethod int

const (
	ByValue SelectMethod = iota
	ByLabel
	ByOptionClick
)

func (m SelectMethod) String() string {
	switch m {
	case ByValue:
		return "value"
	case ByLabel:
		return "label"
	case ByOptionClick:
		return "option-click"
	}
	return "unknown"
}

// Candidate is one acquirable entry discovered on the results page. Label is
// the displayed time text of its row (may be empty or unparseable); Ref is an
// opaque handle the session can click later.
type Candidate struct {
	Label string
	Ref   string
}

// Session is the single-threaded interactive actor through which all
// external interactions happen. Implementations wrap a controlled browser;
// tests substitute a scripted fake. One session, one logical actor, one
// action at a time.
type Session interface {
	Navigate(ctx context.Context, url string) error
	Location(ctx context.Context) (string, error)

	Visible(ctx context.Context, selector string) (bool, error)
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error

	Click(ctx context.Context, selector string) error
	Fill(ctx context.Context, selector, value string) error
	SelectOption(ctx context.Context, selector, value string, method SelectMethod) error
	Value(ctx context.Context, selector string) (string, error)
	Text(ctx context.Context, selector string) (string, error)

	// Candidates enumerates elements matching itemSelector together with
	// their row's displayed time text.
	Candidates(ctx context.Context, itemSelector string) ([]Candidate, error)
	ClickRef(ctx context.Context, ref string) error

	Screenshot(ctx context.Context) ([]byte, error)

	// Close discards the session. Failed runs deliberately do not call it so
	// the session stays open for manual inspection.
	Close() error
}

// ArtifactSink persists diagnostic snapshots for humans. Nothing reads them
// back programmatically.
type ArtifactSink interface {
	Save(name string, png []byte) (string, error)
}
