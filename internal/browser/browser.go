// Package browser implements the executor's session over a controlled
// Chrome instance via chromedp.
package browser

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/example/teesched/internal/executor"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Options configures the launched browser.
type Options struct {
	Headless bool
	// BlockImages speeds up page loads; the flows never depend on image
	// content, only on the + icon's alt attribute which survives blocking.
	BlockImages bool
}

// Chrome is a chromedp-backed executor.Session. All calls run against the
// same tab; the executor serializes them.
type Chrome struct {
	allocCancel context.CancelFunc
	tabCancel   context.CancelFunc
	ctx         context.Context

	// refs assigned by the last Candidates call, keyed by the opaque ref
	// string handed to the executor.
	refs map[string]string
}

var _ executor.Session = (*Chrome)(nil)

// New launches a Chrome instance and opens one tab.
func New(ctx context.Context, opts Options) (*Chrome, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("incognito", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(userAgent),
		chromedp.WindowSize(1366, 900),
	)
	if opts.BlockImages {
		allocOpts = append(allocOpts, chromedp.Flag("blink-settings", "imagesEnabled=false"))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocOpts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	// Force browser start so launch failures surface here, not mid-run.
	if err := chromedp.Run(tabCtx, network.Enable()); err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("launching browser: %w", err)
	}

	return &Chrome{
		allocCancel: allocCancel,
		tabCancel:   tabCancel,
		ctx:         tabCtx,
		refs:        make(map[string]string),
	}, nil
}

func (c *Chrome) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx := c.ctx
	if dl, ok := ctx.Deadline(); ok {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithDeadline(c.ctx, dl)
		defer cancel()
	}
	return chromedp.Run(runCtx, actions...)
}

func (c *Chrome) Navigate(ctx context.Context, url string) error {
	return c.run(ctx, chromedp.Navigate(url), chromedp.WaitReady("body"))
}

func (c *Chrome) Location(ctx context.Context) (string, error) {
	var loc string
	err := c.run(ctx, chromedp.Location(&loc))
	return loc, err
}

// isXPath reports whether a matcher is an XPath expression rather than a
// CSS selector. Text-content matchers have no CSS form, so they are written
// as XPath.
func isXPath(selector string) bool {
	return strings.HasPrefix(selector, "//") || strings.HasPrefix(selector, "(")
}

func queryOption(selector string) chromedp.QueryOption {
	if isXPath(selector) {
		return chromedp.BySearch
	}
	return chromedp.ByQuery
}

func (c *Chrome) Visible(ctx context.Context, selector string) (bool, error) {
	js := visibleCountJS(selector)
	if isXPath(selector) {
		js = xpathVisibleCountJS(selector)
	}
	var n int
	err := c.run(ctx, chromedp.Evaluate(js, &n))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (c *Chrome) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := c.run(waitCtx, chromedp.WaitVisible(selector, queryOption(selector))); err != nil {
		return fmt.Errorf("waiting for %q: %w", selector, err)
	}
	return nil
}

func (c *Chrome) Click(ctx context.Context, selector string) error {
	return c.run(ctx, chromedp.Click(selector, queryOption(selector), chromedp.NodeVisible))
}

func (c *Chrome) Fill(ctx context.Context, selector, value string) error {
	return c.run(ctx,
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, value, chromedp.ByQuery),
	)
}

func (c *Chrome) SelectOption(ctx context.Context, selector, value string, method executor.SelectMethod) error {
	switch method {
	case executor.ByValue:
		return c.run(ctx, chromedp.SetValue(selector, value, chromedp.ByQuery))
	case executor.ByLabel:
		var ok bool
		err := c.run(ctx, chromedp.Evaluate(selectByLabelJS(selector, value), &ok))
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("no option labelled %q under %q", value, selector)
		}
		return nil
	case executor.ByOptionClick:
		if err := c.Click(ctx, selector); err != nil {
			return err
		}
		return c.Click(ctx, fmt.Sprintf(`%s option[value=%q]`, selector, value))
	}
	return fmt.Errorf("unknown select method %v", method)
}

func (c *Chrome) Value(ctx context.Context, selector string) (string, error) {
	var v string
	err := c.run(ctx, chromedp.Value(selector, &v, chromedp.ByQuery))
	return v, err
}

func (c *Chrome) Text(ctx context.Context, selector string) (string, error) {
	var v string
	err := c.run(ctx, chromedp.Text(selector, &v, chromedp.ByQuery, chromedp.AtLeast(0)))
	return strings.TrimSpace(v), err
}

// candidateRow is the JSON shape produced by candidatesJS.
type candidateRow struct {
	Label string `json:"label"`
	Index int    `json:"index"`
}

func (c *Chrome) Candidates(ctx context.Context, itemSelector string) ([]executor.Candidate, error) {
	var rows []candidateRow
	if err := c.run(ctx, chromedp.Evaluate(candidatesJS(itemSelector), &rows)); err != nil {
		return nil, err
	}

	c.refs = make(map[string]string)
	out := make([]executor.Candidate, 0, len(rows))
	for _, r := range rows {
		ref := "cand-" + strconv.Itoa(r.Index)
		c.refs[ref] = fmt.Sprintf("%s@%d", itemSelector, r.Index)
		out = append(out, executor.Candidate{Label: strings.TrimSpace(r.Label), Ref: ref})
	}
	return out, nil
}

func (c *Chrome) ClickRef(ctx context.Context, ref string) error {
	target, ok := c.refs[ref]
	if !ok {
		return fmt.Errorf("unknown candidate ref %q", ref)
	}
	sel, idxStr, _ := strings.Cut(target, "@")
	idx, err := strconv.Atoi(idxStr)
	if err != nil {
		return fmt.Errorf("bad candidate ref %q", ref)
	}
	var ok2 bool
	if err := c.run(ctx, chromedp.Evaluate(clickNthJS(sel, idx), &ok2)); err != nil {
		return err
	}
	if !ok2 {
		return fmt.Errorf("candidate %q no longer present", ref)
	}
	return nil
}

func (c *Chrome) Screenshot(ctx context.Context) ([]byte, error) {
	var png []byte
	err := c.run(ctx, chromedp.FullScreenshot(&png, 80))
	return png, err
}

func (c *Chrome) Close() error {
	c.tabCancel()
	c.allocCancel()
	return nil
}

func xpathVisibleCountJS(expr string) string {
	return fmt.Sprintf(`(() => {
  let n = 0;
  const it = document.evaluate(%q, document, null, XPathResult.ORDERED_NODE_ITERATOR_TYPE, null);
  for (let el = it.iterateNext(); el; el = it.iterateNext()) {
    const r = el.getBoundingClientRect();
    if (r.width > 0 && r.height > 0) n++;
  }
  return n;
})()`, expr)
}

func visibleCountJS(selector string) string {
	return fmt.Sprintf(`(() => {
  let n = 0;
  for (const el of document.querySelectorAll(%q)) {
    const r = el.getBoundingClientRect();
    if (r.width > 0 && r.height > 0) n++;
  }
  return n;
})()`, selector)
}

func selectByLabelJS(selector, label string) string {
	return fmt.Sprintf(`(() => {
  const sel = document.querySelector(%q);
  if (!sel) return false;
  for (const opt of sel.options) {
    if (opt.text.trim() === %q) {
      sel.value = opt.value;
      sel.dispatchEvent(new Event('change', {bubbles: true}));
      return true;
    }
  }
  return false;
})()`, selector, label)
}

// candidatesJS collects each matching element's index and the time text of
// its enclosing row. The row's first cell usually carries the slot time.
func candidatesJS(itemSelector string) string {
	return fmt.Sprintf(`(() => {
  const out = [];
  const items = document.querySelectorAll(%q);
  items.forEach((el, i) => {
    let label = '';
    const row = el.closest('tr');
    if (row) {
      const cell = row.querySelector('td');
      if (cell) label = cell.textContent;
    }
    if (!label) label = el.title || el.textContent || '';
    out.push({label: label.trim(), index: i});
  });
  return out;
})()`, itemSelector)
}

func clickNthJS(selector string, idx int) string {
	return fmt.Sprintf(`(() => {
  const items = document.querySelectorAll(%q);
  if (items.length <= %d) return false;
  items[%d].click();
  return true;
})()`, selector, idx, idx)
}
