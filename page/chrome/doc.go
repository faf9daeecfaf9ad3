/*
Package chrome implements page.Page on a Chrome tab using chromedp.

Each page registers one raw CDP binding (page.TransportBinding) with
Runtime.addBinding. Exposed functions are page-side wrappers installed both
in the current document and, through Page.addScriptToEvaluateOnNewDocument,
in every later one. Runtime.bindingCalled events arrive on the CDP event
goroutine and are handed to the page's call queue untouched.

Every CDP call goes through a circuit breaker, so a crashed or detached
target fails fast with resilience.ErrCircuitOpen instead of blocking each
caller until its deadline. JavaScript exceptions do not count against the
breaker.

	browser, err := chrome.Launch(ctx, cfg.Browser, chrome.WithLogger(logger))
	if err != nil {
		return err
	}
	defer browser.Close()

	p, err := browser.NewPage(ctx)
*/
package chrome
