/*
Package sandbox provides an in-process page for the worker bridge.

# Overview

A sandbox page emulates the slice of a browser the bridge relies on using
goja. Every JavaScript global scope is a realm with its own goja_nodejs event
loop:

  - the document realm, replaced on every navigation
  - one realm per dedicated Worker the document constructs

The document realm provides window/self, document (title, URL,
querySelector, querySelectorAll, getElementById), Blob,
URL.createObjectURL/revokeObjectURL, Worker, console and timers. Worker
realms provide self, postMessage, onmessage/onerror,
addEventListener/removeEventListener, close, importScripts, console and
timers.

# Messaging

Messages between realms are cloned as JSON. A worker posts into its owner's
loop and the owner posts into the worker's loop, so each side sees events in
send order. Messages sent before a worker script has run are held and
delivered right after it.

# Errors

Script errors in a worker become ErrorEvents on the owning Worker object
with the message prefixed "Uncaught ", for example:

	Uncaught SyntaxError: Unexpected identifier
	Uncaught Error: boom

Failures in document scripts are recorded on the console.

# Loading

Documents and scripts are loaded from about:blank, object URLs minted by
the page, or http(s). Network loads go through resty on a
go-retryablehttp transport with a rate limiter and a circuit breaker.

# Usage Example

	browser := sandbox.NewBrowser(sandbox.DefaultConfig(), sandbox.WithLogger(logger))
	defer browser.Close()

	p, err := browser.NewPage(ctx)
	if err != nil {
		return err
	}
	raw, err := p.Evaluate(ctx, "(a, b) => a + b", 1, 2)
*/
package sandbox
