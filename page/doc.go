/*
Package page defines the browser page capability the worker bridge runs on.

# Overview

A Page evaluates JavaScript functions with JSON-cloned arguments, exposes
host functions under page-global names, and navigates. Two adapters ship
with the module:

  - page/chrome drives a real Chrome tab over the DevTools protocol
  - page/sandbox emulates a page in-process on goja event loops

# Bindings

Both adapters install one raw transport function per page
(TransportBinding). Each exposed name is a page-side wrapper that
serialises its arguments into a Call and sends it through the transport.
The adapter pushes decoded calls onto the page's CallQueue, which looks the
name up in Bindings and invokes the host function on its own goroutine:

	page JS  --> transport --> CallQueue --> Bindings.Lookup(name) --> ExposedFunc

Ordering is per page and matches emission order in the page.

# Errors

JavaScript exceptions raised by Evaluate come back as *EvaluationError.
Everything else is an adapter failure: closed page (ErrClosed), unknown or
duplicate binding names, transport errors.
*/
package page
