/*
Package sandbox provides the isolation boundary that runs untrusted
JavaScript for one sub-match.

# Overview

Each execution context is a goja VM driven by its own loop goroutine. The
host never touches the VM; it talks to the context only through serialized
messages:

  - Boundary.Send: host to context, delivered through a MessageChannel
  - Boundary.Messages: context to host, posted with postMessage

# Message Discipline

Inbound messages that arrive before the program registers a listener are
queued by the MessageChannel and flushed, in arrival order, to the first
listener. The context posts {"workerReady": true} once this is installed;
Send before that is a protocol violation.

# Module Loading

requireModule(path) returns a promise. Two Loader implementations exist:

  - RestrictedLoader posts {"requireScriptPath": path} and waits for the
    host to deliver the code. Concurrent loads of one path share a request.
  - DirectLoader fetches from a modules.Source itself (trusted contexts).

# Failures

  - *ProgramError: uncaught exception in sandboxed code
  - *ProtocolError: a message that matched no expected state
  - ErrTimeout: the context outlived Config.Timeout
  - ErrSpawn: the context could not be created

Each of these tears down only the boundary that observed it.

# Usage Example

	b, err := sandbox.Spawn(ctx, sandbox.DefaultConfig(), bootstrap,
		sandbox.WithSource(source),
		sandbox.WithLogger(logger))
	if err != nil {
		return err
	}
	defer b.Terminate()

	if err := b.WaitReady(ctx); err != nil {
		return err
	}
	_ = b.Send(map[string]interface{}{"type": "begin"})
	for raw := range b.Messages() {
		// ...
	}
*/
package sandbox
