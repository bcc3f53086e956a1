// Package flow provides a lightweight, chainable handler engine for navigating
// and validating nested context values in Go.
//
// Flow is a lazily-composed step chain: a [Handler] is built once by chaining
// navigation, checks, mutations and side effects, then run against any number
// of root contexts. Building never mutates the receiver, so a Handler is an
// immutable value that is safe to share and run concurrently.
//
// # Basic Usage
//
// Build a handler, then run it against a context:
//
//	h := flow.New("login-fail").
//		With("user").
//		Check(func(_ context.Context, v any) (bool, error) {
//			u := v.(map[string]any)
//			return u["name"] == "Alice", nil
//		}).
//		Set("age", 30).
//		Without(1)
//
//	err := h.Run(ctx, map[string]any{"user": map[string]any{"name": "Alice"}})
//
// # Navigation
//
// [Handler.With] descends into a dot-separated key path and pushes the
// resolved value onto the run's path stack; [Handler.Without] unwinds. Every
// later step operates on the current top of the stack. Values resolve
// through plain maps, slices (numeric keys), and anything implementing
// [Keyed]:
//
//	h := flow.New("").
//		With("account.settings").
//		Set("theme", "dark").
//		Without(1)
//
// Missing paths fail the chain unless the step was built with [Create], which
// creates empty maps along the way.
//
// # Failure
//
// The first failing step aborts the run: no later step executes its body,
// and the run returns an [Envelope] composing the handler's failure name
// with the step's local error ("login-fail:check-fail"). Observers attached
// with [Handler.Observe] (every failure) or [Handler.ObserveMessage] (one
// exact enriched message) all fire before the envelope surfaces, and
// [Handler.Else] converts the failure into a recovered result:
//
//	h = h.Observe(func(_ context.Context, root any, env *flow.Envelope) {
//		log.Println(env.Message)
//	}).Else(func(_ context.Context, root any, env *flow.Envelope) error {
//		return nil // handled
//	})
//
// # Structural Contexts
//
// Chains navigate tree-shaped contexts through the [Node] capability.
// [WrapHTML] adapts golang.org/x/net/html parse trees, with a restricted CSS
// selector subset (tag, #id, .class, [attr], [attr=value], descendant and >
// combinators):
//
//	h := flow.NewStructural("").
//		WithQuery("#container > .item").
//		SetAttr("data-id", "123")
//
//	err := h.Run(ctx, flow.WrapHTML(root))
//
// # Protocol Contexts
//
// Protocol chains run against an [Exchange], a request/response aggregate
// whose derived fields are populated by preparation steps. A protocol
// handler implements [http.Handler], so it mounts directly on any mux; an
// unhandled failure is written as a status-coded JSON notification exactly
// once:
//
//	h := flow.NewProtocol("api-fail").
//		CheckMethod(http.MethodPost).
//		CheckContentType("application/json").
//		PrepareBody().
//		Exec(handleCreate)
//
//	mux.Handle("/users", h)
//
// The response wrapper tracks status, size and written state, and implements
// [http.Flusher], [http.Hijacker] and [http.Pusher] for compatibility with
// SSE, WebSockets, and HTTP/2 server push.
package flow
