package flow

import (
	"context"
)

// Handler is a lazily-composed chain of steps over a navigable context.
// Chaining methods never mutate the receiver: each returns a new Handler
// carrying one more step, so a fully built Handler is an immutable value
// that can be run against any number of root contexts, concurrently.
//
// A run executes the steps strictly in chain order against a fresh path
// stack rooted at the given context. The first failing step aborts the run;
// no later step executes its body.
type Handler struct {
	name      string
	kind      kind
	steps     []step
	observers []observer
	elseFn    RecoverFunc
}

// kind tags the handler with its capability family. Specialized behavior is
// a set of step constructors, not a separate type; the tag only selects the
// default failure name.
type kind int

const (
	kindBase kind = iota
	kindStructural
	kindProtocol
)

// step is one unit of chain execution operating on the run's state.
type step func(ctx context.Context, st *state) error

// state is the per-run mutable state: the navigation stack and a back
// reference to the handler for failure enrichment.
type state struct {
	stack   *pathStack
	handler *Handler
}

// Predicate validates the value a check step resolved.
type Predicate func(ctx context.Context, v any) (bool, error)

// Producer computes the value a set step assigns, given the current context.
type Producer func(ctx context.Context, v any) (any, error)

// ObserverFunc is notified when a run fails. All matching observers fire;
// one observer never stops another.
type ObserverFunc func(ctx context.Context, root any, env *Envelope)

// RecoverFunc converts a failed run into a recovered result. Returning nil
// marks the run as handled.
type RecoverFunc func(ctx context.Context, root any, env *Envelope) error

type observer struct {
	message string // empty matches every failure from this handler
	fn      ObserverFunc
}

// New returns a base handler. name is the handler's default failure message
// and its coarse observer identity; it defaults to "handler-fail".
func New(name string) *Handler {
	if name == "" {
		name = "handler-fail"
	}
	return &Handler{name: name}
}

// NewStructural returns a handler intended for structural (node) contexts.
// The default failure name is "dom-fail".
func NewStructural(name string) *Handler {
	if name == "" {
		name = "dom-fail"
	}
	return &Handler{name: name, kind: kindStructural}
}

// NewProtocol returns a handler intended for request/response contexts.
// The default failure name is "http-fail".
func NewProtocol(name string) *Handler {
	if name == "" {
		name = "http-fail"
	}
	return &Handler{name: name, kind: kindProtocol}
}

// Name returns the handler's default failure name.
func (h *Handler) Name() string {
	return h.name
}

func (h *Handler) clone() *Handler {
	n := &Handler{name: h.name, kind: h.kind, elseFn: h.elseFn}
	n.steps = append([]step(nil), h.steps...)
	n.observers = append([]observer(nil), h.observers...)
	return n
}

func (h *Handler) chain(s step) *Handler {
	n := h.clone()
	n.steps = append(n.steps, s)
	return n
}

// Option configures a single step.
type Option func(*stepConfig)

type stepConfig struct {
	create  bool
	err     *Envelope
	onError func(*Envelope)
}

// Create makes navigation and mutation steps create missing intermediate
// structures instead of failing.
func Create() Option {
	return func(c *stepConfig) { c.create = true }
}

// Err replaces the step's default local error with a caller-supplied
// envelope. The envelope is cloned on failure, never mutated.
func Err(e *Envelope) Option {
	return func(c *stepConfig) { c.err = e }
}

// OnError registers a callback invoked with the enriched envelope when this
// specific step fails.
func OnError(fn func(*Envelope)) Option {
	return func(c *stepConfig) { c.onError = fn }
}

func applyOptions(opts []Option) stepConfig {
	var cfg stepConfig
	for _, o := range opts {
		o(&cfg)
	}
	return cfg
}

// fail builds the enriched envelope for a failing step: the handler's
// default message composed with the local error (the step default, or the
// configured Err envelope), carrying cause when a lower-level error
// triggered the failure.
func (st *state) fail(cfg stepConfig, local *Envelope, cause error) error {
	if cfg.err != nil {
		local = cfg.err
	}
	if cause != nil {
		local = local.Clone(cause)
	}
	env := Enrich(&Envelope{Message: st.handler.name}, local)
	env.Emitter = st.handler
	if cfg.onError != nil {
		cfg.onError(env)
	}
	return env
}

// Truthy is the default check predicate: nil, false, empty string and
// numeric zero fail, everything else passes.
func Truthy(_ context.Context, v any) (bool, error) {
	switch t := v.(type) {
	case nil:
		return false, nil
	case bool:
		return t, nil
	case string:
		return t != "", nil
	case int:
		return t != 0, nil
	case int64:
		return t != 0, nil
	case float64:
		return t != 0, nil
	}
	return true, nil
}

// With navigates into path relative to the current location and pushes the
// resolved value. An empty path is a no-op success that re-pushes the
// current location, keeping With/Without balance. With Create(), missing
// segments are created as empty maps and navigation succeeds into the new
// structure; otherwise a missing path fails with a "path not found"
// navigation envelope carrying the path.
func (h *Handler) With(path string, opts ...Option) *Handler {
	p := ParsePath(path)
	cfg := applyOptions(opts)
	return h.chain(func(_ context.Context, st *state) error {
		if len(p) == 0 {
			st.stack.push(st.stack.current())
			return nil
		}
		if cfg.create {
			v, err := resolveOrCreate(st.stack.current(), p)
			if err != nil {
				return st.fail(cfg, &Envelope{Message: "path not found", Path: p}, err)
			}
			st.stack.push(v)
			return nil
		}
		v, ok := resolve(st.stack.current(), p)
		if !ok {
			return st.fail(cfg, &Envelope{Message: "path not found", Path: p}, nil)
		}
		st.stack.push(v)
		return nil
	})
}

// Without unwinds up to n navigations. It never pops the root and never
// fails; popping more than was pushed leaves the chain at the root.
func (h *Handler) Without(n int) *Handler {
	return h.chain(func(_ context.Context, st *state) error {
		st.stack.pop(n)
		return nil
	})
}

// Check validates the current location with pred (Truthy when nil). The
// context is never mutated by a check; the only observable effect of a
// failed check is the failure itself.
func (h *Handler) Check(pred Predicate, opts ...Option) *Handler {
	return h.CheckPath("", pred, opts...)
}

// CheckPath resolves path relative to the current location and validates the
// result with pred (Truthy when nil). A path that does not resolve fails
// with a navigation envelope; a predicate error or false result fails with a
// "check-fail" validation envelope.
func (h *Handler) CheckPath(path string, pred Predicate, opts ...Option) *Handler {
	p := ParsePath(path)
	cfg := applyOptions(opts)
	if pred == nil {
		pred = Truthy
	}
	return h.chain(func(ctx context.Context, st *state) error {
		v := st.stack.current()
		if len(p) > 0 {
			var ok bool
			v, ok = resolve(v, p)
			if !ok {
				return st.fail(cfg, &Envelope{Message: "path not found", Path: p}, nil)
			}
		}
		ok, err := pred(ctx, v)
		if err != nil {
			return st.fail(cfg, &Envelope{Message: "check-fail", Path: p}, err)
		}
		if !ok {
			return st.fail(cfg, &Envelope{Message: "check-fail", Path: p}, nil)
		}
		return nil
	})
}

// Set assigns value at path relative to the current location, mutating the
// context in place.
func (h *Handler) Set(path string, value any, opts ...Option) *Handler {
	return h.SetFunc(path, func(context.Context, any) (any, error) {
		return value, nil
	}, opts...)
}

// SetFunc invokes produce with the current location and assigns the result
// at path. A nil result fails with an "undefined result" mutation envelope
// regardless of Create(); absent values are never assigned. With Create(),
// missing intermediate segments are created along the way.
func (h *Handler) SetFunc(path string, produce Producer, opts ...Option) *Handler {
	p := ParsePath(path)
	cfg := applyOptions(opts)
	return h.chain(func(ctx context.Context, st *state) error {
		v, err := produce(ctx, st.stack.current())
		if err != nil {
			return st.fail(cfg, &Envelope{Message: "set-fail", Path: p}, err)
		}
		if v == nil {
			return st.fail(cfg, &Envelope{Message: "undefined result", Path: p}, nil)
		}
		if err := assign(st.stack.current(), p, v, cfg.create); err != nil {
			return st.fail(cfg, &Envelope{Message: "set-fail", Path: p}, err)
		}
		return nil
	})
}

// Exec runs an arbitrary side-effecting function against the current
// location. A returned error is routed through the failure pipeline as an
// "exec-fail" envelope; the function may or may not mutate the context.
func (h *Handler) Exec(fn func(ctx context.Context, v any) error, opts ...Option) *Handler {
	cfg := applyOptions(opts)
	return h.chain(func(ctx context.Context, st *state) error {
		if err := fn(ctx, st.stack.current()); err != nil {
			return st.fail(cfg, &Envelope{Message: "exec-fail"}, err)
		}
		return nil
	})
}

// Fail unconditionally fails the chain with e as the local error. Useful as
// the fall-through arm of externally decided branches.
func (h *Handler) Fail(e *Envelope, opts ...Option) *Handler {
	cfg := applyOptions(opts)
	return h.chain(func(_ context.Context, st *state) error {
		return st.fail(cfg, e, nil)
	})
}

// Observe registers a coarse observer fired on every failure of this
// handler.
func (h *Handler) Observe(fn ObserverFunc) *Handler {
	n := h.clone()
	n.observers = append(n.observers, observer{fn: fn})
	return n
}

// ObserveMessage registers a fine-grained observer fired only when the
// enriched envelope's message equals msg exactly.
func (h *Handler) ObserveMessage(msg string, fn ObserverFunc) *Handler {
	n := h.clone()
	n.observers = append(n.observers, observer{message: msg, fn: fn})
	return n
}

// Else attaches a recovery function invoked with the root context and the
// envelope when a run fails, after observers have fired. Its return value
// becomes the run's result.
func (h *Handler) Else(fn RecoverFunc) *Handler {
	n := h.clone()
	n.elseFn = fn
	return n
}

// Run executes the chain against root. Steps run strictly in chain order;
// the first failure aborts the run, notifies matching observers, applies the
// Else recovery if one is attached, and otherwise surfaces the envelope as
// the returned error. A nil return means every step succeeded and root
// reflects all mutations.
func (h *Handler) Run(ctx context.Context, root any) error {
	st := &state{stack: newPathStack(root), handler: h}
	for _, s := range h.steps {
		err := s(ctx, st)
		if err == nil {
			continue
		}
		env, ok := err.(*Envelope)
		if !ok {
			env = Enrich(&Envelope{Message: h.name}, err)
			env.Emitter = h
		}
		for _, o := range h.observers {
			if o.message != "" && o.message != env.Message {
				continue
			}
			o.fn(ctx, root, env)
		}
		if h.elseFn != nil {
			return h.elseFn(ctx, root, env)
		}
		return env
	}
	return nil
}
