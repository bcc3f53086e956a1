package flow

// Envelope is the normalized failure representation produced by a failing
// chain. It implements error and Unwrap, so errors.Is/As traverse the full
// causal chain.
//
// All fluent methods are non-mutating: they return a new Envelope and leave
// the receiver untouched. This makes a package-level Envelope safe to reuse
// as the static default error of many steps; Clone records the specific
// cause of each individual failure without disturbing the shared value.
type Envelope struct {
	// Message is the human-readable failure name. Enrichment composes
	// messages with a colon separator (see Enrich).
	Message string
	// Code is an optional numeric status, zero when unset. Protocol steps
	// populate it with the HTTP status of the failure.
	Code int
	// Path locates the failure: the key path for navigation and mutation
	// failures, or the selector for structural-query failures.
	Path Path
	// Query reports whether Path holds a structural selector rather than a
	// plain key path.
	Query bool
	// Cause is the underlying error that triggered the failure, if any.
	Cause error
	// Emitter is the handler that raised the envelope.
	Emitter *Handler
}

// NewEnvelope returns an envelope carrying only a message.
func NewEnvelope(msg string) *Envelope {
	return &Envelope{Message: msg}
}

// Error returns the envelope's message, falling back to the cause when the
// message is empty.
func (e *Envelope) Error() string {
	if e.Message == "" {
		if e.Cause != nil {
			return e.Cause.Error()
		}
		return "error"
	}
	return e.Message
}

// Unwrap exposes the cause for errors.Is/As traversal.
func (e *Envelope) Unwrap() error {
	return e.Cause
}

// WithCode returns a copy of the envelope with the given status code.
func (e *Envelope) WithCode(code int) *Envelope {
	n := *e
	n.Code = code
	return &n
}

// WithPath returns a copy of the envelope locating the failure at p.
func (e *Envelope) WithPath(p Path) *Envelope {
	n := *e
	n.Path = p
	n.Query = false
	return &n
}

// WithSelector returns a copy of the envelope locating the failure at a
// structural selector instead of a key path.
func (e *Envelope) WithSelector(selector string) *Envelope {
	n := *e
	n.Path = Path{selector}
	n.Query = true
	return &n
}

// Clone returns a copy of the envelope identical in message, code, path and
// query flag, with the cause replaced. This is how a single static envelope
// is reused across many calls while still recording the error that triggered
// each specific failure.
func (e *Envelope) Clone(cause error) *Envelope {
	n := *e
	n.Cause = cause
	return &n
}

// Enrich composes an outer envelope (a handler's default failure) with the
// local error of a failing step. The result's message is
// "outer.Message:local message" with the separator omitted when either side
// is empty. Code, path and query flag prefer the local envelope's values when
// present, and the local error becomes the cause, so both layers survive in
// the causal chain.
func Enrich(outer *Envelope, local error) *Envelope {
	n := &Envelope{}
	if outer != nil {
		n.Message = outer.Message
		n.Code = outer.Code
		n.Path = outer.Path
		n.Query = outer.Query
	}
	localMsg := ""
	if local != nil {
		localMsg = local.Error()
	}
	if le, ok := local.(*Envelope); ok {
		localMsg = le.Message
		if le.Code != 0 {
			n.Code = le.Code
		}
		if le.Path != nil {
			n.Path = le.Path
			n.Query = le.Query
		}
	}
	if localMsg != "" {
		if n.Message != "" {
			n.Message += ":" + localMsg
		} else {
			n.Message = localMsg
		}
	}
	n.Cause = local
	return n
}
