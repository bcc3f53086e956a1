package flow

import (
	"context"
	"errors"
	"mime"
	"net/http"
	"net/url"
	"strings"
)

// Exchange is the request/response aggregate protocol chains operate on. The
// derived fields (Body, Query, Cookies, Token) start empty and are populated
// by the preparation steps.
//
// Exchange implements Keyed, so base navigation reaches its parts by key:
// "req", "res", "body", "query", "cookies" and "token".
type Exchange struct {
	Req     *http.Request
	Res     ResponseWriter
	Body    map[string]any
	Query   url.Values
	Cookies map[string]string
	Token   string
}

// NewExchange builds an exchange around an incoming request, wrapping the
// writer with written-state tracking.
func NewExchange(w http.ResponseWriter, r *http.Request) *Exchange {
	return &Exchange{Req: r, Res: WrapResponseWriter(w)}
}

// Key implements Keyed. Unpopulated derived fields report as absent.
func (ex *Exchange) Key(name string) (any, bool) {
	switch name {
	case "req":
		return ex.Req, ex.Req != nil
	case "res":
		return ex.Res, ex.Res != nil
	case "body":
		return ex.Body, ex.Body != nil
	case "query":
		return ex.Query, ex.Query != nil
	case "cookies":
		return ex.Cookies, ex.Cookies != nil
	case "token":
		return ex.Token, ex.Token != ""
	}
	return nil, false
}

// Notification is the wire shape of an unhandled protocol failure.
// The emitter is deliberately omitted.
type Notification struct {
	Msg     string `json:"msg"`
	Payload any    `json:"payload,omitempty"`
	Code    int    `json:"code"`
}

// currentExchange finds the exchange a protocol step operates on: the
// current location when it is an exchange, otherwise the run's root.
func currentExchange(st *state) (*Exchange, bool) {
	if ex, ok := st.stack.current().(*Exchange); ok {
		return ex, true
	}
	ex, ok := st.stack.root().(*Exchange)
	return ex, ok
}

func notExchange() *Envelope {
	return &Envelope{Message: "not an exchange", Code: http.StatusInternalServerError}
}

// PrepareBody populates the exchange body from the request payload. A body
// that cannot be decoded fails with status 400.
func (h *Handler) PrepareBody(opts ...Option) *Handler {
	cfg := applyOptions(opts)
	return h.chain(func(_ context.Context, st *state) error {
		ex, ok := currentExchange(st)
		if !ok {
			return st.fail(cfg, notExchange(), nil)
		}
		if err := prepareBody(ex); err != nil {
			return st.fail(cfg, &Envelope{Message: "bad body", Code: http.StatusBadRequest}, err)
		}
		return nil
	})
}

// PrepareQuery populates the exchange query values. Never fails on a valid
// exchange.
func (h *Handler) PrepareQuery(opts ...Option) *Handler {
	cfg := applyOptions(opts)
	return h.chain(func(_ context.Context, st *state) error {
		ex, ok := currentExchange(st)
		if !ok {
			return st.fail(cfg, notExchange(), nil)
		}
		prepareQuery(ex)
		return nil
	})
}

// PrepareCookies populates the exchange cookie map. Never fails on a valid
// exchange.
func (h *Handler) PrepareCookies(opts ...Option) *Handler {
	cfg := applyOptions(opts)
	return h.chain(func(_ context.Context, st *state) error {
		ex, ok := currentExchange(st)
		if !ok {
			return st.fail(cfg, notExchange(), nil)
		}
		prepareCookies(ex)
		return nil
	})
}

// PrepareToken extracts a bearer token from the Authorization header, or
// from cookies or query parameters under the given names. A missing token
// fails with status 401.
func (h *Handler) PrepareToken(names ...string) *Handler {
	return h.prepareToken(nil, names)
}

func (h *Handler) prepareToken(opts []Option, names []string) *Handler {
	cfg := applyOptions(opts)
	return h.chain(func(_ context.Context, st *state) error {
		ex, ok := currentExchange(st)
		if !ok {
			return st.fail(cfg, notExchange(), nil)
		}
		if err := prepareToken(ex, names...); err != nil {
			return st.fail(cfg, &Envelope{Message: "no token", Code: http.StatusUnauthorized}, err)
		}
		return nil
	})
}

// CheckMethod fails with status 405 unless the request method matches.
func (h *Handler) CheckMethod(method string, opts ...Option) *Handler {
	cfg := applyOptions(opts)
	return h.chain(func(_ context.Context, st *state) error {
		ex, ok := currentExchange(st)
		if !ok {
			return st.fail(cfg, notExchange(), nil)
		}
		if !strings.EqualFold(ex.Req.Method, method) {
			return st.fail(cfg, &Envelope{Message: "wrong method", Code: http.StatusMethodNotAllowed}, nil)
		}
		return nil
	})
}

// CheckHeader fails with status 400 unless the named request header equals
// want.
func (h *Handler) CheckHeader(name, want string, opts ...Option) *Handler {
	cfg := applyOptions(opts)
	return h.chain(func(_ context.Context, st *state) error {
		ex, ok := currentExchange(st)
		if !ok {
			return st.fail(cfg, notExchange(), nil)
		}
		if ex.Req.Header.Get(name) != want {
			return st.fail(cfg, &Envelope{Message: "wrong header", Code: http.StatusBadRequest, Path: Path{name}}, nil)
		}
		return nil
	})
}

// CheckContentType fails with status 415 unless the request Content-Type's
// media type equals want.
func (h *Handler) CheckContentType(want string, opts ...Option) *Handler {
	cfg := applyOptions(opts)
	return h.chain(func(_ context.Context, st *state) error {
		ex, ok := currentExchange(st)
		if !ok {
			return st.fail(cfg, notExchange(), nil)
		}
		mt, _, _ := mime.ParseMediaType(ex.Req.Header.Get("Content-Type"))
		if mt != want {
			return st.fail(cfg, &Envelope{Message: "wrong content type", Code: http.StatusUnsupportedMediaType}, nil)
		}
		return nil
	})
}

// CheckAccept fails with status 406 unless the request Accept header names
// want, a matching type wildcard, or */*. An absent Accept header accepts
// everything.
func (h *Handler) CheckAccept(want string, opts ...Option) *Handler {
	cfg := applyOptions(opts)
	return h.chain(func(_ context.Context, st *state) error {
		ex, ok := currentExchange(st)
		if !ok {
			return st.fail(cfg, notExchange(), nil)
		}
		if !accepts(ex.Req.Header.Get("Accept"), want) {
			return st.fail(cfg, &Envelope{Message: "not acceptable", Code: http.StatusNotAcceptable}, nil)
		}
		return nil
	})
}

// CheckToken populates the exchange token (see PrepareToken) and fails with
// status 401 when none of the sources carries one.
func (h *Handler) CheckToken(names ...string) *Handler {
	return h.PrepareToken(names...)
}

func accepts(accept, want string) bool {
	if accept == "" {
		return true
	}
	wantType := want
	if i := strings.IndexByte(want, '/'); i >= 0 {
		wantType = want[:i]
	}
	for _, part := range strings.Split(accept, ",") {
		mt, _, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		if mt == want || mt == "*/*" || mt == wantType+"/*" {
			return true
		}
	}
	return false
}

// WriteFailure converts an envelope into a wire notification on the
// exchange's response, provided the response has not already been finalized.
// An envelope without a code reports 500.
func WriteFailure(ex *Exchange, env *Envelope) {
	code := env.Code
	if code == 0 {
		code = http.StatusInternalServerError
	}
	var payload any
	if env.Cause != nil {
		payload = env.Cause.Error()
	}
	_ = WriteJSON(ex.Res, code, Notification{Msg: env.Message, Payload: payload, Code: code})
}

// NotifyExchange is the default protocol failure observer: it writes the
// envelope through WriteFailure when the run's root is an exchange. Attach
// it with Observe to chains that are run manually rather than served.
func NotifyExchange(_ context.Context, root any, env *Envelope) {
	if ex, ok := root.(*Exchange); ok {
		WriteFailure(ex, env)
	}
}

// ServeHTTP runs the chain against a fresh exchange built from the incoming
// request, making a protocol handler directly mountable on any mux. An
// unhandled failure is written as a status-coded notification exactly once;
// a recovered or successful run writes nothing beyond what the steps wrote.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ex := NewExchange(w, r)
	err := h.Run(r.Context(), ex)
	if err == nil {
		return
	}
	var env *Envelope
	if !errors.As(err, &env) {
		env = &Envelope{Message: err.Error(), Code: http.StatusInternalServerError}
	}
	WriteFailure(ex, env)
}
