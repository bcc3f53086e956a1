package flow

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"strings"
)

// Request normalization collaborators for the protocol steps. Each operates
// on the Exchange and is idempotent: a field that is already populated is
// left alone.

var (
	errNoBody             = errors.New("unreadable body")
	errUnsupportedContent = errors.New("unsupported content type")
	errNoToken            = errors.New("no token")
)

// prepareBody decodes the request body into ex.Body. JSON bodies decode into
// a map, urlencoded forms copy their first values, and an empty body yields
// an empty map. Unsupported content types and malformed payloads fail.
func prepareBody(ex *Exchange) error {
	if ex.Body != nil {
		return nil
	}
	req := ex.Req
	if req.Body == nil {
		ex.Body = map[string]any{}
		return nil
	}
	raw, err := io.ReadAll(req.Body)
	if err != nil {
		return errNoBody
	}
	if len(raw) == 0 {
		ex.Body = map[string]any{}
		return nil
	}
	ct := req.Header.Get("Content-Type")
	mt, _, _ := mime.ParseMediaType(ct)
	switch {
	case mt == "" || mt == "application/json" || strings.HasSuffix(mt, "+json"):
		body := map[string]any{}
		if err := json.Unmarshal(raw, &body); err != nil {
			return err
		}
		ex.Body = body
	case mt == "application/x-www-form-urlencoded":
		// Restore the body so ParseForm can consume it.
		req.Body = io.NopCloser(strings.NewReader(string(raw)))
		if err := req.ParseForm(); err != nil {
			return err
		}
		body := map[string]any{}
		for k, vs := range req.PostForm {
			if len(vs) > 0 {
				body[k] = vs[0]
			}
		}
		ex.Body = body
	default:
		return errUnsupportedContent
	}
	return nil
}

// prepareQuery copies the URL query into ex.Query. Always succeeds.
func prepareQuery(ex *Exchange) {
	if ex.Query != nil {
		return
	}
	ex.Query = ex.Req.URL.Query()
}

// prepareCookies copies the request cookies into ex.Cookies. Always succeeds.
func prepareCookies(ex *Exchange) {
	if ex.Cookies != nil {
		return
	}
	cookies := map[string]string{}
	for _, c := range ex.Req.Cookies() {
		cookies[c.Name] = c.Value
	}
	ex.Cookies = cookies
}

// prepareToken extracts a bearer token into ex.Token. The Authorization
// header wins; cookies and query parameters named by names are consulted in
// order as fallbacks. Fails when no source carries a token.
func prepareToken(ex *Exchange, names ...string) error {
	if ex.Token != "" {
		return nil
	}
	if auth := ex.Req.Header.Get("Authorization"); auth != "" {
		const prefix = "Bearer "
		if strings.HasPrefix(auth, prefix) {
			ex.Token = strings.TrimSpace(auth[len(prefix):])
			return nil
		}
	}
	if len(names) == 0 {
		names = []string{"token"}
	}
	prepareCookies(ex)
	prepareQuery(ex)
	for _, name := range names {
		if v, ok := ex.Cookies[name]; ok && v != "" {
			ex.Token = v
			return nil
		}
		if v := ex.Query.Get(name); v != "" {
			ex.Token = v
			return nil
		}
	}
	return errNoToken
}
