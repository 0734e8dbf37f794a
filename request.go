package storesession

import (
	"bytes"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
)

// Transport is the kind of connection a request arrived on.
type Transport int

const (
	Plain Transport = iota
	Secure
)

func (t Transport) String() string {
	if t == Secure {
		return "https"
	}
	return "http"
}

// Request is the read-only view of an incoming request that the session
// controller works from. It can be built from *http.Request with
// NewRequest or assembled directly in tests.
type Request struct {
	Query     url.Values
	Form      url.Values // body parameters only
	Cookies   map[string]string
	Transport Transport
	Host      string
}

// maxFormBytes caps how much of a url-encoded body NewRequest reads.
const maxFormBytes = 10 << 20

// maxMultipartMemory is passed to ParseMultipartForm.
const maxMultipartMemory = 32 << 20

// NewRequest captures the parts of r the session layer reads. Query string,
// url-encoded body and Cookie headers are split by hand: the net/http
// helpers drop pairs they cannot decode, and a dropped pair would hide a
// tampered session ID from validation. Values that fail to unescape are
// kept verbatim. A url-encoded body is restored so handlers can still read it.
func NewRequest(r *http.Request) Request {
	req := Request{
		Query:     parsePairs(r.URL.RawQuery, "&"),
		Cookies:   parseCookieHeaders(r.Header.Values("Cookie")),
		Transport: transportOf(r),
		Host:      r.Host,
	}

	if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
		req.Form = parseBody(r)
	}
	return req
}

func parseBody(r *http.Request) url.Values {
	if r.Body == nil {
		return nil
	}
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch ct {
	case "application/x-www-form-urlencoded":
		body, err := io.ReadAll(io.LimitReader(r.Body, maxFormBytes))
		r.Body.Close()
		r.Body = io.NopCloser(bytes.NewReader(body))
		if err != nil {
			return nil
		}
		return parsePairs(string(body), "&")
	case "multipart/form-data":
		// A malformed query string makes ParseMultipartForm return an
		// error after the body has been read; the body values still count.
		_ = r.ParseMultipartForm(maxMultipartMemory)
		if r.MultipartForm == nil {
			return nil
		}
		return url.Values(r.MultipartForm.Value)
	}
	return nil
}

// parsePairs splits s into key/value pairs on sep. A key without '=' gets an
// empty value.
func parsePairs(s, sep string) url.Values {
	out := make(url.Values)
	for s != "" {
		var pair string
		pair, s, _ = strings.Cut(s, sep)
		if pair == "" {
			continue
		}
		key, value, _ := strings.Cut(pair, "=")
		key = unescape(key)
		out[key] = append(out[key], unescape(value))
	}
	return out
}

func unescape(s string) string {
	if v, err := url.QueryUnescape(s); err == nil {
		return v
	}
	return s
}

// parseCookieHeaders reads cookie pairs without validating their values.
// The first cookie with a given name wins, matching http.Request.Cookie.
func parseCookieHeaders(lines []string) map[string]string {
	out := make(map[string]string)
	for _, line := range lines {
		for _, part := range strings.Split(line, ";") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			name, value, _ := strings.Cut(part, "=")
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			if _, ok := out[name]; ok {
				continue
			}
			value = strings.TrimSpace(value)
			if len(value) > 1 && value[0] == '"' && value[len(value)-1] == '"' {
				value = value[1 : len(value)-1]
			}
			out[name] = value
		}
	}
	return out
}

func transportOf(r *http.Request) Transport {
	if r.TLS != nil {
		return Secure
	}
	return Plain
}

// Cookie returns the value of the named cookie and whether it was sent.
func (r Request) Cookie(name string) (string, bool) {
	v, ok := r.Cookies[name]
	return v, ok
}

// candidates returns every value supplied under name, in precedence order:
// query string, form body, cookie.
func (r Request) candidates(name string) []string {
	var out []string
	if vs, ok := r.Query[name]; ok {
		out = append(out, vs...)
	}
	if vs, ok := r.Form[name]; ok {
		out = append(out, vs...)
	}
	if v, ok := r.Cookies[name]; ok {
		out = append(out, v)
	}
	return out
}

// sane reports whether every value supplied under name is a well-formed
// session ID. A request supplying nothing is sane.
func (r Request) sane(name string) bool {
	for _, v := range r.candidates(name) {
		if !isValidID(v) {
			return false
		}
	}
	return true
}

// candidate returns the highest-precedence value supplied under name.
func (r Request) candidate(name string) string {
	if vs := r.candidates(name); len(vs) > 0 {
		return vs[0]
	}
	return ""
}
