package storesession

import (
	"bytes"
	"crypto/tls"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequest(t *testing.T) {
	body := strings.NewReader(url.Values{"osCsid": {"fromForm"}, "qty": {"2"}}.Encode())
	r := httptest.NewRequest(http.MethodPost, "http://shop.example.com/cart?osCsid=fromQuery&osCsid=second", body)
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r.AddCookie(&http.Cookie{Name: "osCsid", Value: "fromCookie"})
	r.AddCookie(&http.Cookie{Name: "osCsid", Value: "shadowed"})

	req := NewRequest(r)

	assert.Equal(t, []string{"fromQuery", "second"}, req.Query["osCsid"])
	assert.Equal(t, []string{"fromForm"}, req.Form["osCsid"])
	assert.Empty(t, req.Form["missing"])
	assert.Equal(t, Plain, req.Transport)
	assert.Equal(t, "shop.example.com", req.Host)

	v, ok := req.Cookie("osCsid")
	assert.True(t, ok)
	assert.Equal(t, "fromCookie", v)

	assert.Equal(t, []string{"fromQuery", "second", "fromForm", "fromCookie"}, req.candidates("osCsid"))
	assert.Equal(t, "fromQuery", req.candidate("osCsid"))
	assert.True(t, req.sane("osCsid"))
}

func TestNewRequest_FormOnlyFromBody(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?osCsid=abc", nil)
	req := NewRequest(r)
	assert.Nil(t, req.Form)
	assert.Equal(t, []string{"abc"}, req.candidates("osCsid"))
}

func TestNewRequest_Transport(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.TLS = &tls.ConnectionState{}
	assert.Equal(t, Secure, NewRequest(r).Transport)
	assert.Equal(t, "https", Secure.String())
	assert.Equal(t, "http", Plain.String())

	// Untrusted by default.
	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Forwarded-Proto", "https")
	assert.Equal(t, Plain, NewRequest(r).Transport)
}

func TestRequest_Sane(t *testing.T) {
	assert.True(t, Request{}.sane("osCsid"))
	assert.Empty(t, Request{}.candidate("osCsid"))

	assert.False(t, Request{Cookies: map[string]string{"osCsid": ""}}.sane("osCsid"))
	assert.False(t, Request{Form: url.Values{"osCsid": {"a/b"}}}.sane("osCsid"))

	// Other names are not inspected.
	assert.True(t, Request{Query: url.Values{"page": {"a b"}}}.sane("osCsid"))
}

func TestNewRequest_KeepsUndecodableValues(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?osCsid=%zz&page=2&flag", nil)
	req := NewRequest(r)

	assert.Equal(t, []string{"%zz"}, req.Query["osCsid"])
	assert.Equal(t, []string{"2"}, req.Query["page"])
	assert.Equal(t, []string{""}, req.Query["flag"])
	assert.False(t, req.sane("osCsid"))
}

func TestNewRequest_BodyWithMalformedQuery(t *testing.T) {
	body := strings.NewReader("osCsid=bad!id&qty=%zz")
	r := httptest.NewRequest(http.MethodPost, "/?x=%zz", body)
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	req := NewRequest(r)
	assert.Equal(t, []string{"bad!id"}, req.Form["osCsid"])
	assert.Equal(t, []string{"%zz"}, req.Form["qty"])

	// The body is still readable by the handler.
	require.NoError(t, r.ParseForm())
	assert.Equal(t, "bad!id", r.PostForm.Get("osCsid"))
}

func TestNewRequest_MultipartBody(t *testing.T) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("osCsid", "bad!id"))
	require.NoError(t, mw.Close())

	r := httptest.NewRequest(http.MethodPost, "/checkout?x=%zz", &buf)
	r.Header.Set("Content-Type", mw.FormDataContentType())

	req := NewRequest(r)
	assert.Equal(t, []string{"bad!id"}, req.Form["osCsid"])
}

func TestNewRequest_RawCookies(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Add("Cookie", `osCsid=ab\cd; theme="dark"`)
	r.Header.Add("Cookie", "osCsid=abc123; lang")

	req := NewRequest(r)

	v, ok := req.Cookie("osCsid")
	assert.True(t, ok)
	assert.Equal(t, `ab\cd`, v)

	v, _ = req.Cookie("theme")
	assert.Equal(t, "dark", v)

	v, ok = req.Cookie("lang")
	assert.True(t, ok)
	assert.Empty(t, v)
}
