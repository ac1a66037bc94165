// Package auth implements Basic and Digest authentication for RTSP requests.
package auth

import (
	"crypto/md5"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"strings"

	"github.com/datarhei/rtsp/rtsp"
)

// Negotiator validates the credentials of a request.
type Negotiator interface {
	// Validate returns whether the request carries valid credentials.
	Validate(req *rtsp.Request) bool

	// Challenge returns the value for the WWW-Authenticate header.
	Challenge() string
}

// Unauthorized returns a 401 response to req with the challenge of n.
func Unauthorized(req *rtsp.Request, n Negotiator) *rtsp.Response {
	res := rtsp.NewResponseFor(req, rtsp.StatusUnauthorized)
	res.Header().Set("WWW-Authenticate", n.Challenge())

	return res
}

type basic struct {
	realm       string
	credentials map[string]string
}

// NewBasic returns a Negotiator for Basic authentication. credentials maps
// usernames to passwords.
func NewBasic(realm string, credentials map[string]string) Negotiator {
	b := &basic{
		realm:       realm,
		credentials: map[string]string{},
	}

	for user, pass := range credentials {
		b.credentials[user] = pass
	}

	return b
}

func (b *basic) Challenge() string {
	return `Basic realm="` + b.realm + `"`
}

func (b *basic) Validate(req *rtsp.Request) bool {
	scheme, value, _ := strings.Cut(req.Header().Get("Authorization"), " ")
	if !strings.EqualFold(scheme, "Basic") {
		return false
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(value))
	if err != nil {
		return false
	}

	user, _, _ := strings.Cut(string(decoded), ":")

	pass, ok := b.credentials[user]
	if !ok {
		return false
	}

	return subtle.ConstantTimeCompare(decoded, []byte(user+":"+pass)) == 1
}

type digest struct {
	realm       string
	nonce       string
	credentials map[string]string
}

// NewDigest returns a Negotiator for Digest authentication. The nonce is chosen
// once for the lifetime of the Negotiator.
func NewDigest(realm string, credentials map[string]string) Negotiator {
	d := &digest{
		realm:       realm,
		nonce:       newNonce(),
		credentials: map[string]string{},
	}

	for user, pass := range credentials {
		d.credentials[user] = pass
	}

	return d
}

func newNonce() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}

	return hex.EncodeToString(b)
}

func (d *digest) Challenge() string {
	return `Digest realm="` + d.realm + `", nonce="` + d.nonce + `"`
}

func (d *digest) Validate(req *rtsp.Request) bool {
	scheme, value, _ := strings.Cut(req.Header().Get("Authorization"), " ")
	if !strings.EqualFold(scheme, "Digest") {
		return false
	}

	params := ParseParams(value)

	if params["realm"] != d.realm || params["nonce"] != d.nonce {
		return false
	}

	pass, ok := d.credentials[params["username"]]
	if !ok {
		return false
	}

	// The response is computed over the uri parameter, which has to name the
	// requested resource.
	uri, ok := params["uri"]
	if !ok {
		uri = req.URL
	} else if !sameTarget(uri, req.URL) {
		return false
	}

	expected := DigestResponse(params["username"], d.realm, pass, d.nonce, req.MethodName, uri)

	return subtle.ConstantTimeCompare([]byte(expected), []byte(params["response"])) == 1
}

// sameTarget reports whether two request targets are equal. "*" and the empty
// target are the same.
func sameTarget(a, b string) bool {
	if a == "*" {
		a = ""
	}

	if b == "*" {
		b = ""
	}

	return a == b
}

// DigestResponse returns MD5(MD5(user:realm:pass):nonce:MD5(method:uri)) in hex.
func DigestResponse(user, realm, pass, nonce, method, uri string) string {
	ha1 := md5hex(user + ":" + realm + ":" + pass)
	ha2 := md5hex(method + ":" + uri)

	return md5hex(ha1 + ":" + nonce + ":" + ha2)
}

func md5hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// ParseParams parses comma separated key=value pairs as found in the
// Authorization and WWW-Authenticate headers. Values may be quoted. Keys are
// lower-cased.
func ParseParams(s string) map[string]string {
	params := map[string]string{}

	for len(s) != 0 {
		s = strings.TrimLeft(s, " ,")

		eq := strings.IndexByte(s, '=')
		if eq == -1 {
			break
		}

		key := strings.ToLower(strings.TrimSpace(s[:eq]))
		s = strings.TrimLeft(s[eq+1:], " ")

		var value string

		if strings.HasPrefix(s, `"`) {
			end := strings.IndexByte(s[1:], '"')
			if end == -1 {
				value, s = s[1:], ""
			} else {
				value, s = s[1:end+1], s[end+2:]
			}
		} else {
			end := strings.IndexByte(s, ',')
			if end == -1 {
				value, s = s, ""
			} else {
				value, s = s[:end], s[end:]
			}
			value = strings.TrimSpace(value)
		}

		params[key] = value
	}

	return params
}
