package auth

import (
	"encoding/base64"
	"errors"
	"strings"

	"github.com/datarhei/rtsp/rtsp"
)

var ErrUnsupportedScheme = errors.New("unsupported authentication scheme")

// Sender adds credentials to requests in response to a challenge.
type Sender struct {
	user string
	pass string

	scheme string
	realm  string
	nonce  string
}

// NewSender returns a Sender for the given WWW-Authenticate values. Digest is
// preferred over Basic if both are offered.
func NewSender(challenges []string, user, pass string) (*Sender, error) {
	var basic *Sender

	for _, c := range challenges {
		scheme, value, _ := strings.Cut(strings.TrimSpace(c), " ")
		params := ParseParams(value)

		switch strings.ToLower(scheme) {
		case "digest":
			return &Sender{
				user:   user,
				pass:   pass,
				scheme: "Digest",
				realm:  params["realm"],
				nonce:  params["nonce"],
			}, nil
		case "basic":
			basic = &Sender{
				user:   user,
				pass:   pass,
				scheme: "Basic",
				realm:  params["realm"],
			}
		}
	}

	if basic == nil {
		return nil, ErrUnsupportedScheme
	}

	return basic, nil
}

// Authorize sets the Authorization header of req.
func (s *Sender) Authorize(req *rtsp.Request) {
	if s.scheme == "Basic" {
		token := base64.StdEncoding.EncodeToString([]byte(s.user + ":" + s.pass))
		req.Header().Set("Authorization", "Basic "+token)
		return
	}

	uri := req.URL
	if len(uri) == 0 {
		uri = "*"
	}

	response := DigestResponse(s.user, s.realm, s.pass, s.nonce, req.Method.String(), uri)

	req.Header().Set("Authorization", `Digest username="`+s.user+`", realm="`+s.realm+`", nonce="`+s.nonce+`", uri="`+uri+`", response="`+response+`"`)
}
