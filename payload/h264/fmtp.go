package h264

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/datarhei/rtsp/payload"
)

// ParseFmtp parses the format parameters of an H.264 media, "key=value;...".
// Keys are lower-cased. Empty entries are skipped.
func ParseFmtp(s string) map[string]string {
	params := map[string]string{}

	for _, p := range strings.Split(s, ";") {
		p = strings.TrimSpace(p)
		if len(p) == 0 {
			continue
		}

		key, value, _ := strings.Cut(p, "=")
		params[strings.ToLower(strings.TrimSpace(key))] = strings.TrimSpace(value)
	}

	return params
}

// DecodeSpropParameterSets decodes the comma separated, base64 encoded parameter
// sets of the sprop-parameter-sets format parameter.
func DecodeSpropParameterSets(s string) ([][]byte, error) {
	sets := [][]byte{}

	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if len(p) == 0 {
			continue
		}

		set, err := base64.StdEncoding.DecodeString(p)
		if err != nil {
			// Some encoders omit the padding.
			set, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(p, "="))
			if err != nil {
				return nil, fmt.Errorf("parameter set '%s': %w", p, payload.ErrMalformed)
			}
		}

		sets = append(sets, set)
	}

	return sets, nil
}

// NewFromFmtp returns a Reassembler with the parameter sets of the format
// parameters, if there are any.
func NewFromFmtp(fmtp string) (*Reassembler, error) {
	r := New()

	sprop, ok := ParseFmtp(fmtp)["sprop-parameter-sets"]
	if !ok {
		return r, nil
	}

	sets, err := DecodeSpropParameterSets(sprop)
	if err != nil {
		return nil, err
	}

	r.SetParameterSets(sets)

	return r, nil
}
