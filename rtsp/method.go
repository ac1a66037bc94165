package rtsp

// Method is the method of a request.
type Method int

const (
	Unknown Method = iota
	Options
	Describe
	Announce
	Setup
	Play
	Pause
	Teardown
	GetParameter
	SetParameter
	Record
	Redirect
)

var methodNames = [...]string{
	Unknown:      "UNKNOWN",
	Options:      "OPTIONS",
	Describe:     "DESCRIBE",
	Announce:     "ANNOUNCE",
	Setup:        "SETUP",
	Play:         "PLAY",
	Pause:        "PAUSE",
	Teardown:     "TEARDOWN",
	GetParameter: "GET_PARAMETER",
	SetParameter: "SET_PARAMETER",
	Record:       "RECORD",
	Redirect:     "REDIRECT",
}

func (m Method) String() string {
	if m < 0 || int(m) >= len(methodNames) {
		return methodNames[Unknown]
	}

	return methodNames[m]
}

// ParseMethod maps a method token to a Method. The match is case-sensitive.
// Unrecognized tokens yield Unknown.
func ParseMethod(s string) Method {
	for m, name := range methodNames {
		if Method(m) != Unknown && name == s {
			return Method(m)
		}
	}

	return Unknown
}
