package config

import (
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/datarhei/rtsp/glob"
)

type value interface {
	// String returns a string representation of the value.
	String() string

	// Set a new value for the value. Returns an
	// error if the given string representation can't
	// be transformed to the value.
	Set(string) error

	// Validate the value. The returned error will
	// indicate what is wrong with the current value.
	Validate() error

	// IsEmpty returns whether the value represents an empty
	// representation for that value.
	IsEmpty() bool
}

var portRegexp = regexp.MustCompile("^[0-9]+$")

// splitList splits val by separator and drops empty elements.
func splitList(val, separator string) []string {
	list := []string{}

	for _, elm := range strings.Split(val, separator) {
		elm = strings.TrimSpace(elm)
		if len(elm) != 0 {
			list = append(list, elm)
		}
	}

	return list
}

// string

type stringValue string

func newStringValue(p *string, val string) *stringValue {
	*p = val
	return (*stringValue)(p)
}

func (s *stringValue) Set(val string) error {
	*s = stringValue(val)
	return nil
}

func (s *stringValue) String() string {
	return string(*s)
}

func (s *stringValue) Validate() error {
	return nil
}

func (s *stringValue) IsEmpty() bool {
	return len(string(*s)) == 0
}

// one string out of a list of allowed strings

type enumValue struct {
	p       *string
	allowed []string
}

func newEnumValue(p *string, val string, allowed []string) *enumValue {
	*p = val
	return &enumValue{p: p, allowed: allowed}
}

func (s *enumValue) Set(val string) error {
	val = strings.ToLower(strings.TrimSpace(val))

	for _, a := range s.allowed {
		if a == val {
			*s.p = val
			return nil
		}
	}

	return fmt.Errorf("'%s' is not one of %s", val, strings.Join(s.allowed, ", "))
}

func (s *enumValue) String() string {
	return *s.p
}

func (s *enumValue) Validate() error {
	for _, a := range s.allowed {
		if a == *s.p {
			return nil
		}
	}

	return fmt.Errorf("'%s' is not one of %s", *s.p, strings.Join(s.allowed, ", "))
}

func (s *enumValue) IsEmpty() bool {
	return len(*s.p) == 0
}

// address (host?:port)

type addressValue string

func newAddressValue(p *string, val string) *addressValue {
	*p = val
	return (*addressValue)(p)
}

func (s *addressValue) Set(val string) error {
	// Only a port number
	if portRegexp.MatchString(val) {
		val = ":" + val
	}

	*s = addressValue(val)
	return nil
}

func (s *addressValue) String() string {
	return string(*s)
}

func (s *addressValue) Validate() error {
	_, port, err := net.SplitHostPort(string(*s))
	if err != nil {
		return err
	}

	if !portRegexp.MatchString(port) {
		return fmt.Errorf("the port must be numerical")
	}

	return nil
}

func (s *addressValue) IsEmpty() bool {
	return s.Validate() != nil
}

// array of strings

type stringListValue struct {
	p         *[]string
	separator string
	validate  func(elm string) error
}

func newStringListValue(p *[]string, val []string, separator string) *stringListValue {
	*p = val
	return &stringListValue{
		p:         p,
		separator: separator,
	}
}

func (s *stringListValue) Set(val string) error {
	*s.p = splitList(val, s.separator)
	return nil
}

func (s *stringListValue) String() string {
	if s.IsEmpty() {
		return "(empty)"
	}

	return strings.Join(*s.p, s.separator)
}

func (s *stringListValue) Validate() error {
	if s.validate == nil {
		return nil
	}

	for _, elm := range *s.p {
		if err := s.validate(elm); err != nil {
			return err
		}
	}

	return nil
}

func (s *stringListValue) IsEmpty() bool {
	return len(*s.p) == 0
}

// array of CIDR notation IP adresses

func newCIDRListValue(p *[]string, val []string, separator string) *stringListValue {
	v := newStringListValue(p, val, separator)
	v.validate = func(cidr string) error {
		_, _, err := net.ParseCIDR(cidr)
		return err
	}

	return v
}

// array of "user:password" credentials

func newUserListValue(p *[]string, val []string, separator string) *stringListValue {
	v := newStringListValue(p, val, separator)
	v.validate = func(elm string) error {
		user, _, found := strings.Cut(elm, ":")
		if !found || len(user) == 0 {
			return fmt.Errorf("'%s' is not of the form user:password", user)
		}

		return nil
	}

	return v
}

// array of glob patterns

func newGlobListValue(p *[]string, val []string, separator string) *stringListValue {
	v := newStringListValue(p, val, separator)
	v.validate = func(pattern string) error {
		_, err := glob.Compile(pattern)
		if err != nil {
			return fmt.Errorf("invalid pattern '%s': %w", pattern, err)
		}

		return nil
	}

	return v
}

// boolean

type boolValue bool

func newBoolValue(p *bool, val bool) *boolValue {
	*p = val
	return (*boolValue)(p)
}

func (b *boolValue) Set(val string) error {
	v, err := strconv.ParseBool(val)
	if err != nil {
		return err
	}
	*b = boolValue(v)
	return nil
}

func (b *boolValue) String() string {
	return strconv.FormatBool(bool(*b))
}

func (b *boolValue) Validate() error {
	return nil
}

func (b *boolValue) IsEmpty() bool {
	return !bool(*b)
}

// int

type intValue int

func newIntValue(p *int, val int) *intValue {
	*p = val
	return (*intValue)(p)
}

func (i *intValue) Set(val string) error {
	v, err := strconv.Atoi(val)
	if err != nil {
		return err
	}
	*i = intValue(v)
	return nil
}

func (i *intValue) String() string {
	return strconv.Itoa(int(*i))
}

func (i *intValue) Validate() error {
	return nil
}

func (i *intValue) IsEmpty() bool {
	return int(*i) == 0
}

// int64

type int64Value int64

func newInt64Value(p *int64, val int64) *int64Value {
	*p = val
	return (*int64Value)(p)
}

func (u *int64Value) Set(val string) error {
	v, err := strconv.ParseInt(val, 0, 64)
	if err != nil {
		return err
	}
	*u = int64Value(v)
	return nil
}

func (u *int64Value) String() string {
	return strconv.FormatInt(int64(*u), 10)
}

func (u *int64Value) Validate() error {
	return nil
}

func (u *int64Value) IsEmpty() bool {
	return int64(*u) == 0
}

// uint64

type uint64Value uint64

func newUint64Value(p *uint64, val uint64) *uint64Value {
	*p = val
	return (*uint64Value)(p)
}

func (u *uint64Value) Set(val string) error {
	v, err := strconv.ParseUint(val, 0, 64)
	if err != nil {
		return err
	}
	*u = uint64Value(v)
	return nil
}

func (u *uint64Value) String() string {
	return strconv.FormatUint(uint64(*u), 10)
}

func (u *uint64Value) Validate() error {
	return nil
}

func (u *uint64Value) IsEmpty() bool {
	return uint64(*u) == 0
}

// network port

type portValue int

func newPortValue(p *int, val int) *portValue {
	*p = val
	return (*portValue)(p)
}

func (i *portValue) Set(val string) error {
	v, err := strconv.Atoi(val)
	if err != nil {
		return err
	}
	*i = portValue(v)
	return nil
}

func (i *portValue) String() string {
	return strconv.Itoa(int(*i))
}

func (i *portValue) Validate() error {
	val := int(*i)

	if val < 0 || val >= (1<<16) {
		return fmt.Errorf("%d is not in the range of [0, %d]", val, 1<<16-1)
	}

	return nil
}

func (i *portValue) IsEmpty() bool {
	return int(*i) == 0
}

// time

type timeValue time.Time

func newTimeValue(p *time.Time, val time.Time) *timeValue {
	*p = val
	return (*timeValue)(p)
}

func (u *timeValue) Set(val string) error {
	v, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return err
	}
	*u = timeValue(v)
	return nil
}

func (u *timeValue) String() string {
	return time.Time(*u).Format(time.RFC3339)
}

func (u *timeValue) Validate() error {
	return nil
}

func (u *timeValue) IsEmpty() bool {
	return time.Time(*u).IsZero()
}
