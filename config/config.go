// Package config implements types for handling the configuation for the app.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	haikunator "github.com/atrox/haikunatorgo/v2"
	"github.com/google/uuid"
)

type variable struct {
	value       value    // The actual value
	defVal      string   // The default value in string representation
	name        string   // A name for this value
	envName     string   // The environment variable that corresponds to this value
	envAltNames []string // Alternative environment variable names
	description string   // A desriptions for this value
	required    bool     // Whether a non-empty value is required
	disguise    bool     // Whether the value should be disguised if printed
	merged      bool     // Whether this value has been replaced by its corresponding environment variable
}

type Variable struct {
	Value       string
	Name        string
	EnvName     string
	Description string
	Merged      bool
}

type message struct {
	message  string   // The log message
	variable Variable // The config field this message refers to
	level    string   // The loglevel for this message
}

// Data is the actual configuration data for the app
type Data struct {
	CreatedAt time.Time `json:"created_at"`
	Version   int64     `json:"version"`
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Log       struct {
		Level    string   `json:"level"`
		Format   string   `json:"format"`
		Topics   []string `json:"topics"`
		MaxLines int      `json:"max_lines"`
	} `json:"log"`
	RTSP struct {
		Address string `json:"address"`
		Realm   string `json:"realm"`
		Auth    struct {
			Enable bool     `json:"enable"`
			Scheme string   `json:"scheme"`
			Users  []string `json:"users"`
			Paths  []string `json:"paths"`
		} `json:"auth"`
		Access struct {
			Allow []string `json:"allow"`
			Block []string `json:"block"`
		} `json:"access"`
		UDP struct {
			PortMin int `json:"port_min"`
			PortMax int `json:"port_max"`
		} `json:"udp"`
		SessionTimeout  int    `json:"session_timeout_sec"`
		MaxSessions     uint64 `json:"max_sessions"`
		EgressRateLimit int64  `json:"egress_ratelimit_kbit"`
	} `json:"rtsp"`
	API struct {
		Enable  bool   `json:"enable"`
		Address string `json:"address"`
		Auth    struct {
			Username string `json:"username"`
			Password string `json:"password"`
		} `json:"auth"`
	} `json:"api"`
	Metrics struct {
		EnablePrometheus bool `json:"enable_prometheus"`
	} `json:"metrics"`
}

// Config is a wrapper for Data
type Config struct {
	vars []*variable
	logs []message

	Data
}

// New returns a Config which is initialized with its default values
func New() *Config {
	data := &Config{}

	data.init()

	return data
}

// NewConfigFrom returns a clone of a Config
func NewConfigFrom(d *Config) *Config {
	data := New()

	data.Data = d.Data

	data.Log.Topics = copyStringSlice(d.Log.Topics)
	data.RTSP.Auth.Users = copyStringSlice(d.RTSP.Auth.Users)
	data.RTSP.Auth.Paths = copyStringSlice(d.RTSP.Auth.Paths)
	data.RTSP.Access.Allow = copyStringSlice(d.RTSP.Access.Allow)
	data.RTSP.Access.Block = copyStringSlice(d.RTSP.Access.Block)

	for i, v := range d.vars {
		data.vars[i].merged = v.merged
	}

	return data
}

func (d *Config) init() {
	d.val(newInt64Value(&d.Version, 1), "version", "", nil, "Configuration layout version", true, false)
	d.val(newTimeValue(&d.CreatedAt, time.Now()), "created_at", "", nil, "Configuration creation time", false, false)
	d.val(newStringValue(&d.ID, uuid.New().String()), "id", "RTSP_ID", nil, "ID for this instance", true, false)
	d.val(newStringValue(&d.Name, haikunator.New().Haikunate()), "name", "RTSP_NAME", nil, "A human readable name for this instance", false, false)

	// Log
	d.val(newEnumValue(&d.Log.Level, "info", []string{"debug", "info", "warn", "error", "silent"}), "log.level", "RTSP_LOG_LEVEL", nil, "Loglevel: silent, error, warn, info, debug", false, false)
	d.val(newEnumValue(&d.Log.Format, "console", []string{"console", "json"}), "log.format", "RTSP_LOG_FORMAT", nil, "Format of the log output: console, json", false, false)
	d.val(newStringListValue(&d.Log.Topics, []string{}, ","), "log.topics", "RTSP_LOG_TOPICS", nil, "Show only selected log topics", false, false)
	d.val(newIntValue(&d.Log.MaxLines, 1000), "log.max_lines", "RTSP_LOG_MAXLINES", nil, "Number of latest log lines to keep in memory", false, false)

	// RTSP
	d.val(newAddressValue(&d.RTSP.Address, ":8554"), "rtsp.address", "RTSP_ADDRESS", nil, "RTSP server listen address", true, false)
	d.val(newStringValue(&d.RTSP.Realm, "datarhei"), "rtsp.realm", "RTSP_REALM", nil, "Realm for the authentication", false, false)
	d.val(newBoolValue(&d.RTSP.Auth.Enable, false), "rtsp.auth.enable", "RTSP_AUTH_ENABLE", nil, "Enable authentication for publishing and playing", false, false)
	d.val(newEnumValue(&d.RTSP.Auth.Scheme, "digest", []string{"basic", "digest"}), "rtsp.auth.scheme", "RTSP_AUTH_SCHEME", nil, "Authentication scheme: basic, digest", false, false)
	d.val(newUserListValue(&d.RTSP.Auth.Users, []string{}, ","), "rtsp.auth.users", "RTSP_AUTH_USERS", nil, "Comma separated list of user:password", false, true)
	d.val(newGlobListValue(&d.RTSP.Auth.Paths, []string{}, ","), "rtsp.auth.paths", "RTSP_AUTH_PATHS", nil, "Comma separated list of glob patterns of protected paths, empty for all", false, false)
	d.val(newCIDRListValue(&d.RTSP.Access.Allow, []string{}, ","), "rtsp.access.allow", "RTSP_ACCESS_ALLOW", nil, "List of IPs in CIDR notation that are allowed to connect", false, false)
	d.val(newCIDRListValue(&d.RTSP.Access.Block, []string{}, ","), "rtsp.access.block", "RTSP_ACCESS_BLOCK", nil, "List of IPs in CIDR notation that are not allowed to connect", false, false)
	d.val(newPortValue(&d.RTSP.UDP.PortMin, 0), "rtsp.udp.port_min", "RTSP_UDP_PORT_MIN", nil, "Min. server port for UDP delivery, 0 disables UDP", false, false)
	d.val(newPortValue(&d.RTSP.UDP.PortMax, 0), "rtsp.udp.port_max", "RTSP_UDP_PORT_MAX", nil, "Max. server port for UDP delivery", false, false)
	d.val(newIntValue(&d.RTSP.SessionTimeout, 60), "rtsp.session_timeout_sec", "RTSP_SESSION_TIMEOUT_SEC", nil, "Timeout for an idle session", false, false)
	d.val(newUint64Value(&d.RTSP.MaxSessions, 0), "rtsp.max_sessions", "RTSP_MAX_SESSIONS", nil, "Max. allowed number of simultaneous sessions, 0 for unlimited", false, false)
	d.val(newInt64Value(&d.RTSP.EgressRateLimit, 0), "rtsp.egress_ratelimit_kbit", "RTSP_EGRESS_RATELIMIT_KBIT", nil, "Max. outgoing bandwidth per connection in kbit/s, 0 for unlimited", false, false)

	// API
	d.val(newBoolValue(&d.API.Enable, true), "api.enable", "RTSP_API_ENABLE", nil, "Enable the HTTP API", false, false)
	d.val(newAddressValue(&d.API.Address, ":8080"), "api.address", "RTSP_API_ADDRESS", nil, "HTTP API listen address", false, false)
	d.val(newStringValue(&d.API.Auth.Username, ""), "api.auth.username", "RTSP_API_AUTH_USERNAME", nil, "Username for the HTTP API, empty for no authentication", false, false)
	d.val(newStringValue(&d.API.Auth.Password, ""), "api.auth.password", "RTSP_API_AUTH_PASSWORD", nil, "Password for the HTTP API", false, true)

	// Metrics
	d.val(newBoolValue(&d.Metrics.EnablePrometheus, false), "metrics.enable_prometheus", "RTSP_METRICS_ENABLE_PROMETHEUS", nil, "Enable prometheus endpoint /metrics", false, false)
}

func (d *Config) val(val value, name, envName string, envAltNames []string, description string, required, disguise bool) {
	d.vars = append(d.vars, &variable{
		value:       val,
		defVal:      val.String(),
		name:        name,
		envName:     envName,
		envAltNames: envAltNames,
		description: description,
		required:    required,
		disguise:    disguise,
	})
}

func (d *Config) log(level string, v *variable, format string, args ...interface{}) {
	variable := Variable{
		Value:       v.value.String(),
		Name:        v.name,
		EnvName:     v.envName,
		Description: v.description,
		Merged:      v.merged,
	}

	if v.disguise {
		variable.Value = "***"
	}

	l := message{
		message:  fmt.Sprintf(format, args...),
		variable: variable,
		level:    level,
	}

	d.logs = append(d.logs, l)
}

// Merge merges the values of the known environment variables into the configuration
func (d *Config) Merge() {
	for _, v := range d.vars {
		if len(v.envName) == 0 {
			continue
		}

		var envval string
		var ok bool

		envval, ok = os.LookupEnv(v.envName)
		if !ok {
			foundAltName := false

			for _, envName := range v.envAltNames {
				envval, ok = os.LookupEnv(envName)
				if ok {
					foundAltName = true
					d.log("warn", v, "deprecated name, please use %s", v.envName)
					break
				}
			}

			if !foundAltName {
				continue
			}
		}

		err := v.value.Set(envval)
		if err != nil {
			d.log("error", v, "%s", err.Error())
		}

		v.merged = true
	}
}

// Validate validates the current state of the Config for completeness and sanity. Errors are
// written to the log. Use resetLogs to indicate to reset the logs prior validation.
func (d *Config) Validate(resetLogs bool) {
	if resetLogs {
		d.logs = nil
	}

	if d.Version != 1 {
		d.log("error", d.findVariable("version"), "unknown configuration layout version")

		return
	}

	for _, v := range d.vars {
		d.log("info", v, "%s", "")

		err := v.value.Validate()
		if err != nil {
			d.log("error", v, "%s", err.Error())
		}

		if v.required && v.value.IsEmpty() {
			d.log("error", v, "a value is required")
		}
	}

	// Individual sanity checks

	// If authentication is enabled, at least one user has to be defined
	if d.RTSP.Auth.Enable && len(d.RTSP.Auth.Users) == 0 {
		d.log("error", d.findVariable("rtsp.auth.users"), "at least one user must be set if rtsp.auth.enable is set")
	}

	// If UDP is enabled, check that the port range is sane
	if d.RTSP.UDP.PortMin != 0 || d.RTSP.UDP.PortMax != 0 {
		if d.RTSP.UDP.PortMin >= d.RTSP.UDP.PortMax {
			d.log("error", d.findVariable("rtsp.udp.port_min"), "must be smaller than rtsp.udp.port_max")
		}
	}

	// The session timeout has to be set to a useful value
	if d.RTSP.SessionTimeout < 1 {
		d.log("error", d.findVariable("rtsp.session_timeout_sec"), "must be equal or greater than 1")
	}

	if d.RTSP.EgressRateLimit < 0 {
		d.log("error", d.findVariable("rtsp.egress_ratelimit_kbit"), "must be equal or greater than 0")
	}

	// If a username for the API is set, a password is required
	if len(d.API.Auth.Username) != 0 && len(d.API.Auth.Password) == 0 {
		d.log("error", d.findVariable("api.auth.password"), "must be set if api.auth.username is set")
	}
}

// Credentials returns the users of rtsp.auth.users by their name.
func (d *Config) Credentials() map[string]string {
	credentials := map[string]string{}

	for _, u := range d.RTSP.Auth.Users {
		user, pass, found := strings.Cut(u, ":")
		if !found {
			continue
		}

		credentials[user] = pass
	}

	return credentials
}

func (d *Config) findVariable(name string) *variable {
	for _, v := range d.vars {
		if v.name == name {
			return v
		}
	}

	return nil
}

// Messages calls for each log entry the provided callback. The level has the values 'error', 'warn', or 'info'.
// The name is the name of the configuration value, e.g. 'rtsp.auth.enable'. The message is the log message.
func (d *Config) Messages(logger func(level string, v Variable, message string)) {
	for _, l := range d.logs {
		logger(l.level, l.variable, l.message)
	}
}

// HasErrors returns whether there are some error messages in the log.
func (d *Config) HasErrors() bool {
	for _, l := range d.logs {
		if l.level == "error" {
			return true
		}
	}

	return false
}

// Overrides returns a list of configuration value names that have been overriden by an environment variable.
func (d *Config) Overrides() []string {
	overrides := []string{}

	for _, v := range d.vars {
		if v.merged {
			overrides = append(overrides, v.name)
		}
	}

	return overrides
}

func copyStringSlice(src []string) []string {
	dst := make([]string, len(src))
	copy(dst, src)

	return dst
}
