package log

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"
)

type Formatter interface {
	Bytes(e *Event) []byte
	String(e *Event) string
}

type jsonFormatter struct{}

func NewJSONFormatter() Formatter {
	return &jsonFormatter{}
}

func (f *jsonFormatter) Bytes(e *Event) []byte {
	data := make(map[string]interface{}, len(e.Data)+5)
	for k, v := range e.Data {
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		data[k] = v
	}

	data["ts"] = e.Time
	data["level"] = e.Level
	data["component"] = e.Component

	if len(e.Caller) != 0 {
		data["caller"] = e.Caller
	}

	if len(e.Message) != 0 {
		data["message"] = e.Message
	}

	line, err := json.Marshal(data)
	if err != nil {
		line, _ = json.Marshal(map[string]string{
			"ts":      e.Time.Format(time.RFC3339),
			"message": e.Message,
			"error":   err.Error(),
		})
	}

	return append(line, '\n')
}

func (f *jsonFormatter) String(e *Event) string {
	return string(f.Bytes(e))
}

type consoleFormatter struct {
	color bool
}

func NewConsoleFormatter(useColor bool) Formatter {
	return &consoleFormatter{
		color: useColor,
	}
}

func (f *consoleFormatter) Bytes(e *Event) []byte {
	return []byte(f.String(e))
}

func (f *consoleFormatter) String(e *Event) string {
	datetime := e.Time.UTC().Format(time.RFC3339)
	level := e.Level.String()

	if f.color {
		switch e.Level {
		case Ldebug:
			level = fmt.Sprintf("\033[35m%s\033[0m", level)
		case Linfo:
			level = fmt.Sprintf("\033[34m%s\033[0m", level)
		case Lwarn:
			level = fmt.Sprintf("\033[33m%s\033[0m", level)
		case Lerror:
			level = fmt.Sprintf("\033[31m\033[5m%s\033[0m", level)
		default:
		}
	}

	message := fmt.Sprintf("%s %s %s", f.writeKV("ts", datetime), f.writeKV("level", level), f.writeKV("component", f.quote(e.Component)))

	if len(e.Message) != 0 {
		message += fmt.Sprintf(" %s", f.writeKV("msg", f.quote(e.Message)))
	}

	keys := make([]string, 0, len(e.Data))
	for key := range e.Data {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	for _, key := range keys {
		message += fmt.Sprintf(" %s", f.writeKV(key, f.value(e.Data[key])))
	}

	message += "\n"

	return message
}

func (f *consoleFormatter) value(value interface{}) string {
	switch val := value.(type) {
	case bool:
		return strconv.FormatBool(val)
	case string:
		return f.quote(val)
	case error:
		return f.quote(val.Error())
	case fmt.Stringer:
		return f.quote(val.String())
	}

	if jsonvalue, err := json.Marshal(value); err == nil {
		return string(jsonvalue)
	} else {
		return f.quote(err.Error())
	}
}

func (f *consoleFormatter) writeKV(key string, value string) string {
	if !f.color {
		return fmt.Sprintf("%s=%s", key, value)
	}

	if key == "error" {
		value = "\033[31m" + value + "\033[0m"
	}

	return fmt.Sprintf("\033[90m%s=\033[0m%s", key, value)
}

func (f *consoleFormatter) quote(s string) string {
	return strconv.Quote(s)
}
