package rtsp

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/datarhei/rtsp/mem"
)

const (
	MaxLineLength  = 4096
	MaxHeaderLines = 256
	MaxBodySize    = 8 << 20
)

var (
	ErrMalformed       = errors.New("malformed message")
	ErrMessageTooLarge = errors.New("message too large")
)

// ReadMessage reads a request or a response from r. Empty lines before the start
// line are skipped. Header lines without a colon are ignored. A body is read only
// if a numeric Content-Length header is present.
func ReadMessage(r *bufio.Reader) (Message, error) {
	var line string
	var err error

	for len(line) == 0 {
		line, err = readLine(r)
		if err != nil {
			return nil, err
		}
	}

	m, err := ParseStartLine(line)
	if err != nil {
		return nil, err
	}

	header := m.Header()

	for {
		line, err = readLine(r)
		if err != nil {
			return nil, eof(err)
		}

		if len(line) == 0 {
			break
		}

		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}

		key = strings.TrimSpace(key)
		if len(key) == 0 {
			continue
		}

		if header.Len() >= MaxHeaderLines {
			return nil, fmt.Errorf("more than %d header lines: %w", MaxHeaderLines, ErrMessageTooLarge)
		}

		header.Add(key, strings.TrimSpace(value))
	}

	length, ok := m.ContentLength()
	if !ok || length == 0 {
		return m, nil
	}

	if length > MaxBodySize {
		return nil, fmt.Errorf("body of %d bytes: %w", length, ErrMessageTooLarge)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, eof(err)
	}

	m.SetBody(body)

	return m, nil
}

// ParseStartLine returns an empty request or response for the given start line.
// Lines starting with "RTSP/" are status lines, all other lines are request lines.
// Only malformed status lines are an error.
func ParseStartLine(line string) (Message, error) {
	if strings.HasPrefix(line, "RTSP/") {
		parts := strings.SplitN(line, " ", 3)
		if len(parts) < 2 {
			return nil, fmt.Errorf("status line '%s': %w", line, ErrMalformed)
		}

		code, err := strconv.Atoi(parts[1])
		if err != nil || code < 100 || code > 999 {
			return nil, fmt.Errorf("status code '%s': %w", parts[1], ErrMalformed)
		}

		res := &Response{
			StatusCode: code,
			Proto:      parts[0],
		}

		if len(parts) == 3 {
			res.Reason = strings.TrimSpace(parts[2])
		}

		return res, nil
	}

	// Anything else is a request line. Lines that don't carry an RTSP version
	// yield an Unknown request such that the peer can be answered.
	parts := strings.Fields(line)

	req := &Request{
		Method: Unknown,
	}

	if len(parts) == 0 {
		return req, nil
	}

	req.MethodName = parts[0]

	if n := len(parts); n >= 3 && strings.HasPrefix(parts[n-1], "RTSP/") {
		req.Method = ParseMethod(parts[0])
		req.URL = strings.Join(parts[1:n-1], " ")
		req.Proto = parts[n-1]
	} else if len(parts) >= 2 {
		req.URL = parts[1]
	}

	if req.URL == "*" {
		req.URL = ""
	}

	return req, nil
}

// readLine reads a line terminated by LF or CRLF and returns it without the
// terminator.
func readLine(r *bufio.Reader) (string, error) {
	var line []byte

	for {
		chunk, err := r.ReadSlice('\n')
		if len(line)+len(chunk) > MaxLineLength+2 {
			return "", fmt.Errorf("line longer than %d bytes: %w", MaxLineLength, ErrMessageTooLarge)
		}

		line = append(line, chunk...)

		if err == nil {
			break
		}

		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}

		if errors.Is(err, io.EOF) && len(line) != 0 {
			return "", io.ErrUnexpectedEOF
		}

		return "", err
	}

	line = line[:len(line)-1]
	if n := len(line); n != 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}

	return string(line), nil
}

// eof turns an io.EOF in the middle of a message into io.ErrUnexpectedEOF.
func eof(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}

	return err
}

// Marshal returns the wire format of m. Content-Length is written with the length of
// the body and omitted for an empty body, regardless of the header in m.
func Marshal(m Message) []byte {
	buf := mem.Get()
	defer mem.Put(buf)

	marshal(buf, m)

	return buf.Clone()
}

// WriteMessage writes the wire format of m to w with a single call to Write.
func WriteMessage(w io.Writer, m Message) error {
	buf := mem.Get()
	defer mem.Put(buf)

	marshal(buf, m)

	_, err := buf.WriteTo(w)

	return err
}

func marshal(buf *mem.Buffer, m Message) {
	body := m.Body()
	hasLength := false

	buf.WriteString(m.startLine())
	buf.WriteString("\r\n")

	m.Header().Range(func(key, value string) bool {
		if strings.EqualFold(key, "Content-Length") {
			if len(body) == 0 || hasLength {
				return true
			}

			hasLength = true
			value = strconv.Itoa(len(body))
		}

		buf.WriteString(key)
		buf.WriteString(": ")
		buf.WriteString(value)
		buf.WriteString("\r\n")

		return true
	})

	if len(body) != 0 && !hasLength {
		buf.WriteString("Content-Length: ")
		buf.WriteString(strconv.Itoa(len(body)))
		buf.WriteString("\r\n")
	}

	buf.WriteString("\r\n")
	buf.Write(body)
}
