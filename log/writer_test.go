package log

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testEvent(component string) *Event {
	return &Event{
		logger:    &logger{},
		Time:      time.Date(2009, time.November, 10, 23, 0, 0, 0, time.UTC),
		Level:     Linfo,
		Component: component,
		Caller:    "me",
		Message:   "hello world",
		Data:      map[string]interface{}{"foo": "bar"},
	}
}

func TestJSONWriter(t *testing.T) {
	buffer := bytes.Buffer{}

	writer := NewJSONWriter(&buffer, Linfo)
	writer.Write(testEvent("test"))

	require.Equal(t, `{"caller":"me","component":"test","foo":"bar","level":"INFO","message":"hello world","ts":"2009-11-10T23:00:00Z"}`+"\n", buffer.String())
}

func TestConsoleWriter(t *testing.T) {
	buffer := bytes.Buffer{}

	writer := NewConsoleWriter(&buffer, Linfo, false)
	writer.Write(testEvent("test"))

	require.Equal(t, `ts=2009-11-10T23:00:00Z level=INFO component="test" msg="hello world" foo="bar"`+"\n", buffer.String())
}

func TestTopicWriter(t *testing.T) {
	bufwriter := NewBufferWriter(Linfo, 10)
	writer1 := NewTopicWriter(bufwriter, []string{})
	writer2 := NewTopicWriter(bufwriter, []string{"foobar"})

	writer1.Write(testEvent("test"))
	writer2.Write(testEvent("test"))

	require.Equal(t, 1, len(bufwriter.Events()))

	writer1.Write(testEvent("foobar"))
	writer2.Write(testEvent("FooBar"))

	require.Equal(t, 3, len(bufwriter.Events()))
}

func TestMultiWriter(t *testing.T) {
	bufwriter1 := NewBufferWriter(Linfo, 10)
	bufwriter2 := NewBufferWriter(Lerror, 10)

	writer := NewMultiWriter(bufwriter1, bufwriter2)

	writer.Write(testEvent("test"))

	require.Equal(t, 1, len(bufwriter1.Events()))
	require.Equal(t, 0, len(bufwriter2.Events()))
}

func TestBufferWriterRing(t *testing.T) {
	bufwriter := NewBufferWriter(Linfo, 2)

	for i := 0; i < 5; i++ {
		bufwriter.Write(testEvent("test"))
	}

	require.Equal(t, 2, len(bufwriter.Events()))

	bufwriter.Close()

	require.Equal(t, 0, len(bufwriter.Events()))
}
