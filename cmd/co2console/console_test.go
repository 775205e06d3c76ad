package main

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/goburrow/serial"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var at = time.Date(2024, 3, 1, 9, 41, 7, 0, time.UTC)

func TestParseReading(t *testing.T) {
	r, ok := parseReading(`{"level":"info","component":"app","co2":812,"status":0,"temp":"+21.5000","message":"reading"}`)
	require.True(t, ok)
	assert.Equal(t, uint16(812), *r.CO2)
	assert.Equal(t, "09:41:07 CO2=812ppm status=ok temp=+21.5000", r.format(at))

	r, ok = parseReading(`{"component":"app","co2":1500,"status":4,"message":"reading"}`)
	require.True(t, ok)
	assert.Equal(t, "09:41:07 CO2=1500ppm status=err(0x0004)", r.format(at))

	for _, line := range []string{
		"",
		"plain text",
		`{"component":"irq","message":"nobody cared"}`,
		`{"co2":`,
	} {
		_, ok := parseReading(line)
		assert.False(t, ok, line)
	}
}

func TestConsoleRun(t *testing.T) {
	in := strings.Join([]string{
		`{"level":"info","component":"app","version":"dev","message":"boot"}`,
		`{"level":"info","component":"app","co2":640,"status":0,"message":"reading"}`,
		"co2mon: display: nack\r",
		`{"level":"info","component":"app","co2":655,"status":0,"message":"reading"}`,
	}, "\n")

	var out, rows bytes.Buffer
	c := &console{out: &out, now: func() time.Time { return at }, record: newRecorder(&rows)}
	require.NoError(t, c.run(strings.NewReader(in)))

	assert.Equal(t, strings.Join([]string{
		`{"level":"info","component":"app","version":"dev","message":"boot"}`,
		"09:41:07 CO2=640ppm status=ok",
		"co2mon: display: nack",
		"09:41:07 CO2=655ppm status=ok",
		"",
	}, "\n"), out.String())
	assert.Equal(t, "2024-03-01T09:41:07Z,640,0\n2024-03-01T09:41:07Z,655,0\n", rows.String())
}

type flakyPort struct {
	chunks []string
}

func (p *flakyPort) Read(b []byte) (int, error) {
	if len(p.chunks) == 0 {
		return 0, io.EOF
	}
	c := p.chunks[0]
	p.chunks = p.chunks[1:]
	if c == "" {
		return 0, serial.ErrTimeout
	}
	return copy(b, c), nil
}

func TestPatientSkipsTimeouts(t *testing.T) {
	in := patient{r: &flakyPort{chunks: []string{"", "ab", "", "", "c"}}}
	b, err := io.ReadAll(in)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(b))

	_, err = patient{r: &flakyPort{}}.Read(make([]byte, 4))
	assert.True(t, errors.Is(err, io.EOF))
}

func TestDumpHex(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, dumpHex(&out, strings.NewReader("\xFE\x04\x08")))
	assert.Contains(t, out.String(), "fe 04 08")
}
