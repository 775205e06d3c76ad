package main

import (
	"bufio"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/goburrow/serial"
)

// reading is the subset of a firmware log record the console cares about.
type reading struct {
	Component string  `json:"component"`
	Message   string  `json:"message"`
	CO2       *uint16 `json:"co2"`
	Status    *uint16 `json:"status"`
	Temp      string  `json:"temp"`
}

// parseReading decodes a JSON log line carrying a co2 field.
func parseReading(line string) (reading, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "{") {
		return reading{}, false
	}
	var r reading
	if err := json.Unmarshal([]byte(line), &r); err != nil {
		return reading{}, false
	}
	if r.CO2 == nil {
		return reading{}, false
	}
	if r.Status == nil {
		r.Status = new(uint16)
	}
	return r, true
}

func (r reading) format(at time.Time) string {
	status := "ok"
	if *r.Status != 0 {
		status = fmt.Sprintf("err(0x%04X)", *r.Status)
	}
	s := fmt.Sprintf("%s CO2=%dppm status=%s", at.Format(time.TimeOnly), *r.CO2, status)
	if r.Temp != "" {
		s += " temp=" + r.Temp
	}
	return s
}

type recorder struct {
	w *csv.Writer
}

func newRecorder(w io.Writer) *recorder {
	return &recorder{w: csv.NewWriter(w)}
}

func (c *recorder) add(at time.Time, r reading) error {
	err := c.w.Write([]string{
		at.Format(time.RFC3339),
		strconv.Itoa(int(*r.CO2)),
		strconv.Itoa(int(*r.Status)),
	})
	if err != nil {
		return err
	}
	c.w.Flush()
	return c.w.Error()
}

type console struct {
	out    io.Writer
	now    func() time.Time
	record *recorder
}

// run decodes lines until in is exhausted. Readings are summarized, every
// other line is echoed verbatim.
func (c *console) run(in io.Reader) error {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		r, ok := parseReading(line)
		if !ok {
			fmt.Fprintln(c.out, line)
			continue
		}
		at := c.now()
		fmt.Fprintln(c.out, r.format(at))
		if c.record != nil {
			if err := c.record.add(at, r); err != nil {
				return fmt.Errorf("csv: %w", err)
			}
		}
	}
	return sc.Err()
}

func dumpHex(out io.Writer, in io.Reader) error {
	d := hex.Dumper(out)
	defer d.Close()
	_, err := io.Copy(d, in)
	return err
}

// patient hides read timeouts, so an idle line does not end the stream.
type patient struct {
	r io.Reader
}

func (p patient) Read(b []byte) (int, error) {
	for {
		n, err := p.r.Read(b)
		if errors.Is(err, serial.ErrTimeout) && n == 0 {
			continue
		}
		return n, err
	}
}
