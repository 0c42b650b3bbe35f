package scenario

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// TimestampLayout is the capture name timestamp, e.g. 20240131_14_05_09.
const TimestampLayout = "20060102_15_04_05"

// CaptureExt is the extension of every capture file.
const CaptureExt = ".pcap"

// Parameter tags embedded in capture names.
const (
	TagDelay   = "delay"
	TagCommand = "cmd"
	TagReqSize = "reqsize"
	TagBytes   = "bytes" // written as a suffix: 4096bytes
)

// Param is one "<tag><value>" (or "<value><tag>") component of a
// capture name.
type Param struct {
	Tag    string
	Value  int
	Suffix bool
}

func (p Param) String() string {
	if p.Suffix {
		return strconv.Itoa(p.Value) + p.Tag
	}
	return p.Tag + strconv.Itoa(p.Value)
}

// CaptureName identifies the capture file of one run:
// <label>_<param>_<param>[_<param>]_<YYYYMMDD_HH_MM_SS>.pcap
type CaptureName struct {
	Label  string
	Params []Param
	Time   time.Time
}

// NewCaptureName derives the capture name for a run from the scenario
// label, the sampled parameters and the run start time.
func NewCaptureName(label string, p Params, at time.Time) CaptureName {
	c := CaptureName{Label: label, Time: at}
	switch p.Variant {
	case VariantDnscat2:
		c.Params = []Param{
			{Tag: TagDelay, Value: p.Delay},
			{Tag: TagCommand, Value: p.CommandCount},
		}
	case VariantDNSExfiltrator:
		c.Params = []Param{
			{Tag: TagDelay, Value: p.ThrottleTime},
			{Tag: TagReqSize, Value: p.RequestMaxSize},
			{Tag: TagBytes, Value: p.FileSize, Suffix: true},
		}
	}
	return c
}

// String renders the file name without a directory.
func (c CaptureName) String() string {
	parts := make([]string, 0, len(c.Params)+2)
	parts = append(parts, c.Label)
	for _, p := range c.Params {
		parts = append(parts, p.String())
	}
	parts = append(parts, c.Time.Format(TimestampLayout))
	return strings.Join(parts, "_") + CaptureExt
}

// Primary returns the first parameter (delay or throttle time).
func (c CaptureName) Primary() Param { return c.Params[0] }

// Secondary returns the second parameter (command count or request size).
func (c CaptureName) Secondary() Param { return c.Params[1] }

var (
	prefixParamRe = regexp.MustCompile(`^(` + TagDelay + `|` + TagCommand + `|` + TagReqSize + `)(\d+)$`)
	suffixParamRe = regexp.MustCompile(`^(\d+)(` + TagBytes + `)$`)
)

func parseParam(tok string) (Param, bool) {
	if m := prefixParamRe.FindStringSubmatch(tok); m != nil {
		n, err := strconv.Atoi(m[2])
		if err != nil {
			return Param{}, false
		}
		return Param{Tag: m[1], Value: n}, true
	}
	if m := suffixParamRe.FindStringSubmatch(tok); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return Param{}, false
		}
		return Param{Tag: m[2], Value: n, Suffix: true}, true
	}
	return Param{}, false
}

func lastSegment(label string) string {
	if i := strings.LastIndexByte(label, '_'); i >= 0 {
		return label[i+1:]
	}
	return label
}

// ParseCaptureName splits a capture file name (or path) back into its
// label, parameters and timestamp.  The timestamp is read in the local
// time zone, the zone it was written in.
func ParseCaptureName(name string) (CaptureName, error) {
	base := filepath.Base(name)
	if !strings.HasSuffix(base, CaptureExt) {
		return CaptureName{}, fmt.Errorf("capture name %q: missing %s extension", name, CaptureExt)
	}
	parts := strings.Split(strings.TrimSuffix(base, CaptureExt), "_")

	// label + 2 params + 4 timestamp fields at minimum
	if len(parts) < 7 {
		return CaptureName{}, fmt.Errorf("capture name %q: too few components", name)
	}

	tsStart := len(parts) - 4
	ts, err := time.ParseInLocation(TimestampLayout, strings.Join(parts[tsStart:], "_"), time.Local)
	if err != nil {
		return CaptureName{}, fmt.Errorf("capture name %q: bad timestamp: %w", name, err)
	}

	// Collect parameters right to left; the label keeps at least one part.
	i := tsStart
	var params []Param
	for i > 1 {
		p, ok := parseParam(parts[i-1])
		if !ok {
			break
		}
		params = append([]Param{p}, params...)
		i--
	}
	if len(params) < 2 {
		return CaptureName{}, fmt.Errorf("capture name %q: expected at least 2 parameters, got %d", name, len(params))
	}

	return CaptureName{
		Label:  strings.Join(parts[:i], "_"),
		Params: params,
		Time:   ts,
	}, nil
}
