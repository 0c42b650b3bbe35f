// Package scenario defines the declarative trial configurations that
// drive traffic generation, the immutable repository they are loaded
// into, parameter sampling, and the capture file naming scheme.
package scenario

import (
	"encoding/json"
	"fmt"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Variant selects the traffic family a scenario file is written for.
type Variant string

const (
	// VariantDnscat2 is interactive command-and-control over DNS.
	VariantDnscat2 Variant = "dnscat2"
	// VariantDNSExfiltrator is one-shot file exfiltration over DNS.
	VariantDNSExfiltrator Variant = "dnsexfiltrator"
)

// ParseVariant accepts the variant names used on the command line.
func ParseVariant(s string) (Variant, error) {
	switch Variant(s) {
	case VariantDnscat2, VariantDNSExfiltrator:
		return Variant(s), nil
	default:
		return "", fmt.Errorf("unknown variant %q", s)
	}
}

// Interactive reports whether the variant drives a live command
// channel after the client connects.
func (v Variant) Interactive() bool { return v == VariantDnscat2 }

// Bounds is an inclusive integer range encoded as a 2-element array.
type Bounds struct {
	Min int
	Max int
}

// Contains reports whether n lies within the bounds.
func (b Bounds) Contains(n int) bool { return n >= b.Min && n <= b.Max }

func (b Bounds) String() string { return fmt.Sprintf("[%d, %d]", b.Min, b.Max) }

func (b *Bounds) fromSlice(v []int) error {
	if len(v) != 2 {
		return fmt.Errorf("expected a 2-element range, got %d elements", len(v))
	}
	b.Min, b.Max = v[0], v[1]
	return nil
}

// UnmarshalJSON decodes [min, max].
func (b *Bounds) UnmarshalJSON(data []byte) error {
	var v []int
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	return b.fromSlice(v)
}

// MarshalJSON encodes [min, max].
func (b Bounds) MarshalJSON() ([]byte, error) {
	return json.Marshal([]int{b.Min, b.Max})
}

// UnmarshalYAML decodes [min, max].
func (b *Bounds) UnmarshalYAML(node *yaml.Node) error {
	var v []int
	if err := node.Decode(&v); err != nil {
		return err
	}
	return b.fromSlice(v)
}

// Scenario is one randomized trial configuration.  Scenarios are loaded
// once and never mutated.
type Scenario struct {
	Label       string `json:"label" yaml:"label"`
	DoHResolver string `json:"doh_resolver" yaml:"doh_resolver"`
	ProxyArgs   string `json:"proxy_args" yaml:"proxy_args"`

	// Command-and-control fields.
	Delay                 []int    `json:"delay,omitempty" yaml:"delay,omitempty"`
	NumberCommandsLimit   Bounds   `json:"number_commands_limit" yaml:"number_commands_limit"`
	Commands              []string `json:"commands,omitempty" yaml:"commands,omitempty"`
	RandomSecondsInterval Bounds   `json:"random_seconds_interval" yaml:"random_seconds_interval"`
	ShellCommands         bool     `json:"shell_commands" yaml:"shell_commands"`

	// Exfiltration fields.
	ThrottleTime             []int  `json:"throttleTime,omitempty" yaml:"throttleTime,omitempty"`
	RequestMaxSize           []int  `json:"requestMaxSize,omitempty" yaml:"requestMaxSize,omitempty"`
	FileExfiltratedSizeLimit Bounds `json:"file_exfiltrated_size_limit" yaml:"file_exfiltrated_size_limit"`
}

// labelRe keeps labels safe to embed in a file path.
var labelRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9.-]*(?:_[A-Za-z0-9.-]+)*$`)

// Validate checks that s carries every field the variant samples from.
func (s *Scenario) Validate(v Variant) error {
	if s.Label == "" {
		return fmt.Errorf("label is required")
	}
	if !labelRe.MatchString(s.Label) {
		return fmt.Errorf("label %q must be letters, digits, '.', '-' and single '_' separators", s.Label)
	}
	if _, ok := parseParam(lastSegment(s.Label)); ok {
		return fmt.Errorf("label %q ends with a parameter-like segment", s.Label)
	}
	if s.DoHResolver == "" {
		return fmt.Errorf("%s: doh_resolver is required", s.Label)
	}

	switch v {
	case VariantDnscat2:
		if len(s.Delay) == 0 {
			return fmt.Errorf("%s: delay must list at least one value", s.Label)
		}
		if len(s.Commands) == 0 {
			return fmt.Errorf("%s: commands must list at least one command", s.Label)
		}
		if err := checkBounds("number_commands_limit", s.NumberCommandsLimit, 1); err != nil {
			return fmt.Errorf("%s: %w", s.Label, err)
		}
		if err := checkBounds("random_seconds_interval", s.RandomSecondsInterval, 0); err != nil {
			return fmt.Errorf("%s: %w", s.Label, err)
		}
	case VariantDNSExfiltrator:
		if len(s.ThrottleTime) == 0 {
			return fmt.Errorf("%s: throttleTime must list at least one value", s.Label)
		}
		if len(s.RequestMaxSize) == 0 {
			return fmt.Errorf("%s: requestMaxSize must list at least one value", s.Label)
		}
		if err := checkBounds("file_exfiltrated_size_limit", s.FileExfiltratedSizeLimit, 1); err != nil {
			return fmt.Errorf("%s: %w", s.Label, err)
		}
	default:
		return fmt.Errorf("unknown variant %q", v)
	}
	return nil
}

func checkBounds(field string, b Bounds, floor int) error {
	if b.Min < floor {
		return fmt.Errorf("%s lower bound %d is below %d", field, b.Min, floor)
	}
	if b.Min > b.Max {
		return fmt.Errorf("%s %s is reversed", field, b)
	}
	return nil
}
