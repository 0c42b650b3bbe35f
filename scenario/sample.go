package scenario

import "math/rand"

// Params holds the values sampled for one run.  Only the fields of the
// run's variant are set.
type Params struct {
	Variant Variant

	Delay        int // dnscat2 client --delay
	CommandCount int // dnscat2 commands to issue

	ThrottleTime   int // exfiltrator throttle between requests
	RequestMaxSize int // exfiltrator max DNS request size
	FileSize       int // bytes of random payload to exfiltrate
}

// Sample returns a value drawn uniformly from the inclusive bounds.
func (b Bounds) Sample(r *rand.Rand) int {
	return b.Min + r.Intn(b.Max-b.Min+1)
}

// ChooseInt returns a uniformly chosen member of set.
func ChooseInt(r *rand.Rand, set []int) int {
	return set[r.Intn(len(set))]
}

// Sample draws the run parameters for variant v.  The scenario must
// have passed Validate for v.
func (s *Scenario) Sample(r *rand.Rand, v Variant) Params {
	p := Params{Variant: v}
	switch v {
	case VariantDnscat2:
		p.Delay = ChooseInt(r, s.Delay)
		p.CommandCount = s.NumberCommandsLimit.Sample(r)
	case VariantDNSExfiltrator:
		p.ThrottleTime = ChooseInt(r, s.ThrottleTime)
		p.RequestMaxSize = ChooseInt(r, s.RequestMaxSize)
		p.FileSize = s.FileExfiltratedSizeLimit.Sample(r)
	}
	return p
}

// IterationLimit is the number of commands a run sends.  A scenario with
// a single command sends it exactly once whatever the sampled count.
func (s *Scenario) IterationLimit(p Params) int {
	if len(s.Commands) <= 1 {
		return 1
	}
	return p.CommandCount
}

// Effective returns p with the command count replaced by the number of
// commands the run actually sends.  Capture names carry this value.
func (s *Scenario) Effective(p Params) Params {
	if p.Variant == VariantDnscat2 {
		p.CommandCount = s.IterationLimit(p)
	}
	return p
}

// ChooseCommand returns a uniformly chosen command.
func (s *Scenario) ChooseCommand(r *rand.Rand) string {
	return s.Commands[r.Intn(len(s.Commands))]
}

// ContainsParams reports whether every sampled value of p lies within
// the scenario's declared sets and bounds.
func (s *Scenario) ContainsParams(p Params) bool {
	switch p.Variant {
	case VariantDnscat2:
		return containsInt(s.Delay, p.Delay) && s.NumberCommandsLimit.Contains(p.CommandCount)
	case VariantDNSExfiltrator:
		return containsInt(s.ThrottleTime, p.ThrottleTime) &&
			containsInt(s.RequestMaxSize, p.RequestMaxSize) &&
			s.FileExfiltratedSizeLimit.Contains(p.FileSize)
	}
	return false
}

func containsInt(set []int, n int) bool {
	for _, v := range set {
		if v == n {
			return true
		}
	}
	return false
}
