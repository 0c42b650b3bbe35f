// Package core is the orchestration layer.  It drives one scenario run
// through its phases and repeats runs until a stop is requested.
//
// Architecture layers (bottom → top):
//
//	remote  →  mux/session  →  tools  →  core  →  cmd (CLI)
//
// Build turns a Config plus connected hosts into the Scheduler the CLI
// runs.
package core

// Phase is a state of the per-run state machine.
type Phase int

const (
	Idle Phase = iota
	ServerStarting
	CaptureStarting
	ProxyStarting
	ClientStarting
	InteractiveSetup
	CommandLoop
	Shutdown
	Reset
)

var phaseNames = [...]string{
	Idle:             "idle",
	ServerStarting:   "server-starting",
	CaptureStarting:  "capture-starting",
	ProxyStarting:    "proxy-starting",
	ClientStarting:   "client-starting",
	InteractiveSetup: "interactive-setup",
	CommandLoop:      "command-loop",
	Shutdown:         "shutdown",
	Reset:            "reset",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "unknown"
	}
	return phaseNames[p]
}
