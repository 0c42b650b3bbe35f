package core

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"testing"
	"time"

	"dohgen/config"
	"dohgen/internal/manifest"
	"dohgen/internal/metrics"
	"dohgen/internal/mux"
	"dohgen/internal/remote"
	"dohgen/internal/remote/remotetest"
	"dohgen/internal/session"
	"dohgen/internal/tools"
	"dohgen/scenario"
	"dohgen/util"
)

const (
	testProxyIP    = "192.168.1.10"
	testResolverIP = "10.0.0.53"
)

var testNow = time.Date(2024, 1, 31, 14, 5, 9, 0, time.Local)

// testbed bundles an orchestrator wired to recording hosts.
type testbed struct {
	o        *Orchestrator
	log      *remotetest.Log
	attacker *remotetest.Recorder
	victim   *remotetest.Recorder
	metrics  *metrics.Collector
	journal  *memJournal
}

func newTestbed(t *testing.T, v scenario.Variant, seed int64) *testbed {
	t.Helper()
	log := &remotetest.Log{}
	atk := remotetest.New("attacker", log)
	vic := remotetest.New("victim", log)

	cfg := config.Default()
	m := metrics.New()
	mx := mux.New(session.NewRegistry(), cfg.SocketDir, util.NewLogger(0), m)
	n := 0
	mx.NewName = func() string { n++; return fmt.Sprintf("s%d", n) }

	tb := &testbed{log: log, attacker: atk, victim: vic, metrics: m, journal: &memJournal{}}
	tb.o = &Orchestrator{
		Variant: v,
		Testbed: Testbed{Attacker: atk, Victim: vic, ProxyIP: testProxyIP},
		Mux:     mx,
		Tools:   tools.New(cfg),
		Timing:  cfg.Timing,
		Rand:    rand.New(rand.NewSource(seed)),
		Logger:  util.NewLogger(0),
		Metrics: m,
		Journal: tb.journal,
		Sleep:   func(_ context.Context, d time.Duration) { log.Note("sleep %s", d) },
		Resolve: func(string) (string, error) { return testResolverIP, nil },
		Now:     func() time.Time { return testNow },
	}
	return tb
}

// failOn makes every call whose rendering contains substr fail.
func failOn(substr string) func(remotetest.Call) error {
	return func(c remotetest.Call) error {
		if strings.Contains(c.String(), substr) {
			return fmt.Errorf("injected failure for %q", substr)
		}
		return nil
	}
}

// killLine renders the reset command recorded for host.
func killLine(host string, names ...string) string {
	args := append([]string{"sh", "-c", `killall -q -- "$@"; sleep 2; killall -q -9 -- "$@"; true`, "killall"}, names...)
	return remotetest.Call{Host: host, Cmd: remote.Command{Args: args, Privileged: true}}.String()
}

// resetLines is the transcript of a full linux reset.
func resetLines() []string {
	return []string{
		killLine("attacker", "ruby", "dnscat2", "dnscat", "conda", "python"),
		killLine("victim", "ruby", "dnscat2", "dnscat", "conda", "python"),
		"sleep 1s",
		killLine("victim", "tcpdump"),
	}
}

func assertTranscript(t *testing.T, got, want []string) {
	t.Helper()
	n := len(got)
	if len(want) > n {
		n = len(want)
	}
	for i := 0; i < n; i++ {
		var g, w string
		if i < len(got) {
			g = got[i]
		}
		if i < len(want) {
			w = want[i]
		}
		if g != w {
			t.Errorf("entry %d:\n got  %s\n want %s", i, g, w)
		}
	}
}

func phases(ps []Phase) string {
	s := make([]string, len(ps))
	for i, p := range ps {
		s[i] = p.String()
	}
	return strings.Join(s, " ")
}

// memJournal collects run records in memory.
type memJournal struct {
	records []*manifest.RunRecord
}

func (j *memJournal) Save(r *manifest.RunRecord) error {
	j.records = append(j.records, r)
	return nil
}

// baseline is the reference single-command scenario.
func baseline() scenario.Scenario {
	return scenario.Scenario{
		Label:                 "baseline",
		DoHResolver:           "resolver.local",
		Delay:                 []int{500, 1000},
		NumberCommandsLimit:   scenario.Bounds{Min: 1, Max: 3},
		Commands:              []string{"whoami"},
		RandomSecondsInterval: scenario.Bounds{Min: 5, Max: 10},
	}
}
