package app

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Profiler keeps a running average of named CPU scopes per frame.
type Profiler struct {
	avg     map[string]time.Duration
	started map[string]time.Time
	counts  map[string]int
	order   []string
}

// smoothing is the weight of the newest sample in the running average.
const smoothing = 0.1

func NewProfiler() *Profiler {
	return &Profiler{
		avg:     make(map[string]time.Duration),
		started: make(map[string]time.Time),
		counts:  make(map[string]int),
	}
}

func (p *Profiler) Begin(name string) {
	if _, seen := p.avg[name]; !seen {
		p.order = append(p.order, name)
		p.avg[name] = 0
	}
	p.started[name] = time.Now()
}

func (p *Profiler) End(name string) {
	start, ok := p.started[name]
	if !ok {
		return
	}
	delete(p.started, name)
	sample := time.Since(start)
	if p.avg[name] == 0 {
		p.avg[name] = sample
		return
	}
	p.avg[name] = time.Duration(float64(p.avg[name])*(1-smoothing) + float64(sample)*smoothing)
}

func (p *Profiler) Average(name string) time.Duration {
	return p.avg[name]
}

func (p *Profiler) SetCount(name string, n int) {
	p.counts[name] = n
}

func (p *Profiler) Summary() string {
	var sb strings.Builder
	for _, name := range p.order {
		fmt.Fprintf(&sb, "  %-10s %.2f ms\n", name, float64(p.avg[name].Microseconds())/1000)
	}
	keys := make([]string, 0, len(p.counts))
	for k := range p.counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&sb, "  %-10s %d\n", k, p.counts[k])
	}
	return sb.String()
}
