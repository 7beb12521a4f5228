package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/rickgao/salon-queue/internal/queue"
)

// viewPrinter writes one block per view change.
type viewPrinter struct {
	mu      sync.Mutex
	w       io.Writer
	verbose bool
	last    string
}

func newViewPrinter(w io.Writer, verbose bool) *viewPrinter {
	return &viewPrinter{w: w, verbose: verbose}
}

// ViewUpdated implements queue.Observer. Views that render identically to
// the previous one are skipped.
func (p *viewPrinter) ViewUpdated(v queue.View) {
	out := p.render(v)

	p.mu.Lock()
	defer p.mu.Unlock()
	if out == p.last {
		return
	}
	p.last = out
	fmt.Fprint(p.w, out)
}

func (p *viewPrinter) render(v queue.View) string {
	if p.verbose {
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Sprintf("[VIEW] encode error: %v\n", err)
		}
		return "[VIEW] " + string(data) + "\n"
	}

	var b strings.Builder
	mode := "live"
	if v.UsingFallback {
		mode = "polling"
	}
	active := 0
	for _, e := range v.Entries {
		if e.Status.Active() {
			active++
		}
	}
	fmt.Fprintf(&b, "[QUEUE] status=%s mode=%s source=%s entries=%d active=%d", v.Status, mode, v.Source, len(v.Entries), active)
	if v.Loading {
		b.WriteString(" loading")
	}
	if v.Stats != nil {
		fmt.Fprintf(&b, " waiting=%d avg_wait=%.1fm", v.Stats.TotalWaiting, v.Stats.AverageWait)
		if v.Stats.LongestWait != nil {
			fmt.Fprintf(&b, " longest=%dm", *v.Stats.LongestWait)
		}
	}
	if v.LastError != "" {
		fmt.Fprintf(&b, " error=%q", v.LastError)
	}
	b.WriteByte('\n')

	for i, e := range v.Entries {
		fmt.Fprintf(&b, "  %2d. %-20s %-18s %-12s %-9s ~%dm\n",
			i+1, e.CustomerName, e.ServiceName, e.Status, e.Channel, e.EstimatedWait)
	}
	return b.String()
}
