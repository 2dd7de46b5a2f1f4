// Package metric keeps short rolling histories of expvar values.
package metric

import (
	"container/list"
	"expvar"
	"strings"
	"sync"
	"time"
)

// HourOfSamples is one sample per minute for an hour, plus one to compute the first delta against.
const HourOfSamples = 61

// TickerFunc is the function signature accepted by AddTickerFunc, will be called once per minute.
type TickerFunc func()

var tickerFuncChan = make(chan TickerFunc)

func init() {
	go metricsTicker()
}

// AddTickerFunc adds a new function callback to the list of metrics TickerFuncs that get
// called each minute.
func AddTickerFunc(f TickerFunc) {
	tickerFuncChan <- f
}

// metricsTicker calls the current list of TickerFuncs once per minute.
func metricsTicker() {
	funcs := make([]TickerFunc, 0)
	ticker := time.NewTicker(time.Minute)

	for {
		select {
		case <-ticker.C:
			for _, f := range funcs {
				f()
			}
		case f := <-tickerFuncChan:
			funcs = append(funcs, f)
		}
	}
}

// History holds the most recent samples of a value, oldest first.
type History struct {
	mu      sync.Mutex
	samples *list.List
	size    int
}

// NewHistory creates a History retaining size samples.
func NewHistory(size int) *History {
	return &History{samples: list.New(), size: size}
}

// Push records the current value of ev, dropping the oldest sample when full.
func (h *History) Push(ev expvar.Var) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.samples.PushBack(ev.String())
	for h.samples.Len() > h.size {
		h.samples.Remove(h.samples.Front())
	}
}

// String returns the samples joined by commas.
func (h *History) String() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := make([]string, 0, h.samples.Len())
	for e := h.samples.Front(); e != nil; e = e.Next() {
		s = append(s, e.Value.(string))
	}
	return strings.Join(s, ",")
}
