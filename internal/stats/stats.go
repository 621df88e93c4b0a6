package stats

import (
	"encoding/json"
	"expvar"
	"net/http"
	"time"
)

// Counter names exported by the chat server.
const (
	NumConnections        = "NumConnections"
	TotalMessages         = "TotalMessages"
	TotalMarkReads        = "TotalMarkReads"
	TotalStatusBroadcasts = "TotalStatusBroadcasts"
)

// StatsProvider is the counter surface the chat server records against.
type StatsProvider interface {
	Incr(name string)
	Decr(name string)
	RegisterMetric(name string)
	Run()
}

// StatsUpdater implements StatsProvider on an expvar map. Deltas are
// applied by a single goroutine fed through a buffered channel, so the
// hot paths never contend on the map.
type StatsUpdater struct {
	vars    *expvar.Map
	deltas  chan counterDelta
	started time.Time
}

type counterDelta struct {
	name  string
	value int64
}

// NewStatsUpdater registers the expvar map and the /debug/vars handler on
// the given mux. Call Run to start applying deltas.
func NewStatsUpdater(mux *http.ServeMux) *StatsUpdater {
	su := &StatsUpdater{
		deltas:  make(chan counterDelta, 512),
		vars:    expvar.NewMap("orgchat-stats"),
		started: time.Now(),
	}
	su.vars.Set("Uptime", expvar.Func(func() any {
		return time.Since(su.started).Milliseconds()
	}))
	mux.Handle("GET /debug/vars", http.HandlerFunc(su.expvarHandler))

	return su
}

func (su *StatsUpdater) expvarHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	data := make(map[string]any)
	su.vars.Do(func(kv expvar.KeyValue) {
		var value any
		json.Unmarshal([]byte(kv.Value.String()), &value)
		data[kv.Key] = value
	})

	json.NewEncoder(w).Encode(data)
}

func (su *StatsUpdater) apply() {
	for d := range su.deltas {
		counter := su.vars.Get(d.name)
		if counter == nil {
			panic("metric not found: " + d.name)
		}

		counter.(*expvar.Int).Add(d.value)
	}
}

func (su *StatsUpdater) Incr(name string) {
	su.deltas <- counterDelta{name: name, value: 1}
}

func (su *StatsUpdater) Decr(name string) {
	su.deltas <- counterDelta{name: name, value: -1}
}

func (su *StatsUpdater) RegisterMetric(name string) {
	su.vars.Set(name, expvar.NewInt(name))
}

func (su *StatsUpdater) Run() {
	go su.apply()
}

func (su *StatsUpdater) Stop() {
	close(su.deltas)
}
