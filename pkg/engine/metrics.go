package engine

import "expvar"

var (
	expSyncs        = new(expvar.Int)
	expSyncFailures = new(expvar.Int)
	expFetched      = new(expvar.Int)
	expSent         = new(expvar.Int)
	expSendFailures = new(expvar.Int)
)

func init() {
	m := expvar.NewMap("engine")
	m.Set("SyncsTotal", expSyncs)
	m.Set("SyncFailures", expSyncFailures)
	m.Set("MessagesFetched", expFetched)
	m.Set("MessagesSent", expSent)
	m.Set("SendFailures", expSendFailures)
}
