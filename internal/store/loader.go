package store

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrLoaderBusy is returned when the request queue is full.
var ErrLoaderBusy = errors.New("store: loader busy")

// Query asks the loader for a vessel's backup history since a point in time.
type Query struct {
	ID      uint64
	Channel string
	Since   time.Time
}

// LoadResult is posted back to the requester's inbox.
type LoadResult struct {
	Query   Query
	Thermal []ThermalRecord
	Flow    []FlowRecord
	Err     error
}

// Loader reads backup files on a worker goroutine so the control loop never blocks on
// disk scans. Results are delivered on the inbox channel given to NewLoader.
type Loader struct {
	thermalPath string
	flowPath    string
	requests    chan Query
	inbox       chan<- LoadResult

	mu     sync.Mutex
	nextID uint64
	latest map[string]uint64
}

// NewLoader creates a loader over the two global backups.
func NewLoader(thermalPath, flowPath string, inbox chan<- LoadResult) *Loader {
	return &Loader{
		thermalPath: thermalPath,
		flowPath:    flowPath,
		requests:    make(chan Query, 8),
		inbox:       inbox,
		latest:      make(map[string]uint64),
	}
}

// Request queues a query and returns its id. A newer request for the same channel makes
// older ones stale. A rejected request leaves the one in flight current.
func (l *Loader) Request(channel string, since time.Time) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	q := Query{ID: l.nextID + 1, Channel: channel, Since: since}
	select {
	case l.requests <- q:
	default:
		return 0, ErrLoaderBusy
	}
	l.nextID = q.ID
	l.latest[channel] = q.ID
	return q.ID, nil
}

// Current reports whether a result answers the newest request for its channel.
func (l *Loader) Current(res LoadResult) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.latest[res.Query.Channel] == res.Query.ID
}

// Run serves requests until ctx is cancelled.
func (l *Loader) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case q := <-l.requests:
			res := l.load(q)
			select {
			case l.inbox <- res:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (l *Loader) load(q Query) LoadResult {
	res := LoadResult{Query: q}
	thermal, terr := ReadThermalBackup(l.thermalPath, q.Since, q.Channel)
	fl, ferr := ReadFlowBackup(l.flowPath, q.Since, q.Channel)
	res.Thermal, res.Flow = thermal, fl
	res.Err = errors.Join(terr, ferr)
	return res
}
