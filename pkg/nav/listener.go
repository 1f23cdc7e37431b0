package nav

import "sync"

// Location-change fan-out. Multiple widget instances in one process must
// share a single host-level location observer instead of each binding
// their own; the host source is started when the first subscriber appears
// and stopped when the last one leaves.

// LocationSource is the host-level observer. Start begins delivering
// location changes to emit; Stop ends delivery.
type LocationSource interface {
	Start(emit func(location string))
	Stop()
}

// LocationListeners is the process-wide subscriber registry.
type LocationListeners struct {
	mu     sync.Mutex
	source LocationSource
	subs   map[int]func(location string)
	nextID int
}

var sharedListeners = &LocationListeners{subs: make(map[int]func(string))}

// SharedListeners returns the process-wide registry.
func SharedListeners() *LocationListeners { return sharedListeners }

// NewLocationListeners creates an isolated registry, for tests.
func NewLocationListeners() *LocationListeners {
	return &LocationListeners{subs: make(map[int]func(string))}
}

// SetSource installs the host observer. If subscribers already exist the
// new source is started immediately.
func (l *LocationListeners) SetSource(source LocationSource) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.source != nil && len(l.subs) > 0 {
		l.source.Stop()
	}
	l.source = source
	if source != nil && len(l.subs) > 0 {
		source.Start(l.emit)
	}
}

// Subscribe registers fn and returns an unsubscribe function. The first
// subscriber starts the host source.
func (l *LocationListeners) Subscribe(fn func(location string)) (unsubscribe func()) {
	l.mu.Lock()
	id := l.nextID
	l.nextID++
	l.subs[id] = fn
	first := len(l.subs) == 1
	source := l.source
	l.mu.Unlock()

	if first && source != nil {
		source.Start(l.emit)
	}

	return func() { l.unsubscribe(id) }
}

func (l *LocationListeners) unsubscribe(id int) {
	l.mu.Lock()
	if _, ok := l.subs[id]; !ok {
		l.mu.Unlock()
		return
	}
	delete(l.subs, id)
	last := len(l.subs) == 0
	source := l.source
	l.mu.Unlock()

	if last && source != nil {
		source.Stop()
	}
}

// Count returns the live subscriber count.
func (l *LocationListeners) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.subs)
}

func (l *LocationListeners) emit(location string) {
	l.mu.Lock()
	fns := make([]func(string), 0, len(l.subs))
	for _, fn := range l.subs {
		fns = append(fns, fn)
	}
	l.mu.Unlock()

	for _, fn := range fns {
		fn(location)
	}
}
