package extension

import "sync"

// listenerList is an ordered set of named listener funcs, shared by both broker kinds.
type listenerList[F any] struct {
	sync.RWMutex
	names []string
	funcs []F
}

// add registers the named listener, replacing one with a duplicate name in place.
func (l *listenerList[F]) add(name string, f F) {
	l.Lock()
	defer l.Unlock()
	for i, entry := range l.names {
		if entry == name {
			l.funcs[i] = f
			return
		}
	}
	l.names = append(l.names, name)
	l.funcs = append(l.funcs, f)
}

func (l *listenerList[F]) remove(name string) {
	l.Lock()
	defer l.Unlock()
	for i, entry := range l.names {
		if entry == name {
			l.names = append(l.names[:i], l.names[i+1:]...)
			l.funcs = append(l.funcs[:i], l.funcs[i+1:]...)
			return
		}
	}
}

// snapshot returns the current listeners so emitters need not hold the lock while calling them.
func (l *listenerList[F]) snapshot() []F {
	l.RLock()
	defer l.RUnlock()
	return append([]F(nil), l.funcs...)
}

func (l *listenerList[F]) len() int {
	l.RLock()
	defer l.RUnlock()
	return len(l.funcs)
}
