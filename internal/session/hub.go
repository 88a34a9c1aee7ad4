package session

import (
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
)

// Hub holds the per-process indexes: which sessions are authenticated as
// which user, and the two-way focus index between sessions and observed user
// keys. The focus maps always mutate together under one lock, so the inverse
// images can never be observed out of sync.
type Hub struct {
	imu      sync.RWMutex
	identity map[string]map[*Session]struct{} // user -> sessions authed as user

	fmu            sync.RWMutex
	focusBySession map[*Session]mapset.Set[string]   // session -> observed user keys
	watchersByUser map[string]map[*Session]struct{} // observed user key -> sessions
}

func NewHub() *Hub {
	return &Hub{
		identity:       make(map[string]map[*Session]struct{}),
		focusBySession: make(map[*Session]mapset.Set[string]),
		watchersByUser: make(map[string]map[*Session]struct{}),
	}
}

// AddIdentity records s as authenticated as user.
func (h *Hub) AddIdentity(user string, s *Session) {
	h.imu.Lock()
	defer h.imu.Unlock()
	if h.identity[user] == nil {
		h.identity[user] = make(map[*Session]struct{})
	}
	h.identity[user][s] = struct{}{}
}

// RemoveIdentity drops s from user's session set and reports whether no
// local session for that user remains.
func (h *Hub) RemoveIdentity(user string, s *Session) bool {
	h.imu.Lock()
	defer h.imu.Unlock()
	set, ok := h.identity[user]
	if !ok {
		return true
	}
	delete(set, s)
	if len(set) == 0 {
		delete(h.identity, user)
		return true
	}
	return false
}

// IdentityCount returns how many local sessions are authenticated as user.
func (h *Hub) IdentityCount(user string) int {
	h.imu.RLock()
	defer h.imu.RUnlock()
	return len(h.identity[user])
}

// FocusPlan deduplicates a focus request against s's current focus set.
// toAdd is the new users to admit, capped at room (the remaining focus
// budget); accepted is every requested user that will be in the focus set
// after the call, in request order. Users beyond the cap appear in neither.
// Pure read; the caller commits only after the store accepts the additions.
func (h *Hub) FocusPlan(s *Session, users []string, room int) (toAdd, accepted []string) {
	h.fmu.RLock()
	defer h.fmu.RUnlock()
	current := h.focusBySession[s]
	seen := mapset.NewThreadUnsafeSet[string]()
	for _, u := range users {
		if !seen.Add(u) {
			continue
		}
		if current != nil && current.Contains(u) {
			accepted = append(accepted, u)
			continue
		}
		if len(toAdd) < room {
			toAdd = append(toAdd, u)
			accepted = append(accepted, u)
		}
	}
	return toAdd, accepted
}

// CommitFocus applies planned additions to both directions of the index.
func (h *Hub) CommitFocus(s *Session, users []string) {
	if len(users) == 0 {
		return
	}
	h.fmu.Lock()
	defer h.fmu.Unlock()
	set := h.focusBySession[s]
	if set == nil {
		set = mapset.NewThreadUnsafeSet[string]()
		h.focusBySession[s] = set
	}
	for _, u := range users {
		set.Add(u)
		if h.watchersByUser[u] == nil {
			h.watchersByUser[u] = make(map[*Session]struct{})
		}
		h.watchersByUser[u][s] = struct{}{}
	}
}

// Blur removes users from s's focus set and returns the ones whose local
// watcher count dropped to zero.
func (h *Hub) Blur(s *Session, users []string) (lastLocal []string) {
	h.fmu.Lock()
	defer h.fmu.Unlock()
	set := h.focusBySession[s]
	if set == nil {
		return nil
	}
	for _, u := range users {
		if !set.Contains(u) {
			continue
		}
		set.Remove(u)
		if h.dropWatcherLocked(u, s) {
			lastLocal = append(lastLocal, u)
		}
	}
	if set.Cardinality() == 0 {
		delete(h.focusBySession, s)
	}
	return lastLocal
}

// DetachFocus clears s's whole focus set, returning the keys whose local
// watcher count dropped to zero. Used on disconnect.
func (h *Hub) DetachFocus(s *Session) (lastLocal []string) {
	h.fmu.Lock()
	defer h.fmu.Unlock()
	set := h.focusBySession[s]
	if set == nil {
		return nil
	}
	for _, u := range set.ToSlice() {
		if h.dropWatcherLocked(u, s) {
			lastLocal = append(lastLocal, u)
		}
	}
	delete(h.focusBySession, s)
	return lastLocal
}

func (h *Hub) dropWatcherLocked(user string, s *Session) bool {
	watchers, ok := h.watchersByUser[user]
	if !ok {
		return false
	}
	delete(watchers, s)
	if len(watchers) == 0 {
		delete(h.watchersByUser, user)
		return true
	}
	return false
}

// FocusCount returns the size of s's focus set.
func (h *Hub) FocusCount(s *Session) int {
	h.fmu.RLock()
	defer h.fmu.RUnlock()
	if set := h.focusBySession[s]; set != nil {
		return set.Cardinality()
	}
	return 0
}

// SessionsWatching returns the local sessions with user in their focus set.
func (h *Hub) SessionsWatching(user string) []*Session {
	h.fmu.RLock()
	defer h.fmu.RUnlock()
	watchers := h.watchersByUser[user]
	if len(watchers) == 0 {
		return nil
	}
	out := make([]*Session, 0, len(watchers))
	for s := range watchers {
		out = append(out, s)
	}
	return out
}
