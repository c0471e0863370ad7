package router

const (
	recencyCapacity = 1000
	recencyEviction = 500
)

// recencySet remembers which message keys have been processed so the
// same delivery is never handled twice. When full it forgets the oldest
// half; a forgotten key can be reprocessed, but a remembered key is
// never a false positive.
type recencySet struct {
	seen  map[string]struct{}
	order []string
}

func newRecencySet() *recencySet {
	return &recencySet{seen: make(map[string]struct{}, recencyCapacity)}
}

func (r *recencySet) Has(key string) bool {
	_, ok := r.seen[key]
	return ok
}

// Add records key, evicting the oldest entries when the set is full.
// Returns false if the key was already present.
func (r *recencySet) Add(key string) bool {
	if r.Has(key) {
		return false
	}
	if len(r.order) >= recencyCapacity {
		for _, old := range r.order[:recencyEviction] {
			delete(r.seen, old)
		}
		r.order = append(r.order[:0], r.order[recencyEviction:]...)
	}
	r.seen[key] = struct{}{}
	r.order = append(r.order, key)
	return true
}

func (r *recencySet) Len() int { return len(r.order) }
