package inventory

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// PageRequest asks for a 1-based page of results.
type PageRequest struct {
	Page  int
	Limit int
}

// Normalize applies defaults: page 1, limit 20, limit capped at 100.
func (r PageRequest) Normalize() PageRequest {
	if r.Page < 1 {
		r.Page = 1
	}
	if r.Limit < 1 {
		r.Limit = DefaultPageLimit
	}
	if r.Limit > MaxPageLimit {
		r.Limit = MaxPageLimit
	}
	return r
}

// Page is one slice of an ordered result set.
type Page[T any] struct {
	Items []T
	Total int
	Page  int
	Limit int
	Pages int
}

// Paginate cuts the requested page out of an already ordered slice.
func Paginate[T any](all []T, req PageRequest) Page[T] {
	req = req.Normalize()
	total := len(all)
	pages := (total + req.Limit - 1) / req.Limit

	start := total
	if req.Page-1 <= total/req.Limit {
		start = min((req.Page-1)*req.Limit, total)
	}
	end := start + req.Limit
	if end > total {
		end = total
	}

	items := make([]T, end-start)
	copy(items, all[start:end])
	return Page[T]{Items: items, Total: total, Page: req.Page, Limit: req.Limit, Pages: pages}
}
