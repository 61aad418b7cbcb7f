package scanner

// Progress is one step of a running scan. Current counts candidates
// processed so far out of Total.
type Progress struct {
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Message string `json:"message"`
}

// report delivers p without blocking. Updates are dropped while the
// observer is busy.
func report(ch chan<- Progress, p Progress) {
	if ch == nil {
		return
	}
	select {
	case ch <- p:
	default:
	}
}
