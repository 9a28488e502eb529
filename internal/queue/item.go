package queue

import "github.com/akaeyuhi/SwiftE-commerce-sub007/internal/domain"

// Item is the minimal data placed on the dispatch queue.
// Workers fetch the full Job from the store using the ID, keeping the
// in-memory queue lightweight and the persisted job data authoritative.
type Item struct {
	JobID    string
	Type     string
	Priority domain.Priority
}
