package corpus

// Membership answers whether an item is already recorded as completed.
type Membership interface {
	Contains(id string) bool
}

// FilterResult splits scanner output by ledger membership.
type FilterResult struct {
	Pending []WorkItem
	Dropped int
}

// Filter removes items whose RelativeID is already in done, preserving order.
func Filter(items []WorkItem, done Membership) FilterResult {
	result := FilterResult{Pending: make([]WorkItem, 0, len(items))}
	for _, item := range items {
		if done != nil && done.Contains(item.RelativeID) {
			result.Dropped++
			continue
		}
		result.Pending = append(result.Pending, item)
	}
	return result
}

// Limit truncates items to the first n. Zero or negative n means no limit.
func Limit(items []WorkItem, n int) []WorkItem {
	if n <= 0 || n >= len(items) {
		return items
	}
	return items[:n]
}
