package filtering

import "github.com/spigell/shl-recommender/internal/catalog"

// Candidate is a ranked catalog record.
type Candidate struct {
	Record   catalog.Record
	Distance float32
}

// Candidates is an ordered result list, nearest first.
type Candidates struct {
	Items []Candidate
}

func NewCandidates(items []Candidate) *Candidates {
	return &Candidates{Items: items}
}

func (c *Candidates) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Items)
}

// Keep retains candidates accepted by keep, preserving order, and returns names of the dropped ones.
func (c *Candidates) Keep(keep func(Candidate) bool) []string {
	var dropped []string
	kept := c.Items[:0]
	for _, item := range c.Items {
		if keep(item) {
			kept = append(kept, item)
			continue
		}
		dropped = append(dropped, item.Record.Name)
	}
	c.Items = kept
	return dropped
}

// Truncate keeps at most k leading candidates.
func (c *Candidates) Truncate(k int) {
	if k >= 0 && len(c.Items) > k {
		c.Items = c.Items[:k]
	}
}
