package blackboard

import "time"

// FilterCriteria defines post-hoc filtering for read and query operations.
// All set criteria are ANDed together; zero values mean "no filter".
type FilterCriteria struct {
	Area       string     // Exact match on the finding's area
	Confidence Confidence // Exact match on confidence level
	Producer   string     // Exact match on producer name
	Tags       []string   // Any overlap with the finding's tags qualifies
	Since      time.Time  // Inclusive lower bound on timestamp
	Until      time.Time  // Inclusive upper bound on timestamp
}

// Matches returns true if the finding satisfies every set criterion.
func (fc *FilterCriteria) Matches(f *Finding) bool {
	if fc == nil {
		return true
	}

	if fc.Area != "" && f.Area != fc.Area {
		return false
	}

	if fc.Confidence != "" && f.Confidence != fc.Confidence {
		return false
	}

	if fc.Producer != "" && f.Producer != fc.Producer {
		return false
	}

	// Tag filtering - set intersection, any overlap qualifies
	if len(fc.Tags) > 0 && !tagsOverlap(fc.Tags, f.Tags) {
		return false
	}

	// Time range filtering - both bounds inclusive, either optional
	if !fc.Since.IsZero() && f.Timestamp.Before(fc.Since) {
		return false
	}
	if !fc.Until.IsZero() && f.Timestamp.After(fc.Until) {
		return false
	}

	return true
}

func tagsOverlap(want, have []string) bool {
	for _, w := range want {
		for _, h := range have {
			if w == h {
				return true
			}
		}
	}
	return false
}
