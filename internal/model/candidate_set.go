package model

import (
	"math"
	"strings"
)

// CandidateSet holds deduplicated candidates partitioned by kind. Slices keep
// first-seen order so output is stable, but order carries no meaning.
type CandidateSet struct {
	Codes        []Candidate `json:"codes"`
	Links        []Candidate `json:"links"`
	PercentOff   []float64   `json:"percent_off"`
	FlatDiscount []float64   `json:"flat_discount"`
}

// Add inserts c into the set. A duplicate code keeps the casing it was
// first seen with but takes the higher of the two tiers. Duplicates of other
// kinds are ignored. Candidates with an unknown kind are dropped.
func (s *CandidateSet) Add(c Candidate) {
	switch c.Kind {
	case KindCode:
		key := c.Key()
		if key == "" {
			return
		}
		for i, existing := range s.Codes {
			if existing.Key() != key {
				continue
			}
			if c.Tier > existing.Tier {
				upgraded := c
				upgraded.Value = existing.Value
				s.Codes[i] = upgraded
			}
			return
		}
		s.Codes = append(s.Codes, c)
	case KindLink:
		key := c.Key()
		if key == "" {
			return
		}
		for _, existing := range s.Links {
			if existing.Key() == key {
				return
			}
		}
		s.Links = append(s.Links, c)
	case KindPercentOff:
		s.PercentOff = appendUnique(s.PercentOff, c.Amount)
	case KindFlatDiscount:
		s.FlatDiscount = appendUnique(s.FlatDiscount, c.Amount)
	}
}

func appendUnique(vals []float64, v float64) []float64 {
	for _, existing := range vals {
		if existing == v {
			return vals
		}
	}
	return append(vals, v)
}

// Empty reports whether no kind holds any value.
func (s CandidateSet) Empty() bool {
	return len(s.Codes) == 0 && len(s.Links) == 0 && len(s.PercentOff) == 0 && len(s.FlatDiscount) == 0
}

// CodeValues returns the display values of all codes.
func (s CandidateSet) CodeValues() []string {
	out := make([]string, len(s.Codes))
	for i, c := range s.Codes {
		out[i] = c.Value
	}
	return out
}

// LinkValues returns all link URLs.
func (s CandidateSet) LinkValues() []string {
	out := make([]string, len(s.Links))
	for i, l := range s.Links {
		out[i] = l.Value
	}
	return out
}

// HasCode reports whether the set contains code (case-insensitive).
func (s CandidateSet) HasCode(code string) bool {
	key := NormalizeCode(code)
	for _, c := range s.Codes {
		if c.Key() == key {
			return true
		}
	}
	return false
}

// MaxPercentOff returns the largest percentage discount, or 0.
func (s CandidateSet) MaxPercentOff() float64 {
	best := 0.0
	for _, p := range s.PercentOff {
		if !math.IsNaN(p) && p > best {
			best = p
		}
	}
	return best
}

// Clone returns a deep copy so callers can hold results without sharing
// backing arrays.
func (s CandidateSet) Clone() CandidateSet {
	return CandidateSet{
		Codes:        append([]Candidate(nil), s.Codes...),
		Links:        append([]Candidate(nil), s.Links...),
		PercentOff:   append([]float64(nil), s.PercentOff...),
		FlatDiscount: append([]float64(nil), s.FlatDiscount...),
	}
}

// RetainCodes returns a copy of the set whose codes are narrowed to those
// present in keep (case-insensitive). Other kinds are unchanged.
func (s CandidateSet) RetainCodes(keep []string) CandidateSet {
	allowed := make(map[string]struct{}, len(keep))
	for _, k := range keep {
		allowed[NormalizeCode(k)] = struct{}{}
	}
	out := s.Clone()
	out.Codes = out.Codes[:0]
	for _, c := range s.Codes {
		if _, ok := allowed[c.Key()]; ok {
			out.Codes = append(out.Codes, c)
		}
	}
	return out
}

// Equal reports set equality per kind, ignoring order. Codes compare by
// normalized key and tier.
func (s CandidateSet) Equal(o CandidateSet) bool {
	if len(s.Codes) != len(o.Codes) || len(s.Links) != len(o.Links) ||
		len(s.PercentOff) != len(o.PercentOff) || len(s.FlatDiscount) != len(o.FlatDiscount) {
		return false
	}
	codes := make(map[string]Tier, len(s.Codes))
	for _, c := range s.Codes {
		codes[c.Key()] = c.Tier
	}
	for _, c := range o.Codes {
		if t, ok := codes[c.Key()]; !ok || t != c.Tier {
			return false
		}
	}
	links := make(map[string]struct{}, len(s.Links))
	for _, l := range s.Links {
		links[l.Key()] = struct{}{}
	}
	for _, l := range o.Links {
		if _, ok := links[l.Key()]; !ok {
			return false
		}
	}
	return sameFloats(s.PercentOff, o.PercentOff) && sameFloats(s.FlatDiscount, o.FlatDiscount)
}

func sameFloats(a, b []float64) bool {
	seen := make(map[float64]int, len(a))
	for _, v := range a {
		seen[v]++
	}
	for _, v := range b {
		if seen[v] == 0 {
			return false
		}
		seen[v]--
	}
	return true
}

// JoinSegments concatenates text segments (transcript lines, description
// lines, or a post title and body) into a single RawText string. Blank
// segments are skipped.
func JoinSegments(segments ...string) string {
	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		seg = strings.TrimSpace(seg)
		if seg != "" {
			parts = append(parts, seg)
		}
	}
	return strings.Join(parts, "\n")
}
