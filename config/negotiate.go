package config

import (
	"errors"
	"iter"
)

// Querier declares supported configurations by index. Implementations
// return an error once index is past the last configuration, preferably
// ErrEndOfConfigs.
type Querier interface {
	SupportedConfig(index int) (Supported, error)
}

// Sequence returns configs declared by q in their order. Enumeration stops
// at the first index that returns an error. Sequence can be ranged over
// multiple times, every range queries q again.
func Sequence(q Querier) iter.Seq[Supported] {
	return func(yield func(Supported) bool) {
		for i := 0; ; i++ {
			c, err := q.SupportedConfig(i)
			if err != nil {
				return
			}
			if !yield(c) {
				return
			}
		}
	}
}

// Collect materializes all configs declared by q.
func Collect(q Querier) []Supported {
	var configs []Supported
	for c := range Sequence(q) {
		configs = append(configs, c)
	}
	return configs
}

// Merge returns union of two configs. Second return value is false when
// configs conflict: the same stream is enabled with different resolution or
// different concrete frame rates, the same motion sensor is enabled with
// different concrete rates or both configs name different devices.
func Merge(a, b Supported) (Supported, bool) {
	m := Supported{
		DeviceName: a.DeviceName,
		TimeSync:   max(a.TimeSync, b.TimeSync),
	}
	if b.DeviceName != "" {
		if a.DeviceName != "" && a.DeviceName != b.DeviceName {
			return Supported{}, false
		}
		m.DeviceName = b.DeviceName
	}
	for i := range m.Streams {
		s, ok := mergeStream(a.Streams[i], b.Streams[i])
		if !ok {
			return Supported{}, false
		}
		m.Streams[i] = s
	}
	for i := range m.Motions {
		s, ok := mergeMotion(a.Motions[i], b.Motions[i])
		if !ok {
			return Supported{}, false
		}
		m.Motions[i] = s
	}
	return m, true
}

func mergeStream(a, b Stream) (Stream, bool) {
	switch {
	case !a.Enabled:
		return b, true
	case !b.Enabled:
		return a, true
	case a.Size != b.Size:
		return Stream{}, false
	}
	rate, ok := mergeRate(a.FrameRate, b.FrameRate)
	if !ok {
		return Stream{}, false
	}
	return Stream{
		Enabled:   true,
		Size:      a.Size,
		FrameRate: rate,
		Flags:     a.Flags | b.Flags,
	}, true
}

func mergeMotion(a, b Motion) (Motion, bool) {
	switch {
	case !a.Enabled:
		return b, true
	case !b.Enabled:
		return a, true
	}
	rate, ok := mergeRate(a.SampleRate, b.SampleRate)
	if !ok {
		return Motion{}, false
	}
	return Motion{
		Enabled:    true,
		SampleRate: rate,
		Flags:      a.Flags | b.Flags,
	}, true
}

// mergeRate treats zero as any rate.
func mergeRate(a, b int) (int, bool) {
	switch {
	case a == 0:
		return b, true
	case b == 0, a == b:
		return a, true
	}
	return 0, false
}

// Supersets generates candidate device configs from groups of configs.
// Every candidate is a merge of one config from each non-empty group.
// Combinations are generated in odometer order: the last group changes the
// fastest. Conflicting and empty merges are skipped, duplicates keep the
// position of their first occurrence.
func Supersets(groups [][]Supported) []Supported {
	nonEmpty := make([][]Supported, 0, len(groups))
	for _, g := range groups {
		if len(g) > 0 {
			nonEmpty = append(nonEmpty, g)
		}
	}
	if len(nonEmpty) == 0 {
		return nil
	}

	var (
		result []Supported
		seen   = make(map[Supported]struct{})
		pos    = make([]int, len(nonEmpty))
	)
	for {
		if c, ok := combine(nonEmpty, pos); ok && !c.IsEmpty() {
			if _, dup := seen[c]; !dup {
				seen[c] = struct{}{}
				result = append(result, c)
			}
		}
		if !advance(nonEmpty, pos) {
			return result
		}
	}
}

func combine(groups [][]Supported, pos []int) (Supported, bool) {
	var (
		c  Supported
		ok = true
	)
	for i := range groups {
		if c, ok = Merge(c, groups[i][pos[i]]); !ok {
			return Supported{}, false
		}
	}
	c.Async = false
	return c, true
}

// advance moves odometer to the next position. Returns false after the
// last position.
func advance(groups [][]Supported, pos []int) bool {
	for i := len(pos) - 1; i >= 0; i-- {
		pos[i]++
		if pos[i] < len(groups[i]) {
			return true
		}
		pos[i] = 0
	}
	return false
}

// ErrEmptyRequest is returned by Negotiate when there is nothing to
// negotiate: no modules and no user restriction.
var ErrEmptyRequest = errors.New("empty restriction and no modules")

// Negotiate materializes configs of every module, appends the restriction
// as the last group and returns the ordered list of candidate supersets.
func Negotiate(modules []Querier, restriction Supported) ([]Supported, error) {
	if restriction.IsEmpty() && len(modules) == 0 {
		return nil, ErrEmptyRequest
	}
	groups := make([][]Supported, 0, len(modules)+1)
	for _, m := range modules {
		groups = append(groups, Collect(m))
	}
	groups = append(groups, []Supported{restriction})
	return Supersets(groups), nil
}

// Satisfy returns the first offered config that is satisfied by candidate
// bound to device. Offered config is satisfied when its device filter is
// empty or equals device, each stream it enables is enabled in candidate
// with the same resolution and the same frame rate (zero offered rate
// accepts any), and each motion sensor it enables is enabled in candidate.
func Satisfy(offered iter.Seq[Supported], candidate Supported, device string) (Supported, bool) {
	for c := range offered {
		if satisfies(c, candidate, device) {
			return c, true
		}
	}
	return Supported{}, false
}

func satisfies(offered, candidate Supported, device string) bool {
	if offered.DeviceName != "" && offered.DeviceName != device {
		return false
	}
	for i, s := range offered.Streams {
		if !s.Enabled {
			continue
		}
		given := candidate.Streams[i]
		if !given.Enabled || given.Size != s.Size {
			return false
		}
		if s.FrameRate != 0 && s.FrameRate != given.FrameRate {
			return false
		}
	}
	for i, m := range offered.Motions {
		if m.Enabled && !candidate.Motions[i].Enabled {
			return false
		}
	}
	return true
}
