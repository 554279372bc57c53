package news

import (
	"regexp"
	"sort"
)

// DefaultMaxPerMarker caps the articles kept per marker.
const DefaultMaxPerMarker = 5

// Matcher finds whole-word, case-insensitive mentions of marker names.
// Word boundaries are Unicode-aware, so accented names match as words
// and a name never matches inside a longer word.
type Matcher struct {
	names    []string
	patterns []*regexp.Regexp
}

// NewMatcher compiles one pattern per distinct non-empty name.
func NewMatcher(names []string) *Matcher {
	m := &Matcher{}
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		m.names = append(m.names, name)
		m.patterns = append(m.patterns, wordPattern(name))
	}
	return m
}

func wordPattern(name string) *regexp.Regexp {
	const boundary = `[^\p{L}\p{N}_]`
	return regexp.MustCompile(`(?i)(?:^|` + boundary + `)` + regexp.QuoteMeta(name) + `(?:$|` + boundary + `)`)
}

// Names returns the names the matcher was built with.
func (m *Matcher) Names() []string {
	return append([]string(nil), m.names...)
}

// Matches returns the names mentioned in text.
func (m *Matcher) Matches(text string) []string {
	var out []string
	for i, re := range m.patterns {
		if re.MatchString(text) {
			out = append(out, m.names[i])
		}
	}
	return out
}

// Match assigns items to the markers they mention. Per marker, articles
// are de-duplicated, ordered newest first and capped at limit.
func (m *Matcher) Match(items []Item, limit int) map[string][]Article {
	if limit <= 0 {
		limit = DefaultMaxPerMarker
	}
	out := make(map[string][]Article)
	seen := make(map[string]map[string]struct{})
	for _, item := range items {
		desc := Sanitize(item.Description)
		names := m.Matches(item.Title + " " + desc)
		if len(names) == 0 {
			continue
		}
		article := Article{
			Title:       item.Title,
			Link:        item.Link,
			Published:   ParsePubDate(item.PubDate),
			Description: desc,
		}
		id := item.id()
		for _, name := range names {
			ids := seen[name]
			if ids == nil {
				ids = make(map[string]struct{})
				seen[name] = ids
			}
			if _, dup := ids[id]; dup {
				continue
			}
			ids[id] = struct{}{}
			out[name] = append(out[name], article)
		}
	}
	for name, list := range out {
		sort.SliceStable(list, func(i, j int) bool {
			return list[i].Published.After(list[j].Published)
		})
		if len(list) > limit {
			list = list[:limit]
		}
		out[name] = list
	}
	return out
}
