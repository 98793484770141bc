package content

import (
	"strings"

	"github.com/sahilm/fuzzy"
)

// Match is a fuzzy search hit.
type Match struct {
	ID    string
	Title string
	Score int
}

type sceneSource []Scene

func (s sceneSource) String(i int) string { return s[i].ID + " " + s[i].Title + " " + s[i].Category }
func (s sceneSource) Len() int            { return len(s) }

type groupSource []PhraseGroup

func (g groupSource) String(i int) string { return g[i].ID + " " + g[i].Title + " " + g[i].Category }
func (g groupSource) Len() int            { return len(g) }

// FindScenes returns scenes matching query, best first. An empty query
// returns every scene in order.
func (l *Library) FindScenes(query string) []Match {
	query = strings.TrimSpace(query)
	if query == "" {
		out := make([]Match, len(l.Scenes))
		for i, s := range l.Scenes {
			out[i] = Match{ID: s.ID, Title: s.Title}
		}
		return out
	}
	var out []Match
	for _, m := range fuzzy.FindFrom(query, sceneSource(l.Scenes)) {
		s := l.Scenes[m.Index]
		out = append(out, Match{ID: s.ID, Title: s.Title, Score: m.Score})
	}
	return out
}

// FindGroups returns phrase groups matching query, best first.
func (l *Library) FindGroups(query string) []Match {
	query = strings.TrimSpace(query)
	if query == "" {
		out := make([]Match, len(l.Groups))
		for i, g := range l.Groups {
			out[i] = Match{ID: g.ID, Title: g.Title}
		}
		return out
	}
	var out []Match
	for _, m := range fuzzy.FindFrom(query, groupSource(l.Groups)) {
		g := l.Groups[m.Index]
		out = append(out, Match{ID: g.ID, Title: g.Title, Score: m.Score})
	}
	return out
}

// LookupScene returns the scene with id, or the best fuzzy match for it.
func (l *Library) LookupScene(query string) (Scene, error) {
	if s, err := l.Scene(query); err == nil {
		return s, nil
	}
	if m := l.FindScenes(query); len(m) > 0 && strings.TrimSpace(query) != "" {
		return l.Scene(m[0].ID)
	}
	return l.Scene(query)
}

// LookupGroup returns the phrase group with id, or the best fuzzy match.
func (l *Library) LookupGroup(query string) (PhraseGroup, error) {
	if g, err := l.Group(query); err == nil {
		return g, nil
	}
	if m := l.FindGroups(query); len(m) > 0 && strings.TrimSpace(query) != "" {
		return l.Group(m[0].ID)
	}
	return l.Group(query)
}
