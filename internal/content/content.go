// Package content holds the drill material: conversation scenes and phrase
// groups, loaded from YAML, the scene CSV export or phrase spreadsheets.
package content

import (
	"errors"
	"fmt"
	"strings"
)

// Speaker of a turn.
type Speaker string

// Speakers.
const (
	SpeakerAI   Speaker = "ai"
	SpeakerUser Speaker = "user"
)

// Level of an example response.
type Level string

// Response levels.
const (
	LevelBeginner Level = "beginner"
	LevelNative   Level = "native"
)

// ErrNotFound is returned when a scene or phrase group does not exist.
var ErrNotFound = errors.New("content not found")

// Response is an example answer to a turn.
type Response struct {
	ID    string `yaml:"id"`
	Level Level  `yaml:"level"`
	Text  string `yaml:"text"`
}

// Turn is one prompt of a scene.
type Turn struct {
	ID              string     `yaml:"id"`
	Speaker         Speaker    `yaml:"speaker"`
	Text            string     `yaml:"text"`
	Translation     string     `yaml:"translation,omitempty"`
	Context         string     `yaml:"context,omitempty"`
	JapaneseExample string     `yaml:"japaneseExample,omitempty"`
	Responses       []Response `yaml:"responses,omitempty"`
}

// ResponsesAt returns the example answers of the given level.
func (t Turn) ResponsesAt(level Level) []Response {
	var out []Response
	for _, r := range t.Responses {
		if r.Level == level {
			out = append(out, r)
		}
	}
	return out
}

// Scene is a conversation drill.
type Scene struct {
	ID          string `yaml:"id"`
	Title       string `yaml:"title"`
	Description string `yaml:"description,omitempty"`
	Category    string `yaml:"category,omitempty"`
	Turns       []Turn `yaml:"conversations"`
}

// Phrase is a single translation drill item.
type Phrase struct {
	ID         string `yaml:"id"`
	Japanese   string `yaml:"japanese"`
	English    string `yaml:"english"`
	Difficulty string `yaml:"difficulty,omitempty"`
}

// PhraseGroup is a themed list of phrases.
type PhraseGroup struct {
	ID       string   `yaml:"id"`
	Title    string   `yaml:"title"`
	Category string   `yaml:"category,omitempty"`
	Phrases  []Phrase `yaml:"phrases"`
}

// Library is a set of scenes and phrase groups.
type Library struct {
	Scenes []Scene       `yaml:"scenes,omitempty"`
	Groups []PhraseGroup `yaml:"phraseGroups,omitempty"`
}

// Scene returns the scene with id.
func (l *Library) Scene(id string) (Scene, error) {
	for _, s := range l.Scenes {
		if s.ID == id {
			return s, nil
		}
	}
	return Scene{}, fmt.Errorf("%w: scene %q", ErrNotFound, id)
}

// Group returns the phrase group with id.
func (l *Library) Group(id string) (PhraseGroup, error) {
	for _, g := range l.Groups {
		if g.ID == id {
			return g, nil
		}
	}
	return PhraseGroup{}, fmt.Errorf("%w: phrase group %q", ErrNotFound, id)
}

// Merge adds other's scenes and groups. Entries with an id already present
// replace the existing ones.
func (l *Library) Merge(other Library) {
	for _, s := range other.Scenes {
		replaced := false
		for i := range l.Scenes {
			if l.Scenes[i].ID == s.ID {
				l.Scenes[i] = s
				replaced = true
				break
			}
		}
		if !replaced {
			l.Scenes = append(l.Scenes, s)
		}
	}
	for _, g := range other.Groups {
		replaced := false
		for i := range l.Groups {
			if l.Groups[i].ID == g.ID {
				l.Groups[i] = g
				replaced = true
				break
			}
		}
		if !replaced {
			l.Groups = append(l.Groups, g)
		}
	}
}

// Validate reports missing ids and empty drills.
func (l *Library) Validate() error {
	var errs []error
	seen := make(map[string]bool)
	for i, s := range l.Scenes {
		switch {
		case strings.TrimSpace(s.ID) == "":
			errs = append(errs, fmt.Errorf("scene %d: missing id", i))
		case seen["scene:"+s.ID]:
			errs = append(errs, fmt.Errorf("scene %q: duplicate id", s.ID))
		case len(s.Turns) == 0:
			errs = append(errs, fmt.Errorf("scene %q: no turns", s.ID))
		}
		seen["scene:"+s.ID] = true
		for j, t := range s.Turns {
			if t.ID == "" || strings.TrimSpace(t.Text) == "" {
				errs = append(errs, fmt.Errorf("scene %q turn %d: missing id or text", s.ID, j))
			}
		}
	}
	for i, g := range l.Groups {
		switch {
		case strings.TrimSpace(g.ID) == "":
			errs = append(errs, fmt.Errorf("phrase group %d: missing id", i))
		case seen["group:"+g.ID]:
			errs = append(errs, fmt.Errorf("phrase group %q: duplicate id", g.ID))
		case len(g.Phrases) == 0:
			errs = append(errs, fmt.Errorf("phrase group %q: no phrases", g.ID))
		}
		seen["group:"+g.ID] = true
	}
	return errors.Join(errs...)
}
