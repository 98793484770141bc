package content

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// LoadPhrasesXLSX reads phrase groups from a spreadsheet. Every sheet is a
// group named after the sheet; its rows hold id, japanese, english and an
// optional difficulty, below a header row. Rows missing japanese or english
// are skipped.
func LoadPhrasesXLSX(path string) ([]PhraseGroup, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open spreadsheet: %w", err)
	}
	defer f.Close() //nolint:errcheck

	var groups []PhraseGroup
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
		}
		g := PhraseGroup{
			ID:       SceneID(sheet),
			Title:    sheet,
			Category: "imported",
		}
		for i, row := range rows {
			if i == 0 {
				continue
			}
			p, ok := phraseFromRow(row)
			if !ok {
				continue
			}
			if p.ID == "" {
				p.ID = fmt.Sprintf("%s-%d", g.ID, i)
			}
			g.Phrases = append(g.Phrases, p)
		}
		if len(g.Phrases) > 0 {
			groups = append(groups, g)
		}
	}
	return groups, nil
}

func phraseFromRow(row []string) (Phrase, bool) {
	cell := func(i int) string {
		if i < len(row) {
			return strings.TrimSpace(row[i])
		}
		return ""
	}
	p := Phrase{
		ID:         cell(0),
		Japanese:   cell(1),
		English:    cell(2),
		Difficulty: strings.ToLower(cell(3)),
	}
	if p.Japanese == "" || p.English == "" {
		return Phrase{}, false
	}
	return p, true
}

// WritePhrasesXLSX writes groups in the layout LoadPhrasesXLSX reads.
func WritePhrasesXLSX(path string, groups []PhraseGroup) error {
	f := excelize.NewFile()
	defer f.Close() //nolint:errcheck

	first := f.GetSheetName(0)
	for i, g := range groups {
		name := g.Title
		if name == "" {
			name = g.ID
		}
		if i == 0 {
			f.SetSheetName(first, name)
		} else if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("failed to add sheet %q: %w", name, err)
		}
		rows := [][]any{{"id", "japanese", "english", "difficulty"}}
		for _, p := range g.Phrases {
			rows = append(rows, []any{p.ID, p.Japanese, p.English, p.Difficulty})
		}
		for r, values := range rows {
			cellName, err := excelize.CoordinatesToCellName(1, r+1)
			if err != nil {
				return err
			}
			values := values
			if err := f.SetSheetRow(name, cellName, &values); err != nil {
				return fmt.Errorf("failed to write row %d of %q: %w", r+1, name, err)
			}
		}
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save spreadsheet: %w", err)
	}
	return nil
}
