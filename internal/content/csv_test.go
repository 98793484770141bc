package content

import (
	"strings"
	"testing"
)

func csvLine(scene, speaker, line, jp, beginner1, beginner2, native1 string) string {
	cols := make([]string, 18)
	cols[0], cols[1], cols[2] = scene, speaker, line
	cols[3] = jp
	cols[8], cols[9] = beginner1, beginner2
	cols[13] = native1
	for i, c := range cols {
		if strings.ContainsAny(c, ",\"") {
			cols[i] = `"` + strings.ReplaceAll(c, `"`, `""`) + `"`
		}
	}
	return strings.Join(cols, ",")
}

func TestParseScenesCSV(t *testing.T) {
	doc := strings.Join([]string{
		"scene,speaker,id,ja1,ja2,ja3,ja4,ja5,b1,b2,b3,b4,b5,n1,n2,n3,n4,n5",
		csvLine("カフェで注文", "A", "1", "ご注文は？", "What would you like?", "", ""),
		csvLine("カフェで注文", "B", "2", "ラテをください", "A latte, please.", "Latte, please.", `I'll grab a "latte".`),
		csvLine("カフェで注文", "A", "3", "サイズは？", "What size?", "", ""),
		"short,row",
		"",
		csvLine("Rooftop Party", "A", "1", "楽しんでる？", "Having fun?", "", ""),
	}, "\n")

	scenes, err := ParseScenesCSV(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("ParseScenesCSV() error = %v", err)
	}
	if len(scenes) != 2 {
		t.Fatalf("ParseScenesCSV() = %d scenes, want 2", len(scenes))
	}

	cafe := scenes[0]
	if cafe.ID != "cafe_order" || cafe.Category != "dining" || cafe.Title != "カフェで注文" {
		t.Errorf("scene = %+v", cafe)
	}
	if len(cafe.Turns) != 2 {
		t.Fatalf("turns = %d, want 2", len(cafe.Turns))
	}
	first := cafe.Turns[0]
	if first.ID != "cafe_order_1" || first.Text != "What would you like?" || first.Translation != "ご注文は？" {
		t.Errorf("first turn = %+v", first)
	}
	if first.JapaneseExample != "ラテをください" {
		t.Errorf("JapaneseExample = %q", first.JapaneseExample)
	}
	wantIDs := []string{"cafe_order_1-b1", "cafe_order_1-b2", "cafe_order_1-n1"}
	if len(first.Responses) != len(wantIDs) {
		t.Fatalf("responses = %+v", first.Responses)
	}
	for i, id := range wantIDs {
		if first.Responses[i].ID != id {
			t.Errorf("responses[%d].ID = %q, want %q", i, first.Responses[i].ID, id)
		}
	}
	if got := first.Responses[2].Text; got != `I'll grab a "latte".` {
		t.Errorf("native text = %q", got)
	}
	if len(cafe.Turns[1].Responses) != 0 {
		t.Errorf("unanswered turn has responses %+v", cafe.Turns[1].Responses)
	}

	party := scenes[1]
	if party.ID != "rooftop_party" || party.Category != "general" {
		t.Errorf("fallback scene = %+v", party)
	}
}

func TestSceneID(t *testing.T) {
	tests := []struct{ in, want string }{
		{"道を尋ねる", "asking_directions"},
		{"Late  Night Snack", "late_night_snack"},
	}
	for _, tt := range tests {
		if got := SceneID(tt.in); got != tt.want {
			t.Errorf("SceneID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
