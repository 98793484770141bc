package content

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Scene CSV layout: scene name, speaker (A prompts, B answers), line number,
// five Japanese variants, five beginner English and five native English
// variants.
const (
	csvColumns     = 18
	colSceneName   = 0
	colSpeaker     = 1
	colLine        = 2
	colJapanese    = 3
	colBeginner    = 8
	colNative      = 13
	variantsPerRow = 5
)

var sceneIDs = map[string]string{
	"朝の挨拶":          "morning_greeting",
	"バス停で時刻確認":      "bus_schedule",
	"図書館で本を探す":      "library_search",
	"カフェで注文":        "cafe_order",
	"雨で傘を借りる":       "rain_umbrella",
	"友達を映画に誘う":      "movie_invitation",
	"宿題を忘れた":        "homework_forgotten",
	"道を尋ねる":         "asking_directions",
	"写真を撮ってもらう":     "photo_request",
	"病院で予約":         "hospital_appointment",
	"スーパーで値段確認":     "supermarket_price",
	"充電器を借りる":       "charger_borrow",
	"昼食のメニュー":       "lunch_menu",
	"落とし物を渡す":       "lost_wallet",
	"誕生日を祝う":        "birthday_celebration",
	"電車で席を譲る":       "train_seat",
	"PCトラブル相談":      "printer_trouble",
	"勉強会の予定":        "study_group",
	"天気を確認":         "weather_check",
	"服装を決める":        "clothing_decision",
	"コンビニでバーコード支払い": "barcode_payment",
	"公園でボールを借りる":    "ball_borrow",
	"スマホを落とした":      "phone_lost",
	"床屋を予約する":       "barbershop_booking",
	"カフェでWi-Fiを聞く":  "cafe_wifi",
	"集合時間を決める":      "meeting_time",
	"ゴミ出しを忘れた":      "trash_forgotten",
	"宅配便を受け取る":      "package_delivery",
	"エレベーターで階を聞く":   "elevator_floor",
	"写真プリント注文":      "photo_printing",
}

var sceneCategories = map[string]string{
	"morning_greeting":     "daily",
	"bus_schedule":         "transportation",
	"library_search":       "study",
	"cafe_order":           "dining",
	"rain_umbrella":        "daily",
	"movie_invitation":     "entertainment",
	"homework_forgotten":   "study",
	"asking_directions":    "navigation",
	"photo_request":        "social",
	"hospital_appointment": "medical",
	"supermarket_price":    "shopping",
	"charger_borrow":       "daily",
	"lunch_menu":           "dining",
	"lost_wallet":          "social",
	"birthday_celebration": "social",
	"train_seat":           "transportation",
	"printer_trouble":      "technology",
	"study_group":          "study",
	"weather_check":        "daily",
	"clothing_decision":    "daily",
	"barcode_payment":      "shopping",
	"ball_borrow":          "recreation",
	"phone_lost":           "daily",
	"barbershop_booking":   "services",
	"cafe_wifi":            "services",
	"meeting_time":         "planning",
	"trash_forgotten":      "daily",
	"package_delivery":     "services",
	"elevator_floor":       "transportation",
	"photo_printing":       "services",
}

// SceneID maps a scene name from the CSV export to its id. Unknown names
// are lower-cased with whitespace replaced by underscores.
func SceneID(name string) string {
	if id, ok := sceneIDs[name]; ok {
		return id
	}
	return strings.Join(strings.Fields(strings.ToLower(name)), "_")
}

type csvRow struct {
	scene    string
	speaker  string
	line     string
	japanese []string
	beginner []string
	native   []string
}

// ParseScenesCSV converts the scene CSV export into scenes. Each A line
// becomes a prompt turn; the B line that follows it supplies the example
// answers. Rows with fewer than 18 columns are skipped.
func ParseScenesCSV(r io.Reader) ([]Scene, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	var rows []csvRow
	header := true
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read scene csv: %w", err)
		}
		if header {
			header = false
			continue
		}
		if len(rec) < csvColumns || strings.TrimSpace(strings.Join(rec, "")) == "" {
			continue
		}
		rows = append(rows, csvRow{
			scene:    rec[colSceneName],
			speaker:  strings.TrimSpace(rec[colSpeaker]),
			line:     strings.TrimSpace(rec[colLine]),
			japanese: rec[colJapanese : colJapanese+variantsPerRow],
			beginner: rec[colBeginner : colBeginner+variantsPerRow],
			native:   rec[colNative : colNative+variantsPerRow],
		})
	}

	type group struct {
		name    string
		prompts []csvRow
		answers []csvRow
	}
	var order []string
	groups := make(map[string]*group)
	for _, row := range rows {
		id := SceneID(row.scene)
		g, ok := groups[id]
		if !ok {
			g = &group{name: row.scene}
			groups[id] = g
			order = append(order, id)
		}
		switch row.speaker {
		case "A":
			g.prompts = append(g.prompts, row)
		case "B":
			g.answers = append(g.answers, row)
		}
	}

	scenes := make([]Scene, 0, len(order))
	for _, id := range order {
		g := groups[id]
		if len(g.prompts) == 0 {
			continue
		}
		category := sceneCategories[id]
		if category == "" {
			category = "general"
		}
		scene := Scene{
			ID:          id,
			Title:       g.name,
			Description: g.name + "での会話",
			Category:    category,
		}
		for _, p := range g.prompts {
			turn := Turn{
				ID:          id + "_" + p.line,
				Speaker:     SpeakerAI,
				Text:        strings.TrimSpace(p.beginner[0]),
				Translation: strings.TrimSpace(p.japanese[0]),
			}
			if answer, ok := answerFor(p.line, g.answers); ok {
				turn.JapaneseExample = strings.TrimSpace(answer.japanese[0])
				turn.Responses = append(turn.Responses, responses(turn.ID, LevelBeginner, "b", answer.beginner)...)
				turn.Responses = append(turn.Responses, responses(turn.ID, LevelNative, "n", answer.native)...)
			}
			scene.Turns = append(scene.Turns, turn)
		}
		scenes = append(scenes, scene)
	}
	return scenes, nil
}

// answerFor finds the B line numbered one after the prompt line.
func answerFor(line string, answers []csvRow) (csvRow, bool) {
	n, err := strconv.Atoi(line)
	if err != nil {
		return csvRow{}, false
	}
	next := strconv.Itoa(n + 1)
	for _, a := range answers {
		if a.line == next {
			return a, true
		}
	}
	return csvRow{}, false
}

func responses(turnID string, level Level, prefix string, texts []string) []Response {
	var out []Response
	for i, text := range texts {
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		out = append(out, Response{
			ID:    fmt.Sprintf("%s-%s%d", turnID, prefix, i+1),
			Level: level,
			Text:  text,
		})
	}
	return out
}
