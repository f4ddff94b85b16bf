package board

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Override markers placed in an item's modifiers force kitchen preparation
// of a CONDITIONAL menu item.
var overrideMarkers = []string{"__KDS_OVERRIDE__", "__KDS_OVER_RIDE__"}

type ModifierKind int

const (
	ModNote ModifierKind = iota
	ModNamedOption
	ModLegacyKeyValue
)

// Modifier is one normalized entry of an item's modifier payload.
type Modifier struct {
	Kind  ModifierKind
	Name  string
	Key   string
	Value string
}

func Note(text string) Modifier { return Modifier{Kind: ModNote, Name: text} }

func NamedOption(name string) Modifier { return Modifier{Kind: ModNamedOption, Name: name} }

func LegacyKeyValue(key, value string) Modifier {
	return Modifier{Kind: ModLegacyKeyValue, Key: key, Value: value}
}

// Text is the label shown on the card.
func (m Modifier) Text() string {
	switch m.Kind {
	case ModLegacyKeyValue:
		if m.Value == "" {
			return m.Key
		}
		return m.Value
	default:
		return m.Name
	}
}

// Label is a rendered modifier.
type Label struct {
	Text   string `json:"text"`
	Color  string `json:"color"`
	IsNote bool   `json:"is_note,omitempty"`
}

const (
	ColorGray        = "gray"
	ColorLightGreen  = "lightgreen"
	ColorBeige       = "beige"
	ColorLightYellow = "lightyellow"
	ColorBlue        = "blue"
	ColorRed         = "red"
	ColorFoamUp      = "foam-up"
	ColorFoamNone    = "foam-none"
	ColorNote        = "purple"
)

// colorRules are checked in order; the first matching keyword wins.
var colorRules = []struct {
	keywords []string
	color    string
}{
	{[]string{"סויה", "soy"}, ColorLightGreen},
	{[]string{"שיבולת", "oat"}, ColorBeige},
	{[]string{"שקדים", "almond"}, ColorLightYellow},
	{[]string{"נטול", "decaf"}, ColorBlue},
	{[]string{"רותח", "extra hot"}, ColorRed},
}

func colorFor(text string) string {
	lower := strings.ToLower(text)
	for _, r := range colorRules {
		for _, k := range r.keywords {
			if strings.Contains(lower, k) {
				return r.color
			}
		}
	}

	noFoam := strings.Contains(lower, "בלי קצף") || strings.Contains(lower, "no foam")
	switch {
	case noFoam:
		return ColorFoamNone
	case (strings.Contains(lower, "קצף") && !strings.Contains(lower, "בלי")) || strings.Contains(lower, "foam"):
		return ColorFoamUp
	}
	return ColorGray
}

// ParseModifiers normalizes the raw payload. It accepts an array of option
// ids, names or {value_name} objects, a legacy key/value object, or either
// of those encoded once more as a JSON string. Option ids are translated
// through options. The second result reports an override marker.
func ParseModifiers(raw json.RawMessage, options map[string]string) ([]Modifier, bool) {
	if len(raw) == 0 {
		return nil, false
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, containsOverride(string(raw))
	}

	var (
		mods     []Modifier
		override bool
	)

	if s, ok := v.(string); ok {
		override = containsOverride(s)
		var inner any
		if err := json.Unmarshal([]byte(s), &inner); err != nil {
			return nil, override
		}
		v = inner
	}

	switch t := v.(type) {
	case []any:
		for _, el := range t {
			name := optionName(el, options)
			if containsOverride(name) {
				override = true
				continue
			}
			if keep(name) {
				mods = append(mods, NamedOption(name))
			}
		}
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, k := range keys {
			val, ok := legacyValue(t[k], options)
			if !ok {
				continue
			}
			if containsOverride(k) || containsOverride(val) {
				override = true
				continue
			}
			if keep(val) || (val == "" && keep(k)) {
				mods = append(mods, LegacyKeyValue(clean(k), val))
			}
		}
	}
	return mods, override
}

func optionName(el any, options map[string]string) string {
	switch e := el.(type) {
	case map[string]any:
		for _, field := range []string{"value_name", "name"} {
			if s, ok := e[field].(string); ok && s != "" {
				return clean(s)
			}
		}
		if id, ok := e["id"]; ok {
			return optionName(id, options)
		}
		return ""
	case nil:
		return ""
	default:
		s := scalar(e)
		if name, ok := options[s]; ok && name != "" {
			return clean(name)
		}
		return clean(s)
	}
}

// legacyValue renders one value of a legacy object. false and null values
// mean the option is off.
func legacyValue(v any, options map[string]string) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case bool:
		return "", t
	case string:
		if name, ok := options[t]; ok && name != "" {
			return clean(name), true
		}
		return clean(t), true
	default:
		return clean(scalar(t)), true
	}
}

func scalar(v any) string {
	if f, ok := v.(float64); ok && f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprint(v)
}

func clean(s string) string {
	return strings.TrimSpace(norm.NFC.String(s))
}

// keep drops empty and "default"/no-op values.
func keep(name string) bool {
	if name == "" {
		return false
	}
	if strings.Contains(strings.ToLower(name), "default") || name == "רגיל" {
		return false
	}
	return true
}

func containsOverride(s string) bool {
	for _, m := range overrideMarkers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

// Labels renders modifiers plus the item's notes as a trailing note label.
func Labels(mods []Modifier, notes string) []Label {
	labels := make([]Label, 0, len(mods)+1)
	for _, m := range mods {
		if m.Kind == ModNote {
			labels = append(labels, Label{Text: m.Name, Color: ColorNote, IsNote: true})
			continue
		}
		text := m.Text()
		labels = append(labels, Label{Text: text, Color: colorFor(text)})
	}
	if n := clean(notes); n != "" {
		labels = append(labels, Label{Text: n, Color: ColorNote, IsNote: true})
	}
	return labels
}

// modsKey identifies an item's modifier set for grouping identical lines.
func modsKey(labels []Label) string {
	texts := make([]string, len(labels))
	for i, l := range labels {
		texts[i] = l.Text
	}
	sort.Strings(texts)
	return strings.Join(texts, "|")
}
