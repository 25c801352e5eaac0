package normalize

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	priceRe     = regexp.MustCompile(`-?\d[\d,]*(?:\.\d+)?`)
	hoursRe     = regexp.MustCompile(`(\d+)\s*h`)
	minutesRe   = regexp.MustCompile(`(\d+)\s*m`)
	clockRe     = regexp.MustCompile(`(?i)^(\d{1,2}):(\d{2})(?:\s*([ap])\.?\s*m\.?)?`)
	stopCountRe = regexp.MustCompile(`(\d+)[\s-]*stops?`)
	flightNumRe = regexp.MustCompile(`\b([A-Z][A-Z0-9]|[0-9][A-Z])[\s-]*(\d{1,5})\b`)
)

var stopWords = map[string]int{"one": 1, "two": 2, "three": 3}

// ParsePrice extracts the first number from text such as "₹ 16,058" or
// "16058.50 INR". Separators are dropped and a decimal fraction is truncated.
func ParsePrice(text string) (int64, bool) {
	m := priceRe.FindString(text)
	if m == "" {
		return 0, false
	}
	m = strings.ReplaceAll(m, ",", "")
	if whole, _, ok := strings.Cut(m, "."); ok {
		m = whole
	}
	v, err := strconv.ParseInt(m, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ParseDuration converts "2h 55m", "02 h 55 m", "3h", "45m", "2 hr 5 min"
// or a bare minute count to minutes.
func ParseDuration(text string) (int, bool) {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return 0, false
	}
	// Zero-length durations are rejected in both forms.
	if n, err := strconv.Atoi(text); err == nil {
		return n, n > 0
	}

	h := hoursRe.FindStringSubmatch(text)
	m := minutesRe.FindStringSubmatch(text)
	if h == nil && m == nil {
		return 0, false
	}

	total := 0
	if h != nil {
		hours, _ := strconv.Atoi(h[1])
		total += hours * 60
	}
	if m != nil {
		minutes, _ := strconv.Atoi(m[1])
		total += minutes
	}
	return total, total > 0
}

// ParseClock converts "18:00", "6:00 PM" or "06:30 +1 day" to minutes
// since midnight.
func ParseClock(text string) (int, bool) {
	m := clockRe.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return 0, false
	}
	hour, _ := strconv.Atoi(m[1])
	minute, _ := strconv.Atoi(m[2])
	if minute > 59 {
		return 0, false
	}

	switch strings.ToLower(m[3]) {
	case "":
		if hour > 23 {
			return 0, false
		}
	case "a":
		if hour < 1 || hour > 12 {
			return 0, false
		}
		if hour == 12 {
			hour = 0
		}
	case "p":
		if hour < 1 || hour > 12 {
			return 0, false
		}
		if hour != 12 {
			hour += 12
		}
	}
	return hour*60 + minute, true
}

// ParseStops reads a stop count from "Non stop", "direct", "1 stop via BOM"
// and the like.
func ParseStops(text string) (int, bool) {
	t := strings.ToLower(strings.TrimSpace(text))
	if t == "" {
		return 0, false
	}
	if strings.Contains(t, "non stop") || strings.Contains(t, "non-stop") ||
		strings.Contains(t, "nonstop") || strings.Contains(t, "direct") {
		return 0, true
	}
	if m := stopCountRe.FindStringSubmatch(t); m != nil {
		n, _ := strconv.Atoi(m[1])
		return n, true
	}
	for word, n := range stopWords {
		if strings.HasPrefix(t, word+" stop") {
			return n, true
		}
	}
	if n, err := strconv.Atoi(t); err == nil && n >= 0 {
		return n, true
	}
	return 0, false
}

var airlineAliases = map[string]string{
	"indigo":          "IndiGo",
	"airindia":        "Air India",
	"airindiaexpress": "Air India Express",
	"akasa":           "Akasa Air",
	"akasaair":        "Akasa Air",
	"spicejet":        "SpiceJet",
	"vistara":         "Vistara",
	"gofirst":         "Go First",
	"goair":           "Go First",
	"allianceair":     "Alliance Air",
	"starair":         "Star Air",
}

// CanonicalAirline trims and collapses whitespace and maps known spellings
// to one display name.
func CanonicalAirline(name string) string {
	name = strings.Join(strings.Fields(name), " ")
	key := strings.ToLower(strings.NewReplacer(" ", "", "-", "", ".", "").Replace(name))
	if alias, ok := airlineAliases[key]; ok {
		return alias
	}
	return name
}

// CanonicalFlightCode renders every designator/number pair as "6E 6622".
// Multi-leg codes are joined with ", ". A designator carries at least one
// letter, so a bare number such as "6622" comes back as is.
func CanonicalFlightCode(code string) string {
	code = strings.ToUpper(strings.Join(strings.Fields(code), " "))
	pairs := flightNumRe.FindAllStringSubmatch(code, -1)
	if len(pairs) == 0 {
		return code
	}
	legs := make([]string, 0, len(pairs))
	for _, p := range pairs {
		legs = append(legs, p[1]+" "+p[2])
	}
	return strings.Join(legs, ", ")
}
