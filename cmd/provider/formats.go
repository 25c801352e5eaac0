package main

import (
	"fmt"
	"strconv"
	"strings"
)

// listingFormat renders one quoted flight the way a particular source does.
type listingFormat func(f flight, price int64, cabin string) map[string]any

// makemytripFormat: "₹ 16,058", "02 h 55 m", 24h clock, "6E 6622".
func makemytripFormat(f flight, price int64, cabin string) map[string]any {
	out := map[string]any{
		"airline":     f.carrier.name,
		"flight_code": f.carrier.code + " " + strconv.Itoa(f.number),
		"departure":   clock24(f.depart),
		"arrival":     clock24(f.arrive()),
		"duration":    fmt.Sprintf("%02d h %02d m", f.duration/60, f.duration%60),
		"stops":       stopsVia(f),
		"price":       "₹ " + groupThousands(price),
		"cabin":       titleCase(cabin),
	}
	if price > 8000 {
		out["offers"] = []string{"Get FLAT ₹ 400 OFF using MMTSUPER", "Free cancellation on select fares"}
	}
	return out
}

// goibiboFormat: numeric price, minute-count duration, 12h clock, "6E-6622".
func goibiboFormat(f flight, price int64, cabin string) map[string]any {
	out := map[string]any{
		"id":          strings.ToLower(f.key()),
		"airline":     strings.ToLower(f.carrier.name),
		"flight_code": f.carrier.code + "-" + strconv.Itoa(f.number),
		"departure":   clock12(f.depart),
		"arrival":     clock12(f.arrive()),
		"duration":    strconv.Itoa(f.duration),
		"stops":       stopCount(f.stops),
		"price":       price,
	}
	if cabin != "economy" {
		out["cabin"] = cabin
	}
	if f.stops == 0 {
		out["offers"] = "Flat 5% off with GOFLY; Free meal"
	}
	return out
}

// cleartripFormat: "Rs. 16,058", "2h 55m", "18:00 hrs", "6E6622".
func cleartripFormat(f flight, price int64, cabin string) map[string]any {
	stops := "direct"
	if f.stops > 0 {
		stops = []string{"", "one stop", "two stops", "three stops"}[min(f.stops, 3)]
	}
	return map[string]any{
		"airline":     strings.ToUpper(f.carrier.name),
		"flight_code": f.carrier.code + strconv.Itoa(f.number),
		"departure":   clock24(f.depart) + " hrs",
		"arrival":     clock24(f.arrive()) + " hrs",
		"duration":    fmt.Sprintf("%dh %dm", f.duration/60, f.duration%60),
		"stops":       stops,
		"price":       "Rs. " + groupThousands(price),
		"cabin":       cabin,
	}
}

func clock24(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

func clock12(minutes int) string {
	h, m := minutes/60, minutes%60
	suffix := "AM"
	if h >= 12 {
		suffix = "PM"
	}
	h %= 12
	if h == 0 {
		h = 12
	}
	return fmt.Sprintf("%d:%02d %s", h, m, suffix)
}

func stopsVia(f flight) string {
	if f.stops == 0 {
		return "Non stop"
	}
	return fmt.Sprintf("%s via %s", stopCount(f.stops), strings.Join(f.via, ", "))
}

func stopCount(n int) string {
	switch n {
	case 0:
		return "non-stop"
	case 1:
		return "1 stop"
	default:
		return strconv.Itoa(n) + " stops"
	}
}

func groupThousands(n int64) string {
	s := strconv.FormatInt(n, 10)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
