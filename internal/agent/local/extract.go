// ABOUTME: Rule-based extraction of trip fields from free text
// ABOUTME: Recognizes destinations, durations, budgets, dates and preference keywords in English and Korean

package local

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/2389/voyage-gateway/internal/itinerary"
)

var (
	destinationRe   = regexp.MustCompile(`\b(?:[Tt]rip|[Tt]ravel|[Gg]o|[Gg]oing|[Vv]isit(?:ing)?|[Ff]ly(?:ing)?)\s+(?:to\s+)?([A-Z][a-zA-Z-]+(?:\s[A-Z][a-zA-Z-]+)?)`)
	toRe            = regexp.MustCompile(`\bto\s+([A-Z][a-zA-Z-]+)`)
	destinationKoRe = regexp.MustCompile(`([가-힣]{2,}?)\s*(?:으로|로)?\s*(?:여행|가고)`)
	departureRe     = regexp.MustCompile(`\b[Ff]rom\s+([A-Z][a-zA-Z-]+)`)
	departureKoRe   = regexp.MustCompile(`([가-힣]{2,})에서\s*출발`)
	durationRe      = regexp.MustCompile(`(?i)\d+\s*박\s*\d+\s*일|\d+\s*-?\s*(?:days?|nights?|일)\b|\d+\s*일`)
	dateRe          = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)
	budgetRe        = regexp.MustCompile(`(?i)\$\s?[\d,]+(?:\.\d+)?|\d[\d,.]*\s?(?:만\s?원|만|원|krw|won|usd|dollars?)\b|\d[\d,.]*\s?(?:만\s?원|만|원)`)
	budgetWordRe    = regexp.MustCompile(`(?i)budget\s*(?:is|of|:)?\s*([\d,]+)`)
	amountRe        = regexp.MustCompile(`\d[\d,.]*`)
	tokenRe         = regexp.MustCompile(`[a-z]+`)
)

// keywords maps a canonical value to the words that signal it.
type keywords []struct {
	value string
	words []string
}

// find returns the values whose words appear in text. Latin words must
// match a whole token (plural allowed) so "sea" does not fire on "season";
// Hangul words match as substrings since particles attach to them.
func (k keywords) find(text string) []string {
	lower := strings.ToLower(text)
	tokens := make(map[string]bool)
	for _, tok := range tokenRe.FindAllString(lower, -1) {
		tokens[tok] = true
	}
	var out []string
	for _, kw := range k {
		for _, w := range kw.words {
			if hasWord(lower, tokens, w) {
				out = append(out, kw.value)
				break
			}
		}
	}
	return out
}

func hasWord(lower string, tokens map[string]bool, w string) bool {
	if w[0] >= utf8.RuneSelf {
		return strings.Contains(lower, w)
	}
	return tokens[w] || tokens[w+"s"] || tokens[w+"es"]
}

func (k keywords) first(text string) string {
	if found := k.find(text); len(found) > 0 {
		return found[0]
	}
	return ""
}

var (
	styleWords = keywords{
		{"relaxed", []string{"relax", "relaxed", "relaxing", "slow", "healing", "휴양", "힐링", "여유"}},
		{"active", []string{"active", "adventure", "adventurous", "액티비티", "모험"}},
		{"cultural", []string{"culture", "cultural", "history", "문화", "역사"}},
	}
	activityWords = keywords{
		{"beach", []string{"beach", "sea", "해변", "바다"}},
		{"hiking", []string{"hiking", "hike", "trekking", "mountain", "등산", "산행"}},
		{"food", []string{"food", "foodie", "eating", "restaurant", "맛집", "음식"}},
		{"museum", []string{"museum", "gallery", "박물관", "미술관"}},
		{"shopping", []string{"shopping", "market", "쇼핑"}},
		{"history", []string{"temple", "palace", "heritage", "사찰", "궁"}},
	}
	accommodationWords = keywords{
		{"hotel", []string{"hotel", "호텔"}},
		{"resort", []string{"resort", "리조트"}},
		{"hostel", []string{"hostel", "guesthouse", "게스트하우스"}},
		{"pension", []string{"pension", "펜션"}},
	}
	transportationWords = keywords{
		{"train", []string{"train", "ktx", "기차"}},
		{"car", []string{"car", "drive", "driving", "rental", "자동차", "렌트"}},
		{"bus", []string{"bus", "버스"}},
		{"flight", []string{"flight", "plane", "airplane", "비행기"}},
	}
	recommendWords = []string{"recommend", "suggest", "where should", "추천", "어디"}
	planWords      = []string{"trip", "travel", "itinerary", "plan", "여행", "일정"}
)

// Extract returns the trip fields text mentions.
func Extract(text string) itinerary.TripContext {
	var trip itinerary.TripContext
	if m := destinationRe.FindStringSubmatch(text); m != nil {
		trip.Destination = m[1]
	} else if m := toRe.FindStringSubmatch(text); m != nil {
		trip.Destination = m[1]
	} else if m := destinationKoRe.FindStringSubmatch(text); m != nil {
		trip.Destination = m[1]
	}
	if m := departureRe.FindStringSubmatch(text); m != nil {
		trip.DepartureLocation = m[1]
	} else if m := departureKoRe.FindStringSubmatch(text); m != nil {
		trip.DepartureLocation = m[1]
	}
	trip.Duration = durationRe.FindString(text)
	trip.DepartureDate = dateRe.FindString(text)
	trip.Preferences.Budget = extractBudget(text)
	trip.Preferences.Activities = activityWords.find(text)
	trip.Preferences.Accommodation = accommodationWords.first(text)
	trip.Preferences.Transportation = transportationWords.first(text)
	trip.TravelStyle = styleWords.first(text)
	return trip
}

func extractBudget(text string) string {
	// Dates and durations contain digits too.
	cleaned := dateRe.ReplaceAllString(text, " ")
	cleaned = durationRe.ReplaceAllString(cleaned, " ")
	if m := budgetRe.FindString(cleaned); m != "" {
		return strings.TrimSpace(m)
	}
	if m := budgetWordRe.FindStringSubmatch(cleaned); m != nil {
		return m[1]
	}
	return ""
}

// ParseAmount reads a budget string such as "500000 KRW", "50만원" or
// "$1,200" as a number. Returns false when no amount is present.
func ParseAmount(budget string) (float64, bool) {
	digits := amountRe.FindString(budget)
	if digits == "" {
		return 0, false
	}
	n, err := strconv.ParseFloat(strings.ReplaceAll(digits, ",", ""), 64)
	if err != nil {
		return 0, false
	}
	if strings.Contains(budget, "만") {
		n *= 10000
	}
	return n, true
}

func containsAny(text string, words []string) bool {
	lower := strings.ToLower(text)
	for _, w := range words {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}
