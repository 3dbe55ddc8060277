package video

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	isoDurationRe = regexp.MustCompile(`^P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+(?:\.\d+)?)S)?)?$`)
	countRe       = regexp.MustCompile(`(?i)([\d.,]+)\s*([KMB])?`)
	handleRe      = regexp.MustCompile(`/@([A-Za-z0-9._-]+)`)
)

// languageNames maps ISO 639-1 codes to English names for the languages the
// harvesting pipeline reports.
var languageNames = map[string]string{
	"en": "English",
	"es": "Spanish",
	"fr": "French",
	"de": "German",
	"it": "Italian",
	"pt": "Portuguese",
	"ru": "Russian",
	"ja": "Japanese",
	"ko": "Korean",
	"zh": "Chinese",
	"hi": "Hindi",
	"ar": "Arabic",
	"nl": "Dutch",
	"pl": "Polish",
	"tr": "Turkish",
}

// ParseCount converts display counts such as "1,234", "1.2K" or "3M views"
// into an integer string. It returns Unknown when no number is present.
func ParseCount(s string) string {
	m := countRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return Unknown
	}
	num := m[1]
	suffix := strings.ToUpper(m[2])
	if suffix == "" {
		digits := strings.NewReplacer(",", "", ".", "").Replace(num)
		if digits == "" {
			return Unknown
		}
		n, err := strconv.ParseInt(digits, 10, 64)
		if err != nil {
			return Unknown
		}
		return strconv.FormatInt(n, 10)
	}

	f, err := strconv.ParseFloat(strings.ReplaceAll(num, ",", ""), 64)
	if err != nil {
		return Unknown
	}
	switch suffix {
	case "K":
		f *= 1e3
	case "M":
		f *= 1e6
	case "B":
		f *= 1e9
	}
	return strconv.FormatInt(int64(math.Round(f)), 10)
}

// ParseISODuration converts an ISO-8601 duration ("PT1H2M3S") into whole seconds.
func ParseISODuration(s string) (int, bool) {
	m := isoDurationRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil || s == "P" || s == "PT" {
		return 0, false
	}
	total := 0.0
	units := []float64{86400, 3600, 60, 1}
	for i, mult := range units {
		if m[i+1] == "" {
			continue
		}
		v, err := strconv.ParseFloat(m[i+1], 64)
		if err != nil {
			return 0, false
		}
		total += v * mult
	}
	return int(total), true
}

// ParseLocale splits a locale such as "en-US" or "pt_BR" into language code and country.
func ParseLocale(s string) (lang, country string) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Unknown, Unknown
	}
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == '-' || r == '_' })
	if len(parts) == 0 {
		return Unknown, Unknown
	}
	lang = strings.ToLower(parts[0])
	country = Unknown
	if len(parts) > 1 {
		country = strings.ToUpper(parts[1])
	}
	return lang, country
}

// LanguageName returns the English name for an ISO 639-1 code.
func LanguageName(code string) string {
	if name, ok := languageNames[strings.ToLower(code)]; ok {
		return name
	}
	return Unknown
}

// ChannelHandle extracts the "@handle" from a channel URL.
func ChannelHandle(url string) string {
	m := handleRe.FindStringSubmatch(url)
	if m == nil {
		return Unknown
	}
	return "@" + m[1]
}

// WatchURL returns the canonical watch page for a video id.
func WatchURL(id string) string {
	return "https://www.youtube.com/watch?v=" + id
}
