package excel

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// DecimalSeparator selects how numeric-looking cell text is parsed.
type DecimalSeparator int

const (
	// Dot treats ',' as grouping and '.' as the decimal separator.
	Dot DecimalSeparator = iota
	// Comma treats '.' as grouping and ',' as the decimal separator.
	Comma
	// Magic guesses: a trailing separator followed by exactly two digits is
	// the decimal part, every other ',', '.' or '\'' is grouping. Text with
	// surrounding whitespace is not a magic number.
	Magic
)

func ParseDecimalSeparator(s string) (DecimalSeparator, error) {
	switch s {
	case "dot":
		return Dot, nil
	case "comma":
		return Comma, nil
	case "magic":
		return Magic, nil
	}
	return Dot, fmt.Errorf("unknown input decimal separator %q (want dot, comma or magic)", s)
}

func (d DecimalSeparator) String() string {
	switch d {
	case Comma:
		return "comma"
	case Magic:
		return "magic"
	default:
		return "dot"
	}
}

var (
	magicDecimal  = regexp.MustCompile(`^(-?[\d,.']+)[,.](\d{2})$`)
	magicInteger  = regexp.MustCompile(`^(-?[\d,.']+)$`)
	magicPlaces   = regexp.MustCompile(`^-?[\d',.]*[.,]\d{2}$`)
	magicGrouping = strings.NewReplacer(",", "", ".", "", "'", "")
)

// Parse returns the numeric value of s, or false when s is not a number
// under this separator convention.
func (d DecimalSeparator) Parse(s string) (float64, bool) {
	switch d {
	case Comma:
		return parseFloat(strings.ReplaceAll(strings.ReplaceAll(s, ".", ""), ",", "."))
	case Magic:
		if m := magicDecimal.FindStringSubmatch(s); m != nil {
			if v, ok := parseFloat(magicGrouping.Replace(m[1]) + "." + m[2]); ok {
				return v, true
			}
		}
		if m := magicInteger.FindStringSubmatch(s); m != nil {
			if v, ok := parseFloat(magicGrouping.Replace(m[1])); ok {
				return v, true
			}
		}
		return 0, false
	default:
		return parseFloat(strings.ReplaceAll(s, ",", ""))
	}
}

// DecimalPlaces is the number of decimals to display for s.
func (d DecimalSeparator) DecimalPlaces(s string) int {
	switch d {
	case Comma:
		return placesAfter(s, ",")
	case Magic:
		if magicPlaces.MatchString(s) {
			return 2
		}
		return 0
	default:
		return placesAfter(s, ".")
	}
}

func placesAfter(s, sep string) int {
	s = strings.TrimSpace(s)
	i := strings.LastIndex(s, sep)
	if i < 0 {
		return 0
	}
	return len(s) - i - len(sep)
}

func parseFloat(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
