// Package temporal converts natural-language time expressions in queries
// into time-range constraints with three-factor confidence (source,
// granularity, interpretation). Relative and absolute phrases are handled by
// deterministic rules with the when library as a fallback recognizer.
package temporal

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"

	"memory-core/internal/config"
)

// ExpressionType classifies a recognized time expression.
type ExpressionType string

const (
	ExprExplicitAbsolute ExpressionType = "explicit_absolute"
	ExprExplicitRelative ExpressionType = "explicit_relative"
	ExprFuzzyPeriod      ExpressionType = "fuzzy_period"
	ExprDuration         ExpressionType = "duration"
	ExprNone             ExpressionType = "none"
)

// Valid returns true if the expression type is valid.
func (et ExpressionType) Valid() bool {
	switch et {
	case ExprExplicitAbsolute, ExprExplicitRelative, ExprFuzzyPeriod, ExprDuration, ExprNone:
		return true
	}
	return false
}

// Confidence factor table keys.
const (
	SourceUserExplicit      = "user_explicit"
	SourceCalendarSync      = "calendar_sync"
	SourceFileTimestamp     = "file_timestamp"
	SourceContentExtraction = "content_extraction"
	SourceContextInference  = "context_inference"
	SourceUnknown           = "unknown"

	GranularitySecond = "second"
	GranularityMinute = "minute"
	GranularityHour   = "hour"
	GranularityDay    = "day"
	GranularityWeek   = "week"
	GranularityMonth  = "month"
	GranularityYear   = "year"
)

// Constraint is the parsed time constraint for a query. RangeEnd is
// exclusive.
type Constraint struct {
	RangeStart         time.Time      `json:"range_start"`
	RangeEnd           time.Time      `json:"range_end"`
	RangeConfidence    float64        `json:"range_confidence"`
	ExpressionType     ExpressionType `json:"expression_type"`
	OriginalExpression string         `json:"original_expression"`
}

// Parser recognizes time expressions in query text.
type Parser struct {
	cfg      config.TemporalConfig
	fallback *when.Parser
}

// NewParser creates a parser with the given factor tables.
func NewParser(cfg config.TemporalConfig) *Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return &Parser{cfg: cfg, fallback: w}
}

// Confidence computes the combined confidence product for a source,
// granularity, and interpretation. Unknown keys use the weakest factor in
// their table.
func (p *Parser) Confidence(source, granularity string, expr ExpressionType) float64 {
	s, ok := p.cfg.SourceFactors[source]
	if !ok {
		s = p.cfg.SourceFactors[SourceUnknown]
	}
	g, ok := p.cfg.GranularityFactors[granularity]
	if !ok {
		g = p.cfg.GranularityFactors[GranularityYear]
	}
	i := p.cfg.InterpretationFactors[string(expr)]
	return s * g * i
}

var (
	seasonRe   = regexp.MustCompile(`(?i)\b(around\s+|sometime\s+(?:in\s+)?|last\s+)?(spring|summer|fall|autumn|winter)(?:\s+(?:of\s+)?(\d{4}))?\b`)
	monthRe    = regexp.MustCompile(`(?i)\b(?:in\s+)?(january|february|march|april|may|june|july|august|september|october|november|december)(?:\s+(\d{4}))?\b`)
	agoRe      = regexp.MustCompile(`(?i)\b(\d+)\s+(day|week|month|year)s?\s+ago\b`)
	lastRe     = regexp.MustCompile(`(?i)\b(last|this)\s+(week|month|year)\b`)
	durationRe = regexp.MustCompile(`(?i)\b(?:past|last)\s+(\d+)\s+(day|week|month|year)s?\b`)
	dayWordRe  = regexp.MustCompile(`(?i)\b(yesterday|today)\b`)
	fuzzyRe    = regexp.MustCompile(`(?i)\b(a while (?:back|ago)|recently|not long ago)\b`)
)

var monthsByName = map[string]time.Month{
	"january": time.January, "february": time.February, "march": time.March,
	"april": time.April, "may": time.May, "june": time.June, "july": time.July,
	"august": time.August, "september": time.September, "october": time.October,
	"november": time.November, "december": time.December,
}

// Northern-Hemisphere season start months. Winter wraps the year boundary.
var seasonStartMonth = map[string]time.Month{
	"spring": time.March,
	"summer": time.June,
	"fall":   time.September,
	"autumn": time.September,
	"winter": time.December,
}

// Parse extracts the first time expression from the query, or returns nil
// when the query contains none. Recognition order: durations, explicit
// relatives, seasons, absolute months, fuzzy periods, then the when-library
// fallback.
func (p *Parser) Parse(query string, now time.Time) *Constraint {
	if strings.TrimSpace(query) == "" {
		return nil
	}
	if c := p.parseDuration(query, now); c != nil {
		return c
	}
	if c := p.parseRelative(query, now); c != nil {
		return c
	}
	if c := p.parseSeason(query, now); c != nil {
		return c
	}
	if c := p.parseMonth(query, now); c != nil {
		return c
	}
	if c := p.parseFuzzy(query, now); c != nil {
		return c
	}
	return p.parseWithFallback(query, now)
}

// parseDuration handles "past 3 days" / "last 2 weeks" style windows ending
// now.
func (p *Parser) parseDuration(query string, now time.Time) *Constraint {
	m := durationRe.FindStringSubmatch(query)
	if m == nil {
		return nil
	}
	count, err := strconv.Atoi(m[1])
	if err != nil || count <= 0 {
		return nil
	}
	unit := strings.ToLower(m[2])
	start := addUnits(now, unit, -count)
	return &Constraint{
		RangeStart:         start,
		RangeEnd:           now,
		RangeConfidence:    p.Confidence(SourceUserExplicit, unit, ExprDuration),
		ExpressionType:     ExprDuration,
		OriginalExpression: strings.TrimSpace(m[0]),
	}
}

// parseRelative handles "3 days ago", "last week", "yesterday".
func (p *Parser) parseRelative(query string, now time.Time) *Constraint {
	if m := agoRe.FindStringSubmatch(query); m != nil {
		count, err := strconv.Atoi(m[1])
		if err != nil {
			return nil
		}
		unit := strings.ToLower(m[2])
		point := addUnits(now, unit, -count)
		start, end := unitBounds(point, unit)
		return &Constraint{
			RangeStart:         start,
			RangeEnd:           end,
			RangeConfidence:    p.Confidence(SourceUserExplicit, unit, ExprExplicitRelative),
			ExpressionType:     ExprExplicitRelative,
			OriginalExpression: strings.TrimSpace(m[0]),
		}
	}
	if m := lastRe.FindStringSubmatch(query); m != nil {
		unit := strings.ToLower(m[2])
		point := now
		if strings.EqualFold(m[1], "last") {
			point = addUnits(now, unit, -1)
		}
		start, end := unitBounds(point, unit)
		return &Constraint{
			RangeStart:         start,
			RangeEnd:           end,
			RangeConfidence:    p.Confidence(SourceUserExplicit, unit, ExprExplicitRelative),
			ExpressionType:     ExprExplicitRelative,
			OriginalExpression: strings.TrimSpace(m[0]),
		}
	}
	if m := dayWordRe.FindStringSubmatch(query); m != nil {
		point := now
		if strings.EqualFold(m[1], "yesterday") {
			point = now.AddDate(0, 0, -1)
		}
		start, end := unitBounds(point, GranularityDay)
		return &Constraint{
			RangeStart:         start,
			RangeEnd:           end,
			RangeConfidence:    p.Confidence(SourceUserExplicit, GranularityDay, ExprExplicitRelative),
			ExpressionType:     ExprExplicitRelative,
			OriginalExpression: strings.TrimSpace(m[0]),
		}
	}
	return nil
}

// parseSeason handles Northern-Hemisphere seasons, optionally qualified by a
// year, "last", or a fuzzy prefix ("around summer").
func (p *Parser) parseSeason(query string, now time.Time) *Constraint {
	m := seasonRe.FindStringSubmatch(query)
	if m == nil {
		return nil
	}
	prefix := strings.ToLower(strings.TrimSpace(m[1]))
	season := strings.ToLower(m[2])
	startMonth := seasonStartMonth[season]

	year := now.Year()
	expr := ExprExplicitAbsolute
	switch {
	case m[3] != "":
		parsed, err := strconv.Atoi(m[3])
		if err != nil {
			return nil
		}
		year = parsed
	case prefix == "last":
		expr = ExprExplicitRelative
		year = lastSeasonYear(now, startMonth)
	default:
		// Unqualified seasons refer to the most recent occurrence.
		if seasonStart(year, startMonth).After(now) {
			year--
		}
	}
	if strings.HasPrefix(prefix, "around") || strings.HasPrefix(prefix, "sometime") {
		expr = ExprFuzzyPeriod
	}

	start := seasonStart(year, startMonth)
	return &Constraint{
		RangeStart:         start,
		RangeEnd:           start.AddDate(0, 3, 0),
		RangeConfidence:    p.Confidence(SourceUserExplicit, GranularityMonth, expr),
		ExpressionType:     expr,
		OriginalExpression: strings.TrimSpace(m[0]),
	}
}

// parseMonth handles absolute month names, optionally with a year. A bare
// month refers to its most recent occurrence.
func (p *Parser) parseMonth(query string, now time.Time) *Constraint {
	m := monthRe.FindStringSubmatch(query)
	if m == nil {
		return nil
	}
	month := monthsByName[strings.ToLower(m[1])]
	year := now.Year()
	if m[2] != "" {
		parsed, err := strconv.Atoi(m[2])
		if err != nil {
			return nil
		}
		year = parsed
	} else if time.Date(year, month, 1, 0, 0, 0, 0, now.Location()).After(now) {
		year--
	}
	start := time.Date(year, month, 1, 0, 0, 0, 0, now.Location())
	return &Constraint{
		RangeStart:         start,
		RangeEnd:           start.AddDate(0, 1, 0),
		RangeConfidence:    p.Confidence(SourceUserExplicit, GranularityMonth, ExprExplicitAbsolute),
		ExpressionType:     ExprExplicitAbsolute,
		OriginalExpression: strings.TrimSpace(m[0]),
	}
}

// parseFuzzy handles vague references like "a while back".
func (p *Parser) parseFuzzy(query string, now time.Time) *Constraint {
	m := fuzzyRe.FindStringSubmatch(query)
	if m == nil {
		return nil
	}
	phrase := strings.ToLower(m[1])
	var start, end time.Time
	if phrase == "recently" || phrase == "not long ago" {
		start, end = now.AddDate(0, 0, -14), now
	} else {
		start, end = now.AddDate(0, -6, 0), now.AddDate(0, -1, 0)
	}
	return &Constraint{
		RangeStart:         start,
		RangeEnd:           end,
		RangeConfidence:    p.Confidence(SourceUserExplicit, GranularityMonth, ExprFuzzyPeriod),
		ExpressionType:     ExprFuzzyPeriod,
		OriginalExpression: strings.TrimSpace(m[0]),
	}
}

// parseWithFallback delegates to the when library for expressions the rule
// set misses ("next friday", "june 5th"). Matches resolve to a day range.
func (p *Parser) parseWithFallback(query string, now time.Time) *Constraint {
	result, err := p.fallback.Parse(query, now)
	if err != nil || result == nil {
		return nil
	}
	start, end := unitBounds(result.Time, GranularityDay)
	return &Constraint{
		RangeStart:         start,
		RangeEnd:           end,
		RangeConfidence:    p.Confidence(SourceUserExplicit, GranularityDay, ExprExplicitRelative),
		ExpressionType:     ExprExplicitRelative,
		OriginalExpression: strings.TrimSpace(result.Text),
	}
}

func addUnits(t time.Time, unit string, count int) time.Time {
	switch unit {
	case GranularityDay:
		return t.AddDate(0, 0, count)
	case GranularityWeek:
		return t.AddDate(0, 0, 7*count)
	case GranularityMonth:
		return t.AddDate(0, count, 0)
	case GranularityYear:
		return t.AddDate(count, 0, 0)
	default:
		return t
	}
}

// unitBounds returns the [start, end) range of the unit containing t. Weeks
// start on Monday.
func unitBounds(t time.Time, unit string) (time.Time, time.Time) {
	switch unit {
	case GranularityWeek:
		weekday := (int(t.Weekday()) + 6) % 7 // Monday = 0
		start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location()).AddDate(0, 0, -weekday)
		return start, start.AddDate(0, 0, 7)
	case GranularityMonth:
		start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
		return start, start.AddDate(0, 1, 0)
	case GranularityYear:
		start := time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, t.Location())
		return start, start.AddDate(1, 0, 0)
	default: // day
		start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
		return start, start.AddDate(0, 0, 1)
	}
}

func seasonStart(year int, startMonth time.Month) time.Time {
	return time.Date(year, startMonth, 1, 0, 0, 0, 0, time.UTC)
}

// lastSeasonYear finds the year of the most recent completed occurrence of a
// season starting at startMonth.
func lastSeasonYear(now time.Time, startMonth time.Month) int {
	year := now.Year()
	if seasonStart(year, startMonth).AddDate(0, 3, 0).After(now) {
		year--
	}
	return year
}
