// Package chain provides strike and expiration filtering over options-chain tables.
package chain

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	apperrors "options-analyzer/internal/errors"
	"options-analyzer/internal/models"
)

// ExpirationAxis selects which expiration column drives filtering and grouping.
type ExpirationAxis int

const (
	// AxisDate uses the calendar expiration date.
	AxisDate ExpirationAxis = iota
	// AxisDays uses the integer days-to-expiration column.
	AxisDays
)

// AxisFor returns AxisDays when showDays is set, AxisDate otherwise.
func AxisFor(showDays bool) ExpirationAxis {
	if showDays {
		return AxisDays
	}
	return AxisDate
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006/01/02",
	"01/02/2006",
}

// Key returns the ordered expiration key of rec on the axis: the days to
// expiration, or the calendar date as days since the Unix epoch. ok is false
// when the row carries no usable expiration.
func (a ExpirationAxis) Key(rec models.OptionRecord) (key int64, ok bool) {
	if a == AxisDays {
		return int64(rec.DTE), true
	}
	if rec.Expiration.IsZero() {
		return 0, false
	}
	return epochDays(rec.Expiration), true
}

// Parse coerces a user-supplied expiration value onto the axis.
// Day values accept a trailing unit ("30 days").
func (a ExpirationAxis) Parse(v string) (int64, error) {
	v = strings.TrimSpace(v)
	if a == AxisDays {
		fields := strings.Fields(v)
		if len(fields) == 0 {
			return 0, fmt.Errorf("empty days value")
		}
		n, err := strconv.Atoi(fields[0])
		if err != nil {
			return 0, err
		}
		return int64(n), nil
	}
	t, err := ParseDate(v)
	if err != nil {
		return 0, err
	}
	return epochDays(t), nil
}

// Format renders a key produced by Key or Parse.
func (a ExpirationAxis) Format(key int64) string {
	if a == AxisDays {
		return strconv.FormatInt(key, 10)
	}
	return DateFromKey(key).Format("2006-01-02")
}

// ParseDate parses a calendar date in any of the accepted layouts.
func ParseDate(v string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", v)
}

// DateFromKey converts a date-axis key back into a UTC midnight time.
func DateFromKey(key int64) time.Time {
	return time.Unix(key*86400, 0).UTC()
}

func epochDays(t time.Time) int64 {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / 86400
}

// SelectorKind names an expiration selection policy.
type SelectorKind string

const (
	SelectAll      SelectorKind = "All"
	SelectSpecific SelectorKind = "Specific"
	SelectPeak     SelectorKind = "Peak"
)

// ExpirationSelector narrows a chain by expiration.
type ExpirationSelector struct {
	Kind   SelectorKind
	Values []string
}

// All selects every expiration.
func All() ExpirationSelector {
	return ExpirationSelector{Kind: SelectAll}
}

// Specific keeps rows whose expiration is one of values.
func Specific(values ...string) ExpirationSelector {
	return ExpirationSelector{Kind: SelectSpecific, Values: values}
}

// Peak keeps rows whose expiration is at or before value.
func Peak(value string) ExpirationSelector {
	return ExpirationSelector{Kind: SelectPeak, Values: []string{value}}
}

// ParseSelector builds a selector from a kind name and its values.
func ParseSelector(kind string, values []string) (ExpirationSelector, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "all":
		return All(), nil
	case "specific":
		return Specific(values...), nil
	case "peak":
		if len(values) == 0 {
			return Peak(""), nil
		}
		return Peak(values[0]), nil
	default:
		return ExpirationSelector{}, apperrors.NewValidationErrorFor(apperrors.ErrInvalidSelector, "selector", kind, "must be All, Specific or Peak")
	}
}

// Empty reports whether the selector applies no expiration filter.
// An empty value list means no filter, whatever the kind.
func (s ExpirationSelector) Empty() bool {
	if s.Kind == SelectAll || s.Kind == "" {
		return true
	}
	for _, v := range s.Values {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// Keys coerces the selector values onto axis.
func (s ExpirationSelector) Keys(axis ExpirationAxis) ([]int64, error) {
	keys := make([]int64, 0, len(s.Values))
	for _, v := range s.Values {
		if strings.TrimSpace(v) == "" {
			continue
		}
		k, err := axis.Parse(v)
		if err != nil {
			return nil, apperrors.NewValidationErrorFor(apperrors.ErrInvalidSelector, "expiration", v, err.Error())
		}
		keys = append(keys, k)
	}
	return keys, nil
}

// FilterOptions holds the parameters of Filter.
type FilterOptions struct {
	Axis       ExpirationAxis
	Expiration ExpirationSelector
	StrikeLow  float64
	StrikeHigh float64
}

// Filter returns the rows matching the expiration selector whose strike lies
// strictly between StrikeLow and StrikeHigh. The input is never modified.
func Filter(rows []models.OptionRecord, opts FilterOptions) ([]models.OptionRecord, error) {
	match, err := ExpirationMatcher(opts.Axis, opts.Expiration)
	if err != nil {
		return nil, err
	}

	out := make([]models.OptionRecord, 0, len(rows))
	for _, r := range rows {
		if !match(r) {
			continue
		}
		if !InStrikeRange(r.Strike, opts.StrikeLow, opts.StrikeHigh) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// InStrikeRange reports whether low < strike < high.
func InStrikeRange(strike, low, high float64) bool {
	return low < strike && strike < high
}

// ExpirationMatcher compiles sel into a row predicate on axis.
func ExpirationMatcher(axis ExpirationAxis, sel ExpirationSelector) (func(models.OptionRecord) bool, error) {
	if sel.Empty() {
		return func(models.OptionRecord) bool { return true }, nil
	}

	keys, err := sel.Keys(axis)
	if err != nil {
		return nil, err
	}

	switch sel.Kind {
	case SelectSpecific:
		set := make(map[int64]struct{}, len(keys))
		for _, k := range keys {
			set[k] = struct{}{}
		}
		return func(r models.OptionRecord) bool {
			k, ok := axis.Key(r)
			if !ok {
				return false
			}
			_, hit := set[k]
			return hit
		}, nil
	case SelectPeak:
		limit := keys[0]
		return func(r models.OptionRecord) bool {
			k, ok := axis.Key(r)
			return ok && k <= limit
		}, nil
	default:
		return nil, apperrors.NewValidationErrorFor(apperrors.ErrInvalidSelector, "selector", sel.Kind, "must be All, Specific or Peak")
	}
}

// ByType returns the rows of the given option type.
func ByType(rows []models.OptionRecord, t models.OptionType) []models.OptionRecord {
	out := make([]models.OptionRecord, 0, len(rows)/2)
	for _, r := range rows {
		if r.Type == t {
			out = append(out, r)
		}
	}
	return out
}

// DateForDays returns the calendar expiration of the first row expiring in days.
func DateForDays(rows []models.OptionRecord, days int) (time.Time, bool) {
	for _, r := range rows {
		if r.DTE == days && !r.Expiration.IsZero() {
			return r.Expiration, true
		}
	}
	return time.Time{}, false
}
