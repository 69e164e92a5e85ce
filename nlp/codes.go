package nlp

import (
	"encoding/json"
	"strings"
	"time"
)

// Code is one concept code reported by an engine. Negated mentions keep
// the same value with Negated set; the leading "-" marker exists only
// in serialized form.
type Code struct {
	Value   string
	Negated bool
}

// ParseCode reads the serialized form, honoring the negation marker.
func ParseCode(s string) Code {
	if strings.HasPrefix(s, "-") {
		return Code{Value: s[1:], Negated: true}
	}
	return Code{Value: s}
}

// String renders the code with its negation marker.
func (c Code) String() string {
	if c.Negated {
		return "-" + c.Value
	}
	return c.Value
}

// MarshalJSON encodes the code as its marker-prefixed string form.
func (c Code) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// UnmarshalJSON decodes the marker-prefixed string form.
func (c *Code) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*c = ParseCode(s)
	return nil
}

// Codes parses a list of serialized code values.
func Codes(values ...string) []Code {
	if len(values) == 0 {
		return nil
	}
	out := make([]Code, 0, len(values))
	for _, v := range values {
		out = append(out, ParseCode(v))
	}
	return out
}

// CodeSet groups codes by code system name. An engine attempt that
// found nothing is a non-nil CodeSet with no codes, which is distinct
// from no attempt at all.
type CodeSet map[string][]Code

// Values returns the serialized codes recorded under system.
func (cs CodeSet) Values(system string) []string {
	codes := cs[system]
	if len(codes) == 0 {
		return nil
	}
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		out = append(out, c.String())
	}
	return out
}

// Empty reports whether the set holds no codes under any system.
func (cs CodeSet) Empty() bool {
	for _, codes := range cs {
		if len(codes) > 0 {
			return false
		}
	}
	return true
}

// Count returns the total number of codes across all systems.
func (cs CodeSet) Count() int {
	n := 0
	for _, codes := range cs {
		n += len(codes)
	}
	return n
}

// Result is one engine's recorded attempt for one unit: the codes it
// reported, possibly none, and when they were harvested.
type Result struct {
	Date  time.Time `json:"date"`
	Codes CodeSet   `json:"codes"`
}

// Merge overlays cs onto the result. Only the code systems cs itself
// carries are replaced; systems recorded by earlier merges survive. The
// harvest date is restamped.
func (r *Result) Merge(cs CodeSet) {
	if r.Codes == nil {
		r.Codes = CodeSet{}
	}
	for system, codes := range cs {
		r.Codes[system] = codes
	}
	r.Date = time.Now()
}
