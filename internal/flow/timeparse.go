package flow

import (
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

// occurredAtLayouts are tried in order before falling back to the
// natural-language parser.
var occurredAtLayouts = []string{
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02/01/2006 15:04",
	"02/01/2006",
	"Jan 2 2006 15:04",
	"Jan 2, 2006 15:04",
}

var naturalParser = func() *when.Parser {
	p := when.New(nil)
	p.Add(en.All...)
	p.Add(common.All...)
	return p
}()

// ParseOccurredAt parses a user-supplied occurrence time. Fixed layouts are
// tried first, then natural-language phrases like "yesterday 4pm" relative
// to base. Returns an error when nothing yields a valid point in time.
func ParseOccurredAt(input string, base time.Time) (time.Time, error) {
	text := strings.TrimSpace(input)
	if text == "" {
		return time.Time{}, fmt.Errorf("empty date input")
	}

	for _, layout := range occurredAtLayouts {
		if t, err := time.ParseInLocation(layout, text, base.Location()); err == nil {
			return t, nil
		}
	}

	result, err := naturalParser.Parse(text, base)
	if err == nil && result != nil {
		return result.Time, nil
	}
	return time.Time{}, fmt.Errorf("unrecognized date/time %q", input)
}
