package nlp

import (
	"regexp"
	"strings"

	"github.com/trialkit/codify/errors"
	"github.com/trialkit/codify/logger"
)

var (
	blockSplitRe = regexp.MustCompile(`(?:\n\s*){2,}`)
	whitespaceRe = regexp.MustCompile(`\s+`)

	inclusionHeaderRe = regexp.MustCompile(`(?i)^[^\w]*inclusion criteria`)
	exclusionHeaderRe = regexp.MustCompile(`(?i)exclusion criteria`)
	mentionsInclusion = regexp.MustCompile(`(?i)inclusion`)
	mentionsExclusion = regexp.MustCompile(`(?i)exclusion`)

	dashMarkerRe   = regexp.MustCompile(`^-\s+`)
	numberMarkerRe = regexp.MustCompile(`^\d+\.\s+`)
	parenMarkerRe  = regexp.MustCompile(`^(-\s*)?\d+\)\s+`)
)

// SegmentCriteria splits eligibility text into inclusion and exclusion
// criteria, one cleaned item per paragraph block.
//
// Blocks are separated by two or more blank-ish lines. A block reading
// "inclusion criteria" switches classification to inclusion unless it
// also mentions exclusion; registries sometimes write the exclusion
// section as "None if patients fulfill inclusion criteria.", which must
// not be taken for a header. The exclusion header is detected the same
// way. Header blocks themselves are dropped, as are blocks reading
// "none". Blocks seen before any header collect in an unclassified
// bucket.
//
// When the scan leaves either side empty, the classification is
// discarded: the unclassified bucket is appended to the inclusion side
// and the exclusion side is cleared, treating the whole text as
// inclusion criteria.
func SegmentCriteria(text string) (inclusion, exclusion []string, err error) {
	if len(text) == 0 {
		return nil, nil, errors.NewContentError("no criteria text given")
	}

	var unclassified []string
	atInclusion := false
	atExclusion := false

	for _, block := range blockSplitRe.Split(text, -1) {
		if len(block) == 0 || block == "none" {
			continue
		}

		clean := strings.TrimSpace(whitespaceRe.ReplaceAllString(block, " "))

		switch {
		case inclusionHeaderRe.MatchString(clean) && !mentionsExclusion.MatchString(clean):
			atInclusion, atExclusion = true, false
		case exclusionHeaderRe.MatchString(clean) && !mentionsInclusion.MatchString(clean):
			atInclusion, atExclusion = false, true
		case atInclusion:
			inclusion = append(inclusion, TrimBullet(clean))
		case atExclusion:
			exclusion = append(exclusion, TrimBullet(clean))
		default:
			unclassified = append(unclassified, TrimBullet(clean))
		}
	}

	if len(inclusion) == 0 || len(exclusion) == 0 {
		logger.Debug("no explicit inclusion/exclusion separation found, treating whole text as inclusion criteria")
		inclusion = append(inclusion, unclassified...)
		exclusion = nil
	}

	return inclusion, exclusion, nil
}

// TrimBullet removes one leading list marker ("- ", "1. ", or "1) "
// with an optional dash) left over when an item was pulled off a
// bulleted or enumerated list, collapsing whitespace runs on the way.
func TrimBullet(s string) string {
	s = whitespaceRe.ReplaceAllString(strings.TrimSpace(s), " ")
	s = dashMarkerRe.ReplaceAllString(s, "")
	s = numberMarkerRe.ReplaceAllString(s, "")
	s = parenMarkerRe.ReplaceAllString(s, "")
	return s
}
