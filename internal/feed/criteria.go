package feed

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	maxTextCriterionLen = 200
	maxCCodeLen         = 10
)

// NormalizedMode returns the match mode, defaulting to prefix when unset.
func (c Criteria) NormalizedMode() MatchMode {
	if strings.TrimSpace(string(c.MatchMode)) == "" {
		return MatchPrefix
	}
	return c.MatchMode
}

// HasCondition reports whether at least one predicate is non-blank.
func (c Criteria) HasCondition() bool {
	return strings.TrimSpace(c.SeriesName) != "" ||
		strings.TrimSpace(c.TitleKeyword) != "" ||
		strings.TrimSpace(c.Publisher) != "" ||
		strings.TrimSpace(c.ClassificationCode) != ""
}

// Validate enforces the creation-time invariants. The engine assumes they hold.
func (c Criteria) Validate() error {
	var problems []string
	if !c.HasCondition() {
		problems = append(problems, "at least one search condition is required")
	}
	if utf8.RuneCountInString(c.SeriesName) > maxTextCriterionLen {
		problems = append(problems, fmt.Sprintf("series name must be at most %d characters", maxTextCriterionLen))
	}
	if utf8.RuneCountInString(c.TitleKeyword) > maxTextCriterionLen {
		problems = append(problems, fmt.Sprintf("title keyword must be at most %d characters", maxTextCriterionLen))
	}
	if utf8.RuneCountInString(c.Publisher) > maxTextCriterionLen {
		problems = append(problems, fmt.Sprintf("publisher must be at most %d characters", maxTextCriterionLen))
	}
	code := strings.TrimSpace(c.ClassificationCode)
	if len(code) > maxCCodeLen {
		problems = append(problems, fmt.Sprintf("classification code must be at most %d characters", maxCCodeLen))
	}
	if code != "" && strings.Trim(code, "0123456789") != "" {
		problems = append(problems, "classification code must contain digits only")
	}
	switch c.NormalizedMode() {
	case MatchExact, MatchPrefix, MatchSuffix:
	default:
		problems = append(problems, fmt.Sprintf("unknown classification match mode %q", c.MatchMode))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidCriteria, strings.Join(problems, "; "))
	}
	return nil
}
