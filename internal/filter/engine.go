// Package filter implements the subscription matching engine.
package filter

import (
	"fmt"
	"regexp"
	"sync"

	"feedwatch/internal/model"
)

// compiled caches regular expressions keyed by their effective source.
// A nil value marks a pattern that failed to compile.
var compiled sync.Map

// Match reports whether item satisfies every criterion set on sub.
// Unset criteria are vacuously satisfied.
func Match(sub model.Subscription, item model.Item) bool {
	if sub.Kind != item.Kind || sub.SourceID != item.SourceID {
		return false
	}

	fields := []struct {
		pattern *model.Pattern
		value   string
	}{
		{sub.Title, item.Title},
		{sub.Content, item.Content},
		{sub.Name, item.Author},
		{sub.Tripcode, item.Tripcode},
		{sub.Filename, item.Filename},
		{sub.ThreadSubject, item.ThreadSubject},
	}
	for _, f := range fields {
		if f.pattern == nil {
			continue
		}
		if f.value == "" || !matchPattern(*f.pattern, f.value) {
			return false
		}
	}

	if sub.MinEngagement != nil {
		if item.Engagement == nil || *item.Engagement < *sub.MinEngagement {
			return false
		}
	}

	if sub.RootOnly != nil && *sub.RootOnly != item.IsRoot {
		return false
	}

	return true
}

func matchPattern(p model.Pattern, value string) bool {
	re := compile(p)
	if re == nil {
		return false
	}
	return re.MatchString(value)
}

func compile(p model.Pattern) *regexp.Regexp {
	src := p.Expr
	if !p.CaseSensitive {
		src = "(?i)" + src
	}
	if v, ok := compiled.Load(src); ok {
		return v.(*regexp.Regexp)
	}
	re, err := regexp.Compile(src)
	if err != nil {
		re = nil
	}
	compiled.Store(src, re)
	return re
}

// ValidatePattern checks whether a pattern is a valid regular expression.
func ValidatePattern(expr string) error {
	_, err := regexp.Compile(expr)
	if err != nil {
		return fmt.Errorf("invalid regex: %w", err)
	}
	return nil
}
