package bot

import (
	"fmt"
	"strconv"
	"strings"

	"feedwatch/internal/model"
)

// patternKeys maps option keys to the subscription field they set.
var patternKeys = map[string]func(*model.Subscription, *model.Pattern){
	"title":   func(s *model.Subscription, p *model.Pattern) { s.Title = p },
	"content": func(s *model.Subscription, p *model.Pattern) { s.Content = p },
	"name":    func(s *model.Subscription, p *model.Pattern) { s.Name = p },
	"trip":    func(s *model.Subscription, p *model.Pattern) { s.Tripcode = p },
	"file":    func(s *model.Subscription, p *model.Pattern) { s.Filename = p },
	"subject": func(s *model.Subscription, p *model.Pattern) { s.ThreadSubject = p },
}

// boardOnly lists options that only make sense for imageboard posts.
var boardOnly = map[string]bool{
	"trip": true, "file": true, "subject": true, "min_replies": true, "op": true,
}

// ParseWatchArgs parses "<source> [key=value ...]" into a subscription for
// the given kind. Values may be wrapped in double quotes to include spaces.
func ParseWatchArgs(kind model.SourceKind, args string) (*model.Subscription, error) {
	tokens, err := splitArgs(args)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("source is required")
	}

	sub := &model.Subscription{Kind: kind, SourceID: tokens[0]}
	opts := make(map[string]string, len(tokens)-1)
	for _, tok := range tokens[1:] {
		key, value, ok := strings.Cut(tok, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("option %q must look like key=value", tok)
		}
		if _, dup := opts[key]; dup {
			return nil, fmt.Errorf("option %q given twice", key)
		}
		opts[key] = value
	}

	for key, value := range opts {
		if err := applyOption(sub, opts, key, value); err != nil {
			return nil, err
		}
	}
	return sub, nil
}

func applyOption(sub *model.Subscription, opts map[string]string, key, value string) error {
	base := strings.TrimSuffix(key, "_case")
	if boardOnly[base] && sub.Kind == model.KindRSS {
		return fmt.Errorf("option %q is only available for boards", base)
	}

	if set, ok := patternKeys[key]; ok {
		if value == "" {
			return fmt.Errorf("option %q needs a pattern", key)
		}
		p := &model.Pattern{Expr: value}
		if raw, ok := opts[key+"_case"]; ok {
			cs, err := parseBool(key+"_case", raw)
			if err != nil {
				return err
			}
			p.CaseSensitive = cs
		}
		set(sub, p)
		return nil
	}

	switch {
	case key != base && patternKeys[base] != nil:
		if _, ok := opts[base]; !ok {
			return fmt.Errorf("option %q needs %s=<pattern>", key, base)
		}
		_, err := parseBool(key, value)
		return err
	case key == "min_replies":
		if sub.Kind != model.KindBoard {
			return fmt.Errorf("option %q is only available for /watch_board", key)
		}
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return fmt.Errorf("option %q must be a non-negative number", key)
		}
		sub.MinEngagement = &n
	case key == "op":
		v, err := parseBool(key, value)
		if err != nil {
			return err
		}
		sub.RootOnly = &v
	case key == "note":
		sub.Annotation = value
	default:
		return fmt.Errorf("unknown option %q", key)
	}
	return nil
}

func parseBool(key, value string) (bool, error) {
	switch strings.ToLower(value) {
	case "true", "yes", "1":
		return true, nil
	case "false", "no", "0":
		return false, nil
	}
	return false, fmt.Errorf("option %q must be true or false", key)
}

// splitArgs splits on whitespace, keeping double-quoted runs together.
// A backslash escapes a quote or another backslash inside quotes.
func splitArgs(s string) ([]string, error) {
	var (
		tokens  []string
		cur     strings.Builder
		inQuote bool
		started bool
	)
	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case inQuote && r == '\\' && i+1 < len(runes) && (runes[i+1] == '"' || runes[i+1] == '\\'):
			i++
			cur.WriteRune(runes[i])
		case r == '"':
			inQuote = !inQuote
			started = true
		case !inQuote && (r == ' ' || r == '\t' || r == '\n'):
			if started {
				tokens = append(tokens, cur.String())
				cur.Reset()
				started = false
			}
		default:
			cur.WriteRune(r)
			started = true
		}
	}
	if inQuote {
		return nil, fmt.Errorf("unterminated quote")
	}
	if started {
		tokens = append(tokens, cur.String())
	}
	return tokens, nil
}

// ParseIDArg extracts a numeric ID from a command argument string.
func ParseIDArg(args string) (int64, error) {
	s := strings.TrimSpace(args)
	if s == "" {
		return 0, fmt.Errorf("subscription ID is required")
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(strings.Fields(s)[0], "#"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid subscription ID %q", s)
	}
	return id, nil
}
