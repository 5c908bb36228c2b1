package service

import (
	"fmt"
	"strconv"
	"strings"
)

// Authoring grammar, shared by the bot commands and the web editor:
//
//	category|question text|label1,label2:5,label3|skip
//
// Options and the trailing flag list are optional. An option written as
// "label:id" carries an explicit branch target; a bare "label" is a
// plain choice. Flags currently understand only "skip".

// ParseQuestionSpec turns one authored line into a Question (without an
// id — Catalog.Create assigns that). branch selects the question type.
func ParseQuestionSpec(raw string, branch bool) (Question, error) {
	parts := strings.SplitN(raw, "|", 4)
	if len(parts) < 2 {
		return Question{}, fmt.Errorf("%w: expected category|text[|options[|flags]]", ErrEmptyField)
	}
	q := Question{
		Category: strings.TrimSpace(parts[0]),
		Text:     strings.TrimSpace(parts[1]),
		Type:     TypeNormal,
	}
	if branch {
		q.Type = TypeBranch
	}
	if q.Category == "" || q.Text == "" {
		return Question{}, fmt.Errorf("%w: category and text are required", ErrEmptyField)
	}
	if len(parts) >= 3 {
		opts, err := ParseOptions(strings.TrimSpace(parts[2]))
		if err != nil {
			return Question{}, err
		}
		q.Options = opts
	}
	if len(parts) == 4 {
		for _, flag := range strings.Split(parts[3], ",") {
			switch strings.TrimSpace(flag) {
			case "skip":
				q.Skippable = true
			case "":
			default:
				return Question{}, fmt.Errorf("unknown flag %q", strings.TrimSpace(flag))
			}
		}
	}
	return q, nil
}

// ParseOptions parses a comma-separated option list. Labels are trimmed;
// branch targets must be positive integers.
func ParseOptions(raw string) ([]Option, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var out []Option
	for _, part := range strings.Split(raw, ",") {
		label, target, hasTarget := strings.Cut(part, ":")
		label = strings.TrimSpace(label)
		if label == "" {
			return nil, fmt.Errorf("option %q has an empty label", part)
		}
		opt := Option{Label: label}
		if hasTarget {
			id, err := strconv.Atoi(strings.TrimSpace(target))
			if err != nil || id <= 0 {
				return nil, fmt.Errorf("option %q has an invalid target id", part)
			}
			opt.Next = id
		}
		out = append(out, opt)
	}
	return out, nil
}

// FormatOptions is the inverse of ParseOptions, used for storage and for
// the admin listing.
func FormatOptions(opts []Option) string {
	if len(opts) == 0 {
		return ""
	}
	parts := make([]string, len(opts))
	for i, o := range opts {
		if o.Next > 0 {
			parts[i] = fmt.Sprintf("%s:%d", o.Label, o.Next)
		} else {
			parts[i] = o.Label
		}
	}
	return strings.Join(parts, ",")
}
