package sequence

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	seqPadRe     = regexp.MustCompile(`\{SEQ(\d+)\}`)
	unresolvedRe = regexp.MustCompile(`\{[A-Za-z0-9]+\}`)
)

// Format renders a numbering template. Supported tokens are {YYYY}, {MM},
// {DD}, {HH}, {mm}, {ss}, {SEQ} and zero-padded {SEQn}.
func Format(template string, at time.Time, seq int64) (string, error) {
	if template == "" {
		return "", fmt.Errorf("numbering template is empty")
	}

	out := template
	out = strings.ReplaceAll(out, "{YYYY}", at.Format("2006"))
	out = strings.ReplaceAll(out, "{MM}", at.Format("01"))
	out = strings.ReplaceAll(out, "{DD}", at.Format("02"))
	out = strings.ReplaceAll(out, "{HH}", at.Format("15"))
	out = strings.ReplaceAll(out, "{mm}", at.Format("04"))
	out = strings.ReplaceAll(out, "{ss}", at.Format("05"))

	if strings.Contains(out, "{SEQ") && seq <= 0 {
		return "", fmt.Errorf("invalid sequence: %d", seq)
	}
	out = strings.ReplaceAll(out, "{SEQ}", strconv.FormatInt(seq, 10))
	out = seqPadRe.ReplaceAllStringFunc(out, func(m string) string {
		match := seqPadRe.FindStringSubmatch(m)
		width, err := strconv.Atoi(match[1])
		if err != nil || width <= 0 {
			return m
		}
		return fmt.Sprintf("%0*d", width, seq)
	})

	if unresolvedRe.MatchString(out) {
		return "", fmt.Errorf("unresolved token in numbering template %q", template)
	}
	return out, nil
}
