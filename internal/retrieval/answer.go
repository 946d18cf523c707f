package retrieval

import (
	"fmt"
	"strings"
)

// AnswerText picks the spoken answer for a fact: the voice answer, then the long
// answer, then a sentence assembled from catalog fields. Catalog facts always
// use the assembled sentence.
func AnswerText(f *Fact, phone string) string {
	if f.Source != SourceCatalog {
		if s := strings.TrimSpace(f.AnswerVoice); s != "" {
			return s
		}
		if s := strings.TrimSpace(f.AnswerLong); s != "" {
			return s
		}
	}
	return synthesize(f, phone)
}

func synthesize(f *Fact, phone string) string {
	name := firstNonEmpty(f.MaterialName, f.Intent, f.Question, "that material")

	var b strings.Builder
	if f.CurrentPrice != nil {
		fmt.Fprintf(&b, "We're currently paying $%.2f", *f.CurrentPrice)
		if unit := strings.TrimSpace(f.PriceUnit); unit != "" {
			fmt.Fprintf(&b, " per %s", unit)
		}
		fmt.Fprintf(&b, " for %s.", name)
	} else {
		fmt.Fprintf(&b, "We do take %s.", name)
	}

	if desc := sentence(f.Description); desc != "" {
		b.WriteString(" ")
		b.WriteString(desc)
	}

	if f.CurrentPrice == nil {
		fmt.Fprintf(&b, " Please call us at %s for current pricing.", phone)
	}
	return b.String()
}

func sentence(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if !strings.HasSuffix(s, ".") && !strings.HasSuffix(s, "!") && !strings.HasSuffix(s, "?") {
		s += "."
	}
	return s
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
