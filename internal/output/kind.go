package output

import "fmt"

// Kind is a category of output file. Each kind has its own directory under
// the manager's base dir and a default extension.
type Kind int

const (
	KindJSON Kind = iota
	KindMarkdown
	KindHTML
	KindXLSX
	KindCost
	KindAnalytics
	KindSummary
)

// Kinds lists every kind in directory-creation order.
var Kinds = []Kind{KindJSON, KindMarkdown, KindHTML, KindXLSX, KindCost, KindAnalytics, KindSummary}

func (k Kind) String() string {
	return k.Dir()
}

// Dir is the subdirectory for this kind.
func (k Kind) Dir() string {
	switch k {
	case KindJSON:
		return "json"
	case KindMarkdown:
		return "markdown"
	case KindHTML:
		return "html"
	case KindXLSX:
		return "xlsx"
	case KindCost:
		return "cost"
	case KindAnalytics:
		return "analytics"
	case KindSummary:
		return "summary"
	default:
		return "other"
	}
}

// Ext is the file extension, dot included.
func (k Kind) Ext() string {
	switch k {
	case KindMarkdown:
		return ".md"
	case KindHTML:
		return ".html"
	case KindXLSX:
		return ".xlsx"
	case KindJSON, KindCost, KindAnalytics, KindSummary:
		return ".json"
	default:
		return ".txt"
	}
}

// ParseKind maps a directory name back to its kind.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if k.Dir() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown output kind %q", s)
}
