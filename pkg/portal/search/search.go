// Package search is an in-memory fuzzy index over enrolled content and notes.
// It is rebuilt from scratch whenever its sources change and never persisted.
package search

import (
	"html"
	"sort"
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/noah-isme/classroom-portal/pkg/portal/backend"
	"github.com/noah-isme/classroom-portal/pkg/portal/tracker"
)

// Kind identifies what a result points at.
type Kind string

const (
	KindModule   Kind = "module"
	KindResource Kind = "resource"
	KindNote     Kind = "note"
)

const (
	// Threshold is the highest normalised distance that still counts as a match.
	Threshold = 0.3
	// DefaultLimit caps results when the caller passes no limit.
	DefaultLimit  = 20
	snippetLength = 160
)

// Result is one ranked match. Note results carry a ClassID only when their
// module belongs to an enrolled class; callers must handle an empty ClassID.
type Result struct {
	Kind       Kind
	Title      string
	Snippet    string
	ClassID    string
	ModuleID   string
	ResourceID string
	Score      float64
	TitleHit   bool
}

type owner struct {
	classID string
	title   string
}

// record holds folded fields; description is indexed in full, the snippet only displays it.
type record struct {
	result      Result
	title       string
	description string
	content     string
}

// Index holds folded records ready for matching.
type Index struct {
	records []record
}

// Build indexes the modules and resources of classes and every note.
func Build(classes []backend.Class, notes []tracker.Note) *Index {
	f := newFolder()
	strip := bluemonday.StrictPolicy()
	index := &Index{}
	owners := make(map[string]owner)

	for _, class := range classes {
		for _, module := range class.Modules {
			owners[module.ID] = owner{classID: class.ID, title: module.Title}
			index.add(f, Result{
				Kind:     KindModule,
				Title:    module.Title,
				Snippet:  snippet(module.Description),
				ClassID:  class.ID,
				ModuleID: module.ID,
			}, module.Description, plain(strip, module.Content))

			for _, resource := range module.Resources {
				index.add(f, Result{
					Kind:       KindResource,
					Title:      resource.Title,
					Snippet:    snippet(resource.Description),
					ClassID:    class.ID,
					ModuleID:   module.ID,
					ResourceID: resource.ID,
				}, resource.Description, resource.Kind)
			}
		}
	}

	for _, note := range notes {
		content := plain(strip, note.Content)
		result := Result{Kind: KindNote, Title: "Note", Snippet: snippet(content), ModuleID: note.ModuleID}
		if module, ok := owners[note.ModuleID]; ok {
			result.Title = "Note: " + module.title
			result.ClassID = module.classID
		}
		index.add(f, result, "", content)
	}
	return index
}

func (ix *Index) add(f *folder, result Result, description, content string) {
	ix.records = append(ix.records, record{
		result:      result,
		title:       f.fold(result.Title),
		description: f.fold(description),
		content:     f.fold(content),
	})
}

// Len reports the number of indexed records.
func (ix *Index) Len() int {
	if ix == nil {
		return 0
	}
	return len(ix.records)
}

// Search returns matches for query, best first. A blank query matches nothing.
func (ix *Index) Search(query string, limit int) []Result {
	if ix == nil {
		return nil
	}
	q := newFolder().fold(query)
	if q == "" {
		return nil
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	var results []Result
	for _, rec := range ix.records {
		titleScore, titleOK := score(q, rec.title)
		best, ok := titleScore, titleOK
		for _, field := range []string{rec.description, rec.content} {
			if s, matched := score(q, field); matched && (!ok || s < best) {
				best, ok = s, true
			}
		}
		if !ok {
			continue
		}
		result := rec.result
		result.Score = best
		result.TitleHit = titleOK && titleScore <= best
		results = append(results, result)
	}

	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score < b.Score
		}
		if a.TitleHit != b.TitleHit {
			return a.TitleHit
		}
		if kindRank(a.Kind) != kindRank(b.Kind) {
			return kindRank(a.Kind) < kindRank(b.Kind)
		}
		return a.Title < b.Title
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

func kindRank(kind Kind) int {
	switch kind {
	case KindModule:
		return 0
	case KindResource:
		return 1
	default:
		return 2
	}
}

// score is 0 for a substring hit, otherwise the smallest edit distance between
// q and any run of as many words, divided by the length of q.
func score(q, text string) (float64, bool) {
	if text == "" {
		return 0, false
	}
	if strings.Contains(text, q) {
		return 0, true
	}

	words := strings.Fields(text)
	width := len(strings.Fields(q))
	if width == 0 || len(words) < width {
		return 0, false
	}
	length := float64(len([]rune(q)))
	best := -1.0
	for i := 0; i+width <= len(words); i++ {
		window := strings.Join(words[i:i+width], " ")
		d := float64(levenshtein.ComputeDistance(q, window)) / length
		if best < 0 || d < best {
			best = d
		}
	}
	return best, best <= Threshold
}

type folder struct {
	caser cases.Caser
}

func newFolder() *folder {
	return &folder{caser: cases.Fold()}
}

// fold removes diacritics, case-folds and collapses punctuation and spacing.
func (f *folder) fold(s string) string {
	var b strings.Builder
	for _, r := range norm.NFD.String(s) {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	folded := f.caser.String(norm.NFC.String(b.String()))
	return strings.Join(strings.Fields(folded), " ")
}

func plain(policy *bluemonday.Policy, content string) string {
	return strings.Join(strings.Fields(html.UnescapeString(policy.Sanitize(content))), " ")
}

func snippet(text string) string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) <= snippetLength {
		return string(runes)
	}
	return strings.TrimSpace(string(runes[:snippetLength])) + "…"
}
