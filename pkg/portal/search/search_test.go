package search_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/classroom-portal/pkg/portal/backend"
	"github.com/noah-isme/classroom-portal/pkg/portal/search"
	"github.com/noah-isme/classroom-portal/pkg/portal/tracker"
)

func fixture() *search.Index {
	classes := []backend.Class{{
		ID:    "c1",
		Title: "Biology",
		Modules: []backend.Module{
			{
				ID: "m1", Title: "Photosynthesis Basics", Description: "How plants turn light into sugar", Order: 1,
				Resources: []backend.Resource{{ID: "r1", Title: "Leaf diagram", Kind: "pdf"}},
			},
			{ID: "m2", Title: "Cell Division", Description: "Mitosis and meiosis", Content: "<p>Chromosomes <b>split</b> evenly</p>", Order: 2},
		},
	}, {
		ID:      "c2",
		Title:   "Languages",
		Modules: []backend.Module{{ID: "m3", Title: "Café culture", Description: "Ordering in French", Order: 1}},
	}}
	notes := []tracker.Note{
		{ModuleID: "m2", Content: "<p>remember the <em>spindle</em> fibres &amp; centromeres</p>"},
		{ModuleID: "orphan", Content: "photosynthesis happens in chloroplasts"},
	}
	return search.Build(classes, notes)
}

func TestSearch_EmptyQueryReturnsNothing(t *testing.T) {
	index := fixture()
	require.Equal(t, 6, index.Len())
	require.Empty(t, index.Search("", 10))
	require.Empty(t, index.Search("   \t", 10))
	require.Empty(t, index.Search("?!", 10))
}

func TestSearch_TitleMatchRanksFirst(t *testing.T) {
	results := fixture().Search("photosynthesis", 10)
	require.NotEmpty(t, results)
	require.Equal(t, search.KindModule, results[0].Kind)
	require.Equal(t, "m1", results[0].ModuleID)
	require.Equal(t, "c1", results[0].ClassID)
	require.True(t, results[0].TitleHit)

	for _, result := range results {
		require.NotEqual(t, "m3", result.ModuleID)
	}
}

func TestSearch_ToleratesTypos(t *testing.T) {
	results := fixture().Search("fotosynthesis", 10)
	require.NotEmpty(t, results)
	require.Equal(t, "m1", results[0].ModuleID)
	require.Greater(t, results[0].Score, 0.0)
	require.LessOrEqual(t, results[0].Score, search.Threshold)

	require.Empty(t, fixture().Search("quantum chromodynamics", 10))
}

func TestSearch_FoldsCaseAndDiacritics(t *testing.T) {
	results := fixture().Search("CAFE", 10)
	require.Len(t, results, 1)
	require.Equal(t, "m3", results[0].ModuleID)
}

func TestSearch_NoteResults(t *testing.T) {
	index := fixture()

	results := index.Search("spindle fibres", 10)
	require.Len(t, results, 1)
	require.Equal(t, search.KindNote, results[0].Kind)
	require.Equal(t, "m2", results[0].ModuleID)
	require.Equal(t, "c1", results[0].ClassID)
	require.Equal(t, "Note: Cell Division", results[0].Title)
	require.Equal(t, "remember the spindle fibres & centromeres", results[0].Snippet)

	results = index.Search("chloroplasts", 10)
	require.Len(t, results, 1)
	require.Equal(t, "orphan", results[0].ModuleID)
	require.Empty(t, results[0].ClassID, "a note outside enrolled classes has no class")
}

func TestSearch_ResourcesAndLimit(t *testing.T) {
	index := fixture()
	results := index.Search("leaf", 10)
	require.Len(t, results, 1)
	require.Equal(t, search.KindResource, results[0].Kind)
	require.Equal(t, "r1", results[0].ResourceID)
	require.Equal(t, "m1", results[0].ModuleID)

	require.Len(t, index.Search("i", 2), 2)

	var empty *search.Index
	require.Empty(t, empty.Search("anything", 1))
}

func TestSearch_MatchesPastTheSnippet(t *testing.T) {
	long := strings.Repeat("energy moves between systems ", 8) + "thermodynamics"
	index := search.Build([]backend.Class{{
		ID: "c1",
		Modules: []backend.Module{{
			ID: "m1", Title: "Heat", Description: long,
			Resources: []backend.Resource{{ID: "r1", Title: "Reading", Kind: "pdf", Description: long}},
		}},
	}}, nil)

	results := index.Search("thermodynamics", 10)
	require.Len(t, results, 2)
	require.Equal(t, search.KindModule, results[0].Kind)
	require.Equal(t, search.KindResource, results[1].Kind)
	require.NotContains(t, results[0].Snippet, "thermodynamics")
	require.True(t, strings.HasSuffix(results[0].Snippet, "…"))
}
