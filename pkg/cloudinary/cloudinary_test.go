package cloudinary

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestBuildPublicID(t *testing.T) {
	at := time.Unix(0, 42)

	require.Equal(t, "week-1-slides-42.pdf", buildPublicID("Week 1 Slides.PDF", "raw", at))
	require.Equal(t, "intro-42", buildPublicID("intro.mp4", "video", at))
	require.Equal(t, "resource-42.docx", buildPublicID("???.docx", "raw", at))
}

func TestResourceTypeFor(t *testing.T) {
	require.Equal(t, "video", resourceTypeFor("lecture.MP4"))
	require.Equal(t, "raw", resourceTypeFor("handout.pdf"))
	require.Equal(t, "raw", resourceTypeFor("grades.xlsx"))
}

func TestNewRequiresCredentials(t *testing.T) {
	_, err := New(Config{CloudName: "demo"}, zerolog.Nop())
	require.Error(t, err)
	require.False(t, Config{CloudName: "demo", APIKey: "k"}.Enabled())
}
