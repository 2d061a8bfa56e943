package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCamelCase(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"ImageWidth", "imageWidth"},
		{"image_width", "imageWidth"},
		{"image-width", "imageWidth"},
		{"image width", "imageWidth"},
		{"image_WIDTH", "imageWidth"},
		{"PerkinElmer-QPI-ImageDescription", "perkinElmerQpiImagedescription"},
		{"already", "already"},
		{"WORD", "wORD"},
		{"@Name", "@Name"},
		{"#text", "#text"},
		{"", ""},
		{"___", "___"},
		{"SizeX", "sizeX"},
		{"x", "x"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, camelCase(tt.in))
		})
	}
}

func TestNormalizeTree(t *testing.T) {
	root := NewMapping()
	root.Set("Source_File", Scalar("a.tif"))
	tags := NewMapping()
	tags.Set("ImageWidth", Scalar("1024"))
	tags.Set("DateTime", Scalar("2023:01:02 10:00:00"))
	page := NewMapping()
	page.Set("page_index", Scalar(int64(0)))
	page.Set("tags", tags)
	pages := NewSequence()
	pages.Append(page)
	root.Set("pages", pages)

	out := Normalize(root)

	assert.Equal(t, []string{"sourceFile", "pages"}, out.Keys())

	outPages, ok := out.Get("pages")
	require.True(t, ok)
	outPage, ok := outPages.At(0)
	require.True(t, ok)
	assert.Equal(t, []string{"pageIndex", "tags"}, outPage.Keys())

	outTags, ok := outPage.Get("tags")
	require.True(t, ok)
	width, ok := outTags.Get("imageWidth")
	require.True(t, ok)
	assert.Equal(t, int64(1024), width.ScalarValue())

	// Timestamps contain colons and stay strings.
	date, ok := outTags.Get("dateTime")
	require.True(t, ok)
	assert.Equal(t, "2023:01:02 10:00:00", date.ScalarValue())

	// The input tree keeps its raw keys and string values.
	assert.Equal(t, []string{"Source_File", "pages"}, root.Keys())
	origWidth, _ := tags.Get("ImageWidth")
	assert.Equal(t, "1024", origWidth.ScalarValue())
}

func TestNormalizeCollidingKeys(t *testing.T) {
	m := NewMapping()
	m.Set("image_width", Scalar(int64(1)))
	m.Set("ImageWidth", Scalar(int64(2)))

	out := Normalize(m)

	assert.Equal(t, []string{"imageWidth"}, out.Keys())
	got, _ := out.Get("imageWidth")
	assert.Equal(t, int64(2), got.ScalarValue())
}
