package processor_test

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/courseqa/internal/models"
	"github.com/xhad/courseqa/pkg/processor"
)

func words(n int) string {
	w := make([]string, n)
	for i := range w {
		w[i] = fmt.Sprintf("w%d", i)
	}
	return strings.Join(w, " ")
}

func TestProcessor_Process(t *testing.T) {
	p, err := processor.NewWithConfig(processor.ProcessorConfig{})
	require.NoError(t, err)

	docs := []models.Document{
		{ID: "42", Content: words(610), Metadata: map[string]interface{}{"source": "discourse", "post_id": int64(42)}},
		{ID: "week1.md", Content: "short\n\n  page", Metadata: map[string]interface{}{"source": "course_material"}},
		{ID: "empty", Content: "   \n", Metadata: map[string]interface{}{"source": "course_material"}},
	}
	out, err := p.Process(docs)
	require.NoError(t, err)
	require.Len(t, out, 2)

	post := out[0]
	assert.Equal(t, "discourse", post.Prefix)
	require.Len(t, post.Chunks, 3)
	assert.Len(t, strings.Fields(post.Chunks[0]), 300)
	assert.True(t, strings.HasPrefix(post.Chunks[1], "w250 "))
	assert.True(t, strings.HasPrefix(post.Chunks[2], "w500 "))
	assert.True(t, strings.HasSuffix(post.Chunks[2], " w609"))
	assert.Equal(t, "discourse_42_1", post.ChunkID(1))

	page := out[1]
	assert.Equal(t, "md", page.Prefix)
	assert.Equal(t, []string{"short page"}, page.Chunks)
	assert.Equal(t, "md_week1.md_0", page.ChunkID(0))

	payload := page.Payload(0)
	assert.Equal(t, "short page", payload["text"])
	assert.Equal(t, 0, payload["chunk_index"])
	assert.Equal(t, "course_material", payload["source"])
	_, leaked := page.Metadata["text"]
	assert.False(t, leaked)
}

func TestProcessorWindowOverlap(t *testing.T) {
	p, err := processor.NewWithConfig(processor.ProcessorConfig{WindowWords: 4, OverlapWords: 1})
	require.NoError(t, err)
	out, err := p.Process([]models.Document{{ID: "x", Content: "a b c d e f g"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a b c d", "d e f g", "g"}, out[0].Chunks)
	assert.Equal(t, "doc", out[0].Prefix)
}

func TestProcessorConfigValidation(t *testing.T) {
	_, err := processor.NewWithConfig(processor.ProcessorConfig{WindowWords: 10, OverlapWords: 10})
	assert.Error(t, err)

	p, err := processor.NewWithConfig(processor.ProcessorConfig{})
	require.NoError(t, err)
	_, err = p.Process([]models.Document{{Content: "no id"}})
	assert.Error(t, err)
}

func TestLoadDiscourse(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "posts.json")
	data := `[
		{"topic_id": 1, "topic_title": "GA4", "post_id": 42, "url": "https://discourse.example.com/t/ga4/1/2",
		 "content": "<p>Use <code>uv run</code>.</p><p>Second paragraph</p><script>x()</script>"},
		{"topic_id": 1, "post_id": 43, "url": "https://discourse.example.com/t/ga4/1/3", "content": "plain text"}
	]`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	docs, err := processor.LoadDiscourse(path)
	require.NoError(t, err)
	require.Len(t, docs, 2)

	assert.Equal(t, "42", docs[0].ID)
	assert.Equal(t, "Use uv run.\nSecond paragraph", docs[0].Content)
	assert.Equal(t, "discourse", docs[0].Metadata["source"])
	assert.Equal(t, int64(42), docs[0].Metadata["post_id"])
	assert.Equal(t, int64(1), docs[0].Metadata["topic_id"])
	assert.Equal(t, "GA4", docs[0].Metadata["topic_title"])
	assert.Equal(t, "https://discourse.example.com/t/ga4/1/2", docs[0].Metadata["url"])

	assert.Equal(t, "plain text", docs[1].Content)
	_, ok := docs[1].Metadata["topic_title"]
	assert.False(t, ok)
}

func TestLoadDiscourseBadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "posts.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o644))
	_, err := processor.LoadDiscourse(path)
	assert.Error(t, err)

	_, err = processor.LoadDiscourse(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestLoadMarkdownDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	page := "---\ntitle: \"Data Sourcing\"\noriginal_url: \"https://course.example.com/#/data-sourcing\"\ndownloaded_at: \"2025-01-01T00:00:00\"\n---\n\n# Data Sourcing\n\nBody text.\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "Data_Sourcing.md"), []byte(page), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "plain.md"), []byte("# Plain\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip"), 0o644))

	docs, err := processor.LoadMarkdownDir(dir)
	require.NoError(t, err)
	require.Len(t, docs, 2)

	assert.Equal(t, "plain.md", docs[0].ID)
	assert.Equal(t, "# Plain\n", docs[0].Content)
	_, ok := docs[0].Metadata["original_url"]
	assert.False(t, ok)

	d := docs[1]
	assert.Equal(t, "Data_Sourcing.md", d.ID)
	assert.Equal(t, "# Data Sourcing\n\nBody text.\n", d.Content)
	assert.Equal(t, "course_material", d.Metadata["source"])
	assert.Equal(t, "Data_Sourcing.md", d.Metadata["filename"])
	assert.Equal(t, filepath.Join(dir, "sub", "Data_Sourcing.md"), d.Metadata["path"])
	assert.Equal(t, "https://course.example.com/#/data-sourcing", d.Metadata["original_url"])
	assert.Equal(t, "Data Sourcing", d.Metadata["title"])
}

func TestParseFrontMatter(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		title string
		body  string
		err   bool
	}{
		{name: "none", in: "# Heading\n", body: "# Heading\n"},
		{name: "basic", in: "---\ntitle: T\n---\nbody", title: "T", body: "body"},
		{name: "crlf", in: "---\r\ntitle: T\r\n---\r\n\r\nbody", title: "T", body: "body"},
		{name: "empty header", in: "---\n---\nbody", body: "body"},
		{name: "unterminated", in: "---\ntitle: T\nbody", body: "---\ntitle: T\nbody"},
		{name: "invalid yaml", in: "---\ntitle: [\n---\nbody", err: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fm, body, err := processor.ParseFrontMatter([]byte(tt.in))
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.title, fm.Title)
			assert.Equal(t, tt.body, body)
		})
	}
}

func TestHTMLToText(t *testing.T) {
	got, err := processor.HTMLToText(`<h2>Title</h2><ul><li>one</li><li>two</li></ul><style>.x{}</style><p>a  <b>bold</b>   word</p>`)
	require.NoError(t, err)
	assert.Equal(t, "Title\none\ntwo\na bold word", got)
}
