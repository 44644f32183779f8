package knowledge

import (
	"context"
	"strings"
	"testing"

	"github.com/philippgille/chromem-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skydesk-ai/skydesk/tool"
)

// fakeEmbedding maps texts onto a tiny deterministic vector space so tests
// need no embeddings API.
func fakeEmbedding(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, 3)
	lower := strings.ToLower(text)
	if strings.Contains(lower, "pix") {
		vec[0] = 1
	}
	if strings.Contains(lower, "card") || strings.Contains(lower, "maquininha") {
		vec[1] = 1
	}
	if strings.Contains(lower, "loan") {
		vec[2] = 1
	}
	if vec[0] == 0 && vec[1] == 0 && vec[2] == 0 {
		vec[0], vec[1], vec[2] = 0.1, 0.1, 0.1
	}
	return vec, nil
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(func(o *Options) {
		o.EmbeddingFunc = fakeEmbedding
	})
	require.NoError(t, err)

	require.NoError(t, store.Add(context.Background(),
		Document{ID: "kb-1", Content: "How to enable pix transfers", Metadata: map[string]string{"topic": "pix"}},
		Document{ID: "kb-2", Content: "Troubleshooting the maquininha card reader"},
		Document{ID: "kb-3", Content: "Applying for a working capital loan"},
	))
	return store
}

func TestStoreSearch(t *testing.T) {
	store := newTestStore(t)

	results, err := store.Search(context.Background(), "pix transfer not working", 2)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "kb-1", results[0].ID)
	assert.Equal(t, "pix", results[0].Metadata["topic"])
}

func TestStoreSearchEmpty(t *testing.T) {
	store, err := NewStore(func(o *Options) {
		o.EmbeddingFunc = fakeEmbedding
	})
	require.NoError(t, err)

	results, err := store.Search(context.Background(), "anything", 3)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRagSearchTool(t *testing.T) {
	store := newTestStore(t)
	ragTool := store.Tool()

	assert.Equal(t, "rag_search", ragTool.Name())

	result, err := ragTool.Execute(context.Background(), map[string]any{"query": "card reader broken"})
	require.NoError(t, err)
	assert.Equal(t, tool.StatusCompleted, result.Status)
	assert.Contains(t, result.Content, "kb-2")
}

func TestPersistentStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()

	store, err := NewPersistentStore(dir, func(o *Options) {
		o.EmbeddingFunc = fakeEmbedding
	})
	require.NoError(t, err)
	require.NoError(t, store.Add(context.Background(),
		Document{ID: "kb-1", Content: "How to enable pix transfers"},
	))

	reloaded, err := NewPersistentStore(dir, func(o *Options) {
		o.EmbeddingFunc = fakeEmbedding
	})
	require.NoError(t, err)

	results, err := reloaded.Search(context.Background(), "pix", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "kb-1", results[0].ID)
}

var _ chromem.EmbeddingFunc = fakeEmbedding
