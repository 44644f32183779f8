// Package knowledge provides the embedded vector store behind the rag_search
// tool. Documents are help-center style articles; retrieval is similarity
// search over their embeddings.
package knowledge

import (
	"context"
	"fmt"
	"strings"

	"github.com/philippgille/chromem-go"

	"github.com/skydesk-ai/skydesk/tool"
)

const collectionName = "knowledge"

// Document is an article stored in the knowledge base.
type Document struct {
	ID       string
	Content  string
	Metadata map[string]string
}

// Store wraps a chromem collection. The zero value is not usable; construct
// via NewStore or NewPersistentStore.
type Store struct {
	db         *chromem.DB
	collection *chromem.Collection
}

// Options configures a Store.
type Options struct {
	// EmbeddingFunc computes document and query embeddings. Defaults to the
	// OpenAI embeddings API; tests inject a deterministic function.
	EmbeddingFunc chromem.EmbeddingFunc
}

// NewStore creates an in-memory store.
func NewStore(optFns ...func(o *Options)) (*Store, error) {
	return newStore(chromem.NewDB(), optFns...)
}

// NewPersistentStore creates a store persisted under path.
func NewPersistentStore(path string, optFns ...func(o *Options)) (*Store, error) {
	db, err := chromem.NewPersistentDB(path, false)
	if err != nil {
		return nil, fmt.Errorf("open knowledge store: %w", err)
	}
	return newStore(db, optFns...)
}

func newStore(db *chromem.DB, optFns ...func(o *Options)) (*Store, error) {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.EmbeddingFunc == nil {
		opts.EmbeddingFunc = chromem.NewEmbeddingFuncOpenAI("", chromem.EmbeddingModelOpenAI3Small)
	}

	collection, err := db.GetOrCreateCollection(collectionName, nil, opts.EmbeddingFunc)
	if err != nil {
		return nil, fmt.Errorf("open knowledge collection: %w", err)
	}
	return &Store{db: db, collection: collection}, nil
}

// Add indexes documents into the store.
func (s *Store) Add(ctx context.Context, docs ...Document) error {
	if len(docs) == 0 {
		return nil
	}
	converted := make([]chromem.Document, len(docs))
	for i, doc := range docs {
		converted[i] = chromem.Document{
			ID:       doc.ID,
			Content:  doc.Content,
			Metadata: doc.Metadata,
		}
	}
	if err := s.collection.AddDocuments(ctx, converted, 1); err != nil {
		return fmt.Errorf("index documents: %w", err)
	}
	return nil
}

// SearchResult is one retrieval hit.
type SearchResult struct {
	ID         string
	Content    string
	Similarity float32
	Metadata   map[string]string
}

// Search returns the topK most similar documents to the query.
func (s *Store) Search(ctx context.Context, query string, topK int) ([]SearchResult, error) {
	count := s.collection.Count()
	if count == 0 {
		return nil, nil
	}
	if topK > count {
		topK = count
	}

	results, err := s.collection.Query(ctx, query, topK, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("knowledge query: %w", err)
	}

	out := make([]SearchResult, len(results))
	for i, r := range results {
		out[i] = SearchResult{
			ID:         r.ID,
			Content:    r.Content,
			Similarity: r.Similarity,
			Metadata:   r.Metadata,
		}
	}
	return out, nil
}

type ragSearchArgs struct {
	Query string `json:"query" description:"What to look up in the knowledge base"`
}

// Tool exposes the store as the rag_search tool.
func (s *Store) Tool() tool.Tool {
	return tool.NewFunctionToolFromStruct(
		"rag_search",
		"Search the help-center knowledge base for relevant articles",
		ragSearchArgs{},
		func(ctx context.Context, args map[string]any) (*tool.Result, error) {
			query, _ := args["query"].(string)
			results, err := s.Search(ctx, query, 3)
			if err != nil {
				return nil, err
			}
			if len(results) == 0 {
				return tool.NewResult("No relevant articles found"), nil
			}

			var b strings.Builder
			for _, r := range results {
				fmt.Fprintf(&b, "[%s] (similarity %.2f)\n%s\n\n", r.ID, r.Similarity, r.Content)
			}
			return tool.NewResult(strings.TrimRight(b.String(), "\n")), nil
		},
	)
}
