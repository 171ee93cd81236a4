package memory

import (
	"context"
	"math"
	"sort"
	"sync"
)

// VectorStore defines the interface for a vector database.
type VectorStore interface {
	// Upsert adds or updates points in the vector store.
	Upsert(ctx context.Context, collection string, points []Point) error
	// Search returns the nearest vectors whose payload matches every filter
	// entry, best first.
	Search(ctx context.Context, collection string, vector []float32, limit int, scoreThreshold float32, filter map[string]string) ([]SearchResult, error)
	// Delete removes points by id. Unknown ids are ignored.
	Delete(ctx context.Context, collection string, ids []string) error
	// CreateCollection creates a new collection if it doesn't exist.
	CreateCollection(ctx context.Context, name string, vectorSize uint64) error
}

// Point represents a data point in the vector store.
type Point struct {
	ID        string                 `json:"id"`
	Vector    []float32              `json:"vector"`
	Payload   map[string]interface{} `json:"payload"`
	Timestamp int64                  `json:"timestamp"`
}

// SearchResult represents a result from a vector search.
type SearchResult struct {
	ID    string  `json:"id"`
	Score float32 `json:"score"`
	Point Point   `json:"point"`
}

// Embedder defines the interface for converting text to vectors.
type Embedder interface {
	// Embed converts a text string into a vector.
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Cosine returns the cosine similarity of a and b, or 0 when the vectors are
// empty, of different length or zero.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// InMemoryVectorStore is a brute-force VectorStore for tests and single
// process deployments.
type InMemoryVectorStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]Point
}

// NewInMemoryVectorStore creates an empty store.
func NewInMemoryVectorStore() *InMemoryVectorStore {
	return &InMemoryVectorStore{collections: make(map[string]map[string]Point)}
}

func (s *InMemoryVectorStore) CreateCollection(_ context.Context, name string, _ uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[name]; !ok {
		s.collections[name] = make(map[string]Point)
	}
	return nil
}

func (s *InMemoryVectorStore) Upsert(ctx context.Context, collection string, points []Point) error {
	_ = s.CreateCollection(ctx, collection, 0)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range points {
		s.collections[collection][p.ID] = p
	}
	return nil
}

func (s *InMemoryVectorStore) Search(_ context.Context, collection string, vector []float32, limit int, scoreThreshold float32, filter map[string]string) ([]SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []SearchResult
	for id, p := range s.collections[collection] {
		if !payloadMatches(p.Payload, filter) {
			continue
		}
		score := float32(Cosine(vector, p.Vector))
		if score < scoreThreshold {
			continue
		}
		out = append(out, SearchResult{ID: id, Score: score, Point: p})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryVectorStore) Delete(_ context.Context, collection string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.collections[collection], id)
	}
	return nil
}

func payloadMatches(payload map[string]interface{}, filter map[string]string) bool {
	for k, v := range filter {
		if got, _ := payload[k].(string); got != v {
			return false
		}
	}
	return true
}
