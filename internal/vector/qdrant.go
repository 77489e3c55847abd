package vector

import (
	"context"
	"fmt"
	"net"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

const (
	payloadPosition = "position"
	payloadChunkID  = "chunk_id"
	qdrantBatchSize = 256
)

// QdrantIndex stores vectors in a remote Qdrant collection. Point ids are build positions
// and the payload carries the position and chunk id.
//
// The configured name is an alias. Reset creates a new generation collection named
// <alias>_v<n> and Save points the alias at it, so a build never writes into the
// collection a running server searches. Load resolves the alias once and keeps using
// that generation until the index is closed.
type QdrantIndex struct {
	conn        *grpc.ClientConn
	points      qdrant.PointsClient
	collections qdrant.CollectionsClient
	alias       string
	dimensions  int
	metric      Metric
	generation  func() int64

	mu         sync.RWMutex
	collection string
	building   bool
	size       int
}

// NewQdrantIndex connects to Qdrant's gRPC port at host:port.
func NewQdrantIndex(host string, port int, collection string, dimensions int, metric Metric) (*QdrantIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	if metric == "" {
		metric = MetricCosine
	}
	conn, err := grpc.NewClient(
		net.JoinHostPort(host, strconv.Itoa(port)),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("connect qdrant: %w", err)
	}
	return newQdrantIndex(conn, collection, dimensions, metric), nil
}

func newQdrantIndex(conn *grpc.ClientConn, alias string, dimensions int, metric Metric) *QdrantIndex {
	return &QdrantIndex{
		conn:        conn,
		points:      qdrant.NewPointsClient(conn),
		collections: qdrant.NewCollectionsClient(conn),
		alias:       alias,
		dimensions:  dimensions,
		metric:      metric,
		generation:  func() int64 { return time.Now().UnixNano() },
		collection:  alias,
	}
}

func (q *QdrantIndex) distance() qdrant.Distance {
	if q.metric == MetricL2 {
		return qdrant.Distance_Euclid
	}
	return qdrant.Distance_Cosine
}

func (q *QdrantIndex) generationName(n int64) string {
	return q.alias + "_v" + strconv.FormatInt(n, 10)
}

// isGeneration reports whether name is a generation collection of this index's alias.
func (q *QdrantIndex) isGeneration(name string) bool {
	suffix, ok := strings.CutPrefix(name, q.alias+"_v")
	if !ok || suffix == "" {
		return false
	}
	_, err := strconv.ParseUint(suffix, 10, 64)
	return err == nil
}

// Collection returns the physical collection that Add and Search use.
func (q *QdrantIndex) Collection() string {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.collection
}

// Reset creates an empty generation collection and directs later Adds to it. The
// collection behind the alias is left untouched until Save.
func (q *QdrantIndex) Reset(ctx context.Context) error {
	name := q.generationName(q.generation())
	_, err := q.collections.Create(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: &qdrant.VectorsConfig{
			Config: &qdrant.VectorsConfig_Params{
				Params: &qdrant.VectorParams{
					Size:     uint64(q.dimensions),
					Distance: q.distance(),
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("create collection %s: %w", name, err)
	}
	q.mu.Lock()
	q.collection = name
	q.building = true
	q.size = 0
	q.mu.Unlock()
	return nil
}

// Add upserts vectors as points numbered from the current size.
func (q *QdrantIndex) Add(ctx context.Context, chunkIDs []string, vectors [][]float32) error {
	if err := checkAddArgs(chunkIDs, vectors, q.dimensions); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	wait := true
	for start := 0; start < len(vectors); start += qdrantBatchSize {
		end := min(start+qdrantBatchSize, len(vectors))
		pts := make([]*qdrant.PointStruct, 0, end-start)
		for i := start; i < end; i++ {
			pos := q.size + i
			pts = append(pts, &qdrant.PointStruct{
				Id:      qdrant.NewIDNum(uint64(pos)),
				Vectors: qdrant.NewVectors(vectors[i]...),
				Payload: map[string]*qdrant.Value{
					payloadPosition: qdrant.NewValueInt(int64(pos)),
					payloadChunkID:  qdrant.NewValueString(chunkIDs[i]),
				},
			})
		}
		resp, err := q.points.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: q.collection,
			Wait:           &wait,
			Points:         pts,
		})
		if err != nil {
			return fmt.Errorf("upsert points: %w", err)
		}
		if st := resp.GetResult().GetStatus(); st != qdrant.UpdateStatus_Acknowledged && st != qdrant.UpdateStatus_Completed {
			return fmt.Errorf("upsert points: status %s", st)
		}
	}
	q.size += len(vectors)
	return nil
}

// Search queries the collection. Euclid scores are distances and are negated.
func (q *QdrantIndex) Search(ctx context.Context, query []float32, k int) ([]Hit, error) {
	if err := checkSearchArgs(query, k, q.dimensions); err != nil {
		return nil, err
	}
	q.mu.RLock()
	collection := q.collection
	q.mu.RUnlock()
	resp, err := q.points.Search(ctx, &qdrant.SearchPoints{
		CollectionName: collection,
		Vector:         query,
		Limit:          uint64(k),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant search: %w", err)
	}
	hits := make([]Hit, 0, len(resp.GetResult()))
	for _, p := range resp.GetResult() {
		pos := int(p.GetId().GetNum())
		if v, ok := p.GetPayload()[payloadPosition]; ok {
			pos = int(v.GetIntegerValue())
		}
		s := float64(p.GetScore())
		if q.metric == MetricL2 {
			s = -s
		}
		hits = append(hits, Hit{Position: pos, Score: s, ChunkID: p.GetPayload()[payloadChunkID].GetStringValue()})
	}
	sortHits(hits)
	return hits, nil
}

// Save points the alias at the collection built since the last Reset and drops older
// generations, keeping the one the alias pointed at before. It is a no-op for an index
// that was only loaded. A plain collection named like the alias makes Save fail.
func (q *QdrantIndex) Save(string) error {
	q.mu.RLock()
	built, building := q.collection, q.building
	q.mu.RUnlock()
	if !building {
		return nil
	}
	ctx := context.Background()
	previous, err := q.aliasTarget(ctx)
	if err != nil {
		return err
	}

	var actions []*qdrant.AliasOperations
	if previous != "" {
		actions = append(actions, &qdrant.AliasOperations{
			Action: &qdrant.AliasOperations_DeleteAlias{DeleteAlias: &qdrant.DeleteAlias{AliasName: q.alias}},
		})
	}
	actions = append(actions, &qdrant.AliasOperations{
		Action: &qdrant.AliasOperations_CreateAlias{CreateAlias: &qdrant.CreateAlias{
			CollectionName: built,
			AliasName:      q.alias,
		}},
	})
	if _, err := q.collections.UpdateAliases(ctx, &qdrant.ChangeAliases{Actions: actions}); err != nil {
		return fmt.Errorf("point alias %s at %s: %w", q.alias, built, err)
	}
	q.mu.Lock()
	q.building = false
	q.mu.Unlock()

	return q.dropGenerations(ctx, built, previous)
}

// aliasTarget returns the collection the alias points at, or "" if there is no alias.
func (q *QdrantIndex) aliasTarget(ctx context.Context) (string, error) {
	resp, err := q.collections.ListAliases(ctx, &qdrant.ListAliasesRequest{})
	if err != nil {
		return "", fmt.Errorf("list aliases: %w", err)
	}
	for _, a := range resp.GetAliases() {
		if a.GetAliasName() == q.alias {
			return a.GetCollectionName(), nil
		}
	}
	return "", nil
}

func (q *QdrantIndex) dropGenerations(ctx context.Context, keep ...string) error {
	resp, err := q.collections.List(ctx, &qdrant.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("list collections: %w", err)
	}
	for _, c := range resp.GetCollections() {
		name := c.GetName()
		if !q.isGeneration(name) || slices.Contains(keep, name) {
			continue
		}
		_, err := q.collections.Delete(ctx, &qdrant.DeleteCollection{CollectionName: name})
		if err != nil && status.Code(err) != codes.NotFound {
			return fmt.Errorf("delete collection %s: %w", name, err)
		}
	}
	return nil
}

// Load resolves the alias, checks that the collection has the configured vector size and
// distance, and records its point count. Collections created before aliases were used
// are opened by name.
func (q *QdrantIndex) Load(string) error {
	ctx := context.Background()
	name, err := q.aliasTarget(ctx)
	if err != nil {
		return err
	}
	if name == "" {
		name = q.alias
	}
	info, err := q.collections.Get(ctx, &qdrant.GetCollectionInfoRequest{CollectionName: name})
	if err != nil {
		return fmt.Errorf("get collection %s: %w", name, err)
	}
	params := info.GetResult().GetConfig().GetParams().GetVectorsConfig().GetParams()
	if params == nil {
		return fmt.Errorf("collection %s has no single unnamed vector", name)
	}
	if int(params.GetSize()) != q.dimensions {
		return fmt.Errorf("dimension mismatch: collection has %d, index expects %d", params.GetSize(), q.dimensions)
	}
	if params.GetDistance() != q.distance() {
		return fmt.Errorf("metric mismatch: collection uses %s, index expects %s", params.GetDistance(), q.metric)
	}

	exact := true
	count, err := q.points.Count(ctx, &qdrant.CountPoints{CollectionName: name, Exact: &exact})
	if err != nil {
		return fmt.Errorf("count points: %w", err)
	}
	q.mu.Lock()
	q.collection = name
	q.building = false
	q.size = int(count.GetResult().GetCount())
	q.mu.Unlock()
	return nil
}

// Size returns the number of points known to be in the collection.
func (q *QdrantIndex) Size() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.size
}

// Dimensions returns the vector dimension.
func (q *QdrantIndex) Dimensions() int { return q.dimensions }

// Metric returns the similarity metric.
func (q *QdrantIndex) Metric() Metric { return q.metric }

// Type returns the index type identifier.
func (q *QdrantIndex) Type() string { return string(IndexTypeQdrant) }

// Close closes the gRPC connection.
func (q *QdrantIndex) Close() error {
	if q.conn == nil {
		return nil
	}
	return q.conn.Close()
}
