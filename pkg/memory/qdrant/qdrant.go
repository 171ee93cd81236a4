// SPDX-License-Identifier: Apache-2.0

// Package qdrant implements memory.VectorStore over the Qdrant gRPC API.
// Memory ids are kept in the payload because Qdrant only accepts UUID and
// integer point ids.
package qdrant

import (
	"context"
	"crypto/tls"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/jllopis/agentnet/pkg/errors"
	"github.com/jllopis/agentnet/pkg/memory"
)

const idField = "memory_id"

// Store is a Qdrant-backed vector index.
type Store struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	service     pb.QdrantClient
}

// Option configures the connection made by New.
type Option func(*dialConfig)

type dialConfig struct {
	apiKey string
	tls    bool
}

// WithAPIKey sends key in the api-key header of every call.
func WithAPIKey(key string) Option {
	return func(c *dialConfig) { c.apiKey = key }
}

// WithTLS dials with system root certificates instead of plaintext.
func WithTLS(enabled bool) Option {
	return func(c *dialConfig) { c.tls = enabled }
}

// New dials addr (host:port of the gRPC listener, usually 6334).
func New(addr string, opts ...Option) (*Store, error) {
	var cfg dialConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	creds := insecure.NewCredentials()
	if cfg.tls {
		creds = credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	dial := []grpc.DialOption{grpc.WithTransportCredentials(creds)}
	if cfg.apiKey != "" {
		dial = append(dial, grpc.WithPerRPCCredentials(apiKey{key: cfg.apiKey, secure: cfg.tls}))
	}
	conn, err := grpc.NewClient(addr, dial...)
	if err != nil {
		return nil, errors.New(errors.CodeMemoryError, "dial qdrant", err).WithContext("addr", addr)
	}
	return NewFromConn(conn), nil
}

// NewFromConn wraps an existing connection.
func NewFromConn(conn *grpc.ClientConn) *Store {
	return &Store{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		service:     pb.NewQdrantClient(conn),
	}
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// Ping runs Qdrant's health check.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.service.HealthCheck(ctx, &pb.HealthCheckRequest{})
	return wrap("health check", err)
}

// CreateCollection creates a cosine collection unless one already exists.
func (s *Store) CreateCollection(ctx context.Context, name string, vectorSize uint64) error {
	exists, err := s.collections.CollectionExists(ctx, &pb.CollectionExistsRequest{CollectionName: name})
	if err != nil {
		return wrap("check collection", err)
	}
	if exists.GetResult().GetExists() {
		return nil
	}
	_, err = s.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: name,
		VectorsConfig: &pb.VectorsConfig{Config: &pb.VectorsConfig_Params{
			Params: &pb.VectorParams{Size: vectorSize, Distance: pb.Distance_Cosine},
		}},
	})
	// Another instance may have created it between the two calls.
	if status.Code(err) == codes.AlreadyExists {
		return nil
	}
	return wrap("create collection", err)
}

// Upsert writes points and waits for them to be indexed.
func (s *Store) Upsert(ctx context.Context, collection string, points []memory.Point) error {
	if len(points) == 0 {
		return nil
	}
	structs := make([]*pb.PointStruct, len(points))
	for i, p := range points {
		payload := toPayload(p.Payload)
		payload[idField] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: p.ID}}
		structs[i] = &pb.PointStruct{
			Id:      pointID(p.ID),
			Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: p.Vector}}},
			Payload: payload,
		}
	}
	wait := true
	_, err := s.points.Upsert(ctx, &pb.UpsertPoints{CollectionName: collection, Wait: &wait, Points: structs})
	return wrap("upsert points", err)
}

// Search returns the nearest points whose payload matches every filter entry.
func (s *Store) Search(ctx context.Context, collection string, vector []float32, limit int, scoreThreshold float32, filter map[string]string) ([]memory.SearchResult, error) {
	if limit <= 0 {
		return nil, nil
	}
	resp, err := s.points.Search(ctx, &pb.SearchPoints{
		CollectionName: collection,
		Vector:         vector,
		Limit:          uint64(limit),
		ScoreThreshold: &scoreThreshold,
		Filter:         toFilter(filter),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, wrap("search points", err)
	}

	results := make([]memory.SearchResult, 0, len(resp.GetResult()))
	for _, r := range resp.GetResult() {
		payload := fromPayload(r.GetPayload())
		id, _ := payload[idField].(string)
		if id == "" {
			id = r.GetId().GetUuid()
		}
		delete(payload, idField)
		results = append(results, memory.SearchResult{
			ID:    id,
			Score: r.GetScore(),
			Point: memory.Point{ID: id, Payload: payload},
		})
	}
	return results, nil
}

// Delete removes points by memory id.
func (s *Store) Delete(ctx context.Context, collection string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	pids := make([]*pb.PointId, len(ids))
	for i, id := range ids {
		pids[i] = pointID(id)
	}
	wait := true
	_, err := s.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: collection,
		Wait:           &wait,
		Points: &pb.PointsSelector{PointsSelectorOneOf: &pb.PointsSelector_Points{
			Points: &pb.PointsIdsList{Ids: pids},
		}},
	})
	return wrap("delete points", err)
}

// wrap turns a gRPC failure into a MEMORY_ERROR. Unavailable, throttled and
// timed out calls are recoverable.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	code := status.Code(err)
	recoverable := false
	switch code {
	case codes.Unavailable, codes.ResourceExhausted, codes.DeadlineExceeded, codes.Aborted:
		recoverable = true
	}
	return errors.New(errors.CodeMemoryError, "qdrant "+op, err).
		WithContext("grpc_code", code.String()).
		WithRecoverable(recoverable)
}

// pointID maps an arbitrary id onto a stable UUID.
func pointID(id string) *pb.PointId {
	u, err := uuid.Parse(id)
	if err != nil {
		u = uuid.NewSHA1(uuid.NameSpaceOID, []byte(id))
	}
	return &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: u.String()}}
}

func toFilter(filter map[string]string) *pb.Filter {
	if len(filter) == 0 {
		return nil
	}
	must := make([]*pb.Condition, 0, len(filter))
	for k, v := range filter {
		must = append(must, &pb.Condition{ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{Key: k, Match: &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: v}}},
		}})
	}
	return &pb.Filter{Must: must}
}

// toPayload keeps scalar values; anything else is dropped.
func toPayload(in map[string]interface{}) map[string]*pb.Value {
	out := make(map[string]*pb.Value, len(in)+1)
	for k, v := range in {
		var val *pb.Value
		switch x := v.(type) {
		case string:
			val = &pb.Value{Kind: &pb.Value_StringValue{StringValue: x}}
		case int:
			val = &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(x)}}
		case int64:
			val = &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: x}}
		case float64:
			val = &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: x}}
		case bool:
			val = &pb.Value{Kind: &pb.Value_BoolValue{BoolValue: x}}
		default:
			continue
		}
		out[k] = val
	}
	return out
}

func fromPayload(in map[string]*pb.Value) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		switch x := v.GetKind().(type) {
		case *pb.Value_StringValue:
			out[k] = x.StringValue
		case *pb.Value_IntegerValue:
			out[k] = x.IntegerValue
		case *pb.Value_DoubleValue:
			out[k] = x.DoubleValue
		case *pb.Value_BoolValue:
			out[k] = x.BoolValue
		}
	}
	return out
}

// apiKey attaches Qdrant's api-key header to each call.
type apiKey struct {
	key    string
	secure bool
}

func (a apiKey) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	return map[string]string{"api-key": a.key}, nil
}

func (a apiKey) RequireTransportSecurity() bool { return a.secure }

var _ memory.VectorStore = (*Store)(nil)
