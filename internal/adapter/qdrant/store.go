package qdrant

import (
	"context"
	"fmt"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"textbook-rag/apps/backend/internal/retrieval"
	"textbook-rag/apps/backend/internal/text"
)

const DefaultCollection = "textbook_chunks"

const (
	keyText          = "text"
	keySourceID      = "source_id"
	keySequenceIndex = "sequence_index"
	keyKind          = "kind"
	keySourceLength  = "source_length"
	keyPosition      = "position"
	keyTotalUnits    = "total_units"
)

// PointsAPI is the subset of pb.PointsClient used by Store.
type PointsAPI interface {
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Delete(ctx context.Context, in *pb.DeletePoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Search(ctx context.Context, in *pb.SearchPoints, opts ...grpc.CallOption) (*pb.SearchResponse, error)
}

// CollectionsAPI is the subset of pb.CollectionsClient used by Store.
type CollectionsAPI interface {
	List(ctx context.Context, in *pb.ListCollectionsRequest, opts ...grpc.CallOption) (*pb.ListCollectionsResponse, error)
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
}

// Store implements retrieval.SimilarityIndex on a Qdrant collection over gRPC.
type Store struct {
	conn        *grpc.ClientConn
	points      PointsAPI
	collections CollectionsAPI
	collection  string
}

func New(addr, collection string) (*Store, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant: dial %s: %w", addr, err)
	}
	s := NewWithClients(pb.NewPointsClient(conn), pb.NewCollectionsClient(conn), collection)
	s.conn = conn
	return s, nil
}

func NewWithClients(points PointsAPI, collections CollectionsAPI, collection string) *Store {
	if collection == "" {
		collection = DefaultCollection
	}
	return &Store{points: points, collections: collections, collection: collection}
}

func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// EnsureSchema creates the collection with cosine distance and the given
// vector size if it does not exist yet.
func (s *Store) EnsureSchema(ctx context.Context, dims int) error {
	list, err := s.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("qdrant: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == s.collection {
			return nil
		}
	}

	_, err = s.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(dims), // #nosec G115 -- validated positive in config
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("qdrant: create collection %s: %w", s.collection, err)
	}
	return nil
}

func (s *Store) Upsert(ctx context.Context, v retrieval.IndexedVector) error {
	return s.UpsertMany(ctx, []retrieval.IndexedVector{v})
}

func (s *Store) UpsertMany(ctx context.Context, vs []retrieval.IndexedVector) error {
	if len(vs) == 0 {
		return nil
	}

	points := make([]*pb.PointStruct, len(vs))
	for i, v := range vs {
		points[i] = &pb.PointStruct{
			Id: pointID(v.ID),
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: v.Vector}},
			},
			Payload: toPayload(v),
		}
	}

	wait := true
	if _, err := s.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points:         points,
	}); err != nil {
		return fmt.Errorf("qdrant: upsert %d points: %w", len(vs), err)
	}
	return nil
}

// Search returns up to k units ordered by descending cosine similarity.
func (s *Store) Search(ctx context.Context, vector []float32, k int) ([]retrieval.RetrievedUnit, error) {
	resp, err := s.points.Search(ctx, &pb.SearchPoints{
		CollectionName: s.collection,
		Vector:         vector,
		Limit:          uint64(k), // #nosec G115 -- k is a small positive constant
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search: %w", err)
	}

	results := make([]retrieval.RetrievedUnit, 0, len(resp.GetResult()))
	for _, p := range resp.GetResult() {
		results = append(results, fromPayload(p.GetId().GetUuid(), p.GetScore(), p.GetPayload()))
	}
	return results, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	return s.DeleteMany(ctx, []string{id})
}

func (s *Store) DeleteMany(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	pids := make([]*pb.PointId, len(ids))
	for i, id := range ids {
		pids[i] = pointID(id)
	}
	return s.deletePoints(ctx, &pb.PointsSelector{
		PointsSelectorOneOf: &pb.PointsSelector_Points{Points: &pb.PointsIdsList{Ids: pids}},
	}, fmt.Sprintf("%d ids", len(ids)))
}

func (s *Store) DeleteBySource(ctx context.Context, sourceID string) error {
	return s.deletePoints(ctx, &pb.PointsSelector{
		PointsSelectorOneOf: &pb.PointsSelector_Filter{
			Filter: &pb.Filter{Must: []*pb.Condition{fieldMatch(keySourceID, sourceID)}},
		},
	}, "source "+sourceID)
}

func (s *Store) deletePoints(ctx context.Context, sel *pb.PointsSelector, what string) error {
	wait := true
	if _, err := s.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points:         sel,
	}); err != nil {
		return fmt.Errorf("qdrant: delete %s: %w", what, err)
	}
	return nil
}

func pointID(id string) *pb.PointId {
	return &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: id}}
}

func toPayload(v retrieval.IndexedVector) map[string]*pb.Value {
	str := func(s string) *pb.Value { return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}} }
	num := func(n int) *pb.Value { return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(n)}} }

	return map[string]*pb.Value{
		keyText:          str(v.Text),
		keySourceID:      str(v.Metadata.SourceID),
		keySequenceIndex: num(v.Metadata.SequenceIndex),
		keyKind:          str(string(v.Metadata.Kind)),
		keySourceLength:  num(v.Metadata.SourceLength),
		keyPosition:      num(v.Metadata.Position),
		keyTotalUnits:    num(v.Metadata.TotalUnits),
	}
}

func fromPayload(id string, score float32, payload map[string]*pb.Value) retrieval.RetrievedUnit {
	num := func(k string) int { return int(payload[k].GetIntegerValue()) }
	return retrieval.RetrievedUnit{
		ID:    id,
		Text:  payload[keyText].GetStringValue(),
		Score: score,
		Metadata: retrieval.UnitMetadata{
			SourceID:      payload[keySourceID].GetStringValue(),
			SequenceIndex: num(keySequenceIndex),
			Kind:          text.UnitKind(payload[keyKind].GetStringValue()),
			SourceLength:  num(keySourceLength),
			Position:      num(keyPosition),
			TotalUnits:    num(keyTotalUnits),
		},
	}
}

func fieldMatch(key, value string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key:   key,
				Match: &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: value}},
			},
		},
	}
}
