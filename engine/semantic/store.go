// Package semantic indexes FAQ entry vectors in Qdrant so new candidates can
// be checked against an application's existing knowledge base.
package semantic

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/WessleyAI/wessley-support/engine/domain"
)

// PointsAPI is the subset of the Qdrant points service used by FAQIndex.
type PointsAPI interface {
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Search(ctx context.Context, in *pb.SearchPoints, opts ...grpc.CallOption) (*pb.SearchResponse, error)
}

// CollectionsAPI is the subset of the Qdrant collections service used by FAQIndex.
type CollectionsAPI interface {
	List(ctx context.Context, in *pb.ListCollectionsRequest, opts ...grpc.CallOption) (*pb.ListCollectionsResponse, error)
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
	Delete(ctx context.Context, in *pb.DeleteCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
}

// FAQIndex is the sole owner of Qdrant operations on the FAQ collection.
type FAQIndex struct {
	conn        *grpc.ClientConn
	points      PointsAPI
	collections CollectionsAPI
	collection  string
}

// New creates an FAQIndex connected to Qdrant at the given gRPC address.
func New(addr string, collection string) (*FAQIndex, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("semantic: dial qdrant %s: %w", addr, err)
	}
	return &FAQIndex{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
	}, nil
}

// NewWithClients creates an FAQIndex over existing clients.
func NewWithClients(points PointsAPI, collections CollectionsAPI, collection string) *FAQIndex {
	return &FAQIndex{points: points, collections: collections, collection: collection}
}

// Close closes the underlying gRPC connection, if any.
func (x *FAQIndex) Close() error {
	if x.conn == nil {
		return nil
	}
	return x.conn.Close()
}

// EnsureCollection creates the cosine collection if it doesn't exist.
func (x *FAQIndex) EnsureCollection(ctx context.Context, dims int) error {
	list, err := x.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("semantic: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == x.collection {
			return nil
		}
	}

	_, err = x.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: x.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(dims),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("semantic: create collection %s: %w", x.collection, err)
	}
	return nil
}

// DeleteCollection drops the collection.
func (x *FAQIndex) DeleteCollection(ctx context.Context) error {
	if _, err := x.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: x.collection}); err != nil {
		return fmt.Errorf("semantic: delete collection %s: %w", x.collection, err)
	}
	return nil
}

// PointID derives the deterministic point id of an FAQ entry, so re-indexing
// an entry overwrites its previous vector.
func PointID(appID, faqID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(appID+"/"+faqID)).String()
}

// Index upserts the vector of an FAQ entry.
func (x *FAQIndex) Index(ctx context.Context, entry domain.FAQEntry, vector []float32) error {
	wait := true
	_, err := x.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: x.collection,
		Wait:           &wait,
		Points: []*pb.PointStruct{{
			Id: &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: PointID(entry.AppID, entry.ID)}},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: vector}},
			},
			Payload: map[string]*pb.Value{
				"app_id":    stringValue(entry.AppID),
				"faq_id":    stringValue(entry.ID),
				"question":  stringValue(entry.Question),
				"category":  stringValue(entry.Category),
				"published": {Kind: &pb.Value_BoolValue{BoolValue: entry.IsPublished}},
			},
		}},
	})
	if err != nil {
		return fmt.Errorf("semantic: index faq %s: %w", entry.ID, err)
	}
	return nil
}

// Search returns up to topK entries of appID scoring at least minScore.
func (x *FAQIndex) Search(ctx context.Context, appID string, vector []float32, topK int, minScore float32) ([]SearchResult, error) {
	req := &pb.SearchPoints{
		CollectionName: x.collection,
		Vector:         vector,
		Limit:          uint64(topK),
		Filter:         &pb.Filter{Must: []*pb.Condition{fieldMatch("app_id", appID)}},
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	}
	if minScore > 0 {
		req.ScoreThreshold = &minScore
	}

	resp, err := x.points.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("semantic: search: %w", err)
	}

	results := make([]SearchResult, len(resp.GetResult()))
	for i, r := range resp.GetResult() {
		p := r.GetPayload()
		results[i] = SearchResult{
			PointID:   r.GetId().GetUuid(),
			FAQID:     p["faq_id"].GetStringValue(),
			AppID:     p["app_id"].GetStringValue(),
			Question:  p["question"].GetStringValue(),
			Category:  p["category"].GetStringValue(),
			Published: p["published"].GetBoolValue(),
			Score:     r.GetScore(),
		}
	}
	return results, nil
}

// FindSimilar returns the best-matching entry of appID with cosine similarity
// at least threshold, or an empty id when none qualifies.
func (x *FAQIndex) FindSimilar(ctx context.Context, appID string, vector []float32, threshold float64) (string, float64, error) {
	results, err := x.Search(ctx, appID, vector, 1, float32(threshold))
	if err != nil {
		return "", 0, err
	}
	if len(results) == 0 || float64(results[0].Score) < threshold {
		return "", 0, nil
	}
	return results[0].FAQID, float64(results[0].Score), nil
}

func stringValue(s string) *pb.Value {
	return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
}

func fieldMatch(key, value string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key: key,
				Match: &pb.Match{
					MatchValue: &pb.Match_Keyword{Keyword: value},
				},
			},
		},
	}
}
