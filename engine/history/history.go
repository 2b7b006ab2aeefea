// Package history is the episode memory: every completed diagnosis is
// embedded and stored in Qdrant so later requests can be enriched with
// similar past episodes. Recording is best-effort; retrieval failures are
// logged and skipped, never surfaced to the patient.
package history

import (
	"context"
	"fmt"
	"strings"

	"github.com/HealthConnectAI/healthconnect-mvp/engine/domain"
	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// embedDims matches the embedding model's output dimensionality.
const embedDims = 768

// DefaultCollection is the Qdrant collection holding episodes.
const DefaultCollection = "health-episodes"

// Embedder turns text into a vector. Satisfied by the genai client.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// Episode is one stored diagnosis summary.
type Episode struct {
	ID        string
	Score     float32
	Summary   string
	Urgency   domain.Urgency
	Timestamp int64
}

type pointsAPI interface {
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Search(ctx context.Context, in *pb.SearchPoints, opts ...grpc.CallOption) (*pb.SearchResponse, error)
}

type collectionsAPI interface {
	List(ctx context.Context, in *pb.ListCollectionsRequest, opts ...grpc.CallOption) (*pb.ListCollectionsResponse, error)
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
}

// Store owns all Qdrant operations for episode memory.
type Store struct {
	conn        *grpc.ClientConn
	points      pointsAPI
	collections collectionsAPI
	collection  string
	embedder    Embedder
}

// New connects to Qdrant at the given gRPC address.
func New(addr, collection string, embedder Embedder) (*Store, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("history: dial qdrant %s: %w", addr, err)
	}
	return &Store{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
		embedder:    embedder,
	}, nil
}

// NewWithClients wires pre-built clients. Used by tests.
func NewWithClients(points pointsAPI, collections collectionsAPI, collection string, embedder Embedder) *Store {
	return &Store{
		points:      points,
		collections: collections,
		collection:  collection,
		embedder:    embedder,
	}
}

// Close closes the underlying gRPC connection.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// EnsureCollection creates the episode collection if it doesn't exist.
func (s *Store) EnsureCollection(ctx context.Context) error {
	list, err := s.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("history: list collections: %w", err)
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
					Size:     embedDims,
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("history: create collection %s: %w", s.collection, err)
	}
	return nil
}

// RecordEpisode embeds and stores a completed diagnosis.
func (s *Store) RecordEpisode(ctx context.Context, result domain.DiagnosisResult) error {
	summary := EpisodeSummary(result)
	vector, err := s.embedder.EmbedText(ctx, summary)
	if err != nil {
		return fmt.Errorf("history: embed episode: %w", err)
	}

	wait := true
	_, err = s.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points: []*pb.PointStruct{{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: uuid.NewString()},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: vector},
				},
			},
			Payload: map[string]*pb.Value{
				"summary":   {Kind: &pb.Value_StringValue{StringValue: summary}},
				"urgency":   {Kind: &pb.Value_StringValue{StringValue: string(result.UrgencyLevel)}},
				"timestamp": {Kind: &pb.Value_IntegerValue{IntegerValue: result.Timestamp}},
			},
		}},
	})
	if err != nil {
		return fmt.Errorf("history: upsert episode: %w", err)
	}
	return nil
}

// SimilarEpisodes embeds the query text and returns the topK closest stored
// episodes.
func (s *Store) SimilarEpisodes(ctx context.Context, query string, topK int) ([]Episode, error) {
	vector, err := s.embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("history: embed query: %w", err)
	}

	resp, err := s.points.Search(ctx, &pb.SearchPoints{
		CollectionName: s.collection,
		Vector:         vector,
		Limit:          uint64(topK),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("history: search: %w", err)
	}

	episodes := make([]Episode, 0, len(resp.GetResult()))
	for _, r := range resp.GetResult() {
		ep := Episode{
			ID:    r.GetId().GetUuid(),
			Score: r.GetScore(),
		}
		for k, val := range r.GetPayload() {
			switch k {
			case "summary":
				ep.Summary = val.GetStringValue()
			case "urgency":
				ep.Urgency = domain.Urgency(val.GetStringValue())
			case "timestamp":
				ep.Timestamp = val.GetIntegerValue()
			}
		}
		episodes = append(episodes, ep)
	}
	return episodes, nil
}

// EpisodeSummary renders a diagnosis as the text that gets embedded.
func EpisodeSummary(r domain.DiagnosisResult) string {
	var b strings.Builder
	b.WriteString(r.PreliminaryDiagnosis)
	if len(r.PotentialConditions) > 0 {
		fmt.Fprintf(&b, " Condiciones: %s.", strings.Join(r.PotentialConditions, ", "))
	}
	fmt.Fprintf(&b, " Urgencia: %s.", r.UrgencyLevel)
	return b.String()
}

// ContextBlock formats retrieved episodes as prompt context. Empty input
// yields an empty string so the prompt builder can skip the section.
func ContextBlock(episodes []Episode) string {
	if len(episodes) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Episodios anteriores similares del paciente:")
	for _, ep := range episodes {
		fmt.Fprintf(&b, "\n- %s", ep.Summary)
	}
	return b.String()
}
