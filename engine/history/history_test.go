package history

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/HealthConnectAI/healthconnect-mvp/engine/domain"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
)

// --- Mocks ---

type mockEmbedder struct {
	vector []float32
	err    error
	texts  []string
}

func (m *mockEmbedder) EmbedText(_ context.Context, text string) ([]float32, error) {
	m.texts = append(m.texts, text)
	return m.vector, m.err
}

type mockPoints struct {
	upsertReq  *pb.UpsertPoints
	upsertErr  error
	searchResp *pb.SearchResponse
	searchErr  error
}

func (m *mockPoints) Upsert(_ context.Context, in *pb.UpsertPoints, _ ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	m.upsertReq = in
	return &pb.PointsOperationResponse{}, m.upsertErr
}

func (m *mockPoints) Search(_ context.Context, _ *pb.SearchPoints, _ ...grpc.CallOption) (*pb.SearchResponse, error) {
	return m.searchResp, m.searchErr
}

type mockCollections struct {
	listResp  *pb.ListCollectionsResponse
	listErr   error
	created   bool
	createErr error
}

func (m *mockCollections) List(_ context.Context, _ *pb.ListCollectionsRequest, _ ...grpc.CallOption) (*pb.ListCollectionsResponse, error) {
	return m.listResp, m.listErr
}

func (m *mockCollections) Create(_ context.Context, _ *pb.CreateCollection, _ ...grpc.CallOption) (*pb.CollectionOperationResponse, error) {
	m.created = true
	return &pb.CollectionOperationResponse{}, m.createErr
}

// --- Tests ---

func sampleResult() domain.DiagnosisResult {
	return domain.DiagnosisResult{
		PreliminaryDiagnosis: "posible faringitis",
		PotentialConditions:  []string{"faringitis", "resfriado"},
		UrgencyLevel:         domain.UrgencyMedia,
		Timestamp:            1234,
		Success:              true,
	}
}

func TestEnsureCollectionCreatesWhenMissing(t *testing.T) {
	cols := &mockCollections{listResp: &pb.ListCollectionsResponse{}}
	s := NewWithClients(&mockPoints{}, cols, "eps", &mockEmbedder{})
	if err := s.EnsureCollection(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !cols.created {
		t.Error("expected collection creation")
	}
}

func TestEnsureCollectionSkipsWhenPresent(t *testing.T) {
	cols := &mockCollections{listResp: &pb.ListCollectionsResponse{
		Collections: []*pb.CollectionDescription{{Name: "eps"}},
	}}
	s := NewWithClients(&mockPoints{}, cols, "eps", &mockEmbedder{})
	if err := s.EnsureCollection(context.Background()); err != nil {
		t.Fatal(err)
	}
	if cols.created {
		t.Error("existing collection must not be recreated")
	}
}

func TestRecordEpisodeUpserts(t *testing.T) {
	points := &mockPoints{}
	emb := &mockEmbedder{vector: []float32{0.1, 0.2}}
	s := NewWithClients(points, &mockCollections{}, "eps", emb)

	if err := s.RecordEpisode(context.Background(), sampleResult()); err != nil {
		t.Fatal(err)
	}
	if points.upsertReq == nil || len(points.upsertReq.Points) != 1 {
		t.Fatal("expected one upserted point")
	}
	payload := points.upsertReq.Points[0].Payload
	if payload["urgency"].GetStringValue() != "MEDIA" {
		t.Errorf("urgency payload = %q", payload["urgency"].GetStringValue())
	}
	if len(emb.texts) != 1 || !strings.Contains(emb.texts[0], "faringitis") {
		t.Errorf("embedded text = %v", emb.texts)
	}
}

func TestRecordEpisodeEmbedFailure(t *testing.T) {
	emb := &mockEmbedder{err: errors.New("no key")}
	s := NewWithClients(&mockPoints{}, &mockCollections{}, "eps", emb)
	if err := s.RecordEpisode(context.Background(), sampleResult()); err == nil {
		t.Error("expected error when embedding fails")
	}
}

func TestSimilarEpisodes(t *testing.T) {
	points := &mockPoints{searchResp: &pb.SearchResponse{
		Result: []*pb.ScoredPoint{{
			Id:    &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: "abc"}},
			Score: 0.9,
			Payload: map[string]*pb.Value{
				"summary":   {Kind: &pb.Value_StringValue{StringValue: "tos persistente"}},
				"urgency":   {Kind: &pb.Value_StringValue{StringValue: "ALTA"}},
				"timestamp": {Kind: &pb.Value_IntegerValue{IntegerValue: 42}},
			},
		}},
	}}
	s := NewWithClients(points, &mockCollections{}, "eps", &mockEmbedder{vector: []float32{1}})

	eps, err := s.SimilarEpisodes(context.Background(), "tos", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(eps) != 1 {
		t.Fatalf("got %d episodes", len(eps))
	}
	if eps[0].Summary != "tos persistente" || eps[0].Urgency != domain.UrgencyAlta || eps[0].Timestamp != 42 {
		t.Errorf("episode = %+v", eps[0])
	}
}

func TestContextBlock(t *testing.T) {
	if got := ContextBlock(nil); got != "" {
		t.Errorf("empty input must yield empty block, got %q", got)
	}
	block := ContextBlock([]Episode{{Summary: "a"}, {Summary: "b"}})
	if !strings.Contains(block, "- a") || !strings.Contains(block, "- b") {
		t.Errorf("block = %q", block)
	}
}

// --- Enricher ---

type fakeFinder struct {
	episodes []Episode
	err      error
	query    string
}

func (f *fakeFinder) SimilarEpisodes(_ context.Context, query string, _ int) ([]Episode, error) {
	f.query = query
	return f.episodes, f.err
}

func TestEnricherContextFor(t *testing.T) {
	finder := &fakeFinder{episodes: []Episode{{Summary: "tos persistente. Urgencia: ALTA."}}}
	e := NewEnricher(finder, nil)

	got := e.ContextFor(context.Background(), domain.HealthMetrics{
		AudioAnalysis: &domain.AudioMetrics{
			VoiceQuality:     domain.VoiceRonca,
			BreathingPattern: domain.BreathingNormal,
			CoughDetected:    true,
		},
	})
	if !strings.Contains(finder.query, domain.VoiceRonca) || !strings.Contains(finder.query, "Tos detectada") {
		t.Errorf("query = %q", finder.query)
	}
	if !strings.Contains(got, "tos persistente") {
		t.Errorf("context = %q", got)
	}
}

func TestEnricherSkipsWithoutSignal(t *testing.T) {
	finder := &fakeFinder{episodes: []Episode{{Summary: "x"}}}
	e := NewEnricher(finder, nil)
	if got := e.ContextFor(context.Background(), domain.HealthMetrics{}); got != "" {
		t.Errorf("got %q, want empty", got)
	}
	if finder.query != "" {
		t.Error("no signal must not hit the store")
	}
}

func TestEnricherSwallowsLookupErrors(t *testing.T) {
	e := NewEnricher(&fakeFinder{err: errors.New("qdrant down")}, nil)
	got := e.ContextFor(context.Background(), domain.HealthMetrics{
		ImageAnalysis: &domain.ImageMetrics{BodyPart: domain.BodyPartPiel},
	})
	if got != "" {
		t.Errorf("got %q, want empty on lookup failure", got)
	}
}

func TestQueryText(t *testing.T) {
	if got := QueryText(domain.HealthMetrics{}); got != "" {
		t.Errorf("empty metrics: got %q", got)
	}
	got := QueryText(domain.HealthMetrics{
		ImageAnalysis: &domain.ImageMetrics{BodyPart: domain.BodyPartDesconocido},
	})
	if got != "" {
		t.Errorf("unknown body part alone must not be searchable, got %q", got)
	}
	got = QueryText(domain.HealthMetrics{
		ImageAnalysis: &domain.ImageMetrics{BodyPart: domain.BodyPartGarganta},
	})
	if !strings.Contains(got, domain.BodyPartGarganta) {
		t.Errorf("got %q", got)
	}
}
