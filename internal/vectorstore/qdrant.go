package vectorstore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

var qdrantTracer = otel.Tracer("repoindex.vectorstore.qdrant")

// Payload keys written alongside each point.
const (
	payloadID      = "id"
	payloadContent = "content"
)

// DefaultMaxMessageSize is the gRPC message cap for qdrant calls.
const DefaultMaxMessageSize = 50 * 1024 * 1024

// qdrantEngine stores collections in a Qdrant server over gRPC.
// Upserts wait for the write to be applied, which makes each Add durable.
type qdrantEngine struct {
	client *qdrant.Client
	logger *zap.Logger
}

func newQdrantEngine(ctx context.Context, cfg Config, logger *zap.Logger) (*qdrantEngine, error) {
	if cfg.QdrantHost == "" {
		return nil, fmt.Errorf("%w: qdrant host required", ErrInvalidConfig)
	}
	if cfg.QdrantPort <= 0 || cfg.QdrantPort > 65535 {
		return nil, fmt.Errorf("%w: invalid qdrant port %d", ErrInvalidConfig, cfg.QdrantPort)
	}
	maxMsg := cfg.MaxMessageSize
	if maxMsg <= 0 {
		maxMsg = DefaultMaxMessageSize
	}
	if !cfg.QdrantTLS {
		logger.Warn("qdrant gRPC using plaintext (TLS disabled)")
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.QdrantHost,
		Port:   cfg.QdrantPort,
		UseTLS: cfg.QdrantTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(maxMsg),
				grpc.MaxCallSendMsgSize(maxMsg),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	e := &qdrantEngine{client: client, logger: logger}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := e.Ping(pingCtx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	logger.Info("qdrant engine initialized",
		zap.String("host", cfg.QdrantHost),
		zap.Int("port", cfg.QdrantPort),
		zap.Bool("tls", cfg.QdrantTLS),
	)
	return e, nil
}

func (e *qdrantEngine) Name() string { return EngineQdrant }

func (e *qdrantEngine) EnsureCollection(ctx context.Context, name string, dim int) error {
	ctx, span := qdrantTracer.Start(ctx, "qdrant.EnsureCollection")
	defer span.End()
	span.SetAttributes(attribute.String("collection", name), attribute.Int("dim", dim))

	exists, err := e.client.CollectionExists(ctx, name)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("checking collection %s: %w", name, err)
	}
	if exists {
		return nil
	}

	err = e.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dim),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("creating collection %s: %w", name, err)
	}
	e.logger.Info("created qdrant collection", zap.String("collection", name), zap.Int("dim", dim))
	return nil
}

func (e *qdrantEngine) Exists(ctx context.Context, name string) (bool, error) {
	exists, err := e.client.CollectionExists(ctx, name)
	if err != nil {
		return false, fmt.Errorf("checking collection %s: %w", name, err)
	}
	return exists, nil
}

func (e *qdrantEngine) Add(ctx context.Context, name string, records []Record) error {
	ctx, span := qdrantTracer.Start(ctx, "qdrant.Add")
	defer span.End()
	span.SetAttributes(attribute.String("collection", name), attribute.Int("records", len(records)))

	points := make([]*qdrant.PointStruct, len(records))
	for i, r := range records {
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(PointUUID(r.ID)),
			Vectors: qdrant.NewVectors(r.Vector...),
			Payload: recordPayload(r),
		}
	}

	_, err := e.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: name,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("upserting points to collection %s: %w", name, err)
	}
	return nil
}

func (e *qdrantEngine) Query(ctx context.Context, name string, vector []float32, k int) ([]Match, error) {
	ctx, span := qdrantTracer.Start(ctx, "qdrant.Query")
	defer span.End()
	span.SetAttributes(attribute.String("collection", name), attribute.Int("k", k))

	exists, err := e.Exists(ctx, name)
	if err != nil {
		return nil, err
	}
	if !exists {
		span.SetStatus(codes.Error, "collection not found")
		return nil, ErrCollectionNotFound
	}

	points, err := e.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: name,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("searching collection %s: %w", name, err)
	}

	matches := make([]Match, len(points))
	for i, p := range points {
		matches[i] = matchFromPoint(p)
	}
	span.SetAttributes(attribute.Int("results", len(matches)))
	return matches, nil
}

func (e *qdrantEngine) Count(ctx context.Context, name string) (int, error) {
	exists, err := e.Exists(ctx, name)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, ErrCollectionNotFound
	}
	n, err := e.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: name,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("counting collection %s: %w", name, err)
	}
	return int(n), nil
}

func (e *qdrantEngine) Delete(ctx context.Context, name string) error {
	exists, err := e.Exists(ctx, name)
	if err != nil || !exists {
		return err
	}
	if err := e.client.DeleteCollection(ctx, name); err != nil {
		return fmt.Errorf("deleting collection %s: %w", name, err)
	}
	return nil
}

func (e *qdrantEngine) Ping(ctx context.Context) error {
	if _, err := e.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("qdrant health check: %w", err)
	}
	return nil
}

// Flush is a no-op: every upsert already waits for the write.
func (e *qdrantEngine) Flush(context.Context) error { return nil }

func (e *qdrantEngine) Close() error {
	return e.client.Close()
}

// recordPayload stores metadata as payload. Integer-looking metadata values
// are kept as strings so they read back unchanged.
func recordPayload(r Record) map[string]*qdrant.Value {
	payload := make(map[string]*qdrant.Value, len(r.Metadata)+2)
	for k, v := range r.Metadata {
		payload[k] = qdrant.NewValueString(v)
	}
	payload[payloadID] = qdrant.NewValueString(r.ID)
	payload[payloadContent] = qdrant.NewValueString(r.Content)
	return payload
}

func matchFromPoint(p *qdrant.ScoredPoint) Match {
	m := Match{Score: p.GetScore(), Metadata: map[string]string{}}
	for k, v := range p.GetPayload() {
		switch k {
		case payloadID:
			m.ID = v.GetStringValue()
		case payloadContent:
			m.Content = v.GetStringValue()
		default:
			switch val := v.GetKind().(type) {
			case *qdrant.Value_StringValue:
				m.Metadata[k] = val.StringValue
			case *qdrant.Value_IntegerValue:
				m.Metadata[k] = strconv.FormatInt(val.IntegerValue, 10)
			}
		}
	}
	if m.ID == "" {
		m.ID = p.GetId().GetUuid()
	}
	return m
}
