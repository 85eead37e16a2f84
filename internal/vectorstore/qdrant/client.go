package qdrant

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"github.com/upb/textbook-rag/internal/vectorstore"
	"google.golang.org/grpc"
)

const (
	defaultGRPCPort = 6334
	restPort        = 6333
	defaultTimeout  = 30 * time.Second
)

// ErrInvalidConfig is returned when required connection settings are missing.
var ErrInvalidConfig = errors.New("invalid qdrant configuration")

// Config holds Qdrant connection configuration.
type Config struct {
	// URL is the Qdrant server address (e.g., "https://example.qdrant.io:6333").
	URL string

	// APIKey authenticates against Qdrant Cloud.
	APIKey string

	// CollectionName is the name of the collection to search.
	CollectionName string

	// Timeout bounds every call made through the client.
	Timeout time.Duration

	// GrpcOptions are appended to the dial options of the underlying connection.
	GrpcOptions []grpc.DialOption
}

// Client implements vectorstore.VectorStore for Qdrant over gRPC.
type Client struct {
	client         *qdrant.Client
	collectionName string
	timeout        time.Duration
}

// endpoint is the parsed form of Config.URL.
type endpoint struct {
	host   string
	port   int
	useTLS bool
}

// New creates a new Qdrant client. The underlying gRPC connection is
// established lazily on first use.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: url is required", ErrInvalidConfig)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: api key is required", ErrInvalidConfig)
	}
	if cfg.CollectionName == "" {
		return nil, fmt.Errorf("%w: collection name is required", ErrInvalidConfig)
	}

	ep, err := parseEndpoint(cfg.URL)
	if err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	qdrantClient, err := qdrant.NewClient(&qdrant.Config{
		Host:                   ep.host,
		Port:                   ep.port,
		APIKey:                 cfg.APIKey,
		UseTLS:                 ep.useTLS,
		SkipCompatibilityCheck: true,
		GrpcOptions:            cfg.GrpcOptions,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	return &Client{
		client:         qdrantClient,
		collectionName: cfg.CollectionName,
		timeout:        timeout,
	}, nil
}

// parseEndpoint extracts host, gRPC port and scheme from a Qdrant URL.
// Cloud URLs usually carry the REST port, which is swapped for the gRPC one.
func parseEndpoint(raw string) (endpoint, error) {
	parsedURL := strings.TrimSpace(raw)
	if !strings.HasPrefix(parsedURL, "http://") && !strings.HasPrefix(parsedURL, "https://") {
		parsedURL = "https://" + parsedURL
	}

	u, err := url.Parse(parsedURL)
	if err != nil {
		return endpoint{}, fmt.Errorf("failed to parse qdrant url: %w", err)
	}
	if u.Hostname() == "" {
		return endpoint{}, fmt.Errorf("%w: url %q has no host", ErrInvalidConfig, raw)
	}

	port := defaultGRPCPort
	if u.Port() != "" {
		p, err := strconv.Atoi(u.Port())
		if err != nil {
			return endpoint{}, fmt.Errorf("invalid port: %w", err)
		}
		port = p
	}
	if port == restPort {
		port = defaultGRPCPort
	}

	return endpoint{
		host:   u.Hostname(),
		port:   port,
		useTLS: u.Scheme == "https",
	}, nil
}

// Search implements vectorstore.VectorStore.
func (c *Client) Search(ctx context.Context, vector []float32, limit int) ([]vectorstore.SearchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	limitUint64 := uint64(limit)
	points, err := c.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: c.collectionName,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limitUint64,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant search failed: %w", err)
	}

	return toSearchResults(points), nil
}

// HealthCheck implements vectorstore.VectorStore.
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if _, err := c.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("qdrant health check failed: %w", err)
	}
	return nil
}

// Close implements vectorstore.VectorStore.
func (c *Client) Close() error {
	return c.client.Close()
}

// toSearchResults converts scored points, preserving their order.
func toSearchResults(points []*qdrant.ScoredPoint) []vectorstore.SearchResult {
	results := make([]vectorstore.SearchResult, 0, len(points))
	for _, point := range points {
		if point == nil {
			continue
		}

		result := vectorstore.SearchResult{
			ID:      pointID(point.GetId()),
			Score:   point.GetScore(),
			Payload: make(map[string]any, len(point.GetPayload())),
		}
		for k, v := range point.GetPayload() {
			result.Payload[k] = extractValue(v)
		}

		results = append(results, result)
	}
	return results
}

func pointID(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	if uuid := id.GetUuid(); uuid != "" {
		return uuid
	}
	return strconv.FormatUint(id.GetNum(), 10)
}

// extractValue extracts a Go value from a Qdrant Value.
func extractValue(v *qdrant.Value) any {
	if v == nil {
		return nil
	}

	switch val := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return val.StringValue
	case *qdrant.Value_IntegerValue:
		return val.IntegerValue
	case *qdrant.Value_DoubleValue:
		return val.DoubleValue
	case *qdrant.Value_BoolValue:
		return val.BoolValue
	case *qdrant.Value_ListValue:
		items := val.ListValue.GetValues()
		list := make([]any, 0, len(items))
		for _, item := range items {
			list = append(list, extractValue(item))
		}
		return list
	case *qdrant.Value_StructValue:
		fields := val.StructValue.GetFields()
		m := make(map[string]any, len(fields))
		for k, item := range fields {
			m[k] = extractValue(item)
		}
		return m
	default:
		return nil
	}
}

// Compile-time check that Client implements VectorStore.
var _ vectorstore.VectorStore = (*Client)(nil)
