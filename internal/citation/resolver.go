// ABOUTME: Looks up the passages behind a citation in the Qdrant knowledge-base collection
// ABOUTME: Matches points by the "source" filename and "chunk_index" payload written at ingestion

package citation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/qdrant/go-client/qdrant"

	"github.com/2389/triage-chat/internal/chat"
)

// Passage is one chunk of a source document.
type Passage struct {
	Filename string
	Chunk    int
	Content  string
	PointID  string
}

// Resolver fetches the text behind a reference.
type Resolver interface {
	Resolve(ctx context.Context, ref chat.Reference) ([]Passage, error)
	Close() error
}

// QdrantConfig configures a QdrantResolver.
type QdrantConfig struct {
	URL        string // host[:port], with optional http(s) scheme
	APIKey     string
	Collection string
}

// QdrantResolver implements Resolver against a Qdrant collection.
type QdrantResolver struct {
	client     *qdrant.Client
	collection string
	logger     *slog.Logger
}

// NewQdrantResolver connects to Qdrant over gRPC.
func NewQdrantResolver(cfg QdrantConfig, logger *slog.Logger) (*QdrantResolver, error) {
	if cfg.URL == "" {
		return nil, errors.New("qdrant url is required")
	}
	if cfg.Collection == "" {
		return nil, errors.New("qdrant collection is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	raw := cfg.URL
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing qdrant url: %w", err)
	}
	port := 6334
	if u.Port() != "" {
		port, err = strconv.Atoi(u.Port())
		if err != nil {
			return nil, fmt.Errorf("invalid qdrant port: %w", err)
		}
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   u.Hostname(),
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: u.Scheme == "https",
	})
	if err != nil {
		return nil, fmt.Errorf("creating qdrant client: %w", err)
	}

	return &QdrantResolver{
		client:     client,
		collection: cfg.Collection,
		logger:     logger.With("component", "citation"),
	}, nil
}

// Resolve returns the passages for every chunk of ref, in chunk order.
// Chunks with no stored point are skipped.
func (r *QdrantResolver) Resolve(ctx context.Context, ref chat.Reference) ([]Passage, error) {
	var out []Passage
	for _, chunk := range ref.Chunks {
		limit := uint32(4)
		points, err := r.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: r.collection,
			Filter:         chunkFilter(ref.Filename, chunk),
			Limit:          &limit,
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return nil, fmt.Errorf("scrolling %s chunk %d: %w", ref.Filename, chunk, err)
		}
		if len(points) == 0 {
			r.logger.Debug("no passage for citation", "filename", ref.Filename, "chunk", chunk)
			continue
		}
		for _, p := range points {
			out = append(out, Passage{
				Filename: ref.Filename,
				Chunk:    chunk,
				Content:  payloadText(p.GetPayload()),
				PointID:  pointID(p.GetId()),
			})
		}
	}
	return out, nil
}

// Close releases the gRPC connection.
func (r *QdrantResolver) Close() error {
	return r.client.Close()
}

func chunkFilter(filename string, chunk int) *qdrant.Filter {
	return &qdrant.Filter{
		Must: []*qdrant.Condition{
			{
				ConditionOneOf: &qdrant.Condition_Field{
					Field: &qdrant.FieldCondition{
						Key:   "source",
						Match: &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: filename}},
					},
				},
			},
			{
				ConditionOneOf: &qdrant.Condition_Field{
					Field: &qdrant.FieldCondition{
						Key:   "chunk_index",
						Match: &qdrant.Match{MatchValue: &qdrant.Match_Integer{Integer: int64(chunk)}},
					},
				},
			},
		},
	}
}

// payloadText picks the passage body. Ingestion pipelines disagree on the
// field name.
func payloadText(payload map[string]*qdrant.Value) string {
	for _, key := range []string{"content", "text", "document", "page_content"} {
		if v, ok := payload[key]; ok {
			if s := v.GetStringValue(); s != "" {
				return s
			}
		}
	}
	return ""
}

func pointID(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	if u := id.GetUuid(); u != "" {
		return u
	}
	return strconv.FormatUint(id.GetNum(), 10)
}
