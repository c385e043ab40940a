package vectorstore

import (
	"testing"

	"github.com/qdrant/go-client/qdrant"
)

func TestQdrantConfig(t *testing.T) {
	tests := []struct {
		name     string
		urlStr   string
		apiKey   string
		wantErr  bool
		wantHost string
		wantPort int
		wantTLS  bool
	}{
		{
			name:     "valid URL",
			urlStr:   "http://localhost:6333",
			wantHost: "localhost",
			wantPort: 6334, // gRPC port is HTTP port + 1
		},
		{
			name:     "URL with custom port",
			urlStr:   "http://qdrant:9000",
			wantHost: "qdrant",
			wantPort: 9001,
		},
		{
			name:     "URL without port",
			urlStr:   "http://localhost",
			wantHost: "localhost",
			wantPort: 6334,
		},
		{
			name:     "URL without hostname",
			urlStr:   "http://:6333",
			wantHost: "localhost",
			wantPort: 6334,
		},
		{
			name:     "https enables TLS",
			urlStr:   "https://cluster.cloud.qdrant.io:6333",
			apiKey:   "secret",
			wantHost: "cluster.cloud.qdrant.io",
			wantPort: 6334,
			wantTLS:  true,
		},
		{
			name:    "invalid URL",
			urlStr:  "://invalid",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := qdrantConfig(tt.urlStr, tt.apiKey)
			if tt.wantErr {
				if err == nil {
					t.Error("qdrantConfig() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("qdrantConfig() error = %v", err)
			}
			if cfg.Host != tt.wantHost {
				t.Errorf("Host = %v, want %v", cfg.Host, tt.wantHost)
			}
			if cfg.Port != tt.wantPort {
				t.Errorf("Port = %v, want %v", cfg.Port, tt.wantPort)
			}
			if cfg.UseTLS != tt.wantTLS {
				t.Errorf("UseTLS = %v, want %v", cfg.UseTLS, tt.wantTLS)
			}
			if cfg.APIKey != tt.apiKey {
				t.Errorf("APIKey = %v, want %v", cfg.APIKey, tt.apiKey)
			}
		})
	}
}

func TestNewQdrantStore_InvalidURL(t *testing.T) {
	_, err := NewQdrantStore("://invalid", "")
	if err == nil {
		t.Error("NewQdrantStore() with invalid URL should return error")
	}
}

func TestQdrantFilter(t *testing.T) {
	if f := qdrantFilter(nil); f != nil {
		t.Errorf("qdrantFilter(nil) = %v, want nil", f)
	}

	f := qdrantFilter(map[string]any{
		"file_id":     "abc",
		"chunk_index": 2,
		"archived":    false,
	})
	if f == nil {
		t.Fatal("qdrantFilter() = nil, want filter")
	}
	if len(f.Must) != 3 {
		t.Fatalf("len(Must) = %d, want 3", len(f.Must))
	}

	// Keys are sorted: archived, chunk_index, file_id.
	wantKeys := []string{"archived", "chunk_index", "file_id"}
	for i, cond := range f.Must {
		field := cond.GetField()
		if field == nil {
			t.Fatalf("condition %d is not a field condition", i)
		}
		if field.Key != wantKeys[i] {
			t.Errorf("condition %d key = %v, want %v", i, field.Key, wantKeys[i])
		}
	}

	if got := f.Must[1].GetField().GetMatch().GetInteger(); got != 2 {
		t.Errorf("chunk_index match = %v, want 2", got)
	}
	if got := f.Must[2].GetField().GetMatch().GetKeyword(); got != "abc" {
		t.Errorf("file_id match = %v, want abc", got)
	}
}

func TestConvertPayloadToMap(t *testing.T) {
	payload := qdrant.NewValueMap(map[string]any{
		"text":        "hello",
		"chunk_index": 3,
		"score":       0.5,
		"ok":          true,
		"tags":        []any{"a", "b"},
		"nested":      map[string]any{"k": "v"},
	})

	got := convertPayloadToMap(payload)

	if got["text"] != "hello" {
		t.Errorf("text = %v, want hello", got["text"])
	}
	if got["chunk_index"] != int64(3) {
		t.Errorf("chunk_index = %v (%T), want int64(3)", got["chunk_index"], got["chunk_index"])
	}
	if got["score"] != 0.5 {
		t.Errorf("score = %v, want 0.5", got["score"])
	}
	if got["ok"] != true {
		t.Errorf("ok = %v, want true", got["ok"])
	}
	if tags, ok := got["tags"].([]any); !ok || len(tags) != 2 || tags[0] != "a" {
		t.Errorf("tags = %v, want [a b]", got["tags"])
	}
	if nested, ok := got["nested"].(map[string]any); !ok || nested["k"] != "v" {
		t.Errorf("nested = %v, want map[k:v]", got["nested"])
	}
}

func TestCollectionVectorSize(t *testing.T) {
	if got := collectionVectorSize(nil); got != 0 {
		t.Errorf("collectionVectorSize(nil) = %d, want 0", got)
	}

	info := &qdrant.CollectionInfo{
		Config: &qdrant.CollectionConfig{
			Params: &qdrant.CollectionParams{
				VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
					Size:     384,
					Distance: qdrant.Distance_Cosine,
				}),
			},
		},
	}
	if got := collectionVectorSize(info); got != 384 {
		t.Errorf("collectionVectorSize() = %d, want 384", got)
	}
}
