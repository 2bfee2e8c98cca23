package imagegen

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/chenjf2025/BookQuoteApp/internal/metrics"
)

type fakeCreator struct {
	resp openai.ImageResponse
	err  error
	req  openai.ImageRequest
}

func (f *fakeCreator) CreateImage(_ context.Context, req openai.ImageRequest) (openai.ImageResponse, error) {
	f.req = req
	return f.resp, f.err
}

func TestGenerate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		apiKey     string
		api        *fakeCreator
		want       string
		wantReason string
	}{
		{
			name:   "success",
			apiKey: "k",
			api:    &fakeCreator{resp: openai.ImageResponse{Data: []openai.ImageResponseDataInner{{URL: "https://img.example/1.png"}}}},
			want:   "https://img.example/1.png",
		},
		{"api error", "k", &fakeCreator{err: errors.New("quota")}, PlaceholderURL, ReasonRequest},
		{"empty data", "k", &fakeCreator{}, PlaceholderURL, ReasonEmpty},
		{"not configured", "", &fakeCreator{}, PlaceholderURL, ReasonNotConfigured},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := metrics.NewInMemory()
			c := NewWithAPI(tt.api, Config{APIKey: tt.apiKey, Model: "cogview-3", Metrics: rec})

			got := c.Generate(context.Background(), "晨光里的一叶扁舟")
			if got.Value != tt.want || got.Reason != tt.wantReason {
				t.Errorf("Generate() = %+v, want %q reason %q", got, tt.want, tt.wantReason)
			}
			if tt.wantReason == "" && (tt.api.req.Size != "1024x1024" || tt.api.req.Model != "cogview-3") {
				t.Errorf("request = %+v", tt.api.req)
			}
			if (tt.wantReason != "") != (rec.Snapshot().FallbackImage == 1) {
				t.Errorf("FallbackImage = %d", rec.Snapshot().FallbackImage)
			}
		})
	}
}

func TestNew_ImagesEndpoint(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/images/generations" {
			http.NotFound(w, r)
			return
		}
		mu.Lock()
		_ = json.NewDecoder(r.Body).Decode(&got)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"created":1,"data":[{"url":"https://cdn.example/a.png"}]}`))
	}))
	defer srv.Close()

	c := New(Config{APIKey: "k", BaseURL: srv.URL, Model: "cogview-3"})
	res := c.Generate(context.Background(), "prompt")
	if res.Degraded || res.Value != "https://cdn.example/a.png" {
		t.Fatalf("Generate() = %+v", res)
	}
	mu.Lock()
	defer mu.Unlock()
	if got["model"] != "cogview-3" || got["prompt"] != "prompt" || got["size"] != "1024x1024" {
		t.Errorf("request body = %v", got)
	}
}
