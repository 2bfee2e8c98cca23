package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	openai "github.com/sashabaranov/go-openai"

	"github.com/chenjf2025/BookQuoteApp/internal/metrics"
)

type fakeCompleter struct {
	mu      sync.Mutex
	reply   string
	err     error
	choices int
	reqs    []openai.ChatCompletionRequest
}

func (f *fakeCompleter) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}
	resp := openai.ChatCompletionResponse{}
	n := 1
	if f.choices < 0 {
		n = 0
	}
	for i := 0; i < n; i++ {
		resp.Choices = append(resp.Choices, openai.ChatCompletionChoice{
			Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: f.reply},
		})
	}
	return resp, nil
}

func newTestClient(t *testing.T, api ChatCompleter, apiKey string) (*Client, *metrics.InMemoryRecorder) {
	t.Helper()
	rec := metrics.NewInMemory()
	c, err := NewWithAPI(api, Config{APIKey: apiKey, Model: "deepseek-chat", Metrics: rec})
	if err != nil {
		t.Fatalf("NewWithAPI: %v", err)
	}
	return c, rec
}

func TestLoadPrompts(t *testing.T) {
	t.Parallel()

	p, err := LoadPrompts()
	if err != nil {
		t.Fatalf("LoadPrompts: %v", err)
	}

	tests := []struct {
		name        string
		prompt      Prompt
		system      string
		temperature float32
		maxTokens   int
	}{
		{"quotes", p.Quotes, "你是一个专业的图书拆解专家和文案大师。", 0.7, 1500},
		{"core thought", p.CoreThought, "你是一个专业的AI生图提示词设计师。", 0.7, 200},
		{"outline", p.Outline, "你是一个资深的图书讲解人和逻辑架构师。", 0.6, 2000},
	}
	for _, tt := range tests {
		if tt.prompt.System != tt.system || tt.prompt.Temperature != tt.temperature || tt.prompt.MaxTokens != tt.maxTokens {
			t.Errorf("%s prompt = %q %v %d", tt.name, tt.prompt.System, tt.prompt.Temperature, tt.prompt.MaxTokens)
		}
	}

	user, err := p.Outline.Render("活着", "CTX-MARKER")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(user, "《活着》") || !strings.Contains(user, "CTX-MARKER") {
		t.Errorf("rendered prompt missing title or context: %s", user)
	}
}

func TestParsePrompts_Invalid(t *testing.T) {
	t.Parallel()

	if _, err := ParsePrompts([]byte("quotes: [unclosed")); err == nil {
		t.Error("expected YAML error")
	}
	if _, err := ParsePrompts([]byte("quotes:\n  user: hi\n")); err == nil {
		t.Error("expected error for missing prompts and max_tokens")
	}
}

func TestExtractQuotes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		reply      string
		err        error
		want       []string
		wantReason string
	}{
		{"plain json", `{"quotes":["a","b"]}`, nil, []string{"a", "b"}, ""},
		{"json fence", "```json\n{\"quotes\":[\" a \",\"\",\"b\"]}\n```", nil, []string{"a", "b"}, ""},
		{"capped at ten", `{"quotes":["1","2","3","4","5","6","7","8","9","10","11"]}`, nil,
			[]string{"1", "2", "3", "4", "5", "6", "7", "8", "9", "10"}, ""},
		{"not json", "以下是金句：……", nil, FallbackQuotes("活着"), ReasonParse},
		{"empty list", `{"quotes":[]}`, nil, FallbackQuotes("活着"), ReasonParse},
		{"api error", "", errors.New("502"), FallbackQuotes("活着"), ReasonRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			api := &fakeCompleter{reply: tt.reply, err: tt.err}
			c, rec := newTestClient(t, api, "sk-test")

			got := c.ExtractQuotes(context.Background(), "活着", "ctx")
			if diff := cmp.Diff(tt.want, got.Value); diff != "" {
				t.Errorf("quotes mismatch (-want +got):\n%s", diff)
			}
			if got.Reason != tt.wantReason || got.Degraded != (tt.wantReason != "") {
				t.Errorf("degraded=%v reason=%q, want %q", got.Degraded, got.Reason, tt.wantReason)
			}
			if tt.wantReason != "" && rec.Snapshot().FallbackLLM != 1 {
				t.Error("fallback was not counted")
			}

			req := api.reqs[0]
			if req.Temperature != 0.7 || req.MaxTokens != 1500 || req.Model != "deepseek-chat" {
				t.Errorf("request settings = %v %d %q", req.Temperature, req.MaxTokens, req.Model)
			}
		})
	}
}

func TestFallbackQuotes(t *testing.T) {
	t.Parallel()

	q := FallbackQuotes("三体")
	if len(q) != 10 || q[0] != "关于《三体》的精彩分享（默认金句 1）" || q[9] != "关于《三体》的精彩分享（默认金句 10）" {
		t.Errorf("FallbackQuotes() = %v", q)
	}
}

func TestComposeCoreThought(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t, &fakeCompleter{reply: "  晨光里的一叶扁舟。 "}, "sk-test")
	if got := c.ComposeCoreThought(context.Background(), "t", "c"); got.Degraded || got.Value != "晨光里的一叶扁舟。" {
		t.Errorf("ComposeCoreThought() = %+v", got)
	}

	c, _ = newTestClient(t, &fakeCompleter{choices: -1}, "sk-test")
	if got := c.ComposeCoreThought(context.Background(), "t", "c"); !got.Degraded || got.Value != CoreThoughtFallback || got.Reason != ReasonEmpty {
		t.Errorf("ComposeCoreThought() with no choices = %+v", got)
	}
}

func TestComposeOutline(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		reply string
		want  string
	}{
		{"plain", "# 《活着》\n- 作者", "# 《活着》\n- 作者"},
		{"markdown fence", "```markdown\n# 《活着》\n- 作者\n```", "# 《活着》\n- 作者"},
		{"bare fence", "```\n# 《活着》\n```", "# 《活着》"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c, _ := newTestClient(t, &fakeCompleter{reply: tt.reply}, "sk-test")
			got := c.ComposeOutline(context.Background(), "活着", "c")
			if got.Degraded || got.Value != tt.want {
				t.Errorf("ComposeOutline() = %+v, want %q", got, tt.want)
			}
		})
	}
}

func TestNotConfigured(t *testing.T) {
	t.Parallel()

	api := &fakeCompleter{reply: "unused"}
	c, _ := newTestClient(t, api, "")

	out := c.ComposeOutline(context.Background(), "活着", "c")
	if !out.Degraded || out.Reason != ReasonNotConfigured {
		t.Fatalf("ComposeOutline() = %+v", out)
	}
	if !strings.HasPrefix(out.Value, "# 《活着》\n- 生成思维导图失败\n  - 错误信息: ") {
		t.Errorf("fallback outline = %q", out.Value)
	}
	if len(api.reqs) != 0 {
		t.Error("unconfigured client must not call the API")
	}
}

func TestNew_OpenAICompatibleServer(t *testing.T) {
	t.Parallel()

	var gotAuth string
	var gotBody openai.ChatCompletionRequest
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		mu.Lock()
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"{\"quotes\":[\"q1\"]}"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	c, err := New(Config{APIKey: "sk-live", BaseURL: srv.URL + "/", Model: "deepseek-chat", RequestsPerSecond: 100})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	got := c.ExtractQuotes(context.Background(), "活着", "ctx")
	if got.Degraded || len(got.Value) != 1 || got.Value[0] != "q1" {
		t.Fatalf("ExtractQuotes() = %+v", got)
	}

	mu.Lock()
	defer mu.Unlock()
	if gotAuth != "Bearer sk-live" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if len(gotBody.Messages) != 2 || gotBody.Messages[0].Role != openai.ChatMessageRoleSystem {
		t.Errorf("messages = %+v", gotBody.Messages)
	}
}
