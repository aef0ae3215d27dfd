package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/vortex-gateway/vortex/internal/gwerrors"
	"github.com/vortex-gateway/vortex/internal/reqbuilder"
	"github.com/vortex-gateway/vortex/internal/router"
)

// Provider is the per-model LLM inference surface. Generate/HealthCheck are
// grounded on commbus/protocols.go's LLMProvider; StreamChunk is added
// because spec.md §4.8.5 requires token-by-token SSE-style forwarding,
// which a synchronous Generate(...) (string, error) can't express alone.
type Provider interface {
	Generate(ctx context.Context, model, prompt string, options map[string]any) (string, error)
	StreamChunk(ctx context.Context, model, prompt string, options map[string]any, onChunk func([]byte) error) error
	HealthCheck(ctx context.Context) (bool, error)
}

// ProviderResolver selects the upstream Provider for a model name,
// matching spec.md's "selects the upstream provider by model name".
type ProviderResolver func(model string) (Provider, bool)

type llmRequestBody struct {
	Messages []map[string]any `json:"messages"`
	Stream   bool              `json:"stream"`
}

// LLMRouter implements spec.md §4.8.5.
type LLMRouter struct {
	resolve ProviderResolver
}

func NewLLMRouter(resolve ProviderResolver) *LLMRouter {
	return &LLMRouter{resolve: resolve}
}

func (r *LLMRouter) Route(ctx context.Context, rc *router.Context, b *reqbuilder.Builder) (*Result, error) {
	model := rc.Params["model"]
	if model == "" {
		return nil, gwerrors.Validation("llm router: missing model in path")
	}
	apiKey := rc.Headers.Get("X-API-Key")
	if apiKey == "" {
		return nil, &gwerrors.GatewayError{Kind: gwerrors.KindValidationError, Message: "missing X-API-Key header", Status: http.StatusUnauthorized}
	}

	provider, ok := r.resolve(model)
	if !ok {
		return nil, gwerrors.Validation("llm router: unknown model " + model)
	}

	var reqBody llmRequestBody
	if rc.Raw.Body != nil {
		data, err := io.ReadAll(rc.Raw.Body)
		if err != nil {
			return nil, gwerrors.New(gwerrors.KindProtocolError, "llm_router", "reading request body", err)
		}
		_ = json.Unmarshal(data, &reqBody)
	}
	prompt := firstMessageContent(reqBody.Messages)
	options := map[string]any{"project_api_key": apiKey, "model_name": model}

	if rc.Asset.Stream == router.StreamChunked {
		return r.streamResult(ctx, provider, model, prompt, options), nil
	}

	out, err := provider.Generate(ctx, model, prompt, options)
	if err != nil {
		return nil, gwerrors.New(gwerrors.KindNetworkError, "llm_router", "upstream generation failed", err)
	}
	body, _ := json.Marshal(map[string]string{"text": out})
	return jsonResult(200, body, router.StreamBuffered), nil
}

// streamResult wires the provider's chunk callback to a pipe so the
// response writer can read chunks as they arrive, each emitted as one SSE
// event per spec.md's concrete scenario 4.
func (r *LLMRouter) streamResult(ctx context.Context, provider Provider, model, prompt string, options map[string]any) *Result {
	pr, pw := io.Pipe()
	go func() {
		err := provider.StreamChunk(ctx, model, prompt, options, func(chunk []byte) error {
			var buf bytes.Buffer
			buf.WriteString("data: ")
			buf.Write(chunk)
			buf.WriteString("\n\n")
			_, werr := pw.Write(buf.Bytes())
			return werr
		})
		pw.CloseWithError(err)
	}()

	h := make(http.Header)
	h.Set("Content-Type", "text/event-stream")
	return &Result{
		Status:        200,
		Headers:       h,
		Body:          pr,
		ContentLength: -1,
		Stream:        router.StreamChunked,
	}
}

func firstMessageContent(messages []map[string]any) string {
	for _, m := range messages {
		if content, ok := m["content"].(string); ok {
			return content
		}
	}
	return ""
}
