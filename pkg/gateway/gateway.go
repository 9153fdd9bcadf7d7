// Package gateway is the single seam through which every layer of the
// pipeline talks to a language model provider. It owns model selection,
// rate limiting, circuit breaking, schema validation, retries, and
// token/cost accounting, so no other package needs an HTTP client.
package gateway

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/pkg/errors"
	"github.com/sony/gobreaker"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// TaskClass is the kind of work a call is doing, used to pick a model.
type TaskClass string

const (
	TaskAnalytical TaskClass = "analytical"
	TaskComplex    TaskClass = "complex"
	TaskSimple     TaskClass = "simple"
)

// Tier mirrors domain.Tier without importing it, keeping the gateway
// independent of the pipeline's record types.
type Tier string

const (
	TierGold   Tier = "GOLD"
	TierSilver Tier = "SILVER"
	TierBronze Tier = "BRONZE"
)

// ModelPlan resolves (tier, task class) to a concrete model identifier.
type ModelPlan map[Tier]map[TaskClass]string

// DefaultModelPlan mirrors the teacher's generation/evaluation model
// split, extended across tiers: GOLD gets the most capable model for
// every task class, lower tiers step down to cheaper models.
func DefaultModelPlan() ModelPlan {
	return ModelPlan{
		TierGold: {
			TaskAnalytical: "claude-opus-4-1-20250805",
			TaskComplex:    "claude-opus-4-1-20250805",
			TaskSimple:     "claude-sonnet-4-5-20250929",
		},
		TierSilver: {
			TaskAnalytical: "claude-sonnet-4-5-20250929",
			TaskComplex:    "claude-sonnet-4-5-20250929",
			TaskSimple:     "claude-haiku-4-5-20251001",
		},
		TierBronze: {
			TaskAnalytical: "claude-haiku-4-5-20251001",
			TaskComplex:    "claude-haiku-4-5-20251001",
			TaskSimple:     "claude-haiku-4-5-20251001",
		},
	}
}

// Budget bounds one call's cost accounting; the gateway never enforces
// wall-clock here, that's the caller's context deadline.
type Budget struct {
	MaxOutputTokens int
}

// CallResult is what a successful Call returns.
type CallResult struct {
	Raw          json.RawMessage
	InputTokens  int
	OutputTokens int
	CostUSD      float64
	Model        string
	Attempts     int
}

// perProviderRate is the default token bucket: 50 requests/minute with a
// burst of 5, matching the conservative shared-tier limits providers
// publish for the model classes this gateway targets.
const (
	defaultRatePerSecond = 50.0 / 60.0
	defaultBurst         = 5
)

// pricePerMTok is a rough accounting table (USD per million tokens),
// input/output, keyed by model prefix. Unknown models fall back to the
// sonnet rate so cost accounting never panics on a new model string.
var pricePerMTok = map[string][2]float64{
	"claude-opus-4-1":   {15.00, 75.00},
	"claude-sonnet-4-5": {3.00, 15.00},
	"claude-sonnet-4":   {3.00, 15.00},
	"claude-haiku-4-5":  {0.80, 4.00},
}

// Gateway is the process-wide coordinator for one provider's limits.
type Gateway struct {
	client  anthropic.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	plan    ModelPlan
	log     *zap.Logger

	mu      sync.Mutex
	spentIn int
	spentOut int
}

// Option configures a Gateway at construction.
type Option func(*Gateway)

// WithModelPlan overrides the default tier/task-class model selection.
func WithModelPlan(plan ModelPlan) Option {
	return func(g *Gateway) { g.plan = plan }
}

// WithRateLimit overrides the default per-second/burst token bucket.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(g *Gateway) { g.limiter = rate.NewLimiter(rate.Limit(perSecond), burst) }
}

// WithLogger overrides the default no-op logger.
func WithLogger(log *zap.Logger) Option {
	return func(g *Gateway) { g.log = log }
}

// Logger returns the gateway's logger, for callers (such as the
// pipeline's event sink) that want to share it rather than build their
// own.
func (g *Gateway) Logger() *zap.Logger {
	return g.log
}

// New builds a Gateway backed by the Anthropic Messages API, wrapped in a
// rate limiter and a circuit breaker with a 5-consecutive-failure trip
// and a 30-second cool-down, per the handling policy these wrap.
func New(apiKey string, opts ...Option) (*Gateway, error) {
	if apiKey == "" {
		return nil, errors.New("gateway: api key is required")
	}

	g := &Gateway{
		client:  anthropic.NewClient(option.WithAPIKey(apiKey)),
		limiter: rate.NewLimiter(rate.Limit(defaultRatePerSecond), defaultBurst),
		plan:    DefaultModelPlan(),
		log:     zap.NewNop(),
	}

	g.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "anthropic-messages",
		MaxRequests: 1,
		Interval:    0,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			g.log.Warn("circuit breaker state change",
				zap.String("breaker", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})

	for _, opt := range opts {
		opt(g)
	}

	return g, nil
}

// ModelFor resolves the model identifier for a (tier, task class) pair.
func (g *Gateway) ModelFor(tier Tier, task TaskClass) string {
	if byTask, ok := g.plan[tier]; ok {
		if model, ok := byTask[task]; ok {
			return model
		}
	}
	return "claude-sonnet-4-5-20250929"
}

// Call sends prompt to the model resolved for (tier, task), validates the
// response against schema (a pointer to the struct the caller wants JSON
// decoded into), and retries once on a schema mismatch per the handling
// policy. schema may be nil to skip validation (free-text responses).
func (g *Gateway) Call(ctx context.Context, tier Tier, task TaskClass, prompt string, schema any, budget Budget) (CallResult, error) {
	model := g.ModelFor(tier, task)
	maxTokens := budget.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	var result CallResult
	var lastErr error

	for attempt := 1; attempt <= 2; attempt++ {
		result.Attempts = attempt

		if err := g.limiter.Wait(ctx); err != nil {
			return result, Classify(KindTransient, err, "rate limiter wait")
		}

		raw, inTok, outTok, err := g.send(ctx, model, prompt, maxTokens)
		if err != nil {
			kind := classifyTransportError(err)
			lastErr = Classify(kind, err, "model call failed")
			if Retryable(kind) && attempt == 1 {
				continue
			}
			return result, lastErr
		}

		g.accrue(model, inTok, outTok)
		result.InputTokens = inTok
		result.OutputTokens = outTok
		result.Model = model
		result.CostUSD = costOf(model, inTok, outTok)

		cleaned := stripMarkdownFences(raw)
		if schema == nil {
			result.Raw = json.RawMessage(cleaned)
			return result, nil
		}

		if !gjson.Valid(cleaned) {
			lastErr = Classify(KindSchemaMismatch, errors.Errorf("not valid JSON: %s", truncate(cleaned, 200)), "schema validation")
			if attempt == 1 {
				prompt = prompt + "\n\nYour previous reply was not valid JSON. Reply with ONLY the JSON object, no commentary, no code fences."
				continue
			}
			return result, lastErr
		}

		if err := json.Unmarshal([]byte(cleaned), schema); err != nil {
			g.log.Debug("schema unmarshal failed", zap.String("model", model), zap.String("raw", redactLongFields(cleaned, 200)))
			lastErr = Classify(KindSchemaMismatch, err, "schema unmarshal")
			if attempt == 1 {
				prompt = prompt + "\n\nYour previous reply did not match the required JSON shape. Reply with ONLY the JSON object, no commentary, no code fences."
				continue
			}
			return result, lastErr
		}

		result.Raw = json.RawMessage(cleaned)
		return result, nil
	}

	return result, lastErr
}

// send makes one call to the provider through the circuit breaker.
func (g *Gateway) send(ctx context.Context, model, prompt string, maxTokens int) (text string, inTok, outTok int, err error) {
	v, breakerErr := g.breaker.Execute(func() (interface{}, error) {
		msg, callErr := g.client.Messages.New(ctx, anthropic.MessageNewParams{
			Model:     anthropic.Model(model),
			MaxTokens: int64(maxTokens),
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
			},
		})
		if callErr != nil {
			return nil, callErr
		}
		return msg, nil
	})

	if breakerErr != nil {
		if errors.Is(breakerErr, gobreaker.ErrOpenState) || errors.Is(breakerErr, gobreaker.ErrTooManyRequests) {
			return "", 0, 0, errors.Wrap(breakerErr, "provider circuit open")
		}
		return "", 0, 0, breakerErr
	}

	msg, ok := v.(*anthropic.Message)
	if !ok || len(msg.Content) == 0 {
		return "", 0, 0, errors.New("empty response from provider")
	}

	inTok = int(msg.Usage.InputTokens)
	outTok = int(msg.Usage.OutputTokens)
	text = msg.Content[0].Text
	if text == "" {
		return "", inTok, outTok, errors.New("no text content in provider response")
	}

	return text, inTok, outTok, nil
}

func (g *Gateway) accrue(model string, inTok, outTok int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.spentIn += inTok
	g.spentOut += outTok
}

// Spent returns cumulative input/output tokens billed through this
// gateway instance since construction.
func (g *Gateway) Spent() (inTok, outTok int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.spentIn, g.spentOut
}

func costOf(model string, inTok, outTok int) float64 {
	rates, ok := pricePerMTok[longestPrefixMatch(model)]
	if !ok {
		rates = pricePerMTok["claude-sonnet-4-5"]
	}
	return float64(inTok)/1e6*rates[0] + float64(outTok)/1e6*rates[1]
}

func longestPrefixMatch(model string) string {
	best := ""
	for prefix := range pricePerMTok {
		if strings.HasPrefix(model, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	return best
}

func classifyTransportError(err error) ErrorKind {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "circuit open"):
		return KindProviderDown
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate limit"):
		return KindRateLimited
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline") || strings.Contains(msg, "connection reset"):
		return KindTransient
	case strings.Contains(msg, "500") || strings.Contains(msg, "502") || strings.Contains(msg, "503"):
		return KindProviderDown
	default:
		return KindTransient
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// redactLongFields rewrites every top-level string value in raw longer
// than maxLen to a truncated placeholder, so a debug log of a malformed
// model response doesn't dump the full achievement/posting text it was
// built from into the log stream. Falls back to a plain truncate if raw
// isn't valid JSON (the schema-mismatch case it's used for already
// guarantees validity, but invalid-JSON callers use this too).
func redactLongFields(raw string, maxLen int) string {
	if !gjson.Valid(raw) {
		return truncate(raw, maxLen)
	}

	out := raw
	gjson.Parse(raw).ForEach(func(key, value gjson.Result) bool {
		if value.Type == gjson.String && len(value.Str) > maxLen {
			if patched, err := sjson.Set(out, key.String(), truncate(value.Str, maxLen)); err == nil {
				out = patched
			}
		}
		return true
	})
	return out
}

// stripMarkdownFences removes code fences and prefatory commentary Claude
// sometimes wraps JSON responses in.
func stripMarkdownFences(text string) string {
	cleaned := strings.TrimSpace(text)

	if idx := strings.Index(cleaned, "```json"); idx >= 0 {
		cleaned = cleaned[idx+len("```json"):]
	} else if idx := strings.Index(cleaned, "```"); idx >= 0 && idx < strings.IndexAny(cleaned, "{[") {
		cleaned = cleaned[idx+3:]
	} else if idx := strings.IndexAny(cleaned, "{["); idx > 0 {
		cleaned = cleaned[idx:]
	}

	if end := strings.LastIndex(cleaned, "```"); end >= 0 {
		cleaned = cleaned[:end]
	}

	return strings.TrimSpace(cleaned)
}
