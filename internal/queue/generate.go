package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/zaldivarmena/mindy/internal/util"
	"github.com/zaldivarmena/mindy/pkg/ai"
	"github.com/zaldivarmena/mindy/pkg/logger"
	"github.com/zaldivarmena/mindy/pkg/mindmap"
	"github.com/zaldivarmena/mindy/pkg/store"

	"github.com/sony/gobreaker"
)

// ErrInvalidMessage marks messages that can never succeed and should skip
// the retry queue.
var ErrInvalidMessage = errors.New("invalid queue message")

// GenerateStudyContentMsg asks the worker to fill one study content row.
type GenerateStudyContentMsg struct {
	RecordID  int64  `json:"record_id"`
	CourseID  string `json:"course_id"`
	StudyType string `json:"study_type"`
	Prompt    string `json:"prompt"`
}

// Generation outcomes reported to the Recorder.
const (
	OutcomeOK      = "ok"
	OutcomeDefault = "default"
	OutcomeError   = "error"
)

// Recorder receives per-job generation metrics.
type Recorder interface {
	ObserveGeneration(studyType, outcome string, d time.Duration)
}

// Generator turns queued prompts into stored study content.
type Generator struct {
	store    store.StudyContentStorage
	client   ai.ContentAIClient
	breaker  *gobreaker.CircuitBreaker
	recorder Recorder
}

type GeneratorOption func(*Generator)

// WithBreaker routes model calls through cb.
func WithBreaker(cb *gobreaker.CircuitBreaker) GeneratorOption {
	return func(g *Generator) {
		g.breaker = cb
	}
}

func WithRecorder(r Recorder) GeneratorOption {
	return func(g *Generator) {
		g.recorder = r
	}
}

func NewGenerator(st store.StudyContentStorage, client ai.ContentAIClient, opts ...GeneratorOption) *Generator {
	g := &Generator{store: st, client: client}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(g)
	}
	if g.breaker == nil {
		g.breaker = NewAIBreaker("ai", nil)
	}
	return g
}

// NewAIBreaker opens after five consecutive model failures and tries again
// after a minute. onChange may be nil.
func NewAIBreaker(name string, onChange func(name string, from, to gobreaker.State)) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    2 * time.Minute,
		Timeout:     time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			// Shutdown is not the model's fault.
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("[Queue] Circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
			if onChange != nil {
				onChange(name, from, to)
			}
		},
	})
}

// ProcessGenerateMessage handles one study_content_queue delivery.
func (g *Generator) ProcessGenerateMessage(ctx context.Context, body []byte) error {
	msg, err := decodeGenerateMsg(body)
	if err != nil {
		return err
	}
	start := time.Now()
	logger.Info("[Queue] Generating study content", "record", msg.RecordID, "course", msg.CourseID, "type", msg.StudyType)

	studyType := ai.StudyType(msg.StudyType)
	result, err := g.breaker.Execute(func() (any, error) {
		if studyType == ai.StudyTypeMindMap {
			return g.generateMindMap(ctx, msg)
		}
		return g.client.GenerateCompletion(ctx, msg.Prompt)
	})
	if err != nil {
		g.observe(msg.StudyType, OutcomeError, start)
		return fmt.Errorf("generate %s for record %d: %w", msg.StudyType, msg.RecordID, err)
	}

	content, substituted := BuildStudyContent(studyType, result.(string))

	err = util.RetryErrWithContext(ctx, 3, time.Second, func(ctx context.Context) error {
		return g.store.CompleteStudyContent(ctx, msg.RecordID, content)
	})
	if err != nil {
		g.observe(msg.StudyType, OutcomeError, start)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: record %d no longer exists", ErrInvalidMessage, msg.RecordID)
		}
		return fmt.Errorf("store study content %d: %w", msg.RecordID, err)
	}

	outcome := OutcomeOK
	if substituted {
		outcome = OutcomeDefault
		logger.Warn("[Queue] Model output unusable, stored default content", "record", msg.RecordID, "type", msg.StudyType)
	}
	g.observe(msg.StudyType, outcome, start)
	logger.Info("[Queue] Study content ready", "record", msg.RecordID, "bytes", len(content), "duration", time.Since(start))
	return nil
}

// generateMindMap asks for schema-constrained output and falls back to a
// plain completion when the backend cannot produce it.
func (g *Generator) generateMindMap(ctx context.Context, msg GenerateStudyContentMsg) (string, error) {
	var doc ai.MindMapDocument
	err := g.client.GenerateCompletionWithFormat(ctx, "mind_map", "Hierarchical mind map of the course material", msg.Prompt, &doc)
	if err == nil {
		var out []byte
		if out, err = json.Marshal(doc); err == nil {
			return string(out), nil
		}
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", ctxErr
	}
	logger.Warn("[Queue] Structured mind map failed, retrying as plain completion", "record", msg.RecordID, "err", err)
	return g.client.GenerateCompletion(ctx, msg.Prompt)
}

// FailMessage marks the record behind a dead-lettered message as failed.
// Only the record id is required, so messages rejected for other fields
// still settle their row.
func (g *Generator) FailMessage(ctx context.Context, body []byte, reason error) error {
	var msg GenerateStudyContentMsg
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if msg.RecordID <= 0 {
		return fmt.Errorf("%w: record id is required", ErrInvalidMessage)
	}
	return g.store.FailStudyContent(ctx, msg.RecordID, reason.Error())
}

func (g *Generator) observe(studyType, outcome string, start time.Time) {
	if g.recorder != nil {
		g.recorder.ObserveGeneration(studyType, outcome, time.Since(start))
	}
}

func decodeGenerateMsg(body []byte) (GenerateStudyContentMsg, error) {
	var msg GenerateStudyContentMsg
	if err := json.Unmarshal(body, &msg); err != nil {
		return msg, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if msg.RecordID <= 0 || msg.Prompt == "" {
		return msg, fmt.Errorf("%w: record id and prompt are required", ErrInvalidMessage)
	}
	studyType, err := ai.ParseStudyType(msg.StudyType)
	if err != nil {
		return msg, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	msg.StudyType = string(studyType)
	return msg, nil
}

// defaultMindMap replaces model output that holds no usable mind map.
var defaultMindMap = []byte(`{"nodes":[{"id":"1","label":"Main Topic","type":"main"},{"id":"2","label":"Subtopic 1","type":"primary"}],"connections":[{"source":"1","target":"2"}]}`)

// BuildStudyContent converts raw model output into the JSON stored for
// studyType. The second result reports whether default content was
// substituted for unusable output.
func BuildStudyContent(studyType ai.StudyType, raw string) ([]byte, bool) {
	doc, err := parseModelJSON(raw)
	if err == nil && studyType == ai.StudyTypeMindMap && !hasMindMap(doc) {
		err = errors.New("no mind map in output")
	}

	var out []byte
	if err == nil {
		out, err = json.Marshal(doc)
	}
	if err == nil {
		return out, false
	}

	if studyType == ai.StudyTypeMindMap {
		return defaultMindMap, true
	}
	out, _ = json.Marshal(map[string]string{
		"error":      "Failed to parse AI response",
		"rawContent": raw,
	})
	return out, true
}

// parseModelJSON strips code fences and decodes, peeling JSON that was
// encoded as a string.
func parseModelJSON(raw string) (any, error) {
	text := raw
	for range 3 {
		var doc any
		if err := ai.UnmarshalFlexible(ai.StripCodeFences(text), &doc); err != nil {
			return nil, err
		}
		s, ok := doc.(string)
		if !ok {
			return doc, nil
		}
		text = s
	}
	return nil, errors.New("model output nested too deeply")
}

// hasMindMap reports whether doc normalizes to a graph built from real
// nodes or a flat topic.
func hasMindMap(doc any) bool {
	if doc == nil {
		return false
	}
	_, report := mindmap.NewNormalizer().Normalize(doc)
	return !report.Fallback && report.Adapter != mindmap.AdapterEmpty
}
