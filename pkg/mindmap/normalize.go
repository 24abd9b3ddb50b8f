package mindmap

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// ErrMalformedPayload is the reason recorded when a payload cannot be decoded
// or does not match any known shape. It is never returned by Normalize.
var ErrMalformedPayload = errors.New("malformed mind map payload")

const (
	// maxUnwrapDepth bounds how many array/mindmap/string wrappers are peeled.
	maxUnwrapDepth = 8

	AdapterFallback = "fallback"
)

// NormalizeReport describes how a payload was turned into a graph.
type NormalizeReport struct {
	Adapter      string            `json:"adapter"`
	Fallback     bool              `json:"fallback"`
	Reason       string            `json:"reason,omitempty"`
	DroppedEdges []Edge            `json:"dropped_edges,omitempty"`
	RenamedNodes map[string]string `json:"renamed_nodes,omitempty"`
}

func (r *NormalizeReport) rename(from, to string) {
	if r.RenamedNodes == nil {
		r.RenamedNodes = make(map[string]string)
	}
	r.RenamedNodes[to] = from
}

// Normalizer converts raw mind map payloads into canonical graphs by trying
// its adapters in priority order.
type Normalizer struct {
	adapters []Adapter
	repair   bool
}

// NormalizerOption configures a Normalizer.
type NormalizerOption func(*Normalizer)

// WithAdapter registers an adapter ahead of the default ones.
func WithAdapter(a Adapter) NormalizerOption {
	return func(n *Normalizer) {
		n.adapters = append([]Adapter{a}, n.adapters...)
	}
}

// WithRepair makes the normalizer run malformed JSON text through a JSON
// repairer before giving up on it.
func WithRepair() NormalizerOption {
	return func(n *Normalizer) {
		n.repair = true
	}
}

// NewNormalizer returns a normalizer using DefaultAdapters plus any options.
func NewNormalizer(opts ...NormalizerOption) *Normalizer {
	n := &Normalizer{adapters: DefaultAdapters()}
	for _, o := range opts {
		o(n)
	}
	return n
}

var defaultNormalizer = NewNormalizer()

// Normalize converts raw into a well-formed graph. raw may be a decoded JSON
// value (map, slice), JSON text (string, []byte, json.RawMessage) or any
// value that marshals to JSON. Normalize never fails: payloads that cannot be
// understood produce FallbackGraph.
func Normalize(raw any) *Graph {
	g, _ := defaultNormalizer.Normalize(raw)
	return g
}

// NormalizeWithReport is Normalize plus a description of what happened.
func NormalizeWithReport(raw any) (*Graph, NormalizeReport) {
	return defaultNormalizer.Normalize(raw)
}

// Normalize converts raw into a well-formed graph; see the package level
// Normalize for the accepted inputs.
func (n *Normalizer) Normalize(raw any) (g *Graph, report NormalizeReport) {
	defer func() {
		if r := recover(); r != nil {
			g, report = fallback(fmt.Errorf("%w: %v", ErrMalformedPayload, r))
		}
	}()

	doc, err := n.decode(raw, 0)
	if err != nil {
		return fallback(err)
	}
	payload, err := n.unwrap(doc)
	if err != nil {
		return fallback(err)
	}

	for _, a := range n.adapters {
		if !a.Detect(payload) {
			continue
		}
		report = NormalizeReport{Adapter: a.Name}
		g, err := a.Build(payload, &report)
		if err != nil {
			return fallback(fmt.Errorf("%w: %s: %v", ErrMalformedPayload, a.Name, err))
		}
		dropDangling(g, &report)
		return g, report
	}

	return fallback(fmt.Errorf("%w: no known shape", ErrMalformedPayload))
}

func fallback(reason error) (*Graph, NormalizeReport) {
	return FallbackGraph(), NormalizeReport{
		Adapter:  AdapterFallback,
		Fallback: true,
		Reason:   reason.Error(),
	}
}

func (n *Normalizer) decode(raw any, depth int) (any, error) {
	if depth > maxUnwrapDepth {
		return nil, fmt.Errorf("%w: too deeply encoded", ErrMalformedPayload)
	}
	switch v := raw.(type) {
	case nil:
		return nil, fmt.Errorf("%w: empty payload", ErrMalformedPayload)
	case string:
		return n.decodeText([]byte(v), depth)
	case []byte:
		return n.decodeText(v, depth)
	case json.RawMessage:
		return n.decodeText(v, depth)
	case map[string]any, []any:
		return v, nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		return n.decodeText(data, depth)
	}
}

func (n *Normalizer) decodeText(data []byte, depth int) (any, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrMalformedPayload)
	}

	v, err := decodeJSON(data)
	if err != nil && n.repair {
		repaired, rerr := jsonrepair.JSONRepair(string(data))
		if rerr == nil {
			v, err = decodeJSON([]byte(repaired))
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	// Double encoded payloads decode to a string holding the real document.
	if s, ok := v.(string); ok {
		return n.decode(s, depth+1)
	}
	return v, nil
}

func decodeJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("trailing data after JSON value")
	}
	return v, nil
}

// unwrap peels array and "mindmap" wrappers until an object remains.
func (n *Normalizer) unwrap(doc any) (map[string]any, error) {
	for depth := 0; depth <= maxUnwrapDepth; depth++ {
		switch v := doc.(type) {
		case []any:
			if len(v) == 0 {
				return nil, fmt.Errorf("%w: empty list", ErrMalformedPayload)
			}
			doc = v[0]
		case map[string]any:
			inner, ok := v["mindmap"]
			if !ok || inner == nil {
				return v, nil
			}
			doc = inner
		case string:
			decoded, err := n.decode(v, depth+1)
			if err != nil {
				return nil, err
			}
			doc = decoded
		default:
			return nil, fmt.Errorf("%w: unexpected %T", ErrMalformedPayload, doc)
		}
	}
	return nil, fmt.Errorf("%w: too deeply nested", ErrMalformedPayload)
}

// dropDangling removes edges that point at missing nodes and records them.
func dropDangling(g *Graph, report *NormalizeReport) {
	ids := g.idSet()
	kept := g.Edges[:0]
	for _, e := range g.Edges {
		if ids[e.Source] && ids[e.Target] {
			kept = append(kept, e)
			continue
		}
		report.DroppedEdges = append(report.DroppedEdges, *e)
	}
	g.Edges = kept
}

func normalizeType(v any) (NodeType, bool) {
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	t := NodeType(strings.ToLower(strings.TrimSpace(s)))
	return t, t.Valid()
}
