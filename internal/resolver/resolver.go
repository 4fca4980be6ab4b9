// Package resolver merges per-block reflect-* properties with the global
// request defaults. Fields absent on a block are looked up along its
// ancestor chain; every field always resolves to a value.
package resolver

import (
	"strconv"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kadaliao/logseq-reflect-sub001/internal/config"
	"github.com/kadaliao/logseq-reflect-sub001/internal/logging"
	"github.com/kadaliao/logseq-reflect-sub001/internal/outline"
)

// Recognized property keys on outline nodes.
const (
	PropModel       = "reflect-model"
	PropTemperature = "reflect-temperature"
	PropTopP        = "reflect-top-p"
	PropMaxTokens   = "reflect-max-tokens"
	PropStream      = "reflect-stream"
	PropUseContext  = "reflect-use-context"
)

var recognizedKeys = []string{
	PropModel, PropTemperature, PropTopP, PropMaxTokens, PropStream, PropUseContext,
}

// Effective is the fully-resolved request configuration for one invocation.
type Effective struct {
	Model            string
	Temperature      float64
	TopP             float64
	MaxTokens        int // 0 = unset, endpoint decides
	Stream           bool
	UseContext       bool
	MaxContextTokens int
}

// Resolved pairs an effective config with its inheritance flag.
type Resolved struct {
	Config Effective
	// Inherited is true only when the queried node itself supplied none
	// of the recognized property keys (valid or not).
	Inherited bool
}

const (
	cacheSize = 512
	// maxWalkDepth caps the ancestor walk; outlines never nest anywhere
	// near this deep, and a corrupted cyclic parent chain must not hang.
	maxWalkDepth = 64
)

// Resolver resolves per-block configuration with ancestor inheritance.
// Results are cached by node UUID until ClearCache; entries are written
// only after a full resolution completes, so concurrent readers never
// observe a partial result.
type Resolver struct {
	reader   outline.Reader
	defaults config.RequestConfig
	cache    *lru.Cache[string, Resolved]
}

// New creates a resolver over the given outline reader and global defaults.
func New(reader outline.Reader, defaults config.RequestConfig) *Resolver {
	cache, _ := lru.New[string, Resolved](cacheSize)
	return &Resolver{reader: reader, defaults: defaults, cache: cache}
}

// Resolve returns the effective config for a node. An unreadable node
// yields the all-default config with Inherited=false.
func (r *Resolver) Resolve(uuid string) Resolved {
	if cached, ok := r.cache.Get(uuid); ok {
		logging.ResolverDebug("cache hit for %s", uuid)
		return cached
	}

	node, ok := r.reader.Node(uuid)
	if !ok {
		logging.ResolverDebug("node %s unreadable, using defaults", uuid)
		res := Resolved{Config: r.defaultEffective(), Inherited: false}
		r.cache.Add(uuid, res)
		return res
	}

	res := r.resolveNode(node)
	r.cache.Add(uuid, res)
	return res
}

// ClearCache drops all cached resolutions. Call after block properties or
// the global defaults change.
func (r *Resolver) ClearCache() {
	r.cache.Purge()
	logging.ResolverDebug("cache cleared")
}

// SetDefaults swaps the global defaults and invalidates the cache.
func (r *Resolver) SetDefaults(defaults config.RequestConfig) {
	r.defaults = defaults
	r.ClearCache()
}

func (r *Resolver) defaultEffective() Effective {
	return Effective{
		Model:            r.defaults.Model,
		Temperature:      r.defaults.Temperature,
		TopP:             r.defaults.TopP,
		MaxTokens:        r.defaults.MaxTokens,
		Stream:           r.defaults.Stream,
		UseContext:       r.defaults.UseContext,
		MaxContextTokens: r.defaults.MaxContextTokens,
	}
}

// fieldSet tracks which fields have been filled during the ancestor walk.
type fieldSet struct {
	model, temperature, topP, maxTokens, stream, useContext bool
}

func (f fieldSet) done() bool {
	return f.model && f.temperature && f.topP && f.maxTokens && f.stream && f.useContext
}

func (r *Resolver) resolveNode(node *outline.Node) Resolved {
	eff := r.defaultEffective()
	var filled fieldSet

	suppliesAny := false
	for _, key := range recognizedKeys {
		if _, ok := node.Prop(key); ok {
			suppliesAny = true
			break
		}
	}

	// Walk from the node up the parent chain, taking the nearest valid
	// value for each still-missing field. Invalid values are skipped
	// silently so a request can always proceed (logged for session
	// traces). The walk is depth-capped so a corrupted host with a
	// cyclic parent chain cannot hang resolution.
	cur := node
	for depth := 0; cur != nil && !filled.done(); depth++ {
		if depth >= maxWalkDepth {
			logging.ResolverDebug("ancestor walk for %s stopped at depth %d", node.UUID, maxWalkDepth)
			break
		}
		r.applyNode(cur, &eff, &filled)
		if cur.Parent == "" {
			break
		}
		parent, ok := r.reader.Node(cur.Parent)
		if !ok {
			break
		}
		cur = parent
	}

	return Resolved{Config: eff, Inherited: !suppliesAny}
}

func (r *Resolver) applyNode(n *outline.Node, eff *Effective, filled *fieldSet) {
	if !filled.model {
		if v, ok := n.Prop(PropModel); ok && v != "" {
			eff.Model = v
			filled.model = true
		}
	}
	if !filled.temperature {
		if raw, ok := n.Prop(PropTemperature); ok {
			if v, err := strconv.ParseFloat(raw, 64); err == nil && v >= 0 && v <= 2 {
				eff.Temperature = v
				filled.temperature = true
			} else {
				logging.ResolverDebug("node %s: invalid %s=%q, skipping", n.UUID, PropTemperature, raw)
			}
		}
	}
	if !filled.topP {
		if raw, ok := n.Prop(PropTopP); ok {
			if v, err := strconv.ParseFloat(raw, 64); err == nil && v >= 0 && v <= 1 {
				eff.TopP = v
				filled.topP = true
			} else {
				logging.ResolverDebug("node %s: invalid %s=%q, skipping", n.UUID, PropTopP, raw)
			}
		}
	}
	if !filled.maxTokens {
		if raw, ok := n.Prop(PropMaxTokens); ok {
			if v, err := strconv.Atoi(raw); err == nil && v > 0 {
				eff.MaxTokens = v
				filled.maxTokens = true
			} else {
				logging.ResolverDebug("node %s: invalid %s=%q, skipping", n.UUID, PropMaxTokens, raw)
			}
		}
	}
	if !filled.stream {
		if raw, ok := n.Prop(PropStream); ok {
			if v, err := strconv.ParseBool(raw); err == nil {
				eff.Stream = v
				filled.stream = true
			} else {
				logging.ResolverDebug("node %s: invalid %s=%q, skipping", n.UUID, PropStream, raw)
			}
		}
	}
	if !filled.useContext {
		if raw, ok := n.Prop(PropUseContext); ok {
			if v, err := strconv.ParseBool(raw); err == nil {
				eff.UseContext = v
				filled.useContext = true
			} else {
				logging.ResolverDebug("node %s: invalid %s=%q, skipping", n.UUID, PropUseContext, raw)
			}
		}
	}
}
