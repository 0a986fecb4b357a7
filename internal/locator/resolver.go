package locator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aludratest/aludra/internal/config"
	"github.com/aludratest/aludra/internal/driver"
	"github.com/aludratest/aludra/internal/fault"
)

// ErrUnsupportedLocator is the cause of the technical fault returned for
// locator kinds the resolver does not know.
var ErrUnsupportedLocator = errors.New("unsupported locator kind")

// cssEscaper escapes an id for use inside a quoted CSS attribute value.
var cssEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// Candidate is one native query to try for a locator. Option is the index
// inside an Alternatives list, or -1 for leaf locators.
type Candidate struct {
	Option int
	Query  driver.Query
}

// Resolver maps locators to native queries. Resolving is pure: it never talks
// to a driver, and only reads the sticky cache.
type Resolver struct {
	idPrefix string
	idSuffix string
	cache    *Cache
}

// NewResolver creates a resolver. A nil cache gets a private one.
func NewResolver(cfg config.LocatorConfig, cache *Cache) *Resolver {
	if cache == nil {
		cache = NewCache()
	}
	return &Resolver{idPrefix: cfg.IDPrefix, idSuffix: cfg.IDSuffix, cache: cache}
}

// Cache exposes the sticky binding cache.
func (r *Resolver) Cache() *Cache {
	return r.cache
}

// Resolve maps a leaf locator to its query. Alternatives resolve to the query
// of their sticky option; an unbound Alternatives is an automation fault since
// only a lookup can choose between options.
func (r *Resolver) Resolve(loc Locator) (driver.Query, error) {
	if alt, ok := loc.(*Alternatives); ok {
		i, bound := r.cache.Get(alt)
		if !bound {
			return driver.Query{}, fault.NewAutomation("No alternative bound yet").WithLocator(alt)
		}
		return r.resolveLeaf(alt.Options[i])
	}
	return r.resolveLeaf(loc)
}

// Candidates returns the queries a lookup must try in order. For a bound
// Alternatives only the sticky option is returned.
func (r *Resolver) Candidates(loc Locator) ([]Candidate, error) {
	alt, ok := loc.(*Alternatives)
	if !ok {
		q, err := r.resolveLeaf(loc)
		if err != nil {
			return nil, err
		}
		return []Candidate{{Option: -1, Query: q}}, nil
	}

	if len(alt.Options) == 0 {
		return nil, fault.NewAutomation("Alternatives list is empty").WithLocator(alt)
	}
	if i, bound := r.cache.Get(alt); bound {
		q, err := r.resolveLeaf(alt.Options[i])
		if err != nil {
			return nil, err
		}
		return []Candidate{{Option: i, Query: q}}, nil
	}

	out := make([]Candidate, 0, len(alt.Options))
	for i, o := range alt.Options {
		q, err := r.resolveLeaf(o)
		if err != nil {
			return nil, err
		}
		out = append(out, Candidate{Option: i, Query: q})
	}
	return out, nil
}

func (r *Resolver) resolveLeaf(loc Locator) (driver.Query, error) {
	switch l := loc.(type) {
	case ByID:
		return driver.Query{Strategy: driver.StrategyCSS, Value: r.idPrefix + cssEscaper.Replace(string(l)) + r.idSuffix}, nil
	case ByXPath:
		return driver.Query{Strategy: driver.StrategyXPath, Value: string(l)}, nil
	case ByCSS:
		return driver.Query{Strategy: driver.StrategyCSS, Value: string(l)}, nil
	case ByLabel:
		return driver.Query{Strategy: driver.StrategyLinkText, Value: string(l)}, nil
	case *Alternatives:
		return driver.Query{}, fault.NewAutomation("Alternatives cannot be nested").WithLocator(l)
	case nil:
		return driver.Query{}, fault.NewAutomation("No locator given")
	default:
		return driver.Query{}, fault.NewTechnical(fmt.Errorf("%w: %T", ErrUnsupportedLocator, loc), fault.MsgUnsupportedLocator).WithLocator(loc)
	}
}
