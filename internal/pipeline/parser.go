package pipeline

import (
	"regexp"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultParserCacheSize = 256

// namePattern matches folder names like "RS=120.50 - Steel Serving Bowl":
// a price tag, a dash, then the product name.
var namePattern = regexp.MustCompile(`^RS=([0-9.]+)\s*-\s*(.+)$`)

// ParsedIdentity is the identity derived from a product folder name.
// CostPrice keeps the matched text verbatim; empty means absent.
type ParsedIdentity struct {
	ProductName string
	CostPrice   string
}

// Parser derives product identities from folder names. Results are cached
// because the same name gets parsed during enumeration, skip checks, and
// folder processing. Safe for concurrent use.
type Parser struct {
	cache *lru.Cache[string, ParsedIdentity]
}

// NewParser creates a parser with a bounded result cache.
func NewParser(cacheSize int) *Parser {
	if cacheSize <= 0 {
		cacheSize = defaultParserCacheSize
	}
	// lru.New only errors on non-positive size which we guard above.
	cache, _ := lru.New[string, ParsedIdentity](cacheSize)
	return &Parser{cache: cache}
}

// Parse returns the identity for a raw folder name. A name that does not
// match the pattern, or whose numeric segment is not a valid number, falls
// back to the whole name with no price. Never fails.
func (p *Parser) Parse(rawName string) ParsedIdentity {
	if cached, ok := p.cache.Get(rawName); ok {
		return cached
	}

	identity := parseName(rawName)
	p.cache.Add(rawName, identity)
	return identity
}

func parseName(rawName string) ParsedIdentity {
	m := namePattern.FindStringSubmatch(rawName)
	if m == nil {
		return ParsedIdentity{ProductName: rawName}
	}

	if _, err := strconv.ParseFloat(m[1], 64); err != nil {
		// Pattern hit but the numeric segment is unusable (e.g. "1.2.3").
		return ParsedIdentity{ProductName: rawName}
	}

	return ParsedIdentity{
		ProductName: strings.TrimSpace(m[2]),
		CostPrice:   m[1],
	}
}
