package pipeline

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse_PriceTaggedName(t *testing.T) {
	p := NewParser(0)

	identity := p.Parse("RS=120.50 - Steel Serving Bowl")
	assert.Equal(t, "Steel Serving Bowl", identity.ProductName)
	assert.Equal(t, "120.50", identity.CostPrice)
}

func TestParse_WhitespaceAroundDash(t *testing.T) {
	p := NewParser(0)

	identity := p.Parse("RS=45.5- Brass Lamp")
	assert.Equal(t, "Brass Lamp", identity.ProductName)
	assert.Equal(t, "45.5", identity.CostPrice)

	identity = p.Parse("RS=99 -   Copper Jug")
	assert.Equal(t, "Copper Jug", identity.ProductName)
	assert.Equal(t, "99", identity.CostPrice)
}

func TestParse_DashInsideProductName(t *testing.T) {
	p := NewParser(0)

	identity := p.Parse("RS=10 - Twin-Handle Mug")
	assert.Equal(t, "Twin-Handle Mug", identity.ProductName)
	assert.Equal(t, "10", identity.CostPrice)
}

func TestParse_UntaggedNameFallsBack(t *testing.T) {
	p := NewParser(0)

	identity := p.Parse("Assorted Clearance Items")
	assert.Equal(t, "Assorted Clearance Items", identity.ProductName)
	assert.Empty(t, identity.CostPrice)
}

func TestParse_UnusableNumberFallsBack(t *testing.T) {
	p := NewParser(0)

	// Matches the pattern but "1.2.3" is not a number, so the whole
	// folder name becomes the product name.
	identity := p.Parse("RS=1.2.3 - Gadget")
	assert.Equal(t, "RS=1.2.3 - Gadget", identity.ProductName)
	assert.Empty(t, identity.CostPrice)
}

func TestParse_Idempotent(t *testing.T) {
	p := NewParser(0)

	first := p.Parse("RS=100.00 - WidgetA")
	second := p.Parse("RS=100.00 - WidgetA")
	assert.Equal(t, first, second)
	assert.Equal(t, 1, p.cache.Len())
}

func TestParser_CacheStaysBounded(t *testing.T) {
	p := NewParser(2)

	for i := 0; i < 10; i++ {
		p.Parse(fmt.Sprintf("RS=%d - Product %d", i, i))
	}
	assert.Equal(t, 2, p.cache.Len())

	// Evicted entries still parse correctly on the slow path.
	identity := p.Parse("RS=0 - Product 0")
	assert.Equal(t, "Product 0", identity.ProductName)
	assert.Equal(t, "0", identity.CostPrice)
}
