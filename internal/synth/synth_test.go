package synth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFallbackDescription(t *testing.T) {
	assert.Equal(t,
		"Documentation for hono",
		FallbackDescription("hono", nil))

	assert.Equal(t,
		"Documentation for hono covering Routing, Middleware, Context",
		FallbackDescription("hono", []string{"Routing", "Middleware", "Context", "Extra"}))
}

func TestDescribeWithoutKeyUsesFallback(t *testing.T) {
	d := NewOpenAIDescriber("", "")
	got := d.Describe(context.Background(), "hono", "https://hono.dev/llms.txt", []string{"Routing"})
	assert.Equal(t, "Documentation for hono covering Routing", got)
}
