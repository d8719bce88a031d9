package cli

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBareInvocationServes(t *testing.T) {
	require.NotNil(t, rootCmd.RunE, "root command must be runnable without a subcommand")
	assert.Equal(t,
		reflect.ValueOf(serveCmd.RunE).Pointer(),
		reflect.ValueOf(rootCmd.RunE).Pointer(),
		"running without a subcommand must behave like serve")
}
