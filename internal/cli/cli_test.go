package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewToolServerCommand_HasServeAndWarm(t *testing.T) {
	root := NewToolServerCommand()
	serve, _, err := root.Find([]string{"serve"})
	require.NoError(t, err)
	assert.Equal(t, "serve", serve.Name())

	warm, _, err := root.Find([]string{"warm"})
	require.NoError(t, err)
	assert.Equal(t, "warm", warm.Name())
}

func TestNewToolServerCommand_WarmRequiresArgs(t *testing.T) {
	root := NewToolServerCommand()
	root.SetArgs([]string{"warm"})
	err := root.Execute()
	assert.Error(t, err)
}

func TestNewProxyCommand_HasServeWithAddrFlag(t *testing.T) {
	root := NewProxyCommand()
	serve, _, err := root.Find([]string{"serve"})
	require.NoError(t, err)
	assert.Equal(t, "serve", serve.Name())

	flag := serve.Flags().Lookup("addr")
	require.NotNil(t, flag)
	assert.Equal(t, ":8080", flag.DefValue)
}
