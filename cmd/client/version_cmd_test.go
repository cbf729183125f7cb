package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftsync/driftsync/internal/version"
)

func TestVersionCmd_WritesDetailedToStdout(t *testing.T) {
	var out, errOut bytes.Buffer

	root := &cobra.Command{Use: "driftsync"}
	root.AddCommand(newVersionCmd())
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs([]string{"version"})

	require.NoError(t, root.Execute())

	assert.Equal(t, version.Detailed(), strings.TrimSpace(out.String()))
	assert.Empty(t, errOut.String())
}
