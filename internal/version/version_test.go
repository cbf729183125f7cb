package version

import (
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func saveVars(t *testing.T) {
	t.Helper()
	v, r, b := Version, Revision, BuildDate
	t.Cleanup(func() { Version, Revision, BuildDate = v, r, b })
}

func TestRenderedStrings(t *testing.T) {
	require.NotEmpty(t, AppName)

	assert.Equal(t, Version+" ("+Revision+")", Short())
	assert.Equal(t, AppName+" "+Short(), ShortWithApp())

	detailed := Detailed()
	assert.Contains(t, detailed, Version)
	assert.Contains(t, detailed, Revision)
	assert.Contains(t, detailed, runtime.GOOS+"/"+runtime.GOARCH)

	assert.True(t, strings.HasPrefix(DetailedWithApp(), AppName+" "))
}

func TestApplyBuildInfo(t *testing.T) {
	t.Run("dev defaults resolve from build metadata", func(t *testing.T) {
		saveVars(t)
		Version, Revision, BuildDate = devVersion, devRevision, ""

		applyBuildInfo("v2.4.0", map[string]string{
			"vcs.revision": "0123abcd",
			"vcs.modified": "true",
			"vcs.time":     "2026-01-05T09:30:00Z",
		})

		assert.Equal(t, "2.4.0", Version)
		assert.Equal(t, "0123abcd-dirty", Revision)
		assert.Equal(t, "2026-01-05T09:30:00Z", BuildDate)
	})

	t.Run("clean checkout keeps plain revision", func(t *testing.T) {
		saveVars(t)
		Version, Revision, BuildDate = devVersion, devRevision, ""

		applyBuildInfo("", map[string]string{"vcs.revision": "0123abcd"})

		assert.Equal(t, devVersion, Version)
		assert.Equal(t, "0123abcd", Revision)
	})

	t.Run("ldflags values win", func(t *testing.T) {
		saveVars(t)
		Version, Revision, BuildDate = "1.2.3", "deadbeef", "2026-01-01T00:00:00Z"

		applyBuildInfo("v9.9.9", map[string]string{
			"vcs.revision": "0123abcd",
			"vcs.time":     "2026-02-02T00:00:00Z",
		})

		assert.Equal(t, "1.2.3", Version)
		assert.Equal(t, "deadbeef", Revision)
		assert.Equal(t, "2026-01-01T00:00:00Z", BuildDate)
	})

	t.Run("devel main version is ignored", func(t *testing.T) {
		saveVars(t)
		Version = devVersion

		applyBuildInfo("(devel)", nil)

		assert.Equal(t, devVersion, Version)
	})
}
