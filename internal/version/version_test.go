package version

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVersionStrings(t *testing.T) {
	assert.Equal(t, "MirrorBox", AppName)
	assert.NotEmpty(t, Version)
	assert.NotEmpty(t, Revision)

	short := Short()
	assert.Contains(t, short, Version)
	assert.Contains(t, short, Revision)

	detailed := Detailed()
	assert.Contains(t, detailed, Version)
	assert.Contains(t, detailed, BuildDate)
	assert.Contains(t, detailed, "/") // GOOS/GOARCH part

	assert.True(t, strings.HasPrefix(DetailedWithApp(), AppName+" "))
}

func TestFillFromBuildInfo(t *testing.T) {
	oldVersion, oldRevision, oldDate := Version, Revision, BuildDate
	t.Cleanup(func() {
		Version, Revision, BuildDate = oldVersion, oldRevision, oldDate
	})

	Version, Revision, BuildDate = devVersion, "HEAD", "unknown"
	fillFromBuildInfo("v1.2.3", map[string]string{
		"vcs.revision": "0123456789abcdef0123",
		"vcs.modified": "true",
		"vcs.time":     "2025-02-03T04:05:06Z",
	})
	assert.Equal(t, "1.2.3", Version)
	assert.Equal(t, "0123456789ab-dirty", Revision)
	assert.Equal(t, "2025-02-03T04:05:06Z", BuildDate)

	// ldflags win
	Version, Revision = "9.9.9", "cafe"
	fillFromBuildInfo("(devel)", map[string]string{"vcs.revision": "beef"})
	assert.Equal(t, "9.9.9", Version)
	assert.Equal(t, "cafe", Revision)
}
