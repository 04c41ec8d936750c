package nativedeps

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := NewRootCommand(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCLIConfigInitAndShow(t *testing.T) {
	dir := t.TempDir()

	_, err := runCLI(t, "config", "init", "--workdir", dir)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, DefaultConfigFile))

	_, err = runCLI(t, "config", "init", "--workdir", dir)
	require.Error(t, err, "init does not clobber an existing file")

	out, err := runCLI(t, "config", "show", "--workdir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, DefaultConfigFile)
	assert.Contains(t, out, `"openssl_target": "VC-WIN64A"`)
	assert.Contains(t, out, "https://github.com/madler/zlib.git")
}

func TestCLIConfigShowDefault(t *testing.T) {
	dir := t.TempDir()

	// no configuration file exists; the built-in document needs none
	out, err := runCLI(t, "config", "show", "--default", "--workdir", dir)
	require.NoError(t, err)
	assert.Equal(t, string(DefaultConfig()), out)
	assert.NoFileExists(t, filepath.Join(dir, DefaultConfigFile))
}

func TestCLIList(t *testing.T) {
	dir := t.TempDir()
	writeTestConfig(t, dir, nil, "zlib")

	out, err := runCLI(t, "list", "-C", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "NAME")
	assert.Regexp(t, `zlib\s+true\s+zlib-src\s+v1\.0\.0`, out)
	assert.Regexp(t, `libxslt\s+false.*libxml2,icu,zlib`, out)
}

func TestCLIRunDryRun(t *testing.T) {
	dir := t.TempDir()
	writeTestConfig(t, dir, nil, "zlib", "openssl")

	out, err := runCLI(t, "run", "--dry-run", "--pass", "debug", "--workdir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "git clone https://example.com/zlib.git")
	assert.Contains(t, out, "-DCMAKE_BUILD_TYPE=Debug")
	assert.Contains(t, out, "--debug")
	assert.NotContains(t, out, "-DCMAKE_BUILD_TYPE=Release")
	assert.Equal(t, []string{ConfigFile}, dirNames(t, dir))
}

func TestCLIRunMissingConfig(t *testing.T) {
	_, err := runCLI(t, "run", "--workdir", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no configuration found")
}

func TestCLIRunRejectsUnknownPass(t *testing.T) {
	dir := t.TempDir()
	writeTestConfig(t, dir, nil, "zlib")
	_, err := runCLI(t, "run", "--pass", "relwithdebinfo", "--workdir", dir)
	require.Error(t, err)
}

func TestCLIWorkdirFromEnv(t *testing.T) {
	dir := t.TempDir()
	writeTestConfig(t, dir, nil, "zlib")
	t.Setenv("NATIVEDEPS_WORKDIR", dir)

	out, err := runCLI(t, "checkout", "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "git clone https://example.com/zlib.git "+filepath.Join(dir, "src", "zlib-src"))
	assert.NotContains(t, out, "lz4")
}

func TestCLIDigestAndPackage(t *testing.T) {
	dir := t.TempDir()
	writeTestConfig(t, dir, nil, "zlib")
	layout := Layout{Root: dir}
	writeTree(t, layout.Src("zlib-src"), map[string]string{"zlib.h": "x"})
	writeTree(t, layout.Out(Release), map[string]string{"zlib-src/lib/zlib.lib": "lib"})
	writeTree(t, layout.Out(Debug), map[string]string{"zlib-src/lib/zlibd.lib": "lib"})

	out, err := runCLI(t, "digest", "-C", dir)
	require.NoError(t, err)
	sum, err := TreeDigest(layout.Src("zlib-src"))
	require.NoError(t, err)
	assert.Contains(t, out, sum+"  zlib")

	_, err = runCLI(t, "package", "--format", "zip", "-C", dir)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(layout.PackagesDir(), "nativedeps-release.zip"))
	assert.FileExists(t, filepath.Join(layout.PackagesDir(), "nativedeps-debug.zip.b3"))

	_, err = runCLI(t, "package", "--format", "7z", "-C", dir)
	require.Error(t, err)
}

func TestCLIVersion(t *testing.T) {
	out, err := runCLI(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "nativedeps dev")
}

func TestCLILogsUnknownVariant(t *testing.T) {
	_, err := runCLI(t, "logs", "zlib", "--variant", "profile", "-C", t.TempDir())
	require.Error(t, err)
}

func TestMain(m *testing.M) {
	// keep a developer's environment from leaking into config loading
	for _, key := range []string{"NATIVEDEPS_DEBUG", "NATIVEDEPS_WORKDIR"} {
		os.Unsetenv(key)
	}
	os.Exit(m.Run())
}
