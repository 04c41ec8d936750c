package nativedeps

import (
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gitRepo creates a local upstream with tags v1 and v2.
func gitRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	dir := filepath.Join(t.TempDir(), "upstream")
	require.NoError(t, os.MkdirAll(dir, 0o755))

	git := gitIn(t, dir)
	write := func(name, body string) {
		t.Helper()
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}

	git("init", "-q")
	write("zlib.h", "#define ZLIB_VERSION \"1.0\"\n")
	git("add", ".")
	git("commit", "-q", "-m", "one")
	git("tag", "v1")
	write("zlib.h", "#define ZLIB_VERSION \"2.0\"\n")
	write("NEWS", "two\n")
	git("add", ".")
	git("commit", "-q", "-m", "two")
	git("tag", "v2")
	return dir
}

// gitIn returns a helper running git in dir with a fixed identity.
func gitIn(t *testing.T, dir string) func(args ...string) string {
	return func(args ...string) string {
		t.Helper()
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
			"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com",
			"GIT_CONFIG_GLOBAL=/dev/null", "GIT_CONFIG_NOSYSTEM=1",
		)
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, "git %s: %s", strings.Join(args, " "), out)
		return strings.TrimSpace(string(out))
	}
}

func newGitCheckout() GitCheckout {
	return GitCheckout{Runner: &Executor{Stdout: io.Discard, Stderr: io.Discard}, Git: "git"}
}

func TestCheckoutClonesPinnedTag(t *testing.T) {
	upstream := gitRepo(t)
	dest := filepath.Join(t.TempDir(), "src", "zlib")

	require.NoError(t, newGitCheckout().Checkout(context.Background(), dest, upstream, "v1"))

	data, err := os.ReadFile(filepath.Join(dest, "zlib.h"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "1.0")
	assert.NoFileExists(t, filepath.Join(dest, "NEWS"))
}

func TestCheckoutResetsDirtyTree(t *testing.T) {
	upstream := gitRepo(t)
	dest := filepath.Join(t.TempDir(), "zlib")
	gc := newGitCheckout()
	ctx := context.Background()

	require.NoError(t, gc.Checkout(ctx, dest, upstream, "v2"))
	clean, err := TreeDigest(dest)
	require.NoError(t, err)

	// local edits, untracked and ignored-style junk from a previous build
	require.NoError(t, os.WriteFile(filepath.Join(dest, "zlib.h"), []byte("patched"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dest, "junk.obj"), []byte("x"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dest, "out", "Debug"), 0o755))

	require.NoError(t, gc.Checkout(ctx, dest, upstream, "v2"))
	again, err := TreeDigest(dest)
	require.NoError(t, err)
	assert.Equal(t, clean, again, "second checkout yields an identical tree")
	assert.NoFileExists(t, filepath.Join(dest, "junk.obj"))

	// moving the pin back also works on an existing clone
	require.NoError(t, gc.Checkout(ctx, dest, upstream, "v1"))
	assert.NoFileExists(t, filepath.Join(dest, "NEWS"))
}

func TestCheckoutInsideEnclosingRepository(t *testing.T) {
	upstream := gitRepo(t)
	ctx := context.Background()

	// The work directory is itself a checkout with an uncommitted edit.
	work := filepath.Join(t.TempDir(), "work")
	require.NoError(t, os.MkdirAll(work, 0o755))
	git := gitIn(t, work)
	git("init", "-q")
	require.NoError(t, os.WriteFile(filepath.Join(work, "config.json"), []byte("{}"), 0o644))
	git("add", ".")
	git("commit", "-q", "-m", "work")
	git("remote", "add", "origin", upstream)
	head := git("rev-parse", "HEAD")
	require.NoError(t, os.WriteFile(filepath.Join(work, "config.json"), []byte(`{"debug":true}`), 0o644))

	for _, tc := range []struct {
		name    string
		prepare func(dest string)
	}{
		{"empty directory", func(dest string) {
			require.NoError(t, os.MkdirAll(dest, 0o755))
		}},
		{"leftover sources", func(dest string) {
			require.NoError(t, os.MkdirAll(dest, 0o755))
			require.NoError(t, os.WriteFile(filepath.Join(dest, "stale.c"), []byte("x"), 0o644))
		}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			dest := filepath.Join(work, "src", "zlib")
			require.NoError(t, os.RemoveAll(filepath.Join(work, "src")))
			tc.prepare(dest)

			require.NoError(t, newGitCheckout().Checkout(ctx, dest, upstream, "v1"))

			assert.FileExists(t, filepath.Join(dest, "zlib.h"))
			assert.NoFileExists(t, filepath.Join(dest, "stale.c"))
			assert.DirExists(t, filepath.Join(dest, ".git"))

			data, err := os.ReadFile(filepath.Join(work, "config.json"))
			require.NoError(t, err)
			assert.Equal(t, `{"debug":true}`, string(data), "enclosing work tree untouched")
			assert.NoFileExists(t, filepath.Join(work, "zlib.h"))
			assert.Equal(t, head, git("rev-parse", "HEAD"))
		})
	}
}

func TestCheckoutDeterministicAcrossClones(t *testing.T) {
	upstream := gitRepo(t)
	ctx := context.Background()
	a := filepath.Join(t.TempDir(), "a")
	b := filepath.Join(t.TempDir(), "b")

	require.NoError(t, newGitCheckout().Checkout(ctx, a, upstream, "v2"))
	require.NoError(t, newGitCheckout().Checkout(ctx, b, upstream, "v2"))

	da, err := TreeDigest(a)
	require.NoError(t, err)
	db, err := TreeDigest(b)
	require.NoError(t, err)
	assert.Equal(t, da, db)
}

func TestCheckoutUnknownTagFails(t *testing.T) {
	upstream := gitRepo(t)
	dest := filepath.Join(t.TempDir(), "zlib")

	err := newGitCheckout().Checkout(context.Background(), dest, upstream, "v9")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checkout")
}

func TestCheckoutCommandSequence(t *testing.T) {
	runner := &fakeRunner{onRun: func(inv Invocation) error {
		if inv.Args[1] == "clone" {
			return os.MkdirAll(filepath.Join(inv.Args[3], ".git"), 0o755)
		}
		return nil
	}}
	dest := filepath.Join(t.TempDir(), "deep", "zlib")
	gc := GitCheckout{Runner: runner}

	require.NoError(t, gc.Checkout(context.Background(), dest, "https://example.com/zlib.git", "v1.3.1"))
	require.NoError(t, gc.Checkout(context.Background(), dest, "https://example.com/zlib.git", "v1.3.1"))

	assert.Equal(t, []string{
		"git clone https://example.com/zlib.git " + dest,
		"git reset --hard",
		"git clean -ffdx",
		"git -c advice.detachedHead=false checkout --force --detach v1.3.1",
		"git status --short --branch",
		"git fetch --tags --force origin",
		"git reset --hard",
		"git clean -ffdx",
		"git -c advice.detachedHead=false checkout --force --detach v1.3.1",
		"git status --short --branch",
	}, runner.commands())
	for _, c := range runner.calls {
		assert.Contains(t, c.Env, "GIT_CEILING_DIRECTORIES="+filepath.Dir(dest))
	}
}

func TestCheckoutReclonesDirectoryWithoutRepository(t *testing.T) {
	runner := &fakeRunner{onRun: func(inv Invocation) error {
		if inv.Args[1] == "clone" {
			return os.MkdirAll(filepath.Join(inv.Args[3], ".git"), 0o755)
		}
		return nil
	}}
	dest := filepath.Join(t.TempDir(), "zlib")
	require.NoError(t, os.MkdirAll(dest, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dest, "stale.c"), []byte("x"), 0o644))

	gc := GitCheckout{Runner: runner}
	require.NoError(t, gc.Checkout(context.Background(), dest, "https://example.com/zlib.git", "v1.3.1"))

	assert.Equal(t, 1, runner.countMatching(" clone "))
	assert.Zero(t, runner.countMatching(" fetch "))
	assert.NoFileExists(t, filepath.Join(dest, "stale.c"))
}
