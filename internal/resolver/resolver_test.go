package resolver

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cdpoverride/internal/config"
	"cdpoverride/pkg/traffic"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newResolver(t *testing.T) (*Resolver, string) {
	t.Helper()
	root := t.TempDir()
	return New(config.Override{RemotePrefix: "/app", EntryRouteSuffix: "/app/", LocalRoot: root}, nil), root
}

func TestResolveExistingFile(t *testing.T) {
	r, root := newResolver(t)
	writeFile(t, filepath.Join(root, "main.js"), "console.log(1)")

	res, ok := r.Resolve("https://staging.example.com/app/main.js")
	require.True(t, ok)
	assert.Equal(t, traffic.Resolution{LocalPath: root + "/main.js"}, res)
}

func TestResolveNestedFileIgnoresQuery(t *testing.T) {
	r, root := newResolver(t)
	writeFile(t, filepath.Join(root, "static", "css", "site.css"), "body{}")

	res, ok := r.Resolve("https://staging.example.com/app/static/css/site.css?v=42#frag")
	require.True(t, ok)
	assert.Equal(t, root+"/static/css/site.css", res.LocalPath)
	assert.False(t, res.IndexFallback)
}

func TestResolveKeepsEncodedCharacters(t *testing.T) {
	r, root := newResolver(t)
	writeFile(t, filepath.Join(root, "a%20b.js"), "x")

	res, ok := r.Resolve("https://staging.example.com/app/a%20b.js")
	require.True(t, ok)
	assert.Equal(t, root+"/a%20b.js", res.LocalPath)
}

func TestResolveMissWithoutSuffixHasNoFallback(t *testing.T) {
	r, root := newResolver(t)
	writeFile(t, filepath.Join(root, IndexFile), "<html></html>")

	_, ok := r.Resolve("https://staging.example.com/app/missing.js")
	assert.False(t, ok)
}

func TestResolveIndexFallback(t *testing.T) {
	r, root := newResolver(t)
	writeFile(t, filepath.Join(root, IndexFile), "<html></html>")

	res, ok := r.Resolve("https://staging.example.com/app/")
	require.True(t, ok)
	assert.Equal(t, traffic.Resolution{LocalPath: filepath.Join(root, IndexFile), IndexFallback: true}, res)
}

func TestResolveIndexFallbackMissing(t *testing.T) {
	r, _ := newResolver(t)

	_, ok := r.Resolve("https://staging.example.com/app/")
	assert.False(t, ok)
}

func TestResolveDirectoryIsNotAFile(t *testing.T) {
	r, root := newResolver(t)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "assets"), 0o755))

	_, ok := r.Resolve("https://staging.example.com/app/assets")
	assert.False(t, ok)
}

func TestResolveIndexDirectoryIsNotAFile(t *testing.T) {
	r, root := newResolver(t)
	require.NoError(t, os.MkdirAll(filepath.Join(root, IndexFile), 0o755))

	_, ok := r.Resolve("https://staging.example.com/app/")
	assert.False(t, ok)
}

func TestResolveSymlinkToDirectory(t *testing.T) {
	r, root := newResolver(t)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "real"), 0o755))
	if err := os.Symlink(filepath.Join(root, "real"), filepath.Join(root, "link.js")); err != nil {
		t.Skipf("symlink unsupported: %v", err)
	}

	_, ok := r.Resolve("https://staging.example.com/app/link.js")
	assert.False(t, ok)
}

func TestResolveRejectsTraversal(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "build")
	writeFile(t, filepath.Join(root, "ok.js"), "ok")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub"), 0o755))
	writeFile(t, filepath.Join(parent, "secret.txt"), "secret")

	// url.Parse 不会折叠 ".."，浏览器之外的客户端可以发出这样的路径
	raw := "https://staging.example.com/app/../secret.txt"

	strict := New(config.Override{RemotePrefix: "/app", EntryRouteSuffix: "/app/", LocalRoot: root}, nil)
	_, ok := strict.Resolve(raw)
	assert.False(t, ok)

	res, ok := strict.Resolve("https://staging.example.com/app/sub/../ok.js")
	require.True(t, ok)
	assert.Equal(t, root+"/sub/../ok.js", res.LocalPath)

	loose := New(config.Override{RemotePrefix: "/app", EntryRouteSuffix: "/app/", LocalRoot: root, AllowTraversal: true}, nil)
	res, ok = loose.Resolve(raw)
	require.True(t, ok)
	assert.Equal(t, root+"/../secret.txt", res.LocalPath)
}

func TestResolveReplacesFirstPrefixOccurrence(t *testing.T) {
	r, root := newResolver(t)
	writeFile(t, filepath.Join(root, "v2", "main.js"), "x")

	for _, u := range []string{
		"https://cdn.example.com/app/v2/main.js",
		"https://cdn.example.com/v2/app/main.js",
	} {
		res, ok := r.Resolve(u)
		require.True(t, ok, u)
		assert.Equal(t, root+"/v2/main.js", res.LocalPath)
	}
}

func TestResolveIsIdempotent(t *testing.T) {
	r, root := newResolver(t)
	writeFile(t, filepath.Join(root, IndexFile), "<html></html>")

	for _, u := range []string{
		"https://staging.example.com/app/",
		"https://staging.example.com/app/none.js",
	} {
		a, okA := r.Resolve(u)
		b, okB := r.Resolve(u)
		assert.Equal(t, okA, okB)
		assert.Equal(t, a, b)
	}
}

func TestResolveBadURL(t *testing.T) {
	r, _ := newResolver(t)
	_, ok := r.Resolve("://bad url")
	assert.False(t, ok)
}
