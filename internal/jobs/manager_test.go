package jobs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZerkerEOD/krakenhashes/jwtworker/internal/detector"
	"github.com/ZerkerEOD/krakenhashes/jwtworker/internal/relay"
	"github.com/ZerkerEOD/krakenhashes/jwtworker/internal/wordlist"
)

// recordingRelay captures every relayed line
type recordingRelay struct {
	mu    sync.Mutex
	lines []string
}

func (r *recordingRelay) Send(_ context.Context, line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, line)
}

func (r *recordingRelay) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

// recordingMetrics captures job outcomes
type recordingMetrics struct {
	mu       sync.Mutex
	started  int
	outcomes []string
}

func (m *recordingMetrics) JobStarted() {
	m.mu.Lock()
	m.started++
	m.mu.Unlock()
}

func (m *recordingMetrics) JobFinished(outcome string, _ time.Duration) {
	m.mu.Lock()
	m.outcomes = append(m.outcomes, outcome)
	m.mu.Unlock()
}

type testEnv struct {
	manager     *Manager
	provisioner *wordlist.Provisioner
	wordlistDir string
	corpus      string
}

// newTestEnv builds a manager whose jwt_tool is the given shell script.
// The script receives: -C -d <wordlist> <token>.
func newTestEnv(t *testing.T, script string, rel relay.Relay, m Metrics) *testEnv {
	t.Helper()
	dir := t.TempDir()

	tool := filepath.Join(dir, "jwt_tool.sh")
	require.NoError(t, os.WriteFile(tool, []byte("#!/bin/sh\n"+script+"\n"), 0755))

	corpus := filepath.Join(dir, "common_secrets.txt")
	require.NoError(t, os.WriteFile(corpus, []byte("secret\npassword\n"), 0644))

	wlDir := filepath.Join(dir, "wordlists")
	require.NoError(t, os.MkdirAll(wlDir, 0755))

	provisioner := wordlist.NewProvisioner(wlDir, wordlist.NewCorpus(corpus, dir))
	return &testEnv{
		manager:     NewManager(ToolConfig{Binary: tool}, provisioner, rel, detector.New(), m),
		provisioner: provisioner,
		wordlistDir: wlDir,
		corpus:      corpus,
	}
}

func (e *testEnv) transientFiles(t *testing.T) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(e.wordlistDir, "*"))
	require.NoError(t, err)
	return matches
}

func signedToken(t *testing.T, secret string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  "1234567890",
		"name": "John Doe",
	}).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func strPtr(s string) *string {
	return &s
}

func TestSecretFoundKillsTool(t *testing.T) {
	copyPath := filepath.Join(t.TempDir(), "wordlist-copy.txt")
	t.Setenv("WORDLIST_COPY", copyPath)

	rel := &recordingRelay{}
	env := newTestEnv(t, `
cp "$3" "$WORDLIST_COPY"
echo "/root/.jwt_tool/jwtconf.ini"
printf '\033[36mOriginal JWT:\033[0m %s\n' "$4"
echo "Testing 2 passwords"
printf '\033[32m[+] def is the CORRECT key!\033[0m\n'
echo "after detection"
sleep 30
echo "natural exit"`, rel, nil)

	tok := signedToken(t, "def")
	job := newJob("job-b", CrackRequest{Token: tok, Wordlist: strPtr("abc\ndef\n")})

	start := time.Now()
	result, err := env.manager.execute(context.Background(), job)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 10*time.Second, "tool should be killed, not waited out")

	assert.Equal(t, StatusCompleted, result.Status)
	assert.Equal(t, "def", result.Secret)
	assert.Equal(t, digest("def"), result.Hash)
	assert.Contains(t, result.Message, "def")
	require.NotNil(t, result.Verified)
	assert.True(t, *result.Verified)

	snap := job.Snapshot()
	assert.True(t, snap.Terminated)
	assert.Equal(t, "done", snap.State)
	assert.Equal(t, "FOUND", snap.Detection)
	assert.Equal(t, "inline", snap.WordlistSource)

	lines := rel.Lines()
	require.NotEmpty(t, lines)
	assert.Equal(t, "Using custom wordlist with 2 entries", lines[0])
	assert.Equal(t, "[+] def is the CORRECT key!", lines[len(lines)-1])
	assert.Contains(t, lines, "Original JWT: "+tok)
	assert.NotContains(t, lines, "/root/.jwt_tool/jwtconf.ini")
	assert.NotContains(t, lines, "after detection")
	assert.NotContains(t, lines, "natural exit")

	// the tool saw the inline content verbatim, and the file is gone
	data, err := os.ReadFile(copyPath)
	require.NoError(t, err)
	assert.Equal(t, "abc\ndef\n", string(data))
	assert.Empty(t, env.transientFiles(t))
}

func TestDefaultWordlistNoSecret(t *testing.T) {
	rel := &recordingRelay{}
	env := newTestEnv(t, `
echo "Loading $3"
echo "Testing 2 passwords"
echo "[-] Key not in dictionary"`, rel, nil)

	job := newJob("job-a", CrackRequest{Token: signedToken(t, "unguessable")})
	result, err := env.manager.execute(context.Background(), job)
	require.NoError(t, err)

	assert.Equal(t, &CrackResult{Status: StatusCompleted}, result)
	assert.False(t, result.Found())
	assert.False(t, job.Snapshot().Terminated)
	assert.Equal(t, "default", job.Snapshot().WordlistSource)

	assert.Equal(t, []string{
		"Using default wordlist: " + env.corpus,
		"Loading " + env.corpus,
		"Testing 2 passwords",
		"[-] Key not in dictionary",
	}, rel.Lines())

	// the shared corpus survives
	_, err = os.Stat(env.corpus)
	assert.NoError(t, err)
}

func TestAwaitingValueDetection(t *testing.T) {
	rel := &recordingRelay{}
	env := newTestEnv(t, `
echo "CORRECT key found:"
echo ""
echo "   V   "
echo "W"
sleep 30`, rel, nil)

	result, err := env.manager.execute(context.Background(), newJob("job-c", CrackRequest{Token: signedToken(t, "V")}))
	require.NoError(t, err)
	assert.Equal(t, "V", result.Secret)
	assert.Equal(t, digest("V"), result.Hash)
	assert.NotContains(t, rel.Lines(), "W")
}

func TestUnterminatedFinalLine(t *testing.T) {
	env := newTestEnv(t, `printf '[+] tail is the CORRECT key!'`, nil, nil)

	result, err := env.manager.execute(context.Background(), newJob("job-d", CrackRequest{Token: signedToken(t, "other")}))
	require.NoError(t, err)
	assert.Equal(t, "tail", result.Secret)
	require.NotNil(t, result.Verified)
	assert.False(t, *result.Verified)
}

func TestRelayFailureDoesNotChangeResult(t *testing.T) {
	script := `
echo "Testing 2 passwords"
echo "[+] def is the CORRECT key!"`

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "results") {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer failing.Close()

	healthy := &recordingRelay{}
	tok := signedToken(t, "def")

	good := newTestEnv(t, script, healthy, nil)
	want, err := good.manager.execute(context.Background(), newJob("good", CrackRequest{Token: tok, Wordlist: strPtr("abc\ndef")}))
	require.NoError(t, err)

	bad := newTestEnv(t, script, relay.NewHTTPRelay(failing.URL, 200*time.Millisecond, nil), nil)
	got, err := bad.manager.execute(context.Background(), newJob("bad", CrackRequest{Token: tok, Wordlist: strPtr("abc\ndef")}))
	require.NoError(t, err)

	assert.Equal(t, want, got)
	assert.Empty(t, bad.transientFiles(t))
}

func TestSpawnFailureReleasesWordlist(t *testing.T) {
	env := newTestEnv(t, "exit 0", nil, nil)
	env.manager.tool.Binary = filepath.Join(t.TempDir(), "no-such-tool")

	_, err := env.manager.execute(context.Background(), newJob("job-e", CrackRequest{Token: "a.b.c", Wordlist: strPtr("abc\n")}))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProcessSpawn)
	assert.Empty(t, env.transientFiles(t))
}

func TestProvisioningFailure(t *testing.T) {
	rel := &recordingRelay{}
	env := newTestEnv(t, "exit 0", rel, nil)
	env.manager.provisioner = wordlist.NewProvisioner(filepath.Join(t.TempDir(), "missing"), nil)

	_, err := env.manager.execute(context.Background(), newJob("job-f", CrackRequest{Token: "a.b.c", Wordlist: strPtr("abc\n")}))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProvisioning)
	assert.Empty(t, rel.Lines())
}

func TestSupersedingTimeout(t *testing.T) {
	env := newTestEnv(t, `
echo "Testing 1000000 passwords"
sleep 30`, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	job := newJob("job-g", CrackRequest{Token: "a.b.c", Wordlist: strPtr("abc\n")})
	start := time.Now()
	_, err := env.manager.execute(ctx, job)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 10*time.Second)
	assert.True(t, job.Snapshot().Terminated)
	assert.Empty(t, env.transientFiles(t))
}

func TestRun(t *testing.T) {
	m := &recordingMetrics{}
	env := newTestEnv(t, `
case "$4" in
  *.*.*) echo "[+] def is the CORRECT key!" ;;
  *) echo "[-] Not a valid JWT" ;;
esac`, nil, m)

	result, err := env.manager.Run(context.Background(), CrackRequest{Token: signedToken(t, "def")})
	require.NoError(t, err)
	assert.Equal(t, "def", result.Secret)

	// a token that is not a JWT still runs; jwt_tool decides
	result, err = env.manager.Run(context.Background(), CrackRequest{Token: "T"})
	require.NoError(t, err)
	assert.Equal(t, &CrackResult{Status: StatusCompleted}, result)

	assert.Equal(t, 2, m.started)
	assert.Equal(t, []string{"found", "not_found"}, m.outcomes)
	assert.Zero(t, env.manager.Registry().Count())
}

func TestSweepDuringJobKeepsWordlist(t *testing.T) {
	rel := &recordingRelay{}
	env := newTestEnv(t, `
sleep 1
if [ -f "$3" ]; then echo "wordlist present"; else echo "wordlist missing"; fi`, rel, nil)

	type outcome struct {
		result *CrackResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		r, err := env.manager.Run(context.Background(), CrackRequest{Token: "T", Wordlist: strPtr("abc\ndef\n")})
		done <- outcome{r, err}
	}()

	time.Sleep(300 * time.Millisecond)
	sweeper := wordlist.NewSweeper(env.wordlistDir, 6*time.Hour, env.provisioner.InUse)
	removed, err := sweeper.Sweep(time.Now().Add(7 * time.Hour))
	require.NoError(t, err)
	assert.Zero(t, removed)

	out := <-done
	require.NoError(t, out.err)
	assert.Equal(t, StatusCompleted, out.result.Status)
	assert.Contains(t, rel.Lines(), "wordlist present")
	assert.NotContains(t, rel.Lines(), "wordlist missing")
	assert.Empty(t, env.transientFiles(t))
}

func TestConcurrentJobsAreIndependent(t *testing.T) {
	env := newTestEnv(t, `
secret=$(tail -n 1 "$3")
echo "Testing candidates"
echo "[+] $secret is the CORRECT key!"`, nil, nil)

	secrets := []string{"alpha", "bravo", "charlie", "delta"}
	tokens := make([]string, len(secrets))
	for i, s := range secrets {
		tokens[i] = signedToken(t, s)
	}
	results := make([]*CrackResult, len(secrets))
	errs := make([]error, len(secrets))

	var wg sync.WaitGroup
	for i, s := range secrets {
		wg.Add(1)
		go func(i int, s string) {
			defer wg.Done()
			results[i], errs[i] = env.manager.Run(context.Background(), CrackRequest{
				Token:    tokens[i],
				Wordlist: strPtr(fmt.Sprintf("wrong\n%s\n", s)),
			})
		}(i, s)
	}
	wg.Wait()

	for i, s := range secrets {
		require.NoError(t, errs[i])
		assert.Equal(t, s, results[i].Secret)
		assert.True(t, *results[i].Verified)
	}
	assert.Empty(t, env.transientFiles(t))
}
