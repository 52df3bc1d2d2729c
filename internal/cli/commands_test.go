package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/example-author/internal/config"
	"github.com/sakif/example-author/internal/executor"
	"github.com/sakif/example-author/internal/model"
	"github.com/sakif/example-author/internal/remote"
	"github.com/sakif/example-author/internal/server"
)

// scriptedExecutor answers every run with the same result.
type scriptedExecutor struct {
	result executor.Result
}

func (e *scriptedExecutor) Run(ctx context.Context, prog executor.Program) (*executor.Result, error) {
	r := e.result
	return &r, nil
}

func newStore(t *testing.T, exec executor.Executor) string {
	t.Helper()

	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Database.Path = ":memory:"
	cfg.Auth.JWTSecret = "test-secret-at-least-16-chars!!"

	srv, err := server.New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), exec)
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts.URL
}

func register(t *testing.T, base, email string) string {
	t.Helper()
	c := remote.New(base)
	_, err := c.Register(context.Background(), email, "correct horse")
	require.NoError(t, err)
	return c.Token()
}

// execute runs the CLI as token against base.
func execute(t *testing.T, base, token string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("AUTHOR_CLIENT_TOKEN", token)

	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append(args, "--url", base))
	err := cmd.Execute()
	return buf.String(), err
}

func TestCommands_LoginPrintsToken(t *testing.T) {
	base := newStore(t, nil)

	out, err := execute(t, base, "", "login", "--register", "--email", alice, "--password", "correct horse", "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Status string      `json:"status"`
		Data   LoginResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, alice, resp.Data.Email)
	require.NotEmpty(t, resp.Data.Token)

	out, err = execute(t, base, resp.Data.Token, "packages")
	require.NoError(t, err)
	assert.Equal(t, "no packages\n", out)
}

func TestCommands_NotLoggedIn(t *testing.T) {
	base := newStore(t, nil)

	out, err := execute(t, base, "", "packages")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "not logged in")
}

func TestCommands_PushListRun(t *testing.T) {
	exec := &scriptedExecutor{result: executor.Result{Stdout: "2\n"}}
	base := newStore(t, exec)
	token := register(t, base, alice)

	dir := t.TempDir()
	path := filepath.Join(dir, "add.yaml")
	require.NoError(t, WriteFile(path, File{Title: "Add numbers", Code: "print(1 + 1)\n"}))

	out, err := execute(t, base, token, "push", "python", "math", dir)
	require.NoError(t, err, out)
	assert.Contains(t, out, "python/math: 1 file(s), 0 not stored")
	assert.Contains(t, out, "created")

	f, err := ReadFile(path)
	require.NoError(t, err)
	require.Greater(t, f.ID, int64(0), "the new id is written back")
	id := strconv.FormatInt(f.ID, 10)

	// pushing again changes nothing
	out, err = execute(t, base, token, "push", "python", "math", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "unchanged")

	out, err = execute(t, base, token, "list", "python", "math")
	require.NoError(t, err)
	assert.Contains(t, out, "python/math: editing (lock held by you)")
	assert.Contains(t, out, "Add numbers")

	out, err = execute(t, base, token, "run", "python", "math", id)
	require.NoError(t, err, out)
	assert.Contains(t, out, id+` "Add numbers": ok`)
	assert.Contains(t, out, "--- output\n2\n")

	exec.result = executor.Result{
		Stderr:   "Traceback (most recent call last):\n  File \"<string>\", line 1, in <module>\nZeroDivisionError: division by zero\n",
		ExitCode: 1,
	}
	out, err = execute(t, base, token, "run", "python", "math", id)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "  code:1: error: ZeroDivisionError: division by zero")

	out, err = execute(t, base, token, "run", "python", "math", "999")
	require.Error(t, err)
	assert.Contains(t, out, "Error [not_found]")
}

func TestCommands_SecondAuthorIsReadOnly(t *testing.T) {
	base := newStore(t, nil)
	aliceToken := register(t, base, alice)
	bobToken := register(t, base, bob)

	dir := t.TempDir()
	require.NoError(t, WriteFile(filepath.Join(dir, "a.yaml"), File{Title: "Match a word", Code: "import re\n"}))
	_, err := execute(t, base, aliceToken, "push", "python", "re", dir)
	require.NoError(t, err)

	out, err := execute(t, base, bobToken, "list", "python", "re")
	require.NoError(t, err)
	assert.Contains(t, out, "python/re: read-only, locked by alice@example.com")
	assert.Contains(t, out, "Match a word")

	out, err = execute(t, base, bobToken, "push", "python", "re", dir)
	require.Error(t, err)
	assert.Contains(t, out, "Error [read_only]")

	out, err = execute(t, base, bobToken, "packages")
	require.NoError(t, err)
	assert.Contains(t, out, "alice@example.com")

	// after alice lets go, bob's list takes the lock
	_, err = execute(t, base, aliceToken, "list", "python", "re", "--release")
	require.NoError(t, err)
	out, err = execute(t, base, bobToken, "list", "python", "re")
	require.NoError(t, err)
	assert.Contains(t, out, "editing (lock held by you)")
}

func TestCommands_Moderate(t *testing.T) {
	base := newStore(t, nil)
	token := register(t, base, alice)

	dir := t.TempDir()
	require.NoError(t, WriteFile(filepath.Join(dir, "a.yaml"), File{
		Status: model.StatusPendingReview,
		Title:  "Walk a tree",
		Code:   "import os\n",
	}))
	require.NoError(t, WriteFile(filepath.Join(dir, "b.yaml"), File{Title: "Still drafting", Code: "import os\n"}))
	_, err := execute(t, base, token, "push", "python", "os", dir)
	require.NoError(t, err)

	out, err := execute(t, base, token, "moderate", "--status", "pending_review")
	require.NoError(t, err)
	assert.Contains(t, out, "moderation: pending_review")
	assert.Contains(t, out, "python/os")
	assert.Contains(t, out, "Walk a tree")
	assert.NotContains(t, out, "Still drafting")

	out, err = execute(t, base, token, "list", "python", "os", "--status", "in_progress", "--format", "json")
	require.NoError(t, err)
	var resp struct {
		Data ExampleList `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data.Examples, 1)
	assert.Equal(t, "Still drafting", resp.Data.Examples[0].Title)
}
