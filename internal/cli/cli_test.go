package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/quota_relay/internal/pkg/jwt"
	"github.com/qs3c/quota_relay/internal/pkg/queue"
)

const cliSecret = "cli-test-secret"

func writeConfig(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := fmt.Sprintf("jwt:\n  secret: %s\n  expire_hours: 6\nlog:\n  level: error\n%s", cliSecret, extra)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestTokenCmd(t *testing.T) {
	path := writeConfig(t, "")

	out, err := run(t, "--config", path, "token", "1000")
	require.NoError(t, err)

	claims, err := jwt.ParseToken(strings.TrimSpace(out), cliSecret)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), claims.UserID)
	assert.WithinDuration(t, time.Now().Add(6*time.Hour), claims.ExpiresAt.Time, time.Minute)

	out, err = run(t, "--config", path, "token", "1000", "--hours", "1")
	require.NoError(t, err)
	claims, err = jwt.ParseToken(strings.TrimSpace(out), cliSecret)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt.Time, time.Minute)
}

func TestTokenCmd_InvalidUser(t *testing.T) {
	path := writeConfig(t, "")

	_, err := run(t, "--config", path, "token", "abc")
	assert.Error(t, err)

	_, err = run(t, "--config", path, "token")
	assert.Error(t, err)
}

func TestMissingConfig(t *testing.T) {
	_, err := run(t, "--config", filepath.Join(t.TempDir(), "absent.yaml"), "token", "1")
	assert.Error(t, err)
}

func TestPushCmd(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	path := writeConfig(t, fmt.Sprintf("redis:\n  host: %s\n  port: %s\nqueue:\n  event_queue: test:events\n", mr.Host(), mr.Port()))

	out, err := run(t, "--config", path, "push", "--user", "42", "--chat", "-100", "--name", "alice", "/num 5")
	require.NoError(t, err)
	assert.Contains(t, out, "1 event(s) waiting")

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	env, err := queue.NewQueue(client, "test:events").Pop(context.Background(), time.Second)
	require.NoError(t, err)
	require.NotNil(t, env)
	assert.Equal(t, queue.KindCommand, env.Kind)
	assert.Equal(t, int64(42), env.Command.UserID)
	assert.Equal(t, "/num 5", env.Command.RawText)
	assert.True(t, env.Command.IsGroup())
}

func TestPushCmd_RequiresUserAndChat(t *testing.T) {
	path := writeConfig(t, "")

	_, err := run(t, "--config", path, "push", "/num 5")
	assert.Error(t, err)
}
