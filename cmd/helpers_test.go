// File: cmd/helpers_test.go
package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/selfheal/internal/config"
)

const loginStore = `locators:
  login_button:
    strategy: css
    value: "#login-btn"
  username_field:
    strategy: id
    value: username
`

const loginDOM = `<html><body><form>
<input name="username" type="text">
<button data-testid="login" class="btn primary">Log in</button>
</form></body></html>`

// newTestConfig returns the default configuration pointed at a temp
// locator store and report directory.
func newTestConfig(t *testing.T) (*config.Config, string) {
	t.Helper()
	dir := t.TempDir()
	store := filepath.Join(dir, "locators", "login.yaml")
	require.NoError(t, os.MkdirAll(filepath.Dir(store), 0o755))
	require.NoError(t, os.WriteFile(store, []byte(loginStore), 0o644))

	cfg := config.NewDefaultConfig()
	cfg.Locators.Paths = []string{filepath.Dir(store)}
	cfg.SelfHealing.ReportDir = filepath.Join(dir, "reports")
	cfg.Logger.Level = "error"
	return cfg, store
}

// createTempConfig writes a config file and returns its path.
func createTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// executeCommand runs a fresh command tree and returns its output.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return buf.String(), err
}
