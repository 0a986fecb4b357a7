package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/aludratest/aludra/internal/config"
	"github.com/aludratest/aludra/internal/driver/cdp"
	"github.com/aludratest/aludra/internal/driver/webdriver"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const testMap = `<uimap>
  <element name="save"><id>form:save</id></element>
  <element name="off"><id>form:off</id></element>
  <element name="help"><label>Help</label></element>
  <element name="submit">
    <alternatives>
      <css>#missing</css>
      <xpath>//button[@id='form:save']</xpath>
    </alternatives>
  </element>
</uimap>`

const testPage = `<html><head><title>Order</title></head><body>
  <form>
    <button id="form:save">Save</button>
    <button id="form:off" disabled>Off</button>
  </form>
  <a href="/help">Help</a>
</body></html>`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// execute runs a fresh root command with args and returns its output.
func execute(t *testing.T, ctx context.Context, args ...string) (string, error) {
	t.Helper()
	cfgFile = ""
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	return out.String(), err
}

func TestVersionFlag(t *testing.T) {
	out, err := execute(t, context.Background(), "--version")
	require.NoError(t, err)
	assert.Equal(t, "aludra version "+Version+"\n", out)
}

func TestConfigFileErrors(t *testing.T) {
	bad := writeFile(t, "aludra.yaml", "driver:\n  kind: telnet\n")
	_, err := execute(t, context.Background(), "--config", bad, "resolve", "--uimap", "unused.xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "driver configuration invalid")

	_, err = execute(t, context.Background(), "--config", filepath.Join(t.TempDir(), "none.yaml"), "resolve", "--uimap", "x.xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to initialize configuration")
}

func TestResolve(t *testing.T) {
	uimapFile := writeFile(t, "map.xml", testMap)

	out, err := execute(t, context.Background(), "resolve", "--uimap", uimapFile, "save", "help", "submit")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Equal(t, []string{
		"save\t-\tcss selector=[id$=\"form:save\"]",
		"help\t-\tlink text=Help",
		"submit\t0\tcss selector=#missing",
		"submit\t1\txpath=//button[@id='form:save']",
	}, lines)

	_, err = execute(t, context.Background(), "resolve", "--uimap", uimapFile, "cancel")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `No UI map element named "cancel"`)
}

func TestResolveHonorsConfiguredIDAffixes(t *testing.T) {
	uimapFile := writeFile(t, "map.xml", testMap)
	cfg := writeFile(t, "aludra.yaml", "locator:\n  id_prefix: \"#\"\n  id_suffix: \"\"\n")

	out, err := execute(t, context.Background(), "--config", cfg, "resolve", "-m", uimapFile, "off")
	require.NoError(t, err)
	assert.Equal(t, "off\t-\tcss selector=#form:off\n", out)
}

func TestProbe(t *testing.T) {
	uimapFile := writeFile(t, "map.xml", testMap)
	page := writeFile(t, "order.html", testPage)

	out, err := execute(t, context.Background(), "probe", "-m", uimapFile, "-p", page, "-t", "50ms", "save", "submit")
	require.NoError(t, err)
	assert.Equal(t, 8, strings.Count(out, "\tok\n"))

	out, err = execute(t, context.Background(), "probe", "-m", uimapFile, "-p", page, "-t", "50ms", "off")
	require.Error(t, err)
	assert.Equal(t, "1 of 4 checks failed", err.Error())
	assert.Contains(t, out, "off\tpresent\tok")
	assert.Contains(t, out, "off\tenabled\tfailed")

	_, err = execute(t, context.Background(), "probe", "-m", uimapFile, "-p", filepath.Join(t.TempDir(), "gone.html"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Cannot load page")
}

func TestProxyCommandRunsUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	out, err := execute(t, ctx, "proxy", "--size", "2")
	require.NoError(t, err)
	addrs := strings.Fields(out)
	require.Len(t, addrs, 2)
	assert.NotEqual(t, addrs[0], addrs[1])
}

func TestNewFactory(t *testing.T) {
	cfg := config.NewDefaultConfig().Driver()
	logger := zap.NewNop()

	f, err := newFactory(cfg, logger, nil)
	require.NoError(t, err)
	assert.IsType(t, &cdp.Factory{}, f)

	cfg.Kind = config.DriverWebDriver
	f, err = newFactory(cfg, logger, nil)
	require.NoError(t, err)
	assert.IsType(t, &webdriver.Factory{}, f)

	cfg.Kind = "telnet"
	_, err = newFactory(cfg, logger, nil)
	assert.Error(t, err)
}

func TestStackStartsProxyPerEndpoint(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.SetDriverEndpoints([]string{"local", "local"})
	cfg.ProxyCfg.Enabled = true

	ctx := context.Background()
	rt, err := newStack(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, rt.proxies)
	assert.Len(t, rt.proxies.Addrs(), 2)
	assert.Equal(t, 0, rt.manager.Len())
	require.NoError(t, rt.shutdown(ctx))
	assert.Empty(t, rt.proxies.Addrs())
}
