package main

import (
	"bytes"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"docportal/handler"
)

func runCmd(t *testing.T, stdin string, args ...string) string {
	t.Helper()
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute())
	return buf.String()
}

func TestVersionCmd(t *testing.T) {
	out := runCmd(t, "", "version")
	require.Contains(t, out, "portal dev")
	require.Contains(t, out, "commit: none")
}

func TestVersionCmdWithCustomValues(t *testing.T) {
	origVersion, origCommit, origDate := Version, Commit, Date
	Version, Commit, Date = "1.0.0", "abc123", "2026-01-01"
	defer func() { Version, Commit, Date = origVersion, origCommit, origDate }()

	out := runCmd(t, "", "version")
	require.Contains(t, out, "portal 1.0.0")
	require.Contains(t, out, "built: 2026-01-01")
}

func TestRootCmdHelp(t *testing.T) {
	out := runCmd(t, "", "--help")
	for _, sub := range []string{"session", "normalize", "sandbox", "version"} {
		require.Contains(t, out, sub)
	}
}

func TestNormalizeCmd(t *testing.T) {
	out := runCmd(t, "", "normalize", "004512345678")
	require.Contains(t, out, "digits:  4512345678")
	require.Contains(t, out, "e164:    +4512345678")
	require.Contains(t, out, "ok:      true")

	out = runCmd(t, "", "normalize", "--country", "SE", "--local", "070", "123", "45", "67")
	require.Contains(t, out, "e164:    +46701234567")
}

func TestNormalizeCmd_Warning(t *testing.T) {
	out := runCmd(t, "", "normalize", "123")
	require.Contains(t, out, "ok:      false")
	require.Contains(t, out, "warning:")
}

func TestSandboxServeCmd_Help(t *testing.T) {
	out := runCmd(t, "", "sandbox", "serve", "--help")
	require.Contains(t, out, "--addr")
	require.Contains(t, out, "--fixtures")
}

func TestBuildSandbox_BadFixtures(t *testing.T) {
	_, _, err := buildSandbox("does-not-exist.yaml")
	require.Error(t, err)
}

// ---- session ----

func startSandbox(t *testing.T) string {
	t.Helper()
	h, _, err := buildSandbox("")
	require.NoError(t, err)
	srv := httptest.NewServer(handler.NewRouter(h))
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestSessionCmd_IdentifierFlow(t *testing.T) {
	url := startSandbox(t)
	script := strings.Join([]string{
		"phone 12 34 56 78",
		"code 123456",
		"open J-100",
		"approve D-102 D-104",
		"approve D-102",
		"y",
		"say Thank you",
		"back",
		"open J-200",
		"approve D-201",
		"y",
		"back",
		"quit",
	}, "\n")

	out := runCmd(t, script, "session", "--api-base-url", url)
	require.Contains(t, out, "stage: ChooseChannel")
	require.Contains(t, out, "J-200")
	require.Contains(t, out, "Ægtepagt")
	require.Contains(t, out, "3 pending, 0 approved")
	require.Contains(t, out, "blocked: D-104")
	require.Contains(t, out, "approve failed: APPROVAL_BLOCKED")
	require.Contains(t, out, "approved: D-102")
	require.Contains(t, out, "you: Thank you")
	require.Contains(t, out, "approved: D-201")
	require.Regexp(t, `J-200\s+Hansen Holding\s+1/1\s+done`, out)
	require.Regexp(t, `J-100\s+Estate of Hansen\s+1/3\s*\n`, out)
}

func TestSessionCmd_ReadOnlyImpersonation(t *testing.T) {
	url := startSandbox(t)

	out := runCmd(t, "help\napprove D-102\nquit\n", "session", "--api-base-url", url, "--impersonation", "imp-readonly")
	require.Contains(t, out, "stage: Portal")
	require.Contains(t, out, "read-only")
	require.Contains(t, out, "view <doc-id>")
	require.NotContains(t, out, "approve <doc-id>")
	require.Contains(t, out, `unknown command "approve"`)
	require.NotContains(t, out, "approved:")
}

func TestSessionCmd_ApproveOfferedOncePortalIsOpen(t *testing.T) {
	url := startSandbox(t)
	script := strings.Join([]string{
		"help",
		"phone 12 34 56 78",
		"code 123456",
		"open J-100",
		"status",
		"help",
		"quit",
	}, "\n")

	out := runCmd(t, script, "session", "--api-base-url", url)
	before, after, found := strings.Cut(out, "journal: Estate of Hansen (J-100)")
	require.True(t, found)
	require.NotContains(t, before, "approve <doc-id>")
	require.Contains(t, after, "approve <doc-id>")
}

func TestSessionCmd_UnknownCommandAndUsage(t *testing.T) {
	url := startSandbox(t)

	out := runCmd(t, "frobnicate\nopen\nhelp\n", "session", "--api-base-url", url)
	require.Contains(t, out, `unknown command "frobnicate"`)
	require.Contains(t, out, "usage: open <journal-id>")
	require.Contains(t, out, "ask-about <message-id>")
}
