package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"docportal/internal/chat"
	"docportal/internal/domain"
	"docportal/internal/integrations/portalapi"
	"docportal/internal/session"
	"docportal/internal/usecase"
)

func newSessionCmd() *cobra.Command {
	var (
		configPath    string
		host          string
		baseURL       string
		externalID    string
		accessToken   string
		impersonation string
		verbose       bool
	)

	cmd := &cobra.Command{
		Use:   "session",
		Short: "Open an interactive portal session",
		Long: "Signs in with a phone number, an email address, a journal link or a staff " +
			"impersonation token and reads commands from stdin. Type 'help' for the command list.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			cfg, err := resolveConfig(ctx, configPath, host, baseURL)
			if err != nil {
				return err
			}

			level := slog.LevelWarn
			if verbose {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

			sess := session.NewManager(
				session.WithValidityBuffer(cfg.Brand.ValidityBuffer),
				session.WithRefreshLead(cfg.Brand.RefreshLead),
				session.WithLogger(logger),
			)
			client, err := portalapi.NewClient(cfg.APIBaseURL, sess,
				portalapi.WithHTTPClient(&http.Client{Timeout: cfg.Brand.RequestTimeout}),
				portalapi.WithLogger(logger),
			)
			if err != nil {
				return err
			}

			opts := []usecase.Option{usecase.WithBrand(cfg.Brand), usecase.WithLogger(logger)}
			if externalID != "" || accessToken != "" {
				opts = append(opts, usecase.WithJournalLink(externalID, accessToken))
			}
			p, err := usecase.New(client, sess, opts...)
			if err != nil {
				return err
			}
			defer p.Close()

			sh := newShell(p, cmd.InOrStdin(), cmd.OutOrStdout())
			if impersonation != "" {
				if err := p.BootImpersonation(ctx, impersonation); err != nil {
					sh.notice()
					return err
				}
			}
			return sh.run(ctx)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a portal config file")
	cmd.Flags().StringVar(&host, "host", "", "portal hostname, selects the brand when no config file is given")
	cmd.Flags().StringVar(&baseURL, "api-base-url", "", "backend base URL (overrides config)")
	cmd.Flags().StringVarP(&externalID, "external-id", "e", "", "journal link external id")
	cmd.Flags().StringVarP(&accessToken, "access-token", "t", "", "journal link access token")
	cmd.Flags().StringVar(&impersonation, "impersonation", "", "staff-issued impersonation token")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log debug output to stderr")
	return cmd
}

// shellCommand is one REPL verb. A command whose visible func returns false
// is left out of help and rejected as unknown.
type shellCommand struct {
	usage   string
	run     func(ctx context.Context, args []string) error
	visible func() bool
}

func (c shellCommand) offered() bool { return c.visible == nil || c.visible() }

// shell drives a Portal from line-oriented input.
type shell struct {
	portal   *usecase.Portal
	lines    *bufio.Scanner
	out      io.Writer
	secret   func() (string, error)
	commands map[string]shellCommand
	order    []string
	shown    usecase.Notice
}

func newShell(p *usecase.Portal, in io.Reader, out io.Writer) *shell {
	sh := &shell{portal: p, lines: bufio.NewScanner(in), out: out}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		sh.secret = func() (string, error) {
			b, err := term.ReadPassword(int(f.Fd()))
			fmt.Fprintln(out)
			return string(b), err
		}
	}
	sh.register("phone", "phone <number>", sh.signInWith(domain.ChannelPhone))
	sh.register("email", "email <address>", sh.signInWith(domain.ChannelEmail))
	sh.register("code", "code [otp]", sh.code)
	sh.register("send", "send", func(ctx context.Context, _ []string) error { return p.ResendOTP(ctx) })
	sh.register("resend", "resend", func(ctx context.Context, _ []string) error { return p.ResendOTP(ctx) })
	sh.register("journals", "journals", sh.journals)
	sh.register("open", "open <journal-id>", sh.open)
	sh.register("back", "back", sh.back)
	sh.register("start-over", "start-over", func(context.Context, []string) error { return p.StartOver() })
	sh.register("docs", "docs", sh.docs)
	sh.register("reload", "reload", sh.reload)
	sh.register("view", "view <doc-id>", sh.view)
	sh.register("approve", "approve <doc-id>...", sh.approve)
	sh.hideUnless("approve", p.CanApprove)
	sh.register("chat", "chat", sh.chat)
	sh.register("say", "say <message>", sh.say)
	sh.register("ask", "ask [--doc <doc-id>] <question>", sh.ask)
	sh.register("ask-about", "ask-about <message-id>", sh.askAbout)
	sh.register("helpful", "helpful <message-id>", func(ctx context.Context, args []string) error {
		if len(args) != 1 {
			return errUsage
		}
		return p.MarkHelpful(ctx, args[0])
	})
	sh.register("escalate", "escalate <message-id>", func(ctx context.Context, args []string) error {
		if len(args) != 1 {
			return errUsage
		}
		return p.EscalateToHuman(ctx, args[0])
	})
	sh.register("poll", "poll", func(context.Context, []string) error { return p.StartChatPolling() })
	sh.register("status", "status", sh.status)
	sh.register("sign-out", "sign-out", func(context.Context, []string) error {
		p.SignOut()
		return nil
	})
	return sh
}

var errUsage = errors.New("wrong arguments")

func (sh *shell) register(name, usage string, fn func(ctx context.Context, args []string) error) {
	if sh.commands == nil {
		sh.commands = make(map[string]shellCommand)
	}
	sh.commands[name] = shellCommand{usage: usage, run: fn}
	sh.order = append(sh.order, name)
}

func (sh *shell) hideUnless(name string, visible func() bool) {
	c := sh.commands[name]
	c.visible = visible
	sh.commands[name] = c
}

func (sh *shell) run(ctx context.Context) error {
	sh.status(ctx, nil)
	for {
		fmt.Fprint(sh.out, "> ")
		line, ok := sh.readLine()
		if !ok {
			fmt.Fprintln(sh.out)
			return sh.lines.Err()
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		name, args := fields[0], fields[1:]
		switch name {
		case "quit", "exit":
			return nil
		case "help":
			sh.help()
			continue
		}
		c, ok := sh.commands[name]
		if !ok || !c.offered() {
			fmt.Fprintf(sh.out, "unknown command %q, type 'help'\n", name)
			continue
		}
		if err := c.run(ctx, args); err != nil {
			sh.report(name, c.usage, err)
		}
		sh.notice()
	}
}

func (sh *shell) readLine() (string, bool) {
	if !sh.lines.Scan() {
		return "", false
	}
	return strings.TrimSpace(sh.lines.Text()), true
}

func (sh *shell) help() {
	w := tabwriter.NewWriter(sh.out, 0, 4, 2, ' ', 0)
	for _, name := range sh.order {
		if c := sh.commands[name]; c.offered() {
			fmt.Fprintf(w, "  %s\n", c.usage)
		}
	}
	fmt.Fprintln(w, "  quit")
	w.Flush()
}

func (sh *shell) report(name, usage string, err error) {
	if errors.Is(err, errUsage) {
		fmt.Fprintf(sh.out, "usage: %s\n", usage)
		return
	}
	if code := usecase.CodeOf(err); code != "" {
		fmt.Fprintf(sh.out, "%s failed: %s\n", name, code)
		return
	}
	fmt.Fprintf(sh.out, "%s failed: %v\n", name, err)
}

// notice prints the portal's notice when it changed since the last command.
func (sh *shell) notice() {
	n := sh.portal.Notice()
	if n == sh.shown {
		return
	}
	sh.shown = n
	if n.Kind == usecase.NoticeNone || n.Text == "" {
		return
	}
	fmt.Fprintf(sh.out, "[%s] %s\n", n.Kind, n.Text)
}

func (sh *shell) status(_ context.Context, _ []string) error {
	fmt.Fprintf(sh.out, "mode: %s  stage: %s\n", sh.portal.Mode(), sh.portal.Stage())
	if sh.portal.Mode() == usecase.ModeJournalLink && sh.portal.Stage() == usecase.StageAwaitingOTP {
		fmt.Fprintln(sh.out, "type 'send' to receive a code")
	}
	if id, name := sh.portal.ActiveJournal(); id != "" {
		fmt.Fprintf(sh.out, "journal: %s (%s)\n", name, id)
	}
	if imp := sh.portal.Impersonation(); imp.Active && imp.JournalID != "" {
		access := "approve allowed"
		if imp.ReadOnly {
			access = "read-only"
		}
		fmt.Fprintf(sh.out, "impersonating %s (%s)\n", imp.JournalName, access)
	}
	return nil
}

func (sh *shell) signInWith(channel domain.Channel) func(ctx context.Context, args []string) error {
	return func(ctx context.Context, args []string) error {
		if len(args) == 0 {
			return errUsage
		}
		return sh.portal.RequestOTP(ctx, usecase.IdentifierInput{Channel: channel, Value: strings.Join(args, " ")})
	}
}

func (sh *shell) code(ctx context.Context, args []string) error {
	var code string
	switch {
	case len(args) == 1:
		code = args[0]
	case len(args) == 0 && sh.secret != nil:
		fmt.Fprint(sh.out, "code: ")
		v, err := sh.secret()
		if err != nil {
			return err
		}
		code = v
	default:
		return errUsage
	}
	if err := sh.portal.VerifyOTP(ctx, code); err != nil {
		return err
	}
	switch sh.portal.Stage() {
	case usecase.StageJournalBridge:
		return sh.journals(ctx, nil)
	case usecase.StagePortal:
		return sh.docs(ctx, nil)
	}
	return nil
}

func (sh *shell) journals(_ context.Context, _ []string) error {
	w := tabwriter.NewWriter(sh.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tAPPROVED\t")
	for _, j := range sh.portal.Journals() {
		done := ""
		if j.FullyApproved() {
			done = "done"
		}
		fmt.Fprintf(w, "%s\t%s\t%d/%d\t%s\n", j.ID, j.DisplayName(), j.ApprovedCount, j.DocumentCount, done)
	}
	return w.Flush()
}

func (sh *shell) back(ctx context.Context, _ []string) error {
	if err := sh.portal.BackToJournals(); err != nil {
		return err
	}
	if _, err := sh.portal.FetchJournals(ctx); err != nil {
		return err
	}
	return sh.journals(ctx, nil)
}

func (sh *shell) open(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	if err := sh.portal.SelectJournal(ctx, args[0]); err != nil {
		return err
	}
	return sh.docs(ctx, nil)
}

func (sh *shell) reload(ctx context.Context, _ []string) error {
	if _, err := sh.portal.FetchDocuments(ctx); err != nil {
		return err
	}
	return sh.docs(ctx, nil)
}

func (sh *shell) docs(_ context.Context, _ []string) error {
	view := sh.portal.Views()
	w := tabwriter.NewWriter(sh.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDOCUMENT\tSTATUS\t")
	for _, d := range view.Documents {
		flag := ""
		if d.IsApprovalBlocked && !d.Approved() {
			flag = "blocked"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", d.ID, d.Label(), d.Status, flag)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(sh.out, "%d pending, %d approved\n", len(view.Pending), len(view.Approved))
	if n := len(view.Older); n > 0 {
		fmt.Fprintf(sh.out, "%d older versions kept for reference\n", n)
	}
	return nil
}

func (sh *shell) view(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	url, err := sh.portal.Presign(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(sh.out, url)
	return nil
}

func (sh *shell) approve(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	res, err := sh.portal.Approve(ctx, args, usecase.ConfirmFunc(sh.confirm))
	if err != nil {
		if len(res.Blocked) > 0 {
			fmt.Fprintf(sh.out, "blocked: %s\n", strings.Join(res.Blocked, ", "))
		}
		return err
	}
	if res.Cancelled {
		fmt.Fprintln(sh.out, "cancelled")
		return nil
	}
	fmt.Fprintf(sh.out, "approved: %s\n", strings.Join(res.Approved, ", "))
	return nil
}

func (sh *shell) confirm(_ context.Context, req usecase.ConfirmRequest) (bool, error) {
	if req.All {
		fmt.Fprint(sh.out, "Approve all documents? [y/N] ")
	} else {
		fmt.Fprintf(sh.out, "Approve %s? [y/N] ", strings.Join(req.DocumentIDs, ", "))
	}
	line, ok := sh.readLine()
	if !ok {
		return false, io.ErrUnexpectedEOF
	}
	switch strings.ToLower(line) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

func (sh *shell) chat(ctx context.Context, _ []string) error {
	if _, err := sh.portal.RefreshChat(ctx); err != nil {
		return err
	}
	sh.printMessages()
	return nil
}

func (sh *shell) printMessages() {
	for _, m := range sh.portal.Messages() {
		who := "staff"
		switch {
		case m.MessageType == domain.MessageSystem:
			who = "system"
		case m.MessageType == domain.MessageAIThinking:
			who = "ai (thinking)"
		case m.IsAI():
			who = "ai"
		case m.Inbound:
			who = "you"
		}
		var pills []string
		for _, pill := range chat.Pills(m) {
			pills = append(pills, pill.Label)
		}
		line := fmt.Sprintf("%-8s %s: %s", m.ID, who, m.Body)
		if len(pills) > 0 {
			line += " [" + strings.Join(pills, ", ") + "]"
		}
		fmt.Fprintln(sh.out, line)
	}
}

func (sh *shell) say(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	if _, err := sh.portal.SendChat(ctx, strings.Join(args, " ")); err != nil {
		return err
	}
	sh.printMessages()
	return nil
}

func (sh *shell) ask(ctx context.Context, args []string) error {
	var docID string
	if len(args) >= 2 && args[0] == "--doc" {
		docID, args = args[1], args[2:]
	}
	if len(args) == 0 {
		return errUsage
	}
	answer, err := sh.portal.AskAI(ctx, docID, strings.Join(args, " "))
	if err != nil {
		return err
	}
	fmt.Fprintf(sh.out, "%s ai: %s\n", answer.ID, answer.Body)
	return nil
}

func (sh *shell) askAbout(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	answer, err := sh.portal.AskAIAboutMessage(ctx, "", args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(sh.out, "%s ai: %s\n", answer.ID, answer.Body)
	return nil
}
