package commands

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zhouzirui/lucid-weaver/backend/internal/credential"
	"github.com/zhouzirui/lucid-weaver/backend/internal/model/dream"
	"github.com/zhouzirui/lucid-weaver/backend/internal/service/ai"
	"github.com/zhouzirui/lucid-weaver/backend/internal/service/ai/aitest"
	chatservice "github.com/zhouzirui/lucid-weaver/backend/internal/service/chat"
	"github.com/zhouzirui/lucid-weaver/backend/internal/service/pipeline"
)

func setupTestEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("WEAVER_DATA_DIR", dir)
	t.Setenv("WEAVER_CONFIG", "")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("API_KEY", "")
	return dir
}

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()

	configPath = ""
	envFile = ""

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestKeySetShowClear(t *testing.T) {
	dir := setupTestEnv(t)

	if _, err := runCmd(t, "key", "set", "  AIzaSyExampleKey1234  "); err != nil {
		t.Fatalf("key set: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "weaver.db")); err != nil {
		t.Fatalf("expected credential file: %v", err)
	}

	out, err := runCmd(t, "key", "show")
	if err != nil {
		t.Fatalf("key show: %v", err)
	}
	if strings.Contains(out, "AIzaSyExampleKey1234") {
		t.Fatalf("key show leaked the key: %q", out)
	}
	if !strings.Contains(out, "AIza") || !strings.Contains(out, "1234") {
		t.Fatalf("expected masked key, got %q", out)
	}

	if _, err := runCmd(t, "key", "clear"); err != nil {
		t.Fatalf("key clear: %v", err)
	}
	out, err = runCmd(t, "key", "show")
	if err != nil {
		t.Fatalf("key show: %v", err)
	}
	if !strings.Contains(out, "no key configured") {
		t.Fatalf("expected empty key, got %q", out)
	}
}

func TestKeySetRejectsBlank(t *testing.T) {
	setupTestEnv(t)

	_, err := runCmd(t, "key", "set", "   ")
	if !errors.Is(err, credential.ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
}

func TestDreamInput(t *testing.T) {
	file := filepath.Join(t.TempDir(), "dream.txt")
	if err := os.WriteFile(file, []byte("a house with endless rooms\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name  string
		args  []string
		file  string
		stdin string
		want  string
		err   error
	}{
		{name: "args", args: []string{"I", "was", "flying"}, want: "I was flying"},
		{name: "file", file: file, want: "a house with endless rooms\n"},
		{name: "stdin", file: "-", stdin: "falling teeth", want: "falling teeth"},
		{name: "nothing", err: errNoDream},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := dreamInput(tc.args, tc.file, strings.NewReader(tc.stdin))
			if !errors.Is(err, tc.err) {
				t.Fatalf("expected err %v, got %v", tc.err, err)
			}
			if got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestSubmitErrorUsesFailureMessage(t *testing.T) {
	failure := &dream.Failure{Kind: dream.FailureUpstream, Message: "Failed to interpret your dream. timeout"}
	err := submitError(failure, errors.New("raw"))
	if err.Error() != failure.Message {
		t.Fatalf("unexpected message %q", err)
	}

	missing := &dream.Failure{Kind: dream.FailureMissingCredential, Message: "Failed to interpret your dream. access credential is missing"}
	err = submitError(missing, &ai.OperationError{Op: ai.OpInterpret, Err: ai.ErrMissingCredential})
	if !strings.Contains(err.Error(), "weaver key set") {
		t.Fatalf("expected key hint, got %q", err)
	}
}

func TestRenderMarkdownPlain(t *testing.T) {
	got := renderMarkdown("# Dream Interpretation\n\nWonder.\n\n", true)
	if got != "# Dream Interpretation\n\nWonder.\n" {
		t.Fatalf("unexpected plain output %q", got)
	}

	styled := renderMarkdown("# Dream Interpretation\n\n**Wonder**", false)
	if !strings.Contains(styled, "Wonder") {
		t.Fatalf("rendered output lost text: %q", styled)
	}
}

type staticCreds string

func (c staticCreds) Current() credential.Credential { return credential.Credential(c) }

func readySession(t *testing.T, gw *aitest.Gateway) *chatservice.Session {
	t.Helper()
	o := pipeline.New(gw, staticCreds("test-key"), pipeline.Options{})
	t.Cleanup(o.Close)

	ctx := context.Background()
	if _, err := o.Submit(ctx, "I was swimming in a dark lake"); err != nil {
		t.Fatalf("Submit err: %v", err)
	}
	session, err := o.Conversation(ctx)
	if err != nil {
		t.Fatalf("Conversation err: %v", err)
	}
	return session
}

func TestChatLoopStreamsReplies(t *testing.T) {
	session := readySession(t, &aitest.Gateway{})

	var out bytes.Buffer
	in := strings.NewReader("\nwhat does the water mean?\nexit\nnever read\n")
	if err := chatLoop(context.Background(), session, in, &out); err != nil {
		t.Fatalf("chatLoop err: %v", err)
	}

	text := out.String()
	if !strings.Contains(text, chatservice.WelcomeText) {
		t.Fatalf("missing welcome: %q", text)
	}
	if !strings.Contains(text, "Water often means emotion.") {
		t.Fatalf("missing reply: %q", text)
	}

	turns, err := session.Transcript(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(turns) != 3 {
		t.Fatalf("expected welcome, question and reply, got %d turns", len(turns))
	}
}

func TestChatLoopShowsApologyOnFailure(t *testing.T) {
	gw := &aitest.Gateway{
		CreateConversationFunc: func(context.Context, credential.Credential, string) (ai.Conversation, error) {
			return &aitest.Conversation{Err: errors.New("upstream down")}, nil
		},
	}
	session := readySession(t, gw)

	var out bytes.Buffer
	if err := chatLoop(context.Background(), session, strings.NewReader("hello\n"), &out); err != nil {
		t.Fatalf("chatLoop err: %v", err)
	}
	if !strings.Contains(out.String(), chatservice.ApologyText) {
		t.Fatalf("expected apology, got %q", out.String())
	}
}
