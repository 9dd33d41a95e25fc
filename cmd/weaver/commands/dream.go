package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/zhouzirui/lucid-weaver/backend/internal/model/dream"
	"github.com/zhouzirui/lucid-weaver/backend/internal/service/ai"
	"github.com/zhouzirui/lucid-weaver/backend/internal/service/pipeline"
)

var (
	dreamFile    string
	imageOut     string
	audioOut     string
	chatAfter    bool
	plainOutput  bool
	imageTimeout time.Duration
)

var errNoDream = errors.New("describe your dream as arguments or with --file")

var dreamCmd = &cobra.Command{
	Use:   "dream [text...]",
	Short: "Interpret a dream",
	Long: `Interpret a dream and optionally save its image and narration.

The dream is taken from the arguments, or from --file ("-" reads stdin).
The interpretation is printed as soon as it is ready; the image and the
narration are only requested when an output path is given.`,
	RunE: runDream,
}

func init() {
	dreamCmd.Flags().StringVarP(&dreamFile, "file", "f", "", "read the dream from a file, - for stdin")
	dreamCmd.Flags().StringVar(&imageOut, "image-out", "", "write the generated image to this path")
	dreamCmd.Flags().StringVar(&audioOut, "audio-out", "", "write the narration as raw 16-bit PCM to this path")
	dreamCmd.Flags().BoolVar(&chatAfter, "chat", false, "ask follow-up questions after the interpretation")
	dreamCmd.Flags().BoolVar(&plainOutput, "plain", false, "print markdown without terminal styling")
	dreamCmd.Flags().DurationVar(&imageTimeout, "image-timeout", 2*time.Minute, "how long to wait for the image")

	rootCmd.AddCommand(dreamCmd)
}

func runDream(cmd *cobra.Command, args []string) error {
	if chatAfter && dreamFile == "-" {
		return errors.New("--chat reads questions from stdin and cannot be combined with --file -")
	}
	text, err := dreamInput(args, dreamFile, cmd.InOrStdin())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, mutedStyle.Render("Weaving your dream..."))

	snap, err := a.Pipeline.Submit(ctx, text)
	if err != nil {
		return submitError(snap.Failure, err)
	}

	rec := snap.Record
	fmt.Fprintln(out, titleStyle.Render("Your dream"))
	fmt.Fprintln(out, mutedStyle.Render(rec.Transcription))
	fmt.Fprintln(out)
	fmt.Fprint(out, renderMarkdown(rec.Interpretation, plainOutput))

	if imageOut != "" {
		if err := saveImage(ctx, a.Pipeline, imageOut, imageTimeout, out); err != nil {
			return err
		}
	}
	if audioOut != "" {
		if err := saveNarration(ctx, a.Pipeline, audioOut, out); err != nil {
			return err
		}
	}
	if chatAfter {
		session, err := a.Pipeline.Conversation(ctx)
		if err != nil {
			return fmt.Errorf("start conversation: %w", err)
		}
		return chatLoop(ctx, session, cmd.InOrStdin(), out)
	}
	return nil
}

// dreamInput picks the dream text from --file or the positional arguments.
// Blank text is passed on so the pipeline reports it like any other client.
func dreamInput(args []string, file string, stdin io.Reader) (string, error) {
	switch {
	case file == "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("read dream file: %w", err)
		}
		return string(data), nil
	case len(args) == 0:
		return "", errNoDream
	default:
		return strings.Join(args, " "), nil
	}
}

// submitError turns a failed submission into the message shown to the user.
func submitError(failure *dream.Failure, err error) error {
	switch {
	case errors.Is(err, pipeline.ErrDiscarded):
		return errors.New("interrupted before the interpretation arrived")
	case failure == nil:
		return err
	case errors.Is(err, ai.ErrMissingCredential):
		return fmt.Errorf("%s\nrun `weaver key set <key>` or set GEMINI_API_KEY", failure.Message)
	default:
		return errors.New(failure.Message)
	}
}

func saveImage(ctx context.Context, p *pipeline.Orchestrator, path string, timeout time.Duration, out io.Writer) error {
	fmt.Fprintln(out, mutedStyle.Render("Painting the dream..."))

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	img, err := p.AwaitImage(waitCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("image not ready after %s", timeout)
		}
		return err
	}
	if err := os.WriteFile(path, img.Data, 0o644); err != nil {
		return fmt.Errorf("write image: %w", err)
	}
	fmt.Fprintf(out, "%s image written to %s (%s)\n", successStyle.Render("✓"), path, img.MIMEType)
	return nil
}

func saveNarration(ctx context.Context, p *pipeline.Orchestrator, path string, out io.Writer) error {
	fmt.Fprintln(out, mutedStyle.Render("Recording the narration..."))

	audio, _, err := p.Narration(ctx)
	if err != nil {
		return fmt.Errorf("narration: %w", err)
	}
	if err := os.WriteFile(path, audio.Data, 0o644); err != nil {
		return fmt.Errorf("write narration: %w", err)
	}
	fmt.Fprintf(out, "%s narration written to %s (PCM s16le, %d Hz, %d ch)\n",
		successStyle.Render("✓"), path, audio.SampleRate, audio.Channels)
	return nil
}
