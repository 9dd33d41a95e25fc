package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	chatservice "github.com/zhouzirui/lucid-weaver/backend/internal/service/chat"
)

// chatLoop reads one question per line and streams each reply to out until
// the input ends or the user types exit.
func chatLoop(ctx context.Context, session *chatservice.Session, in io.Reader, out io.Writer) error {
	if welcome, err := session.LastTurn(ctx); err == nil {
		fmt.Fprintf(out, "\n%s %s\n", promptStyle.Render("weaver ›"), welcome.Text)
	}

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprintf(out, "\n%s ", promptStyle.Render("you ›"))
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(line) {
		case "":
			continue
		case "exit", "quit":
			return nil
		}

		if err := chatTurn(ctx, session, line, out); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func chatTurn(ctx context.Context, session *chatservice.Session, text string, out io.Writer) error {
	sr, err := session.Send(ctx, text)
	if err != nil {
		if errors.Is(err, chatservice.ErrSessionClosed) {
			return err
		}
		fmt.Fprintln(out, errorStyle.Render(err.Error()))
		return nil
	}
	defer sr.Close()

	fmt.Fprintf(out, "%s ", promptStyle.Render("weaver ›"))
	var streamed strings.Builder
	for {
		fragment, err := sr.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		streamed.WriteString(fragment)
		fmt.Fprint(out, fragment)
	}

	// 失败的回合只在 transcript 中写入道歉文本，流里不会出现
	last, err := session.LastTurn(ctx)
	if err == nil && last.Text != streamed.String() {
		fmt.Fprint(out, errorStyle.Render(last.Text))
	}
	fmt.Fprintln(out)
	return nil
}
