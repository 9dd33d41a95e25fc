package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/zhouzirui/lucid-weaver/backend/internal/app"
	"github.com/zhouzirui/lucid-weaver/backend/internal/config"
	"github.com/zhouzirui/lucid-weaver/backend/internal/credential"
	"github.com/zhouzirui/lucid-weaver/backend/internal/service/ai"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := godotenv.Load(); err != nil {
		log.Printf("[WARN] 无法加载 .env，改用系统环境变量: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("配置加载失败: %v", err)
	}

	mode := flag.String("mode", "", "测试模式: interpret、image、speech 或 chat")
	text := flag.String("text", "", "输入文本（梦境描述、朗读文本或聊天问题）")
	outputPath := flag.String("out", "", "image/speech 模式的输出文件路径 (默认自动生成)")
	timeout := flag.Duration("timeout", 90*time.Second, "请求超时时间")

	flag.Parse()

	switch *mode {
	case "interpret", "image", "speech", "chat":
	default:
		flag.Usage()
		log.Fatal("请通过 -mode 指定 interpret、image、speech 或 chat")
	}
	if strings.TrimSpace(*text) == "" {
		log.Fatal("请通过 -text 提供输入文本")
	}

	a, err := app.New(context.Background(), cfg)
	if err != nil {
		log.Fatalf("初始化失败: %v", err)
	}
	defer a.Close()

	cred := a.Credentials.Current()
	if cred.Empty() {
		log.Fatal("Gemini 凭证未配置，请先执行 weaver key set 或设置 GEMINI_API_KEY")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	switch *mode {
	case "interpret":
		runInterpret(ctx, a.Gateway, cred, *text)
	case "image":
		runImage(ctx, a.Gateway, cred, *text, *outputPath)
	case "speech":
		runSpeech(ctx, a.Gateway, cred, *text, *outputPath)
	case "chat":
		runChat(ctx, a.Gateway, cred, *text)
	}
}

func runInterpret(ctx context.Context, gw *ai.Service, cred credential.Credential, text string) {
	log.Printf("开始解读测试: length=%d", len(text))

	start := time.Now()
	interpretation, err := gw.Interpret(ctx, cred, text)
	if err != nil {
		log.Fatalf("解读失败: %v", err)
	}

	log.Printf("解读成功: 用时=%s 长度=%d", time.Since(start).Round(time.Millisecond), len(interpretation))
	fmt.Println(interpretation)
}

func runImage(ctx context.Context, gw *ai.Service, cred credential.Credential, text, outputPath string) {
	log.Printf("开始图片测试: length=%d", len(text))

	img, err := gw.GenerateImage(ctx, cred, text)
	if err != nil {
		log.Fatalf("图片生成失败: %v", err)
	}

	if outputPath == "" {
		outputPath = fmt.Sprintf("dream-image-%d.jpg", time.Now().Unix())
	}
	if err := os.WriteFile(outputPath, img.Data, 0o644); err != nil {
		log.Fatalf("写入图片失败: %v", err)
	}

	log.Printf("图片生成成功: 输出文件 %s, mime=%s, bytes=%d", outputPath, img.MIMEType, len(img.Data))
}

func runSpeech(ctx context.Context, gw *ai.Service, cred credential.Credential, text, outputPath string) {
	log.Printf("开始朗读测试: length=%d", len(text))

	audio, err := gw.SynthesizeSpeech(ctx, cred, text)
	if err != nil {
		log.Fatalf("朗读合成失败: %v", err)
	}

	if outputPath == "" {
		outputPath = fmt.Sprintf("narration-%d.pcm", time.Now().Unix())
	}
	if err := os.WriteFile(outputPath, audio.Data, 0o644); err != nil {
		log.Fatalf("写入音频文件失败: %v", err)
	}

	seconds := float64(len(audio.Data)) / float64(audio.SampleRate*audio.Channels*2)
	log.Printf("朗读合成成功: 输出文件 %s, 采样率=%d, 声道=%d, 时长=%.1fs", outputPath, audio.SampleRate, audio.Channels, seconds)
}

func runChat(ctx context.Context, gw *ai.Service, cred credential.Credential, text string) {
	conv, err := gw.CreateConversation(ctx, cred, "You are a helpful dream interpretation assistant. Keep answers short.")
	if err != nil {
		log.Fatalf("创建对话失败: %v", err)
	}

	sr, err := conv.SendStream(ctx, text)
	if err != nil {
		log.Fatalf("发送消息失败: %v", err)
	}
	defer sr.Close()

	fragments := 0
	for {
		fragment, err := sr.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			log.Fatalf("流式回复中断: %v", err)
		}
		fragments++
		fmt.Print(fragment)
	}
	fmt.Println()

	log.Printf("对话测试完成: fragments=%d", fragments)
}
