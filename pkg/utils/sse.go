package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrStreamingUnsupported 表示 ResponseWriter 不支持 Flush
var ErrStreamingUnsupported = errors.New("streaming unsupported")

// SSEStream 包装一个Server-Sent Events响应
type SSEStream struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewSSEStream 设置响应头并返回SSE写入器
func NewSSEStream(w http.ResponseWriter) (*SSEStream, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}

	SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &SSEStream{w: w, flusher: flusher}, nil
}

// Event 发送带事件类型的SSE消息
func (s *SSEStream) Event(event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal sse event %s: %w", event, err)
	}

	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// Comment 发送注释行，用作心跳
func (s *SSEStream) Comment(text string) error {
	if _, err := fmt.Fprintf(s.w, ": %s\n\n", text); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// SetupSSEHeaders 设置Server-Sent Events响应头
func SetupSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}
