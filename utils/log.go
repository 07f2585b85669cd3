package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"
)

type LogLevel string

const (
	Info  LogLevel = "INFO"
	Warn  LogLevel = "WARN"
	Error LogLevel = "ERROR"
)

// Discord embed 单个字段最长 1024 字
const maxEmbedFieldLength = 1024

type reportField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type reportEmbed struct {
	Title  string              `json:"title"`
	Color  int                 `json:"color"`
	Fields []reportField `json:"fields"`
}

type reportPayload struct {
	Embeds []reportEmbed `json:"embeds"`
}

func levelColor(level LogLevel) int {
	switch level {
	case Info:
		return 3066993 // Green
	case Warn:
		return 15105570 // Orange
	case Error:
		return 15158332 // Red
	default:
		return 3447003 // Blue
	}
}

// Reporter 把运行报告发到 Discord webhook，URL 为空时只写日志。
type Reporter struct {
	webhookURL string
	client     *http.Client
}

func NewReporter(webhookURL string) *Reporter {
	return &Reporter{webhookURL: webhookURL, client: GlobalHTTPClient}
}

func truncateField(s string) string {
	r := []rune(s)
	if len(r) <= maxEmbedFieldLength {
		return s
	}
	return string(r[:maxEmbedFieldLength-3]) + "..."
}

func (r *Reporter) send(ctx context.Context, level LogLevel, module, operation, extraInfo string) error {
	embed := reportEmbed{
		Title: string(level) + " Log",
		Color: levelColor(level),
		Fields: []reportField{
			{Name: "模块", Value: truncateField(module)},
			{Name: "操作", Value: truncateField(operation)},
			{Name: "附加信息", Value: truncateField(extraInfo)},
		},
	}

	body, err := json.Marshal(reportPayload{Embeds: []reportEmbed{embed}})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.webhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("failed to send log to discord, status: %s, body: %s", resp.Status, string(msg))
	}
	return nil
}

func (r *Reporter) report(ctx context.Context, level LogLevel, module, operation, extraInfo string) {
	fields := []zap.Field{zap.String("module", module), zap.String("operation", operation), zap.String("detail", extraInfo)}
	switch level {
	case Error:
		zap.L().Error("report", fields...)
	case Warn:
		zap.L().Warn("report", fields...)
	default:
		zap.L().Info("report", fields...)
	}
	if r == nil || r.webhookURL == "" {
		return
	}
	if err := r.send(ctx, level, module, operation, extraInfo); err != nil {
		zap.L().Warn("failed to deliver report", zap.Error(err))
	}
}

func (r *Reporter) ReportInfo(ctx context.Context, module, operation, extraInfo string) {
	r.report(ctx, Info, module, operation, extraInfo)
}

func (r *Reporter) ReportWarn(ctx context.Context, module, operation, extraInfo string) {
	r.report(ctx, Warn, module, operation, extraInfo)
}

func (r *Reporter) ReportError(ctx context.Context, module, operation, extraInfo string) {
	r.report(ctx, Error, module, operation, extraInfo)
}
