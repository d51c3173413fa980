package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New 建立 root logger, format 為 console 時輸出人類可讀格式
// level 無法解析時退回 info
func New(w io.Writer, level, format string) zerolog.Logger {
	if w == nil {
		w = os.Stdout
	}
	if format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	lv, err := zerolog.ParseLevel(level)
	if err != nil || lv == zerolog.NoLevel {
		lv = zerolog.InfoLevel
	}

	return zerolog.New(w).Level(lv).With().Timestamp().Logger()
}

// Module 回傳帶 module 欄位的子 logger
func Module(l zerolog.Logger, name string) zerolog.Logger {
	return l.With().Str("module", name).Logger()
}
