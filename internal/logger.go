package internal

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"
	"yappy/entity"
	"yappy/services"
)

// Logger writes categorized records through slog; warnings and errors are
// also stored in the database when one is set.
type Logger struct {
	category string
	database services.Database
	logger   *slog.Logger
}

func NewLogger(category string, debug bool, database services.Database) *Logger {
	return newLogger(os.Stdout, category, debug, database)
}

func newLogger(out io.Writer, category string, debug bool, database services.Database) *Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	handler := slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})
	return &Logger{
		category: category,
		database: database,
		logger:   slog.New(handler).With(slog.String("category", category)),
	}
}

func (l *Logger) Debug(text string) {
	l.logger.Debug(text)
}

func (l *Logger) Info(text string) {
	l.logger.Info(text)
}

func (l *Logger) Warn(text string) {
	l.logger.Warn(text)
	l.store("warning", text)
}

func (l *Logger) Error(text string, err error) {
	if err != nil {
		l.logger.Error(text, slog.Any("error", err))
		text = text + ": " + err.Error()
	} else {
		l.logger.Error(text)
	}
	l.store("error", text)
}

func (l *Logger) store(level, text string) {
	if l.database == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	message := &entity.LogMessage{
		Time:     time.Now(),
		Level:    level,
		Category: l.category,
		Text:     text,
	}
	if err := l.database.WriteLogMessage(ctx, message); err != nil {
		l.logger.Debug("write log message", slog.Any("error", err))
	}
}
