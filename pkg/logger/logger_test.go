package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chatmem/pkg/logger"
)

func decodeLines(buf *bytes.Buffer) []map[string]any {
	var records []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		record := map[string]any{}
		Expect(json.Unmarshal([]byte(line), &record)).To(Succeed(), line)
		records = append(records, record)
	}
	return records
}

type failingHandler struct{}

func (failingHandler) Enabled(context.Context, slog.Level) bool {
	return true
}

func (failingHandler) Handle(context.Context, slog.Record) error {
	return errors.New("disk full")
}

func (h failingHandler) WithAttrs([]slog.Attr) slog.Handler {
	return h
}

func (h failingHandler) WithGroup(string) slog.Handler {
	return h
}

var _ = Describe("New", func() {
	It("writes text at Info level by default", func() {
		var buf bytes.Buffer
		l := logger.New(logger.WithWriter(&buf))
		l.Debug("prompt assembled")
		l.Info("turn committed", "conversation_id", "c1")

		Expect(buf.String()).NotTo(ContainSubstring("prompt assembled"))
		Expect(buf.String()).To(ContainSubstring("turn committed"))
		Expect(buf.String()).To(ContainSubstring("conversation_id=c1"))
	})

	It("includes debug records when asked", func() {
		var buf bytes.Buffer
		logger.New(logger.WithWriter(&buf), logger.WithDebug(true)).Debug("prompt assembled")
		Expect(buf.String()).To(ContainSubstring("prompt assembled"))
	})

	It("writes one JSON object per record", func() {
		var buf bytes.Buffer
		l := logger.New(logger.WithWriter(&buf), logger.WithJSON(true))
		l.Info("turn committed", "memories_added", 2)
		l.With("conversation_id", "c1").WithGroup("stats").Warn("memory", "facts", 1)

		records := decodeLines(&buf)
		Expect(records).To(HaveLen(2))
		Expect(records[0]["msg"]).To(Equal("turn committed"))
		Expect(records[0]["memories_added"]).To(BeNumerically("==", 2))
		Expect(records[1]["conversation_id"]).To(Equal("c1"))
		Expect(records[1]["stats"]).To(HaveKeyWithValue("facts", BeNumerically("==", 1)))
	})

	It("renders pretty output", func() {
		var buf bytes.Buffer
		logger.New(logger.WithWriter(&buf), logger.WithPretty(true)).Info("server listening", "addr", ":8000")
		Expect(buf.String()).To(ContainSubstring("server listening"))
		Expect(buf.String()).To(ContainSubstring(":8000"))
	})

	It("lets the last format option win", func() {
		var buf bytes.Buffer
		logger.New(logger.WithWriter(&buf), logger.WithPretty(true), logger.WithJSON(true)).Info("json wins")
		Expect(decodeLines(&buf)[0]["msg"]).To(Equal("json wins"))
	})

	It("falls back to text when a format is switched off", func() {
		var buf bytes.Buffer
		logger.New(logger.WithWriter(&buf), logger.WithJSON(true), logger.WithJSON(false)).Info("plain")
		Expect(strings.TrimSpace(buf.String())).To(HavePrefix("time="))
	})

	It("copies output to every writer", func() {
		var a, b bytes.Buffer
		logger.New(logger.WithWriters(&a, &b)).Info("copied")
		Expect(a.String()).To(ContainSubstring("copied"))
		Expect(b.String()).To(Equal(a.String()))
	})
})

var _ = Describe("Nop", func() {
	It("is disabled at every level", func() {
		l := logger.Nop()
		for _, level := range []slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelWarn, slog.LevelError} {
			Expect(l.Handler().Enabled(context.Background(), level)).To(BeFalse())
		}
		Expect(func() { l.With("k", "v").WithGroup("g").Error("ignored") }).NotTo(Panic())
	})
})

var _ = Describe("Multi", func() {
	It("sends records to every logger at its own level", func() {
		var terminal, file bytes.Buffer
		l := logger.Multi(
			logger.New(logger.WithWriter(&terminal)),
			logger.New(logger.WithWriter(&file), logger.WithJSON(true), logger.WithDebug(true)),
		)

		l.Debug("prompt assembled")
		l.Info("turn committed")

		Expect(terminal.String()).NotTo(ContainSubstring("prompt assembled"))
		Expect(terminal.String()).To(ContainSubstring("turn committed"))
		Expect(decodeLines(&file)).To(HaveLen(2))
	})

	It("carries attributes and groups to every logger", func() {
		var a, b bytes.Buffer
		l := logger.Multi(
			logger.New(logger.WithWriter(&a), logger.WithJSON(true)),
			logger.New(logger.WithWriter(&b), logger.WithJSON(true)),
		)

		l.With("conversation_id", "c1").WithGroup("turn").Info("committed", "streaming", true)

		for _, buf := range []*bytes.Buffer{&a, &b} {
			record := decodeLines(buf)[0]
			Expect(record["conversation_id"]).To(Equal("c1"))
			Expect(record["turn"]).To(HaveKeyWithValue("streaming", true))
		}
	})

	It("skips nil loggers", func() {
		var buf bytes.Buffer
		l := logger.Multi(nil, logger.New(logger.WithWriter(&buf)), nil)
		l.Info("still logged")
		Expect(buf.String()).To(ContainSubstring("still logged"))
	})

	It("keeps logging after one handler fails", func() {
		var buf bytes.Buffer
		l := logger.Multi(slog.New(failingHandler{}), logger.New(logger.WithWriter(&buf)))

		err := l.Handler().Handle(context.Background(), slog.NewRecord(time.Now(), slog.LevelInfo, "after failure", 0))
		Expect(err).To(MatchError("disk full"))
		Expect(buf.String()).To(ContainSubstring("after failure"))
	})
})

var _ = Describe("OpenFile", func() {
	It("creates missing directories and appends", func() {
		path := filepath.Join(GinkgoT().TempDir(), "logs", "chatmem.log")

		for _, msg := range []string{"first", "second"} {
			f, err := logger.OpenFile(path)
			Expect(err).NotTo(HaveOccurred())
			logger.New(logger.WithWriter(f), logger.WithJSON(true)).Info(msg)
			Expect(f.Close()).To(Succeed())
		}

		data, err := os.ReadFile(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(decodeLines(bytes.NewBuffer(data))).To(HaveLen(2))
	})
})
