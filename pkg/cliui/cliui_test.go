package cliui_test

import (
	"bytes"
	"errors"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chatmem/pkg/cliui"
)

var _ = Describe("FormatDuration", func() {
	It("formats sub-second durations in milliseconds", func() {
		Expect(cliui.FormatDuration(12 * time.Millisecond)).To(Equal("12ms"))
	})

	It("formats longer durations in seconds", func() {
		Expect(cliui.FormatDuration(3200 * time.Millisecond)).To(Equal("3.2s"))
	})
})

var _ = Describe("Step", func() {
	It("returns the error of the step", func() {
		var buf bytes.Buffer
		err := cliui.Step(&buf, "connecting", func() error { return errors.New("refused") })
		Expect(err).To(MatchError("refused"))
		Expect(buf.String()).To(ContainSubstring("connecting"))
		Expect(buf.String()).To(ContainSubstring(cliui.FailMark))
	})

	It("ends with the final mark line", func() {
		var buf bytes.Buffer
		Expect(cliui.Step(&buf, "opening storage", func() error {
			time.Sleep(200 * time.Millisecond)
			return nil
		})).To(Succeed())

		lines := strings.Split(buf.String(), "\r")
		last := lines[len(lines)-1]
		Expect(last).To(ContainSubstring(cliui.SuccessMark))
		Expect(last).To(HaveSuffix("\n"))
	})
})

var _ = Describe("Mark", func() {
	It("marks success and failure", func() {
		Expect(cliui.Mark(nil)).To(Equal(cliui.SuccessMark))
		Expect(cliui.Mark(errors.New("boom"))).To(Equal(cliui.FailMark))
	})
})

var _ = Describe("RenderReply", func() {
	It("leaves replies untouched when not writing to a terminal", func() {
		var buf bytes.Buffer
		Expect(cliui.RenderReply(&buf, "**bold**")).To(Equal("**bold**"))
	})
})
