package generation_test

import (
	"context"
	"errors"
	"iter"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chatmem/pkg/generation"
)

type plain struct{}

func (plain) Complete(context.Context, string, generation.Params) (string, error) { return "", nil }
func (plain) Stream(context.Context, string, generation.Params) iter.Seq2[string, error] {
	return func(func(string, error) bool) {}
}
func (plain) Close() error { return nil }

type loading struct {
	plain
	err error
}

func (l loading) Load(context.Context) error { return l.err }

var _ = Describe("Load", func() {
	It("passes generators without a startup check", func() {
		Expect(generation.Load(context.Background(), plain{})).To(Succeed())
	})

	It("passes a successful check", func() {
		Expect(generation.Load(context.Background(), loading{})).To(Succeed())
	})

	It("wraps a failed check in ErrNotLoaded", func() {
		cause := errors.New("connection refused")
		err := generation.Load(context.Background(), loading{err: cause})
		Expect(err).To(MatchError(generation.ErrNotLoaded))
		Expect(err).To(MatchError(cause))
	})
})

var _ = Describe("Fail", func() {
	It("yields the error once", func() {
		var errs []error
		for _, err := range generation.Fail(generation.ErrNotLoaded) {
			errs = append(errs, err)
		}
		Expect(errs).To(ConsistOf(generation.ErrNotLoaded))
	})
})
