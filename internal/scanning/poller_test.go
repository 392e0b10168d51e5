package scanning

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/zombor/invoice-ocr/internal/invoice"
)

var _ = Describe("Poller", func() {
	var (
		poller   *Poller
		waits    []time.Duration
		states   []PollState
		checks   int
		attempts int
		err      error
	)

	BeforeEach(func() {
		waits = nil
		checks = 0
		states = nil
		poller = NewPoller("test", 10, time.Second)
		poller.Sleep = func(_ context.Context, d time.Duration) error {
			waits = append(waits, d)
			return nil
		}
	})

	JustBeforeEach(func() {
		attempts, err = poller.Run(context.Background(), func(context.Context) (PollState, error) {
			checks++
			if len(states) == 0 {
				return PollRunning, nil
			}
			s := states[0]
			states = states[1:]
			return s, nil
		})
	})

	When("the operation never finishes", func() {
		It("should give up after the maximum attempts", func() {
			Expect(attempts).To(Equal(10))
			Expect(checks).To(Equal(10))
		})

		It("should wait between attempts only", func() {
			Expect(waits).To(HaveLen(9))
			Expect(waits[0]).To(Equal(time.Second))
		})

		It("should return a Timeout adapter error", func() {
			var adapterErr *AdapterError
			Expect(errors.As(err, &adapterErr)).To(BeTrue())
			Expect(adapterErr.Kind).To(Equal(invoice.Timeout))
			Expect(adapterErr.Provider).To(Equal("test"))
		})
	})

	When("the operation succeeds on the third check", func() {
		BeforeEach(func() {
			states = []PollState{PollRunning, PollRunning, PollSucceeded}
		})

		It("should stop polling", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(attempts).To(Equal(3))
			Expect(waits).To(HaveLen(2))
		})
	})

	When("the operation fails", func() {
		BeforeEach(func() {
			states = []PollState{PollFailed}
		})

		It("should return a ServiceRejected error", func() {
			var adapterErr *AdapterError
			Expect(errors.As(err, &adapterErr)).To(BeTrue())
			Expect(adapterErr.Kind).To(Equal(invoice.ServiceRejected))
			Expect(attempts).To(Equal(1))
		})
	})

	When("waiting is interrupted", func() {
		BeforeEach(func() {
			poller.Sleep = func(ctx context.Context, _ time.Duration) error {
				return context.Canceled
			}
		})

		It("should stop after the first check", func() {
			Expect(attempts).To(Equal(1))
			Expect(errors.Is(err, context.Canceled)).To(BeTrue())
		})
	})

	When("defaults are requested", func() {
		It("should use ten attempts one second apart", func() {
			p := NewPoller("x", 0, 0)
			Expect(p.MaxAttempts).To(Equal(10))
			Expect(p.Delay).To(Equal(time.Second))
		})
	})
})
