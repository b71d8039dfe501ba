package otp_test

import (
	"testing"
	"time"

	"github.com/frahmantamala/taxfree-console/internal/otp"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestOTP(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "OTP Suite")
}

var _ = Describe("Countdown", func() {
	var start time.Time

	BeforeEach(func() {
		start = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	})

	It("counts down from 300 seconds and expires at zero without server contact", func() {
		c := otp.FromSeconds(300, start)

		Expect(c.Remaining(start)).To(Equal(300 * time.Second))
		Expect(c.Display(start)).To(Equal("5:00"))
		Expect(c.CanVerify(start)).To(BeTrue())

		at299 := start.Add(299 * time.Second)
		Expect(c.Remaining(at299)).To(Equal(time.Second))
		Expect(c.Expired(at299)).To(BeFalse())

		at300 := start.Add(300 * time.Second)
		Expect(c.Remaining(at300)).To(Equal(time.Duration(0)))
		Expect(c.Expired(at300)).To(BeTrue())
		Expect(c.CanVerify(at300)).To(BeFalse())
		Expect(c.Tick(at300)).To(Equal(otp.Tick{Remaining: 0, Display: "0:00", Expired: true}))
	})

	It("rounds partial seconds up", func() {
		c := otp.FromSeconds(60, start)
		Expect(c.Remaining(start.Add(1500 * time.Millisecond))).To(Equal(59 * time.Second))
		Expect(c.Display(start.Add(1500 * time.Millisecond))).To(Equal("0:59"))
	})

	It("falls back to the default lifetime", func() {
		c := otp.Start(0, start)
		Expect(c.Total).To(Equal(otp.DefaultTTL))
	})

	It("treats an unstarted countdown as expired", func() {
		var c otp.Countdown
		Expect(c.Expired(start)).To(BeTrue())
	})
})
