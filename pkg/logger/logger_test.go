package logger_test

import (
	"context"
	"testing"

	"github.com/frahmantamala/taxfree-console/pkg/logger"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestLogger(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Logger Suite")
}

var _ = Describe("Context logger", func() {
	It("should fall back to the process logger", func() {
		Expect(logger.From(context.Background())).To(BeIdenticalTo(logger.LoggerWrapper()))
	})

	It("should bind fields to a derived logger", func() {
		ctx := logger.With(context.Background(), "session_id", "01J0SESSION")
		Expect(logger.From(ctx)).NotTo(BeIdenticalTo(logger.LoggerWrapper()))
	})

	It("should leave the context alone when every value is empty", func() {
		ctx := context.Background()
		Expect(logger.With(ctx, "user_id", "")).To(BeIdenticalTo(ctx))
	})
})
