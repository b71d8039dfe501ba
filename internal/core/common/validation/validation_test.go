package validation_test

import (
	"testing"

	"github.com/frahmantamala/taxfree-console/internal"
	"github.com/frahmantamala/taxfree-console/internal/core/common/validation"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestValidation(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Validation Suite")
}

type overrideForm struct {
	FormID string `json:"form_id" validate:"required"`
	Reason string `json:"reason" validate:"required,min=10"`
	Email  string `json:"email" validate:"omitempty,email"`
}

var _ = Describe("Struct", func() {
	It("passes a valid payload", func() {
		Expect(validation.Struct(overrideForm{FormID: "F-1", Reason: "scan illisible du ticket"})).To(BeNil())
	})

	It("reports every failing field by its json name", func() {
		appErr := validation.Struct(overrideForm{Reason: "court", Email: "nope"})
		Expect(appErr).NotTo(BeNil())
		Expect(appErr.Type).To(Equal(internal.ErrorTypeValidation))

		fields := appErr.FieldErrors()
		Expect(fields).To(HaveKey("form_id"))
		Expect(fields).To(HaveKeyWithValue("reason", "reason doit contenir au moins 10 caractères"))
		Expect(fields).To(HaveKeyWithValue("email", "Adresse email invalide"))
	})
})

var _ = Describe("Var", func() {
	It("checks a single value", func() {
		Expect(validation.Var("code", "123456", "required,len=6,numeric")).To(BeNil())
		appErr := validation.Var("code", "12a", "required,len=6,numeric")
		Expect(appErr).NotTo(BeNil())
		Expect(appErr.FieldErrors()).To(HaveKey("code"))
	})
})

var _ = Describe("UserID", func() {
	It("accepts account uuids and numeric ids", func() {
		Expect(validation.UserID("7c9e6679-7425-40de-944b-e07fc1f90ae7")).To(BeNil())
		Expect(validation.UserID("42")).To(BeNil())
	})

	It("reads anything else as a missing user", func() {
		appErr := validation.UserID("abc")
		Expect(appErr).NotTo(BeNil())
		Expect(appErr.Type).To(Equal(internal.ErrorTypeNotFound))
	})
})
