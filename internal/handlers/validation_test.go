package handlers_test

import (
	"testing"

	"github.com/BradenHooton/vigil/internal/handlers"
	"github.com/BradenHooton/vigil/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestValidateRequest(t *testing.T) {
	assert.NoError(t, handlers.ValidateRequest(&models.ForgotPasswordRequest{Email: "admin@example.com"}))

	err := handlers.ValidateRequest(&models.ForgotPasswordRequest{})
	assert.ErrorContains(t, err, "Email")
	assert.ErrorContains(t, err, "required")

	err = handlers.ValidateRequest(&models.ResetPasswordRequest{Token: "t", Password: "short"})
	assert.ErrorContains(t, err, "minimum of 8")
}
