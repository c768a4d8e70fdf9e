package command

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphbank/backoffice/internal/cqrs"
	"github.com/graphbank/backoffice/internal/logging"
	"github.com/graphbank/backoffice/internal/models"
)

func TestCreateUserValidation(t *testing.T) {
	// Validation rejects before any repository access, so nil repos are fine.
	svc := NewUserCommandService(nil, nil, nil, logging.New("user-service"))

	tests := []struct {
		name  string
		cmd   cqrs.CreateUserCommand
		field string
	}{
		{
			name:  "missing name",
			cmd:   cqrs.CreateUserCommand{Email: "jane@example.com", Password: "s3cretpass"},
			field: "name",
		},
		{
			name:  "missing email",
			cmd:   cqrs.CreateUserCommand{Name: "Jane", Password: "s3cretpass"},
			field: "email",
		},
		{
			name:  "missing password",
			cmd:   cqrs.CreateUserCommand{Name: "Jane", Email: "jane@example.com"},
			field: "password",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateUser(context.Background(), tt.cmd)
			var verr *models.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}
