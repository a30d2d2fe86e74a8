package usecase

import (
	"context"
	"fmt"

	"github.com/rbroggi/communityevents/internal/core/model"
	"github.com/rbroggi/communityevents/internal/core/ports"
	log "github.com/sirupsen/logrus"
)

// NewRoleUpdatedHandler creates the handler syncing roles to authentication claims.
func NewRoleUpdatedHandler(claims ports.ClaimsSetter) *RoleUpdatedHandler {
	return &RoleUpdatedHandler{claims: claims}
}

// RoleUpdatedHandler overwrites the custom claims of a user whenever its role changes.
// Tokens issued before the change keep the old role until they are refreshed.
type RoleUpdatedHandler struct {
	UnimplementedDocumentChangeHandler[model.User]
	claims ports.ClaimsSetter
}

func (h *RoleUpdatedHandler) OnUpdate(ctx context.Context, before, after model.Document[model.User]) error {
	if before.Data.Role == after.Data.Role {
		return nil
	}
	logger := log.WithField("user_id", after.ID).WithField("role", after.Data.Role)
	claims := model.Claims{"role": string(after.Data.Role)}
	if !after.Data.Role.Valid() {
		// the previous role must not outlive the change
		logger.Warn("unknown role, clearing custom claims")
		claims = model.Claims{}
	}
	if err := h.claims.SetCustomClaims(ctx, after.ID, claims); err != nil {
		return fmt.Errorf("error setting claims of user [%s]: %w", after.ID, err)
	}
	logger.Info("custom claims updated")
	return nil
}
