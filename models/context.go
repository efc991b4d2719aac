package models

import (
	"context"

	"bitbucket.org/easyadvisor/fingov_backend/utils"
)

func usernameOf(ctx context.Context) string {
	name, _ := utils.GetUsernameFromContext(ctx)
	return name
}
