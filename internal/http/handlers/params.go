package handlers

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	errs "github.com/yungbote/neurobridge-tutor/internal/pkg/errors"
	"github.com/yungbote/neurobridge-tutor/internal/platform/ctxutil"
)

func currentUser(c *gin.Context) (uuid.UUID, error) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		return uuid.Nil, fmt.Errorf("%w: no authenticated user", errs.ErrInvalidArgument)
	}
	return rd.UserID, nil
}

func pathID(c *gin.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s is not a valid id", errs.ErrInvalidArgument, name)
	}
	return id, nil
}

// userAndID resolves the caller and the :id path parameter.
func userAndID(c *gin.Context) (uuid.UUID, uuid.UUID, error) {
	user, err := currentUser(c)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	return user, id, nil
}
