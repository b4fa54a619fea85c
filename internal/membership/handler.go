// internal/membership/handler.go
package membership

import (
	"context"
	"net/http"

	"github.com/sirupsen/logrus"

	"bookstore/internal/httpx"
)

type Handler struct {
	users http.Handler
}

func NewHandler(service Service, log logrus.FieldLogger) *Handler {
	return &Handler{
		users: httpx.Resource[User, UserInput, UserPatch]{
			Log:    log,
			List:   service.ListUsers,
			Get:    service.GetUser,
			Create: service.CreateUser,
			Update: service.UpdateUser,
			Delete: func(ctx context.Context, sel httpx.IDSelector) (httpx.DeleteResponse, error) {
				n, err := service.DeleteUsers(ctx, sel.Targets(), sel.ID != nil)
				return httpx.DeleteResponse{Deleted: n}, err
			},
		},
	}
}

// HandleUsers serves /api/users.
func (h *Handler) HandleUsers(w http.ResponseWriter, r *http.Request) {
	h.users.ServeHTTP(w, r)
}
