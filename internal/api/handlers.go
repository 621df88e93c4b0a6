package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/orgchat/orgchat/internal/server"
	"github.com/orgchat/orgchat/internal/store"
	"github.com/orgchat/orgchat/internal/types"
)

func (s *App) writeJson(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("json encode", zap.Error(err))
	}
}

func (s *App) errorHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				var panicError error
				switch e := err.(type) {
				case error:
					panicError = e
				default:
					panicError = fmt.Errorf("%v", e)
				}
				s.log.Error("panic in handler", zap.Error(panicError))
				errResp := NewInternalServerError(panicError)
				w.Header().Set("Connection", "close")
				s.writeJson(w, errResp.StatusCode, errResp)
				return
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// authenticate resolves the user_connect frame into a trusted identity.
// With a verifier configured, only the token's claims are trusted; without
// one the frame is taken verbatim, the compatibility behavior inherited
// from the identity collaborator contract.
func (s *App) authenticate(frame *server.ClientFrame) (types.User, error) {
	if s.verifier != nil {
		if frame.Token == "" {
			return types.User{}, errors.New("missing identity token")
		}
		return s.verifier.Verify(frame.Token)
	}

	if frame.UserId == "" || !frame.Role.Valid() {
		return types.User{}, errors.New("invalid connect frame")
	}

	return types.User{
		Id:   frame.UserId,
		Role: frame.Role,
	}, nil
}

func (s *App) serveWs(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("error upgrading connection", zap.Error(err))
		return
	}

	if _, err := s.cs.Connect(conn, s.authenticate); err != nil {
		s.log.Info("websocket handshake rejected", zap.Error(err))
	}
}

type CreateUserRequest struct {
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	Role      types.Role `json:"role"`
	ManagerId string     `json:"managerId"`
}

// createUser provisions a user: allocate the next per-role number, build
// the node and append it to the hierarchy under the given manager.
// Directors become new roots; everyone else needs a manager.
func (s *App) createUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.Name == "" || !req.Role.Valid() {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}
	if req.ManagerId == "" && req.Role != types.RoleDirector {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	n, err := s.counters.NextUserNumber(r.Context(), req.Role)
	if err != nil {
		s.log.Error("error allocating user number", zap.Error(err))
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	node := &types.HierarchyNode{
		Id:       fmt.Sprintf("%s-%d", req.Role.Prefix(), n),
		Name:     req.Name,
		Role:     req.Role,
		Email:    req.Email,
		Children: []*types.HierarchyNode{},
	}

	if err := s.repo.AppendHierarchyChild(r.Context(), req.ManagerId, node); err != nil {
		if errors.Is(err, store.ErrParentNotFound) {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
		s.log.Error("error appending hierarchy node", zap.Error(err))
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, types.User{
		Id:    node.Id,
		Name:  node.Name,
		Role:  node.Role,
		Email: node.Email,
	})
}

func (s *App) getHierarchy(w http.ResponseWriter, r *http.Request) {
	tree, err := s.cs.AnnotatedHierarchy(r.Context())
	if err != nil {
		s.log.Error("error fetching hierarchy", zap.Error(err))
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, tree)
}

func (s *App) health(w http.ResponseWriter, r *http.Request) {
	if err := s.repo.Ping(r.Context()); err != nil {
		errResp := NewServiceUnavailableError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}
	if err := s.counters.Ping(r.Context()); err != nil {
		errResp := NewServiceUnavailableError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, map[string]string{"status": "ok"})
}
