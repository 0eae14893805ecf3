package handler

import (
	"net/http"
	"strings"

	"github.com/mmeshcher/cargodesk/internal/model"
)

type createUserRequest struct {
	Username string     `json:"username"`
	Password string     `json:"password"`
	Role     model.Role `json:"role"`
	Country  string     `json:"country"`
	Branch   string     `json:"branch"`
	Email    string     `json:"email"`
	Address  string     `json:"address"`
	Contact  string     `json:"contact"`
}

type passwordRequest struct {
	Password string `json:"password"`
}

// ListUsers возвращает учётные записи, опционально отфильтрованные по ?role=.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	var role *model.Role
	if value := strings.TrimSpace(r.URL.Query().Get("role")); value != "" {
		rr := model.Role(strings.ToUpper(value))
		role = &rr
	}

	accounts, err := h.service.ListAccounts(r.Context(), role)
	if err != nil {
		h.writeError(w, r, "list users", err)
		return
	}
	if accounts == nil {
		accounts = []model.Account{}
	}
	writeJSON(w, http.StatusOK, accounts)
}

// CreateUser создаёт учётную запись от имени текущего администратора.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req createUserRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, "create user", err)
		return
	}

	account, err := h.service.CreateAccount(r.Context(), actor, model.NewAccount{
		Username: req.Username,
		Password: req.Password,
		Role:     model.Role(strings.ToUpper(string(req.Role))),
		Profile: model.Profile{
			Country: req.Country,
			Branch:  req.Branch,
			Email:   req.Email,
			Address: req.Address,
			Contact: req.Contact,
		},
	})
	if err != nil {
		h.writeError(w, r, "create user", err)
		return
	}
	writeJSON(w, http.StatusCreated, account)
}

// DeleteUser удаляет учётную запись.
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	id, err := idParam(r)
	if err != nil {
		h.writeError(w, r, "delete user", err)
		return
	}

	if err := h.service.DeleteAccount(r.Context(), actor, id); err != nil {
		h.writeError(w, r, "delete user", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ActivateUser включает учётную запись.
func (h *Handler) ActivateUser(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, true)
}

// DeactivateUser отключает учётную запись.
func (h *Handler) DeactivateUser(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, false)
}

func (h *Handler) setActive(w http.ResponseWriter, r *http.Request, active bool) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	id, err := idParam(r)
	if err != nil {
		h.writeError(w, r, "set user active", err)
		return
	}

	account, err := h.service.SetAccountActive(r.Context(), actor, id, active)
	if err != nil {
		h.writeError(w, r, "set user active", err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

// ResetPassword задаёт новый пароль учётной записи.
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	id, err := idParam(r)
	if err != nil {
		h.writeError(w, r, "reset password", err)
		return
	}

	var req passwordRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, "reset password", err)
		return
	}

	account, err := h.service.ResetPassword(r.Context(), actor, id, req.Password)
	if err != nil {
		h.writeError(w, r, "reset password", err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

// UpdateProfile применяет частичное обновление профиля.
// Обычный пользователь может менять только свой профиль.
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	id, err := idParam(r)
	if err != nil {
		h.writeError(w, r, "update profile", err)
		return
	}

	var patch model.ProfilePatch
	if err := decodeJSON(r, &patch); err != nil {
		h.writeError(w, r, "update profile", err)
		return
	}

	account, err := h.service.UpdateProfile(r.Context(), actor, id, patch)
	if err != nil {
		h.writeError(w, r, "update profile", err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}
