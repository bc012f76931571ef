package httpapi

import (
	"net/http"

	"go.llib.dev/frameless/pkg/httpkit"

	"plangrid/domain/team"
)

func (h handlers) teamRoutes(r *httpkit.Router) {
	r.Get("/teams", h.authenticated(h.listTeams))
	r.Post("/teams", h.authenticated(h.createTeam))
	r.Get("/teams/:id", h.authenticated(h.showTeam))
	r.Delete("/teams/:id", h.authenticated(h.deleteTeam))
	r.Post("/teams/:id/invite", h.authenticated(h.inviteToTeam))
	r.Get("/teams/:id/members", h.authenticated(h.teamMembers))
	r.Delete("/teams/:id/members/:member", h.authenticated(h.removeTeamMember))
	r.Get("/teams/:id/projects", h.authenticated(h.teamProjects))
	r.Get("/teams/invitations/:token", endpoint(h.showInvitation))
	r.Post("/teams/invitations/:token/accept", h.authenticated(h.acceptTeamInvitation))
}

func (h handlers) listTeams(w http.ResponseWriter, r *http.Request) error {
	ts, err := h.Teams.ForMember(r.Context(), Username(r.Context()))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, ts)
}

type TeamRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (h handlers) createTeam(w http.ResponseWriter, r *http.Request) error {
	var req TeamRequest
	if err := decode(r, &req); err != nil {
		return err
	}
	t, err := h.Teams.Create(r.Context(), Username(r.Context()), req.Name, req.Description)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, t)
}

func (h handlers) showTeam(w http.ResponseWriter, r *http.Request) error {
	t, err := h.Teams.Get(r.Context(), Username(r.Context()), pathParam(r, "id"))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, t)
}

func (h handlers) deleteTeam(w http.ResponseWriter, r *http.Request) error {
	if err := h.Teams.Delete(r.Context(), Username(r.Context()), pathParam(r, "id")); err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, Message{Message: "Team deleted successfully"})
}

func (h handlers) inviteToTeam(w http.ResponseWriter, r *http.Request) error {
	var req InvitationRequest
	if err := decode(r, &req); err != nil {
		return err
	}
	role, err := team.ParseRole(req.Role)
	if err != nil {
		return err
	}
	inv, err := h.Teams.Invite(r.Context(), Username(r.Context()), pathParam(r, "id"), req.Email, role)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, InvitationReceipt{
		Message: "Invitation sent successfully",
		Token:   inv.Token,
	})
}

func (h handlers) teamMembers(w http.ResponseWriter, r *http.Request) error {
	ms, err := h.Teams.Members(r.Context(), Username(r.Context()), pathParam(r, "id"))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, ms)
}

func (h handlers) removeTeamMember(w http.ResponseWriter, r *http.Request) error {
	err := h.Teams.RemoveMember(r.Context(), Username(r.Context()), pathParam(r, "id"), pathParam(r, "member"))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, Message{Message: "Member removed successfully"})
}

func (h handlers) teamProjects(w http.ResponseWriter, r *http.Request) error {
	ps, err := h.Projects.TeamProjects(r.Context(), Username(r.Context()), pathParam(r, "id"))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, ps)
}

func (h handlers) showInvitation(w http.ResponseWriter, r *http.Request) error {
	inv, err := h.Teams.PendingInvitation(r.Context(), pathParam(r, "token"))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, inv)
}

func (h handlers) acceptTeamInvitation(w http.ResponseWriter, r *http.Request) error {
	if err := h.Teams.Accept(r.Context(), Username(r.Context()), pathParam(r, "token")); err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, Message{Message: "Successfully joined the team"})
}
