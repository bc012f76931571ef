package httpapi

import (
	"fmt"
	"net/http"

	"go.llib.dev/frameless/pkg/httpkit"

	"plangrid/domain/project"
	"plangrid/domain/team"
)

func (h handlers) projectRoutes(r *httpkit.Router) {
	r.Get("/projects", h.authenticated(h.listProjects))
	r.Post("/projects", h.authenticated(h.createProject))
	r.Put("/projects/:id", h.authenticated(h.updateProject))
	r.Delete("/projects/:id", h.authenticated(h.deleteProject))
	r.Get("/projects/:id/details", h.authenticated(h.projectDetails))
	r.Post("/projects/:id/invite-team", h.authenticated(h.inviteToProject))
	r.Post("/projects/invitations/:token/accept", h.authenticated(h.acceptProjectInvitation))
	r.Post("/teams/create-for-existing-projects", h.authenticated(h.createTeamsForExistingProjects))
}

func (h handlers) listProjects(w http.ResponseWriter, r *http.Request) error {
	ps, err := h.Projects.Accessible(r.Context(), Username(r.Context()))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, ps)
}

func (h handlers) createProject(w http.ResponseWriter, r *http.Request) error {
	var draft project.Project
	if err := decode(r, &draft); err != nil {
		return err
	}
	p, err := h.Projects.Create(r.Context(), Username(r.Context()), draft)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, p)
}

func (h handlers) updateProject(w http.ResponseWriter, r *http.Request) error {
	var patch project.Patch
	if err := decode(r, &patch); err != nil {
		return err
	}
	if _, err := h.Projects.Update(r.Context(), Username(r.Context()), pathParam(r, "id"), patch); err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, Message{Message: "Project updated successfully"})
}

func (h handlers) deleteProject(w http.ResponseWriter, r *http.Request) error {
	if err := h.Projects.Delete(r.Context(), Username(r.Context()), pathParam(r, "id")); err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, Message{Message: "Project deleted successfully"})
}

func (h handlers) projectDetails(w http.ResponseWriter, r *http.Request) error {
	d, err := h.Projects.Details(r.Context(), Username(r.Context()), pathParam(r, "id"))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, d)
}

type InvitationRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

type InvitationReceipt struct {
	Message string `json:"message"`
	Token   string `json:"invitation_token"`
}

func (h handlers) inviteToProject(w http.ResponseWriter, r *http.Request) error {
	var req InvitationRequest
	if err := decode(r, &req); err != nil {
		return err
	}
	role, err := team.ParseRole(req.Role)
	if err != nil {
		return err
	}
	inv, err := h.Projects.Invite(r.Context(), Username(r.Context()), pathParam(r, "id"), req.Email, role)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, InvitationReceipt{
		Message: "Project invitation sent successfully",
		Token:   inv.Token,
	})
}

func (h handlers) acceptProjectInvitation(w http.ResponseWriter, r *http.Request) error {
	if err := h.Projects.AcceptInvitation(r.Context(), Username(r.Context()), pathParam(r, "token")); err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, Message{Message: "Successfully joined the project"})
}

type BackfillResponse struct {
	Success      bool                  `json:"success"`
	Message      string                `json:"message"`
	CreatedTeams []project.CreatedTeam `json:"created_teams"`
	Details      BackfillDetails       `json:"details"`
}

type BackfillDetails struct {
	TotalProjects              int `json:"total_projects"`
	ProjectsWithTeams          int `json:"projects_with_teams"`
	ProjectsWithoutTeamsBefore int `json:"projects_without_teams_before,omitempty"`
	TeamsCreated               int `json:"teams_created,omitempty"`
}

func (h handlers) createTeamsForExistingProjects(w http.ResponseWriter, r *http.Request) error {
	report, err := h.Projects.CreateTeamsForExisting(r.Context(), Username(r.Context()))
	if err != nil {
		return err
	}
	resp := BackfillResponse{
		Success:      true,
		Message:      "All your projects already have teams assigned",
		CreatedTeams: report.CreatedTeams,
		Details: BackfillDetails{
			TotalProjects:     report.TotalProjects,
			ProjectsWithTeams: report.ProjectsWithTeams,
		},
	}
	if n := len(report.CreatedTeams); n > 0 {
		resp.Message = fmt.Sprintf("Created %d team(s) for your projects", n)
		resp.Details.ProjectsWithoutTeamsBefore = report.ProjectsWithoutTeamsBefore
		resp.Details.TeamsCreated = n
	}
	return writeJSON(w, http.StatusOK, resp)
}
