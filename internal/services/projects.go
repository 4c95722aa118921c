package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/msgcore/msgcore-sub001/internal/auth"
	"github.com/msgcore/msgcore-sub001/internal/db/models"
	"github.com/msgcore/msgcore-sub001/internal/validation"
)

// ProjectService manages projects and their membership
type ProjectService struct {
	projects ProjectStore
	users    UserAccountStore
}

// NewProjectService creates a ProjectService
func NewProjectService(projects ProjectStore, users UserAccountStore) *ProjectService {
	return &ProjectService{projects: projects, users: users}
}

// CreateProjectInput describes a new project. Slug is derived from Name when empty.
type CreateProjectInput struct {
	Name        string  `json:"name"`
	Slug        string  `json:"slug"`
	Description *string `json:"description"`
}

// UpdateProjectInput holds the mutable project fields; nil leaves a field unchanged
type UpdateProjectInput struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

// List returns the projects visible to the principal. A JWT user sees every project
// they belong to with their role; an API key sees only its own project.
func (s *ProjectService) List(ctx context.Context, ac *auth.AuthContext) ([]*models.ProjectWithRole, error) {
	if ac == nil {
		return nil, auth.ValidateProjectAccess(nil, "", "projects.list")
	}

	if ac.AuthType == auth.AuthTypeAPIKey {
		if err := auth.ValidateProjectAccess(ac, ac.Project.ID, "projects.list"); err != nil {
			return nil, err
		}
		project, err := s.projects.GetByID(ctx, ac.Project.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to get project: %w", err)
		}
		if project == nil {
			return []*models.ProjectWithRole{}, nil
		}
		return []*models.ProjectWithRole{{Project: *project}}, nil
	}

	if ac.UserID() == "" {
		return nil, auth.Forbidden("User context required for projects.list")
	}
	projects, err := s.projects.ListForUser(ctx, ac.UserID())
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	return projects, nil
}

// Create makes a project owned by the calling user. API keys cannot create projects.
func (s *ProjectService) Create(ctx context.Context, ac *auth.AuthContext, in CreateProjectInput) (*models.Project, error) {
	if ac == nil {
		return nil, auth.ValidateProjectAccess(nil, "", "projects.create")
	}
	if ac.AuthType != auth.AuthTypeJWT || ac.UserID() == "" {
		return nil, auth.Forbidden("Project creation requires a user token")
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, invalidf("name is required")
	}

	slug := strings.TrimSpace(in.Slug)
	if slug == "" {
		slug = validation.Slugify(name)
	}
	if err := validation.ValidateSlug(slug); err != nil {
		return nil, invalidf("%s", err.Error())
	}

	existing, err := s.projects.GetBySlug(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("failed to check project slug: %w", err)
	}
	if existing != nil {
		return nil, ErrSlugTaken
	}

	project := &models.Project{
		Slug:        slug,
		Name:        name,
		Description: in.Description,
		OwnerID:     ac.UserID(),
	}
	if err := s.projects.CreateProjectWithOwner(ctx, project); err != nil {
		return nil, err
	}
	return project, nil
}

// Get returns one project
func (s *ProjectService) Get(ctx context.Context, ac *auth.AuthContext, projectID string) (*models.Project, error) {
	if err := auth.ValidateProjectAccess(ac, projectID, "projects.get"); err != nil {
		return nil, err
	}
	return s.load(ctx, projectID)
}

// Update changes the project's name or description
func (s *ProjectService) Update(ctx context.Context, ac *auth.AuthContext, projectID string, in UpdateProjectInput) (*models.Project, error) {
	if err := auth.ValidateProjectAccess(ac, projectID, "projects.update"); err != nil {
		return nil, err
	}

	project, err := s.load(ctx, projectID)
	if err != nil {
		return nil, err
	}

	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, invalidf("name cannot be empty")
		}
		project.Name = name
	}
	if in.Description != nil {
		project.Description = in.Description
	}

	if err := s.projects.Update(ctx, project); err != nil {
		return nil, fmt.Errorf("failed to update project: %w", err)
	}
	return project, nil
}

// Delete removes the project and everything scoped to it
func (s *ProjectService) Delete(ctx context.Context, ac *auth.AuthContext, projectID string) error {
	if err := auth.ValidateProjectAccess(ac, projectID, "projects.delete"); err != nil {
		return err
	}
	if _, err := s.load(ctx, projectID); err != nil {
		return err
	}
	if err := s.projects.Delete(ctx, projectID); err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	return nil
}

func (s *ProjectService) load(ctx context.Context, projectID string) (*models.Project, error) {
	project, err := s.projects.GetByID(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	if project == nil {
		return nil, ErrProjectNotFound
	}
	return project, nil
}

// AddMemberInput names the user to add by email
type AddMemberInput struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

// ListMembers returns the project's members with user details
func (s *ProjectService) ListMembers(ctx context.Context, ac *auth.AuthContext, projectID string) ([]*models.ProjectMemberWithUser, error) {
	if err := auth.ValidateProjectAccess(ac, projectID, "members.list"); err != nil {
		return nil, err
	}
	members, err := s.projects.ListMembers(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list project members: %w", err)
	}
	return members, nil
}

// AddMember adds an existing user to the project. The owner role cannot be granted.
func (s *ProjectService) AddMember(ctx context.Context, ac *auth.AuthContext, projectID string, in AddMemberInput) (*models.ProjectMember, error) {
	if err := auth.ValidateProjectAccess(ac, projectID, "members.add"); err != nil {
		return nil, err
	}

	role, err := assignableRole(in.Role)
	if err != nil {
		return nil, err
	}
	email := strings.TrimSpace(strings.ToLower(in.Email))
	if email == "" {
		return nil, invalidf("email is required")
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	existing, err := s.projects.GetMember(ctx, projectID, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get project member: %w", err)
	}
	if existing != nil {
		return nil, ErrAlreadyMember
	}

	member := &models.ProjectMember{
		ProjectID: projectID,
		UserID:    user.ID,
		Role:      string(role),
	}
	if err := s.projects.AddMember(ctx, member); err != nil {
		return nil, err
	}
	return member, nil
}

// UpdateMemberRole changes a member's role. The owner cannot be demoted.
func (s *ProjectService) UpdateMemberRole(ctx context.Context, ac *auth.AuthContext, projectID, userID, role string) error {
	if err := auth.ValidateProjectAccess(ac, projectID, "members.update"); err != nil {
		return err
	}

	newRole, err := assignableRole(role)
	if err != nil {
		return err
	}
	if err := s.protectOwner(ctx, projectID, userID); err != nil {
		return err
	}

	ok, err := s.projects.UpdateMemberRole(ctx, projectID, userID, string(newRole))
	if err != nil {
		return err
	}
	if !ok {
		return ErrMemberNotFound
	}
	return nil
}

// RemoveMember removes a member. The owner cannot be removed.
func (s *ProjectService) RemoveMember(ctx context.Context, ac *auth.AuthContext, projectID, userID string) error {
	if err := auth.ValidateProjectAccess(ac, projectID, "members.remove"); err != nil {
		return err
	}
	if err := s.protectOwner(ctx, projectID, userID); err != nil {
		return err
	}

	ok, err := s.projects.RemoveMember(ctx, projectID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrMemberNotFound
	}
	return nil
}

func (s *ProjectService) protectOwner(ctx context.Context, projectID, userID string) error {
	project, err := s.load(ctx, projectID)
	if err != nil {
		return err
	}
	if project.OwnerID == userID {
		return ErrOwnerProtected
	}
	return nil
}

func assignableRole(role string) (auth.Role, error) {
	r := auth.Role(strings.ToLower(strings.TrimSpace(role)))
	if r == "" {
		return auth.RoleMember, nil
	}
	if !r.Valid() {
		return "", invalidf("invalid role: %s", role)
	}
	if r == auth.RoleOwner {
		return "", invalidf("the owner role cannot be assigned")
	}
	return r, nil
}
