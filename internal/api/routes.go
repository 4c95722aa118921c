package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/msgcore/msgcore-sub001/internal/api/handlers"
	"github.com/msgcore/msgcore-sub001/internal/auth"
	"github.com/msgcore/msgcore-sub001/internal/config"
	"github.com/msgcore/msgcore-sub001/internal/middleware"
)

// Route binds one endpoint to the Operation every guard reads
type Route struct {
	Method  string
	Path    string
	Op      auth.Operation
	Handler gin.HandlerFunc
	// Limit is an extra rate limiter in front of authentication, e.g. for login
	Limit gin.HandlerFunc
}

// routeHandlers groups the handler sets the route table points at
type routeHandlers struct {
	accounts   *handlers.AccountHandlers
	projects   *handlers.ProjectHandlers
	keys       *handlers.APIKeyHandlers
	platforms  *handlers.PlatformHandlers
	identities *handlers.IdentityHandlers
	messages   *handlers.MessageHandlers
	webhooks   *handlers.WebhookHandlers
	audit      *handlers.AuditHandlers

	authLimit gin.HandlerFunc
	sendLimit gin.HandlerFunc
}

func op(name string, minRole auth.Role, scopes ...auth.Scope) auth.Operation {
	return auth.Operation{Name: name, Scopes: scopes, MinRole: minRole}
}

// routeTable lists every /api/v1 endpoint. Paths are relative to the group.
func routeTable(h routeHandlers) []Route {
	const (
		project    = "/projects/:projectId"
		members    = project + "/members"
		keys       = project + "/keys"
		platforms  = project + "/platforms"
		identities = project + "/identities"
		messages   = project + "/messages"
		webhooks   = project + "/webhooks"
		auditLogs  = project + "/audit-logs"
	)

	return []Route{
		// Accounts
		{Method: http.MethodPost, Path: "/auth/signup", Op: auth.Operation{Name: "auth.signup", Public: true}, Handler: h.accounts.SignupHandler(), Limit: h.authLimit},
		{Method: http.MethodPost, Path: "/auth/login", Op: auth.Operation{Name: "auth.login", Public: true}, Handler: h.accounts.LoginHandler(), Limit: h.authLimit},
		{Method: http.MethodGet, Path: "/auth/whoami", Op: auth.Operation{Name: "auth.whoami"}, Handler: h.accounts.WhoamiHandler()},

		// Projects
		{Method: http.MethodGet, Path: "/projects", Op: op("projects.list", "", auth.ScopeProjectsRead), Handler: h.projects.ListProjectsHandler()},
		{Method: http.MethodPost, Path: "/projects", Op: auth.Operation{Name: "projects.create", JWTOnly: true}, Handler: h.projects.CreateProjectHandler()},
		{Method: http.MethodGet, Path: project, Op: op("projects.get", auth.RoleViewer, auth.ScopeProjectsRead), Handler: h.projects.GetProjectHandler()},
		{Method: http.MethodPatch, Path: project, Op: op("projects.update", auth.RoleAdmin, auth.ScopeProjectsWrite), Handler: h.projects.UpdateProjectHandler()},
		{Method: http.MethodDelete, Path: project, Op: op("projects.delete", auth.RoleOwner, auth.ScopeProjectsWrite), Handler: h.projects.DeleteProjectHandler()},

		// Members
		{Method: http.MethodGet, Path: members, Op: op("members.list", auth.RoleViewer, auth.ScopeMembersRead), Handler: h.projects.ListMembersHandler()},
		{Method: http.MethodPost, Path: members, Op: op("members.add", auth.RoleAdmin, auth.ScopeMembersWrite), Handler: h.projects.AddMemberHandler()},
		{Method: http.MethodPatch, Path: members + "/:userId", Op: op("members.update", auth.RoleAdmin, auth.ScopeMembersWrite), Handler: h.projects.UpdateMemberHandler()},
		{Method: http.MethodDelete, Path: members + "/:userId", Op: op("members.remove", auth.RoleAdmin, auth.ScopeMembersWrite), Handler: h.projects.RemoveMemberHandler()},

		// API keys
		{Method: http.MethodGet, Path: keys, Op: op("keys.list", auth.RoleViewer, auth.ScopeKeysRead), Handler: h.keys.ListAPIKeysHandler()},
		{Method: http.MethodPost, Path: keys, Op: op("keys.create", auth.RoleAdmin, auth.ScopeKeysWrite), Handler: h.keys.CreateAPIKeyHandler()},
		{Method: http.MethodDelete, Path: keys + "/:keyId", Op: op("keys.revoke", auth.RoleAdmin, auth.ScopeKeysWrite), Handler: h.keys.RevokeAPIKeyHandler()},
		{Method: http.MethodPost, Path: keys + "/:keyId/roll", Op: op("keys.roll", auth.RoleAdmin, auth.ScopeKeysWrite), Handler: h.keys.RollAPIKeyHandler()},

		// Platforms
		{Method: http.MethodGet, Path: platforms, Op: op("platforms.list", auth.RoleViewer, auth.ScopePlatformsRead), Handler: h.platforms.ListPlatformsHandler()},
		{Method: http.MethodPost, Path: platforms, Op: op("platforms.create", auth.RoleAdmin, auth.ScopePlatformsWrite), Handler: h.platforms.CreatePlatformHandler()},
		{Method: http.MethodGet, Path: platforms + "/:platformId", Op: op("platforms.get", auth.RoleViewer, auth.ScopePlatformsRead), Handler: h.platforms.GetPlatformHandler()},
		{Method: http.MethodPatch, Path: platforms + "/:platformId", Op: op("platforms.update", auth.RoleAdmin, auth.ScopePlatformsWrite), Handler: h.platforms.UpdatePlatformHandler()},
		{Method: http.MethodDelete, Path: platforms + "/:platformId", Op: op("platforms.delete", auth.RoleAdmin, auth.ScopePlatformsWrite), Handler: h.platforms.DeletePlatformHandler()},

		// Identities
		{Method: http.MethodGet, Path: identities, Op: op("identities.list", auth.RoleViewer, auth.ScopeIdentitiesRead), Handler: h.identities.ListIdentitiesHandler()},
		{Method: http.MethodPost, Path: identities, Op: op("identities.create", auth.RoleMember, auth.ScopeIdentitiesWrite), Handler: h.identities.CreateIdentityHandler()},
		{Method: http.MethodGet, Path: identities + "/lookup", Op: op("identities.lookup", auth.RoleViewer, auth.ScopeIdentitiesRead), Handler: h.identities.LookupIdentityHandler()},
		{Method: http.MethodGet, Path: identities + "/:identityId", Op: op("identities.get", auth.RoleViewer, auth.ScopeIdentitiesRead), Handler: h.identities.GetIdentityHandler()},
		{Method: http.MethodPatch, Path: identities + "/:identityId", Op: op("identities.update", auth.RoleMember, auth.ScopeIdentitiesWrite), Handler: h.identities.UpdateIdentityHandler()},
		{Method: http.MethodDelete, Path: identities + "/:identityId", Op: op("identities.delete", auth.RoleMember, auth.ScopeIdentitiesWrite), Handler: h.identities.DeleteIdentityHandler()},
		{Method: http.MethodPost, Path: identities + "/:identityId/aliases", Op: op("identities.aliases.add", auth.RoleMember, auth.ScopeIdentitiesWrite), Handler: h.identities.AddAliasHandler()},
		{Method: http.MethodDelete, Path: identities + "/:identityId/aliases/:aliasId", Op: op("identities.aliases.remove", auth.RoleMember, auth.ScopeIdentitiesWrite), Handler: h.identities.RemoveAliasHandler()},

		// Messages
		{Method: http.MethodGet, Path: messages, Op: op("messages.list", auth.RoleViewer, auth.ScopeMessagesRead), Handler: h.messages.ListMessagesHandler()},
		{Method: http.MethodGet, Path: messages + "/stats", Op: op("messages.stats", auth.RoleViewer, auth.ScopeMessagesRead), Handler: h.messages.MessageStatsHandler()},
		{Method: http.MethodGet, Path: messages + "/sent", Op: op("messages.sent", auth.RoleViewer, auth.ScopeMessagesRead), Handler: h.messages.ListSentHandler()},
		{Method: http.MethodGet, Path: messages + "/status/:jobId", Op: op("messages.status", auth.RoleViewer, auth.ScopeMessagesRead), Handler: h.messages.JobStatusHandler()},
		{Method: http.MethodGet, Path: messages + "/:messageId", Op: op("messages.get", auth.RoleViewer, auth.ScopeMessagesRead), Handler: h.messages.GetMessageHandler()},
		{Method: http.MethodDelete, Path: messages + "/cleanup", Op: op("messages.cleanup", auth.RoleAdmin, auth.ScopeMessagesWrite), Handler: h.messages.CleanupHandler()},
		{Method: http.MethodPost, Path: messages + "/send", Op: op("messages.send", auth.RoleMember, auth.ScopeMessagesWrite), Handler: h.messages.SendMessageHandler(), Limit: h.sendLimit},
		{Method: http.MethodPost, Path: messages + "/delete", Op: op("messages.delete", auth.RoleMember, auth.ScopeMessagesWrite), Handler: h.messages.DeleteMessageHandler(), Limit: h.sendLimit},
		{Method: http.MethodPost, Path: messages + "/react", Op: op("messages.react", auth.RoleMember, auth.ScopeMessagesWrite), Handler: h.messages.ReactHandler(), Limit: h.sendLimit},
		{Method: http.MethodPost, Path: messages + "/unreact", Op: op("messages.unreact", auth.RoleMember, auth.ScopeMessagesWrite), Handler: h.messages.UnreactHandler(), Limit: h.sendLimit},

		// Webhooks
		{Method: http.MethodGet, Path: webhooks, Op: op("webhooks.list", auth.RoleViewer, auth.ScopeWebhooksRead), Handler: h.webhooks.ListWebhooksHandler()},
		{Method: http.MethodPost, Path: webhooks, Op: op("webhooks.create", auth.RoleAdmin, auth.ScopeWebhooksWrite), Handler: h.webhooks.CreateWebhookHandler()},
		{Method: http.MethodGet, Path: webhooks + "/:webhookId", Op: op("webhooks.get", auth.RoleViewer, auth.ScopeWebhooksRead), Handler: h.webhooks.GetWebhookHandler()},
		{Method: http.MethodPatch, Path: webhooks + "/:webhookId", Op: op("webhooks.update", auth.RoleAdmin, auth.ScopeWebhooksWrite), Handler: h.webhooks.UpdateWebhookHandler()},
		{Method: http.MethodDelete, Path: webhooks + "/:webhookId", Op: op("webhooks.delete", auth.RoleAdmin, auth.ScopeWebhooksWrite), Handler: h.webhooks.DeleteWebhookHandler()},

		// Audit trail
		{Method: http.MethodGet, Path: auditLogs, Op: op("audit.list", auth.RoleAdmin, auth.ScopeProjectsRead), Handler: h.audit.ListAuditLogsHandler()},
		{Method: http.MethodGet, Path: auditLogs + "/:logId", Op: op("audit.get", auth.RoleAdmin, auth.ScopeProjectsRead), Handler: h.audit.GetAuditLogHandler()},
	}
}

// guards are the per-route middleware dependencies
type guards struct {
	resolver middleware.CredentialResolver
	projects middleware.ProjectLookup
	recorder middleware.AuditRecorder
	audit    *config.AuditConfig
}

// chain builds the handler chain for one route:
// [limit] → Authenticate → RequireProjectAccess → RequireScopes → [audit] → handler
func (g guards) chain(rt Route) []gin.HandlerFunc {
	chain := make([]gin.HandlerFunc, 0, 6)
	if rt.Limit != nil {
		chain = append(chain, rt.Limit)
	}
	chain = append(chain,
		middleware.Authenticate(g.resolver, rt.Op),
		middleware.RequireProjectAccess(g.projects, rt.Op),
		middleware.RequireScopes(rt.Op),
	)
	if g.recorder != nil && g.audit != nil && g.audit.Enabled && !rt.Op.Public {
		chain = append(chain, middleware.AuditMiddleware(g.recorder, g.audit))
	}
	return append(chain, rt.Handler)
}

// registerRoutes mounts the table on group
func registerRoutes(group *gin.RouterGroup, table []Route, g guards) {
	for _, rt := range table {
		group.Handle(rt.Method, rt.Path, g.chain(rt)...)
	}
}
