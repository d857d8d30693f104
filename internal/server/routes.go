package server

import (
	"github.com/go-chi/chi/v5"
)

func (s *Server) setupRoutes() {
	r := s.router

	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", s.listSessions)
		r.Post("/", s.createSession)

		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", s.getSession)
			r.Patch("/", s.renameSession)
			r.Delete("/", s.deleteSession)

			r.Get("/model", s.getModelOverride)
			r.Post("/model", s.setModelOverride)
			r.Delete("/model", s.clearModelOverride)

			r.Post("/turns", s.startTurn)
			r.Get("/turns", s.listTurns)
			r.Post("/cancel", s.cancelTurn)

			r.Get("/file_changes", s.listFileChanges)
			r.Get("/terminal", s.listTerminalChunks)
			r.Get("/context", s.listContextItems)

			r.Get("/fs/tree", s.fsTree)
			r.Get("/fs/read", s.fsRead)
			r.Get("/fs/versions", s.fsVersions)
			r.Get("/fs/version/{versionID}", s.fsVersion)
			r.Post("/fs/rollback", s.fsRollback)

			r.Post("/context/pin", s.contextPin)
			r.Post("/context/unpin", s.contextUnpin)
			r.Post("/context/set_pinned_ref", s.contextSetPinnedRef)

			r.Get("/permissions/pending", s.listPendingPermissions)

			r.Get("/events", s.listEvents)

			r.Get("/export.json", s.exportJSON)
			r.Get("/export.md", s.exportMarkdown)
		})
	})

	r.Get("/turns/{turnID}", s.getTurn)
	r.Get("/turns/{turnID}/steps", s.listSteps)

	r.Post("/permissions/{requestID}/resolve", s.resolvePermission)
	r.Get("/permissions/mode", s.getPermissionMode)
	r.Post("/permissions/mode", s.setPermissionMode)

	r.Get("/event", s.streamEvents)

	r.Get("/memory", s.listMemory)
	r.Put("/memory/{key}", s.putMemory)
	r.Delete("/memory/{key}", s.deleteMemory)
}
