package api

import (
	"net/http"

	"ppexec/internal/command"
)

func (s *Server) listCommands(w http.ResponseWriter, _ *http.Request) {
	entries := s.exec.Registry().Entries()
	if entries == nil {
		entries = []command.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": entries})
}
