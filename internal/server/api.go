package server

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/ShanpreetSingh/cyber-siege/pkg/blocker"
	"github.com/gorilla/mux"
)

func writeError(err error, w http.ResponseWriter, code int) {
	w.WriteHeader(code)
	fmt.Fprintf(w, "%v, %v", code, http.StatusText(code))
	log.Printf("error: %v\n", err)
}

func writeSuccess(w http.ResponseWriter) {
	res := struct {
		Success bool `json:"success"`
	}{
		Success: true,
	}

	if err := json.NewEncoder(w).Encode(res); err != nil {
		writeError(err, w, http.StatusInternalServerError)
	}
}

func (s *Server) ingestEvent(w http.ResponseWriter, r *http.Request) {
	buf, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(err, w, http.StatusBadRequest)
		return
	}

	var event blocker.AuthEvent
	if err := json.Unmarshal(buf, &event); err != nil {
		writeError(err, w, http.StatusBadRequest)
		return
	}

	res, err := s.blocker.Ingest(event)
	if err != nil {
		writeError(err, w, http.StatusBadRequest)
		return
	}

	out := struct {
		Action string              `json:"action"`
		Entry  *blocker.BlockEntry `json:"entry,omitempty"`
	}{
		Action: res.Action.String(),
	}
	if res.Action != blocker.None {
		out.Entry = &res.Entry
	}

	if err := json.NewEncoder(w).Encode(out); err != nil {
		writeError(err, w, http.StatusInternalServerError)
	}
}

func (s *Server) listBlocks(w http.ResponseWriter, _ *http.Request) {
	if err := json.NewEncoder(w).Encode(s.blocker.BlockedEntries()); err != nil {
		writeError(err, w, http.StatusInternalServerError)
	}
}

func (s *Server) blockedQuery(w http.ResponseWriter, r *http.Request) {
	ip := mux.Vars(r)["ip"]

	blocked, entry := s.blocker.IsBlocked(ip)

	res := struct {
		Blocked bool                `json:"blocked"`
		Entry   *blocker.BlockEntry `json:"entry,omitempty"`
	}{
		Blocked: blocked,
	}
	if blocked {
		res.Entry = &entry
	}

	if err := json.NewEncoder(w).Encode(res); err != nil {
		writeError(err, w, http.StatusInternalServerError)
	}
}

func (s *Server) block(w http.ResponseWriter, r *http.Request) {
	ip := mux.Vars(r)["ip"]

	entry, err := s.blocker.BlockIP(ip)
	if err == blocker.WhitelistedErr || err == blocker.AlreadyBlockedErr {
		writeError(err, w, http.StatusConflict)
		return
	}
	if err != nil {
		writeError(err, w, http.StatusInternalServerError)
		return
	}

	if err := json.NewEncoder(w).Encode(entry); err != nil {
		writeError(err, w, http.StatusInternalServerError)
	}
}

func (s *Server) unblock(w http.ResponseWriter, r *http.Request) {
	ip := mux.Vars(r)["ip"]

	if err := s.blocker.UnblockIP(ip); err != nil {
		if err == blocker.NotBlockedErr {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprintf(w, "%v bad request, %v is not blocked", http.StatusBadRequest, ip)
			return
		}

		writeError(err, w, http.StatusInternalServerError)
		return
	}

	writeSuccess(w)
}

func (s *Server) listSources(w http.ResponseWriter, _ *http.Request) {
	if err := json.NewEncoder(w).Encode(s.blocker.Sources()); err != nil {
		writeError(err, w, http.StatusInternalServerError)
	}
}

func (s *Server) listDecisions(w http.ResponseWriter, _ *http.Request) {
	if err := json.NewEncoder(w).Encode(s.blocker.Decisions()); err != nil {
		writeError(err, w, http.StatusInternalServerError)
	}
}

func (s *Server) getPolicy(w http.ResponseWriter, _ *http.Request) {
	if err := json.NewEncoder(w).Encode(s.blocker.Policy()); err != nil {
		writeError(err, w, http.StatusInternalServerError)
	}
}

func (s *Server) listWhitelist(w http.ResponseWriter, _ *http.Request) {
	if err := json.NewEncoder(w).Encode(s.blocker.Whitelist().Entries()); err != nil {
		writeError(err, w, http.StatusInternalServerError)
	}
}

func (s *Server) addWhitelistEntry(w http.ResponseWriter, r *http.Request) {
	entry := mux.Vars(r)["entry"]

	if err := s.blocker.Whitelist().Add(entry); err != nil {
		writeError(err, w, http.StatusBadRequest)
		return
	}

	writeSuccess(w)
}

func (s *Server) removeWhitelistEntry(w http.ResponseWriter, r *http.Request) {
	entry := mux.Vars(r)["entry"]

	if !s.blocker.Whitelist().Remove(entry) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprintf(w, "%v not found, %v is not whitelisted", http.StatusNotFound, entry)
		return
	}

	writeSuccess(w)
}
