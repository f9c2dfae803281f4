package daemon

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/shurlinet/radnode/internal/announce"
	"github.com/shurlinet/radnode/internal/gitstore"
	"github.com/shurlinet/radnode/internal/nodeid"
)

// maxRequestBodySize limits JSON request bodies to prevent unbounded
// memory consumption from oversized or malicious payloads.
const maxRequestBodySize = 1 << 20 // 1 MB

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/status", s.handleStatus)
	mux.HandleFunc("GET /v1/peers", s.handlePeers)
	mux.HandleFunc("POST /v1/announce", s.handleAnnounce)
	mux.HandleFunc("POST /v1/shutdown", s.handleShutdown)
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(DataResponse{Data: data})
}

func respondError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: msg})
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(io.LimitReader(r.Body, maxRequestBodySize)).Decode(v)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	rt := s.runtime
	respondJSON(w, http.StatusOK, StatusResponse{
		NodeId:         rt.NodeId().String(),
		Version:        rt.Version(),
		UptimeSeconds:  int(time.Since(rt.StartTime()).Seconds()),
		ConnectedPeers: len(rt.ConnectedPeers()),
		ListenAddress:  rt.ListenAddress(),
	})
}

func (s *Server) handlePeers(w http.ResponseWriter, r *http.Request) {
	peers := s.runtime.ConnectedPeers()
	infos := make([]PeerInfo, len(peers))
	for i, p := range peers {
		infos[i] = PeerInfo{NodeId: p.String()}
	}
	respondJSON(w, http.StatusOK, infos)
}

func (s *Server) handleAnnounce(w http.ResponseWriter, r *http.Request) {
	var req AnnounceRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	repo, err := gitstore.ParseHex(req.RepoId)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid repo_id: "+err.Error())
		return
	}

	factor, err := parseFactor(req.Factor)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	preferred, err := parseNodeIds(req.Preferred)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid preferred node id: "+err.Error())
		return
	}
	synced, err := parseNodeIds(req.Synced)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid synced node id: "+err.Error())
		return
	}
	unsynced, err := parseNodeIds(req.Unsynced)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid unsynced node id: "+err.Error())
		return
	}

	if s.audit != nil {
		s.audit.AnnounceRequested(req.RepoId)
	}

	outcome, err := s.runtime.Announce(r.Context(), repo, factor, preferred, synced, unsynced)
	if err != nil {
		respondError(w, http.StatusConflict, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, outcomeResponse(outcome))
}

func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	if s.audit != nil {
		s.audit.ShutdownRequested()
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "shutting down"})
	s.runtime.Controller().Shutdown()
	close(s.shutdownCh)
}

func parseNodeIds(hexIds []string) ([]nodeid.NodeId, error) {
	out := make([]nodeid.NodeId, len(hexIds))
	for i, h := range hexIds {
		id, err := nodeid.ParseHex(h)
		if err != nil {
			return nil, err
		}
		out[i] = id
	}
	return out, nil
}

func parseFactor(req ReplicationFactorRequest) (announce.ReplicationFactor, error) {
	switch req.Kind {
	case "must_reach":
		return announce.Reach(req.Min), nil
	case "range":
		return announce.Range(req.Min, req.Max), nil
	default:
		return announce.ReplicationFactor{}, errInvalidFactorKind(req.Kind)
	}
}

func outcomeResponse(o announce.Outcome) AnnounceResponse {
	switch v := o.(type) {
	case announce.PreferredNodes:
		return AnnounceResponse{Kind: "preferred_nodes", Preferred: v.Preferred, TotalSynced: v.TotalSynced}
	case announce.MinReplicationFactor:
		return AnnounceResponse{Kind: "min_replication_factor", Preferred: v.Preferred, Synced: v.Synced}
	case announce.MaxReplicationFactor:
		return AnnounceResponse{Kind: "max_replication_factor", Preferred: v.Preferred, Synced: v.Synced}
	default:
		return AnnounceResponse{Kind: "unknown"}
	}
}
