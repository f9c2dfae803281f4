package daemon

// StatusResponse is returned by GET /v1/status.
type StatusResponse struct {
	NodeId         string `json:"node_id"`
	Version        string `json:"version"`
	UptimeSeconds  int    `json:"uptime_seconds"`
	ConnectedPeers int    `json:"connected_peers"`
	ListenAddress  string `json:"listen_address"`
}

// PeerInfo is returned by GET /v1/peers.
type PeerInfo struct {
	NodeId string `json:"node_id"`
}

// ReplicationFactorRequest mirrors announce.ReplicationFactor on the wire:
// either {"kind":"must_reach","min":N} or {"kind":"range","min":N,"max":M}.
type ReplicationFactorRequest struct {
	Kind string `json:"kind"`
	Min  int    `json:"min"`
	Max  int    `json:"max,omitempty"`
}

// AnnounceRequest is the body for POST /v1/announce.
type AnnounceRequest struct {
	RepoId    string                   `json:"repo_id"`
	Factor    ReplicationFactorRequest `json:"factor"`
	Preferred []string                 `json:"preferred,omitempty"`
	Synced    []string                 `json:"synced,omitempty"`
	Unsynced  []string                 `json:"unsynced"`
}

// AnnounceResponse reports the announce.Outcome achieved, flattened for
// JSON: Kind names which Outcome variant fired, the rest are its fields.
type AnnounceResponse struct {
	Kind        string `json:"kind"`
	Preferred   int    `json:"preferred,omitempty"`
	Synced      int    `json:"synced,omitempty"`
	TotalSynced int    `json:"total_synced,omitempty"`
}

// ErrorResponse is returned on failure.
type ErrorResponse struct {
	Error string `json:"error"`
}

// DataResponse wraps a successful response.
type DataResponse struct {
	Data any `json:"data"`
}
