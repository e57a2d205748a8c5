// Structure of Server-Side-Events (SSE) Model in Menuboard.

package entity

// Uniquely defines a connected dashboard stream.
// Saved in DB as sse_client:<id> while the stream is open.
type SSEClient struct {
	// Same ID as the broadcast subscriber serving this stream
	ID string `json:"id" redis:"id"`
	// Address of the dashboard tab, as seen by gin
	RemoteAddr string `json:"remote_addr" redis:"remote_addr"`
	// Browser which opened the stream
	UserAgent string `json:"user_agent" redis:"user_agent"`
	// Unix timestamp of the connection
	ConnectedAt int64 `json:"connected_at" redis:"connected_at"`
}

// Snapshot of open dashboard streams.
type SSEStats struct {
	// Streams registered in this process
	Local int `json:"local"`
	// Streams recorded in the presence store across instances, -1 when unknown
	Presence int64 `json:"presence"`
}
