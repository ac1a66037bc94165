package api

import (
	"github.com/datarhei/rtsp/session"
)

// Session represents an active session
type Session struct {
	ID        string                 `json:"id"`
	Reference string                 `json:"reference"`
	Kind      string                 `json:"kind"`
	Peer      string                 `json:"peer"`
	CreatedAt int64                  `json:"created_at"`
	Extra     map[string]interface{} `json:"extra,omitempty"`
	RxBytes   uint64                 `json:"bytes_rx"`
	TxBytes   uint64                 `json:"bytes_tx"`
	RxBitrate float64                `json:"bandwidth_rx_kbit"` // kbit/s
	TxBitrate float64                `json:"bandwidth_tx_kbit"` // kbit/s
}

func (s *Session) Unmarshal(sess session.Session) {
	s.ID = sess.ID
	s.Reference = sess.Reference
	s.Kind = sess.Kind
	s.Peer = sess.Peer
	s.CreatedAt = sess.CreatedAt.Unix()
	s.Extra = sess.Extra
	s.RxBytes = sess.RxBytes
	s.TxBytes = sess.TxBytes
	s.RxBitrate = sess.RxBitrate / 1024
	s.TxBitrate = sess.TxBitrate / 1024
}

// SessionSummary is a summary of the active sessions and the totals
type SessionSummary struct {
	Active      []Session `json:"active"`
	MaxSessions uint64    `json:"max_sessions"`
	RxBitrate   float64   `json:"bandwidth_rx_kbit"` // kbit/s
	TxBitrate   float64   `json:"bandwidth_tx_kbit"` // kbit/s

	TotalSessions uint64 `json:"total_sessions"`
	TotalRxBytes  uint64 `json:"total_bytes_rx"`
	TotalTxBytes  uint64 `json:"total_bytes_tx"`
}

func (s *SessionSummary) Unmarshal(summary session.Summary) {
	s.Active = make([]Session, len(summary.Active))
	for i, sess := range summary.Active {
		s.Active[i].Unmarshal(sess)
	}

	s.MaxSessions = summary.MaxSessions
	s.RxBitrate = summary.RxBitrate / 1024
	s.TxBitrate = summary.TxBitrate / 1024
	s.TotalSessions = summary.TotalSessions
	s.TotalRxBytes = summary.TotalRxBytes
	s.TotalTxBytes = summary.TotalTxBytes
}
