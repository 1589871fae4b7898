// Package helpdesk holds the wire-level domain types shared by the sync
// engine: conversations (tickets), messages, users, roles and typing signals.
//
// Field names follow the backend's JSON contract (`_id`, `nama`, `isi_pesan`,
// `sender_id`, ...), so the same structs decode REST snapshots and push-event
// payloads.
package helpdesk
