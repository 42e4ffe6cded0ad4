// Package logstream implements the typed layer (original spec §4.D) over
// package chain and package store: Stream[T] resolves prevHash, assigns
// ids/timestamps, computes the entry hash, and appends; the integrity
// verifier, VerifyStream in integrity.go, re-reads a stream's files on its
// own.
//
// Three concrete payload shapes are defined here (Claim, Execution,
// Witness) per original §3; Stream is generic over them because the
// append/read/verify mechanics are identical across all three and only the
// payload and its read-predicates differ.
package logstream

import (
	"encoding/json"
	"time"
)

// SchemaVersion is the current `v` field value. Readers reject any other
// value per original §6.2 ("readers must reject unknown versions").
const SchemaVersion = 1

// Header is the common envelope every entry carries, per original §3.
type Header struct {
	ID       string `json:"id"`
	V        int    `json:"v"`
	Ts       string `json:"ts"` // RFC-3339 UTC, millisecond precision
	PrevHash string `json:"prevHash"`
	Hash     string `json:"hash"`
}

// Timestamp parses Ts; callers that need time.Time (correlators, filters)
// use this rather than reparsing the string themselves.
func (h Header) Timestamp() (time.Time, error) {
	return time.Parse(time.RFC3339Nano, h.Ts)
}

// ExecutionOutcome status values, original §3.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePartial = "partial"
	OutcomeBlocked = "blocked"
)

// Closed enum of action types, original §3 ("a closed enum of 23 values").
const (
	ActionFileRead        = "file.read"
	ActionFileWrite       = "file.write"
	ActionFileDelete      = "file.delete"
	ActionFileMove        = "file.move"
	ActionDirList         = "dir.list"
	ActionDirCreate       = "dir.create"
	ActionExecCommand     = "exec.command"
	ActionExecScript      = "exec.script"
	ActionProcessSpawn    = "process.spawn"
	ActionProcessKill     = "process.kill"
	ActionAPICall         = "api.call"
	ActionWebFetch        = "web.fetch"
	ActionWebSearch       = "web.search"
	ActionWebBrowse       = "web.browse"
	ActionMessageSend     = "message.send"
	ActionMessageRead     = "message.read"
	ActionPaymentInitiate = "payment.initiate"
	ActionPaymentApprove  = "payment.approve"
	ActionDataExport      = "data.export"
	ActionDataDelete      = "data.delete"
	ActionCredentialRead  = "credential.read"
	ActionElevatedEnable  = "elevated.enable"
	ActionConfigChange    = "config.change"
)

// Action describes what an execution did.
type Action struct {
	Type   string `json:"type"`
	Target string `json:"target"`
	Detail string `json:"detail,omitempty"`
}

// Context carries the declared motivation for an execution.
type Context struct {
	Goal          string `json:"goal"`
	Trigger       string `json:"trigger"`
	ParentAction  string `json:"parentAction,omitempty"`
}

// Outcome records what actually happened.
type Outcome struct {
	Status     string `json:"status"`
	DurationMs *int64 `json:"durationMs,omitempty"`
	Detail     string `json:"detail,omitempty"`
}

// Risk carries the self- or rule-assessed risk of an execution.
type Risk struct {
	Score       int      `json:"score"`
	Labels      []string `json:"labels,omitempty"`
	AutoFlagged bool     `json:"autoFlagged"`
}

// ExecutionPayload is the payload portion of an Execution entry (ATFEntry
// in the original spec's naming), i.e. everything except Header.
type ExecutionPayload struct {
	Agent   string         `json:"agent"`
	Session string         `json:"session"`
	Action  Action         `json:"action"`
	Context Context        `json:"context"`
	Outcome Outcome        `json:"outcome"`
	Risk    Risk           `json:"risk"`
	Meta    map[string]any `json:"meta,omitempty"`
}

// Execution is a full execution entry: header + payload.
type Execution struct {
	Header
	ExecutionPayload
}

// HashInput implements chain.Hashable: hash over everything except Hash.
func (e *Execution) HashInput() any {
	return map[string]any{
		"id":       e.ID,
		"v":        e.V,
		"ts":       e.Ts,
		"prevHash": e.PrevHash,
		"agent":    e.Agent,
		"session":  e.Session,
		"action":   e.Action,
		"context":  e.Context,
		"outcome":  e.Outcome,
		"risk":     e.Risk,
		"meta":     e.Meta,
	}
}
func (e *Execution) GetHash() string     { return e.Hash }
func (e *Execution) GetPrevHash() string { return e.PrevHash }

// Intent is the claim's declared plan.
type Intent struct {
	PlannedAction    string `json:"plannedAction"`
	PlannedTarget    string `json:"plannedTarget"`
	Goal             string `json:"goal"`
	ExpectedOutcome  string `json:"expectedOutcome"` // success|partial|unknown
	SelfAssessedRisk int    `json:"selfAssessedRisk"`
}

// Constraints are the agent's declared scope limits for a claim.
type Constraints struct {
	WithinScope          bool `json:"withinScope"`
	RequiresElevation    bool `json:"requiresElevation"`
	InvolvesExternalComms bool `json:"involvesExternalComms"`
	InvolvesFinancial    bool `json:"involvesFinancial"`
}

// ClaimExecutionRef optionally links a claim to the execution it preceded.
type ClaimExecutionRef struct {
	ExecutionEntryID string `json:"executionEntryId,omitempty"`
}

// ClaimPayload is the payload portion of a Claim entry.
type ClaimPayload struct {
	Agent       string             `json:"agent"`
	Session     string             `json:"session"`
	Intent      Intent             `json:"intent"`
	Constraints Constraints        `json:"constraints"`
	Execution   *ClaimExecutionRef `json:"execution,omitempty"`
	Meta        map[string]any     `json:"meta,omitempty"`
}

// Claim is a full claim entry: header + payload.
type Claim struct {
	Header
	ClaimPayload
}

func (c *Claim) HashInput() any {
	return map[string]any{
		"id":          c.ID,
		"v":           c.V,
		"ts":          c.Ts,
		"prevHash":    c.PrevHash,
		"agent":       c.Agent,
		"session":     c.Session,
		"intent":      c.Intent,
		"constraints": c.Constraints,
		"execution":   c.Execution,
		"meta":        c.Meta,
	}
}
func (c *Claim) GetHash() string     { return c.Hash }
func (c *Claim) GetPrevHash() string { return c.PrevHash }

// Witness source kinds, original §3.
const (
	SourceFilesystem = "filesystem"
	SourceProcess    = "process"
	SourceNetwork    = "network"
)

// Filesystem witness event types.
const (
	FileCreated  = "file_created"
	FileModified = "file_modified"
	FileDeleted  = "file_deleted"
	FileAccessed = "file_accessed"
)

// Process witness event types.
const (
	ProcessSpawned = "process_spawned"
	ProcessExited  = "process_exited"
)

// Network witness event types.
const (
	ConnectionOpened = "connection_opened"
	ConnectionClosed = "connection_closed"
)

// FileStat carries optional filesystem metadata for a filesystem event.
type FileStat struct {
	SizeBytes         int64  `json:"sizeBytes"`
	Mode              string `json:"mode"`
	Mtime             string `json:"mtime"`
	ContentHashPrefix string `json:"contentHashPrefix,omitempty"`
}

// WitnessEvent is the tagged union described in original §3. Exactly one of
// the source-specific field groups is populated, selected by Type/Source.
type WitnessEvent struct {
	Type string `json:"type"`

	// filesystem
	Path        string    `json:"path,omitempty"`
	ObservedAt  string    `json:"observedAt,omitempty"`
	Stat        *FileStat `json:"stat,omitempty"`

	// process
	Command string `json:"command,omitempty"`
	PID     int    `json:"pid,omitempty"`
	PPID    int    `json:"ppid,omitempty"`

	// network
	RemoteHost string `json:"remoteHost,omitempty"`
	RemotePort int    `json:"remotePort,omitempty"`
	Protocol   string `json:"protocol,omitempty"`
}

// WitnessPayload is the payload portion of a Witness entry.
type WitnessPayload struct {
	Source     string       `json:"source"`
	Correlated bool         `json:"correlated"`
	Event      WitnessEvent `json:"event"`
}

// Witness is a full witness entry: header + payload.
type Witness struct {
	Header
	WitnessPayload
}

func (w *Witness) HashInput() any {
	return map[string]any{
		"id":         w.ID,
		"v":          w.V,
		"ts":         w.Ts,
		"prevHash":   w.PrevHash,
		"source":     w.Source,
		"correlated": w.Correlated,
		"event":      w.Event,
	}
}
func (w *Witness) GetHash() string     { return w.Hash }
func (w *Witness) GetPrevHash() string { return w.PrevHash }

// rawHeader is used to peek at the common header fields (notably V, for
// the unknown-version check) before committing to a concrete payload type.
type rawHeader struct {
	ID string `json:"id"`
	V  int    `json:"v"`
}

func peekVersion(raw json.RawMessage) (int, error) {
	var h rawHeader
	if err := json.Unmarshal(raw, &h); err != nil {
		return 0, err
	}
	return h.V, nil
}
