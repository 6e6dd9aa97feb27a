// Package ffi is the C-style ABI boundary described by this module's
// external-interfaces contract: every entry point takes caller-owned,
// little-endian 16-byte UUID buffers and returns an integer status code
// instead of a Go error, with the most recent failure retrievable through a
// process-wide last_error slot. It is a thin marshaling skin over
// internal/monitor; it holds no logic of its own.
package ffi

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"

	"github.com/agentguard/policyguard/internal/monitor"
	"github.com/agentguard/policyguard/internal/policy"
	"github.com/agentguard/policyguard/internal/policyio"
)

// Status is the ABI's integer result code.
type Status int

const (
	StatusSuccess          Status = 0
	StatusInvalidOperation Status = 1
	StatusSerializeError   Status = 2
	StatusNoEntry          Status = 3
	StatusPrivacyBreach    Status = 4
	StatusAlready          Status = 5
)

var lastError struct {
	mu  sync.Mutex
	msg string
}

// LastError returns the most recent failure message recorded by a call into
// this package, mirroring the ABI's last_error(out, out_len) entry point.
func LastError() string {
	lastError.mu.Lock()
	defer lastError.mu.Unlock()
	return lastError.msg
}

func setLastError(msg string) {
	lastError.mu.Lock()
	lastError.msg = msg
	lastError.mu.Unlock()
}

// statusFromKind maps the shared policy.Kind taxonomy onto an ABI status
// code. Kinds with no direct ABI analog (schema/shape/compute errors, I/O,
// duplicate, out-of-bounds, unimplemented) surface as InvalidOperation, the
// catch-all the original's own status enum uses for "the operation as
// requested cannot proceed."
func statusFromKind(k policy.Kind) Status {
	switch k {
	case policy.Already:
		return StatusAlready
	case policy.NoData:
		return StatusNoEntry
	case policy.PrivacyError:
		return StatusPrivacyBreach
	case policy.SerializeError:
		return StatusSerializeError
	default:
		return StatusInvalidOperation
	}
}

// fail records err's message in the last_error slot and returns the ABI
// status it maps to. A caller with no *policy.Error (a plain Go error from
// outside this module's own taxonomy, e.g. a JSON decode failure) gets
// InvalidOperation.
func fail(err error) Status {
	setLastError(err.Error())
	if pe, ok := err.(*policy.Error); ok {
		return statusFromKind(pe.Kind)
	}
	return StatusInvalidOperation
}

// decodeID reads a little-endian 16-byte buffer into a UUID, the wire shape
// spec.md's external-interfaces section assigns to every context, expression,
// plan and dataframe ID crossing the boundary.
func decodeID(buf [16]byte) uuid.UUID {
	var id uuid.UUID
	for i := 0; i < 16; i++ {
		id[i] = buf[15-i]
	}
	return id
}

func encodeID(id uuid.UUID) [16]byte {
	var buf [16]byte
	for i := 0; i < 16; i++ {
		buf[i] = id[15-i]
	}
	return buf
}

// OpenContext opens a new monitor context and writes its ID into outID.
func OpenContext(outID *[16]byte) Status {
	m, err := monitor.Get()
	if err != nil {
		return fail(err)
	}
	id := m.OpenNew(monitor.Options{})
	*outID = encodeID(id)
	return StatusSuccess
}

// DropContext drops the context identified by ctxID.
func DropContext(ctxID [16]byte) Status {
	m, err := monitor.Get()
	if err != nil {
		return fail(err)
	}
	m.Drop(decodeID(ctxID))
	return StatusSuccess
}

// RegisterDataFrame decodes the JSON mirror format at dfJSON, registers it
// in ctxID's context, and writes the new dataframe ID into outID.
func RegisterDataFrame(ctxID [16]byte, dfJSON []byte, outID *[16]byte) Status {
	m, err := monitor.Get()
	if err != nil {
		return fail(err)
	}
	c, err := m.Context(decodeID(ctxID))
	if err != nil {
		return fail(err)
	}
	df, err := policyio.UnmarshalDataFrameJSON(dfJSON)
	if err != nil {
		pe := policy.Newf(policy.SerializeError, "decoding dataframe: %v", err)
		return fail(pe)
	}
	id := c.RegisterPolicyDataFrame(df)
	*outID = encodeID(id)
	return StatusSuccess
}

// Finalize runs the finalize check (C8, §4.7) against dfID within ctxID's
// context. A non-success status other than PrivacyBreach means the ID pair
// itself was invalid, not that the dataframe failed its policy check.
func Finalize(ctxID, dfID [16]byte) Status {
	m, err := monitor.Get()
	if err != nil {
		return fail(err)
	}
	c, err := m.Context(decodeID(ctxID))
	if err != nil {
		return fail(err)
	}
	if err := c.Finalize(decodeID(dfID)); err != nil {
		return fail(err)
	}
	return StatusSuccess
}

// DebugPrint writes dfID's debug rendering as JSON (`{"debug": "..."}`) into
// outJSON, the shape a caller across the ABI boundary can decode without a
// second bespoke wire format.
func DebugPrint(ctxID, dfID [16]byte, outJSON *[]byte) Status {
	m, err := monitor.Get()
	if err != nil {
		return fail(err)
	}
	c, err := m.Context(decodeID(ctxID))
	if err != nil {
		return fail(err)
	}
	s, err := c.DebugPrintDF(decodeID(dfID))
	if err != nil {
		return fail(err)
	}
	body, err := json.Marshal(struct {
		Debug string `json:"debug"`
	}{Debug: s})
	if err != nil {
		pe := policy.Newf(policy.SerializeError, "encoding debug response: %v", err)
		return fail(pe)
	}
	*outJSON = body
	return StatusSuccess
}
