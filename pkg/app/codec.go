package app

import (
	"encoding/json"
	"fmt"
)

// OpKind tags the YCSB-style operation family, supplementing the
// distilled spec's plain []byte Op with the concrete shape the original
// workload generator (app/ycsb.rs) drove against the replicated service.
type OpKind string

const (
	OpRead            OpKind = "read"
	OpInsert          OpKind = "insert"
	OpUpdate          OpKind = "update"
	OpReadModifyWrite OpKind = "rmw"
	OpScan            OpKind = "scan"
)

// Op is the decoded form of a Request.Op payload.
type Op struct {
	Kind      OpKind            `json:"kind"`
	Key       string            `json:"key"`
	Fields    map[string][]byte `json:"fields,omitempty"`
	ScanCount int               `json:"scan_count,omitempty"`
}

// Result is the decoded form of an Execute return value.
type Result struct {
	Found   bool                `json:"found"`
	Fields  map[string][]byte   `json:"fields,omitempty"`
	Scanned []map[string][]byte `json:"scanned,omitempty"`
}

// EncodeOp serializes an Op into the opaque bytes Request.Op carries.
func EncodeOp(o Op) ([]byte, error) {
	b, err := json.Marshal(o)
	if err != nil {
		return nil, fmt.Errorf("app: encode op: %w", err)
	}
	return b, nil
}

// DecodeOp is the inverse of EncodeOp.
func DecodeOp(b []byte) (Op, error) {
	var o Op
	if err := json.Unmarshal(b, &o); err != nil {
		return Op{}, fmt.Errorf("app: decode op: %w", err)
	}
	return o, nil
}

// EncodeResult serializes a Result into the bytes Reply.Result carries.
func EncodeResult(r Result) ([]byte, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("app: encode result: %w", err)
	}
	return b, nil
}

// DecodeResult is the inverse of EncodeResult.
func DecodeResult(b []byte) (Result, error) {
	var r Result
	if err := json.Unmarshal(b, &r); err != nil {
		return Result{}, fmt.Errorf("app: decode result: %w", err)
	}
	return r, nil
}

func errUnknownOp(kind OpKind) error {
	return fmt.Errorf("app: unknown op kind %q", kind)
}
