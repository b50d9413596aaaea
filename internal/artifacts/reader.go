// Package artifacts reads the JSON and log files the external pipeline leaves
// in the control directory. Missing files are an expected state, not a fault.
package artifacts

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

const (
	DetectionFile = "detect.json"
	DiagnosisFile = "diagnosis.json"
)

var (
	// ErrNotFound reports that an artifact is absent or unusable.
	ErrNotFound = errors.New("artifact not found")
	// ErrInvalid reports that an artifact exists but is not valid JSON or
	// violates its schema. Errors matching ErrInvalid also match ErrNotFound.
	ErrInvalid = errors.New("invalid artifact")
)

type invalidError struct {
	name string
	err  error
}

func (e *invalidError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.name, ErrInvalid, e.err)
}

func (e *invalidError) Unwrap() error { return e.err }

func (e *invalidError) Is(target error) bool {
	return target == ErrInvalid || target == ErrNotFound
}

// LogOptions locates autopsy logs inside the control directory.
type LogOptions struct {
	Dir     string // relative to the control dir; default "autopsy"
	Pattern string // doublestar pattern relative to Dir; default "*"
}

// Reader reads artifacts from one control directory.
type Reader struct {
	dir  string
	logs LogOptions
}

// NewReader creates a Reader rooted at controlDir.
func NewReader(controlDir string, logs LogOptions) *Reader {
	if logs.Dir == "" {
		logs.Dir = "autopsy"
	}
	if logs.Pattern == "" {
		logs.Pattern = "*"
	}
	return &Reader{dir: controlDir, logs: logs}
}

// Dir returns the control directory.
func (r *Reader) Dir() string {
	return r.dir
}

// Detection reads and validates detect.json.
func (r *Reader) Detection() (*DetectionRecord, error) {
	var rec DetectionRecord
	if err := r.decode(DetectionFile, schemaDetection, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Diagnosis reads and validates diagnosis.json.
func (r *Reader) Diagnosis() (*DiagnosisRecord, error) {
	var rec DiagnosisRecord
	if err := r.decode(DiagnosisFile, schemaDiagnosis, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// decode reads name, validates it against the named schema and unmarshals it
// into dest. Error messages carry the file name only, never the full path.
func (r *Reader) decode(name, schemaName string, dest any) error {
	data, err := os.ReadFile(filepath.Join(r.dir, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%s: %w", name, ErrNotFound)
		}
		return &invalidError{name: name, err: errors.New("unreadable")}
	}

	schema, err := schemaFor(schemaName)
	if err != nil {
		return fmt.Errorf("load schema for %s: %w", name, err)
	}

	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return &invalidError{name: name, err: fmt.Errorf("decode: %w", err)}
	}
	if err := schema.Validate(inst); err != nil {
		return &invalidError{name: name, err: err}
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return &invalidError{name: name, err: fmt.Errorf("unmarshal: %w", err)}
	}
	return nil
}
