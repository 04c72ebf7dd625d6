package clip

import (
	"errors"
	"fmt"
)

// Kind classifies why a clip could not be produced.
type Kind string

const (
	KindValidation     Kind = "validation"
	KindStage          Kind = "stage"
	KindUpload         Kind = "upload"
	KindInfrastructure Kind = "infrastructure"
)

// Stage names the pipeline step a failure is attributed to.
type Stage string

const (
	StageValidation Stage = "validation"
	StageSlice      Stage = "slice"
	StageCompose    Stage = "compose"
	StageUpload     Stage = "upload"
	StageInternal   Stage = "internal"
)

// Failure is the terminal Failed(stage, reason) state of a generation.
// Reason is the caller-facing message; Err, when set, is the underlying
// cause and is only used for logging and errors.As.
type Failure struct {
	Kind   Kind
	Stage  Stage
	Reason string
	Err    error
}

func (f *Failure) Error() string {
	return f.Reason
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// AsFailure returns err as a *Failure. Errors that are not already failures
// are classified as infrastructure faults.
func AsFailure(err error) *Failure {
	if err == nil {
		return nil
	}
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	return infrastructureFailure(err)
}

func invalid(format string, args ...any) *Failure {
	return &Failure{
		Kind:   KindValidation,
		Stage:  StageValidation,
		Reason: fmt.Sprintf(format, args...),
	}
}

func infrastructureFailure(err error) *Failure {
	return &Failure{
		Kind:   KindInfrastructure,
		Stage:  StageInternal,
		Reason: err.Error(),
		Err:    err,
	}
}
