package dag

import (
	"errors"

	"github.com/orneryd/vcsfs/internal/vcserr"
)

// Sentinel errors for the DAG facade (spec.md §4.2).
var (
	ErrNotFound               = errors.New("dag: not found")
	ErrNotSinglePathComponent = errors.New("dag: not a single path component")
	ErrNotDirectory           = errors.New("dag: not a directory")
	ErrNotMutable             = errors.New("dag: not mutable")
	ErrAlreadyExists          = errors.New("dag: already exists")
	ErrNotFile                = errors.New("dag: not a file")
)

func notFound(path string) error {
	return vcserr.Wrap(vcserr.CodeNotFound, path, ErrNotFound)
}

func notSingleComponent(path string) error {
	return vcserr.Wrap(vcserr.CodeNotSinglePathComponent, path, ErrNotSinglePathComponent)
}

func notDirectory(path string) error {
	return vcserr.Wrap(vcserr.CodeNotDirectory, path, ErrNotDirectory)
}

func notMutable(path string) error {
	return vcserr.Wrap(vcserr.CodeNotMutable, path, ErrNotMutable)
}

func alreadyExists(path string) error {
	return vcserr.Wrap(vcserr.CodeAlreadyExists, path, ErrAlreadyExists)
}
