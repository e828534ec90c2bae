package protofile

import "errors"

var (
	ErrNotPrototypeFile   = errors.New("protofile: not a prototype file")
	ErrUnsupportedVersion = errors.New("protofile: unsupported version")
	ErrNoMain             = errors.New("protofile: missing main function")
	ErrBadConstant        = errors.New("protofile: bad constant")
)
