package path

import (
	"fmt"
)

var (
	ErrMissingDerivationPath          = fmt.Errorf("missing derivation path")
	ErrRequiredAbsoluteDerivationPath = fmt.Errorf("path must be an absolute derivation starting with 'm/'")
	ErrMalformedDerivationPath        = fmt.Errorf("path must not start or end with a '/'")
	ErrInvalidKeysetID                = fmt.Errorf("keyset id must be a non empty hex string")
	ErrCounterOutOfRange              = fmt.Errorf("counter must be lower than 2^31")
)
