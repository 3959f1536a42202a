package paloalto

import "errors"

// Fatal translation errors. Each aborts the whole run; the wrapped
// message carries the term name and offending value.
var (
	ErrUnsupportedFilter   = errors.New("unsupported filter")
	ErrUnsupportedHeader   = errors.New("unsupported header option")
	ErrDuplicateTerm       = errors.New("duplicate term")
	ErrUnsupportedProtocol = errors.New("unsupported protocol")
	ErrDuplicateService    = errors.New("duplicate service")
	ErrNameTooLong         = errors.New("name too long")
	ErrBadICMPType         = errors.New("bad icmp type")
)
