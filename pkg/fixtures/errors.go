package fixtures

import "errors"

var (
	ErrFailedToRead   = errors.New("fixtures.errors.failed_to_read")
	ErrFailedToParse  = errors.New("fixtures.errors.failed_to_parse")
	ErrInvalidFixture = errors.New("fixtures.errors.invalid_fixture")
)
