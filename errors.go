package kivaquery

import (
	"errors"
)

var UnsupportedQueryTypeError = errors.New("unsupported query type")
var UnknownQueryTypeError = errors.New("unknown query type")
var NoDumpFoundError = errors.New("no dump file found")
var LoanNotFoundError = errors.New("loan not found")
var InvalidLoansPageError = errors.New("invalid loans page")
