package kivaquery

import (
	"fmt"
	"strings"
)

type QueryType int

const (
	NewestLenders QueryType = iota
	Lenders
	Loans
	RecentLendingActions
	TeamLenders
)

var AllQueryTypes = []QueryType{NewestLenders, Lenders, Loans, RecentLendingActions, TeamLenders}

func (qt QueryType) String() string {
	if qt < NewestLenders || qt > TeamLenders {
		return fmt.Sprintf("QueryType(%d)", int(qt))
	}
	return [...]string{"NewestLenders", "Lenders", "Loans", "RecentLendingActions", "TeamLenders"}[qt]
}

// ParseQueryType matches a query type by name, ignoring case
func ParseQueryType(name string) (QueryType, error) {
	for _, qt := range AllQueryTypes {
		if strings.EqualFold(qt.String(), name) {
			return qt, nil
		}
	}

	return 0, fmt.Errorf("%w: %q", UnknownQueryTypeError, name)
}

// TypeForZipEntry maps a dump entry such as "lenders/12.json" to the query type stored under its top directory
func TypeForZipEntry(name string) (QueryType, bool) {
	root := strings.SplitN(name, "/", 2)[0]

	switch root {
	case "lenders":
		return Lenders, true
	case "loan":
		return Loans, true
	}

	qt, err := ParseQueryType(root)
	if err != nil {
		return 0, false
	}

	return qt, true
}
