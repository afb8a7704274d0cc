// Package statement turns a line of user input into a validated statement.
package statement

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/sushant-115/rowdb/core/storage_engine/row"
)

// Kind is the statement type. There are exactly two.
type Kind int

const (
	KindInsert Kind = iota + 1
	KindSelect
)

func (k Kind) String() string {
	switch k {
	case KindInsert:
		return "insert"
	case KindSelect:
		return "select"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

var (
	ErrUnrecognizedStatement = errors.New("unrecognized keyword at start of statement")
	ErrSyntax                = errors.New("syntax error, could not parse statement")
)

// Statement is a parsed statement. Row is only set for KindInsert.
type Statement struct {
	Kind Kind
	Row  row.Row
}

// IsMetaCommand reports whether line is a dot-command such as ".exit".
func IsMetaCommand(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), ".")
}

// Prepare parses line. Inserts are validated so the row can be stored
// without truncation.
func Prepare(line string) (*Statement, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrUnrecognizedStatement)
	}

	switch strings.ToLower(fields[0]) {
	case "insert":
		return prepareInsert(fields[1:])
	case "select":
		if len(fields) != 1 {
			return nil, fmt.Errorf("%w: select takes no arguments", ErrSyntax)
		}
		return &Statement{Kind: KindSelect}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnrecognizedStatement, line)
	}
}

func prepareInsert(args []string) (*Statement, error) {
	if len(args) != 3 {
		return nil, fmt.Errorf("%w: insert needs <id> <username> <email>, got %d arguments", ErrSyntax, len(args))
	}
	id, err := strconv.ParseInt(args[0], 10, 32)
	if err != nil {
		return nil, fmt.Errorf("%w: id %q: %v", ErrSyntax, args[0], err)
	}
	stmt := &Statement{
		Kind: KindInsert,
		Row:  row.Row{ID: int32(id), Username: args[1], Email: args[2]},
	}
	if err := stmt.Row.Validate(); err != nil {
		return nil, err
	}
	return stmt, nil
}
