package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"go.uber.org/zap"

	"github.com/sushant-115/rowdb/core/executor"
	"github.com/sushant-115/rowdb/core/statement"
	"github.com/sushant-115/rowdb/core/storage_engine/common"
	"github.com/sushant-115/rowdb/core/storage_engine/pager"
	"github.com/sushant-115/rowdb/core/storage_engine/row"
	"github.com/sushant-115/rowdb/core/storage_engine/table"
	flushmanager "github.com/sushant-115/rowdb/core/write_engine/flush_manager"
)

const prompt = "db > "

// lineReader is satisfied by *readline.Instance and scanReader.
type lineReader interface {
	Readline() (string, error)
}

// scanReader reads lines from a non-terminal input, echoing the prompt the
// way an interactive session would.
type scanReader struct {
	scanner *bufio.Scanner
	out     io.Writer
}

func newScanReader(in io.Reader, out io.Writer) *scanReader {
	return &scanReader{scanner: bufio.NewScanner(in), out: out}
}

func (s *scanReader) Readline() (string, error) {
	fmt.Fprint(s.out, prompt)
	if s.scanner.Scan() {
		return s.scanner.Text(), nil
	}
	if err := s.scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

type repl struct {
	table      *table.Table
	exec       *executor.Executor
	out        io.Writer
	logger     *zap.Logger
	backupRate int64
}

// run reads lines until .exit or end of input and returns the process exit
// code. The table is closed before returning.
func (r *repl) run(ctx context.Context, in lineReader) int {
	for {
		line, err := in.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				r.logger.Error("Failed to read input", zap.Error(err))
			}
			return r.exit()
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if statement.IsMetaCommand(line) {
			if r.doMetaCommand(ctx, line) {
				return r.exit()
			}
			continue
		}
		r.doStatement(ctx, line)
	}
}

func (r *repl) exit() int {
	if err := r.table.Close(); err != nil {
		fmt.Fprintf(r.out, "Error: %v\n", err)
		return 1
	}
	return 0
}

// doMetaCommand runs a dot-command and reports whether the session should
// end. The first field names the command; commands that take no argument
// reject any.
func (r *repl) doMetaCommand(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	name, args := fields[0], fields[1:]
	switch name {
	case ".exit", ".rows", ".constants", ".help":
		if len(args) != 0 {
			fmt.Fprintf(r.out, "Usage: %s\n", name)
			return false
		}
	}

	switch name {
	case ".exit":
		return true
	case ".rows":
		fmt.Fprintf(r.out, "%d\n", r.table.NumRows())
	case ".constants":
		fmt.Fprintln(r.out, "Constants:")
		fmt.Fprintf(r.out, "ROW_SIZE: %d\n", row.RowSize)
		fmt.Fprintf(r.out, "PAGE_SIZE: %d\n", pager.PageSize)
		fmt.Fprintf(r.out, "ROWS_PER_PAGE: %d\n", table.RowsPerPage)
		fmt.Fprintf(r.out, "TABLE_MAX_PAGES: %d\n", table.TableMaxPages)
		fmt.Fprintf(r.out, "TABLE_MAX_ROWS: %d\n", table.TableMaxRows)
	case ".backup":
		if len(args) != 1 {
			fmt.Fprintln(r.out, "Usage: .backup <path>")
			return false
		}
		r.backup(ctx, args[0])
	case ".help":
		fmt.Fprintln(r.out, "Statements:")
		fmt.Fprintln(r.out, "  insert <id> <username> <email>")
		fmt.Fprintln(r.out, "  select")
		fmt.Fprintln(r.out, "Meta commands:")
		fmt.Fprintln(r.out, "  .rows .constants .backup <path> .help .exit")
	default:
		fmt.Fprintf(r.out, "Unrecognized command '%s'\n", line)
	}
	return false
}

func (r *repl) backup(ctx context.Context, dst string) {
	if err := r.table.Checkpoint(); err != nil {
		fmt.Fprintf(r.out, "Error: %v\n", err)
		return
	}
	digest, err := common.CopyThrottled(ctx, r.table.Pager().Path(), dst, r.backupRate)
	if err != nil {
		fmt.Fprintf(r.out, "Error: %v\n", err)
		return
	}
	r.logger.Info("Backup written", zap.String("path", dst), zap.Stringer("blake3", digest))
	fmt.Fprintf(r.out, "Backup written to %s (blake3 %s).\n", dst, digest)
}

func (r *repl) doStatement(ctx context.Context, line string) {
	stmt, err := statement.Prepare(line)
	if err != nil {
		fmt.Fprintln(r.out, prepareMessage(line, err))
		return
	}

	res, err := r.exec.Execute(ctx, stmt)
	switch {
	case errors.Is(err, flushmanager.ErrTableFull):
		fmt.Fprintln(r.out, "Error: Table full.")
		return
	case err != nil:
		fmt.Fprintf(r.out, "Error: %v\n", err)
		return
	}
	for _, rw := range res.Rows {
		fmt.Fprintln(r.out, rw.String())
	}
	fmt.Fprintln(r.out, "Executed.")
}

func prepareMessage(line string, err error) string {
	switch {
	case errors.Is(err, row.ErrRowTooLong):
		return "String is too long."
	case errors.Is(err, row.ErrNegativeID):
		return "ID must be positive."
	case errors.Is(err, statement.ErrSyntax):
		return "Syntax error. Could not parse statement."
	case errors.Is(err, statement.ErrUnrecognizedStatement):
		return fmt.Sprintf("Unrecognized keyword at start of '%s'.", line)
	default:
		return fmt.Sprintf("Error: %v", err)
	}
}
