package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/peterh/liner"

	"github.com/Giulio2002/lmkv"
)

const shellHelp = `Commands:
  get <key>              Print the value stored under key
  put <key> <value>      Store value under key
  del <key> [value]      Delete key, or one value of a dupsort key
  scan [prefix]          List entries
  stat                   Show tree statistics of the current database
  info                   Show environment information
  first / last           Move the cursor to the first or last entry
  next / prev            Step the cursor
  seek <key>             Move the cursor to key
  range <key>            Move the cursor to the first key >= key
  count                  Count the values under the cursor's key
  use <db>               Switch to a named database ("" for the main one)
  dump <file>            Write the current database to file
  load <file>            Load a dump into the current database
  help                   Show this help
  exit / quit / q        Exit
`

var shellCommands = []string{
	"count", "del", "dump", "exit", "first", "get", "help", "info", "last", "load",
	"next", "prev", "put", "quit", "range", "scan", "seek", "stat", "use",
}

// cursorCommands share one read transaction across lines until another
// command runs.
var cursorCommands = map[string]bool{
	"first": true, "last": true, "next": true, "prev": true, "seek": true, "range": true, "count": true,
}

type shell struct {
	*commander
	liner *liner.State
	txn   *lmkv.Txn
	cur   *lmkv.Cursor
}

func newShell(c *commander) *shell {
	return &shell{commander: c}
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".lmkv_history")
}

// Run starts the read-eval-print loop.
func (s *shell) Run() error {
	s.liner = liner.NewLiner()
	defer s.liner.Close()
	s.liner.SetCtrlCAborts(true)
	s.liner.SetCompleter(s.complete)

	if f, err := os.Open(historyFile()); err == nil {
		s.liner.ReadHistory(f)
		f.Close()
	}
	defer s.saveHistory()
	defer s.release()

	fmt.Fprintf(s.out, "lmkv shell on %s (%s)\n", s.env.Path(), lmkv.Version())
	fmt.Fprintln(s.out, "Type 'help' for available commands.")

	for {
		line, err := s.liner.Prompt(s.prompt())
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || err == io.EOF {
				fmt.Fprintln(s.out)
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		s.liner.AppendHistory(line)
		if quit := s.eval(line); quit {
			return nil
		}
	}
}

func (s *shell) prompt() string {
	if name := s.db.Name(); name != "" {
		return "lmkv:" + name + "> "
	}
	return "lmkv> "
}

// eval runs one command line and reports whether the shell should exit.
// Command errors are printed, not returned.
func (s *shell) eval(line string) bool {
	parts := strings.Fields(line)
	cmd, args := strings.ToLower(parts[0]), parts[1:]
	if !cursorCommands[cmd] {
		s.release()
	}
	var err error
	switch {
	case cursorCommands[cmd]:
		err = s.move(cmd, args)
	case cmd == "exit" || cmd == "quit" || cmd == "q":
		return true
	case cmd == "help" || cmd == "?":
		fmt.Fprint(s.out, shellHelp)
	case cmd == "use":
		var name string
		if len(args) > 0 {
			name = strings.Trim(args[0], `"`)
		}
		err = s.use(name)
	case cmd == "copy":
		err = fmt.Errorf("%w: copy is not available in the shell", errUnknownCommand)
	default:
		err = s.exec(cmd, args)
	}
	if err != nil {
		fmt.Fprintln(s.out, "error:", err)
	}
	return false
}

// cursor returns the shell's cursor, starting a read transaction when the
// previous one has ended.
func (s *shell) cursor() (*lmkv.Cursor, error) {
	if s.cur != nil && s.cur.Valid() {
		return s.cur, nil
	}
	txn, err := s.env.Begin(lmkv.TxnOptions{ReadOnly: true})
	if err != nil {
		return nil, err
	}
	cur, err := txn.Cursor(s.db)
	if err != nil {
		txn.Abort()
		return nil, err
	}
	s.txn, s.cur = txn, cur
	return cur, nil
}

func (s *shell) release() {
	if s.txn != nil {
		s.txn.Abort()
		s.txn, s.cur = nil, nil
	}
}

func (s *shell) move(cmd string, args []string) error {
	cur, err := s.cursor()
	if err != nil {
		return err
	}
	if (cmd == "seek" || cmd == "range") && len(args) < 1 {
		return fmt.Errorf("%w: %s <key>", errMissingArg, cmd)
	}

	var ok bool
	switch cmd {
	case "first":
		ok, err = cur.First()
	case "last":
		ok, err = cur.Last()
	case "next":
		ok, err = cur.Next()
	case "prev":
		ok, err = cur.Prev()
	case "seek":
		ok, err = cur.SetKey([]byte(args[0]))
	case "range":
		ok, err = cur.SetRange([]byte(args[0]))
	case "count":
		if !cur.Positioned() {
			return errors.New("cursor is not positioned")
		}
		n, err := cur.Count()
		if err != nil {
			return err
		}
		fmt.Fprintln(s.out, n)
		return nil
	}
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(s.out, "(end)")
		return nil
	}
	k, v := cur.Item()
	fmt.Fprintf(s.out, "%s\t%s\n", printable(k), printable(v))
	return nil
}

func (s *shell) use(name string) error {
	db, err := s.env.OpenDatabase(name, lmkv.DatabaseOptions{NoCreate: s.env.ReadOnly()})
	if err != nil {
		return err
	}
	s.db = db
	return nil
}

func (s *shell) complete(line string) []string {
	var out []string
	for _, c := range shellCommands {
		if strings.HasPrefix(c, strings.ToLower(line)) {
			out = append(out, c)
		}
	}
	slices.Sort(out)
	return out
}

func (s *shell) saveHistory() {
	if path := historyFile(); path != "" {
		if f, err := os.Create(path); err == nil {
			s.liner.WriteHistory(f)
			f.Close()
		}
	}
}
