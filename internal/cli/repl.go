package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	listNotes(ctx context.Context) error
	listNotebooks(ctx context.Context) error
	listTags(ctx context.Context) error
	newNote(ctx context.Context, title string) error
	newNotebook(ctx context.Context, name string) error
	newTag(ctx context.Context, name string) error
	showNote(ctx context.Context, guid string) error
	deleteNote(ctx context.Context, guid string) error
	deleteNotebook(ctx context.Context, guid string) error
	deleteTag(ctx context.Context, guid string) error
	search(ctx context.Context, words string) error
	resolve(ctx context.Context, guid, side string) error
	sync(ctx context.Context) error
	showError(ctx context.Context) error
}

// runREPL reads a line, dispatches the first token as the command and the
// rest as arguments, and loops until EOF or an exit command. Handler errors
// are reported by the handlers themselves; the loop only does I/O.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		fmt.Printf("ns %s> ", statusFn())
		if !scanner.Scan() {
			return
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		switch cmd {
		case "help":
			printlnFn("Commands: notes, notebooks, tags, new <title...>, newbook <name...>,")
			printlnFn("  newtag <name...>, show <guid>, del <guid>, delbook <guid>, deltag <guid>,")
			printlnFn("  find <words...>, resolve <guid> local|remote, sync, error, exit")

		case "notes", "ls":
			_ = a.listNotes(ctx)

		case "notebooks":
			_ = a.listNotebooks(ctx)

		case "tags":
			_ = a.listTags(ctx)

		case "new":
			if len(args) == 0 {
				printlnFn("Usage: new <title...>")
				continue
			}
			_ = a.newNote(ctx, strings.Join(args, " "))

		case "newbook":
			if len(args) == 0 {
				printlnFn("Usage: newbook <name...>")
				continue
			}
			_ = a.newNotebook(ctx, strings.Join(args, " "))

		case "newtag":
			if len(args) == 0 {
				printlnFn("Usage: newtag <name...>")
				continue
			}
			_ = a.newTag(ctx, strings.Join(args, " "))

		case "show":
			if len(args) != 1 {
				printlnFn("Usage: show <guid>")
				continue
			}
			_ = a.showNote(ctx, args[0])

		case "del":
			if len(args) != 1 {
				printlnFn("Usage: del <guid>")
				continue
			}
			_ = a.deleteNote(ctx, args[0])

		case "delbook":
			if len(args) != 1 {
				printlnFn("Usage: delbook <guid>")
				continue
			}
			_ = a.deleteNotebook(ctx, args[0])

		case "deltag":
			if len(args) != 1 {
				printlnFn("Usage: deltag <guid>")
				continue
			}
			_ = a.deleteTag(ctx, args[0])

		case "find":
			if len(args) == 0 {
				printlnFn("Usage: find <words...>")
				continue
			}
			_ = a.search(ctx, strings.Join(args, " "))

		case "resolve":
			if len(args) != 2 || (args[1] != "local" && args[1] != "remote") {
				printlnFn("Usage: resolve <guid> local|remote")
				continue
			}
			_ = a.resolve(ctx, args[0], args[1])

		case "sync":
			_ = a.sync(ctx)

		case "error":
			_ = a.showError(ctx)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}
	}
}
