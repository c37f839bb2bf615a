// ABOUTME: Implementations of the triage-admin commands
// ABOUTME: Backends are opened per command from config; tests swap in mocks through the admin fields

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/2389/triage-chat/internal/cache"
	"github.com/2389/triage-chat/internal/chat"
	"github.com/2389/triage-chat/internal/citation"
	"github.com/2389/triage-chat/internal/config"
	"github.com/2389/triage-chat/internal/store"
	"github.com/2389/triage-chat/internal/transcript"
)

var errNoStore = errors.New("no durable store configured (store.driver is none)")

type admin struct {
	cfg *config.Config
	out io.Writer

	// overridable in tests
	openStore    func() (store.RoomStore, error)
	openCache    func() (cache.Cache, error)
	openResolver func() (citation.Resolver, error)
}

func (a *admin) rooms() (store.RoomStore, error) {
	if a.openStore != nil {
		return a.openStore()
	}
	s, err := store.Open(a.cfg.Store)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, errNoStore
	}
	return s, nil
}

func (a *admin) snapshots() (cache.Cache, error) {
	if a.openCache != nil {
		return a.openCache()
	}
	return cache.Open(a.cfg.Cache)
}

func (a *admin) resolver() (citation.Resolver, error) {
	if a.openResolver != nil {
		return a.openResolver()
	}
	k := a.cfg.Knowledge
	if k.QdrantURL == "" {
		return nil, errors.New("no knowledge base configured (knowledge.qdrant_url is empty)")
	}
	return citation.NewQdrantResolver(citation.QdrantConfig{
		URL:        k.QdrantURL,
		APIKey:     k.QdrantAPIKey,
		Collection: k.Collection,
	}, nil)
}

func (a *admin) heading(title string) {
	cyan := color.New(color.FgCyan)
	fmt.Fprintln(a.out)
	cyan.Fprintln(a.out, "  "+title)
	cyan.Fprintln(a.out, "  "+strings.Repeat("-", len(title)))
}

func (a *admin) cmdRooms(ctx context.Context) error {
	rs, err := a.rooms()
	if err != nil {
		return err
	}
	defer rs.Close()

	lister, ok := rs.(store.RoomLister)
	if !ok {
		return fmt.Errorf("store driver %q cannot list rooms", a.cfg.Store.Driver)
	}
	rooms, err := lister.ListRooms(ctx)
	if err != nil {
		return fmt.Errorf("listing rooms: %w", err)
	}

	a.heading("Chat Rooms")
	if len(rooms) == 0 {
		fmt.Fprintln(a.out, "  (no rooms)")
		fmt.Fprintln(a.out)
		return nil
	}

	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  ROOM\tMESSAGES\tLAST MESSAGE")
	fmt.Fprintln(w, "  ----\t--------\t------------")
	for _, r := range rooms {
		last := "-"
		if !r.LastMessageAt.IsZero() {
			last = r.LastMessageAt.Local().Format("Jan 02 15:04")
		}
		fmt.Fprintf(w, "  %s\t%d\t%s\n", truncate(r.ID, 36), r.MessageCount, last)
	}
	w.Flush()
	fmt.Fprintln(a.out)
	return nil
}

func (a *admin) cmdHistory(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: triage-admin history <room>")
	}
	rs, err := a.rooms()
	if err != nil {
		return err
	}
	defer rs.Close()

	msgs, err := rs.Messages(ctx, args[0])
	if err != nil {
		return fmt.Errorf("loading history: %w", err)
	}

	a.heading("History of " + args[0])
	a.printMessages(msgs)
	return nil
}

func (a *admin) printMessages(msgs []chat.Message) {
	if len(msgs) == 0 {
		fmt.Fprintln(a.out, "  (no messages)")
		fmt.Fprintln(a.out)
		return
	}
	yellow := color.New(color.FgYellow)
	green := color.New(color.FgGreen)
	faint := color.New(color.Faint)
	for _, m := range msgs {
		label := green
		if m.Type == chat.TypeHuman {
			label = yellow
		}
		fmt.Fprint(a.out, "  ")
		label.Fprint(a.out, transcript.Label(m))
		faint.Fprintf(a.out, "  %s  %s\n", m.Timestamp.Local().Format("Jan 02 15:04:05"), m.ID)
		for _, line := range strings.Split(strings.TrimSpace(m.Content), "\n") {
			fmt.Fprintln(a.out, "    "+line)
		}
		for _, ref := range m.References {
			faint.Fprintf(a.out, "    ↳ %s: chunk %s\n", ref.Filename, transcript.ChunkList(ref.Chunks))
		}
		fmt.Fprintln(a.out)
	}
}

func (a *admin) cmdExport(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("export", flag.ContinueOnError)
	format := fset.String("format", "html", "html or md")
	out := fset.String("out", "", "output file (default stdout)")
	title := fset.String("title", "", "document title")
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		return errors.New("usage: triage-admin export <room> [--format html|md] [--out file]")
	}
	room := args[0]
	if err := fset.Parse(args[1:]); err != nil {
		return err
	}

	render := transcript.Render
	switch *format {
	case "html":
	case "md", "markdown":
		render = transcript.Markdown
	default:
		return fmt.Errorf("unknown export format %q", *format)
	}

	rs, err := a.rooms()
	if err != nil {
		return err
	}
	defer rs.Close()
	msgs, err := rs.Messages(ctx, room)
	if err != nil {
		return fmt.Errorf("loading history: %w", err)
	}

	if *title == "" {
		*title = "Triage chat " + room
	}
	if *out == "" {
		return render(a.out, *title, msgs)
	}

	f, err := os.Create(*out)
	if err != nil {
		return fmt.Errorf("creating %s: %w", *out, err)
	}
	if err := render(f, *title, msgs); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	color.New(color.FgGreen).Fprintf(a.out, "Exported %d messages to %s\n", len(msgs), *out)
	return nil
}

func (a *admin) cmdCache(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: triage-admin cache <key>")
	}
	c, err := a.snapshots()
	if err != nil {
		return err
	}
	defer c.Close()

	msgs, ok, err := c.Get(ctx, args[0])
	if err != nil {
		return fmt.Errorf("reading cache: %w", err)
	}
	a.heading("Cached snapshot " + args[0])
	if !ok {
		fmt.Fprintln(a.out, "  (not cached)")
		fmt.Fprintln(a.out)
		return nil
	}
	a.printMessages(msgs)
	return nil
}

func (a *admin) cmdClearCache(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: triage-admin clear-cache <key>")
	}
	c, err := a.snapshots()
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.Delete(ctx, args[0]); err != nil {
		return fmt.Errorf("clearing cache: %w", err)
	}
	color.New(color.FgGreen).Fprintf(a.out, "Cleared cached snapshot %s\n", args[0])
	return nil
}

func (a *admin) cmdResolve(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return errors.New("usage: triage-admin resolve <file> <chunk>...")
	}
	ref := chat.Reference{Filename: args[0]}
	for _, s := range args[1:] {
		n, err := strconv.Atoi(strings.TrimPrefix(s, "#"))
		if err != nil || n < 0 {
			return fmt.Errorf("invalid chunk %q", s)
		}
		ref.Chunks = append(ref.Chunks, n)
	}
	ref.Chunks = chat.NormalizeChunks(ref.Chunks)

	r, err := a.resolver()
	if err != nil {
		return err
	}
	defer r.Close()
	return a.printPassages(ctx, r, []chat.Reference{ref})
}

func (a *admin) cmdCitations(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: triage-admin citations <room>")
	}
	rs, err := a.rooms()
	if err != nil {
		return err
	}
	defer rs.Close()
	msgs, err := rs.Messages(ctx, args[0])
	if err != nil {
		return fmt.Errorf("loading history: %w", err)
	}

	var refs []chat.Reference
	for _, m := range msgs {
		refs = chat.MergeReferences(refs, m.References)
	}
	if len(refs) == 0 {
		a.heading("Citations in " + args[0])
		fmt.Fprintln(a.out, "  (no citations)")
		fmt.Fprintln(a.out)
		return nil
	}

	r, err := a.resolver()
	if err != nil {
		return err
	}
	defer r.Close()
	return a.printPassages(ctx, r, refs)
}

func (a *admin) printPassages(ctx context.Context, r citation.Resolver, refs []chat.Reference) error {
	yellow := color.New(color.FgYellow)
	faint := color.New(color.Faint)
	for _, ref := range refs {
		passages, err := r.Resolve(ctx, ref)
		if err != nil {
			return fmt.Errorf("resolving %s: %w", ref.Filename, err)
		}
		a.heading(ref.Filename + " chunk " + transcript.ChunkList(ref.Chunks))
		if len(passages) == 0 {
			fmt.Fprintln(a.out, "  (no passages found)")
			fmt.Fprintln(a.out)
			continue
		}
		for _, p := range passages {
			yellow.Fprintf(a.out, "  #%d", p.Chunk)
			faint.Fprintf(a.out, "  %s\n", p.PointID)
			for _, line := range strings.Split(strings.TrimSpace(p.Content), "\n") {
				fmt.Fprintln(a.out, "    "+line)
			}
			fmt.Fprintln(a.out)
		}
	}
	return nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
