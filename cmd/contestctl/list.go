package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/Sternrassler/contesthub-client/pkg/listview"
	"github.com/Sternrassler/contesthub-client/pkg/pagination"
	"github.com/spf13/cobra"
)

// listFlags are the filter flags shared by list and export.
type listFlags struct {
	search   string
	status   string
	typ      string
	uid      string
	pageSize int
}

func (f *listFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.search, "search", "", "free text search")
	cmd.Flags().StringVar(&f.status, "status", "", "status filter (default all)")
	cmd.Flags().StringVar(&f.typ, "type", "", "type or role filter (default all)")
	cmd.Flags().StringVar(&f.uid, "uid", "", "user id for participated and winning lists")
	cmd.Flags().IntVar(&f.pageSize, "limit", 0, "page size (default from config)")
}

// values returns the filters given on the command line, by field name.
func (f *listFlags) values() map[string]string {
	out := map[string]string{}
	if f.search != "" {
		out[listview.FieldSearch] = f.search
	}
	if f.status != "" {
		out[listview.FieldStatus] = f.status
	}
	if f.typ != "" {
		out[listview.FieldType] = f.typ
	}
	return out
}

var namedSchemas = map[string]func(uid string) listview.Schema{
	"contests":     func(string) listview.Schema { return listview.ContestsSchema() },
	"created":      func(string) listview.Schema { return listview.CreatedContestsSchema() },
	"submissions":  func(string) listview.Schema { return listview.SubmittedTasksSchema() },
	"users":        func(string) listview.Schema { return listview.ManageUsersSchema() },
	"participated": listview.ParticipatedSchema,
	"winning":      listview.WinningSchema,
}

func schemaNames() string {
	names := make([]string, 0, len(namedSchemas))
	for n := range namedSchemas {
		names = append(names, n)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

// resolveSchema maps a list name or a raw "/api/..." path to a schema. Raw
// paths accept free text search plus unchecked status and type filters.
func resolveSchema(name string, f *listFlags, defaultPageSize int) (listview.Schema, error) {
	var s listview.Schema
	if build, ok := namedSchemas[name]; ok {
		s = build(f.uid)
	} else if strings.HasPrefix(name, "/") {
		s = listview.Schema{
			Resource: name,
			Fields: []listview.Field{
				{Name: listview.FieldSearch, Rules: "max=100,safetext"},
				{Name: listview.FieldStatus, Default: listview.AllValue, Rules: "safetext", Clearable: true},
				{Name: listview.FieldType, Default: listview.AllValue, Rules: "safetext", Clearable: true},
			},
		}
	} else {
		return listview.Schema{}, fmt.Errorf("unknown list %q (want one of %s, or a path)", name, schemaNames())
	}

	s.PageSize = defaultPageSize
	if f.pageSize > 0 {
		s.PageSize = f.pageSize
	}
	return s, nil
}

func newListCmd(a *app) *cobra.Command {
	var (
		flags    listFlags
		maxPages int
	)

	cmd := &cobra.Command{
		Use:   "list <list|path>",
		Short: "Page through a list and print its records as JSON lines",
		Long: `Page through a list the way the list screens do: page 1 first, then
one page at a time while the backend reports more.

Lists: ` + schemaNames() + `, or any path such as /api/contests.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, err := resolveSchema(args[0], &flags, a.cfg.PageSize)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()
			return a.runList(ctx, cmd.OutOrStdout(), schema, flags.values(), maxPages)
		},
	}
	flags.register(cmd)
	cmd.Flags().IntVar(&maxPages, "pages", 1, "pages to load; 0 loads every page")
	return cmd
}

func (a *app) runList(ctx context.Context, out io.Writer, schema listview.Schema, values map[string]string, maxPages int) error {
	coord := a.coordinator()
	defer coord.Close()

	ctrl, err := listview.NewController(coord, schema, listview.Options{Debounce: a.cfg.DebounceDelay})
	if err != nil {
		return err
	}
	defer ctrl.Close()

	for name, v := range values {
		if _, ok := schema.Field(name); !ok {
			return fmt.Errorf("list %s has no %s filter", schema.Resource, name)
		}
		if err := ctrl.Set(name, v); err != nil {
			return err
		}
	}
	ctrl.Flush()
	ctrl.Start()

	snap, err := ctrl.Wait(ctx)
	if err != nil {
		return err
	}
	for loaded := 1; snap.Status == pagination.StatusSuccess && (maxPages <= 0 || loaded < maxPages); loaded++ {
		if !ctrl.SentinelVisible() {
			break
		}
		if snap, err = ctrl.Wait(ctx); err != nil {
			return err
		}
	}

	switch {
	case snap.NotReady != nil:
		return snap.NotReady
	case snap.Status == pagination.StatusError:
		return snap.Err
	}

	a.logger.Debug().
		Str("resource", schema.Resource).
		Int("pages", len(snap.Pages)).
		Bool("has_next_page", snap.HasNextPage).
		Msg("List loaded")
	return writeRecords(out, snap.Records())
}

func writeRecords(out io.Writer, recs []json.RawMessage) error {
	for _, r := range recs {
		if _, err := fmt.Fprintln(out, string(r)); err != nil {
			return err
		}
	}
	return nil
}
