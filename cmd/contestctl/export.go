package main

import (
	"context"
	"fmt"
	"io"

	"github.com/Sternrassler/contesthub-client/pkg/client"
	"github.com/Sternrassler/contesthub-client/pkg/listview"
	"github.com/Sternrassler/contesthub-client/pkg/pagination"
	"github.com/spf13/cobra"
)

func newExportCmd(a *app) *cobra.Command {
	var (
		flags       listFlags
		concurrency int
	)

	cmd := &cobra.Command{
		Use:   "export <list|path>",
		Short: "Fetch every page of a list in parallel and print all records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, err := resolveSchema(args[0], &flags, a.cfg.PageSize)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()
			return a.runExport(ctx, cmd.OutOrStdout(), schema, flags.values(), concurrency)
		},
	}
	flags.register(cmd)
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "parallel page requests (default 4)")
	return cmd
}

func (a *app) runExport(ctx context.Context, out io.Writer, schema listview.Schema, values map[string]string, concurrency int) error {
	filters := pagination.Filters{}
	for _, f := range schema.Fields {
		v, ok := values[f.Name]
		if !ok {
			v = f.Default
		}
		if err := listview.CheckField(f, v); err != nil {
			return err
		}
		filters[f.Name] = v
	}
	for name := range values {
		if _, ok := schema.Field(name); !ok {
			return fmt.Errorf("list %s has no %s filter", schema.Resource, name)
		}
	}

	d := pagination.Descriptor{Resource: schema.Resource, Filters: filters, PageSize: schema.PageSize}
	if err := d.Ready(); err != nil {
		return err
	}

	bf := pagination.NewBatchFetcher(pagination.NewHTTPFetcher(a.client), pagination.Config{
		MaxConcurrency: concurrency,
		Retry:          client.FixedRetryConfig(a.cfg.Retries, a.cfg.RetryDelay),
	})
	pages, err := bf.FetchAll(ctx, d.Request(1))
	if err != nil {
		return err
	}
	return writeRecords(out, pagination.Records(pages))
}
