package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/quill/internal/engine"
	"github.com/roach88/quill/internal/query"
)

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions
	Filters  []string
	Excludes []string
	Orders   []string
	Offset   int
	Limit    int
	With     []string
	One      bool
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query <relation>",
		Short: "Run a query plan against the database",
		Long: `Build a query plan from flags and execute it.

Filters conjoin; each is "<field> <op> <value>" (see --help for operators).
Orderings are field names, prefixed with "-" for descending. --with eager
loads a relationship.

Example:
  quill query Student --db school.db --schema school.yaml \
    --filter "age gte 18" --order -age --with advisor
  quill query Student --db school.db --schema school.yaml \
    --filter "id eq 1" --one`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringArrayVar(&opts.Filters, "filter", nil, "filter expression (repeatable, conjoined)")
	cmd.Flags().StringArrayVar(&opts.Excludes, "exclude", nil, "negated filter expression (repeatable)")
	cmd.Flags().StringArrayVar(&opts.Orders, "order", nil, "ordering field, \"-field\" for descending (repeatable)")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "rows to skip")
	cmd.Flags().IntVar(&opts.Limit, "limit", query.NoLimit, "maximum rows to return")
	cmd.Flags().StringArrayVar(&opts.With, "with", nil, "relationship to eager load (repeatable)")
	cmd.Flags().BoolVar(&opts.One, "one", false, "expect exactly one record")

	return cmd
}

func runQuery(opts *QueryOptions, relation string, cmd *cobra.Command) error {
	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}

	e, s, err := openEngine(opts.RootOptions)
	if err != nil {
		return err
	}
	defer s.Close()

	plan, err := buildPlan(e, relation, opts)
	if err != nil {
		_ = out.Error("INVALID_PLAN", err.Error())
		return WrapExitError(ExitFailure, "build plan", err)
	}
	out.VerboseLog("plan: %s", plan.String())

	ctx := cmd.Context()
	if opts.One {
		rec, err := e.ExecuteOne(ctx, plan)
		if err != nil {
			return reportExecError(out, err)
		}
		return renderRecords(out, []*engine.Record{rec})
	}

	records, err := e.Execute(plan).All(ctx)
	if err != nil {
		return reportExecError(out, err)
	}
	return renderRecords(out, records)
}

func buildPlan(e *engine.Engine, relation string, opts *QueryOptions) (query.Plan, error) {
	plan := e.NewQuery(relation)

	for _, expr := range opts.Filters {
		pred, err := parseFilter(e.Registry(), relation, expr)
		if err != nil {
			return plan, err
		}
		plan = plan.Filter(pred)
	}
	for _, expr := range opts.Excludes {
		pred, err := parseFilter(e.Registry(), relation, expr)
		if err != nil {
			return plan, err
		}
		plan = plan.Exclude(pred)
	}
	for _, field := range opts.Orders {
		if name, desc := strings.CutPrefix(field, "-"); desc {
			plan = plan.OrderBy(name, query.Desc)
		} else {
			plan = plan.OrderBy(field, query.Asc)
		}
	}
	if opts.Offset > 0 && opts.Limit == query.NoLimit {
		return plan, fmt.Errorf("--offset requires --limit")
	}
	if opts.Limit != query.NoLimit {
		plan = plan.Slice(opts.Offset, opts.Limit)
	}
	for _, name := range opts.With {
		plan = plan.WithRelated(name)
	}

	return plan, plan.Err()
}

func reportExecError(out *OutputFormatter, err error) error {
	code := "EXECUTION"
	var ee *engine.ExecError
	if errors.As(err, &ee) {
		code = string(ee.Code)
	}
	var pe *query.PlanError
	if errors.As(err, &pe) {
		code = string(pe.Code)
	}
	_ = out.Error(code, err.Error())
	return WrapExitError(ExitFailure, "execute", err)
}

func renderRecords(out *OutputFormatter, records []*engine.Record) error {
	if out.Format == "json" {
		data := make([]map[string]any, 0, len(records))
		for _, rec := range records {
			data = append(data, recordJSON(rec))
		}
		return out.Success(data)
	}

	for _, rec := range records {
		fmt.Fprintln(out.Writer, renderRecord(rec))
	}
	fmt.Fprintf(out.Writer, "%d record(s)\n", len(records))
	return nil
}
