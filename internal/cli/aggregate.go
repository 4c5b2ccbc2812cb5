package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/quill/internal/query"
)

// AggregateOptions holds flags for the aggregate command.
type AggregateOptions struct {
	*RootOptions
	Filters    []string
	Reductions []string
}

// NewAggregateCommand creates the aggregate command.
func NewAggregateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AggregateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "aggregate <relation>",
		Short: "Run storage-side reductions over a relation",
		Long: `Reduce matching rows in storage without transferring them.

Each --agg is "<name>:<fn>[:<field>]"; count takes no field,
sum/avg/min/max reduce one field.

Example:
  quill aggregate Student --db school.db --schema school.yaml \
    --filter "age gte 18" --agg n:count --agg avgAge:avg:age`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAggregate(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringArrayVar(&opts.Filters, "filter", nil, "filter expression (repeatable, conjoined)")
	cmd.Flags().StringArrayVar(&opts.Reductions, "agg", nil, "reduction \"name:fn[:field]\" (repeatable, required)")
	_ = cmd.MarkFlagRequired("agg")

	return cmd
}

func runAggregate(opts *AggregateOptions, relation string, cmd *cobra.Command) error {
	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}

	e, s, err := openEngine(opts.RootOptions)
	if err != nil {
		return err
	}
	defer s.Close()

	plan := e.NewQuery(relation)
	for _, expr := range opts.Filters {
		pred, err := parseFilter(e.Registry(), relation, expr)
		if err != nil {
			_ = out.Error("INVALID_PLAN", err.Error())
			return WrapExitError(ExitFailure, "build plan", err)
		}
		plan = plan.Filter(pred)
	}

	var order []string
	for _, spec := range opts.Reductions {
		name, fn, field, err := parseReduction(spec)
		if err != nil {
			_ = out.Error("INVALID_PLAN", err.Error())
			return WrapExitError(ExitFailure, "build plan", err)
		}
		plan = plan.Aggregate(name, fn, field)
		order = append(order, name)
	}
	out.VerboseLog("plan: %s", plan.String())

	values, err := e.Aggregate(cmd.Context(), plan)
	if err != nil {
		return reportExecError(out, err)
	}

	if out.Format == "json" {
		return out.Success(values)
	}
	fmt.Fprintln(out.Writer, formatValues(values, order))
	return nil
}

// parseReduction splits "name:fn[:field]".
func parseReduction(spec string) (name string, fn query.AggregateFn, field string, err error) {
	parts := strings.SplitN(spec, ":", 3)
	if len(parts) < 2 {
		return "", "", "", fmt.Errorf("reduction %q: want \"name:fn[:field]\"", spec)
	}
	name = parts[0]
	if len(parts) == 3 {
		field = parts[2]
	}

	switch parts[1] {
	case "count":
		fn = query.AggCount
	case "sum":
		fn = query.AggSum
	case "avg":
		fn = query.AggAvg
	case "min":
		fn = query.AggMin
	case "max":
		fn = query.AggMax
	default:
		return "", "", "", fmt.Errorf("reduction %q: unknown function %q", spec, parts[1])
	}
	return name, fn, field, nil
}
