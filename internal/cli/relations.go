package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/quill/internal/schema"
)

// NewRelationsCommand creates the relations command, which lists the
// schema's relations with their fields and relationships.
func NewRelationsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "relations",
		Short:         "List the schema's relations",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRelations(rootOpts, cmd)
		},
	}
}

type relationInfo struct {
	Name          string             `json:"name"`
	Table         string             `json:"table"`
	PrimaryKey    string             `json:"primary_key"`
	Fields        []fieldInfo        `json:"fields"`
	Relationships []relationshipInfo `json:"relationships,omitempty"`
}

type fieldInfo struct {
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	Nullable bool   `json:"nullable,omitempty"`
}

type relationshipInfo struct {
	Name        string `json:"name"`
	Cardinality string `json:"cardinality"`
	Target      string `json:"target"`
}

func runRelations(opts *RootOptions, cmd *cobra.Command) error {
	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}

	if opts.Schema == "" {
		return NewExitError(ExitCommandError, "--schema is required")
	}
	registry, err := schema.LoadFile(opts.Schema)
	if err != nil {
		return WrapExitError(ExitCommandError, "load schema", err)
	}

	var infos []relationInfo
	for _, name := range registry.RelationNames() {
		rel, _ := registry.Relation(name)
		info := relationInfo{
			Name:       rel.Name(),
			Table:      rel.Table(),
			PrimaryKey: rel.PrimaryKey(),
		}
		for _, f := range rel.Fields() {
			info.Fields = append(info.Fields, fieldInfo{Name: f.Name, Kind: string(f.Kind), Nullable: f.Nullable})
		}
		for _, rn := range rel.RelationshipNames() {
			r, _ := rel.Relationship(rn)
			info.Relationships = append(info.Relationships, relationshipInfo{
				Name:        r.Name,
				Cardinality: string(r.Cardinality),
				Target:      r.Target,
			})
		}
		infos = append(infos, info)
	}

	if out.Format == "json" {
		return out.Success(infos)
	}

	for _, info := range infos {
		fmt.Fprintf(out.Writer, "%s (table %s, pk %s)\n", info.Name, info.Table, info.PrimaryKey)
		for _, f := range info.Fields {
			null := ""
			if f.Nullable {
				null = ", nullable"
			}
			fmt.Fprintf(out.Writer, "  %s %s%s\n", f.Name, f.Kind, null)
		}
		for _, r := range info.Relationships {
			fmt.Fprintf(out.Writer, "  %s -> %s (%s)\n", r.Name, r.Target, r.Cardinality)
		}
	}
	return nil
}
