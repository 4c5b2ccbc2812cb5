package schema

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/quill/internal/value"
)

// schemaDoc is the YAML document shape for a schema file.
type schemaDoc struct {
	Relations []relationDoc `yaml:"relations"`
}

type relationDoc struct {
	Name          string            `yaml:"name"`
	Table         string            `yaml:"table"`
	PrimaryKey    string            `yaml:"primary_key"`
	Fields        []fieldDoc        `yaml:"fields"`
	Relationships []relationshipDoc `yaml:"relationships"`
}

type fieldDoc struct {
	Name     string `yaml:"name"`
	Kind     string `yaml:"kind"`
	Nullable bool   `yaml:"nullable"`
}

type relationshipDoc struct {
	Name        string `yaml:"name"`
	Cardinality string `yaml:"cardinality"`
	Target      string `yaml:"target"`
	ForeignKey  string `yaml:"foreign_key"`
	JoinTable   string `yaml:"join_table"`
	SourceKey   string `yaml:"source_key"`
	TargetKey   string `yaml:"target_key"`
}

// Parse builds a sealed Registry from YAML schema bytes.
func Parse(data []byte) (*Registry, error) {
	var doc schemaDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse schema yaml: %w", err)
	}
	if len(doc.Relations) == 0 {
		return nil, fmt.Errorf("schema declares no relations")
	}

	registry := NewRegistry()
	for _, rd := range doc.Relations {
		fields := make([]Field, 0, len(rd.Fields))
		for _, fd := range rd.Fields {
			kind, err := parseKind(fd.Kind)
			if err != nil {
				return nil, fmt.Errorf("relation %q, field %q: %w", rd.Name, fd.Name, err)
			}
			fields = append(fields, Field{Name: fd.Name, Kind: kind, Nullable: fd.Nullable})
		}

		rels := make([]Relationship, 0, len(rd.Relationships))
		for _, rr := range rd.Relationships {
			card, err := parseCardinality(rr.Cardinality)
			if err != nil {
				return nil, fmt.Errorf("relation %q, relationship %q: %w", rd.Name, rr.Name, err)
			}
			rels = append(rels, Relationship{
				Name:        rr.Name,
				Cardinality: card,
				Target:      rr.Target,
				ForeignKey:  rr.ForeignKey,
				JoinTable:   rr.JoinTable,
				SourceKey:   rr.SourceKey,
				TargetKey:   rr.TargetKey,
			})
		}

		relation, err := NewRelation(rd.Name, rd.Table, rd.PrimaryKey, fields, rels)
		if err != nil {
			return nil, err
		}
		if err := registry.Register(relation); err != nil {
			return nil, err
		}
	}

	if err := registry.Seal(); err != nil {
		return nil, err
	}
	return registry, nil
}

// LoadFile builds a sealed Registry from a YAML schema file on disk.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema file: %w", err)
	}
	registry, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("schema file %s: %w", path, err)
	}
	return registry, nil
}

func parseKind(s string) (value.Kind, error) {
	switch value.Kind(s) {
	case value.KindString, value.KindInt, value.KindFloat, value.KindBool, value.KindTime:
		return value.Kind(s), nil
	default:
		return "", fmt.Errorf("unknown field kind %q", s)
	}
}

func parseCardinality(s string) (Cardinality, error) {
	switch Cardinality(s) {
	case ToOne, ToMany, ManyToMany:
		return Cardinality(s), nil
	default:
		return "", fmt.Errorf("unknown cardinality %q", s)
	}
}
