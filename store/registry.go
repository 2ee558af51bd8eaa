package store

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Relationship links an aggregate type to a relation table whose rows
// reference it. When an aggregate is deleted, its relation rows follow.
type Relationship struct {
	// AggregateType is the referenced entity type (e.g., "user").
	AggregateType string `yaml:"aggregate_type"`

	// RelationTable is the DynamoDB table holding the relation rows (e.g., "user_roles").
	RelationTable string `yaml:"relation_table"`

	// PartitionKey and SortKey name the relation table's primary key attributes.
	PartitionKey string `yaml:"partition_key"`
	SortKey      string `yaml:"sort_key,omitempty"`

	// KeyAttr is the attribute in the relation row holding the aggregate's
	// entity reference (e.g., "user_ref").
	KeyAttr string `yaml:"key_attr"`

	// IndexName is the index whose partition key is KeyAttr. Empty when
	// KeyAttr is the table's partition key.
	IndexName string `yaml:"index_name,omitempty"`
}

func (r Relationship) validate() error {
	switch {
	case r.AggregateType == "":
		return fmt.Errorf("relationship: aggregate_type is required")
	case r.RelationTable == "":
		return fmt.Errorf("relationship %s: relation_table is required", r.AggregateType)
	case r.PartitionKey == "":
		return fmt.Errorf("relationship %s/%s: partition_key is required", r.AggregateType, r.RelationTable)
	case r.KeyAttr == "":
		return fmt.Errorf("relationship %s/%s: key_attr is required", r.AggregateType, r.RelationTable)
	case r.IndexName == "" && r.KeyAttr != r.PartitionKey:
		return fmt.Errorf("relationship %s/%s: key_attr %q needs an index_name", r.AggregateType, r.RelationTable, r.KeyAttr)
	}
	return nil
}

// Registry holds all known aggregate relationships for cascade operations.
type Registry struct {
	relationships []Relationship
	byAggregate   map[string][]Relationship
}

// NewRegistry creates a new empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		relationships: []Relationship{},
		byAggregate:   make(map[string][]Relationship),
	}
}

// Register adds a relationship to the registry.
func (r *Registry) Register(rel Relationship) {
	r.relationships = append(r.relationships, rel)
	r.byAggregate[rel.AggregateType] = append(r.byAggregate[rel.AggregateType], rel)
}

// RelationsOf returns all relationships referencing the given aggregate type.
func (r *Registry) RelationsOf(aggregateType string) []Relationship {
	return r.byAggregate[aggregateType]
}

// All returns all registered relationships.
func (r *Registry) All() []Relationship {
	return r.relationships
}

// HasRelations returns true if the aggregate type has any registered relationships.
func (r *Registry) HasRelations(aggregateType string) bool {
	return len(r.byAggregate[aggregateType]) > 0
}

type registryFile struct {
	Relationships []Relationship `yaml:"relationships"`
}

// LoadRegistry reads a YAML document of the form
//
//	relationships:
//	  - aggregate_type: user
//	    relation_table: user_roles
//	    partition_key: user_ref
//	    sort_key: role_ref
//	    key_attr: user_ref
//
// and returns the populated registry.
func LoadRegistry(r io.Reader) (*Registry, error) {
	var file registryFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode registry: %w", err)
	}

	reg := NewRegistry()
	for _, rel := range file.Relationships {
		if err := rel.validate(); err != nil {
			return nil, err
		}
		reg.Register(rel)
	}
	return reg, nil
}

// LoadRegistryFile reads a registry from a YAML file.
func LoadRegistryFile(path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open registry: %w", err)
	}
	defer f.Close()
	return LoadRegistry(f)
}
