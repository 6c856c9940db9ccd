package plan

import (
	"gopkg.in/yaml.v3"
)

// planNodeDump is the YAML-marshalable shape Explain walks a plan tree
// into: one entry per node with its cost estimate and, for an
// interior node, its children. Grounded on tinySQL/warren's shared
// pattern of dumping structured diagnostics through yaml.v3 rather than
// a bespoke pretty-printer.
type planNodeDump struct {
	Node        string          `yaml:"node"`
	Detail      string          `yaml:"detail,omitempty"`
	NumTuples   float32         `yaml:"est_tuples"`
	NumBlockIOs uint64          `yaml:"est_block_ios"`
	Children    []*planNodeDump `yaml:"children,omitempty"`
}

// Explain renders root's plan tree as YAML, one block per node carrying
// that node's estimated row count and I/O cost (spec §4.5's PlanCost).
// root must already have had Prepare called, the same precondition
// GetCost relies on elsewhere.
func Explain(root PlanNode) (string, error) {
	dump := dumpNode(root)
	out, err := yaml.Marshal(dump)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func dumpNode(n PlanNode) *planNodeDump {
	cost := n.GetCost()
	d := &planNodeDump{NumTuples: cost.NumTuples, NumBlockIOs: cost.NumBlockIOs}

	switch v := n.(type) {
	case *FileScan:
		d.Node = "FileScan"
		d.Detail = v.table.Schema().TableName
	case *Filter:
		d.Node = "Filter"
		d.Children = []*planNodeDump{dumpNode(v.child)}
	case *Project:
		d.Node = "Project"
		d.Children = []*planNodeDump{dumpNode(v.child)}
	case *Rename:
		d.Node = "Rename"
		d.Detail = v.newName
		d.Children = []*planNodeDump{dumpNode(v.child)}
	case *Sort:
		d.Node = "Sort"
		d.Children = []*planNodeDump{dumpNode(v.child)}
	case *GroupAggregate:
		d.Node = "GroupAggregate"
		d.Children = []*planNodeDump{dumpNode(v.child)}
	case *NestedLoopsJoin:
		d.Node = "NestedLoopsJoin"
		switch v.joinType {
		case JoinCross:
			d.Detail = "cross"
		case JoinInner:
			d.Detail = "inner"
		}
		d.Children = []*planNodeDump{dumpNode(v.left), dumpNode(v.right)}
	default:
		d.Node = "unknown"
	}
	return d
}
