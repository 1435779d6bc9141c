/*
Package json provides a JSON rendering of decision trees for external
viewers, with columns and classes referred to by name.
*/
package json

import (
	"fmt"
	"io"

	json "github.com/goccy/go-json"
	"github.com/pbanos/grove/tree"
)

/*
Names holds the names to render columns and classes with. Columns
or classes without a name are rendered by their index.
*/
type Names struct {
	Columns []string
	Classes []string
}

type node struct {
	Class     *string  `json:"class,omitempty"`
	Column    string   `json:"column,omitempty"`
	Strategy  string   `json:"strategy,omitempty"`
	Threshold *float32 `json:"threshold,omitempty"`
	Left      *node    `json:"le,omitempty"`
	Right     *node    `json:"gt,omitempty"`
}

type jsonTree struct {
	SubsetID uint32 `json:"subsetId"`
	Depth    int    `json:"depth"`
	Leaves   int    `json:"leaves"`
	Root     *node  `json:"root"`
}

/*
WriteJSONTree takes an io.Writer, a pointer to a tree.Tree and the names
to render its columns and classes with and serializes the tree as a
JSON object with the following fields:
* "subsetId": the ID of the sample the tree was grown from
* "depth" and "leaves": the depth and number of leaves of the tree
* "root": the root node. Leaves have a "class" field and split nodes
  have "column", "strategy" and "threshold" fields as well as "le" and
  "gt" fields with the subtrees for rows whose value is lower or equal
  and greater than the threshold respectively.
*/
func WriteJSONTree(w io.Writer, t *tree.Tree, names Names) error {
	jt := &jsonTree{
		SubsetID: t.SubsetID,
		Depth:    t.Depth(),
		Leaves:   t.Leaves(),
		Root:     names.node(t, 0),
	}
	data, err := json.MarshalIndent(jt, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding tree as JSON: %v", err)
	}
	_, err = w.Write(append(data, '\n'))
	return err
}

func (ns Names) node(t *tree.Tree, i int) *node {
	n := &t.Nodes[i]
	if n.Leaf {
		class := lookup(ns.Classes, n.Class)
		return &node{Class: &class}
	}
	threshold := n.Threshold
	return &node{
		Column:    lookup(ns.Columns, n.Column),
		Strategy:  n.Strategy.String(),
		Threshold: &threshold,
		Left:      ns.node(t, n.Left),
		Right:     ns.node(t, n.Right),
	}
}

func lookup(names []string, i int) string {
	if i < len(names) {
		return names[i]
	}
	return fmt.Sprintf("%d", i)
}
