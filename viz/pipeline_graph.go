// ABOUTME: Graphviz rendering of the contact pipeline
// ABOUTME: Category nodes linked in funnel order with sampled contacts hanging off each
package viz

import (
	"bytes"
	"context"
	"fmt"

	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"

	"github.com/jpchacon09/APOLLO/models"
)

var categoryColors = map[models.PipelineCategory]string{
	models.CategoryNew:        "lightgrey",
	models.CategoryInSequence: "lightblue",
	models.CategoryInterested: "lightgreen",
	models.CategoryScheduled:  "gold",
	models.CategoryRejected:   "lightpink",
}

// GraphGenerator renders snapshots as Graphviz documents.
type GraphGenerator struct {
	// ContactsPerCategory caps the contact nodes drawn per category.
	ContactsPerCategory int
}

// NewGraphGenerator creates a generator drawing up to contactsPerCategory
// contacts under each category.
func NewGraphGenerator(contactsPerCategory int) *GraphGenerator {
	return &GraphGenerator{ContactsPerCategory: contactsPerCategory}
}

// GeneratePipelineGraph returns the DOT source of the pipeline funnel.
func (g *GraphGenerator) GeneratePipelineGraph(ctx context.Context, s *Snapshot) (string, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to create graphviz: %w", err)
	}
	defer func() {
		if err := gv.Close(); err != nil {
			fmt.Printf("Error closing graphviz: %v\n", err)
		}
	}()

	graph, err := gv.Graph()
	if err != nil {
		return "", fmt.Errorf("failed to create graph: %w", err)
	}
	defer func() {
		if err := graph.Close(); err != nil {
			fmt.Printf("Error closing graph: %v\n", err)
		}
	}()

	graph.SetLabel("Contact Pipeline")
	graph.SetRankDir(cgraph.LRRank)

	var previous *cgraph.Node
	for _, category := range models.PipelineCategories {
		bucket := s.Pipeline[category]
		count := 0
		if bucket != nil {
			count = bucket.Count
		}

		node, err := graph.CreateNodeByName(fmt.Sprintf("category_%s", category))
		if err != nil {
			return "", fmt.Errorf("failed to create category node: %w", err)
		}
		node.SetLabel(fmt.Sprintf("%s\n%d contacts", category, count))
		node.SetShape("box")
		node.SetStyle("filled")
		node.SetFillColor(categoryColors[category])

		// Funnel order
		if previous != nil {
			edge, err := graph.CreateEdgeByName(fmt.Sprintf("funnel_%s", category), previous, node)
			if err != nil {
				return "", fmt.Errorf("failed to create funnel edge: %w", err)
			}
			edge.SetStyle("bold")
		}
		previous = node

		if bucket == nil {
			continue
		}
		for i, contact := range bucket.Contacts {
			if g.ContactsPerCategory > 0 && i == g.ContactsPerCategory {
				break
			}
			contactNode, err := graph.CreateNodeByName(fmt.Sprintf("contact_%s_%d", category, i))
			if err != nil {
				return "", fmt.Errorf("failed to create contact node: %w", err)
			}
			contactNode.SetLabel(fmt.Sprintf("%s\n%s", contact.Name, contact.Company))
			contactNode.SetShape("ellipse")

			edge, err := graph.CreateEdgeByName("member", node, contactNode)
			if err != nil {
				return "", fmt.Errorf("failed to create edge: %w", err)
			}
			edge.SetStyle("dashed")
		}
	}

	var buf bytes.Buffer
	if err := gv.Render(ctx, graph, graphviz.XDOT, &buf); err != nil {
		return "", fmt.Errorf("failed to render graph: %w", err)
	}

	return buf.String(), nil
}
