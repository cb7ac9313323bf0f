// ABOUTME: Visualization CLI commands
// ABOUTME: Renders the pipeline funnel as a Graphviz document
package cli

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"

	"github.com/jpchacon09/APOLLO/config"
	"github.com/jpchacon09/APOLLO/viz"
)

// VizGraphPipelineCommand generates the contact pipeline graph.
func VizGraphPipelineCommand(cfg *config.Config, database *sql.DB, args []string) error {
	fs := flag.NewFlagSet("viz graph pipeline", flag.ExitOnError)
	output := fs.String("output", "", "Output file (default: stdout)")
	perCategory := fs.Int("contacts", 5, "Contacts drawn per category")
	cached := fs.Bool("cached", false, "Use the last written snapshot")

	if err := fs.Parse(args); err != nil {
		return err
	}

	snap, err := loadOrBuildSnapshot(cfg, database, *cached)
	if err != nil {
		return err
	}

	generator := viz.NewGraphGenerator(*perCategory)
	dot, err := generator.GeneratePipelineGraph(context.Background(), snap)
	if err != nil {
		return err
	}

	if *output != "" {
		return os.WriteFile(*output, []byte(dot), 0644)
	}

	fmt.Println(dot)
	return nil
}
