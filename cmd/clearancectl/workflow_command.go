package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/clearance-api/internal/models"
	"github.com/noah-isme/clearance-api/internal/repository"
	"github.com/noah-isme/clearance-api/internal/workflow"
)

func newWorkflowCommand(ctx *commandContext) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "workflow",
		Short: "Print the clearance stages in review order",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := ctx.ensureDB()
			if err != nil {
				return err
			}
			departments, err := repository.NewDepartmentRepository(db).List(cmd.Context(), !all)
			if err != nil {
				return err
			}
			if _, err := workflow.NewRegistry(departments); err != nil {
				ctx.log().Warn("registry is not usable for new submissions", zap.Error(err))
			}
			fmt.Fprintln(cmd.OutOrStdout(), workflowTable(departments))
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Include retired departments")
	return cmd
}

func workflowTable(departments []models.Department) string {
	rows := make([][]string, 0, len(departments))
	for _, d := range departments {
		scope := "all students"
		if d.FacultyScoped {
			scope = "per faculty"
		}
		state := "active"
		if !d.Active {
			state = "retired"
		}
		rows = append(rows, []string{strconv.Itoa(d.SequenceOrder), d.Name, scope, state})
	}
	return renderTable("Clearance Workflow Order",
		[]string{"Order", "Department", "Reviewed", "State"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft},
	)
}
