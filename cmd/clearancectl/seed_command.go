package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/noah-isme/clearance-api/internal/models"
	"github.com/noah-isme/clearance-api/internal/repository"
)

var defaultDepartments = []models.Department{
	{Name: "Faculty", SequenceOrder: 1, FacultyScoped: true, Description: "Faculty clearance - Academic records and course completion verification"},
	{Name: "Library", SequenceOrder: 2, Description: "Library clearance - No outstanding books or library fines"},
	{Name: "Bursary", SequenceOrder: 3, Description: "Bursary clearance - All fees paid and financial obligations cleared"},
	{Name: "ICT", SequenceOrder: 4, Description: "ICT clearance - Return of university ICT equipment and resources"},
	{Name: "Hostel", SequenceOrder: 5, Description: "Hostel clearance - Room inspection and hostel fees verification"},
	{Name: "Student Affairs", SequenceOrder: 6, Description: "Student Affairs clearance - Final verification and clearance certificate issuance"},
}

var defaultFaculties = []models.Faculty{
	{Name: "Faculty of Humanities", Code: "HUM", Description: "Arts, Languages, Philosophy, Religious Studies, History"},
	{Name: "Faculty of Natural Sciences", Code: "SCI", Description: "Biology, Chemistry, Physics, Mathematics, Computer Science"},
	{Name: "Faculty of Social Sciences", Code: "SOC", Description: "Economics, Sociology, Political Science, Psychology, Mass Communication"},
	{Name: "Faculty of Management Sciences", Code: "MGT", Description: "Business Administration, Accounting, Banking & Finance"},
	{Name: "Faculty of Environmental Sciences", Code: "ENV", Description: "Estate Management, Architecture, Urban & Regional Planning"},
	{Name: "Faculty of Law", Code: "LAW", Description: "Law programs"},
	{Name: "Faculty of Education", Code: "EDU", Description: "Education and Teaching programs"},
}

type departmentSeeder interface {
	FindByName(ctx context.Context, name string) (*models.Department, error)
	Create(ctx context.Context, department *models.Department) error
	Update(ctx context.Context, department *models.Department) error
}

type facultySeeder interface {
	UpsertByCode(ctx context.Context, faculty *models.Faculty) (bool, error)
}

type seedResult struct {
	created int
	updated int
}

func newSeedCommand(ctx *commandContext) *cobra.Command {
	seedCmd := &cobra.Command{
		Use:   "seed",
		Short: "Create or refresh the default registry data",
	}

	seedCmd.AddCommand(&cobra.Command{
		Use:   "departments",
		Short: "Create or refresh the six standard clearance stages",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := ctx.ensureDB()
			if err != nil {
				return err
			}
			repo := repository.NewDepartmentRepository(db)
			result, err := seedDepartments(cmd.Context(), repo, defaultDepartments)
			if err != nil {
				return err
			}
			printSeedResult(cmd.OutOrStdout(), "departments", result)
			departments, err := repo.List(cmd.Context(), true)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), workflowTable(departments))
			return nil
		},
	})

	seedCmd.AddCommand(&cobra.Command{
		Use:   "faculties",
		Short: "Create or refresh the default faculties",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := ctx.ensureDB()
			if err != nil {
				return err
			}
			repo := repository.NewFacultyRepository(db)
			result, err := seedFaculties(cmd.Context(), repo, defaultFaculties)
			if err != nil {
				return err
			}
			printSeedResult(cmd.OutOrStdout(), "faculties", result)
			faculties, err := repo.List(cmd.Context(), true)
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(faculties))
			for _, f := range faculties {
				rows = append(rows, []string{f.Code, f.Name})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable("Available Faculties", []string{"Code", "Name"}, rows, nil))
			return nil
		},
	})

	return seedCmd
}

func seedDepartments(ctx context.Context, repo departmentSeeder, departments []models.Department) (seedResult, error) {
	var result seedResult
	for _, seed := range departments {
		existing, err := repo.FindByName(ctx, seed.Name)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			dept := seed
			dept.Active = true
			if err := repo.Create(ctx, &dept); err != nil {
				return result, err
			}
			result.created++
		case err != nil:
			return result, err
		default:
			existing.SequenceOrder = seed.SequenceOrder
			existing.Description = seed.Description
			existing.FacultyScoped = seed.FacultyScoped
			existing.Active = true
			if err := repo.Update(ctx, existing); err != nil {
				return result, err
			}
			result.updated++
		}
	}
	return result, nil
}

func seedFaculties(ctx context.Context, repo facultySeeder, faculties []models.Faculty) (seedResult, error) {
	var result seedResult
	for _, seed := range faculties {
		faculty := seed
		faculty.Active = true
		created, err := repo.UpsertByCode(ctx, &faculty)
		if err != nil {
			return result, fmt.Errorf("seed faculty %s: %w", seed.Code, err)
		}
		if created {
			result.created++
		} else {
			result.updated++
		}
	}
	return result, nil
}

func printSeedResult(out io.Writer, noun string, result seedResult) {
	fmt.Fprintf(out, "Created: %d %s\n", result.created, noun)
	fmt.Fprintf(out, "Updated: %d %s\n", result.updated, noun)
	fmt.Fprintf(out, "Total:   %s %s\n", strconv.Itoa(result.created+result.updated), noun)
}
