package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/resumely/cvsync/internal/app"
	"github.com/resumely/cvsync/internal/types"
	"github.com/resumely/cvsync/internal/ui"
)

var addCmd = &cobra.Command{
	Use:     "add",
	GroupID: "edit",
	Short:   "Append an entry to a list section",
	Long: `Append an entry to a list section and print its id.

Dates accept loose input such as "March 2019", "2019-03", "2 years ago" or
"present" and are stored as YYYY-MM.

Examples:
  cvsync add work --company Acme --position Engineer --start "Jan 2021" --end present
  cvsync add skill --name Go --level expert --keyword concurrency --keyword grpc`,
}

// dateRange normalizes --start/--end. An end of "present" reports current.
func dateRange(cmd *cobra.Command) (start, end string, current bool, err error) {
	now := time.Now()
	rawStart, _ := cmd.Flags().GetString("start")
	rawEnd, _ := cmd.Flags().GetString("end")

	start, _, err = types.NormalizeDate(rawStart, now)
	if err != nil {
		return "", "", false, err
	}
	end, ok, err := types.NormalizeDate(rawEnd, now)
	if err != nil {
		return "", "", false, err
	}
	current = rawEnd != "" && !ok
	return start, end, current, nil
}

func addDateFlags(cmd *cobra.Command) {
	cmd.Flags().String("start", "", "start date")
	cmd.Flags().String("end", "", `end date, or "present"`)
}

func runAdd(cmd *cobra.Command, sec types.Section, add func(s *app.Session) (string, error)) error {
	return withSession(cmd, func(ctx context.Context, s *app.Session) error {
		id, err := add(s)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s added %s entry %s\n", ui.RenderPass("✓"), sec, ui.RenderAccent(id))
		return nil
	})
}

var addWorkCmd = &cobra.Command{
	Use:   "work",
	Short: "Add a position to the work history",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		start, end, current, err := dateRange(cmd)
		if err != nil {
			return err
		}
		f := cmd.Flags()
		e := types.WorkEntry{StartDate: start, EndDate: end, Current: current}
		e.Company, _ = f.GetString("company")
		e.Position, _ = f.GetString("position")
		e.Location, _ = f.GetString("location")
		e.Description, _ = f.GetString("description")
		e.Highlights, _ = f.GetStringArray("highlight")
		return runAdd(cmd, types.SectionWork, func(s *app.Session) (string, error) {
			return s.Store.AddWork(e), nil
		})
	},
}

var addEducationCmd = &cobra.Command{
	Use:   "education",
	Short: "Add a degree or course of study",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		start, end, _, err := dateRange(cmd)
		if err != nil {
			return err
		}
		f := cmd.Flags()
		e := types.EducationEntry{StartDate: start, EndDate: end}
		e.Institution, _ = f.GetString("institution")
		e.Degree, _ = f.GetString("degree")
		e.Field, _ = f.GetString("field")
		e.Grade, _ = f.GetString("grade")
		e.Description, _ = f.GetString("description")
		return runAdd(cmd, types.SectionEducation, func(s *app.Session) (string, error) {
			return s.Store.AddEducation(e), nil
		})
	},
}

var addProjectCmd = &cobra.Command{
	Use:   "project",
	Short: "Add a project",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		start, end, _, err := dateRange(cmd)
		if err != nil {
			return err
		}
		f := cmd.Flags()
		e := types.ProjectEntry{StartDate: start, EndDate: end}
		e.Name, _ = f.GetString("name")
		e.Role, _ = f.GetString("role")
		e.URL, _ = f.GetString("url")
		e.Description, _ = f.GetString("description")
		e.Technologies, _ = f.GetStringArray("tech")
		return runAdd(cmd, types.SectionProjects, func(s *app.Session) (string, error) {
			return s.Store.AddProject(e), nil
		})
	},
}

var addSkillCmd = &cobra.Command{
	Use:   "skill",
	Short: "Add a skill",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		f := cmd.Flags()
		var e types.SkillEntry
		e.Name, _ = f.GetString("name")
		e.Level, _ = f.GetString("level")
		e.Keywords, _ = f.GetStringArray("keyword")
		return runAdd(cmd, types.SectionSkills, func(s *app.Session) (string, error) {
			return s.Store.AddSkill(e), nil
		})
	},
}

var addInterestCmd = &cobra.Command{
	Use:   "interest",
	Short: "Add an interest",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		f := cmd.Flags()
		var e types.InterestEntry
		e.Name, _ = f.GetString("name")
		e.Keywords, _ = f.GetStringArray("keyword")
		return runAdd(cmd, types.SectionInterests, func(s *app.Session) (string, error) {
			return s.Store.AddInterest(e), nil
		})
	},
}

var addReferenceCmd = &cobra.Command{
	Use:   "reference",
	Short: "Add a reference",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		f := cmd.Flags()
		var e types.ReferenceEntry
		e.Name, _ = f.GetString("name")
		e.Relationship, _ = f.GetString("relationship")
		e.Contact, _ = f.GetString("contact")
		e.Text, _ = f.GetString("text")
		return runAdd(cmd, types.SectionReferences, func(s *app.Session) (string, error) {
			return s.Store.AddReference(e), nil
		})
	},
}

func init() {
	addWorkCmd.Flags().String("company", "", "company name")
	addWorkCmd.Flags().String("position", "", "job title")
	addWorkCmd.Flags().String("location", "", "location")
	addWorkCmd.Flags().String("description", "", "description")
	addWorkCmd.Flags().StringArray("highlight", nil, "highlight (repeatable)")
	addDateFlags(addWorkCmd)
	_ = addWorkCmd.MarkFlagRequired("company")

	addEducationCmd.Flags().String("institution", "", "school or university")
	addEducationCmd.Flags().String("degree", "", "degree")
	addEducationCmd.Flags().String("field", "", "field of study")
	addEducationCmd.Flags().String("grade", "", "grade")
	addEducationCmd.Flags().String("description", "", "description")
	addDateFlags(addEducationCmd)
	_ = addEducationCmd.MarkFlagRequired("institution")

	addProjectCmd.Flags().String("name", "", "project name")
	addProjectCmd.Flags().String("role", "", "your role")
	addProjectCmd.Flags().String("url", "", "project URL")
	addProjectCmd.Flags().String("description", "", "description")
	addProjectCmd.Flags().StringArray("tech", nil, "technology (repeatable)")
	addDateFlags(addProjectCmd)
	_ = addProjectCmd.MarkFlagRequired("name")

	addSkillCmd.Flags().String("name", "", "skill name")
	addSkillCmd.Flags().String("level", "", "proficiency")
	addSkillCmd.Flags().StringArray("keyword", nil, "keyword (repeatable)")
	_ = addSkillCmd.MarkFlagRequired("name")

	addInterestCmd.Flags().String("name", "", "interest")
	addInterestCmd.Flags().StringArray("keyword", nil, "keyword (repeatable)")
	_ = addInterestCmd.MarkFlagRequired("name")

	addReferenceCmd.Flags().String("name", "", "reference name")
	addReferenceCmd.Flags().String("relationship", "", "relationship to you")
	addReferenceCmd.Flags().String("contact", "", "contact details")
	addReferenceCmd.Flags().String("text", "", "reference text")
	_ = addReferenceCmd.MarkFlagRequired("name")

	addCmd.AddCommand(addWorkCmd, addEducationCmd, addProjectCmd, addSkillCmd, addInterestCmd, addReferenceCmd)
	rootCmd.AddCommand(addCmd)
}
