// SPDX-License-Identifier: MPL-2.0

package main

import (
	"fmt"
	"io"

	"github.com/crossmod/crossmod/internal/issue"
	"github.com/crossmod/crossmod/internal/loader"
	"github.com/crossmod/crossmod/internal/transform"

	"github.com/spf13/cobra"
)

func newLoadCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "load",
		Short: "Resolve and translate the packages of the mods directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rc, loaded, err := app.runContext(cmd)
			if err != nil {
				return fail(cmd, app, loaded, err)
			}
			out, err := loader.New(rc).Run(cmd.Context())
			if err != nil {
				return fail(cmd, app, loaded, err)
			}
			printPlan(cmd.OutOrStdout(), out.Plan)
			return printOutcome(cmd, out)
		},
	}
}

func newResolveCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve",
		Short: "Show the load set without translating it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rc, loaded, err := app.runContext(cmd)
			if err != nil {
				return fail(cmd, app, loaded, err)
			}
			plan, err := loader.New(rc).Resolve(cmd.Context())
			if err != nil {
				return fail(cmd, app, loaded, err)
			}
			printPlan(cmd.OutOrStdout(), plan)
			for _, w := range plan.Resolution.Warnings {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s %s\n", WarningStyle.Render(warningIcon), w)
			}
			return nil
		},
	}
}

func newRemapCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "remap <jar>...",
		Short: "Translate jars to host names without dependency resolution",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rc, loaded, err := app.runContext(cmd)
			if err != nil {
				return fail(cmd, app, loaded, err)
			}
			l := loader.New(rc)
			plan, err := l.Explicit(args)
			if err != nil {
				return fail(cmd, app, loaded, err)
			}
			out, err := l.Transform(cmd.Context(), plan)
			if err != nil {
				return fail(cmd, app, loaded, err)
			}
			return printOutcome(cmd, out)
		},
	}
}

func printPlan(w io.Writer, plan *loader.Plan) {
	fmt.Fprintln(w, TitleStyle.Render("Load order"))
	for i, p := range plan.Packages {
		fmt.Fprintf(w, "  %2d. %s %s\n", i+1, IDStyle.Render(p.Descriptor.ID), SubtitleStyle.Render(p.Descriptor.Version.String()))
	}
	for _, id := range plan.Hidden {
		fmt.Fprintf(w, "  %s %s %s\n", cachedIcon, IDStyle.Render(id), SubtitleStyle.Render("(hidden)"))
	}
	if plan.Resolution != nil {
		for _, c := range plan.Resolution.Disabled {
			fmt.Fprintf(w, "  %s %s %s\n", cachedIcon, IDStyle.Render(c.ID()), SubtitleStyle.Render("(not for this environment)"))
		}
	}
	fmt.Fprintln(w)
}

func printOutcome(cmd *cobra.Command, out *loader.Outcome) error {
	stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()

	fmt.Fprintln(stdout, TitleStyle.Render("Translation"))
	for _, rec := range out.Records {
		switch {
		case !rec.Succeeded:
			fmt.Fprintf(stdout, "  %s %s %s\n", ErrorStyle.Render(errorIcon), IDStyle.Render(rec.Job.ID), rec.Err)
		case rec.Cached:
			fmt.Fprintf(stdout, "  %s %s %s\n", SubtitleStyle.Render(cachedIcon), IDStyle.Render(rec.Job.ID), SubtitleStyle.Render("up to date"))
		default:
			fmt.Fprintf(stdout, "  %s %s -> %s\n", SuccessStyle.Render(successIcon), IDStyle.Render(rec.Job.ID), rec.Output)
		}
	}
	for _, w := range out.Warnings {
		fmt.Fprintf(stderr, "%s %s\n", WarningStyle.Render(warningIcon), w)
	}

	failed := out.Failed()
	if len(failed) == 0 {
		return nil
	}
	fmt.Fprintf(stderr, "%s %d of %d package(s) failed; see %s\n", ErrorStyle.Render(errorIcon),
		len(failed), len(out.Records), transform.ReportFileName)
	if rendered, err := issue.Get(issue.RewriteFailedId).Render("auto"); err == nil {
		fmt.Fprint(stderr, rendered)
	}
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	return &ExitError{Code: exitPartial}
}
