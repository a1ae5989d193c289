package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"stagequeue/internal/api"
	"stagequeue/internal/apiclient"
	"stagequeue/internal/projection"
	"stagequeue/internal/requests"
	"stagequeue/internal/syncctl"
)

const clearScreen = "\033[H\033[2J"

func parseRoleFlag(value string) (projection.Role, error) {
	role, ok := projection.ParseRole(value)
	if !ok {
		return "", requests.Invalid("role", "must be operator, display, or marketing")
	}
	return role, nil
}

func newViewsCommand(ctx *commandContext) *cobra.Command {
	var roleFlag string
	var history bool

	cmd := &cobra.Command{
		Use:   "views",
		Short: "Show the queue as a role sees it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			role, err := parseRoleFlag(roleFlag)
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *apiclient.Client) error {
				views, err := client.Views(cmd.Context(), string(role), history)
				if err != nil {
					return err
				}
				if ctx.flags.json {
					return writeJSON(cmd, views)
				}
				renderViews(cmd.OutOrStdout(), views)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&roleFlag, "role", "operator", "View role: operator, display, or marketing")
	cmd.Flags().BoolVar(&history, "history", false, "Include recent history (operator role)")
	return cmd
}

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var roleFlag string
	var history bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow the live queue until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			role, err := parseRoleFlag(roleFlag)
			if err != nil {
				return err
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}

			updates := make(chan syncctl.State, 1)
			observer := func(st syncctl.State) {
				select {
				case <-updates:
				default:
				}
				updates <- st
			}
			ctrl, err := syncctl.New(cmd.Context(), client, role,
				syncctl.WithHistory(history),
				syncctl.WithObserver(observer))
			if err != nil {
				return wrapDaemonError(err, ctx.flags.api)
			}
			defer ctrl.Close()

			out := cmd.OutOrStdout()
			redraw := isTerminal(out)
			for {
				select {
				case <-cmd.Context().Done():
					return nil
				case <-ctrl.Done():
					if cmd.Context().Err() != nil {
						return nil
					}
					return errors.New("live feed ended")
				case st := <-updates:
					if !st.Synced {
						continue
					}
					views := api.FromViews(role, st.Views, st.Settings, st.Revision)
					if ctx.flags.json {
						if err := writeJSON(cmd, views); err != nil {
							return err
						}
						continue
					}
					if redraw {
						fmt.Fprint(out, clearScreen)
					}
					renderViews(out, views)
				}
			}
		},
	}

	cmd.Flags().StringVar(&roleFlag, "role", "operator", "View role: operator, display, or marketing")
	cmd.Flags().BoolVar(&history, "history", false, "Include recent history (operator role)")
	return cmd
}

func isTerminal(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
