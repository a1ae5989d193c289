package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"stagequeue/internal/api"
	"stagequeue/internal/apiclient"
)

func newThemeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "theme [default|orange|christmas]",
		Short: "Show or set the display theme",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *apiclient.Client) error {
				if len(args) == 0 {
					settings, err := client.Settings(cmd.Context())
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Theme: %s\n", settings.Theme)
					return nil
				}
				settings, err := client.SetTheme(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Theme set to %s\n", settings.Theme)
				return nil
			})
		},
	}
}

// errResetAborted is returned when the operator declines a confirmation.
var errResetAborted = errors.New("reset aborted")

const resetWord = "RESET"

func newResetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Delete every request (asks twice)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *apiclient.Client) error {
				out := cmd.OutOrStdout()
				views, err := client.Views(cmd.Context(), "operator", true)
				if err != nil {
					return err
				}
				total := 0
				for _, n := range views.Counts {
					total += n
				}

				ticket, err := client.ArmReset(cmd.Context())
				if err != nil {
					return err
				}
				answer, err := ctx.prompt(fmt.Sprintf("This deletes all requests (%d active and recent). Continue? [y/N] ", total))
				if err != nil {
					return err
				}
				if !isYes(answer) {
					fmt.Fprintln(out, "Reset cancelled")
					return errResetAborted
				}
				if _, err := client.ConfirmReset(cmd.Context(), ticket.Ticket); err != nil {
					return err
				}

				answer, err = ctx.prompt("Type " + resetWord + " to confirm: ")
				if err != nil {
					return err
				}
				if strings.TrimSpace(answer) != resetWord {
					fmt.Fprintln(out, "Reset cancelled")
					return errResetAborted
				}

				result, err := client.ExecuteReset(cmd.Context(), ticket.Ticket)
				if err != nil {
					var remote *apiclient.RemoteError
					if errors.As(err, &remote) && remote.Response.Result != nil {
						fmt.Fprintf(out, "Reset incomplete: deleted %d of %d requests\n",
							remote.Response.Result.Deleted, remote.Response.Result.Total)
						rows := make([][]string, 0, len(remote.Response.Failed))
						for _, failed := range remote.Response.Failed {
							rows = append(rows, []string{strconv.Itoa(failed.Index), strconv.Itoa(failed.Size), failed.Error})
						}
						fmt.Fprintln(out, renderTable("Failed batches", []string{"Batch", "Size", "Error"}, rows,
							[]columnAlignment{alignRight, alignRight}))
					}
					return err
				}
				if ctx.flags.json {
					return writeJSON(cmd, result)
				}
				fmt.Fprintf(out, "Deleted %d requests in %d batches\n", result.Deleted, result.Batches)
				return nil
			})
		},
	}
}

func isYes(answer string) bool {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

// linerPrompt asks question on the terminal. Ctrl-C or EOF counts as "no".
func linerPrompt(question string) (string, error) {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	answer, err := line.Prompt(question)
	if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read confirmation: %w", err)
	}
	return answer, nil
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *apiclient.Client) error {
				status, err := client.Status(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.flags.json {
					return writeJSON(cmd, status)
				}
				rows := [][]string{
					{"Running", yesNo(status.Running)},
					{"PID", strconv.Itoa(status.PID)},
					{"Listening", status.Bind},
					{"Database", status.DatabasePath},
					{"Database readable", yesNo(status.Database.Readable)},
					{"Integrity check", yesNo(status.Database.IntegrityCheck)},
					{"Total requests", strconv.Itoa(status.Database.TotalRequests)},
					{"Revision", strconv.FormatUint(status.Revision, 10)},
					{"Archive", archiveLabel(status.Archive)},
					{"Player", playerLabel(status.Player)},
				}
				if status.Database.Error != "" {
					rows = append(rows, []string{"Database error", status.Database.Error})
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, renderTable("stagequeued", []string{"Field", "Value"}, rows, nil))
				fmt.Fprintln(out, countsLine(status.Counts))
				return nil
			})
		},
	}
}

func archiveLabel(status api.ArchiveStatus) string {
	if !status.Enabled {
		return "disabled"
	}
	return fmt.Sprintf("delivered=%d failed=%d dropped=%d queued=%d",
		status.Delivered, status.Failed, status.Dropped, status.Queued)
}

func playerLabel(status api.PlayerStatus) string {
	switch {
	case !status.Configured:
		return "not configured (tracks are opened by hand)"
	case !status.Available:
		return status.Detail
	default:
		return status.Command
	}
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
