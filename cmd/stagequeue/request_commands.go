package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"stagequeue/internal/api"
	"stagequeue/internal/apiclient"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var body api.SubmitRequest

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a song request",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *apiclient.Client) error {
				req, err := client.Submit(cmd.Context(), body)
				if err != nil {
					return err
				}
				return printRequest(cmd, ctx.flags.json, "Submitted", req)
			})
		},
	}

	cmd.Flags().StringVar(&body.SingerName, "name", "", "Singer name")
	cmd.Flags().StringVar(&body.IGHandle, "ig", "", "Instagram handle")
	cmd.Flags().StringVar(&body.Song, "song", "", "Song title")
	cmd.Flags().StringVar(&body.Artist, "artist", "", "Artist")
	cmd.Flags().StringVar(&body.BackingTrack, "backing", "karaoke", "Backing track: karaoke, original, or none")
	cmd.Flags().StringVar(&body.TechnicalNeeds, "needs", "", "Technical needs when performing without a backing track")
	return cmd
}

type transitionSpec struct {
	use   string
	short string
	verb  string
	run   func(client *apiclient.Client, ctx context.Context, id string) (api.Request, error)
}

func newTransitionCommands(ctx *commandContext) []*cobra.Command {
	specs := []transitionSpec{
		{"reject <id>", "Reject a pending request", "Rejected", (*apiclient.Client).Reject},
		{"play <id>", "Start a queued request", "Playing", (*apiclient.Client).Play},
		{"done <id>", "Mark the playing request as done", "Done", (*apiclient.Client).Done},
	}
	cmds := []*cobra.Command{newApproveCommand(ctx)}
	for _, spec := range specs {
		cmds = append(cmds, &cobra.Command{
			Use:   spec.use,
			Short: spec.short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return ctx.withClient(func(client *apiclient.Client) error {
					req, err := spec.run(client, cmd.Context(), args[0])
					if err != nil {
						return err
					}
					return printRequest(cmd, ctx.flags.json, spec.verb, req)
				})
			},
		})
	}
	return cmds
}

func newApproveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "approve <id> <youtube-url>",
		Short: "Queue a pending request with its performance track",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *apiclient.Client) error {
				req, err := client.Approve(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				return printRequest(cmd, ctx.flags.json, "Queued", req)
			})
		},
	}
}

func newEditCommand(ctx *commandContext) *cobra.Command {
	var song, artist, trackURL string

	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Correct the song, artist, or track of a pending or queued request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *apiclient.Client) error {
				current, err := client.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				edit := api.EditRequest{Song: current.Song, Artist: current.Artist, YouTubeURL: current.YouTubeURL}
				if cmd.Flags().Changed("song") {
					edit.Song = song
				}
				if cmd.Flags().Changed("artist") {
					edit.Artist = artist
				}
				if cmd.Flags().Changed("url") {
					edit.YouTubeURL = trackURL
				}
				req, err := client.Edit(cmd.Context(), args[0], edit)
				if err != nil {
					return err
				}
				return printRequest(cmd, ctx.flags.json, "Updated", req)
			})
		},
	}

	cmd.Flags().StringVar(&song, "song", "", "Corrected song title")
	cmd.Flags().StringVar(&artist, "artist", "", "Corrected artist")
	cmd.Flags().StringVar(&trackURL, "url", "", "Performance track URL (empty clears it)")
	return cmd
}

func newRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Delete a request outright",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *apiclient.Client) error {
				if err := client.Remove(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
				return nil
			})
		},
	}
}
