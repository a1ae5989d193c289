package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"stagequeue/internal/api"
)

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printRequest(cmd *cobra.Command, asJSON bool, verb string, req api.Request) error {
	if asJSON {
		return writeJSON(cmd, req)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %s - %s (%s, %s)\n",
		verb, req.ID, req.Song, req.Artist, singerLabel(req), req.Status)
	if req.SearchURL != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "Find a track: %s\n", req.SearchURL)
	}
	return nil
}

// renderViews writes the sections a role can see.
func renderViews(w io.Writer, views api.Views) {
	fmt.Fprintf(w, "Theme: %s    Revision: %d\n", views.Settings.Theme, views.Revision)
	for _, warning := range views.Warnings {
		fmt.Fprintf(w, "WARNING: %s\n", warning)
	}

	if views.NowPlaying != nil {
		np := views.NowPlaying
		fmt.Fprintf(w, "\nNow playing: %s - %s (%s)\n", np.Song, np.Artist, singerLabel(*np))
		if np.YouTubeURL != "" {
			fmt.Fprintf(w, "Track: %s\n", np.YouTubeURL)
		}
	} else {
		fmt.Fprintln(w, "\nNow playing: nothing")
	}

	fmt.Fprintln(w)
	if len(views.UpNext) == 0 {
		fmt.Fprintln(w, "Up next: queue is empty")
	} else {
		rows := make([][]string, 0, len(views.UpNext))
		for _, slot := range views.UpNext {
			req := slot.Request
			rows = append(rows, []string{strconv.Itoa(slot.Position), singerLabel(req), req.Song, req.Artist, trackLabel(req), req.ID})
		}
		fmt.Fprintln(w, renderTable("Up Next",
			[]string{"#", "Singer", "Song", "Artist", "Track", "ID"}, rows,
			[]columnAlignment{alignRight}))
	}

	if views.Role == "operator" {
		fmt.Fprintln(w)
		if len(views.Pending) == 0 {
			fmt.Fprintln(w, "Pending: none")
		} else {
			rows := make([][]string, 0, len(views.Pending))
			for _, req := range views.Pending {
				rows = append(rows, []string{req.ID, singerLabel(req), req.Song, req.Artist, req.BackingTrack, req.TechnicalNeeds, req.SearchURL})
			}
			fmt.Fprintln(w, renderTable("Pending",
				[]string{"ID", "Singer", "Song", "Artist", "Backing", "Needs", "Search"}, rows, nil))
		}
	}

	if len(views.History) > 0 {
		rows := make([][]string, 0, len(views.History))
		for _, req := range views.History {
			rows = append(rows, []string{req.ID, singerLabel(req), req.Song, req.Artist, req.Status})
		}
		fmt.Fprintln(w)
		fmt.Fprintln(w, renderTable("History",
			[]string{"ID", "Singer", "Song", "Artist", "Status"}, rows, nil))
	}

	fmt.Fprintf(w, "\n%s\n", countsLine(views.Counts))
}

func countsLine(counts map[string]int) string {
	if len(counts) == 0 {
		return "No requests"
	}
	keys := make([]string, 0, len(counts))
	for key := range counts {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", key, counts[key]))
	}
	return strings.Join(parts, "  ")
}

func singerLabel(req api.Request) string {
	if req.IGHandle == "" {
		return req.SingerName
	}
	return req.SingerName + " @" + req.IGHandle
}

func trackLabel(req api.Request) string {
	if req.YouTubeURL != "" {
		return req.YouTubeURL
	}
	return "needs track"
}
