// Command viewer renders a room's archived chat and encounter snapshots
// from a read-only copy of the store. Meant for table-side debugging while
// the server runs.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"

	"gameroom-lab/domain"
	"gameroom-lab/repositories"
)

func main() {
	dbPath := flag.String("db", "/tmp/gameroom/badger", "Path to badger DB")
	roomCode := flag.String("room", "", "Room code to display")
	flag.Parse()

	if *roomCode == "" {
		log.Fatal("Missing -room flag")
	}

	db, err := openDB(*dbPath)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	renderEncounters(db, logger, *roomCode)
	renderMessages(db, logger, *roomCode)
}

func renderEncounters(db *badger.DB, logger *slog.Logger, roomCode string) {
	repo := repositories.NewEncounterRepository(db, logger)
	encounters, err := repo.ListByRoom(context.Background(), roomCode)
	if err != nil {
		log.Fatal(err)
	}

	color.Green.Printf("Encounters in %s (%d)\n", roomCode, len(encounters))

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"ID", "Name", "Kind", "Status", "Scene", "Round", "Active", "Participants"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)

	for _, enc := range encounters {
		names := make([]string, 0, len(enc.Participants))
		for _, p := range enc.Participants {
			names = append(names, fmt.Sprintf("%s(m%d/f%d)", p.Name, p.MainActions, p.FastActions))
		}
		table.Append([]string{
			shortID(enc.ID),
			enc.Name,
			string(enc.Kind),
			string(enc.Status),
			fmt.Sprintf("%d", enc.Scene),
			fmt.Sprintf("%d", enc.Round),
			shortID(activeID(enc)),
			strings.Join(names, ", "),
		})
	}
	table.Render()
	fmt.Println()
}

func renderMessages(db *badger.DB, logger *slog.Logger, roomCode string) {
	archive := repositories.NewChatArchive(db, logger, nil)
	messages, _, err := archive.Recent(roomCode, nil)
	if err != nil {
		log.Fatal(err)
	}

	color.Green.Printf("Messages in %s (%d, newest first)\n", roomCode, len(messages))

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Time", "User", "Lang", "Message"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)

	for _, msg := range messages {
		table.Append([]string{
			msg.At.Format("15:04:05"),
			msg.UserID,
			msg.Language,
			msg.Content,
		})
	}
	table.Render()
}

func activeID(enc domain.Encounter) string {
	if enc.CurrentTurnIndex < 0 || enc.CurrentTurnIndex >= len(enc.TurnOrder) {
		return ""
	}
	return enc.TurnOrder[enc.CurrentTurnIndex]
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func openDB(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true)
	return badger.Open(opts)
}
