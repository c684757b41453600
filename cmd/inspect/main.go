// Command inspect prints the conversations and messages held by a relay store.
// It opens the database read-only, a running relay keeps serving.
package main

import (
	"chat-relay/domain"
	"chat-relay/repositories"
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/mama165/sdk-go/logs"
	"github.com/olekukonko/tablewriter"
)

const previewLength = 60

func main() {
	dbPath := flag.String("db", "./data/relay", "Path to badger DB")
	userID := flag.String("user", "", "List the conversations of this user")
	chatID := flag.String("chat", "", "List the latest messages of this conversation")
	limit := flag.Int("limit", 50, "Number of messages to print")
	flag.Parse()

	if *userID == "" && *chatID == "" {
		flag.Usage()
		os.Exit(2)
	}

	db, err := openDB(*dbPath)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	ctx := context.Background()
	logger := logs.GetLoggerFromLevel(slog.LevelError)
	if *userID != "" {
		if err := printConversations(ctx, repositories.NewConversationRepository(db, logger), domain.UserID(*userID)); err != nil {
			log.Fatal(err)
		}
	}
	if *chatID != "" {
		if err := printMessages(ctx, repositories.NewMessageRepository(db, logger), domain.ConversationID(*chatID), *limit); err != nil {
			log.Fatal(err)
		}
	}
}

func printConversations(ctx context.Context, repo *repositories.ConversationRepository, userID domain.UserID) error {
	conversations, err := repo.ListForUser(ctx, userID)
	if err != nil {
		return err
	}
	title(fmt.Sprintf("Conversations of %s (%d)", userID, len(conversations)))

	table := newTable("ID", "Group", "Name", "Participants", "Created")
	for _, c := range conversations {
		participants := make([]string, 0, len(c.Participants))
		for _, p := range c.Participants {
			participants = append(participants, p.String())
		}
		table.Append([]string{
			c.ID.String(),
			strconv.FormatBool(c.IsGroup),
			c.GroupName,
			strings.Join(participants, ","),
			c.CreatedAt.Format("2006-01-02 15:04:05"),
		})
	}
	table.Render()
	return nil
}

func printMessages(ctx context.Context, repo *repositories.MessageRepository, conversationID domain.ConversationID, limit int) error {
	messages, err := repo.ListMessages(ctx, conversationID, 1, limit)
	if err != nil {
		return err
	}
	title(fmt.Sprintf("Latest messages of %s (%d)", conversationID, len(messages)))

	table := newTable("Created", "ID", "Sender", "Content", "Media")
	for _, m := range messages {
		content := m.Content
		if r := []rune(content); len(r) > previewLength {
			content = string(r[:previewLength]) + "..."
		}
		table.Append([]string{
			m.CreatedAt.Format("15:04:05.000"),
			m.ID.String(),
			m.SenderID.String(),
			content,
			m.MediaRef,
		})
	}
	table.Render()
	return nil
}

func title(text string) {
	fmt.Println(color.New(color.BgBlack, color.FgGreen).Render(text))
}

func newTable(header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	return table
}

func openDB(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true)
	return badger.Open(opts)
}
