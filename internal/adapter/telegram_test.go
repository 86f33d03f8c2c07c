package adapter

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/kurierhq/kurier/internal/errors"
	"github.com/kurierhq/kurier/internal/ingress"
	"github.com/kurierhq/kurier/internal/item"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func TestRenderReviewEscapesAndLinks(t *testing.T) {
	src := &item.SourceMessage{
		ChannelID:       "-100123",
		ChannelUsername: "some_channel",
		ChannelTitle:    "News <live>",
		MessageID:       7,
		Text:            "a <b>bold</b> claim & more",
	}

	out := renderReview("-100123:7", src)
	if strings.Contains(out, "<b>bold</b>") {
		t.Error("Message text must be HTML-escaped")
	}
	if !strings.Contains(out, "&lt;b&gt;bold&lt;/b&gt;") {
		t.Error("Expected escaped text in review card")
	}
	if !strings.Contains(out, "News &lt;live&gt;") {
		t.Error("Channel title must be HTML-escaped")
	}
	if !strings.Contains(out, "https://t.me/some_channel/7") {
		t.Error("Expected source link in review card")
	}
	if !strings.Contains(out, "-100123:7") {
		t.Error("Expected item id in review card")
	}
}

func TestRenderReviewFallsBackToCaption(t *testing.T) {
	src := &item.SourceMessage{
		ChannelID: "-100123",
		MessageID: 7,
		Media:     &item.Media{Type: "photo", Caption: "the caption"},
	}

	out := renderReview("-100123:7", src)
	if !strings.Contains(out, "the caption") {
		t.Error("Expected media caption as card body")
	}
}

func TestExcerptTruncation(t *testing.T) {
	long := strings.Repeat("я", 1000)
	got := excerpt(long, excerptMaxRunes)
	runes := []rune(got)
	if len(runes) != excerptMaxRunes+1 {
		t.Errorf("Expected %d runes plus ellipsis, got %d", excerptMaxRunes, len(runes))
	}
	if runes[len(runes)-1] != '…' {
		t.Error("Expected trailing ellipsis")
	}

	short := "fits"
	if excerpt(short, excerptMaxRunes) != short {
		t.Error("Short text must pass through untouched")
	}
}

func TestAckText(t *testing.T) {
	applied := ingress.Ack{ItemID: "chan:1", Status: item.StatusApproved, Applied: true}
	if got := ackText(applied, nil); got != "Item approved" {
		t.Errorf("Unexpected ack text: %s", got)
	}

	absorbed := ingress.Ack{ItemID: "chan:1", Status: item.StatusRejected, Applied: false}
	if got := ackText(absorbed, nil); got != "Already rejected" {
		t.Errorf("Unexpected ack text: %s", got)
	}

	failed := ackText(ingress.Ack{}, errors.Unauthorized("bad token"))
	if !strings.Contains(failed, "Unauthorized") {
		t.Errorf("Expected condition name in ack, got %s", failed)
	}
}

func TestReviewKeyboardCallbackData(t *testing.T) {
	tg := &TelegramAdapter{callbackToken: "tok"}

	kb := tg.reviewKeyboard("chan:42")
	if len(kb.InlineKeyboard) != 1 || len(kb.InlineKeyboard[0]) != 2 {
		t.Fatalf("Expected one row with two buttons")
	}

	approve := kb.InlineKeyboard[0][0]
	if approve.CallbackData == nil || *approve.CallbackData != "tok:approve:chan:42" {
		t.Errorf("Unexpected approve callback data: %v", approve.CallbackData)
	}
	reject := kb.InlineKeyboard[0][1]
	if reject.CallbackData == nil || *reject.CallbackData != "tok:reject:chan:42" {
		t.Errorf("Unexpected reject callback data: %v", reject.CallbackData)
	}

	// The wire format must survive splitting off the token again.
	token, instruction, _ := strings.Cut(*approve.CallbackData, ":")
	if token != "tok" {
		t.Errorf("Expected token prefix, got %s", token)
	}
	action, id, err := ingress.ParseInstruction(instruction)
	if err != nil {
		t.Fatalf("ParseInstruction failed: %v", err)
	}
	if action != ingress.ActionApprove || id != "chan:42" {
		t.Errorf("Round trip mismatch: %s %s", action, id)
	}
}

func commandUpdate(text string) tgbotapi.Update {
	command, _, _ := strings.Cut(text, " ")
	return tgbotapi.Update{Message: &tgbotapi.Message{
		Text: text,
		Chat: &tgbotapi.Chat{ID: 1},
		Entities: []tgbotapi.MessageEntity{
			{Type: "bot_command", Offset: 0, Length: len(command)},
		},
	}}
}

// One faulting update must not stop the loop from handling the next one.
func TestDispatchSurvivesPanickingHandler(t *testing.T) {
	handled := make(chan string, 2)
	tg := &TelegramAdapter{
		commandHandler: func(ctx context.Context, command string, args []string) (string, error) {
			if command == "boom" {
				panic("handler exploded")
			}
			handled <- command
			return "", nil
		},
	}

	tg.dispatch(context.Background(), commandUpdate("/boom"))
	tg.dispatch(context.Background(), commandUpdate("/status"))

	select {
	case command := <-handled:
		if command != "status" {
			t.Errorf("Unexpected command handled: %s", command)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Update after the faulting one was never handled")
	}
}

func TestCallbackEventWithoutSender(t *testing.T) {
	cq := &tgbotapi.CallbackQuery{Data: "tok:approve:chan:42"}

	evt := callbackEvent(cq)
	if evt.Token != "tok" {
		t.Errorf("Expected token tok, got %s", evt.Token)
	}
	if evt.Instruction != "approve:chan:42" {
		t.Errorf("Unexpected instruction: %s", evt.Instruction)
	}
	if evt.ActorID != "" {
		t.Errorf("Expected empty actor for anonymous sender, got %s", evt.ActorID)
	}
}

func TestCallbackEventCarriesSender(t *testing.T) {
	cq := &tgbotapi.CallbackQuery{
		Data: "tok:reject:chan:42",
		From: &tgbotapi.User{ID: 99, UserName: "mod"},
	}

	evt := callbackEvent(cq)
	if evt.ActorID != "99" {
		t.Errorf("Expected actor 99, got %s", evt.ActorID)
	}
	if evt.Metadata["user_name"] != "mod" {
		t.Errorf("Expected user_name metadata, got %v", evt.Metadata)
	}
}

func TestNullAdapterRecords(t *testing.T) {
	n := NewNullAdapter()

	it := &item.Item{ID: "chan:1"}
	if err := n.NotifyReview(context.Background(), it); err != nil {
		t.Fatalf("NotifyReview failed: %v", err)
	}
	if err := n.Publish(context.Background(), "digest body"); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	if got := n.Reviews(); len(got) != 1 || got[0] != "chan:1" {
		t.Errorf("Unexpected reviews: %v", got)
	}
	if got := n.Published(); len(got) != 1 || got[0] != "digest body" {
		t.Errorf("Unexpected published: %v", got)
	}
}
