package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strconv"
	"time"
	"unicode/utf8"

	"recflow/internal/logging"
	"recflow/internal/messaging"
)

type inlineButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data"`
}

type inlineMarkup struct {
	InlineKeyboard [][]inlineButton `json:"inline_keyboard"`
}

func markup(kb messaging.Keyboard) inlineMarkup {
	rows := make([][]inlineButton, 0, len(kb))
	for _, row := range kb {
		buttons := make([]inlineButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, inlineButton{Text: b.Label, CallbackData: b.Payload})
		}
		rows = append(rows, buttons)
	}
	return inlineMarkup{InlineKeyboard: rows}
}

type sentMessage struct {
	MessageID int64 `json:"message_id"`
}

type sendMessageRequest struct {
	ChatID      string        `json:"chat_id"`
	Text        string        `json:"text"`
	ReplyMarkup *inlineMarkup `json:"reply_markup,omitempty"`
}

// SendText sends a plain text message with an optional inline keyboard.
func (c *Client) SendText(ctx context.Context, dest, text string, kb messaging.Keyboard) (int64, error) {
	if n := utf8.RuneCountInString(text); n > messaging.MaxTextRunes {
		return 0, fmt.Errorf("telegram sendMessage: %d characters: %w", n, messaging.ErrTooLarge)
	}
	req := sendMessageRequest{ChatID: dest, Text: text}
	if len(kb) > 0 {
		m := markup(kb)
		req.ReplyMarkup = &m
	}
	var msg sentMessage
	if err := c.call(ctx, "sendMessage", req, &msg, c.cfg.RequestTimeout); err != nil {
		return 0, err
	}
	return msg.MessageID, nil
}

// SendMedia uploads a playable video with caption and optional keyboard.
func (c *Client) SendMedia(ctx context.Context, dest, path, caption string, kb messaging.Keyboard) (int64, error) {
	fields := map[string]string{"chat_id": dest, "caption": caption, "supports_streaming": "true"}
	if len(kb) > 0 {
		encoded, err := json.Marshal(markup(kb))
		if err != nil {
			return 0, fmt.Errorf("telegram sendVideo: encode markup: %w", err)
		}
		fields["reply_markup"] = string(encoded)
	}
	return c.upload(ctx, "sendVideo", "video", path, "video/mp4", fields)
}

// SendFile uploads path as a document so the client does not recompress it.
func (c *Client) SendFile(ctx context.Context, dest, path, caption, mimeType string) (int64, error) {
	fields := map[string]string{"chat_id": dest, "caption": caption}
	return c.upload(ctx, "sendDocument", "document", path, mimeType, fields)
}

type editMarkupRequest struct {
	ChatID      string       `json:"chat_id"`
	MessageID   int64        `json:"message_id"`
	ReplyMarkup inlineMarkup `json:"reply_markup"`
}

// EditKeyboard replaces the inline keyboard of messageID. A nil keyboard
// removes it. Edits that change nothing succeed.
func (c *Client) EditKeyboard(ctx context.Context, dest string, messageID int64, kb messaging.Keyboard) error {
	req := editMarkupRequest{ChatID: dest, MessageID: messageID, ReplyMarkup: markup(kb)}
	err := c.call(ctx, "editMessageReplyMarkup", req, nil, c.cfg.RequestTimeout)
	if IsNotModified(err) {
		return nil
	}
	return err
}

type chat struct {
	ID int64 `json:"id"`
}

type message struct {
	MessageID int64  `json:"message_id"`
	Chat      chat   `json:"chat"`
	Text      string `json:"text"`
	Caption   string `json:"caption"`
}

type callbackQuery struct {
	ID      string   `json:"id"`
	Data    string   `json:"data"`
	Message *message `json:"message"`
}

type update struct {
	UpdateID      int64          `json:"update_id"`
	Message       *message       `json:"message"`
	CallbackQuery *callbackQuery `json:"callback_query"`
}

type getUpdatesRequest struct {
	Offset         int64    `json:"offset"`
	Timeout        int      `json:"timeout"`
	AllowedUpdates []string `json:"allowed_updates"`
}

// PollEvents long-polls getUpdates for updates after sinceID. Updates that
// carry neither text nor a button press are returned as empty text events so
// the caller's watermark still moves past them.
func (c *Client) PollEvents(ctx context.Context, sinceID int64, timeout time.Duration) ([]messaging.Event, error) {
	seconds := max(int(timeout/time.Second), 0)
	req := getUpdatesRequest{
		Offset:         sinceID + 1,
		Timeout:        seconds,
		AllowedUpdates: []string{"message", "callback_query"},
	}
	var updates []update
	if err := c.call(ctx, "getUpdates", req, &updates, timeout+c.cfg.RequestTimeout); err != nil {
		return nil, err
	}
	events := make([]messaging.Event, 0, len(updates))
	for _, u := range updates {
		if u.UpdateID <= sinceID {
			continue
		}
		events = append(events, c.toEvent(ctx, u))
	}
	return events, nil
}

func (c *Client) toEvent(ctx context.Context, u update) messaging.Event {
	ev := messaging.Event{ID: u.UpdateID, Kind: messaging.EventText}
	switch {
	case u.CallbackQuery != nil:
		ev.Kind = messaging.EventButton
		ev.Payload = u.CallbackQuery.Data
		if msg := u.CallbackQuery.Message; msg != nil {
			ev.MessageID = msg.MessageID
			ev.Destination = strconv.FormatInt(msg.Chat.ID, 10)
		}
		c.answerCallback(ctx, u.CallbackQuery.ID)
	case u.Message != nil:
		ev.MessageID = u.Message.MessageID
		ev.Destination = strconv.FormatInt(u.Message.Chat.ID, 10)
		ev.Text = u.Message.Text
		if ev.Text == "" {
			ev.Text = u.Message.Caption
		}
	}
	return ev
}

func (c *Client) answerCallback(ctx context.Context, id string) {
	if id == "" {
		return
	}
	req := map[string]string{"callback_query_id": id}
	if err := c.call(ctx, "answerCallbackQuery", req, nil, c.cfg.RequestTimeout); err != nil {
		c.logger.Debug("callback acknowledgement failed", logging.Error(err))
	}
}

// User is the bot identity returned by getMe.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	IsBot    bool   `json:"is_bot"`
}

// Me verifies the token and returns the bot identity.
func (c *Client) Me(ctx context.Context) (User, error) {
	var user User
	if err := c.call(ctx, "getMe", struct{}{}, &user, c.cfg.RequestTimeout); err != nil {
		return User{}, err
	}
	return user, nil
}

// upload streams a multipart request so large files never sit in memory.
func (c *Client) upload(ctx context.Context, method, field, path, mimeType string, fields map[string]string) (int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("telegram %s: open %s: %w", method, path, err)
	}
	defer file.Close()

	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeMultipart(writer, field, path, mimeType, fields, file))
	}()

	ctx, cancel := context.WithTimeout(ctx, c.cfg.UploadTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(method), pr)
	if err != nil {
		pr.Close()
		return 0, fmt.Errorf("telegram %s: build request: %w", method, err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var msg sentMessage
	err = c.do(req, method, &msg)
	pr.Close()
	if err != nil {
		return 0, err
	}
	return msg.MessageID, nil
}

func writeMultipart(writer *multipart.Writer, field, path, mimeType string, fields map[string]string, src io.Reader) error {
	for key, value := range fields {
		if value == "" {
			continue
		}
		if err := writer.WriteField(key, value); err != nil {
			return err
		}
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, filepath.Base(path)))
	header.Set("Content-Type", mimeType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, src); err != nil {
		return err
	}
	return writer.Close()
}
