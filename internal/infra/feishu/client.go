package feishu

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	"github.com/larksuite/oapi-sdk-go/v3/event/dispatcher"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	larkws "github.com/larksuite/oapi-sdk-go/v3/ws"
)

const openAPIBase = "https://open.feishu.cn/open-apis"

// Message represents a received Feishu message
type Message struct {
	ChatID      string
	MsgID       string
	MsgType     string    // text, post
	ChatType    string    // p2p (private), group
	Content     string    // Text content with mention placeholders resolved to @Name
	Sender      *Sender   // Message sender info
	Mentions    []Mention // Mentioned users in order of appearance, bot excluded
	MentionsBot bool      // True if the bot was mentioned
	CreateTime  int64     // Message creation time (milliseconds Unix timestamp from Feishu)
}

// Sender represents the message sender
type Sender struct {
	SenderID   string // open_id
	SenderType string // user, app
	TenantKey  string
}

// Mention is a user mentioned in a message
type Mention struct {
	Key    string // placeholder such as @_user_1
	UserID string // open_id
	Name   string
}

// ChatMember represents a member in a chat
type ChatMember struct {
	MemberID   string `json:"member_id"`
	MemberType string `json:"member_type"`
	Name       string `json:"name"`
}

// MessageHandler is the callback for received messages
type MessageHandler func(msg *Message)

// Client is the Feishu API client
type Client struct {
	appID     string
	appSecret string
	larkCli   *lark.Client
	wsCli     *larkws.Client
	onMessage MessageHandler
	cancel    context.CancelFunc
	botOpenID string
	logger    *slog.Logger
}

// NewClient creates a new Feishu client
func NewClient(appID, appSecret string, logger *slog.Logger) *Client {
	return &Client{
		appID:     appID,
		appSecret: appSecret,
		larkCli:   lark.NewClient(appID, appSecret),
		logger:    logger.With("component", "feishu"),
	}
}

// OnMessage sets the message handler
func (c *Client) OnMessage(handler MessageHandler) {
	c.onMessage = handler
}

// Start connects to Feishu via WebSocket and blocks until ctx is done or the connection fails
func (c *Client) Start(ctx context.Context) error {
	ctx, c.cancel = context.WithCancel(ctx)

	if err := c.fetchBotOpenID(ctx); err != nil {
		c.logger.Warn("failed to fetch bot open_id", "error", err)
	}

	// Handlers must return quickly so the SDK can ACK, otherwise Feishu redelivers
	eventHandler := dispatcher.NewEventDispatcher("", "").
		OnP2MessageReceiveV1(func(ctx context.Context, event *larkim.P2MessageReceiveV1) error {
			go c.handleMessage(event)
			return nil
		})

	c.wsCli = larkws.NewClient(c.appID, c.appSecret,
		larkws.WithEventHandler(eventHandler),
		larkws.WithLogLevel(larkcore.LogLevelInfo),
	)

	c.logger.Info("starting websocket connection")

	// The SDK's Start only returns on connection failure
	errCh := make(chan error, 1)
	go func() {
		errCh <- c.wsCli.Start(ctx)
	}()

	select {
	case <-ctx.Done():
		c.logger.Info("websocket connection stopped")
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Stop disconnects from Feishu
func (c *Client) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
}

// fetchBotOpenID fetches the bot's own open_id so bot mentions can be told apart
func (c *Client) fetchBotOpenID(ctx context.Context) error {
	tokenBody, _ := json.Marshal(map[string]string{"app_id": c.appID, "app_secret": c.appSecret})
	tokenReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		openAPIBase+"/auth/v3/tenant_access_token/internal", strings.NewReader(string(tokenBody)))
	if err != nil {
		return fmt.Errorf("build token request: %w", err)
	}
	tokenReq.Header.Set("Content-Type", "application/json")

	tokenResp, err := http.DefaultClient.Do(tokenReq)
	if err != nil {
		return fmt.Errorf("get token: %w", err)
	}
	defer tokenResp.Body.Close()

	var tokenResult struct {
		Code              int    `json:"code"`
		TenantAccessToken string `json:"tenant_access_token"`
	}
	if err := json.NewDecoder(tokenResp.Body).Decode(&tokenResult); err != nil {
		return fmt.Errorf("decode token: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, openAPIBase+"/bot/v3/info", nil)
	if err != nil {
		return fmt.Errorf("build bot info request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+tokenResult.TenantAccessToken)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("get bot info: %w", err)
	}
	defer resp.Body.Close()

	var botResult struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
		Bot  struct {
			OpenID  string `json:"open_id"`
			AppName string `json:"app_name"`
		} `json:"bot"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&botResult); err != nil {
		return fmt.Errorf("decode bot info: %w", err)
	}
	if botResult.Code != 0 {
		return fmt.Errorf("API error: %s", botResult.Msg)
	}

	c.botOpenID = botResult.Bot.OpenID
	c.logger.Info("bot identity resolved", "open_id", c.botOpenID, "name", botResult.Bot.AppName)
	return nil
}

// handleMessage converts a raw event and hands it to the registered handler
func (c *Client) handleMessage(event *larkim.P2MessageReceiveV1) {
	msg := c.convertEvent(event)
	if msg == nil {
		return
	}
	if c.onMessage != nil {
		c.onMessage(msg)
	}
}

// convertEvent parses a receive event. It returns nil for bot messages and unsupported types.
func (c *Client) convertEvent(event *larkim.P2MessageReceiveV1) *Message {
	if event == nil || event.Event == nil || event.Event.Message == nil {
		return nil
	}
	rawMsg := event.Event.Message

	// Ignore messages sent by apps, including this bot
	if event.Event.Sender != nil && event.Event.Sender.SenderType != nil && *event.Event.Sender.SenderType == "app" {
		return nil
	}

	msg := &Message{
		ChatID:   larkcore.StringValue(rawMsg.ChatId),
		MsgID:    larkcore.StringValue(rawMsg.MessageId),
		MsgType:  larkcore.StringValue(rawMsg.MessageType),
		ChatType: larkcore.StringValue(rawMsg.ChatType),
	}

	if rawMsg.CreateTime != nil {
		if ts, err := strconv.ParseInt(*rawMsg.CreateTime, 10, 64); err == nil {
			msg.CreateTime = ts
		}
	}

	if event.Event.Sender != nil {
		msg.Sender = &Sender{
			SenderType: larkcore.StringValue(event.Event.Sender.SenderType),
			TenantKey:  larkcore.StringValue(event.Event.Sender.TenantKey),
		}
		if event.Event.Sender.SenderId != nil {
			msg.Sender.SenderID = larkcore.StringValue(event.Event.Sender.SenderId.OpenId)
		}
	}

	// Bot mentions are dropped from the text so commands start at the first word
	mentionMap := make(map[string]string)
	var botKeys []string
	for _, mention := range rawMsg.Mentions {
		if mention == nil {
			continue
		}
		key := larkcore.StringValue(mention.Key)
		name := larkcore.StringValue(mention.Name)
		openID := ""
		if mention.Id != nil {
			openID = larkcore.StringValue(mention.Id.OpenId)
		}
		if c.botOpenID != "" && openID == c.botOpenID {
			msg.MentionsBot = true
			if key != "" {
				botKeys = append(botKeys, key)
			}
			continue
		}
		if key != "" && name != "" {
			mentionMap[key] = name
		}
		if openID != "" {
			msg.Mentions = append(msg.Mentions, Mention{Key: key, UserID: openID, Name: name})
		}
	}

	raw := larkcore.StringValue(rawMsg.Content)
	switch msg.MsgType {
	case "text":
		msg.Content = parseTextContent(raw, mentionMap)
	case "post":
		msg.Content = parsePostContent(raw, mentionMap)
	default:
		c.logger.Debug("unsupported message type", "msg_type", msg.MsgType, "chat_id", msg.ChatID)
		return nil
	}
	msg.Content = strings.TrimSpace(stripKeys(msg.Content, botKeys))

	c.logger.Debug("message received", "msg_type", msg.MsgType, "chat_type", msg.ChatType, "chat_id", msg.ChatID)
	return msg
}

// parseTextContent extracts text from a text message,
// replacing mention placeholders (@_user_1) with real names
func parseTextContent(content string, mentionMap map[string]string) string {
	var parsed struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return ""
	}
	return replaceMentions(parsed.Text, mentionMap)
}

// parsePostContent extracts the text of a rich text message
func parsePostContent(content string, mentionMap map[string]string) string {
	var parsed struct {
		Title   string `json:"title"`
		Content [][]struct {
			Tag    string `json:"tag"`
			Text   string `json:"text,omitempty"`
			UserID string `json:"user_id,omitempty"` // for "at" tags
		} `json:"content"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return ""
	}

	var textParts []string
	if parsed.Title != "" {
		textParts = append(textParts, parsed.Title)
	}

	for _, line := range parsed.Content {
		var lineParts []string
		for _, elem := range line {
			switch elem.Tag {
			case "text":
				if elem.Text != "" {
					lineParts = append(lineParts, elem.Text)
				}
			case "at":
				if elem.UserID == "" {
					continue
				}
				if name, ok := mentionMap[elem.UserID]; ok {
					lineParts = append(lineParts, "@"+name)
				} else {
					lineParts = append(lineParts, "@"+elem.UserID)
				}
			}
		}
		if len(lineParts) > 0 {
			textParts = append(textParts, strings.Join(lineParts, ""))
		}
	}

	return replaceMentions(strings.Join(textParts, "\n"), mentionMap)
}

// replaceMentions replaces mention placeholders (@_user_1, @_user_2, etc.) with real names
func replaceMentions(text string, mentionMap map[string]string) string {
	for key, name := range mentionMap {
		text = strings.ReplaceAll(text, key, "@"+name)
	}
	return text
}

// stripKeys removes mention placeholders from text
func stripKeys(text string, keys []string) string {
	for _, key := range keys {
		text = strings.ReplaceAll(text, key, "")
	}
	return text
}

// SendPrivate sends a text message to a user's private chat, addressed by open_id
func (c *Client) SendPrivate(ctx context.Context, openID, text string) error {
	contentJSON, _ := json.Marshal(map[string]string{"text": text})

	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType(larkim.ReceiveIdTypeOpenId).
		Body(larkim.NewCreateMessageReqBodyBuilder().
			ReceiveId(openID).
			MsgType(larkim.MsgTypeText).
			Content(string(contentJSON)).
			Build()).
		Build()

	resp, err := c.larkCli.Im.Message.Create(ctx, req)
	if err != nil {
		return fmt.Errorf("send private message failed: %w", err)
	}
	if !resp.Success() {
		return fmt.Errorf("send private message error: %s", resp.Msg)
	}

	c.logger.Debug("private message sent", "open_id", openID)
	return nil
}

// GetChatMembers retrieves all members of a chat, following pagination
func (c *Client) GetChatMembers(ctx context.Context, chatID string) ([]*ChatMember, error) {
	var members []*ChatMember
	var pageToken string

	for {
		reqBuilder := larkim.NewGetChatMembersReqBuilder().
			MemberIdType("open_id").
			ChatId(chatID).
			PageSize(100)
		if pageToken != "" {
			reqBuilder = reqBuilder.PageToken(pageToken)
		}

		resp, err := c.larkCli.Im.ChatMembers.Get(ctx, reqBuilder.Build())
		if err != nil {
			return nil, fmt.Errorf("get chat members failed: %w", err)
		}
		if !resp.Success() {
			return nil, fmt.Errorf("get chat members error: %s", resp.Msg)
		}

		for _, item := range resp.Data.Items {
			members = append(members, &ChatMember{
				MemberID:   larkcore.StringValue(item.MemberId),
				MemberType: larkcore.StringValue(item.MemberIdType),
				Name:       larkcore.StringValue(item.Name),
			})
		}

		if resp.Data.PageToken == nil || *resp.Data.PageToken == "" {
			break
		}
		pageToken = *resp.Data.PageToken
	}

	c.logger.Debug("chat members retrieved", "chat_id", chatID, "count", len(members))
	return members, nil
}
