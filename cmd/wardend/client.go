package main

// The gateway client: side-effecting platform calls go out as JSON
// messages on the actions topic, and the platform gateway executes
// them.  Membership checks don't cross the wire; they read the
// group's synced admin list from the variable store (an external
// task keeps "group_admins_list" fresh).

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/groupwarden/groupwarden/chat"
	"github.com/groupwarden/groupwarden/store"
)

// action is one outbound platform call.
type action struct {
	Op      string `json:"op"`
	ChatID  int64  `json:"chat_id,omitempty"`
	UserID  int64  `json:"user_id,omitempty"`
	Message int64  `json:"message_id,omitempty"`
	Text    string `json:"text,omitempty"`
	Reason  string `json:"reason,omitempty"`
	Until   int64  `json:"until,omitempty"`
}

type gatewayClient struct {
	mq    mqtt.Client
	topic string
	vars  store.VarStore
}

func newGatewayClient(mq mqtt.Client, topic string, vars store.VarStore) *gatewayClient {
	return &gatewayClient{
		mq:    mq,
		topic: topic,
		vars:  vars,
	}
}

func (c *gatewayClient) publish(a action) error {
	js, err := json.Marshal(&a)
	if err != nil {
		return err
	}
	tok := c.mq.Publish(c.topic, 1, false, js)
	if !tok.WaitTimeout(10 * time.Second) {
		return fmt.Errorf("publish timeout on %s", c.topic)
	}
	return tok.Error()
}

func (c *gatewayClient) SendMessage(_ context.Context, chatID int64, text string) error {
	return c.publish(action{Op: "send_message", ChatID: chatID, Text: text})
}

func (c *gatewayClient) Reply(_ context.Context, msg *chat.Message, text string) error {
	return c.publish(action{Op: "reply", ChatID: msg.ChatID, Message: msg.ID, Text: text})
}

func (c *gatewayClient) Delete(_ context.Context, msg *chat.Message) error {
	return c.publish(action{Op: "delete", ChatID: msg.ChatID, Message: msg.ID})
}

func (c *gatewayClient) Restrict(_ context.Context, chatID, userID int64, until time.Time) error {
	a := action{Op: "restrict", ChatID: chatID, UserID: userID}
	if !until.IsZero() {
		a.Until = until.Unix()
	}
	return c.publish(a)
}

func (c *gatewayClient) Unrestrict(_ context.Context, chatID, userID int64) error {
	return c.publish(action{Op: "unrestrict", ChatID: chatID, UserID: userID})
}

func (c *gatewayClient) Ban(_ context.Context, chatID, userID int64, reason string) error {
	return c.publish(action{Op: "ban", ChatID: chatID, UserID: userID, Reason: reason})
}

func (c *gatewayClient) Kick(_ context.Context, chatID, userID int64) error {
	return c.publish(action{Op: "kick", ChatID: chatID, UserID: userID})
}

func (c *gatewayClient) StartVerification(_ context.Context, chatID, userID int64) error {
	return c.publish(action{Op: "start_verification", ChatID: chatID, UserID: userID})
}

// GetChatMember reads the synced admin id list instead of calling
// the platform.  Unknown users are plain members.
func (c *gatewayClient) GetChatMember(ctx context.Context, chatID, userID int64) (*chat.Member, error) {
	member := &chat.Member{
		User:   &chat.User{ID: userID},
		Status: "member",
	}

	raw, err := c.vars.ReadVar(ctx, chatID, "group", "group_admins_list", 0)
	if err != nil || raw == nil {
		return member, err
	}
	data, is := raw.(map[string]interface{})
	if !is {
		return member, nil
	}
	ids, is := data["ids"].([]interface{})
	if !is {
		return member, nil
	}
	for _, id := range ids {
		if n, is := id.(float64); is && int64(n) == userID {
			member.Status = "administrator"
			return member, nil
		}
	}
	return member, nil
}
