package models

const (
	SenderAdmin   = "admin"
	SenderStudent = "student"
)

// Message is append-only; its id doubles as the idempotency key.
type Message struct {
	ID        string `json:"id"`
	Sender    string `json:"sender" validate:"required,oneof=admin student"`
	Text      string `json:"text" validate:"required,max=4000"`
	Timestamp string `json:"timestamp" validate:"required"`
}

// ConversationMeta is the denormalized node kept beside one student's message list.
type ConversationMeta struct {
	UserID           string `json:"id"`
	Name             string `json:"name,omitempty"`
	LastText         string `json:"lastText,omitempty"`
	LastTimestamp    string `json:"lastTimestamp,omitempty"`
	UnreadForAdmin   bool   `json:"unreadForAdmin"`
	UnreadForUser    bool   `json:"unreadForUser"`
	UnreadCount      int    `json:"unreadCount"`
	AdminUnreadCount int    `json:"adminUnreadCount"`
	LastSeen         string `json:"lastSeen,omitempty"`
	AdminLastSeen    string `json:"adminLastSeen,omitempty"`
}

type Conversation struct {
	ParticipantID string            `json:"participantId"`
	Messages      []Message         `json:"messages"`
	Meta          *ConversationMeta `json:"meta,omitempty"`
}

// Badge is what a navigation entry shows for an unread count.
type Badge struct {
	Visible bool `json:"visible"`
	Numeric bool `json:"numeric"`
	Count   int  `json:"count"`
}
