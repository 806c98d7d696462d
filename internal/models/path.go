package models

import (
	"fmt"
	"strings"
)

const (
	ConversationsCollection = "one_on_one"
	messagesSuffix          = "messages"
	metaSuffix              = "meta"
)

// Path addresses either a whole collection (ID empty) or one document.
type Path struct {
	Collection string `json:"collection"`
	ID         string `json:"id,omitempty"`
}

func MessagesCollection(userID string) string {
	return ConversationsCollection + "/" + userID + "/" + messagesSuffix
}

func MetaPath(userID string) Path {
	return Path{Collection: ConversationsCollection, ID: userID}
}

func DocumentPath(collection, id string) Path {
	return Path{Collection: collection, ID: id}
}

// ParsePath accepts "collection", "collection/id", "one_on_one/{uid}/messages" and "one_on_one/{uid}/meta".
func ParsePath(raw string) (Path, error) {
	parts := strings.Split(strings.Trim(raw, "/"), "/")
	for _, p := range parts {
		if p == "" {
			return Path{}, NewValidationError("path", fmt.Sprintf("invalid path %q", raw))
		}
	}

	switch len(parts) {
	case 1:
		return Path{Collection: parts[0]}, nil
	case 2:
		return Path{Collection: parts[0], ID: parts[1]}, nil
	case 3:
		if parts[0] != ConversationsCollection {
			break
		}
		switch parts[2] {
		case messagesSuffix:
			return Path{Collection: MessagesCollection(parts[1])}, nil
		case metaSuffix:
			return MetaPath(parts[1]), nil
		}
	}
	return Path{}, NewValidationError("path", fmt.Sprintf("unsupported path %q", raw))
}

func (p Path) IsDocument() bool {
	return p.ID != ""
}

// Matches reports whether a change to (collection, id) concerns this path.
func (p Path) Matches(collection, id string) bool {
	if p.Collection != collection {
		return false
	}
	return p.ID == "" || p.ID == id
}

func (p Path) String() string {
	if p.ID == "" {
		return p.Collection
	}
	if p.Collection == ConversationsCollection {
		return ConversationsCollection + "/" + p.ID + "/" + metaSuffix
	}
	return p.Collection + "/" + p.ID
}
